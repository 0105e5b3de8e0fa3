package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgnsrekt/options-screener/internal/catalog"
)

// MalformedValue is a value that could not be coerced to its key's declared type.
type MalformedValue struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Expect string `json:"expect"`
}

// InvertedRange is a min/max pair whose minimum exceeds its maximum.
type InvertedRange struct {
	Field  string  `json:"field"`
	MinKey string  `json:"min_key"`
	MaxKey string  `json:"max_key"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ValidationErrors collects every problem found in a filter configuration.
type ValidationErrors struct {
	UnknownKeys []string         `json:"unknown_keys,omitempty"`
	// Duplicates are keys that appear more than once after trimming.
	Duplicates  []string         `json:"duplicate_keys,omitempty"`
	Malformed   []MalformedValue `json:"malformed,omitempty"`
	Inverted    []InvertedRange  `json:"inverted,omitempty"`
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.UnknownKeys) > 0 || len(e.Duplicates) > 0 || len(e.Malformed) > 0 || len(e.Inverted) > 0
}

// Keys lists every configuration key named by the errors, in catalog order.
func (e *ValidationErrors) Keys() []string {
	seen := map[string]bool{}
	var keys []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, k := range e.UnknownKeys {
		add(k)
	}
	for _, k := range e.Duplicates {
		add(k)
	}
	for _, m := range e.Malformed {
		add(m.Key)
	}
	for _, inv := range e.Inverted {
		add(inv.MinKey)
		add(inv.MaxKey)
	}
	sortKeys(keys)
	return keys
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("filter validation failed:\n")

	if len(e.UnknownKeys) > 0 {
		sb.WriteString("\nUnknown keys:\n")
		for _, k := range e.UnknownKeys {
			sb.WriteString(fmt.Sprintf("  - %s\n", k))
		}
	}

	if len(e.Duplicates) > 0 {
		sb.WriteString("\nDuplicate keys:\n")
		for _, k := range e.Duplicates {
			sb.WriteString(fmt.Sprintf("  - %s\n", k))
		}
	}

	if len(e.Malformed) > 0 {
		sb.WriteString("\nMalformed values:\n")
		for _, m := range e.Malformed {
			sb.WriteString(fmt.Sprintf("  - %s=%q (expected %s)\n", m.Key, m.Value, m.Expect))
		}
	}

	if len(e.Inverted) > 0 {
		sb.WriteString("\nInverted ranges:\n")
		for _, inv := range e.Inverted {
			sb.WriteString(fmt.Sprintf("  - %s: %s=%g is greater than %s=%g\n",
				inv.Field, inv.MinKey, inv.Min, inv.MaxKey, inv.Max))
		}
	}

	return sb.String()
}

// sort orders every error list by catalog key order so output is stable.
func (e *ValidationErrors) sort() {
	sortKeys(e.UnknownKeys)
	sortKeys(e.Duplicates)
	sort.SliceStable(e.Malformed, func(i, j int) bool {
		return less(e.Malformed[i].Key, e.Malformed[j].Key)
	})
	sort.SliceStable(e.Inverted, func(i, j int) bool {
		return less(e.Inverted[i].MinKey, e.Inverted[j].MinKey)
	})
}

func sortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
}

// less orders by catalog rank, then lexically for keys outside the catalog.
func less(a, b string) bool {
	ra, rb := catalog.KeyRank(a), catalog.KeyRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}
