// Package filter turns raw key/value screening configuration into a typed,
// validated Spec. Validation is eager: every key is checked and all problems
// are returned together in a *ValidationErrors.
package filter

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/dgnsrekt/options-screener/internal/catalog"
)

// Parse builds a Spec from raw configuration. Keys and values are trimmed and
// blank values leave a key unconstrained. Two keys that trim to the same name
// are reported as duplicates.
//
// An order-by token that names no sort key is reported as a malformed value
// rather than falling back to the default order. Only a blank order-by selects
// the default (e_desc).
//
// The returned error, when non-nil, is always a *ValidationErrors.
func Parse(raw map[string]string) (*Spec, error) {
	errs := &ValidationErrors{}
	spec := Empty()

	var (
		symbols []string
		exclude bool
	)

	entries, dups := trimEntries(raw)
	errs.Duplicates = dups

	for _, key := range orderedKeys(entries) {
		value := entries[key]

		d, ok := catalog.Resolve(key)
		if !ok {
			errs.UnknownKeys = append(errs.UnknownKeys, key)
			continue
		}

		switch d.Field.Kind {
		case catalog.KindRange:
			v, ok := parseNumber(value, d.Type)
			if !ok {
				errs.Malformed = append(errs.Malformed, MalformedValue{Key: key, Value: value, Expect: d.Type.String()})
				continue
			}
			r := spec.ranges[d.Field.Name]
			if d.Role == catalog.RoleMin {
				r.Min = Bound{Value: v, Set: true}
			} else {
				r.Max = Bound{Value: v, Set: true}
			}
			spec.ranges[d.Field.Name] = r

		case catalog.KindFlag:
			b, ok := parseBool(value)
			if !ok {
				errs.Malformed = append(errs.Malformed, MalformedValue{Key: key, Value: value, Expect: "boolean"})
				continue
			}
			if b {
				spec.flags[d.Field.Name] = RequireTrue
			} else {
				spec.flags[d.Field.Name] = RequireFalse
			}

		case catalog.KindTickers:
			if d.Role == catalog.RoleExclude {
				b, ok := parseBool(value)
				if !ok {
					errs.Malformed = append(errs.Malformed, MalformedValue{Key: key, Value: value, Expect: "boolean"})
					continue
				}
				exclude = b
				continue
			}
			symbols = splitTickers(value)

		case catalog.KindControl:
			switch key {
			case catalog.OrderByKey:
				order, ok := catalog.ResolveSort(value)
				if !ok {
					errs.Malformed = append(errs.Malformed, MalformedValue{Key: key, Value: value, Expect: "sort token such as iv_desc or e_asc"})
					continue
				}
				spec.order = order
			case catalog.LimitKey:
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					errs.Malformed = append(errs.Malformed, MalformedValue{Key: key, Value: value, Expect: "positive integer"})
					continue
				}
				if n > MaxLimit {
					n = MaxLimit
				}
				spec.limit = n
			}
		}
	}

	for _, f := range catalog.Fields() {
		r, ok := spec.ranges[f.Name]
		if !ok || !r.Min.Set || !r.Max.Set {
			continue
		}
		if r.Min.Value > r.Max.Value {
			errs.Inverted = append(errs.Inverted, InvertedRange{
				Field:  f.Name,
				MinKey: catalog.MinKey(f.Name),
				MaxKey: catalog.MaxKey(f.Name),
				Min:    r.Min.Value,
				Max:    r.Max.Value,
			})
		}
	}

	if errs.HasErrors() {
		errs.sort()
		return nil, errs
	}

	spec.tickers = newTickers(symbols, exclude)
	spec.constrained = spec.collectConstrained()
	return spec, nil
}

// trimEntries trims keys and values and drops blank values. Keys that collide
// after trimming are left out of the result and returned as duplicates.
func trimEntries(raw map[string]string) (map[string]string, []string) {
	entries := make(map[string]string, len(raw))
	seen := make(map[string]int, len(raw))
	for k, v := range raw {
		key, value := strings.TrimSpace(k), strings.TrimSpace(v)
		if value == "" {
			continue
		}
		seen[key]++
		entries[key] = value
	}

	var dups []string
	for key, n := range seen {
		if n > 1 {
			dups = append(dups, key)
			delete(entries, key)
		}
	}
	return entries, dups
}

// orderedKeys returns keys in catalog order so parsing is independent of map iteration.
func orderedKeys(entries map[string]string) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}

func parseNumber(s string, t catalog.ValueType) (float64, bool) {
	if t == catalog.Integer {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes", "y", "on":
		return true, true
	case "false", "f", "0", "no", "n", "off":
		return false, true
	}
	return false, false
}

// splitTickers splits on commas and whitespace into uppercase symbols.
func splitTickers(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToUpper(p))
	}
	return out
}
