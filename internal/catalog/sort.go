package catalog

import (
	"sort"
	"strings"

	"github.com/dgnsrekt/options-screener/internal/data"
)

// DefaultSortToken orders by expiration date, latest first.
const DefaultSortToken = "e_desc"

// SortKey is a resolved order-by token.
type SortKey struct {
	Token      string
	Base       string
	Descending bool
	value      func(*data.OptionRecord) data.Num
}

// Value extracts the sort value. Valid is false when the record has none.
func (k SortKey) Value(r *data.OptionRecord) data.Num {
	return k.value(r)
}

func fieldValue(name string) func(*data.OptionRecord) data.Num {
	f, ok := byName[name]
	if !ok || f.Kind != KindRange {
		panic("catalog: sort base is not a range field: " + name)
	}
	return f.Num
}

var sortKeys map[string]SortKey

func registerSortKeys() {
	bases := map[string]func(*data.OptionRecord) data.Num{
		"e":     expirationDay,
		"s":     fieldValue("strike"),
		"lp":    fieldValue("price"),
		"iv":    fieldValue("iv"),
		"oi":    fieldValue("oi"),
		"v":     fieldValue("volume"),
		"voi":   fieldValue("voi"),
		"y":     fieldValue("yield"),
		"my":    fieldValue("myield"),
		"sto":   fieldValue("sto"),
		"diff":  fieldValue("diff"),
		"ab":    fieldValue("ask-bid"),
		"delta": fieldValue("delta"),
		"gamma": fieldValue("gamma"),
		"theta": fieldValue("theta"),
		"vega":  fieldValue("vega"),
		"rho":   fieldValue("rho"),
		"cap":   fieldValue("cap"),
	}

	sortKeys = make(map[string]SortKey, len(bases)*2)
	for base, fn := range bases {
		for _, desc := range []bool{false, true} {
			token := base + "_asc"
			if desc {
				token = base + "_desc"
			}
			sortKeys[token] = SortKey{Token: token, Base: base, Descending: desc, value: fn}
		}
	}
}

// ResolveSort looks up an order-by token. Matching ignores case and surrounding space.
func ResolveSort(token string) (SortKey, bool) {
	k, ok := sortKeys[strings.ToLower(strings.TrimSpace(token))]
	return k, ok
}

// DefaultSort returns the sort key used when order-by is blank.
func DefaultSort() SortKey {
	return sortKeys[DefaultSortToken]
}

// SortTokens lists every accepted order-by token, sorted.
func SortTokens() []string {
	tokens := make([]string, 0, len(sortKeys))
	for t := range sortKeys {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}
