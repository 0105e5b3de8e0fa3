package screener

import (
	"sort"

	"github.com/dgnsrekt/options-screener/internal/catalog"
)

// Rank orders verdicts by key and keeps at most limit of them. Records without
// a sort value go last. Ties break on ticker, then contract symbol, then input
// index, so the order never depends on scheduling. A limit <= 0 keeps everything.
func Rank(verdicts []Verdict, key catalog.SortKey, limit int) []Verdict {
	type entry struct {
		v     Verdict
		value float64
		ok    bool
	}

	entries := make([]entry, len(verdicts))
	for i, v := range verdicts {
		n := key.Value(v.Record)
		entries[i] = entry{v: v, value: n.Value, ok: n.Valid}
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ok != b.ok {
			return a.ok
		}
		if a.ok && a.value != b.value {
			if key.Descending {
				return a.value > b.value
			}
			return a.value < b.value
		}
		if a.v.Record.Ticker != b.v.Record.Ticker {
			return a.v.Record.Ticker < b.v.Record.Ticker
		}
		if a.v.Record.ContractSymbol != b.v.Record.ContractSymbol {
			return a.v.Record.ContractSymbol < b.v.Record.ContractSymbol
		}
		return a.v.Index < b.v.Index
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]Verdict, len(entries))
	for i, e := range entries {
		out[i] = e.v
	}
	return out
}
