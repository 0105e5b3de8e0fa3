// Package screener evaluates option records against a filter spec, ranks the
// matches and reports why everything else was rejected.
package screener

import (
	"sort"

	"github.com/dgnsrekt/options-screener/internal/catalog"
	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/filter"
)

// Reason explains a single failed constraint.
type Reason string

const (
	BelowMin     Reason = "below-min"
	AboveMax     Reason = "above-max"
	FlagMismatch Reason = "flag-mismatch"
	NotInTickers Reason = "ticker"
	Undefined    Reason = "undefined"
)

// Failure names the configuration key a record failed and why.
type Failure struct {
	Key    string `json:"key"`
	Reason Reason `json:"reason"`
}

// Verdict is the outcome of evaluating one record. Index is the record's
// position in the input and is the final tie-breaker when ranking.
type Verdict struct {
	Index    int                `json:"index"`
	Record   *data.OptionRecord `json:"record"`
	Passed   bool               `json:"passed"`
	Failures []Failure          `json:"failures,omitempty"`
}

// FailedKeys returns the keys of the verdict's failures in catalog order.
func (v Verdict) FailedKeys() []string {
	out := make([]string, 0, len(v.Failures))
	for _, f := range v.Failures {
		out = append(out, f.Key)
	}
	return out
}

// Result is the output of one screening run.
type Result struct {
	// Matches are the passing records, ranked and truncated to the filter limit.
	Matches []Verdict
	// Rejected holds every failing record in input order.
	Rejected  []Verdict
	Evaluated int
	// Passed counts every passing record, including those cut by the limit.
	Passed int
	Spec   *filter.Spec
}

// Explain returns the rejected verdicts for a ticker.
func (r *Result) Explain(ticker string) []Verdict {
	ticker = data.NormalizeTicker(ticker)
	var out []Verdict
	for _, v := range r.Rejected {
		if data.NormalizeTicker(v.Record.Ticker) == ticker {
			out = append(out, v)
		}
	}
	return out
}

// RejectionCount is how many records failed a given key.
type RejectionCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// RejectionCounts tallies failures per key, in catalog order.
func (r *Result) RejectionCounts() []RejectionCount {
	counts := map[string]int{}
	for _, v := range r.Rejected {
		for _, f := range v.Failures {
			counts[f.Key]++
		}
	}
	out := make([]RejectionCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, RejectionCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return catalog.KeyRank(out[i].Key) < catalog.KeyRank(out[j].Key)
	})
	return out
}
