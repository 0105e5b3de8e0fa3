package screener

import (
	"slices"
	"sort"

	"github.com/dgnsrekt/options-screener/internal/catalog"
	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/filter"
)

// Evaluate checks a record against every active constraint of spec. A record
// passes only when no constraint fails; failures are listed in catalog order.
//
// Flags in the same group are satisfied when any RequireTrue member holds
// (calls=true and puts=true admits both types). RequireFalse is checked per flag.
func Evaluate(spec *filter.Spec, r *data.OptionRecord) (bool, []Failure) {
	var (
		failures []Failure
		groups   []string
	)

	for _, f := range spec.Constrained() {
		switch f.Kind {
		case catalog.KindTickers:
			if !spec.Tickers().Allows(r.Ticker) {
				failures = append(failures, Failure{Key: catalog.TickersKey, Reason: NotInTickers})
			}

		case catalog.KindRange:
			rng, _ := spec.Range(f.Name)
			failures = append(failures, checkRange(f, rng, f.Num(r))...)

		case catalog.KindFlag:
			if f.Group == "" {
				failures = append(failures, checkFlag(f, spec.Flag(f.Name), r)...)
				continue
			}
			if slices.Contains(groups, f.Group) {
				continue
			}
			groups = append(groups, f.Group)
			failures = append(failures, checkGroup(spec, f.Group, r)...)
		}
	}

	if len(groups) > 0 {
		sort.SliceStable(failures, func(i, j int) bool {
			return catalog.KeyRank(failures[i].Key) < catalog.KeyRank(failures[j].Key)
		})
	}
	return len(failures) == 0, failures
}

func checkRange(f *catalog.Field, rng filter.Range, v data.Num) []Failure {
	if !v.Valid {
		var out []Failure
		if rng.Min.Set {
			out = append(out, Failure{Key: catalog.MinKey(f.Name), Reason: Undefined})
		}
		if rng.Max.Set {
			out = append(out, Failure{Key: catalog.MaxKey(f.Name), Reason: Undefined})
		}
		return out
	}
	if rng.Min.Set && v.Value < rng.Min.Value {
		return []Failure{{Key: catalog.MinKey(f.Name), Reason: BelowMin}}
	}
	if rng.Max.Set && v.Value > rng.Max.Value {
		return []Failure{{Key: catalog.MaxKey(f.Name), Reason: AboveMax}}
	}
	return nil
}

func checkFlag(f *catalog.Field, want filter.Tri, r *data.OptionRecord) []Failure {
	got, ok := f.Flag(r)
	switch {
	case !ok:
		return []Failure{{Key: f.Name, Reason: Undefined}}
	case want == filter.RequireTrue && !got, want == filter.RequireFalse && got:
		return []Failure{{Key: f.Name, Reason: FlagMismatch}}
	}
	return nil
}

func checkGroup(spec *filter.Spec, group string, r *data.OptionRecord) []Failure {
	var (
		out    []Failure
		wanted []*catalog.Field
		anyOK  bool
	)
	for _, m := range catalog.GroupMembers(group) {
		switch spec.Flag(m.Name) {
		case filter.RequireTrue:
			wanted = append(wanted, m)
			if got, ok := m.Flag(r); ok && got {
				anyOK = true
			}
		case filter.RequireFalse:
			out = append(out, checkFlag(m, filter.RequireFalse, r)...)
		}
	}
	if len(wanted) > 0 && !anyOK {
		for _, m := range wanted {
			out = append(out, checkFlag(m, filter.RequireTrue, r)...)
		}
	}
	return out
}
