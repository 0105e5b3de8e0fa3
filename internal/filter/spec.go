package filter

import (
	"sort"

	"github.com/dgnsrekt/options-screener/internal/catalog"
	"github.com/dgnsrekt/options-screener/internal/data"
)

const (
	// MaxLimit is the hard ceiling on the number of ranked results.
	MaxLimit     = 50
	DefaultLimit = 10
)

// Bound is one side of a range. An unset bound is open.
type Bound struct {
	Value float64
	Set   bool
}

// Range constrains a numeric field to [Min, Max], inclusive on each set bound.
type Range struct {
	Min Bound
	Max Bound
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	if r.Min.Set && v < r.Min.Value {
		return false
	}
	if r.Max.Set && v > r.Max.Value {
		return false
	}
	return true
}

// Active reports whether either bound is set.
func (r Range) Active() bool {
	return r.Min.Set || r.Max.Set
}

// Tri is a tri-state boolean constraint.
type Tri int

const (
	Unset Tri = iota
	RequireTrue
	RequireFalse
)

func (t Tri) String() string {
	switch t {
	case RequireTrue:
		return "true"
	case RequireFalse:
		return "false"
	default:
		return "unset"
	}
}

// Tickers is the include/exclude symbol set.
type Tickers struct {
	Symbols []string
	Exclude bool
	set     map[string]struct{}
}

// Active reports whether the ticker set restricts anything.
func (t Tickers) Active() bool {
	return len(t.Symbols) > 0
}

// Allows reports whether ticker passes the set. Membership must equal !Exclude.
// Matching ignores case and surrounding space.
func (t Tickers) Allows(ticker string) bool {
	if !t.Active() {
		return true
	}
	_, member := t.set[data.NormalizeTicker(ticker)]
	return member != t.Exclude
}

func newTickers(symbols []string, exclude bool) Tickers {
	set := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, dup := set[s]; dup {
			continue
		}
		set[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return Tickers{Symbols: out, Exclude: exclude, set: set}
}

// Spec is a parsed, validated filter. It is immutable and safe to share across goroutines.
type Spec struct {
	ranges  map[string]Range
	flags   map[string]Tri
	tickers Tickers
	order   catalog.SortKey
	limit   int

	constrained []*catalog.Field
}

// Range returns the constraint on a range field by logical name.
func (s *Spec) Range(name string) (Range, bool) {
	r, ok := s.ranges[name]
	return r, ok
}

// Flag returns the tri-state constraint on a flag field by logical name.
func (s *Spec) Flag(name string) Tri {
	return s.flags[name]
}

func (s *Spec) Tickers() Tickers { return s.tickers }

func (s *Spec) Order() catalog.SortKey { return s.order }

func (s *Spec) Limit() int { return s.limit }

// Constrained returns the fields carrying an active constraint, in catalog order.
// The slice is shared and must not be modified.
func (s *Spec) Constrained() []*catalog.Field {
	return s.constrained
}

func (s *Spec) collectConstrained() []*catalog.Field {
	var out []*catalog.Field
	for _, f := range catalog.Fields() {
		switch f.Kind {
		case catalog.KindRange:
			if r, ok := s.ranges[f.Name]; ok && r.Active() {
				out = append(out, f)
			}
		case catalog.KindFlag:
			if s.flags[f.Name] != Unset {
				out = append(out, f)
			}
		case catalog.KindTickers:
			if s.tickers.Active() {
				out = append(out, f)
			}
		}
	}
	return out
}

// Empty returns a spec with no constraints, default ordering and default limit.
func Empty() *Spec {
	return &Spec{
		ranges: map[string]Range{},
		flags:  map[string]Tri{},
		order:  catalog.DefaultSort(),
		limit:  DefaultLimit,
	}
}
