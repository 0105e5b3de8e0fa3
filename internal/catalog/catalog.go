// Package catalog is the closed registry of screening fields: every
// configuration key the filter accepts, its value type, the data window it
// reads from, and the pure function that extracts it from an option record.
package catalog

import (
	"fmt"

	"github.com/dgnsrekt/options-screener/internal/data"
)

// Kind classifies how a field is constrained.
type Kind int

const (
	KindRange Kind = iota
	KindFlag
	KindTickers
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindFlag:
		return "flag"
	case KindTickers:
		return "tickers"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// ValueType is the declared type of a configuration value.
type ValueType int

const (
	Integer ValueType = iota
	Float
	Boolean
	StringList
	Enum
)

func (t ValueType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	case StringList:
		return "string-list"
	case Enum:
		return "enum"
	default:
		return "unknown"
	}
}

// Window selects which view of a record a field reads.
type Window int

const (
	Current Window = iota
	Dev20d
	Dev100d
)

func (w Window) String() string {
	switch w {
	case Current:
		return "current"
	case Dev20d:
		return "20d"
	case Dev100d:
		return "100d"
	default:
		return "unknown"
	}
}

// Suffix is appended to a metric name to form the windowed field name.
func (w Window) Suffix() string {
	if w == Current {
		return ""
	}
	return "-" + w.String()
}

// Average returns the moving-average snapshot for the window.
func (w Window) Average(r *data.OptionRecord) data.Snapshot {
	switch w {
	case Dev20d:
		return r.Avg20
	case Dev100d:
		return r.Avg100
	default:
		return r.Current()
	}
}

// Role is the part of a field a raw key sets.
type Role int

const (
	RoleValue Role = iota
	RoleMin
	RoleMax
	RoleExclude
)

// Field describes one logical screening field.
type Field struct {
	Name   string
	Kind   Kind
	Type   ValueType
	Window Window
	// Group names the mutually exclusive flag set the field belongs to, if any.
	Group string
	Doc   string

	num  func(*data.OptionRecord) data.Num
	flag func(*data.OptionRecord) (bool, bool)
}

// Num extracts a range field's value. Valid is false when the value is undefined.
func (f *Field) Num(r *data.OptionRecord) data.Num {
	if f.num == nil {
		return data.NA
	}
	return f.num(r)
}

// Flag extracts a flag field's value. The second result is false when undefined.
func (f *Field) Flag(r *data.OptionRecord) (bool, bool) {
	if f.flag == nil {
		return false, false
	}
	return f.flag(r)
}

// Keys returns the raw configuration keys for the field, in catalog order.
func (f *Field) Keys() []string {
	switch f.Kind {
	case KindRange:
		return []string{MinKey(f.Name), MaxKey(f.Name)}
	case KindTickers:
		return []string{f.Name, ExcludeKey}
	default:
		return []string{f.Name}
	}
}

func MinKey(name string) string { return "min-" + name }
func MaxKey(name string) string { return "max-" + name }

// Descriptor is what a raw configuration key resolves to.
type Descriptor struct {
	Key   string
	Field *Field
	Role  Role
	// Type is the declared type of this key's value. It differs from the field's
	// type only for the exclude modifier of the ticker field.
	Type ValueType
}

const (
	TickersKey = "tickers"
	ExcludeKey = "exclude"
	OrderByKey = "order-by"
	LimitKey   = "limit"
)

var (
	fields  []*Field
	byName  = map[string]*Field{}
	byKey   = map[string]Descriptor{}
	keys    []string
	keyRank = map[string]int{}
)

func init() {
	for _, f := range definitions() {
		register(f)
	}
	registerSortKeys()
}

func register(f *Field) {
	if _, dup := byName[f.Name]; dup {
		panic(fmt.Sprintf("catalog: duplicate field %q", f.Name))
	}
	byName[f.Name] = f
	fields = append(fields, f)

	for _, key := range f.Keys() {
		if _, dup := byKey[key]; dup {
			panic(fmt.Sprintf("catalog: duplicate key %q", key))
		}
		d := Descriptor{Key: key, Field: f, Role: RoleValue, Type: f.Type}
		switch {
		case f.Kind == KindRange && key == MinKey(f.Name):
			d.Role = RoleMin
		case f.Kind == KindRange:
			d.Role = RoleMax
		case f.Kind == KindTickers && key == ExcludeKey:
			d.Role = RoleExclude
			d.Type = Boolean
		}
		byKey[key] = d
		keyRank[key] = len(keys)
		keys = append(keys, key)
	}
}

// Resolve looks up a raw configuration key.
func Resolve(key string) (Descriptor, bool) {
	d, ok := byKey[key]
	return d, ok
}

// Lookup returns a field by its logical name.
func Lookup(name string) (*Field, bool) {
	f, ok := byName[name]
	return f, ok
}

// Fields returns every field in catalog order.
func Fields() []*Field {
	out := make([]*Field, len(fields))
	copy(out, fields)
	return out
}

// Keys returns every raw configuration key in catalog order.
func Keys() []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// KeyRank is the position of key in Keys(). Unknown keys sort after every known key.
func KeyRank(key string) int {
	if r, ok := keyRank[key]; ok {
		return r
	}
	return len(keys)
}

// GroupMembers returns the flag fields of an exclusive group, in catalog order.
func GroupMembers(group string) []*Field {
	var out []*Field
	for _, f := range fields {
		if f.Kind == KindFlag && f.Group == group {
			out = append(out, f)
		}
	}
	return out
}
