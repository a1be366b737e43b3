package value

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
)

// Field is one (name, value) pair of a Binding.
type Field struct {
	Name  string
	Value Value
}

// Binding is the ordered-map variant: an ordered list of (Name, Value)
// pairs with no duplicate names (spec.md §3). Order is insertion order and
// is preserved across merges/overlays per spec.md §8 invariant 4.
type Binding struct {
	base
	Fields  []Field
	LenDeps deppath.DPaths
}

// NewBinding constructs a Binding from fields already known to have unique
// names, in the given order. Use Insert for duplicate-checked construction.
func NewBinding(fields []Field) Binding {
	dup := make([]Field, len(fields))
	copy(dup, fields)
	return Binding{Fields: dup}
}

func (v Binding) Kind() Kind { return KindBinding }

// Lookup performs the first-match scan spec.md §3 describes (Binding
// preserves insertion order; lookups scan that order). Field names are
// unique by invariant, so first-match is also only-match in a well-formed
// Binding.
func (v Binding) Lookup(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether name is a member, without needing the value.
func (v Binding) Has(name string) bool {
	_, ok := v.Lookup(name)
	return ok
}

// Insert returns a new Binding with (name, val) appended. ok is false
// (and v is returned unchanged) if name is already a member -- the
// evaluator turns that into a duplicate-key Error at the call site.
func (v Binding) Insert(name string, val Value) (Binding, bool) {
	if v.Has(name) {
		return v, false
	}
	fields := make([]Field, len(v.Fields)+1)
	copy(fields, v.Fields)
	fields[len(fields)-1] = Field{Name: name, Value: val}
	v.Fields = fields
	return v, true
}

// Overlay implements simple overlay ("+" on Binding, spec.md §4.2): lhs
// fields keep their order and values are replaced by rhs where names
// match; new rhs-only keys are appended in rhs order (spec.md §8 invariant
// 4).
func (v Binding) Overlay(rhs Binding) Binding {
	out := make([]Field, len(v.Fields))
	copy(out, v.Fields)
	index := make(map[string]int, len(out))
	for i, f := range out {
		index[f.Name] = i
	}
	for _, f := range rhs.Fields {
		if i, ok := index[f.Name]; ok {
			out[i].Value = f.Value
		} else {
			index[f.Name] = len(out)
			out = append(out, f)
		}
	}
	v.Fields = out
	return v
}

// RecursiveOverride implements "++" on Binding (spec.md §4.2): like
// Overlay, but when both sides have a Binding at the same key, the override
// recurses on that key instead of replacing wholesale.
func (v Binding) RecursiveOverride(rhs Binding) Binding {
	out := make([]Field, len(v.Fields))
	copy(out, v.Fields)
	index := make(map[string]int, len(out))
	for i, f := range out {
		index[f.Name] = i
	}
	for _, f := range rhs.Fields {
		i, exists := index[f.Name]
		if !exists {
			index[f.Name] = len(out)
			out = append(out, f)
			continue
		}
		lhsVal := out[i].Value
		lb, lok := lhsVal.(Binding)
		rb, rok := f.Value.(Binding)
		if lok && rok {
			out[i].Value = lb.RecursiveOverride(rb)
		} else {
			out[i].Value = f.Value
		}
	}
	v.Fields = out
	return v
}

func (v Binding) Fingerprint() fp.Tag {
	t := kindTag(KindBinding)
	for _, f := range v.Fields {
		t = t.Extend([]byte(f.Name)).ExtendTag(f.Value.Fingerprint())
	}
	return t
}

func (v Binding) WithPath(p deppath.Path) Value   { v.base = withPath(v.base, p); return v }
func (v Binding) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }

// WithLenDeps returns a copy with LenDeps replaced.
func (v Binding) WithLenDeps(d deppath.DPaths) Binding {
	v.LenDeps = d
	return v
}

func (v Binding) String() string {
	return fmt.Sprintf("Binding(%d fields)", len(v.Fields))
}
