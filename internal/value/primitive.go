package value

import (
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
)

// NativeFunc is the signature of a primitive's implementation. It is given
// the already-evaluated argument values (in call order) and the context
// the call occurred in (the built-ins in internal/eval do not use it;
// _defined, for example, reads its binding argument's own path to record
// the right kind of dependency). It returns the
// result Value, which the caller merges dependencies into per the usual
// rule ("whenever an operation inspects a feature of a value, it must
// record a dependency of the corresponding kind").
type NativeFunc func(ctx Context, args []Value) (Value, error)

// Primitive is a named built-in function (spec.md §3). Its fingerprint is
// derived purely from its name: primitives are not user-redefinable, so two
// primitives with the same name are always considered identical for
// caching purposes (this matters for PK derivation when a primitive, such
// as run_tool, is itself cacheable).
type Primitive struct {
	base
	Name string
	Fn   NativeFunc
}

func NewPrimitive(name string, fn NativeFunc) Primitive {
	return Primitive{Name: name, Fn: fn}
}

func (v Primitive) Kind() Kind { return KindPrimitive }

func (v Primitive) Fingerprint() fp.Tag {
	return kindTag(KindPrimitive).Extend([]byte(v.Name))
}

func (v Primitive) WithPath(p deppath.Path) Value   { v.base = withPath(v.base, p); return v }
func (v Primitive) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }
