package value

import (
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
)

// List is the ordered-sequence variant. LenDeps records length dependencies
// picked up from the sources that contributed to this list's length (e.g. a
// directory listing) -- spec.md §3's "len_deps: DPaths".
type List struct {
	base
	Elems   []Value
	LenDeps deppath.DPaths
}

func NewList(elems []Value) List {
	dup := make([]Value, len(elems))
	copy(dup, elems)
	return List{Elems: dup}
}

func (v List) Kind() Kind { return KindList }

func (v List) Len() int { return len(v.Elems) }

func (v List) Fingerprint() fp.Tag {
	t := kindTag(KindList)
	for _, e := range v.Elems {
		t = t.ExtendTag(e.Fingerprint())
	}
	return t
}

func (v List) WithPath(p deppath.Path) Value   { v.base = withPath(v.base, p); return v }
func (v List) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }

// WithLenDeps returns a copy with LenDeps replaced.
func (v List) WithLenDeps(d deppath.DPaths) List {
	v.LenDeps = d
	return v
}

// Append returns a new List with one more element, keeping LenDeps.
func (v List) Append(e Value) List {
	elems := make([]Value, len(v.Elems)+1)
	copy(elems, v.Elems)
	elems[len(elems)-1] = e
	v.Elems = elems
	return v
}
