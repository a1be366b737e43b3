package value

import (
	"encoding/binary"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
)

// Boolean is the Boolean variant.
type Boolean struct {
	base
	Value bool
}

func NewBoolean(b bool) Boolean { return Boolean{Value: b} }

func (v Boolean) Kind() Kind { return KindBoolean }

func (v Boolean) Fingerprint() fp.Tag {
	b := byte(0)
	if v.Value {
		b = 1
	}
	return kindTag(KindBoolean).Extend([]byte{b})
}

func (v Boolean) WithPath(p deppath.Path) Value { v.base = withPath(v.base, p); return v }
func (v Boolean) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }

// Integer is the Integer variant. Arithmetic overflow on the operators
// defined by the evaluator (+, -, *) is an error, per spec.md §3; Integer
// itself just carries the 32-bit value.
type Integer struct {
	base
	Value int32
}

func NewInteger(i int32) Integer { return Integer{Value: i} }

func (v Integer) Kind() Kind { return KindInteger }

func (v Integer) Fingerprint() fp.Tag {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v.Value))
	return kindTag(KindInteger).Extend(b[:])
}

func (v Integer) WithPath(p deppath.Path) Value { v.base = withPath(v.base, p); return v }
func (v Integer) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }

// Fp wraps a bare fingerprint, used during cache readback (spec.md §3) when
// a pickled payload needs to flow through the evaluator as a Value before
// being matched against a fresh fingerprint computation.
type Fp struct {
	base
	Value fp.Tag
}

func NewFp(t fp.Tag) Fp { return Fp{Value: t} }

func (v Fp) Kind() Kind { return KindFp }

func (v Fp) Fingerprint() fp.Tag {
	return kindTag(KindFp).ExtendTag(v.Value)
}

func (v Fp) WithPath(p deppath.Path) Value { v.base = withPath(v.base, p); return v }
func (v Fp) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }

// Unbound only appears inside lookup failures (spec.md §3): it is never a
// "real" result of a successful evaluation, only a marker value carried
// alongside an Error so diagnostics can report what was being looked up.
type Unbound struct {
	base
	Name string
}

func NewUnbound(name string) Unbound { return Unbound{Name: name} }

func (v Unbound) Kind() Kind { return KindUnbound }

func (v Unbound) Fingerprint() fp.Tag {
	return kindTag(KindUnbound).Extend([]byte(v.Name))
}

func (v Unbound) WithPath(p deppath.Path) Value { v.base = withPath(v.base, p); return v }
func (v Unbound) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }
