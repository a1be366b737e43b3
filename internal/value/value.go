// Package value implements the Value sum type described in spec.md §3: the
// runtime values the evaluator produces, each carrying an optional path
// (this value is what lives at that path in its defining environment) and a
// set of additional dependency observations (deps).
package value

import (
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
)

// Kind discriminates the Value variants of spec.md §3's data model table.
type Kind uint8

const (
	KindBoolean Kind = iota
	KindInteger
	KindText
	KindList
	KindBinding
	KindClosure
	KindModel
	KindPrimitive
	KindError
	KindFp
	KindUnbound
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindBinding:
		return "binding"
	case KindClosure:
		return "closure"
	case KindModel:
		return "model"
	case KindPrimitive:
		return "primitive"
	case KindError:
		return "error"
	case KindFp:
		return "fp"
	case KindUnbound:
		return "unbound"
	default:
		return "unknown"
	}
}

// Value is the common interface implemented by every variant. Values are
// immutable once constructed: With* methods return a modified copy, never
// mutate the receiver, so that sharing a Value across contexts and threads
// is always safe (spec.md §9 "deep value sharing").
type Value interface {
	Kind() Kind

	// Path returns the path this value is recorded as living at, if any.
	Path() (deppath.Path, bool)

	// Deps returns the set of additional dependency observations beyond
	// the structural dependency on Path (if any).
	Deps() deppath.DPaths

	// WithPath returns a copy of the value with its path replaced.
	WithPath(p deppath.Path) Value

	// WithDeps returns a copy of the value with its deps replaced wholesale.
	WithDeps(d deppath.DPaths) Value

	// Fingerprint returns the content fingerprint of the value: variant
	// tag plus payload. No variant caches it; Closure, List and Binding
	// recompute it from their parts on every call.
	Fingerprint() fp.Tag
}

// base is embedded by every concrete Value variant to provide the path/deps
// bookkeeping uniformly.
type base struct {
	path    deppath.Path
	hasPath bool
	deps    deppath.DPaths
}

func (b base) Path() (deppath.Path, bool) {
	return b.path, b.hasPath
}

func (b base) Deps() deppath.DPaths {
	return b.deps
}

func withPath(b base, p deppath.Path) base {
	b.path = p
	b.hasPath = true
	return b
}

func withDeps(b base, d deppath.DPaths) base {
	b.deps = d
	return b
}

// kindTag returns a fingerprint seed unique to a Kind, so that e.g. an empty
// Binding and an empty List never collide.
func kindTag(k Kind) fp.Tag {
	return fp.Zero.Extend([]byte{byte(k)})
}
