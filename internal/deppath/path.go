// Package deppath implements DepPath and DPaths, the dependency-path model
// described in spec.md §3: a path from a named root through a value, tagged
// by the kind of feature it observes, and sets thereof with the algebra the
// evaluator needs (union, difference, intersection, restrict).
package deppath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nicolagi/vesta/internal/fp"
)

// Kind selects what feature of a subvalue a dependency observes.
type Kind uint8

const (
	// Norm means the dependency is on the value itself.
	Norm Kind = iota
	// Bang means the dependency is on whether a binding key is present.
	Bang
	// Type means the dependency is on the type tag of a value.
	Type
	// ListLen means the dependency is on the length of a list.
	ListLen
	// BindingLen means the dependency is on the length (number of keys) of
	// a binding, or, for a directory-shaped binding under a coarse
	// selector, that the directory as a whole was listed.
	BindingLen
	// Expr means the dependency is on the identity of a closure's body
	// expression (used when folding a Closure argument's expression
	// fingerprint into a primary key).
	Expr
	// Dummy is a placeholder kind used by tests and by the pickler when a
	// path's kind does not matter for re-resolution.
	Dummy
)

func (k Kind) String() string {
	switch k {
	case Norm:
		return "norm"
	case Bang:
		return "bang"
	case Type:
		return "type"
	case ListLen:
		return "list-len"
	case BindingLen:
		return "binding-len"
	case Expr:
		return "expr"
	case Dummy:
		return "dummy"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Arc is one step of a DepPath: either a binding key name or the decimal
// form of a list index, e.g. "##3" for the 4th element of a list (0
// indexed). List positions become arcs this way so that a DepPath's
// arc sequence is always a flat list of strings regardless of whether it
// traverses bindings or lists.
type Arc string

// IndexArc renders a list index as the "##n" arc form.
func IndexArc(i int) Arc {
	return Arc("##" + strconv.Itoa(i))
}

// Index parses an "##n" arc back into an index. ok is false if the arc is
// not of that form (e.g. it is a binding key).
func (a Arc) Index() (i int, ok bool) {
	s := string(a)
	if !strings.HasPrefix(s, "##") {
		return 0, false
	}
	n, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Path is a path from a named root through a value, tagged by kind.
//
// The zero Path has Kind Norm and no arcs: it denotes "the root value
// itself". Path is immutable once constructed: Extend and ExtendPath return
// new values; the DeepCopy method exists for callers that need to mutate an
// arc slice they hold in some other form (e.g. the pickler) without
// affecting the source.
type Path struct {
	Kind Kind
	Arcs []Arc

	// fingerprint, when fingerprintSet is true, is returned by Fingerprint
	// without recomputation. No constructor in this package sets it, so
	// Fingerprint computes the tag on every call.
	fingerprint    fp.Tag
	fingerprintSet bool
}

// New constructs the root path of a given kind.
func New(kind Kind) Path {
	return Path{Kind: kind}
}

// Extend returns a new Path equal to p with one more arc appended, and a
// (possibly different) kind -- most extensions keep Norm until the final
// arc, which carries the kind of the observation being recorded.
func (p Path) Extend(arc Arc, kind Kind) Path {
	arcs := make([]Arc, len(p.Arcs)+1)
	copy(arcs, p.Arcs)
	arcs[len(arcs)-1] = arc
	return Path{Kind: kind, Arcs: arcs}
}

// ExtendLow appends another path's arcs (and adopts its kind), used when
// re-rooting a dependency path through the path of the value it was
// observed at (see FuncDpnd/LetDpnd in the eval package).
func (p Path) ExtendLow(other Path) Path {
	arcs := make([]Arc, 0, len(p.Arcs)+len(other.Arcs))
	arcs = append(arcs, p.Arcs...)
	arcs = append(arcs, other.Arcs...)
	return Path{Kind: other.Kind, Arcs: arcs}
}

// WithKind returns a copy of p with a different kind, same arcs.
func (p Path) WithKind(kind Kind) Path {
	return Path{Kind: kind, Arcs: p.Arcs}
}

// DeepCopy returns an independent copy of p (distinct backing array).
func (p Path) DeepCopy() Path {
	arcs := make([]Arc, len(p.Arcs))
	copy(arcs, p.Arcs)
	return Path{Kind: p.Kind, Arcs: arcs}
}

// Fingerprint returns the order-preserving fingerprint of the arc sequence
// (see the fingerprint field on whether it is cached). Two Paths are Equal iff their fingerprint
// and Kind match (see Equal).
func (p Path) Fingerprint() fp.Tag {
	if p.fingerprintSet {
		return p.fingerprint
	}
	return p.computeFingerprint()
}

func (p Path) computeFingerprint() fp.Tag {
	t := fp.Zero
	for _, a := range p.Arcs {
		t = t.Extend([]byte(a))
	}
	return t
}

// Equal reports whether p and other denote the same dependency: same kind,
// same fingerprint of the arc sequence. This is the equality used to key a
// DPaths set (see spec.md §3, §8 invariant 3).
func (p Path) Equal(other Path) bool {
	return p.Kind == other.Kind && p.Fingerprint() == other.Fingerprint()
}

// FirstArc returns the first arc of the path and whether one exists (a root
// path has none).
func (p Path) FirstArc() (Arc, bool) {
	if len(p.Arcs) == 0 {
		return "", false
	}
	return p.Arcs[0], true
}

// WithoutFirstArc returns a copy of p with the first arc stripped, used by
// the let-collapse rescoping rule.
func (p Path) WithoutFirstArc() Path {
	if len(p.Arcs) == 0 {
		return p
	}
	arcs := make([]Arc, len(p.Arcs)-1)
	copy(arcs, p.Arcs[1:])
	return Path{Kind: p.Kind, Arcs: arcs}
}

// String renders the path as root-relative arcs joined by "/", prefixed by
// the kind when it is not Norm, e.g. "b/f" (Norm) or "bang:b/f" (Bang).
func (p Path) String() string {
	var parts []string
	for _, a := range p.Arcs {
		parts = append(parts, string(a))
	}
	s := strings.Join(parts, "/")
	if p.Kind == Norm {
		return s
	}
	return p.Kind.String() + ":" + s
}
