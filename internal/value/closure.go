package value

import (
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
)

// Body is the minimal view a Closure needs of its function-literal AST
// node: enough to fingerprint the closure without the value package having
// to import the ast package (which would create an import cycle, since ast
// nodes are evaluated by the eval package using both ast and value). Any
// *ast.FunctionLiteral (or similar node) satisfies this interface simply by
// having a BodyFingerprint method; see eval.Eval's type assertion back to
// the concrete ast type when it actually needs to run the body.
type Body interface {
	BodyFingerprint() fp.Tag
}

// Closure is (function-AST, captured-context-minus-own-name), per the
// glossary. OwnName is kept so that the evaluator can re-install the
// self-binding at invocation time (spec.md §9).
type Closure struct {
	base
	Params   []string
	Body     Body
	Captured Context
	OwnName  string
	// Recursive records whether the closure was defined with a name that
	// can appear free in its own body (a top-level named function), which
	// the pickler needs to know to re-tie the knot on unpickle.
	Recursive bool
}

func NewClosure(params []string, body Body, captured Context, ownName string, recursive bool) Closure {
	return Closure{Params: params, Body: body, Captured: captured.Without(ownName), OwnName: ownName, Recursive: recursive}
}

func (v Closure) Kind() Kind { return KindClosure }

// Fingerprint combines the body's identity with the captured context
// (names and value fingerprints, in context order), per spec.md §4.1:
// "fingerprint = H(closure_expr) + H(captured_context_minus_own_name)".
func (v Closure) Fingerprint() fp.Tag {
	t := kindTag(KindClosure).ExtendTag(v.Body.BodyFingerprint())
	for _, name := range v.Captured.Names() {
		val, _ := v.Captured.Lookup(name)
		t = t.Extend([]byte(name)).ExtendTag(val.Fingerprint())
	}
	return t
}

func (v Closure) WithPath(p deppath.Path) Value   { v.base = withPath(v.base, p); return v }
func (v Closure) WithDeps(d deppath.DPaths) Value { v.base = withDeps(v.base, d); return v }
