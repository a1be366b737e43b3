// Package ast defines the surface-syntax AST nodes the evaluator walks
// (spec.md component 5, "Expr + Evaluator"). Per spec.md §1, the lexer and
// parser proper are treated as an external collaborator; this package owns
// only the tree shape plus a minimal hand-written parser (parser.go) good
// enough to exercise the evaluator end-to-end in tests, not a production
// surface-syntax implementation.
package ast

import "github.com/nicolagi/vesta/internal/fp"

// Location records where in the surface syntax a node came from, for error
// messages and stack traces (spec.md component 5).
type Location struct {
	File string
	Line int
}

// Expr is the common interface of every AST node.
type Expr interface {
	Loc() Location
	fingerprintNode() fp.Tag
}

// Fingerprint computes the structural identity of an expression tree: two
// syntactically identical expressions (independent of source location)
// fingerprint equal. This is what backs Closure identity (spec.md §4.1) and
// the "special model" PK rule (SPEC_FULL §4).
func Fingerprint(e Expr) fp.Tag {
	if e == nil {
		return fp.Zero
	}
	return e.fingerprintNode()
}

type node struct {
	loc Location
}

func (n node) Loc() Location { return n.loc }

// BoolLit is a boolean literal constant.
type BoolLit struct {
	node
	Value bool
}

func NewBoolLit(loc Location, v bool) *BoolLit { return &BoolLit{node: node{loc}, Value: v} }

func (n *BoolLit) fingerprintNode() fp.Tag {
	b := byte(0)
	if n.Value {
		b = 1
	}
	return kindTag(kBool).Extend([]byte{b})
}

// IntLit is a 32-bit integer literal constant.
type IntLit struct {
	node
	Value int32
}

func NewIntLit(loc Location, v int32) *IntLit { return &IntLit{node: node{loc}, Value: v} }

func (n *IntLit) fingerprintNode() fp.Tag {
	return kindTag(kInt).Extend([]byte{byte(n.Value >> 24), byte(n.Value >> 16), byte(n.Value >> 8), byte(n.Value)})
}

// TextLit is a literal string constant.
type TextLit struct {
	node
	Value string
}

func NewTextLit(loc Location, v string) *TextLit { return &TextLit{node: node{loc}, Value: v} }

func (n *TextLit) fingerprintNode() fp.Tag {
	return kindTag(kText).Extend([]byte(n.Value))
}

// Name is an identifier reference, resolved against the Context at eval
// time (spec.md §4.2 "Name").
type Name struct {
	node
	Ident string
}

func NewName(loc Location, ident string) *Name { return &Name{node: node{loc}, Ident: ident} }

func (n *Name) fingerprintNode() fp.Tag {
	return kindTag(kName).Extend([]byte(n.Ident))
}

// If is a conditional (spec.md §4.2 "If").
type If struct {
	node
	Test, Then, Else Expr
}

func NewIf(loc Location, test, then, els Expr) *If {
	return &If{node: node{loc}, Test: test, Then: then, Else: els}
}

func (n *If) fingerprintNode() fp.Tag {
	return kindTag(kIf).ExtendTag(Fingerprint(n.Test)).ExtendTag(Fingerprint(n.Then)).ExtendTag(Fingerprint(n.Else))
}

// BindingEntry is one key=value pair of a binding literal. If NameExpr is
// non-nil the key is computed (the surface syntax's "%expr%" form) and must
// evaluate to Text; otherwise Name is the static key.
type BindingEntry struct {
	Name     string
	NameExpr Expr
	Value    Expr
}

// BindingLit is a binding-literal construction "[k1=v1, ...]" (spec.md
// §4.2).
type BindingLit struct {
	node
	Entries []BindingEntry
}

func NewBindingLit(loc Location, entries []BindingEntry) *BindingLit {
	return &BindingLit{node: node{loc}, Entries: entries}
}

func (n *BindingLit) fingerprintNode() fp.Tag {
	t := kindTag(kBindingLit)
	for _, e := range n.Entries {
		if e.NameExpr != nil {
			t = t.Extend([]byte{1}).ExtendTag(Fingerprint(e.NameExpr))
		} else {
			t = t.Extend([]byte{0}).Extend([]byte(e.Name))
		}
		t = t.ExtendTag(Fingerprint(e.Value))
	}
	return t
}

// ListLit is a list-literal construction "<e1, ...>" (spec.md §4.2).
type ListLit struct {
	node
	Elems []Expr
}

func NewListLit(loc Location, elems []Expr) *ListLit { return &ListLit{node: node{loc}, Elems: elems} }

func (n *ListLit) fingerprintNode() fp.Tag {
	t := kindTag(kListLit)
	for _, e := range n.Elems {
		t = t.ExtendTag(Fingerprint(e))
	}
	return t
}

// Select is "b/f" (Bang=false) or "b!f" (Bang=true) (spec.md §4.2).
type Select struct {
	node
	Target Expr
	Field  string
	Bang   bool
}

func NewSelect(loc Location, target Expr, field string, bang bool) *Select {
	return &Select{node: node{loc}, Target: target, Field: field, Bang: bang}
}

func (n *Select) fingerprintNode() fp.Tag {
	bang := byte(0)
	if n.Bang {
		bang = 1
	}
	return kindTag(kSelect).ExtendTag(Fingerprint(n.Target)).Extend([]byte(n.Field)).Extend([]byte{bang})
}

// Arg is one actual argument of an Apply: Name is empty for a positional
// argument (matched to the formal parameter list in declaration order).
type Arg struct {
	Name  string
	Value Expr
}

// Apply is "f(args)" (spec.md §4.2): f may evaluate to a Closure, a Model,
// or a Primitive.
type Apply struct {
	node
	Func Expr
	Args []Arg
}

func NewApply(loc Location, fn Expr, args []Arg) *Apply {
	return &Apply{node: node{loc}, Func: fn, Args: args}
}

func (n *Apply) fingerprintNode() fp.Tag {
	t := kindTag(kApply).ExtendTag(Fingerprint(n.Func))
	for _, a := range n.Args {
		t = t.Extend([]byte(a.Name)).ExtendTag(Fingerprint(a.Value))
	}
	return t
}

// Stmt is one "name = expr;" statement inside a Block.
type Stmt struct {
	Name  string
	Value Expr
}

// Block is "{stmts; value e}" (spec.md §4.2).
type Block struct {
	node
	Stmts []Stmt
	Value Expr
}

func NewBlock(loc Location, stmts []Stmt, value Expr) *Block {
	return &Block{node: node{loc}, Stmts: stmts, Value: value}
}

func (n *Block) fingerprintNode() fp.Tag {
	t := kindTag(kBlock)
	for _, s := range n.Stmts {
		t = t.Extend([]byte(s.Name)).ExtendTag(Fingerprint(s.Value))
	}
	return t.ExtendTag(Fingerprint(n.Value))
}

// Iterate is "foreach x in e do {...}" (spec.md §4.2).
type Iterate struct {
	node
	Var    string
	Source Expr
	Body   Expr
}

func NewIterate(loc Location, v string, source, body Expr) *Iterate {
	return &Iterate{node: node{loc}, Var: v, Source: source, Body: body}
}

func (n *Iterate) fingerprintNode() fp.Tag {
	return kindTag(kIterate).Extend([]byte(n.Var)).ExtendTag(Fingerprint(n.Source)).ExtendTag(Fingerprint(n.Body))
}

// Param is one formal parameter of a FunctionLiteral. PragmaPK marks a
// parameter that must fold into the primary key even when it would not
// otherwise qualify as "simple-typed" (spec.md §4.3's "each pragma-`pk`
// arg").
type Param struct {
	Name     string
	PragmaPK bool
}

// FunctionLiteral is a function definition (spec.md §4.2 "Function
// literal"). Name is non-empty, and Recursive true, for a named function
// that may refer to itself in its own body.
type FunctionLiteral struct {
	node
	Params    []Param
	Body      Expr
	Name      string
	Recursive bool
}

func NewFunctionLiteral(loc Location, params []Param, body Expr, name string, recursive bool) *FunctionLiteral {
	return &FunctionLiteral{node: node{loc}, Params: params, Body: body, Name: name, Recursive: recursive}
}

func (n *FunctionLiteral) fingerprintNode() fp.Tag {
	t := kindTag(kFunctionLit)
	for _, p := range n.Params {
		pragma := byte(0)
		if p.PragmaPK {
			pragma = 1
		}
		t = t.Extend([]byte(p.Name)).Extend([]byte{pragma})
	}
	return t.ExtendTag(Fingerprint(n.Body))
}

// BodyFingerprint satisfies value.Body, so a FunctionLiteral can back a
// value.Closure without this package importing value.
func (n *FunctionLiteral) BodyFingerprint() fp.Tag {
	return Fingerprint(n)
}

// ModelLiteral is a model reference (spec.md §4.2 "Model literal"); PathExpr
// must evaluate to Text naming the model file, resolved against the
// enclosing repository root.
type ModelLiteral struct {
	node
	PathExpr Expr
}

func NewModelLiteral(loc Location, pathExpr Expr) *ModelLiteral {
	return &ModelLiteral{node: node{loc}, PathExpr: pathExpr}
}

func (n *ModelLiteral) fingerprintNode() fp.Tag {
	return kindTag(kModelLit).ExtendTag(Fingerprint(n.PathExpr))
}

// UnaryOp is "!e" or "-e".
type UnaryOp struct {
	node
	Op string
	X  Expr
}

func NewUnaryOp(loc Location, op string, x Expr) *UnaryOp {
	return &UnaryOp{node: node{loc}, Op: op, X: x}
}

func (n *UnaryOp) fingerprintNode() fp.Tag {
	return kindTag(kUnaryOp).Extend([]byte(n.Op)).ExtendTag(Fingerprint(n.X))
}

// BinaryOp is one of +, -, *, ++, ==, !=, <, <=, >, >=, &&, ||, =>.
type BinaryOp struct {
	node
	Op   string
	L, R Expr
}

func NewBinaryOp(loc Location, op string, l, r Expr) *BinaryOp {
	return &BinaryOp{node: node{loc}, Op: op, L: l, R: r}
}

func (n *BinaryOp) fingerprintNode() fp.Tag {
	return kindTag(kBinaryOp).Extend([]byte(n.Op)).ExtendTag(Fingerprint(n.L)).ExtendTag(Fingerprint(n.R))
}

type nodeKind byte

const (
	kBool nodeKind = iota
	kInt
	kText
	kName
	kIf
	kBindingLit
	kListLit
	kSelect
	kApply
	kBlock
	kIterate
	kFunctionLit
	kModelLit
	kUnaryOp
	kBinaryOp
)

func kindTag(k nodeKind) fp.Tag {
	return fp.Zero.Extend([]byte{byte(k)})
}
