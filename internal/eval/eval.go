// Package eval implements the Evaluator half of spec.md component 5: a
// type-switch interpreter over internal/ast trees that produces
// internal/value Values, threading dependency tracking through every
// operation per spec.md §3's "merge rule" ("whenever an operation inspects a
// feature of a value, it must record a dependency of the corresponding
// kind").
package eval

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/applycache"
	"github.com/nicolagi/vesta/internal/ast"
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/value"
)

// ModelLoader resolves a model literal's path expression to a parsed Model
// value. The concrete implementation lives in the repo package; Evaluator
// depends only on this interface, so eval does not need to import repo.
type ModelLoader interface {
	LoadModel(ctx value.Context, path value.Value) (value.Model, error)
	ParseModel(m value.Model) (ast.Expr, error)
}

// Evaluator holds everything Eval needs beyond the expression and context:
// the primitive table (built-ins plus whatever the driver registers, e.g.
// run_tool) and the model loader. Zero value is not usable; use New.
type Evaluator struct {
	Primitives map[string]value.Primitive
	Models     ModelLoader

	// MaxThreads bounds par_map concurrency (spec.md's -maxthreads flag).
	MaxThreads int

	// Cache, when non-nil, routes every Closure/Model/run_tool application
	// through the ApplyCache memoization protocol (spec.md §4.3) instead of
	// evaluating the body unconditionally on every call; see WithCache.
	// TD is this evaluator's ThreadData for orphan-CI bookkeeping, spawned
	// alongside Cache and required whenever Cache is set.
	Cache *applycache.Driver
	TD    *applycache.ThreadData
}

// New constructs an Evaluator with the built-in pure primitives registered
// (spec.md §3's "a fixed table of named built-ins"; see prims.go). Callers
// add domain primitives such as run_tool with Register.
func New(models ModelLoader) *Evaluator {
	e := &Evaluator{Primitives: make(map[string]value.Primitive), Models: models, MaxThreads: 8}
	registerBuiltins(e)
	return e
}

// Register adds or replaces a primitive by name.
func (e *Evaluator) Register(p value.Primitive) {
	e.Primitives[p.Name] = p
}

// Eval evaluates expr in ctx, producing a Value whose Deps reflect every
// dependency the computation observed along the way (spec.md §3, §4.2).
func (e *Evaluator) Eval(ctx value.Context, expr ast.Expr) (value.Value, error) {
	switch n := expr.(type) {
	case *ast.BoolLit:
		return value.NewBoolean(n.Value), nil
	case *ast.IntLit:
		return value.NewInteger(n.Value), nil
	case *ast.TextLit:
		return value.NewInlineText([]byte(n.Value)), nil
	case *ast.Name:
		return e.evalName(ctx, n)
	case *ast.If:
		return e.evalIf(ctx, n)
	case *ast.BindingLit:
		return e.evalBindingLit(ctx, n)
	case *ast.ListLit:
		return e.evalListLit(ctx, n)
	case *ast.Select:
		return e.evalSelect(ctx, n)
	case *ast.Apply:
		return e.evalApply(ctx, n)
	case *ast.Block:
		return e.evalBlock(ctx, n)
	case *ast.Iterate:
		return e.evalIterate(ctx, n)
	case *ast.FunctionLiteral:
		return e.evalFunctionLiteral(ctx, n)
	case *ast.ModelLiteral:
		return e.evalModelLiteral(ctx, n)
	case *ast.UnaryOp:
		return e.evalUnaryOp(ctx, n)
	case *ast.BinaryOp:
		return e.evalBinaryOp(ctx, n)
	default:
		return nil, fmt.Errorf("eval.Eval: unhandled node type %T", expr)
	}
}

func (e *Evaluator) evalName(ctx value.Context, n *ast.Name) (value.Value, error) {
	v, ok := ctx.Lookup(n.Ident)
	if !ok {
		return value.NewFatalError(value.ClassDomain, "name not bound: %s", n.Ident), fmt.Errorf("eval.evalName: %s not bound", n.Ident)
	}
	return v, nil
}

func (e *Evaluator) evalIf(ctx value.Context, n *ast.If) (value.Value, error) {
	test, err := e.Eval(ctx, n.Test)
	if err != nil {
		return test, err
	}
	b, ok := test.(value.Boolean)
	if !ok {
		return value.NewError(value.ClassType, "if: condition is not a boolean"), nil
	}
	var branch ast.Expr
	if b.Value {
		branch = n.Then
	} else {
		branch = n.Else
	}
	out, err := e.Eval(ctx, branch)
	if err != nil {
		return out, err
	}
	return value.Merge(out, test), nil
}

func (e *Evaluator) evalBindingLit(ctx value.Context, n *ast.BindingLit) (value.Value, error) {
	b := value.NewBinding(nil)
	var deps deppath.DPaths
	for _, entry := range n.Entries {
		name := entry.Name
		if entry.NameExpr != nil {
			keyVal, err := e.Eval(ctx, entry.NameExpr)
			if err != nil {
				return keyVal, err
			}
			t, ok := keyVal.(value.Text)
			if !ok || !t.HasInline() {
				return value.NewError(value.ClassType, "binding literal: computed key is not inline text"), nil
			}
			name = string(t.Inline())
			deps = deps.Union(keyVal.Deps())
		}
		val, err := e.Eval(ctx, entry.Value)
		if err != nil {
			return val, err
		}
		deps = deps.Union(val.Deps())
		if p, ok := val.Path(); ok {
			deps = deps.Put(p, val)
		}
		var ok bool
		b, ok = b.Insert(name, val.WithDeps(deppath.DPaths{}))
		if !ok {
			return value.NewError(value.ClassDomain, "binding literal: duplicate key %q", name), nil
		}
	}
	return b.WithDeps(deps), nil
}

func (e *Evaluator) evalListLit(ctx value.Context, n *ast.ListLit) (value.Value, error) {
	elems := make([]value.Value, 0, len(n.Elems))
	var deps deppath.DPaths
	for _, x := range n.Elems {
		v, err := e.Eval(ctx, x)
		if err != nil {
			return v, err
		}
		deps = deps.Union(v.Deps())
		elems = append(elems, v)
	}
	return value.NewList(elems).WithDeps(deps), nil
}

func (e *Evaluator) evalSelect(ctx value.Context, n *ast.Select) (value.Value, error) {
	target, err := e.Eval(ctx, n.Target)
	if err != nil {
		return target, err
	}
	b, ok := target.(value.Binding)
	if !ok {
		return value.NewError(value.ClassType, "select: target is not a binding"), nil
	}
	field, present := b.Lookup(n.Field)
	if n.Bang {
		// b!f observes only presence (spec.md §4.2), kind=Bang.
		out := value.NewBoolean(present)
		root, hasPath := b.Path()
		if hasPath {
			out = out.WithDeps(out.Deps().Put(root.Extend(deppath.Arc(n.Field), deppath.Bang), field)).(value.Boolean)
		}
		return value.Merge(out, b), nil
	}
	if !present {
		return value.NewError(value.ClassDomain, "select: field %q not present", n.Field), nil
	}
	out := value.Extend(b, field, deppath.Arc(n.Field), deppath.Norm, false)
	return out, nil
}

func (e *Evaluator) evalBlock(ctx value.Context, n *ast.Block) (value.Value, error) {
	local := ctx
	var deps deppath.DPaths
	for _, s := range n.Stmts {
		v, err := e.Eval(local, s.Value)
		if err != nil {
			return v, err
		}
		deps = deps.Union(v.Deps())
		if p, ok := v.Path(); ok {
			deps = deps.Put(p, v)
		}
		local = local.Extend(s.Name, v)
	}
	out, err := e.Eval(local, n.Value)
	if err != nil {
		return out, err
	}
	return out.WithDeps(out.Deps().Union(deps)), nil
}

func (e *Evaluator) evalIterate(ctx value.Context, n *ast.Iterate) (value.Value, error) {
	src, err := e.Eval(ctx, n.Source)
	if err != nil {
		return src, err
	}
	list, ok := src.(value.List)
	if !ok {
		return value.NewError(value.ClassType, "foreach: source is not a list"), nil
	}
	out := make([]value.Value, 0, list.Len())
	var deps deppath.DPaths
	for i, el := range list.Elems {
		elv := value.Extend(list, el, deppath.IndexArc(i), deppath.Norm, false)
		iterCtx := ctx.Extend(n.Var, elv)
		v, err := e.Eval(iterCtx, n.Body)
		if err != nil {
			return v, err
		}
		deps = deps.Union(v.Deps())
		out = append(out, v)
	}
	result := value.NewList(out).WithDeps(deps)
	return value.MergeAndLen(result, list), nil
}

func (e *Evaluator) evalFunctionLiteral(ctx value.Context, n *ast.FunctionLiteral) (value.Value, error) {
	names := make([]string, len(n.Params))
	for i, p := range n.Params {
		names[i] = p.Name
	}
	captured := ctx
	if n.Recursive && n.Name != "" {
		captured = captured.Without(n.Name)
	}
	// NewClosure itself also snips OwnName out of the captured context; the
	// self-binding is re-installed at call time in applyClosure, so the
	// closure's Fingerprint never depends on itself.
	return value.NewClosure(names, n, captured, n.Name, n.Recursive), nil
}

func (e *Evaluator) evalModelLiteral(ctx value.Context, n *ast.ModelLiteral) (value.Value, error) {
	if e.Models == nil {
		return value.NewFatalError(value.ClassConfig, "model literal: no model loader configured"), fmt.Errorf("eval.evalModelLiteral: nil ModelLoader")
	}
	pathVal, err := e.Eval(ctx, n.PathExpr)
	if err != nil {
		return pathVal, err
	}
	m, err := e.Models.LoadModel(ctx, pathVal)
	if err != nil {
		return value.NewFatalError(value.ClassRemote, "model literal: %v", err), err
	}
	return value.Merge(m, pathVal), nil
}

func (e *Evaluator) evalUnaryOp(ctx value.Context, n *ast.UnaryOp) (value.Value, error) {
	x, err := e.Eval(ctx, n.X)
	if err != nil {
		return x, err
	}
	switch n.Op {
	case "!":
		b, ok := x.(value.Boolean)
		if !ok {
			return value.NewError(value.ClassType, "!: operand is not a boolean"), nil
		}
		return value.NewBoolean(!b.Value).WithDeps(x.Deps()), nil
	case "-":
		i, ok := x.(value.Integer)
		if !ok {
			return value.NewError(value.ClassType, "-: operand is not an integer"), nil
		}
		return value.NewInteger(-i.Value).WithDeps(x.Deps()), nil
	default:
		return nil, fmt.Errorf("eval.evalUnaryOp: unknown operator %q", n.Op)
	}
}

func (e *Evaluator) evalBinaryOp(ctx value.Context, n *ast.BinaryOp) (value.Value, error) {
	l, err := e.Eval(ctx, n.L)
	if err != nil {
		return l, err
	}
	r, err := e.Eval(ctx, n.R)
	if err != nil {
		return r, err
	}
	return applyBinaryOp(n.Op, l, r)
}
