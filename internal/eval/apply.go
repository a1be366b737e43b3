package eval

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/applycache"
	"github.com/nicolagi/vesta/internal/ast"
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/value"
)

// ApplyModel applies m to dot, exactly as evalApply would for a Model
// literal invoked in source. Exported for the top-level CLI driver, which
// applies the command-line model-file to its "." argument without going
// through ast.Apply (there is no surrounding expression to parse it from;
// spec.md §6's CLI passes the model file directly).
func (e *Evaluator) ApplyModel(m value.Model, dot value.Value) (value.Value, error) {
	return e.applyModel(m, dot)
}

// evalApply dispatches "f(args)" to a Closure, Model, or Primitive (spec.md
// §4.2's Apply). Model application always has exactly one argument, bound to
// the conventional name ".".
func (e *Evaluator) evalApply(ctx value.Context, n *ast.Apply) (value.Value, error) {
	if name, ok := n.Func.(*ast.Name); ok && name.Ident == "par_map" && len(n.Args) == 2 {
		return e.evalParMap(ctx, n)
	}
	fn, err := e.Eval(ctx, n.Func)
	if err != nil {
		return fn, err
	}
	args := make([]namedArg, len(n.Args))
	var argDeps deppath.DPaths
	for i, a := range n.Args {
		v, err := e.Eval(ctx, a.Value)
		if err != nil {
			return v, err
		}
		argDeps = argDeps.Union(v.Deps())
		args[i] = namedArg{name: a.Name, value: v}
	}
	switch f := fn.(type) {
	case value.Closure:
		out, err := e.applyClosure(f, args)
		if err != nil {
			return out, err
		}
		return out.WithDeps(out.Deps().Union(fn.Deps()).Union(argDeps)), nil
	case value.Model:
		if len(args) != 1 {
			return value.NewError(value.ClassDomain, "model application takes exactly one argument"), nil
		}
		out, err := e.applyModel(f, args[0].value)
		if err != nil {
			return out, err
		}
		return out.WithDeps(out.Deps().Union(fn.Deps()).Union(argDeps)), nil
	case value.Primitive:
		vals := make([]value.Value, len(args))
		for i, a := range args {
			vals[i] = a.value
		}
		out, err := f.Fn(ctx, vals)
		if err != nil {
			return out, err
		}
		return out.WithDeps(out.Deps().Union(fn.Deps()).Union(argDeps)), nil
	default:
		return value.NewError(value.ClassType, "apply: target is not callable"), nil
	}
}

// evalParMap special-cases the "par_map(f, list)" call form (spec.md's
// concurrent foreach) since, unlike a normal primitive, it needs to
// recursively invoke the evaluator per element; see parmap.go.
func (e *Evaluator) evalParMap(ctx value.Context, n *ast.Apply) (value.Value, error) {
	fnVal, err := e.Eval(ctx, n.Args[0].Value)
	if err != nil {
		return fnVal, err
	}
	cl, ok := fnVal.(value.Closure)
	if !ok {
		return value.NewError(value.ClassType, "par_map: first argument must be a closure"), nil
	}
	listVal, err := e.Eval(ctx, n.Args[1].Value)
	if err != nil {
		return listVal, err
	}
	list, ok := listVal.(value.List)
	if !ok {
		return value.NewError(value.ClassType, "par_map: second argument must be a list"), nil
	}
	return e.ParMap(ctx, cl, list, e.MaxThreads)
}

type namedArg struct {
	name  string
	value value.Value
}

// applyClosure binds the actual arguments to the closure's formal parameters
// (positional arguments zip in declaration order; named arguments bind by
// name and may appear in any order or alongside positional ones) and
// evaluates the body in the captured context extended with the bindings
// (plus, for a recursive named closure, itself under its own name, so the
// body can call itself). When e.Cache is set, this call site is routed
// through the ApplyCache protocol (spec.md §4.3): the body only actually
// runs on a primary-key miss.
func (e *Evaluator) applyClosure(cl value.Closure, args []namedArg) (value.Value, error) {
	fnLit, ok := cl.Body.(*ast.FunctionLiteral)
	if !ok {
		return nil, fmt.Errorf("eval.applyClosure: closure body is %T, not *ast.FunctionLiteral", cl.Body)
	}
	bound := make(map[string]value.Value, len(fnLit.Params))
	positional := 0
	for _, a := range args {
		if a.name == "" {
			if positional >= len(fnLit.Params) {
				return value.NewError(value.ClassDomain, "apply: too many positional arguments"), nil
			}
			bound[fnLit.Params[positional].Name] = a.value
			positional++
			continue
		}
		if _, dup := bound[a.name]; dup {
			return value.NewError(value.ClassDomain, "apply: duplicate argument %q", a.name), nil
		}
		bound[a.name] = a.value
	}
	callCtx := cl.Captured
	if cl.Recursive && cl.OwnName != "" {
		callCtx = callCtx.Extend(cl.OwnName, cl)
	}
	for _, p := range fnLit.Params {
		v, ok := bound[p.Name]
		if !ok {
			return value.NewError(value.ClassDomain, "apply: missing argument %q", p.Name), nil
		}
		callCtx = callCtx.Extend(p.Name, v)
	}

	if e.Cache == nil {
		return e.Eval(callCtx, fnLit.Body)
	}

	pk, excluded := e.functionPK(fnLit, bound)
	sourceLabel := fnLit.Name
	if sourceLabel == "" {
		sourceLabel = "<closure>"
	}
	return e.applyCached(applycache.KindFunction, pk, false, e.fvResolver(callCtx), 0, sourceLabel, excluded, func() (value.Value, error) {
		return e.Eval(callCtx, fnLit.Body)
	})
}

// applyModel applies a Model to its single argument: lazily parses the
// model's source the first time, then evaluates the parsed body in a fresh
// context binding "." to dot. The model's own dependency observations (its
// content tag at its path) are merged in by the caller. When e.Cache is
// set, the application is routed through the ApplyCache protocol exactly
// like applyClosure, keyed per spec.md §4.3's model row.
func (e *Evaluator) applyModel(m value.Model, dot value.Value) (value.Value, error) {
	if e.Models == nil {
		return nil, fmt.Errorf("eval.applyModel: nil ModelLoader")
	}
	parsed, isParsed := m.Parsed()
	var body ast.Expr
	if isParsed {
		body = parsed.(ast.Expr)
	} else {
		var err error
		body, err = e.Models.ParseModel(m)
		if err != nil {
			return value.NewFatalError(value.ClassRemote, "model parse: %v", err), err
		}
	}
	ctx := value.Empty.Extend(".", dot)

	if e.Cache == nil {
		return e.Eval(ctx, body)
	}

	pk := applycache.ModelPK(e.Cache.PKSalt, m.ModelOf == value.ModelSpecial, m.Fingerprint(), m.ContentTag())
	return e.applyCached(applycache.KindModel, pk, false, e.fvResolver(ctx), int64(m.Sid), "model:"+m.Name, nil, func() (value.Value, error) {
		return e.Eval(ctx, body)
	})
}
