package eval

import (
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/value"
)

// registerBuiltins installs the primitives the evaluator ships with
// regardless of host application (spec.md's original C++ Prim.C table,
// supplemented per SPEC_FULL §4): integer min/max, binding lookup-with-
// default, list element access, binding-key-defined test, and
// container length. Domain-specific primitives (run_tool foremost) are
// registered separately by the driver that wires in the rest of the system.
func registerBuiltins(e *Evaluator) {
	e.Register(value.NewPrimitive("_min", primMin))
	e.Register(value.NewPrimitive("_max", primMax))
	e.Register(value.NewPrimitive("_lookup", primLookup))
	e.Register(value.NewPrimitive("_elem", primElem))
	e.Register(value.NewPrimitive("_defined", primDefined))
	e.Register(value.NewPrimitive("_length", primLength))
}

func primMin(_ value.Context, args []value.Value) (value.Value, error) {
	return intFold(args, func(a, b int32) int32 {
		if a < b {
			return a
		}
		return b
	})
}

func primMax(_ value.Context, args []value.Value) (value.Value, error) {
	return intFold(args, func(a, b int32) int32 {
		if a > b {
			return a
		}
		return b
	})
}

func intFold(args []value.Value, pick func(a, b int32) int32) (value.Value, error) {
	if len(args) == 0 {
		return value.NewError(value.ClassDomain, "min/max: requires at least one argument"), nil
	}
	first, ok := args[0].(value.Integer)
	if !ok {
		return value.Merge(value.NewError(value.ClassType, "min/max: all arguments must be integers"), args[0]), nil
	}
	out := first.Value
	merged := value.Value(first)
	for _, a := range args[1:] {
		i, ok := a.(value.Integer)
		if !ok {
			return value.Merge(value.NewError(value.ClassType, "min/max: all arguments must be integers"), a), nil
		}
		out = pick(out, i.Value)
		merged = value.Merge(merged, a)
	}
	return value.Merge(value.NewInteger(out), merged), nil
}

// primLookup is "_lookup(binding, key, default)": like Select but returns
// default instead of erroring when key is absent. A present key records a
// Norm dependency on the field; an absent key records a Bang dependency on
// it (spec.md §4.6's dependency rules for a tested-but-possibly-absent key).
func primLookup(_ value.Context, args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.NewError(value.ClassDomain, "_lookup: requires exactly 3 arguments (binding, key, default)"), nil
	}
	b, ok := args[0].(value.Binding)
	if !ok {
		return value.NewError(value.ClassType, "_lookup: first argument must be a binding"), nil
	}
	key, ok := args[1].(value.Text)
	if !ok || !key.HasInline() {
		return value.NewError(value.ClassType, "_lookup: second argument must be inline text"), nil
	}
	name := string(key.Inline())
	found, present := b.Lookup(name)
	var out value.Value
	if present {
		out = value.Extend(b, found, deppath.Arc(name), deppath.Norm, false)
	} else {
		out = value.Merge(args[2], b)
		if root, hasPath := b.Path(); hasPath {
			out = out.WithDeps(out.Deps().Put(root.Extend(deppath.Arc(name), deppath.Bang), nil))
		}
	}
	return out, nil
}

// primElem is "_elem(list, index)": bounds-checked element access recording
// a ListLen dependency on out-of-range access and a Norm dependency on the
// element otherwise.
func primElem(_ value.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.NewError(value.ClassDomain, "_elem: requires exactly 2 arguments (list, index)"), nil
	}
	l, ok := args[0].(value.List)
	if !ok {
		return value.NewError(value.ClassType, "_elem: first argument must be a list"), nil
	}
	idx, ok := args[1].(value.Integer)
	if !ok {
		return value.NewError(value.ClassType, "_elem: second argument must be an integer"), nil
	}
	i := int(idx.Value)
	if i < 0 || i >= l.Len() {
		return value.MergeAndLen(value.NewError(value.ClassDomain, "_elem: index %d out of range", i), l), nil
	}
	return value.Extend(l, l.Elems[i], deppath.IndexArc(i), deppath.Norm, false), nil
}

// primDefined is "_defined(binding, key)": true iff key is a member,
// recording a Bang dependency.
func primDefined(_ value.Context, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.NewError(value.ClassDomain, "_defined: requires exactly 2 arguments (binding, key)"), nil
	}
	b, ok := args[0].(value.Binding)
	if !ok {
		return value.NewError(value.ClassType, "_defined: first argument must be a binding"), nil
	}
	key, ok := args[1].(value.Text)
	if !ok || !key.HasInline() {
		return value.NewError(value.ClassType, "_defined: second argument must be inline text"), nil
	}
	name := string(key.Inline())
	present := b.Has(name)
	out := value.NewBoolean(present)
	if root, hasPath := b.Path(); hasPath {
		out = out.WithDeps(out.Deps().Put(root.Extend(deppath.Arc(name), deppath.Bang), present)).(value.Boolean)
	}
	return value.Merge(out, b), nil
}

// primLength is "_length(container)": list length or binding key count,
// recording the corresponding *Len dependency kind without observing
// element/field values (spec.md §4.1's MergeAndLen).
func primLength(_ value.Context, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.NewError(value.ClassDomain, "_length: requires exactly 1 argument"), nil
	}
	switch v := args[0].(type) {
	case value.List:
		return value.MergeAndLen(value.NewInteger(int32(v.Len())), v), nil
	case value.Binding:
		return value.MergeAndLen(value.NewInteger(int32(len(v.Fields))), v), nil
	default:
		return value.NewError(value.ClassType, "_length: argument must be a list or binding"), nil
	}
}
