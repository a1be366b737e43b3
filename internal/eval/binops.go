package eval

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/value"
)

// applyBinaryOp implements the arithmetic, comparison, boolean, and
// Binding/List composition operators of spec.md §4.2. It is a free function
// (no Evaluator receiver) since it needs no context beyond its two already
// evaluated operands.
func applyBinaryOp(op string, l, r value.Value) (value.Value, error) {
	switch op {
	case "+", "-", "*":
		return arith(op, l, r)
	case "==", "!=":
		return compareEq(op, l, r)
	case "<", "<=", ">", ">=":
		return compareOrd(op, l, r)
	case "&&", "||":
		return boolOp(op, l, r)
	case "++":
		return concatOrOverride(l, r)
	default:
		return nil, fmt.Errorf("eval.applyBinaryOp: unknown operator %q", op)
	}
}

func arith(op string, l, r value.Value) (value.Value, error) {
	if op == "+" {
		if lb, ok := l.(value.Binding); ok {
			if rb, ok := r.(value.Binding); ok {
				out := lb.Overlay(rb)
				return value.Merge(value.Merge(out, l), r), nil
			}
		}
	}
	li, lok := l.(value.Integer)
	ri, rok := r.(value.Integer)
	if !lok || !rok {
		return value.Merge(value.NewError(value.ClassType, "%s: both operands must be integers", op), l), nil
	}
	var out int32
	switch op {
	case "+":
		out = li.Value + ri.Value
	case "-":
		out = li.Value - ri.Value
	case "*":
		out = li.Value * ri.Value
	}
	return value.Merge(value.Merge(value.NewInteger(out), l), r), nil
}

func compareEq(op string, l, r value.Value) (value.Value, error) {
	if l.Kind() != r.Kind() {
		return value.Merge(value.Merge(value.NewBoolean(op == "!="), l), r), nil
	}
	eq := l.Fingerprint() == r.Fingerprint()
	if op == "!=" {
		eq = !eq
	}
	return value.Merge(value.Merge(value.NewBoolean(eq), l), r), nil
}

func compareOrd(op string, l, r value.Value) (value.Value, error) {
	li, lok := l.(value.Integer)
	ri, rok := r.(value.Integer)
	if !lok || !rok {
		return value.Merge(value.NewError(value.ClassType, "%s: both operands must be integers", op), l), nil
	}
	var out bool
	switch op {
	case "<":
		out = li.Value < ri.Value
	case "<=":
		out = li.Value <= ri.Value
	case ">":
		out = li.Value > ri.Value
	case ">=":
		out = li.Value >= ri.Value
	}
	return value.Merge(value.Merge(value.NewBoolean(out), l), r), nil
}

func boolOp(op string, l, r value.Value) (value.Value, error) {
	lb, lok := l.(value.Boolean)
	rb, rok := r.(value.Boolean)
	if !lok || !rok {
		return value.Merge(value.NewError(value.ClassType, "%s: both operands must be booleans", op), l), nil
	}
	var out bool
	if op == "&&" {
		out = lb.Value && rb.Value
	} else {
		out = lb.Value || rb.Value
	}
	return value.Merge(value.Merge(value.NewBoolean(out), l), r), nil
}

// concatOrOverride implements "++": List concatenation when both operands
// are lists, Binding.RecursiveOverride when both are bindings (spec.md
// §4.2).
func concatOrOverride(l, r value.Value) (value.Value, error) {
	if lb, ok := l.(value.Binding); ok {
		if rb, ok := r.(value.Binding); ok {
			out := lb.RecursiveOverride(rb)
			return value.Merge(value.Merge(out, l), r), nil
		}
	}
	if ll, ok := l.(value.List); ok {
		if rl, ok := r.(value.List); ok {
			elems := make([]value.Value, 0, ll.Len()+rl.Len())
			elems = append(elems, ll.Elems...)
			elems = append(elems, rl.Elems...)
			out := value.NewList(elems)
			out = value.MergeAndLen(out, ll).(value.List)
			out = value.MergeAndLen(out, rl).(value.List)
			return value.Merge(value.Merge(out, l), r), nil
		}
	}
	return value.NewError(value.ClassType, "++: operands must both be bindings or both be lists"), nil
}
