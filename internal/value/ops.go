package value

import "github.com/nicolagi/vesta/internal/deppath"

// Merge folds other's deps and {other.path -> other} into self's deps,
// returning the updated self (spec.md §4.1). This is the general-purpose
// operation used whenever an expression's result needs to remember that it
// observed another value in full (e.g. a binary operator merging both
// operands' dependencies).
func Merge(self, other Value) Value {
	deps := self.Deps().Union(other.Deps())
	if p, ok := other.Path(); ok {
		deps = deps.Put(p, other)
	}
	return self.WithDeps(deps)
}

// MergeAndType is like Merge but records only that the *type* of other was
// observed at other.path (kind=Type), not its full value -- used by type
// tests and coercions, e.g. "is this a Binding" without caring which one.
func MergeAndType(self, other Value) Value {
	deps := self.Deps()
	if p, ok := other.Path(); ok {
		deps = deps.Put(p.WithKind(deppath.Type), other)
	}
	return self.WithDeps(deps)
}

// MergeAndLen is like Merge but records only the container length of other
// (kind=ListLen or BindingLen depending on other's Kind) -- used by len()
// and by foreach, which only need to know how many elements there were, not
// their values, to be sound.
func MergeAndLen(self, other Value) Value {
	kind := deppath.ListLen
	if other.Kind() == KindBinding {
		kind = deppath.BindingLen
	}
	deps := self.Deps()
	if p, ok := other.Path(); ok {
		deps = deps.Put(p.WithKind(kind), other)
	}
	return self.WithDeps(deps)
}

// Extend produces a view of child that "lives at self.path/arc" (spec.md
// §4.1): when self has a path, child is given the extended path (and, if
// accumulate is set, also picks up self's accumulated deps, for the case
// where the child is being produced as a derived/composite observation
// rather than a direct structural descent). When self has no path, child
// instead absorbs self's deps directly, since there is no path to extend.
func Extend(self, child Value, arc deppath.Arc, kind deppath.Kind, accumulate bool) Value {
	if p, ok := self.Path(); ok {
		out := child.WithPath(p.Extend(arc, kind))
		if accumulate {
			out = out.WithDeps(out.Deps().Union(self.Deps()))
		}
		return out
	}
	return child.WithDeps(child.Deps().Union(self.Deps()))
}

// AddToDeps records a single additional observation: that, at path (with
// kind applied), the value `observed` was seen.
func AddToDeps(v Value, path deppath.Path, observed Value, kind deppath.Kind) Value {
	return v.WithDeps(v.Deps().Put(path.WithKind(kind), observed))
}
