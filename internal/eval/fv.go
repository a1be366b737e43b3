package eval

import (
	"encoding/binary"
	"fmt"

	"github.com/nicolagi/vesta/internal/applycache"
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/value"
)

// fvResolver builds the applycache.FreeVariableResolver a cached call site
// needs (spec.md §4.3's "tags ← for each (arc_idx, kind) in fv:
// fingerprint(Lookup(arc_idx, kind, ctx))"): resolving an FV's path against
// ctx is exactly walking the same arcs the evaluator walked to produce the
// original dependency (evalSelect, value.Extend, MergeAndLen/MergeAndType),
// run in reverse against whatever the path's root name is bound to now.
func (e *Evaluator) fvResolver(ctx value.Context) applycache.FreeVariableResolver {
	return func(fv applycache.FV) (fp.Tag, error) {
		return resolveFV(ctx, fv)
	}
}

func resolveFV(ctx value.Context, fv applycache.FV) (fp.Tag, error) {
	arcs := fv.Path.Arcs
	if len(arcs) == 0 {
		return fp.Zero, fmt.Errorf("eval.resolveFV: empty dependency path")
	}
	root, ok := ctx.Lookup(string(arcs[0]))
	if !ok {
		return fp.Zero, fmt.Errorf("eval.resolveFV: root %q not bound in call context", arcs[0])
	}
	rest := arcs[1:]

	if fv.Kind == deppath.Bang {
		// Bang observes presence of the final arc as a key, not its value
		// (evalSelect's Bang case): walk every arc but the last to reach
		// the parent binding, then test membership.
		if len(rest) == 0 {
			return fp.Zero, fmt.Errorf("eval.resolveFV: bang dependency has no field arc")
		}
		parent, err := descend(root, rest[:len(rest)-1])
		if err != nil {
			return fp.Zero, err
		}
		b, ok := parent.(value.Binding)
		if !ok {
			return fp.Zero, fmt.Errorf("eval.resolveFV: bang: parent at %q is not a binding", fv.Path.String())
		}
		_, present := b.Lookup(string(rest[len(rest)-1]))
		return boolTag(present), nil
	}

	target, err := descend(root, rest)
	if err != nil {
		return fp.Zero, err
	}
	return fingerprintForKind(target, fv.Kind), nil
}

// descend walks v through arcs, following a list index ("##n" arcs) or a
// binding-key lookup for each step, matching how evalSelect/evalIterate
// produced the path in the first place.
func descend(v value.Value, arcs []deppath.Arc) (value.Value, error) {
	for _, a := range arcs {
		if idx, ok := a.Index(); ok {
			l, ok := v.(value.List)
			if !ok {
				return nil, fmt.Errorf("eval.descend: arc %q expects a list, got %s", a, v.Kind())
			}
			if idx < 0 || idx >= len(l.Elems) {
				return nil, fmt.Errorf("eval.descend: index %d out of range (len %d)", idx, len(l.Elems))
			}
			v = l.Elems[idx]
			continue
		}
		b, ok := v.(value.Binding)
		if !ok {
			return nil, fmt.Errorf("eval.descend: arc %q expects a binding, got %s", a, v.Kind())
		}
		field, present := b.Lookup(string(a))
		if !present {
			return nil, fmt.Errorf("eval.descend: key %q not present", a)
		}
		v = field
	}
	return v, nil
}

// fingerprintForKind fingerprints v the way the deppath.Kind at which it was
// observed requires: Norm wants the full value, Type only its variant,
// ListLen/BindingLen only its length (value/ops.go's MergeAndType,
// MergeAndLen).
func fingerprintForKind(v value.Value, kind deppath.Kind) fp.Tag {
	switch kind {
	case deppath.Type:
		return fp.Zero.Extend([]byte{byte(v.Kind())})
	case deppath.ListLen:
		l, ok := v.(value.List)
		if !ok {
			return v.Fingerprint()
		}
		return lenTag(l.Len())
	case deppath.BindingLen:
		b, ok := v.(value.Binding)
		if !ok {
			return v.Fingerprint()
		}
		return lenTag(len(b.Fields))
	default: // Norm, Expr, Dummy
		return v.Fingerprint()
	}
}

func lenTag(n int) fp.Tag {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return fp.Zero.Extend(b[:])
}

func boolTag(b bool) fp.Tag {
	v := byte(0)
	if b {
		v = 1
	}
	return fp.Zero.Extend([]byte{v})
}
