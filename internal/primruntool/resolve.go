package primruntool

import (
	"encoding/binary"
	"fmt"

	"github.com/nicolagi/vesta/internal/applycache"
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/value"
)

// resolveRootFV resolves one FV recorded by tooldirserver (always rooted at
// rootPath, which prefixes every path it hands out) against the ./root
// value a later _run_tool call was given, the way eval.fvResolver resolves
// FVs against a call context for Closure/Model applications. Duplicated
// rather than shared with internal/eval (whose resolveFV/descend are
// unexported and anchor at a Context, not a bare Value) to avoid coupling
// this package to eval's internals for one helper; see DESIGN.md.
func resolveRootFV(root value.Value, rootPath deppath.Path, fv applycache.FV) (fp.Tag, error) {
	if len(fv.Path.Arcs) < len(rootPath.Arcs) {
		return fp.Zero, fmt.Errorf("primruntool: FV path shorter than root path")
	}
	rel := fv.Path.Arcs[len(rootPath.Arcs):]

	if fv.Kind == deppath.Bang {
		if len(rel) == 0 {
			return fp.Zero, fmt.Errorf("primruntool: bang dependency has no field arc")
		}
		parent, err := descend(root, rel[:len(rel)-1])
		if err != nil {
			return fp.Zero, err
		}
		b, ok := parent.(value.Binding)
		if !ok {
			return fp.Zero, fmt.Errorf("primruntool: bang: parent is not a binding")
		}
		_, present := b.Lookup(string(rel[len(rel)-1]))
		return boolTag(present), nil
	}

	target, err := descend(root, rel)
	if err != nil {
		return fp.Zero, err
	}
	return fingerprintForKind(target, fv.Kind), nil
}

func descend(v value.Value, arcs []deppath.Arc) (value.Value, error) {
	for _, a := range arcs {
		b, ok := v.(value.Binding)
		if !ok {
			return nil, fmt.Errorf("primruntool: arc %q expects a binding, got %s", a, v.Kind())
		}
		field, present := b.Lookup(string(a))
		if !present {
			return nil, fmt.Errorf("primruntool: key %q not present", a)
		}
		v = field
	}
	return v, nil
}

func fingerprintForKind(v value.Value, kind deppath.Kind) fp.Tag {
	switch kind {
	case deppath.Type:
		return fp.Zero.Extend([]byte{byte(v.Kind())})
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
