package pickle

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/ast"
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/shortid"
	"github.com/nicolagi/vesta/internal/value"
)

// ErrVersionMismatch is returned when a pickled payload's header names a
// format version this package does not implement.
var ErrVersionMismatch = fmt.Errorf("pickle: version mismatch")

// PrimitiveRegistry resolves a Primitive's NativeFunc by name on unpickle:
// a pickled Primitive never carries the function pointer itself (spec.md
// §3, "fingerprint is name-only"), so the caller must supply the same
// built-in table the evaluator runs with.
type PrimitiveRegistry map[string]value.NativeFunc

// tagOnlyRepoRoot reconstructs just enough of value.RepoRoot to satisfy a
// Model's constructor after unpickling: its Tag is all NewModel needs to
// recompute the model's lid tag identically to the original, so the real
// repo.Repo object the model was originally loaded from does not need to
// be reachable at unpickle time.
type tagOnlyRepoRoot struct{ tag fp.Tag }

func (t tagOnlyRepoRoot) Tag() fp.Tag { return t.tag }

// Pickle encodes v into the self-describing wire format of spec.md §4.5:
// a 4-byte version header, a shared PrefixTbl for dependency-path arc
// sequences, then the value itself.
func Pickle(v value.Value) ([]byte, error) {
	body := newWriter()
	pt := NewPrefixTbl()
	if err := encodeValue(body, pt, v); err != nil {
		return nil, err
	}
	out := newWriter()
	out.u32(Version)
	pt.encode(out)
	out.raw(body.bytes())
	return out.bytes(), nil
}

// Unpickle decodes a payload produced by Pickle. primitives resolves any
// Primitive values encountered by name; pass nil if the pickled value is
// known not to contain one. Unpickle fails if the payload's version does
// not match, or if any bytes remain after decoding one value (spec.md
// §4.5's round-trip invariant: exactly the bytes written are consumed).
func Unpickle(b []byte, primitives PrimitiveRegistry) (value.Value, error) {
	r := newReader(b)
	ver, err := r.u32()
	if err != nil {
		return nil, err
	}
	if ver != Version {
		return nil, fmt.Errorf("%w: payload is version %d, this build implements %d", ErrVersionMismatch, ver, Version)
	}
	pt, err := decodePrefixTbl(r)
	if err != nil {
		return nil, err
	}
	v, err := decodeValue(r, pt, primitives)
	if err != nil {
		return nil, err
	}
	if !r.exhausted() {
		return nil, fmt.Errorf("pickle: %d trailing bytes after decoding value", r.remaining())
	}
	return v, nil
}

func encodeValue(w *writer, pt *PrefixTbl, v value.Value) error {
	w.u8(byte(v.Kind()))
	if p, ok := v.Path(); ok {
		w.bool(true)
		encodePath(w, pt, p)
	} else {
		w.bool(false)
	}
	encodeDPaths(w, pt, v.Deps())

	switch vv := v.(type) {
	case value.Boolean:
		w.bool(vv.Value)
	case value.Integer:
		w.i32(vv.Value)
	case value.Fp:
		w.raw(vv.Value.Bytes())
	case value.Unbound:
		w.str(vv.Name)
	case value.Text:
		if vv.HasInline() {
			w.bool(true)
			w.text(vv.Inline())
			return nil
		}
		w.bool(false)
		sid, tag, name := vv.Sid()
		w.u32(uint32(sid))
		w.raw(tag.Bytes())
		w.str(name)
	case value.List:
		w.u32(uint32(len(vv.Elems)))
		for _, e := range vv.Elems {
			if err := encodeValue(w, pt, e); err != nil {
				return err
			}
		}
		encodeDPaths(w, pt, vv.LenDeps)
	case value.Binding:
		w.u32(uint32(len(vv.Fields)))
		for _, f := range vv.Fields {
			w.str(f.Name)
			if err := encodeValue(w, pt, f.Value); err != nil {
				return err
			}
		}
		encodeDPaths(w, pt, vv.LenDeps)
	case value.Closure:
		fl, ok := vv.Body.(*ast.FunctionLiteral)
		if !ok {
			return fmt.Errorf("pickle: closure body %T is not picklable", vv.Body)
		}
		w.u32(uint32(len(vv.Params)))
		for _, p := range vv.Params {
			w.str(p)
		}
		if err := encodeExpr(w, fl); err != nil {
			return err
		}
		if err := encodeContext(w, pt, vv.Captured); err != nil {
			return err
		}
		w.str(vv.OwnName)
		w.bool(vv.Recursive)
	case value.Model:
		w.str(vv.Name)
		w.u32(uint32(vv.Sid))
		var rootTag fp.Tag
		if vv.RepoRoot != nil {
			rootTag = vv.RepoRoot.Tag()
		}
		w.raw(rootTag.Bytes())
		w.u8(byte(vv.ModelOf))
		w.raw(vv.ContentTag().Bytes())
	case value.Primitive:
		w.str(vv.Name)
	case value.ErrorValue:
		w.str(vv.Message)
		w.u8(byte(vv.Class))
		w.bool(vv.Cacheable)
	default:
		return fmt.Errorf("pickle: unsupported value kind %T", v)
	}
	return nil
}

func decodeValue(r *reader, pt *PrefixTbl, primitives PrimitiveRegistry) (value.Value, error) {
	kindByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	kind := value.Kind(kindByte)

	hasPath, err := r.boolean()
	if err != nil {
		return nil, err
	}
	var pth deppath.Path
	if hasPath {
		pth, err = decodePath(r, pt)
		if err != nil {
			return nil, err
		}
	}

	deps, err := decodeDPaths(r, pt)
	if err != nil {
		return nil, err
	}

	v, err := decodeValuePayload(r, pt, primitives, kind)
	if err != nil {
		return nil, err
	}
	if hasPath {
		v = v.WithPath(pth)
	}
	v = v.WithDeps(deps)
	return v, nil
}

func decodeValuePayload(r *reader, pt *PrefixTbl, primitives PrimitiveRegistry, kind value.Kind) (value.Value, error) {
	switch kind {
	case value.KindBoolean:
		b, err := r.boolean()
		if err != nil {
			return nil, err
		}
		return value.NewBoolean(b), nil
	case value.KindInteger:
		i, err := r.i32()
		if err != nil {
			return nil, err
		}
		return value.NewInteger(i), nil
	case value.KindFp:
		b, err := r.raw(fp.Size)
		if err != nil {
			return nil, err
		}
		t, err := fp.FromBytes(b)
		if err != nil {
			return nil, err
		}
		return value.NewFp(t), nil
	case value.KindUnbound:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		return value.NewUnbound(name), nil
	case value.KindText:
		inline, err := r.boolean()
		if err != nil {
			return nil, err
		}
		if inline {
			b, err := r.text()
			if err != nil {
				return nil, err
			}
			return value.NewInlineText(b), nil
		}
		sidN, err := r.u32()
		if err != nil {
			return nil, err
		}
		tagB, err := r.raw(fp.Size)
		if err != nil {
			return nil, err
		}
		tag, err := fp.FromBytes(tagB)
		if err != nil {
			return nil, err
		}
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		return value.NewSidText(shortid.ID(sidN), tag, name), nil
	case value.KindList:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		elems := make([]value.Value, n)
		for i := range elems {
			elems[i], err = decodeValue(r, pt, primitives)
			if err != nil {
				return nil, err
			}
		}
		lenDeps, err := decodeDPaths(r, pt)
		if err != nil {
			return nil, err
		}
		return value.NewList(elems).WithLenDeps(lenDeps), nil
	case value.KindBinding:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		fields := make([]value.Field, n)
		for i := range fields {
			name, err := r.str()
			if err != nil {
				return nil, err
			}
			val, err := decodeValue(r, pt, primitives)
			if err != nil {
				return nil, err
			}
			fields[i] = value.Field{Name: name, Value: val}
		}
		lenDeps, err := decodeDPaths(r, pt)
		if err != nil {
			return nil, err
		}
		return value.NewBinding(fields).WithLenDeps(lenDeps), nil
	case value.KindClosure:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		params := make([]string, n)
		for i := range params {
			params[i], err = r.str()
			if err != nil {
				return nil, err
			}
		}
		bodyExpr, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		fl, ok := bodyExpr.(*ast.FunctionLiteral)
		if !ok {
			return nil, fmt.Errorf("pickle: closure body decoded as %T, want *ast.FunctionLiteral", bodyExpr)
		}
		captured, err := decodeContext(r, pt, primitives)
		if err != nil {
			return nil, err
		}
		ownName, err := r.str()
		if err != nil {
			return nil, err
		}
		recursive, err := r.boolean()
		if err != nil {
			return nil, err
		}
		return value.NewClosure(params, fl, captured, ownName, recursive), nil
	case value.KindModel:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		sidN, err := r.u32()
		if err != nil {
			return nil, err
		}
		rootTagB, err := r.raw(fp.Size)
		if err != nil {
			return nil, err
		}
		rootTag, err := fp.FromBytes(rootTagB)
		if err != nil {
			return nil, err
		}
		modelOfB, err := r.u8()
		if err != nil {
			return nil, err
		}
		tagB, err := r.raw(fp.Size)
		if err != nil {
			return nil, err
		}
		tag, err := fp.FromBytes(tagB)
		if err != nil {
			return nil, err
		}
		var root value.RepoRoot
		if !rootTag.IsZero() {
			root = tagOnlyRepoRoot{tag: rootTag}
		}
		return value.NewModel(name, shortid.ID(sidN), root, value.ModelKind(modelOfB), tag), nil
	case value.KindPrimitive:
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		fn, ok := primitives[name]
		if !ok {
			return nil, fmt.Errorf("pickle: unknown primitive %q", name)
		}
		return value.NewPrimitive(name, fn), nil
	case value.KindError:
		msg, err := r.str()
		if err != nil {
			return nil, err
		}
		classB, err := r.u8()
		if err != nil {
			return nil, err
		}
		cacheable, err := r.boolean()
		if err != nil {
			return nil, err
		}
		if cacheable {
			return value.NewError(value.ErrorClass(classB), "%s", msg), nil
		}
		return value.NewFatalError(value.ErrorClass(classB), "%s", msg), nil
	default:
		return nil, fmt.Errorf("pickle: unknown value kind byte %d", kind)
	}
}

// encodeContext writes a Closure's captured environment as an ordered list
// of (name, Value) pairs, oldest-bound first, so that replaying Extend in
// that order on unpickle reconstructs an equivalent lookup order. Context
// dedups by first occurrence when read back via Names(), which matches
// Lookup's own first-match semantics, so no information relevant to the
// evaluator is lost.
func encodeContext(w *writer, pt *PrefixTbl, ctx value.Context) error {
	names := ctx.Names()
	ordered := make([]string, len(names))
	for i, n := range names {
		ordered[len(names)-1-i] = n
	}
	w.u32(uint32(len(ordered)))
	for _, name := range ordered {
		val, _ := ctx.Lookup(name)
		w.str(name)
		if err := encodeValue(w, pt, val); err != nil {
			return err
		}
	}
	return nil
}

func decodeContext(r *reader, pt *PrefixTbl, primitives PrimitiveRegistry) (value.Context, error) {
	n, err := r.u32()
	if err != nil {
		return value.Empty, err
	}
	ctx := value.Empty
	for i := uint32(0); i < n; i++ {
		name, err := r.str()
		if err != nil {
			return value.Empty, err
		}
		val, err := decodeValue(r, pt, primitives)
		if err != nil {
			return value.Empty, err
		}
		ctx = ctx.Extend(name, val)
	}
	return ctx, nil
}
