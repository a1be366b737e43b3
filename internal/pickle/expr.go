package pickle

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/ast"
)

// exprTag discriminates the pickled form of an ast.Expr node. These values
// are a pickle-local encoding scheme, independent of ast's own unexported
// node-kind enum.
type exprTag byte

const (
	eBool exprTag = iota
	eInt
	eText
	eName
	eIf
	eBindingLit
	eListLit
	eSelect
	eApply
	eBlock
	eIterate
	eFunctionLit
	eModelLit
	eUnaryOp
	eBinaryOp
)

func encodeLoc(w *writer, loc ast.Location) {
	w.str(loc.File)
	w.i32(int32(loc.Line))
}

func decodeLoc(r *reader) (ast.Location, error) {
	file, err := r.str()
	if err != nil {
		return ast.Location{}, err
	}
	line, err := r.i32()
	if err != nil {
		return ast.Location{}, err
	}
	return ast.Location{File: file, Line: int(line)}, nil
}

// encodeExpr serializes the expression tree backing a Closure body
// (spec.md §4.1's "H(closure_expr)" needs the tree itself, not just its
// fingerprint, so the closure can still be applied after an unpickle).
func encodeExpr(w *writer, e ast.Expr) error {
	switch n := e.(type) {
	case *ast.BoolLit:
		w.u8(byte(eBool))
		encodeLoc(w, n.Loc())
		w.bool(n.Value)
	case *ast.IntLit:
		w.u8(byte(eInt))
		encodeLoc(w, n.Loc())
		w.i32(n.Value)
	case *ast.TextLit:
		w.u8(byte(eText))
		encodeLoc(w, n.Loc())
		w.str(n.Value)
	case *ast.Name:
		w.u8(byte(eName))
		encodeLoc(w, n.Loc())
		w.str(n.Ident)
	case *ast.If:
		w.u8(byte(eIf))
		encodeLoc(w, n.Loc())
		if err := encodeExpr(w, n.Test); err != nil {
			return err
		}
		if err := encodeExpr(w, n.Then); err != nil {
			return err
		}
		if err := encodeExpr(w, n.Else); err != nil {
			return err
		}
	case *ast.BindingLit:
		w.u8(byte(eBindingLit))
		encodeLoc(w, n.Loc())
		w.u32(uint32(len(n.Entries)))
		for _, ent := range n.Entries {
			if ent.NameExpr != nil {
				w.bool(true)
				if err := encodeExpr(w, ent.NameExpr); err != nil {
					return err
				}
			} else {
				w.bool(false)
				w.str(ent.Name)
			}
			if err := encodeExpr(w, ent.Value); err != nil {
				return err
			}
		}
	case *ast.ListLit:
		w.u8(byte(eListLit))
		encodeLoc(w, n.Loc())
		w.u32(uint32(len(n.Elems)))
		for _, el := range n.Elems {
			if err := encodeExpr(w, el); err != nil {
				return err
			}
		}
	case *ast.Select:
		w.u8(byte(eSelect))
		encodeLoc(w, n.Loc())
		if err := encodeExpr(w, n.Target); err != nil {
			return err
		}
		w.str(n.Field)
		w.bool(n.Bang)
	case *ast.Apply:
		w.u8(byte(eApply))
		encodeLoc(w, n.Loc())
		if err := encodeExpr(w, n.Func); err != nil {
			return err
		}
		w.u32(uint32(len(n.Args)))
		for _, a := range n.Args {
			w.str(a.Name)
			if err := encodeExpr(w, a.Value); err != nil {
				return err
			}
		}
	case *ast.Block:
		w.u8(byte(eBlock))
		encodeLoc(w, n.Loc())
		w.u32(uint32(len(n.Stmts)))
		for _, s := range n.Stmts {
			w.str(s.Name)
			if err := encodeExpr(w, s.Value); err != nil {
				return err
			}
		}
		if err := encodeExpr(w, n.Value); err != nil {
			return err
		}
	case *ast.Iterate:
		w.u8(byte(eIterate))
		encodeLoc(w, n.Loc())
		w.str(n.Var)
		if err := encodeExpr(w, n.Source); err != nil {
			return err
		}
		if err := encodeExpr(w, n.Body); err != nil {
			return err
		}
	case *ast.FunctionLiteral:
		w.u8(byte(eFunctionLit))
		encodeLoc(w, n.Loc())
		w.u32(uint32(len(n.Params)))
		for _, p := range n.Params {
			w.str(p.Name)
			w.bool(p.PragmaPK)
		}
		if err := encodeExpr(w, n.Body); err != nil {
			return err
		}
		w.str(n.Name)
		w.bool(n.Recursive)
	case *ast.ModelLiteral:
		w.u8(byte(eModelLit))
		encodeLoc(w, n.Loc())
		if err := encodeExpr(w, n.PathExpr); err != nil {
			return err
		}
	case *ast.UnaryOp:
		w.u8(byte(eUnaryOp))
		encodeLoc(w, n.Loc())
		w.str(n.Op)
		if err := encodeExpr(w, n.X); err != nil {
			return err
		}
	case *ast.BinaryOp:
		w.u8(byte(eBinaryOp))
		encodeLoc(w, n.Loc())
		w.str(n.Op)
		if err := encodeExpr(w, n.L); err != nil {
			return err
		}
		if err := encodeExpr(w, n.R); err != nil {
			return err
		}
	default:
		return fmt.Errorf("pickle: unsupported expression node %T", e)
	}
	return nil
}

func decodeExpr(r *reader) (ast.Expr, error) {
	tagByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	loc, err := decodeLoc(r)
	if err != nil {
		return nil, err
	}
	switch exprTag(tagByte) {
	case eBool:
		b, err := r.boolean()
		if err != nil {
			return nil, err
		}
		return ast.NewBoolLit(loc, b), nil
	case eInt:
		v, err := r.i32()
		if err != nil {
			return nil, err
		}
		return ast.NewIntLit(loc, v), nil
	case eText:
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		return ast.NewTextLit(loc, s), nil
	case eName:
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		return ast.NewName(loc, s), nil
	case eIf:
		test, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		els, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		return ast.NewIf(loc, test, then, els), nil
	case eBindingLit:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		entries := make([]ast.BindingEntry, n)
		for i := range entries {
			computed, err := r.boolean()
			if err != nil {
				return nil, err
			}
			if computed {
				nameExpr, err := decodeExpr(r)
				if err != nil {
					return nil, err
				}
				entries[i].NameExpr = nameExpr
			} else {
				name, err := r.str()
				if err != nil {
					return nil, err
				}
				entries[i].Name = name
			}
			val, err := decodeExpr(r)
			if err != nil {
				return nil, err
			}
			entries[i].Value = val
		}
		return ast.NewBindingLit(loc, entries), nil
	case eListLit:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		elems := make([]ast.Expr, n)
		for i := range elems {
			elems[i], err = decodeExpr(r)
			if err != nil {
				return nil, err
			}
		}
		return ast.NewListLit(loc, elems), nil
	case eSelect:
		target, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		field, err := r.str()
		if err != nil {
			return nil, err
		}
		bang, err := r.boolean()
		if err != nil {
			return nil, err
		}
		return ast.NewSelect(loc, target, field, bang), nil
	case eApply:
		fn, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		args := make([]ast.Arg, n)
		for i := range args {
			name, err := r.str()
			if err != nil {
				return nil, err
			}
			val, err := decodeExpr(r)
			if err != nil {
				return nil, err
			}
			args[i] = ast.Arg{Name: name, Value: val}
		}
		return ast.NewApply(loc, fn, args), nil
	case eBlock:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		stmts := make([]ast.Stmt, n)
		for i := range stmts {
			name, err := r.str()
			if err != nil {
				return nil, err
			}
			val, err := decodeExpr(r)
			if err != nil {
				return nil, err
			}
			stmts[i] = ast.Stmt{Name: name, Value: val}
		}
		value, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		return ast.NewBlock(loc, stmts, value), nil
	case eIterate:
		v, err := r.str()
		if err != nil {
			return nil, err
		}
		source, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		return ast.NewIterate(loc, v, source, body), nil
	case eFunctionLit:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		params := make([]ast.Param, n)
		for i := range params {
			name, err := r.str()
			if err != nil {
				return nil, err
			}
			pragma, err := r.boolean()
			if err != nil {
				return nil, err
			}
			params[i] = ast.Param{Name: name, PragmaPK: pragma}
		}
		body, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		recursive, err := r.boolean()
		if err != nil {
			return nil, err
		}
		return ast.NewFunctionLiteral(loc, params, body, name, recursive), nil
	case eModelLit:
		pathExpr, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		return ast.NewModelLiteral(loc, pathExpr), nil
	case eUnaryOp:
		op, err := r.str()
		if err != nil {
			return nil, err
		}
		x, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryOp(loc, op, x), nil
	case eBinaryOp:
		op, err := r.str()
		if err != nil {
			return nil, err
		}
		l, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		rr, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		return ast.NewBinaryOp(loc, op, l, rr), nil
	default:
		return nil, fmt.Errorf("pickle: unknown expression tag %d", tagByte)
	}
}
