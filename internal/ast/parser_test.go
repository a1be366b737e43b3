package ast_test

import (
	"testing"

	"github.com/nicolagi/vesta/internal/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArithmetic(t *testing.T) {
	e, err := ast.Parse("test", "1 + 2 * 3")
	require.NoError(t, err)
	bin, ok := e.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "+", bin.Op)
	rhs, ok := bin.R.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "*", rhs.Op)
}

func TestParseIfSelectApply(t *testing.T) {
	e, err := ast.Parse("test", `if a/b then f(1, x=2) else false`)
	require.NoError(t, err)
	ifExpr, ok := e.(*ast.If)
	require.True(t, ok)
	sel, ok := ifExpr.Test.(*ast.Select)
	require.True(t, ok)
	assert.Equal(t, "b", sel.Field)
	assert.False(t, sel.Bang)
	apply, ok := ifExpr.Then.(*ast.Apply)
	require.True(t, ok)
	assert.Len(t, apply.Args, 2)
	assert.Equal(t, "x", apply.Args[1].Name)
}

func TestParseBindingAndListLiterals(t *testing.T) {
	e, err := ast.Parse("test", `[a=1, b="hi"]`)
	require.NoError(t, err)
	b, ok := e.(*ast.BindingLit)
	require.True(t, ok)
	assert.Len(t, b.Entries, 2)

	e2, err := ast.Parse("test", `<1, 2, 3>`)
	require.NoError(t, err)
	l, ok := e2.(*ast.ListLit)
	require.True(t, ok)
	assert.Len(t, l.Elems, 3)
}

func TestParseFunctionAndBlock(t *testing.T) {
	e, err := ast.Parse("test", `function(x, y) { z = x + y; z * 2 }`)
	require.NoError(t, err)
	fn, ok := e.(*ast.FunctionLiteral)
	require.True(t, ok)
	assert.Len(t, fn.Params, 2)
	block, ok := fn.Body.(*ast.Block)
	require.True(t, ok)
	assert.Len(t, block.Stmts, 1)
}

func TestFingerprintStructuralEquality(t *testing.T) {
	a, err := ast.Parse("test", "1 + 2")
	require.NoError(t, err)
	b, err := ast.Parse("test", "1 + 2")
	require.NoError(t, err)
	assert.Equal(t, ast.Fingerprint(a), ast.Fingerprint(b))

	c, err := ast.Parse("test", "1 + 3")
	require.NoError(t, err)
	assert.NotEqual(t, ast.Fingerprint(a), ast.Fingerprint(c))
}
