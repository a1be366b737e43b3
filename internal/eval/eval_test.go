package eval_test

import (
	"testing"

	"github.com/nicolagi/vesta/internal/ast"
	"github.com/nicolagi/vesta/internal/eval"
	"github.com/nicolagi/vesta/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) ast.Expr {
	t.Helper()
	e, err := ast.Parse("test", src)
	require.NoError(t, err)
	return e
}

func TestEvalArithmeticAndComparison(t *testing.T) {
	ev := eval.New(nil)
	v, err := ev.Eval(value.Empty, mustParse(t, "1 + 2 * 3"))
	require.NoError(t, err)
	assert.Equal(t, int32(7), v.(value.Integer).Value)

	v, err = ev.Eval(value.Empty, mustParse(t, "(1 + 2) > 2 && true"))
	require.NoError(t, err)
	assert.Equal(t, true, v.(value.Boolean).Value)
}

func TestEvalIfMergesTestDeps(t *testing.T) {
	ev := eval.New(nil)
	v, err := ev.Eval(value.Empty, mustParse(t, "if true then 1 else 2"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.(value.Integer).Value)
}

func TestEvalBindingSelectAndBang(t *testing.T) {
	ev := eval.New(nil)
	v, err := ev.Eval(value.Empty, mustParse(t, `[a=1,b=2]/a`))
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.(value.Integer).Value)

	v, err = ev.Eval(value.Empty, mustParse(t, `[a=1,b=2]!c`))
	require.NoError(t, err)
	assert.Equal(t, false, v.(value.Boolean).Value)
}

func TestEvalBlockSequencesStatements(t *testing.T) {
	ev := eval.New(nil)
	v, err := ev.Eval(value.Empty, mustParse(t, `{ x = 3; y = x + 1; y * 2 }`))
	require.NoError(t, err)
	assert.Equal(t, int32(8), v.(value.Integer).Value)
}

func TestEvalForeach(t *testing.T) {
	ev := eval.New(nil)
	v, err := ev.Eval(value.Empty, mustParse(t, `foreach x in <1,2,3> do x * 2`))
	require.NoError(t, err)
	list := v.(value.List)
	require.Len(t, list.Elems, 3)
	assert.Equal(t, int32(4), list.Elems[1].(value.Integer).Value)
}

func TestEvalRecursiveFunction(t *testing.T) {
	ev := eval.New(nil)
	src := `{ fact = function fact(n) if n == 0 then 1 else n * fact(n - 1); fact(5) }`
	v, err := ev.Eval(value.Empty, mustParse(t, src))
	require.NoError(t, err)
	assert.Equal(t, int32(120), v.(value.Integer).Value)
}

func TestEvalClosureCapture(t *testing.T) {
	ev := eval.New(nil)
	src := `{ adder = function(x) function(y) x + y; add5 = adder(5); add5(3) }`
	v, err := ev.Eval(value.Empty, mustParse(t, src))
	require.NoError(t, err)
	assert.Equal(t, int32(8), v.(value.Integer).Value)
}

func TestEvalPrimitives(t *testing.T) {
	ev := eval.New(nil)
	v, err := ev.Eval(value.Empty, mustParse(t, `_min(3, 1, 2)`))
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.(value.Integer).Value)

	v, err = ev.Eval(value.Empty, mustParse(t, `_defined([a=1], "a")`))
	require.NoError(t, err)
	assert.Equal(t, true, v.(value.Boolean).Value)

	v, err = ev.Eval(value.Empty, mustParse(t, `_length(<1,2,3>)`))
	require.NoError(t, err)
	assert.Equal(t, int32(3), v.(value.Integer).Value)
}

func TestEvalParMapPreservesOrder(t *testing.T) {
	ev := eval.New(nil)
	v, err := ev.Eval(value.Empty, mustParse(t, `par_map(function(x) x * 10, <1,2,3,4,5>)`))
	require.NoError(t, err)
	list := v.(value.List)
	require.Len(t, list.Elems, 5)
	for i, el := range list.Elems {
		assert.Equal(t, int32((i+1)*10), el.(value.Integer).Value)
	}
}

func TestEvalBindingOverlayAndListConcat(t *testing.T) {
	ev := eval.New(nil)
	v, err := ev.Eval(value.Empty, mustParse(t, `[a=1,b=2] + [b=20,c=3]`))
	require.NoError(t, err)
	b := v.(value.Binding)
	bv, _ := b.Lookup("b")
	assert.Equal(t, int32(20), bv.(value.Integer).Value)

	v, err = ev.Eval(value.Empty, mustParse(t, `<1,2> ++ <3,4>`))
	require.NoError(t, err)
	l := v.(value.List)
	assert.Len(t, l.Elems, 4)
}

func TestEvalUnboundNameIsFatalError(t *testing.T) {
	ev := eval.New(nil)
	_, err := ev.Eval(value.Empty, mustParse(t, `nosuchname`))
	assert.Error(t, err)
}
