package pickle

import (
	"testing"

	"github.com/nicolagi/vesta/internal/ast"
	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/shortid"
	"github.com/nicolagi/vesta/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v value.Value, primitives PrimitiveRegistry) value.Value {
	t.Helper()
	b, err := Pickle(v)
	require.NoError(t, err)
	got, err := Unpickle(b, primitives)
	require.NoError(t, err)
	return got
}

func TestRoundTripScalars(t *testing.T) {
	cases := []value.Value{
		value.NewBoolean(true),
		value.NewBoolean(false),
		value.NewInteger(-17),
		value.NewInlineText([]byte("hello")),
		value.NewSidText(shortid.ID(42), fp.New("x"), "basename"),
		value.NewFp(fp.New("some-tag")),
		value.NewUnbound("z"),
	}
	for _, v := range cases {
		got := roundTrip(t, v, nil)
		assert.Equal(t, v.Fingerprint(), got.Fingerprint())
	}
}

func TestRoundTripErrorValue(t *testing.T) {
	e := value.NewFatalError(value.ClassRemote, "lease expired for %s", "abc123")
	got := roundTrip(t, e, nil)
	ge, ok := got.(value.ErrorValue)
	require.True(t, ok)
	assert.Equal(t, e.Message, ge.Message)
	assert.Equal(t, e.Class, ge.Class)
	assert.False(t, ge.Cacheable)
}

func TestRoundTripPathAndDeps(t *testing.T) {
	p := deppath.New(deppath.Norm).Extend("a", deppath.Norm).Extend("b", deppath.Bang)
	var deps deppath.DPaths
	deps = deps.Put(deppath.New(deppath.Norm).Extend("c", deppath.Type), nil)

	v := value.NewInteger(3).WithPath(p).WithDeps(deps)
	got := roundTrip(t, v, nil)

	gotPath, ok := got.Path()
	require.True(t, ok)
	assert.Equal(t, p.Fingerprint(), gotPath.Fingerprint())
	assert.Equal(t, p.Kind, gotPath.Kind)
	assert.Equal(t, 1, got.Deps().Len())
}

func TestRoundTripList(t *testing.T) {
	v := value.NewList([]value.Value{value.NewInteger(1), value.NewInteger(2), value.NewBoolean(true)})
	got := roundTrip(t, v, nil)
	assert.Equal(t, v.Fingerprint(), got.Fingerprint())
	gotList, ok := got.(value.List)
	require.True(t, ok)
	assert.Equal(t, 3, gotList.Len())
}

func TestRoundTripBinding(t *testing.T) {
	b := value.NewBinding([]value.Field{
		{Name: "one", Value: value.NewInteger(1)},
		{Name: "two", Value: value.NewInlineText([]byte("two"))},
	})
	got := roundTrip(t, b, nil)
	assert.Equal(t, b.Fingerprint(), got.Fingerprint())
	gotBinding, ok := got.(value.Binding)
	require.True(t, ok)
	assert.Len(t, gotBinding.Fields, 2)
	assert.Equal(t, "one", gotBinding.Fields[0].Name)
}

func TestRoundTripPrimitiveRequiresRegistry(t *testing.T) {
	fn := func(ctx value.Context, args []value.Value) (value.Value, error) { return value.NewInteger(0), nil }
	p := value.NewPrimitive("_min", fn)

	b, err := Pickle(p)
	require.NoError(t, err)

	_, err = Unpickle(b, nil)
	assert.Error(t, err)

	got, err := Unpickle(b, PrimitiveRegistry{"_min": fn})
	require.NoError(t, err)
	gotPrim, ok := got.(value.Primitive)
	require.True(t, ok)
	assert.Equal(t, "_min", gotPrim.Name)
}

func TestRoundTripClosure(t *testing.T) {
	loc := ast.Location{File: "m.vesta", Line: 1}
	body := ast.NewBinaryOp(loc, "+", ast.NewName(loc, "x"), ast.NewName(loc, "y"))
	fl := ast.NewFunctionLiteral(loc, []ast.Param{{Name: "x"}, {Name: "x2", PragmaPK: true}}, body, "add", true)

	captured := value.Empty.Extend("y", value.NewInteger(10)).Extend("add", value.NewUnbound("add"))
	cl := value.NewClosure([]string{"x", "x2"}, fl, captured, "add", true)

	got := roundTrip(t, cl, nil)
	gotCl, ok := got.(value.Closure)
	require.True(t, ok)
	assert.Equal(t, []string{"x", "x2"}, gotCl.Params)
	assert.Equal(t, "add", gotCl.OwnName)
	assert.True(t, gotCl.Recursive)
	assert.Equal(t, cl.Fingerprint(), gotCl.Fingerprint())

	gotBody, ok := gotCl.Body.(*ast.FunctionLiteral)
	require.True(t, ok)
	assert.Equal(t, "add", gotBody.Name)
	assert.Len(t, gotBody.Params, 2)
	assert.True(t, gotBody.Params[1].PragmaPK)

	// The closure's own name must have been snipped from the captured
	// context by NewClosure, same as at construction time.
	_, ok = gotCl.Captured.Lookup("add")
	assert.False(t, ok)
	yv, ok := gotCl.Captured.Lookup("y")
	require.True(t, ok)
	assert.Equal(t, int32(10), yv.(value.Integer).Value)
}

func TestRoundTripModel(t *testing.T) {
	root := fakeRepoRoot{tag: fp.New("repo-root")}
	m := value.NewModel("build.vesta", shortid.ID(7), root, value.ModelSpecial, fp.New("content"))

	got := roundTrip(t, m, nil)
	gotModel, ok := got.(value.Model)
	require.True(t, ok)
	assert.Equal(t, "build.vesta", gotModel.Name)
	assert.Equal(t, shortid.ID(7), gotModel.Sid)
	assert.Equal(t, value.ModelSpecial, gotModel.ModelOf)
	assert.Equal(t, m.ContentTag(), gotModel.ContentTag())
	assert.Equal(t, m.LidTag(), gotModel.LidTag())
}

func TestVersionMismatchRejected(t *testing.T) {
	b, err := Pickle(value.NewInteger(1))
	require.NoError(t, err)
	b[3]++ // corrupt the low byte of the big-endian version header
	_, err = Unpickle(b, nil)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestTrailingBytesRejected(t *testing.T) {
	b, err := Pickle(value.NewInteger(1))
	require.NoError(t, err)
	b = append(b, 0xff)
	_, err = Unpickle(b, nil)
	assert.Error(t, err)
}

func TestPrefixTblSharesCommonSequences(t *testing.T) {
	pt := NewPrefixTbl()
	base := []deppath.Arc{"a", "b", "c"}
	i1 := pt.Intern(base)
	i2 := pt.Intern([]deppath.Arc{"a", "b", "c"})
	i3 := pt.Intern([]deppath.Arc{"a", "b", "d"})
	assert.Equal(t, i1, i2)
	assert.NotEqual(t, i1, i3)
	assert.Equal(t, 2, pt.Len())
}

type fakeRepoRoot struct{ tag fp.Tag }

func (f fakeRepoRoot) Tag() fp.Tag { return f.tag }
