package value_test

import (
	"testing"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/value"
	"github.com/stretchr/testify/assert"
)

func TestBooleanFingerprintDistinctFromInteger(t *testing.T) {
	b := value.NewBoolean(true)
	i := value.NewInteger(1)
	assert.NotEqual(t, b.Fingerprint(), i.Fingerprint())
}

func TestIntegerFingerprintStable(t *testing.T) {
	a := value.NewInteger(42)
	b := value.NewInteger(42)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	c := value.NewInteger(43)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestBindingOrderPreservedOnOverlay(t *testing.T) {
	lhs := value.NewBinding([]value.Field{
		{Name: "a", Value: value.NewInteger(1)},
		{Name: "b", Value: value.NewInteger(2)},
	})
	rhs := value.NewBinding([]value.Field{
		{Name: "b", Value: value.NewInteger(20)},
		{Name: "c", Value: value.NewInteger(3)},
	})
	out := lhs.Overlay(rhs)
	assert.Len(t, out.Fields, 3)
	assert.Equal(t, "a", out.Fields[0].Name)
	assert.Equal(t, "b", out.Fields[1].Name)
	assert.Equal(t, "c", out.Fields[2].Name)
	bv, _ := out.Lookup("b")
	assert.Equal(t, int32(20), bv.(value.Integer).Value)
}

func TestBindingRecursiveOverrideRecursesOnSharedKey(t *testing.T) {
	lhs := value.NewBinding([]value.Field{
		{Name: "nested", Value: value.NewBinding([]value.Field{
			{Name: "x", Value: value.NewInteger(1)},
			{Name: "y", Value: value.NewInteger(2)},
		})},
	})
	rhs := value.NewBinding([]value.Field{
		{Name: "nested", Value: value.NewBinding([]value.Field{
			{Name: "y", Value: value.NewInteger(20)},
		})},
	})
	out := lhs.RecursiveOverride(rhs)
	nested, _ := out.Lookup("nested")
	nb := nested.(value.Binding)
	x, _ := nb.Lookup("x")
	y, _ := nb.Lookup("y")
	assert.Equal(t, int32(1), x.(value.Integer).Value)
	assert.Equal(t, int32(20), y.(value.Integer).Value)
}

func TestBindingInsertRejectsDuplicates(t *testing.T) {
	b := value.NewBinding([]value.Field{{Name: "a", Value: value.NewInteger(1)}})
	_, ok := b.Insert("a", value.NewInteger(2))
	assert.False(t, ok)
	b2, ok := b.Insert("b", value.NewInteger(2))
	assert.True(t, ok)
	assert.Len(t, b2.Fields, 2)
}

func TestContextLookupFirstMatch(t *testing.T) {
	ctx := value.Empty.Extend("x", value.NewInteger(1)).Extend("x", value.NewInteger(2))
	v, ok := ctx.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, int32(2), v.(value.Integer).Value)
}

func TestContextWithoutRemovesAllOccurrences(t *testing.T) {
	ctx := value.Empty.Extend("x", value.NewInteger(1)).Extend("y", value.NewInteger(2)).Extend("x", value.NewInteger(3))
	out := ctx.Without("x")
	_, ok := out.Lookup("x")
	assert.False(t, ok)
	v, ok := out.Lookup("y")
	assert.True(t, ok)
	assert.Equal(t, int32(2), v.(value.Integer).Value)
}

func TestContextWithoutSharesUnaffectedTail(t *testing.T) {
	base := value.Empty.Extend("shared", value.NewInteger(99))
	ctx := base.Extend("x", value.NewInteger(1))
	out := ctx.Without("x")
	v, ok := out.Lookup("shared")
	assert.True(t, ok)
	assert.Equal(t, int32(99), v.(value.Integer).Value)
}

func TestMergeFoldsOtherDepsAndPath(t *testing.T) {
	root := deppath.New(deppath.Norm)
	other := value.NewInteger(5).WithPath(root.Extend("x", deppath.Norm)).(value.Integer)
	self := value.NewBoolean(true)
	merged := value.Merge(self, other)
	assert.True(t, merged.Deps().Contains(root.Extend("x", deppath.Norm)))
}

func TestMergeAndTypeRecordsTypeKind(t *testing.T) {
	root := deppath.New(deppath.Norm)
	other := value.NewInteger(5).WithPath(root.Extend("x", deppath.Norm)).(value.Integer)
	self := value.NewBoolean(true)
	merged := value.MergeAndType(self, other)
	assert.True(t, merged.Deps().Contains(root.Extend("x", deppath.Type)))
	assert.False(t, merged.Deps().Contains(root.Extend("x", deppath.Norm)))
}

func TestExtendGivesChildPathWhenSelfHasPath(t *testing.T) {
	root := deppath.New(deppath.Norm).Extend("b", deppath.Norm)
	self := value.NewBoolean(true).WithPath(root)
	child := value.NewInteger(1)
	out := value.Extend(self, child, "f", deppath.Norm, false)
	p, ok := out.Path()
	assert.True(t, ok)
	assert.Equal(t, []deppath.Arc{"b", "f"}, p.Arcs)
}

func TestExtendMergesSelfDepsWhenNoPath(t *testing.T) {
	root := deppath.New(deppath.Norm).Extend("dep", deppath.Norm)
	self := value.NewBoolean(true).WithDeps(deppath.DPaths{}.Put(root, nil))
	child := value.NewInteger(1)
	out := value.Extend(self, child, "f", deppath.Norm, false)
	_, hasPath := out.Path()
	assert.False(t, hasPath)
	assert.True(t, out.Deps().Contains(root))
}
