package deppath_test

import (
	"testing"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/stretchr/testify/assert"
)

func pathAt(arc deppath.Arc, kind deppath.Kind) deppath.Path {
	return deppath.New(deppath.Norm).Extend(arc, kind)
}

func TestPutAndContains(t *testing.T) {
	var d deppath.DPaths
	p := pathAt("x", deppath.Norm)
	d = d.Put(p, 7)
	assert.True(t, d.Contains(p))
	assert.Equal(t, 1, d.Len())
}

func TestPutIsImmutable(t *testing.T) {
	var d deppath.DPaths
	p := pathAt("x", deppath.Norm)
	d2 := d.Put(p, 1)
	assert.True(t, d.Empty())
	assert.False(t, d2.Empty())
}

func TestUnionDifferenceIntersection(t *testing.T) {
	var a, b deppath.DPaths
	a = a.Put(pathAt("x", deppath.Norm), 1).Put(pathAt("y", deppath.Norm), 2)
	b = b.Put(pathAt("y", deppath.Norm), 3).Put(pathAt("z", deppath.Norm), 4)

	u := a.Union(b)
	assert.Equal(t, 3, u.Len())

	d := a.Difference(b)
	assert.Equal(t, 1, d.Len())
	assert.True(t, d.Contains(pathAt("x", deppath.Norm)))

	i := a.Intersection(b)
	assert.Equal(t, 1, i.Len())
	assert.True(t, i.Contains(pathAt("y", deppath.Norm)))
}

func TestRestrict(t *testing.T) {
	var d deppath.DPaths
	root := deppath.New(deppath.Norm)
	inner := root.Extend("b", deppath.Norm).Extend("f", deppath.Norm)
	outer := root.Extend("c", deppath.Norm)
	d = d.Put(inner, nil).Put(outer, nil)

	r := d.Restrict("b")
	assert.Equal(t, 1, r.Len())
	r.Each(func(e deppath.Entry) {
		assert.Equal(t, []deppath.Arc{"f"}, e.Path.Arcs)
	})
}

func TestContainsPrefix(t *testing.T) {
	var d deppath.DPaths
	root := deppath.New(deppath.Norm)
	d = d.Put(root.Extend("b", deppath.Norm).Extend("f", deppath.Norm), nil)
	assert.True(t, d.ContainsPrefix("b"))
	assert.False(t, d.ContainsPrefix("c"))
}

func TestFingerprintOrderInsensitive(t *testing.T) {
	var a, b deppath.DPaths
	a = a.Put(pathAt("x", deppath.Norm), nil).Put(pathAt("y", deppath.Norm), nil)
	b = b.Put(pathAt("y", deppath.Norm), nil).Put(pathAt("x", deppath.Norm), nil)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}
