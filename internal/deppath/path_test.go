package deppath_test

import (
	"testing"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/stretchr/testify/assert"
)

func TestIndexArcRoundTrip(t *testing.T) {
	a := deppath.IndexArc(42)
	i, ok := a.Index()
	assert.True(t, ok)
	assert.Equal(t, 42, i)
}

func TestIndexArcRejectsName(t *testing.T) {
	_, ok := deppath.Arc("foo").Index()
	assert.False(t, ok)
}

func TestExtendIsImmutable(t *testing.T) {
	root := deppath.New(deppath.Norm)
	a := root.Extend("x", deppath.Norm)
	b := root.Extend("y", deppath.Norm)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Empty(t, root.Arcs)
}

func TestEqualConsidersKind(t *testing.T) {
	root := deppath.New(deppath.Norm)
	a := root.Extend("f", deppath.Norm)
	b := root.Extend("f", deppath.Bang)
	assert.False(t, a.Equal(b))
	c := root.Extend("f", deppath.Norm)
	assert.True(t, a.Equal(c))
}

func TestWithoutFirstArc(t *testing.T) {
	p := deppath.New(deppath.Norm).Extend("a", deppath.Norm).Extend("b", deppath.Norm)
	q := p.WithoutFirstArc()
	assert.Equal(t, []deppath.Arc{"b"}, q.Arcs)
}

func TestStringFormatting(t *testing.T) {
	p := deppath.New(deppath.Norm).Extend("b", deppath.Norm).Extend("f", deppath.Norm)
	assert.Equal(t, "b/f", p.String())
	q := deppath.New(deppath.Bang).Extend("absent", deppath.Bang)
	assert.Equal(t, "bang:absent", q.String())
}
