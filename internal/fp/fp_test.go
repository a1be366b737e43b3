package fp_test

import (
	"testing"

	"github.com/nicolagi/vesta/internal/fp"
	"github.com/stretchr/testify/assert"
)

func TestExtendIsOrderSensitive(t *testing.T) {
	a := fp.Zero.Extend([]byte("a")).Extend([]byte("b"))
	b := fp.Zero.Extend([]byte("b")).Extend([]byte("a"))
	assert.NotEqual(t, a, b)
}

func TestExtendIsDeterministic(t *testing.T) {
	a := fp.New("FUNC_VERSION_STRING").Extend([]byte("x"))
	b := fp.New("FUNC_VERSION_STRING").Extend([]byte("x"))
	assert.Equal(t, a, b)
}

func TestUnpermutedIsOrderInsensitive(t *testing.T) {
	x := fp.Zero.Extend([]byte("x"))
	y := fp.Zero.Extend([]byte("y"))
	z := fp.Zero.Extend([]byte("z"))
	a := fp.Unpermuted([]Tag3{x, y, z}[:])
	b := fp.Unpermuted([]Tag3{z, x, y}[:])
	assert.Equal(t, a, b)
}

// Tag3 is just fp.Tag; named locally to keep the slice literal terse above.
type Tag3 = fp.Tag

func TestUnpermutedEmpty(t *testing.T) {
	assert.Equal(t, fp.Zero, fp.Unpermuted(nil))
}

func TestWireRoundTrip(t *testing.T) {
	tg := fp.New("salt").Extend([]byte("payload"))
	b := tg.Bytes()
	got, err := fp.FromBytes(b)
	assert.NoError(t, err)
	assert.Equal(t, tg, got)
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := fp.FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}
