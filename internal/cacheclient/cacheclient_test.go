package cacheclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/vesta/internal/fp"
)

func TestLocalRoundTrip(t *testing.T) {
	c := NewLocal()
	pk := fp.New("f")

	_, _, noEntry, err := c.FreeVariables(pk)
	require.NoError(t, err)
	assert.True(t, noEntry)

	ci, err := c.AddEntry(pk, nil, nil, []byte("v"), 0, nil, "f()")
	require.NoError(t, err)
	assert.NotZero(t, ci)

	fvs, epoch, noEntry, err := c.FreeVariables(pk)
	require.NoError(t, err)
	assert.False(t, noEntry)

	res, err := c.Lookup(pk, epoch, nil)
	require.NoError(t, err)
	assert.Equal(t, ci, res.CI)
	_ = fvs
}
