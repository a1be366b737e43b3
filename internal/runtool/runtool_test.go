package runtool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDoItCapturesOutputAndStatus(t *testing.T) {
	r := Local{}
	res, err := r.DoIt(context.Background(), Request{
		Argv: []string{"/bin/sh", "-c", "echo hello; exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Status)
	assert.Equal(t, 0, res.Signal)
	assert.Contains(t, string(res.Stdout), "hello")
}

func TestLocalDoItEmptyArgv(t *testing.T) {
	r := Local{}
	res, err := r.DoIt(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}
