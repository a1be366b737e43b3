package applycache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nicolagi/vesta/internal/fp"
)

func TestFunctionPKDeterministicAndOrderSensitive(t *testing.T) {
	closureFp := fp.New("closure")
	args := []NamedTag{{Name: "x", Tag: fp.New("1")}, {Name: "y", Tag: fp.New("2")}}

	pk1 := FunctionPK("", closureFp, nil, args)
	pk2 := FunctionPK("", closureFp, nil, args)
	assert.Equal(t, pk1, pk2)

	swapped := []NamedTag{args[1], args[0]}
	pk3 := FunctionPK("", closureFp, nil, swapped)
	assert.NotEqual(t, pk1, pk3, "argument order must be part of the PK identity")
}

func TestPKSaltChangesNamespace(t *testing.T) {
	closureFp := fp.New("closure")
	pk1 := FunctionPK("", closureFp, nil, nil)
	pk2 := FunctionPK("salt2", closureFp, nil, nil)
	assert.NotEqual(t, pk1, pk2)
}

func TestModelPKSpecialVsNormal(t *testing.T) {
	modelFp := fp.New("model")
	contentFp := fp.New("content")
	special := ModelPK("", true, modelFp, contentFp)
	normal := ModelPK("", false, modelFp, contentFp)
	assert.NotEqual(t, special, normal)
}

func TestToolPKChangesWithCommand(t *testing.T) {
	base := ToolCallParams{Platform: "linux-x86", Command: []string{"cc", "hello.c"}}
	other := base
	other.Command = []string{"cc", "other.c"}
	assert.NotEqual(t, ToolPK("", base), ToolPK("", other))
}
