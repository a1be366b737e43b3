package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/vesta/internal/storage"
	"github.com/nicolagi/vesta/internal/value"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0644))
}

func TestLoadModelNormalAndSpecial(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.vesta", "1")
	writeFile(t, dir, "lib/helper.vesta", "2")

	r, err := New(dir, "main.vesta")
	require.NoError(t, err)

	m, err := r.LoadModel(value.Empty, value.NewInlineText([]byte("main.vesta")))
	require.NoError(t, err)
	assert.Equal(t, value.ModelSpecial, m.ModelOf)
	assert.Equal(t, "main.vesta", m.Name)

	other, err := r.LoadModel(value.Empty, value.NewInlineText([]byte("lib/helper.vesta")))
	require.NoError(t, err)
	assert.Equal(t, value.ModelNormal, other.ModelOf)
	assert.NotEqual(t, m.Sid, other.Sid)
}

func TestLoadModelRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inside.vesta", "1")

	r, err := New(dir, "inside.vesta")
	require.NoError(t, err)

	_, err = r.LoadModel(value.Empty, value.NewInlineText([]byte("../outside.vesta")))
	assert.Error(t, err)
}

func TestLoadModelRejectsNonInlinePath(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, "")
	require.NoError(t, err)

	_, err = r.LoadModel(value.Empty, value.NewInteger(1))
	assert.Error(t, err)
}

func TestParseModelRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "m.vesta", "1 + 2")

	r, err := New(dir, "m.vesta")
	require.NoError(t, err)

	m, err := r.LoadModel(value.Empty, value.NewInlineText([]byte("m.vesta")))
	require.NoError(t, err)

	expr, err := r.ParseModel(m)
	require.NoError(t, err)
	require.NotNil(t, expr)
}

func TestParseModelUnknownSid(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, "")
	require.NoError(t, err)

	_, err = r.ParseModel(value.NewModel("nope", 999, r, value.ModelNormal, r.tag))
	assert.Error(t, err)
}

func TestTagStableAcrossOpensSamePath(t *testing.T) {
	dir := t.TempDir()
	r1, err := New(dir, "")
	require.NoError(t, err)
	r2, err := New(dir, "")
	require.NoError(t, err)
	assert.Equal(t, r1.Tag(), r2.Tag())
}

func TestTagDiffersAcrossPaths(t *testing.T) {
	r1, err := New(t.TempDir(), "")
	require.NoError(t, err)
	r2, err := New(t.TempDir(), "")
	require.NoError(t, err)
	assert.NotEqual(t, r1.Tag(), r2.Tag())
}

func TestShipToAndShipFromRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, srcDir, "main.vesta", "1")
	writeFile(t, srcDir, "lib/helper.vesta", "2")

	store := storage.NewDiskStore(t.TempDir())

	r, err := New(srcDir, "main.vesta")
	require.NoError(t, err)

	ref, err := r.ShipTo(store)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	dstDir := filepath.Join(t.TempDir(), "checkout")
	r2, err := ShipFrom(store, ref, dstDir, "main.vesta")
	require.NoError(t, err)

	m, err := r2.LoadModel(value.Empty, value.NewInlineText([]byte("lib/helper.vesta")))
	require.NoError(t, err)
	assert.Equal(t, value.ModelNormal, m.ModelOf)

	got, err := os.ReadFile(filepath.Join(dstDir, "lib/helper.vesta"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
}
