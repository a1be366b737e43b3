package applycache

import (
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/diffdump"
	"github.com/nicolagi/vesta/internal/fp"
)

func TestApplyMissThenHit(t *testing.T) {
	defer leaktest.Check(t)()

	cache := NewMemoryClient()
	d := NewDriver(cache, "")
	defer d.Close()

	td := d.Spawn(nil)
	pk := fp.New("FUNC_VERSION_STRING").Extend([]byte("f")).Extend([]byte("1")).Extend([]byte("2"))

	calls := 0
	body := func() (BodyResult, error) {
		calls++
		return BodyResult{
			Cacheable: true,
			Deps:      nil,
			Tags:      nil,
			Pickled:   []byte("3"),
		}, nil
	}
	resolve := func(fv FV) (fp.Tag, error) { return fp.Zero, nil }

	ci1, pickled1, hit1, err := d.Apply(td, KindFunction, pk, false, resolve, 0, "f(1,2)", body)
	require.NoError(t, err)
	assert.False(t, hit1)
	assert.Equal(t, []byte("3"), pickled1)
	assert.Equal(t, 1, calls)

	ci2, pickled2, hit2, err := d.Apply(td, KindFunction, pk, false, resolve, 0, "f(1,2)", body)
	require.NoError(t, err)
	assert.True(t, hit2)
	assert.Equal(t, ci1, ci2)
	assert.Equal(t, pickled1, pickled2)
	assert.Equal(t, 1, calls, "body must not run again on Hit")
}

func TestApplyNonCacheableResultIsNotStored(t *testing.T) {
	cache := NewMemoryClient()
	d := NewDriver(cache, "")
	defer d.Close()

	td := d.Spawn(nil)
	pk := fp.New("TOOL_VERSION_STRING").Extend([]byte("t"))

	calls := 0
	body := func() (BodyResult, error) {
		calls++
		return BodyResult{Cacheable: false, Pickled: []byte("paused")}, nil
	}
	resolve := func(fv FV) (fp.Tag, error) { return fp.Zero, nil }

	_, pickled, hit, err := d.Apply(td, KindTool, pk, false, resolve, 0, "run_tool", body)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("paused"), pickled)

	_, _, hit2, err := d.Apply(td, KindTool, pk, false, resolve, 0, "run_tool", body)
	require.NoError(t, err)
	assert.False(t, hit2)
	assert.Equal(t, 2, calls, "non-cacheable result must not suppress the next body invocation")
}

func TestApplyOrphanCIsBecomeChildren(t *testing.T) {
	cache := NewMemoryClient()
	d := NewDriver(cache, "")
	defer d.Close()

	td := d.Spawn(nil)
	resolve := func(fv FV) (fp.Tag, error) { return fp.Zero, nil }

	// The child call runs inside the parent's body, so its CI is an orphan
	// added after the parent's kidsIndex marker.
	childPK := fp.New("FUNC_VERSION_STRING").Extend([]byte("g"))
	var childCI int64
	parentPK := fp.New("FUNC_VERSION_STRING").Extend([]byte("f"))
	_, _, _, err := d.Apply(td, KindFunction, parentPK, false, resolve, 0, "f()", func() (BodyResult, error) {
		var cerr error
		childCI, _, _, cerr = d.Apply(td, KindFunction, childPK, false, resolve, 0, "g()", func() (BodyResult, error) {
			return BodyResult{Cacheable: true, Pickled: []byte("child")}, nil
		})
		require.NoError(t, cerr)
		return BodyResult{Cacheable: true, Pickled: []byte("parent")}, nil
	})
	require.NoError(t, err)

	entry, ok := cache.byPK[parentPK]
	require.True(t, ok)
	assert.Contains(t, entry.children, childCI)
}

func TestSummarizeFVsDiffsCleanlyWithDiffdump(t *testing.T) {
	a := []FV{{Path: deppath.New(deppath.Norm).Extend("x", deppath.Norm), Kind: deppath.Norm}}
	before := summarizeFVs(a, []fp.Tag{fp.New("1")})
	after := summarizeFVs(a, []fp.Tag{fp.New("2")})

	diff, err := diffdump.Unified(diffdump.StringNode(before), diffdump.StringNode(after), 1)
	require.NoError(t, err)
	assert.True(t, strings.Contains(diff, "-") && strings.Contains(diff, "+"), "expected a unified diff with both removed and added lines, got: %s", diff)

	same, err := diffdump.Unified(diffdump.StringNode(before), diffdump.StringNode(before), 1)
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestWaitPKTableSerializesDuplicates(t *testing.T) {
	defer leaktest.Check(t)()

	table := NewWaitPKTable(16)
	pk := fp.New("x")

	isWinner := table.EnterOrWait(pk, KindFunction)
	assert.True(t, isWinner)

	done := make(chan bool)
	go func() {
		done <- table.EnterOrWait(pk, KindFunction)
	}()

	// Give the second caller time to find the held entry and block on it
	// before the winner wakes it.
	time.Sleep(50 * time.Millisecond)
	table.WakeWaiting(pk, KindFunction)
	assert.False(t, <-done)
}
