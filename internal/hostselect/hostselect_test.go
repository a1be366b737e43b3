package hostselect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProber(infos map[string]Info) InfoProber {
	return func(host string) (Info, error) {
		return infos[host], nil
	}
}

func TestSelectPrefersIdleLowLoadHost(t *testing.T) {
	p := Platform{Hosts: []string{"a", "b"}}
	infos := map[string]Info{
		"a": {UniqueID: "a", CPUs: 4, CPUMHz: 2000, MemKB: 1 << 20},
		"b": {UniqueID: "b", CPUs: 4, CPUMHz: 2000, MemKB: 1 << 20},
	}
	sel := New(p, fakeProber(infos), 4, 2)

	load := map[string]float64{"a": 3.9, "b": 0.1}
	chosen, err := sel.Select(func(host string) (float64, int) { return load[host], 4 })
	require.NoError(t, err)
	assert.Equal(t, "b", chosen.Host)
	assert.NotEqual(t, chosen.CorrelationID.String(), "")
}

func TestSelectSkipsBadHosts(t *testing.T) {
	p := Platform{Hosts: []string{"a", "b"}, MinCPUs: 8}
	infos := map[string]Info{
		"a": {UniqueID: "a", CPUs: 2, CPUMHz: 2000, MemKB: 1 << 20},
		"b": {UniqueID: "b", CPUs: 16, CPUMHz: 2000, MemKB: 1 << 20},
	}
	sel := New(p, fakeProber(infos), 4, 2)

	chosen, err := sel.Select(func(host string) (float64, int) { return 0, 16 })
	require.NoError(t, err)
	assert.Equal(t, "b", chosen.Host)
}

func TestDoneFreesSlotForWaiter(t *testing.T) {
	p := Platform{Hosts: []string{"a"}}
	infos := map[string]Info{"a": {UniqueID: "a", CPUs: 1, CPUMHz: 1000, MemKB: 1 << 10}}
	sel := New(p, fakeProber(infos), 1, 0)

	first, err := sel.Select(func(string) (float64, int) { return 10, 1 })
	require.NoError(t, err)
	assert.Equal(t, "a", first.Host)

	unblocked := make(chan Selection, 1)
	go func() {
		s, _ := sel.Select(func(string) (float64, int) { return 10, 1 })
		unblocked <- s
	}()

	sel.Done("a")
	second := <-unblocked
	assert.Equal(t, "a", second.Host)
}
