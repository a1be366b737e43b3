package applycache

import (
	"sync"

	"github.com/nicolagi/vesta/internal/fp"
)

// memEntry is one stored cache row, keyed by primary key.
type memEntry struct {
	fvs      []FV
	tags     []fp.Tag
	pickled  []byte
	modelSid int64
	children []int64
	label    string
	ci       int64
}

// MemoryClient is an in-process reference implementation of Client,
// sufficient to drive the end-to-end scenarios of spec.md §8 without a real
// remote cache server (SPEC_FULL §3's internal/cacheclient reference
// implementation builds its remote variant around the same entry shape).
type MemoryClient struct {
	mu      sync.Mutex
	byPK    map[fp.Tag]*memEntry
	nextCI  int64
	epoch   uint64
	leased  map[int64]bool
}

// NewMemoryClient constructs an empty in-memory cache.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		byPK:   make(map[fp.Tag]*memEntry),
		leased: make(map[int64]bool),
	}
}

func (c *MemoryClient) FreeVariables(pk fp.Tag) ([]FV, uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byPK[pk]
	if !ok {
		return nil, c.epoch, true, nil
	}
	return e.fvs, c.epoch, false, nil
}

func (c *MemoryClient) Lookup(pk fp.Tag, epoch uint64, tags []fp.Tag) (LookupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return LookupResult{Outcome: FVMismatch}, nil
	}
	e, ok := c.byPK[pk]
	if !ok {
		return LookupResult{Outcome: Miss}, nil
	}
	if len(tags) != len(e.tags) {
		return LookupResult{Outcome: FVMismatch}, nil
	}
	for i := range tags {
		if tags[i] != e.tags[i] {
			return LookupResult{Outcome: Miss}, nil
		}
	}
	return LookupResult{Outcome: Hit, CI: e.ci, Pickled: e.pickled}, nil
}

func (c *MemoryClient) AddEntry(pk fp.Tag, fvs []FV, tags []fp.Tag, pickled []byte, modelSid int64, childCIs []int64, sourceLabel string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextCI++
	ci := c.nextCI
	c.byPK[pk] = &memEntry{
		fvs:      fvs,
		tags:     tags,
		pickled:  pickled,
		modelSid: modelSid,
		children: childCIs,
		label:    sourceLabel,
		ci:       ci,
	}
	c.leased[ci] = true
	c.epoch++
	return ci, nil
}

func (c *MemoryClient) Checkpoint(modelTag fp.Tag, modelSid int64, orphanCIs []int64, final bool) error {
	return nil
}

func (c *MemoryClient) RenewLeases(cis []int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ci := range cis {
		if !c.leased[ci] {
			return false, nil
		}
	}
	return true, nil
}

var _ Client = (*MemoryClient)(nil)
