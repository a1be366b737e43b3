// Package applycache implements the memoization driver of spec.md §4.3: for
// each call site of a cacheable unit (function, model, run_tool) it derives
// a primary key, asks a cache client for the free-variable list, resolves
// those paths against the current context, and either restores a pickled
// result or executes the body and records a new entry.
package applycache

import (
	"fmt"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/fp"
)

// ErrFVMismatch names the condition where the cache added entries between
// the FreeVariables call and a Lookup. Client.Lookup reports that condition
// through LookupResult.Outcome (FVMismatch), not as this error; the driver
// retries the whole protocol loop on it.
var ErrFVMismatch = fmt.Errorf("applycache: free-variable mismatch")

// FV is one free-variable entry returned by FreeVariables: a path to
// resolve against the caller's context, plus the kind of observation the
// cache wants fingerprinted there.
type FV struct {
	Path deppath.Path
	Kind deppath.Kind
}

// LookupOutcome discriminates the three outcomes of Client.Lookup (spec.md
// §4.3's "match res:" block).
type LookupOutcome uint8

const (
	Miss LookupOutcome = iota
	Hit
	FVMismatch
)

// LookupResult is the result of a Lookup call.
type LookupResult struct {
	Outcome LookupOutcome
	CI      int64
	Pickled []byte
}

// Client is the abstract cache-server protocol (spec.md §6 "Cache client").
// internal/cacheclient provides both an in-process reference implementation
// and a net/rpc-backed remote one.
type Client interface {
	// FreeVariables returns the free-variable list for pk and the cache's
	// current epoch, or noEntry=true if pk has never been seen.
	FreeVariables(pk fp.Tag) (fv []FV, epoch uint64, noEntry bool, err error)

	// Lookup matches the observed tags (in the same order as the FV list
	// that produced them) against the stored entry for pk at epoch.
	Lookup(pk fp.Tag, epoch uint64, tags []fp.Tag) (LookupResult, error)

	// AddEntry stores a fresh cache entry and returns its cache index. fvs
	// is the reduced dependency set (the secondary key); childCIs are the
	// orphan CIs accumulated since the kidsIndex marker, which become
	// children of the new entry.
	AddEntry(pk fp.Tag, fvs []FV, tags []fp.Tag, pickled []byte, modelSid int64, childCIs []int64, sourceLabel string) (ci int64, err error)

	// Checkpoint folds the aggregate orphan-CI set into the cache's durable
	// state. final marks a clean-shutdown checkpoint (spec.md §4.3 item 6,
	// SPEC_FULL §4's Checkpoint final flag).
	Checkpoint(modelTag fp.Tag, modelSid int64, orphanCIs []int64, final bool) error

	// RenewLeases extends the lease on every CI in cis, returning false if
	// the cache server rejected the renewal (spec.md §4.3 "Lease renewal
	// thread").
	RenewLeases(cis []int64) (bool, error)
}

// CallKind discriminates the three cacheable call kinds of spec.md §4.3's
// primary-key derivation table.
type CallKind uint8

const (
	KindFunction CallKind = iota
	KindModel
	KindTool
)

func (k CallKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindModel:
		return "model"
	case KindTool:
		return "tool"
	default:
		return "unknown"
	}
}
