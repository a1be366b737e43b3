package applycache

import (
	"fmt"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/vesta/internal/diffdump"
	"github.com/nicolagi/vesta/internal/fp"
	"github.com/nicolagi/vesta/internal/metrics"
)

// ErrLeasesTimedOut is the fatal error spec.md §8 scenario S6 names
// verbatim ("Leases timed out. Start over.").
var ErrLeasesTimedOut = fmt.Errorf("Leases timed out. Start over.")

// FreeVariableResolver resolves one FV entry against a call's context,
// returning the fingerprint the cache should compare against the stored
// secondary key. The eval package supplies this (it alone knows how to
// walk a deppath.Path against a value.Context); applycache stays decoupled
// from value/eval to avoid an import cycle (eval already depends on
// applycache for the memoization protocol).
type FreeVariableResolver func(fv FV) (fp.Tag, error)

// Body is the cacheable unit's implementation: run it and return the
// result's secondary-key entries (the reduced dependency set, spec.md
// §4.3 item 1) plus the pickled bytes and whether the result is cacheable
// at all (SPEC_FULL §4's run_tool pause/core-dump rules can force this
// false even on success).
type Body func() (result BodyResult, err error)

// BodyResult is what executing a cache miss's body produces.
type BodyResult struct {
	Cacheable bool
	Deps      []FV
	Tags      []fp.Tag
	Pickled   []byte
}

// Driver runs the ApplyCache protocol of spec.md §4.3 against a Client.
type Driver struct {
	Cache    Client
	WaitTable *WaitPKTable
	PKSalt   string

	// DependencyCheck mirrors SPEC_FULL §4's -dependency-check flag: on a
	// Hit, Apply calls Recheck (when set) with the primary key and the hit's
	// CI, then returns the Hit as usual. Apply does not re-execute the body
	// or compare free-variable tags in this mode.
	DependencyCheck bool
	Recheck         func(pk fp.Tag, hitCI int64)

	// NoAddEntry mirrors SPEC_FULL §4's -noaddentry flag: a Miss still
	// executes body and returns its result, but no new cache entry is
	// written, so a debugging run never perturbs a shared cache.
	NoAddEntry bool

	reg      *registry
	lessor   *leaseRenewer
	addCount int64
}

// NewDriver constructs a Driver, starting its lease-renewal loop.
func NewDriver(cache Client, pkSalt string) *Driver {
	d := &Driver{
		Cache:     cache,
		WaitTable: NewWaitPKTable(4096),
		PKSalt:    pkSalt,
		reg:       newRegistry(),
	}
	d.lessor = newLeaseRenewer(cache, d.reg)
	d.lessor.Start()
	return d
}

// Close stops the lease-renewal loop.
func (d *Driver) Close() {
	d.lessor.Stop()
}

// Spawn registers a new worker thread (e.g. one par_map element), returning
// its ThreadData. Call Retire when the worker finishes.
func (d *Driver) Spawn(parent *ThreadData) *ThreadData {
	return d.reg.spawn(parent)
}

// Retire unregisters td, handing any leftover orphans up to its parent.
func (d *Driver) Retire(td *ThreadData) {
	d.reg.retire(td)
}

// CheckLeases aborts the caller (returns ErrLeasesTimedOut) if the
// lease-renewal loop has failed, per spec.md §8 scenario S6.
func (d *Driver) CheckLeases() error {
	if d.lessor.Failed() {
		return ErrLeasesTimedOut
	}
	return nil
}

// waitOnDuplicate marks the subset of callers spec.md §4.3 describes as
// entering WaitForDuplicate: wait-on-duplicate is an attribute of the call
// site, not every call, so Apply takes it as a parameter.

// Apply drives one cacheable call site through the full protocol: it loops
// FreeVariables → resolve → Lookup until it gets a definitive Miss or Hit,
// executing body on Miss and recording a new entry if the result is
// cacheable. sourceLabel is a short human-readable description of the call
// site, used only for AddEntry's diagnostic label.
func (d *Driver) Apply(td *ThreadData, kind CallKind, pk fp.Tag, waitOnDuplicate bool, resolve FreeVariableResolver, modelSid int64, sourceLabel string, body Body) (ci int64, pickled []byte, hit bool, err error) {
	if waitOnDuplicate {
		if !d.WaitTable.EnterOrWait(pk, kind) {
			// A duplicate ran (or is running); the cache should now have an
			// entry, so fall straight into the Lookup loop below as if we
			// had just entered -- no separate branch needed since the loop
			// itself is idempotent on a Hit.
		} else {
			defer d.WaitTable.WakeWaiting(pk, kind)
		}
	}

	var prevFVSummary string
	for {
		fvs, epoch, noEntry, ferr := d.Cache.FreeVariables(pk)
		if ferr != nil {
			return 0, nil, false, fmt.Errorf("applycache.Apply: FreeVariables: %w", ferr)
		}
		if noEntry {
			break
		}

		tags := make([]fp.Tag, len(fvs))
		for i, fv := range fvs {
			tags[i], err = resolve(fv)
			if err != nil {
				return 0, nil, false, fmt.Errorf("applycache.Apply: resolving FV %d: %w", i, err)
			}
		}

		res, lerr := d.Cache.Lookup(pk, epoch, tags)
		if lerr != nil {
			return 0, nil, false, fmt.Errorf("applycache.Apply: Lookup: %w", lerr)
		}
		switch res.Outcome {
		case Hit:
			metrics.CacheLookups.WithLabelValues("hit", kind.String()).Inc()
			if d.DependencyCheck && d.Recheck != nil {
				d.Recheck(pk, res.CI)
			}
			return res.CI, res.Pickled, true, nil
		case FVMismatch:
			metrics.FVMismatches.WithLabelValues(kind.String()).Inc()
			curFVSummary := summarizeFVs(fvs, tags)
			if prevFVSummary != "" {
				if diff, derr := diffdump.Unified(diffdump.StringNode(prevFVSummary), diffdump.StringNode(curFVSummary), 1); derr == nil && diff != "" {
					log.WithFields(log.Fields{"pk": pk.String(), "kind": kind.String()}).
						Debugf("applycache: free-variable set changed since last attempt:\n%s", diff)
				}
			}
			prevFVSummary = curFVSummary
			log.WithFields(log.Fields{"pk": pk.String(), "kind": kind.String()}).
				Debug("applycache: FVMismatch, retrying")
			continue
		case Miss:
			metrics.CacheLookups.WithLabelValues("miss", kind.String()).Inc()
			break
		}
		break
	}

	kidsIndex := td.KidsIndex()
	result, berr := body()
	if berr != nil {
		return 0, nil, false, berr
	}
	if !result.Cacheable || d.NoAddEntry {
		return 0, result.Pickled, false, nil
	}

	childCIs := td.AdoptSince(kidsIndex)
	childCIs = append(childCIs, td.claimUnclaimed()...)
	newCI, aerr := d.Cache.AddEntry(pk, result.Deps, result.Tags, result.Pickled, modelSid, childCIs, sourceLabel)
	if aerr != nil {
		return 0, nil, false, fmt.Errorf("applycache.Apply: AddEntry: %w", aerr)
	}
	td.Append(newCI)
	metrics.OrphanCIsAdopted.Add(float64(len(childCIs)))

	if n := atomic.AddInt64(&d.addCount, 1); n%64 == 0 {
		d.checkpoint(td, modelSid)
	}

	return newCI, result.Pickled, false, nil
}

// summarizeFVs renders one free-variable resolution attempt as text, one
// entry per line, so two attempts across a FVMismatch retry loop can be
// diffed with internal/diffdump to show exactly which dependency changed.
func summarizeFVs(fvs []FV, tags []fp.Tag) string {
	var b strings.Builder
	for i, fv := range fvs {
		fmt.Fprintf(&b, "%s %s %s\n", fv.Kind, fv.Path.String(), tags[i])
	}
	return b.String()
}

func (d *Driver) checkpoint(td *ThreadData, modelSid int64) {
	orphans := td.AllOrphans()
	if err := d.Cache.Checkpoint(fp.Zero, modelSid, orphans, false); err != nil {
		log.WithError(err).Warn("applycache: checkpoint failed")
	}
}

// Shutdown issues a final=true checkpoint (SPEC_FULL §4) and stops the
// lease-renewal loop; call once at clean evaluator exit.
func (d *Driver) Shutdown(td *ThreadData, modelSid int64) error {
	err := d.Cache.Checkpoint(fp.Zero, modelSid, td.AllOrphans(), true)
	d.Close()
	return err
}
