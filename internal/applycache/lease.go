package applycache

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/vesta/internal/metrics"
)

// LeaseRenewalInterval is spec.md §4.3's "sleep 10s" renewal period.
const LeaseRenewalInterval = 10 * time.Second

// leaseRenewer is the single background task of spec.md §4.3's "Lease
// renewal thread": every LeaseRenewalInterval it collects every live
// thread's orphan CIs (plus unclaimed child orphans) and calls
// cache.RenewLeases. Any failure (other than one retriable "server busy")
// sets failed, which CheckLeases consults to abort the evaluator.
type leaseRenewer struct {
	cache Client
	reg   *registry

	mu     sync.Mutex
	failed bool

	stop chan struct{}
	done chan struct{}
}

func newLeaseRenewer(cache Client, reg *registry) *leaseRenewer {
	return &leaseRenewer{
		cache: cache,
		reg:   reg,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the renewal loop in its own goroutine.
func (r *leaseRenewer) Start() {
	go r.loop()
}

// Stop signals the loop to exit and waits for it to do so.
func (r *leaseRenewer) Stop() {
	close(r.stop)
	<-r.done
}

// Failed reports whether the renewal loop has given up, per spec.md §4.3's
// "set renewLease_failure = true and exit; the main evaluator aborts at
// next CheckLeases".
func (r *leaseRenewer) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

func (r *leaseRenewer) loop() {
	defer close(r.done)
	ticker := time.NewTicker(LeaseRenewalInterval)
	defer ticker.Stop()
	retriedBusy := false
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		var cis []int64
		for _, td := range r.reg.snapshot() {
			cis = append(cis, td.AllOrphans()...)
		}
		if len(cis) == 0 {
			continue
		}

		ok, err := r.cache.RenewLeases(cis)
		if err != nil {
			if isServerBusy(err) && !retriedBusy {
				retriedBusy = true
				log.WithError(err).Warn("applycache: renew leases: server busy, retrying once")
				ok, err = r.cache.RenewLeases(cis)
			}
			if err != nil {
				log.WithError(err).Error("applycache: renew leases: giving up")
				metrics.LeaseRenewalFailures.Inc()
				r.mu.Lock()
				r.failed = true
				r.mu.Unlock()
				return
			}
		}
		retriedBusy = false
		if !ok {
			log.Error("applycache: renew leases: server rejected renewal")
			metrics.LeaseRenewalFailures.Inc()
			r.mu.Lock()
			r.failed = true
			r.mu.Unlock()
			return
		}
	}
}

func isServerBusy(err error) bool {
	type busy interface{ ServerBusy() bool }
	if b, ok := err.(busy); ok {
		return b.ServerBusy()
	}
	return false
}
