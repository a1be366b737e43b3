// Package metrics exposes the evaluator's ambient Prometheus counters and
// gauges: cache hit/miss/FVMismatch, lease-renewal failures, and
// host-selector saturation waits (SPEC_FULL §3's domain-stack wiring for
// github.com/prometheus/client_golang). The cache protocol itself never
// branches on these values; they are observability only.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vesta",
		Subsystem: "applycache",
		Name:      "lookups_total",
		Help:      "Cache Lookup outcomes by result and call kind.",
	}, []string{"result", "kind"})

	FVMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vesta",
		Subsystem: "applycache",
		Name:      "fv_mismatches_total",
		Help:      "Number of FVMismatch retries encountered, by call kind.",
	}, []string{"kind"})

	DependencyCheckMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesta",
		Subsystem: "applycache",
		Name:      "dependency_check_mismatches_total",
		Help:      "Number of -dependency-check re-derivations that disagreed with a Hit.",
	})

	LeaseRenewalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesta",
		Subsystem: "applycache",
		Name:      "lease_renewal_failures_total",
		Help:      "Number of RenewLeases calls that failed or returned false.",
	})

	OrphanCIsAdopted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesta",
		Subsystem: "applycache",
		Name:      "orphan_cis_adopted_total",
		Help:      "Number of orphan cache indices adopted as children of an AddEntry.",
	})

	HostSelectorSaturationWaits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vesta",
		Subsystem: "hostselect",
		Name:      "saturation_waiters",
		Help:      "Number of run_tool callers currently blocked on host saturation.",
	})

	RunToolDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vesta",
		Subsystem: "primruntool",
		Name:      "dispatches_total",
		Help:      "Number of run_tool dispatches by outcome (ok, error, paused).",
	}, []string{"outcome"})
)
