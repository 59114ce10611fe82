// Package metrics holds the Prometheus collectors for the economy service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Operations counts economy operations by name and outcome.
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "economy",
	Name:      "operations_total",
	Help:      "Total economy operations by operation and outcome.",
}, []string{"operation", "outcome"})

// CreditsMoved sums absolute credit movement by transaction kind.
var CreditsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "economy",
	Name:      "credits_moved_total",
	Help:      "Total credits moved through the ledger by transaction kind.",
}, []string{"kind"})

var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "economy",
	Name:      "level_ups_total",
	Help:      "Total levels gained across all accounts.",
})

var RewardClaims = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "economy",
	Name:      "reward_claims_total",
	Help:      "Total level rewards claimed.",
})

// LedgerApplyDuration observes how long a ledger batch holds its locks.
var LedgerApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "guild",
	Subsystem: "ledger",
	Name:      "apply_duration_seconds",
	Help:      "Latency of atomic ledger batches.",
	Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
})

// ObserveLedger records a ledger batch duration.
func ObserveLedger(start time.Time) {
	LedgerApplyDuration.Observe(time.Since(start).Seconds())
}
