// Package metrics provides Prometheus metrics for parish import runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks import runs by kind and final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parish",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// RunDuration tracks import run duration in seconds.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parish",
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Duration of import runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	// RecordsTotal tracks per-record outcomes: imported, updated, rejected, failed.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parish",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Total number of records processed by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// RejectionsTotal tracks validation rejections by reason.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parish",
			Subsystem: "validate",
			Name:      "rejections_total",
			Help:      "Total number of search candidates rejected by reason",
		},
		[]string{"country", "reason"},
	)

	// QueryFailuresTotal tracks provider search queries that failed.
	QueryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parish",
			Subsystem: "search",
			Name:      "query_failures_total",
			Help:      "Total number of failed provider search queries",
		},
		[]string{"country"},
	)

	// CircuitState tracks provider circuit breakers: 0 closed, 1 open, 2 half-open.
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "parish",
			Subsystem: "provider",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per provider service (0 closed, 1 open, 2 half-open)",
		},
		[]string{"service"},
	)
)

// Outcome labels for RecordsTotal.
const (
	OutcomeImported = "imported"
	OutcomeUpdated  = "updated"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// ObserveRecords adds the per-outcome counts of one run.
func ObserveRecords(kind string, imported, updated, rejected, failed int) {
	RecordsTotal.WithLabelValues(kind, OutcomeImported).Add(float64(imported))
	RecordsTotal.WithLabelValues(kind, OutcomeUpdated).Add(float64(updated))
	RecordsTotal.WithLabelValues(kind, OutcomeRejected).Add(float64(rejected))
	RecordsTotal.WithLabelValues(kind, OutcomeFailed).Add(float64(failed))
}
