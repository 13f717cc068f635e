// Package metrics exposes Prometheus collectors for generation sessions and credits.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "muse"

// Session outcome labels.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected" // failed before a request was sent
)

var (
	GenerationSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "sessions_total",
			Help:      "Total number of generation sessions by outcome",
		},
		[]string{"mode", "status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Generation session duration in seconds, request to end of stream",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	CreditsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "consumed_total",
			Help:      "Credits deducted on request acceptance",
		},
		[]string{"mode"},
	)

	CreditsRefundedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "refunded_total",
			Help:      "Credits returned under the refund policy",
		},
		[]string{"mode"},
	)

	RecordsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "emitted_total",
			Help:      "Records decoded and delivered to callers",
		},
		[]string{"mode"},
	)

	RecordsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "dropped_total",
			Help:      "Frames that failed to parse and were skipped",
		},
		[]string{"mode"},
	)
)

// RecordSession records the outcome of one session.
func RecordSession(mode, status string, seconds float64) {
	GenerationSessionsTotal.WithLabelValues(mode, status).Inc()
	if status != StatusRejected {
		GenerationDuration.WithLabelValues(mode).Observe(seconds)
	}
}

// RecordCredits records a deduction (positive) or refund (negative) for mode.
func RecordCredits(mode string, delta int) {
	switch {
	case delta > 0:
		CreditsConsumedTotal.WithLabelValues(mode).Add(float64(delta))
	case delta < 0:
		CreditsRefundedTotal.WithLabelValues(mode).Add(float64(-delta))
	}
}
