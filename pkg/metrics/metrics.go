// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived tracks events accepted onto the pipeline inbox, by kind.
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_received_total",
			Help: "Events accepted onto the pipeline inbox",
		},
		[]string{"kind"},
	)

	// EventsDropped tracks events dropped due to inbox or buffer overflow.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Events dropped due to backpressure",
		},
		[]string{"stage"},
	)

	// FlushesTotal tracks flush attempts by outcome.
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_flushes_total",
			Help: "Flush attempts by outcome (sent, empty, busy, failed)",
		},
		[]string{"outcome"},
	)

	// FlushDuration tracks end-to-end delivery duration of a flush payload.
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_flush_duration_seconds",
			Help:    "Time spent formatting and delivering a flush payload",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// FlushBatchSize tracks the number of output events per delivered batch.
	FlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_flush_batch_size",
			Help:    "Output events per delivered batch",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)

	// DeduplicatedUsers tracks users already present in the key LRU.
	DeduplicatedUsers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_deduplicated_users_total",
			Help: "Index events suppressed because the user key was already known",
		},
	)

	// EvaluationsTotal tracks flag evaluations by reason kind.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_evaluations_total",
			Help: "Flag evaluations by reason kind",
		},
		[]string{"flag", "reason"},
	)

	// EvaluationErrors tracks evaluations resolving to an error reason.
	EvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_evaluation_errors_total",
			Help: "Evaluations resolving to an error reason, by error kind",
		},
		[]string{"error_kind"},
	)

	// StoreUpdates tracks feature store writes applied from the update stream.
	StoreUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_store_updates_total",
			Help: "Feature store writes applied from the update stream",
		},
		[]string{"kind", "action"},
	)

	// RequestDuration tracks HTTP request duration on the relay surface.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests on the relay surface.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordRequest records a completed HTTP request.
func RecordRequest(method, path, status string, durationSec float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSec)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
