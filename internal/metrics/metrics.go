// Package metrics exposes the engine's Prometheus gauges and counters,
// grounded on cuemby-warren's pkg/metrics: package-level collectors
// registered once in init.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_transitions_total",
			Help: "Total number of FSM transitions performed, by interface, action, and outcome",
		},
		[]string{"interface", "action", "outcome"},
	)

	TransitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_transition_duration_seconds",
			Help:    "Time taken to perform a transition, including subscription dispatch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"interface", "action"},
	)

	BindingsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_bindings_applied_total",
			Help: "Total number of operation/result bindings applied",
		},
		[]string{"operation", "result"},
	)

	DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_dispatch_queue_depth",
			Help: "Current number of outbound dispatches buffered or in flight",
		},
	)

	DispatchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_dispatch_attempts_total",
			Help: "Total number of outbound dispatch delivery attempts, by outcome",
		},
		[]string{"outcome"},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_notifications_sent_total",
			Help: "Total number of notification dispatch rows delivered, by channel and mode",
		},
		[]string{"channel", "mode"},
	)

	NotificationSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_notification_sweep_duration_seconds",
			Help:    "Time taken for one periodic notification executor sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		TransitionsTotal,
		TransitionDuration,
		BindingsAppliedTotal,
		DispatchQueueDepth,
		DispatchAttemptsTotal,
		NotificationsSentTotal,
		NotificationSweepDuration,
	)
}

// Handler returns the Prometheus scrape handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
