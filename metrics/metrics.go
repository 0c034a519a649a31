// Package metrics provides Prometheus instrumentation for the call
// orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parley"

var (
	// turnsTotal is a counter of conversation turns by role and outcome.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"role", "status"}, // status: ok, fallback, limited
	)

	// completionRequestDuration is a histogram of completion API call duration.
	completionRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_request_duration_seconds",
			Help:      "Duration of completion API calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model", "status"}, // status: success, error
	)

	// breakerState is a gauge of circuit breaker state per breaker.
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)

	// rateLimitRejectionsTotal is a counter of turns rejected by the daily limit.
	rateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of turns rejected by the daily limit",
		},
	)

	// lifecycleEventsTotal is a counter of lifecycle events by kind.
	lifecycleEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Total number of lifecycle events processed",
		},
		[]string{"kind"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		turnsTotal,
		completionRequestDuration,
		breakerState,
		rateLimitRejectionsTotal,
		lifecycleEventsTotal,
	}
)

// Turn outcome labels.
const (
	TurnOK       = "ok"
	TurnFallback = "fallback"
	TurnLimited  = "limited"
)

// RecordTurn records a completed conversation turn.
func RecordTurn(role, status string) {
	turnsTotal.WithLabelValues(role, status).Inc()
}

// RecordCompletionRequest records a completion API call.
func RecordCompletionRequest(model, status string, durationSeconds float64) {
	completionRequestDuration.WithLabelValues(model, status).Observe(durationSeconds)
}

// RecordBreakerState records the current state of a circuit breaker.
func RecordBreakerState(breaker string, state float64) {
	breakerState.WithLabelValues(breaker).Set(state)
}

// RecordRateLimitRejection records a turn rejected by the daily limit.
func RecordRateLimitRejection() {
	rateLimitRejectionsTotal.Inc()
}

// RecordLifecycleEvent records a processed lifecycle event.
func RecordLifecycleEvent(kind string) {
	lifecycleEventsTotal.WithLabelValues(kind).Inc()
}

// Register adds all orchestrator metrics to reg.
func Register(reg *prometheus.Registry) {
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
}
