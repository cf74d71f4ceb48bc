// Package metrics provides Prometheus instrumentation for the policy
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	// Decisions counts policy decisions by concern (cors, cache,
	// negotiate) and outcome (allow, deny, use-cache, revalidate, bypass,
	// acceptable, not-acceptable).
	Decisions *prometheus.CounterVec
	// PreflightCache counts preflight cache lookups by result (hit, miss).
	PreflightCache *prometheus.CounterVec
	// EvalDuration observes decision latency by concern.
	EvalDuration *prometheus.HistogramVec
}

// New registers and returns the engine metrics under the given namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "policygate"
	}
	return &Metrics{
		Decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Policy decisions by concern and outcome",
			},
			[]string{"concern", "outcome"},
		),
		PreflightCache: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "preflight_cache_lookups_total",
				Help:      "Preflight cache lookups by result",
			},
			[]string{"result"},
		),
		EvalDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Policy evaluation latency by concern",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{"concern"},
		),
	}
}

// Observe records one decision with its latency.
func (m *Metrics) Observe(concern, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(concern, outcome).Inc()
	m.EvalDuration.WithLabelValues(concern).Observe(elapsed.Seconds())
}

// PreflightLookup records one preflight cache lookup.
func (m *Metrics) PreflightLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PreflightCache.WithLabelValues(result).Inc()
}
