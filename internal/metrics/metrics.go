// Package metrics exposes Prometheus collectors for the matching engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bloodbridge"

type Metrics struct {
	matchesCreated   prometheus.Counter
	transitions      *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
	candidatesPerRun prometheus.Histogram
	expirySweeps     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.matchesCreated = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "matches dispatched to candidates",
		},
	)
	m.transitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_events_total",
			Help:      "committed match and candidate transitions by kind",
		},
		[]string{"kind"},
	)
	m.conflicts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_conflicts_total",
			Help:      "transitions rejected because of a conflicting state",
		},
		[]string{"reason"},
	)
	m.candidatesPerRun = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selected_candidates",
			Help:      "donors selected per candidate search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
	m.expirySweeps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_sweep_candidates_total",
			Help:      "overdue candidates handled by the sweep by outcome",
		},
		[]string{"outcome"},
	)
	m.httpRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "http requests by method and status code",
		},
		[]string{"method", "status"},
	)
	m.httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "http request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	return m
}

func (m *Metrics) MatchCreated(candidates int) {
	if m == nil {
		return
	}
	m.matchesCreated.Inc()
	m.candidatesPerRun.Observe(float64(candidates))
}

func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) Conflict(reason string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) SweepOutcome(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.expirySweeps.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) HTTPRequest(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, status).Inc()
	m.httpDuration.WithLabelValues(method).Observe(seconds)
}
