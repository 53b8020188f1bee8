// Package metrics provides the Prometheus collectors spec §6 names for
// the gateway's own operational surface: node transition counts, stage
// latency, cache hit ratio, and circuit breaker state. Grounded on the
// teacher's infrastructure/metrics/metrics.go constructor shape
// (CounterVec/HistogramVec/GaugeVec fields, a New/NewWithRegistry pair),
// narrowed to this gateway's own collectors rather than the teacher's
// HTTP/blockchain/database set.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the gateway's pipeline stages record
// against.
type Metrics struct {
	service              string
	NodeTransitionsTotal *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	CacheResultsTotal    *prometheus.CounterVec
	BreakerState         *prometheus.GaugeVec
}

// New registers every collector against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every collector against registerer, letting
// tests use a private registry instead of the global one.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		service: serviceName,
		NodeTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nlsql_gateway_node_transitions_total",
				Help: "Total orchestrator node executions, by stage and outcome.",
			},
			[]string{"service", "stage", "outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nlsql_gateway_stage_duration_seconds",
				Help:    "Orchestrator node execution duration in seconds, by stage.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service", "stage"},
		),
		CacheResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nlsql_gateway_cache_results_total",
				Help: "Cache lookups, by cache name and hit/miss.",
			},
			[]string{"service", "cache", "result"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nlsql_gateway_breaker_state",
				Help: "Circuit breaker state per backend (0=closed, 1=open, 2=half-open).",
			},
			[]string{"service", "backend"},
		),
	}

	registerer.MustRegister(
		m.NodeTransitionsTotal,
		m.StageDuration,
		m.CacheResultsTotal,
		m.BreakerState,
	)
	return m
}

// ObserveNode records one node execution's outcome and duration.
func (m *Metrics) ObserveNode(stage, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.NodeTransitionsTotal.WithLabelValues(m.service, stage, outcome).Inc()
	m.StageDuration.WithLabelValues(m.service, stage).Observe(seconds)
}

// ObserveCache records a single cache lookup's hit/miss result.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheResultsTotal.WithLabelValues(m.service, cache, result).Inc()
}

// SetBreakerState records a backend's current circuit breaker state
// (0=closed, 1=open, 2=half-open).
func (m *Metrics) SetBreakerState(backend string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(m.service, backend).Set(float64(state))
}
