// Package metrics exposes Prometheus counters for intercepted requests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "noajax"

// Outcome labels for Dispatches.
const (
	OutcomeMissingAction = "missing_action"
	OutcomeHandled       = "handled"
	OutcomeUnhandled     = "unhandled"
)

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	// Dispatches counts intercepted requests by caller kind and outcome.
	Dispatches *prometheus.CounterVec
	// HeaderFailures counts headers that could not be emitted.
	HeaderFailures *prometheus.CounterVec
	// RewriteFlushes counts rewrite table flushes by result.
	RewriteFlushes *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Intercepted asynchronous requests.",
		}, []string{"caller", "outcome"}),
		HeaderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "header_failures_total",
			Help:      "Response headers that could not be emitted.",
		}, []string{"reason"}),
		RewriteFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_flushes_total",
			Help:      "Rewrite table flushes.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.Dispatches, m.HeaderFailures, m.RewriteFlushes)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
