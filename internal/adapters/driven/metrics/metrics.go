// Package metrics exposes invocation and token refresh counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

const namespace = "sercha_connect"

// Ensure Metrics implements driven.Metrics at compile time
var _ driven.Metrics = (*Metrics)(nil)

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	InvocationsTotal    *prometheus.CounterVec
	TokenRefreshesTotal *prometheus.CounterVec
	gatherer            prometheus.Gatherer
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of provider method invocations",
			},
			[]string{"provider", "method", "outcome"}, // ok, unavailable, reauth_required, method_not_found
		),
		TokenRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of OAuth token refresh attempts",
			},
			[]string{"provider", "result"}, // success, error
		),
		gatherer: g,
	}
}

// InvocationCompleted records an invocation outcome.
func (m *Metrics) InvocationCompleted(provider, method, outcome string) {
	m.InvocationsTotal.WithLabelValues(provider, method, outcome).Inc()
}

// TokenRefreshed records a refresh attempt.
func (m *Metrics) TokenRefreshed(provider string, ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	m.TokenRefreshesTotal.WithLabelValues(provider, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
