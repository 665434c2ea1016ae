// Package metrics exposes gateway counters on a private Prometheus
// registry so tests never collide on the default one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Gateway struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	requestsInFlight prometheus.Gauge
	requestDuration  *prometheus.HistogramVec
}

func NewGateway() *Gateway {
	g := &Gateway{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionbridge_requests_total",
			Help: "Chat completion requests by provider, model and outcome.",
		}, []string{"provider", "model", "status"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionbridge_tokens_total",
			Help: "Token counts by provider and direction.",
		}, []string{"provider", "direction"}),
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessionbridge_requests_in_flight",
			Help: "Chat completion requests currently being served.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sessionbridge_request_duration_seconds",
			Help:    "End to end request latency by provider.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider"}),
	}

	g.registry.MustRegister(
		g.requestsTotal,
		g.tokensTotal,
		g.requestsInFlight,
		g.requestDuration,
	)

	return g
}

func (g *Gateway) RecordRequest(provider, model, status string) {
	g.requestsTotal.WithLabelValues(provider, model, status).Inc()
}

func (g *Gateway) RecordTokens(provider, direction string, count int) {
	if count <= 0 {
		return
	}

	g.tokensTotal.WithLabelValues(provider, direction).Add(float64(count))
}

func (g *Gateway) RequestStarted() {
	g.requestsInFlight.Inc()
}

func (g *Gateway) RequestFinished(provider string, seconds float64) {
	g.requestsInFlight.Dec()
	g.requestDuration.WithLabelValues(provider).Observe(seconds)
}

// Handler serves the registry in the Prometheus text format.
func (g *Gateway) Handler() http.Handler {
	return promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})
}
