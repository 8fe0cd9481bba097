// Package metrics provides Prometheus metrics for quote recalculation,
// minting and the commit proxy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "inscribe"

// Metrics holds all collectors. It satisfies recalc.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Recalculation
	QuoteRequests *prometheus.CounterVec
	QuoteDuration prometheus.Histogram
	Transitions   *prometheus.CounterVec

	// Payment
	Mints *prometheus.CounterVec

	// Proxy
	ProxyRequests *prometheus.CounterVec
	ProxyDuration prometheus.Histogram
}

// New creates a Metrics instance on its own registry, with Go runtime and
// process collectors included.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		QuoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Quote requests by outcome",
		}, []string{"outcome"}),
		QuoteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "request_duration_seconds",
			Help:      "Quote request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recalc",
			Name:      "transitions_total",
			Help:      "Recalculation state transitions",
		}, []string{"from", "to"}),

		Mints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "attempts_total",
			Help:      "Mint attempts by status",
		}, []string{"status"}),

		ProxyRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "commit_requests_total",
			Help:      "Create-commit proxy requests by response code",
		}, []string{"code"}),
		ProxyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "commit_duration_seconds",
			Help:      "Create-commit proxy latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTransition records a recalculation state change.
func (m *Metrics) ObserveTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// ObserveQuote records a finished quote request.
func (m *Metrics) ObserveQuote(outcome string, d time.Duration) {
	m.QuoteRequests.WithLabelValues(outcome).Inc()
	m.QuoteDuration.Observe(d.Seconds())
}

// RecordMint records a mint attempt; status is "sent" or a failure class.
func (m *Metrics) RecordMint(status string) {
	m.Mints.WithLabelValues(status).Inc()
}

// RecordProxyRequest records one create-commit proxy response.
func (m *Metrics) RecordProxyRequest(code int, d time.Duration) {
	m.ProxyRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	m.ProxyDuration.Observe(d.Seconds())
}
