// Package metrics provides Prometheus metrics for altavoz.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "altavoz"

// Metrics holds the service collectors on a private registry. A nil
// *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// OrderFetchFallbacks counts slot renders served without a curated order.
	OrderFetchFallbacks *prometheus.CounterVec
	// OrderSaveFailures counts background order saves that failed.
	OrderSaveFailures prometheus.Counter
	// SamplerRegenerations counts stable selections drawn anew.
	SamplerRegenerations prometheus.Counter
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OrderFetchFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_fetch_fallbacks_total",
				Help:      "Slot renders that fell back to chronological order",
			},
			[]string{"reason"},
		),
		OrderSaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_save_failures_total",
			Help:      "Background order saves that failed",
		}),
		SamplerRegenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampler_regenerations_total",
			Help:      "Stable category selections regenerated",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrderFetchFallbacks,
		m.OrderSaveFailures,
		m.SamplerRegenerations,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordOrderFallback(reason string) {
	if m == nil {
		return
	}
	m.OrderFetchFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordOrderSaveFailure() {
	if m == nil {
		return
	}
	m.OrderSaveFailures.Inc()
}

func (m *Metrics) RecordSamplerRegeneration() {
	if m == nil {
		return
	}
	m.SamplerRegenerations.Inc()
}

// RecordRequest records a finished HTTP request.
func (m *Metrics) RecordRequest(method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(seconds)
}
