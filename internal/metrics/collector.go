// Package metrics exposes Prometheus counters for provider calls and resolutions.
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
const DefaultNamespace = "snsmon_ai"

// Collector holds the service metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	providerCalls        *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	resolutions          *prometheus.CounterVec
	fallbacks            *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers every metric on a private registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Provider calls by outcome",
			},
			[]string{"provider", "status"},
		),
		providerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Analysis resolutions by mode and result",
			},
			[]string{"mode", "result"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Successful resolutions answered by a provider other than the first candidate",
			},
			[]string{"provider"},
		),

		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordProviderCall counts one provider call.
func (c *Collector) RecordProviderCall(provider string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	c.providerCalls.WithLabelValues(provider, status).Inc()
	c.providerCallDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordProviderCancelled counts a call abandoned because its context ended
// first. It is neither a success nor a provider failure.
func (c *Collector) RecordProviderCancelled(provider string) {
	if c == nil {
		return
	}
	c.providerCalls.WithLabelValues(provider, "cancelled").Inc()
}

// RecordResolution counts one finished resolution.
func (c *Collector) RecordResolution(mode, result string) {
	if c == nil {
		return
	}
	c.resolutions.WithLabelValues(mode, result).Inc()
}

// RecordFallback counts a success that needed more than one candidate.
func (c *Collector) RecordFallback(provider string) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(provider).Inc()
}

// RecordHTTPRequest counts one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
