package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks edge traffic metrics and exposes them in Prometheus
// format. Every instance owns its registry, so tests never collide on
// global state.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	retriesTotal     *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	breakerRejected  *prometheus.CounterVec
	fallbacksTotal   *prometheus.CounterVec
}

// NewCollector creates a collector with all metric families registered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_requests_total",
			Help: "Total number of requests handled per route.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_request_duration_seconds",
			Help:    "Request duration in seconds per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_retries_total",
			Help: "Total retry attempts per route.",
		}, []string{"route"}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_rate_limited_total",
			Help: "Total requests rejected by the rate limiter per route.",
		}, []string{"route"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edge_circuit_breaker_state",
			Help: "Circuit breaker state per route (0=closed, 1=open, 2=half_open).",
		}, []string{"route"}),
		breakerRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_circuit_breaker_rejected_total",
			Help: "Total requests short-circuited by an open breaker per route.",
		}, []string{"route"}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_fallbacks_total",
			Help: "Total requests answered by a fallback per route.",
		}, []string{"route"}),
	}
	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.retriesTotal,
		c.rateLimitedTotal,
		c.breakerState,
		c.breakerRejected,
		c.fallbacksTotal,
	)
	return c
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed request.
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt.
func (c *Collector) RecordRetry(route string) {
	c.retriesTotal.WithLabelValues(route).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter.
func (c *Collector) RecordRateLimited(route string) {
	c.rateLimitedTotal.WithLabelValues(route).Inc()
}

// SetBreakerState publishes the breaker state gauge for a route.
func (c *Collector) SetBreakerState(route string, state int) {
	c.breakerState.WithLabelValues(route).Set(float64(state))
}

// RecordBreakerRejected records a request short-circuited by an open breaker.
func (c *Collector) RecordBreakerRejected(route string) {
	c.breakerRejected.WithLabelValues(route).Inc()
}

// RecordFallback records a request answered by a fallback.
func (c *Collector) RecordFallback(route string) {
	c.fallbacksTotal.WithLabelValues(route).Inc()
}
