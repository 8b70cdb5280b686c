// Package metrics exposes the gateway's Prometheus instrumentation: HTTP
// traffic, live SSH connections, stream messages, and assistant requests.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the gateway records into.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	rateLimited *prometheus.CounterVec

	activeConnections prometheus.Gauge
	connectsTotal     *prometheus.CounterVec
	reconnectsTotal   prometheus.Counter
	idleReapsTotal    prometheus.Counter
	terminalBytes     *prometheus.CounterVec

	activeStreams  prometheus.Gauge
	streamMessages *prometheus.CounterVec

	assistRequests *prometheus.CounterVec
	assistDuration prometheus.Histogram
}

// New builds a fresh registry with all gateway collectors plus the standard
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,

		httpRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "termgate_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status code",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termgate_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		rateLimited: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "termgate_rate_limited_total",
				Help: "Total number of requests rejected by a rate limiter, by bucket",
			},
			[]string{"bucket"}, // "global", "auth"
		),

		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "termgate_ssh_connections_active",
				Help: "Number of live SSH connections",
			},
		),
		connectsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "termgate_ssh_connects_total",
				Help: "Total number of SSH connection attempts by outcome",
			},
			[]string{"outcome"}, // "success", "failure"
		),
		reconnectsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "termgate_ssh_reconnects_total",
				Help: "Total number of automatic reconnect attempts",
			},
		),
		idleReapsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "termgate_ssh_idle_reaps_total",
				Help: "Total number of connections closed by the idle sweeper",
			},
		),
		terminalBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "termgate_terminal_bytes_total",
				Help: "Terminal bytes transferred by direction",
			},
			[]string{"direction"}, // "input", "output"
		),

		activeStreams: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "termgate_streams_active",
				Help: "Number of open client stream channels",
			},
		),
		streamMessages: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "termgate_stream_messages_total",
				Help: "Total number of stream messages by type and direction",
			},
			[]string{"type", "direction"}, // direction: "in", "out"
		),

		assistRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "termgate_assist_requests_total",
				Help: "Total number of assistant requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		assistDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termgate_assist_request_duration_seconds",
				Help:    "Assistant provider latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordRateLimited records a rejection by the named bucket.
func (m *Metrics) RecordRateLimited(bucket string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(bucket).Inc()
}

// ConnectionOpened bumps the live connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.connectsTotal.WithLabelValues("success").Inc()
}

// ConnectionFailed records a failed connection attempt.
func (m *Metrics) ConnectionFailed() {
	if m == nil {
		return
	}
	m.connectsTotal.WithLabelValues("failure").Inc()
}

// ConnectionClosed drops the live connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

// RecordReconnect records one automatic reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

// RecordIdleReap records a sweeper-initiated close.
func (m *Metrics) RecordIdleReap() {
	if m == nil {
		return
	}
	m.idleReapsTotal.Inc()
}

// RecordTerminalBytes accumulates transferred terminal bytes.
func (m *Metrics) RecordTerminalBytes(direction string, n int) {
	if m == nil {
		return
	}
	m.terminalBytes.WithLabelValues(direction).Add(float64(n))
}

// StreamOpened bumps the open stream gauge.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

// StreamClosed drops the open stream gauge.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

// RecordStreamMessage counts one stream frame.
func (m *Metrics) RecordStreamMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(msgType, direction).Inc()
}

// ObserveAssistRequest records one assistant exchange.
func (m *Metrics) ObserveAssistRequest(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.assistRequests.WithLabelValues(mode, outcome).Inc()
	m.assistDuration.Observe(duration.Seconds())
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultMetrics = New() })
	return defaultMetrics
}
