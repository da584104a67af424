package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryo-dashboard/internal/protocol"
)

const metricsNamespace = "cryo_dashboard"

// Metrics holds the service collectors on a private registry. It also
// observes upstream traffic and archive queries.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	sessions      prometheus.Gauge
	upstreamIn    *prometheus.CounterVec
	upstreamOut   *prometheus.CounterVec
	reconnects    prometheus.Counter
	queryDuration *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec

	activeSessions atomic.Int64
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests handled by this app.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests currently served by this app.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Browser tabs with an open dashboard websocket.",
		}),
		upstreamIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_events_received_total",
			Help:      "Events received from the instrument server by name.",
		}, []string{"event"}),
		upstreamOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_events_sent_total",
			Help:      "Events sent to the instrument server by name.",
		}, []string{"event"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_reconnects_total",
			Help:      "Reconnection attempts to the instrument server.",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "archive_query_duration_seconds",
			Help:      "Archive query duration by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "archive_query_errors_total",
			Help:      "Archive query errors by operation.",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		m.sessions,
		m.upstreamIn,
		m.upstreamOut,
		m.reconnects,
		m.queryDuration,
		m.queryErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveInbound(kind protocol.Kind) {
	m.upstreamIn.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ObserveOutbound(kind protocol.Kind) {
	m.upstreamOut.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ObserveReconnect() {
	m.reconnects.Inc()
}

func (m *Metrics) ObserveQuery(op string, d time.Duration, err error) {
	m.queryDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.queryErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) sessionOpened() {
	m.activeSessions.Add(1)
	m.sessions.Inc()
}

func (m *Metrics) sessionClosed() {
	m.activeSessions.Add(-1)
	m.sessions.Dec()
}

// ActiveSessions is the number of open browser tabs.
func (m *Metrics) ActiveSessions() int64 {
	return m.activeSessions.Load()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the websocket upgrade through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routePattern(r)
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded by using the chi pattern
// rather than the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
