// Package metrics provides Prometheus instrumentation for the metrics engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ComputationsTotal counts engine computations by kind ("pnl", "snapshot").
	ComputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlscope_computations_total",
		Help: "Total number of metric computations",
	}, []string{"kind"})

	// ComputationLatency tracks how long a computation takes, fetch excluded.
	ComputationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlscope_computation_latency_seconds",
		Help:    "Metric computation latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"kind"})

	// FillsProcessed counts raw fills handed to the engine.
	FillsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlscope_fills_processed_total",
		Help: "Raw fills received for normalization",
	})

	// FillsDropped counts raw fills skipped because neither asset nor
	// timestamp could be recovered.
	FillsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlscope_fills_dropped_total",
		Help: "Raw fills skipped during normalization",
	})

	// UpstreamRequestsTotal counts info-endpoint requests by type and outcome.
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlscope_upstream_requests_total",
		Help: "Requests made to the exchange info endpoint",
	}, []string{"type", "status"})

	// UpstreamLatency tracks info-endpoint round trips.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlscope_upstream_latency_seconds",
		Help:    "Exchange info endpoint latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// CacheLookups counts source cache lookups by layer and result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlscope_cache_lookups_total",
		Help: "Source cache lookups",
	}, []string{"layer", "result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlscope_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// PollRunsTotal counts per-wallet poll refreshes by result.
	PollRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlscope_poll_refreshes_total",
		Help: "Wallet refreshes performed by the poller",
	}, []string{"result"})

	// WatchedWallets tracks the number of wallets the poller refreshes.
	WatchedWallets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hlscope_watched_wallets",
		Help: "Number of wallets refreshed by the poller",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlscope_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlscope_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveComputation records one computation of the given kind.
func ObserveComputation(kind string, start time.Time) {
	ComputationsTotal.WithLabelValues(kind).Inc()
	ComputationLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern; wallet addresses in the path would explode
		// cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack implements http.Hijacker so WebSocket upgrades pass through.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}
