// Package metrics provides Prometheus instrumentation for the drill service.
package metrics

import (
	"bufio"
	"fmt"
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
	// SessionsStarted counts practice sessions created.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotedrill_sessions_started_total",
		Help: "Total number of practice sessions started",
	})

	// ActiveSessions tracks sessions currently held in the registry.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotedrill_sessions_active",
		Help: "Number of sessions currently registered",
	})

	// QuotesSubmitted counts quote submissions across all sessions.
	QuotesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotedrill_quotes_total",
		Help: "Total number of quotes submitted",
	})

	// Fills counts accepted fills, partitioned by maker side.
	Fills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotedrill_fills_total",
		Help: "Total number of accepted fills",
	}, []string{"side"})

	// FillVolume tracks cumulative filled quantity per maker side.
	FillVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotedrill_fill_volume_total",
		Help: "Cumulative filled quantity in units",
	}, []string{"side"})

	// QuoteDecisionSeconds observes engine decision latency per quote.
	QuoteDecisionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotedrill_quote_decision_seconds",
		Help:    "Quote decision latency in seconds",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
	})

	// OddsRounds counts resolved odds rounds by outcome.
	OddsRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotedrill_odds_rounds_total",
		Help: "Total number of odds rounds resolved",
	}, []string{"outcome"})

	// WSClients tracks connected session feed clients.
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotedrill_websocket_clients",
		Help: "Number of connected feed clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotedrill_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quotedrill_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
// The chi route pattern is used as the path label so session IDs do
// not blow up label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
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

// Hijack lets WebSocket upgrades pass through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
