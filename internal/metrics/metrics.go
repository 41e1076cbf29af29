// Package metrics provides Prometheus metrics for the NAS assistant server.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nas_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nas_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Assistant metrics
	actionsClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nas_actions_classified_total",
			Help: "Chat messages classified, by resulting action",
		},
		[]string{"action"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nas_dispatch_total",
			Help: "Dispatched actions, by action and outcome",
		},
		[]string{"action", "result"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nas_dispatch_duration_seconds",
			Help:    "Time to dispatch an action including share session setup",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// Share metrics
	remoteCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nas_remote_command_duration_seconds",
			Help:    "Remote command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	remoteCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nas_remote_commands_total",
			Help: "Total remote commands run against shares",
		},
		[]string{"command", "status"},
	)

	shareSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nas_share_sessions_active",
			Help: "Number of share sessions currently open",
		},
	)

	// History metrics
	historyWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nas_history_writes_total",
			Help: "Chat history writes, by outcome",
		},
		[]string{"result"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nas_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nas_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nas_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordActionClassified counts a classifier result.
func RecordActionClassified(action string) {
	actionsClassifiedTotal.WithLabelValues(action).Inc()
}

// RecordDispatch records a dispatch outcome. result is "success",
// "awaiting_confirmation" or an error kind.
func RecordDispatch(action, result string, duration time.Duration) {
	dispatchTotal.WithLabelValues(action, result).Inc()
	dispatchDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordRemoteCommand records a remote command run.
func RecordRemoteCommand(command string, duration time.Duration, success bool) {
	remoteCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
	remoteCommandsTotal.WithLabelValues(command, outcome(success)).Inc()
}

// ShareSessionOpened increments the active session gauge.
func ShareSessionOpened() {
	shareSessionsActive.Inc()
}

// ShareSessionClosed decrements the active session gauge.
func ShareSessionClosed() {
	shareSessionsActive.Dec()
}

// RecordHistoryWrite records a history sink write.
func RecordHistoryWrite(success bool) {
	historyWritesTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// unmatched labels requests no route claimed.
const unmatched = "unmatched"

type routeKey struct{}

// route is filled in by Route while the request is served.
type route struct{ pattern string }

// Route wraps a handler registered under a ServeMux pattern so that
// Middleware labels its requests with the pattern instead of the raw URL
// path. Nested muxes overwrite the outer pattern with the more specific one.
func Route(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt, ok := r.Context().Value(routeKey{}).(*route); ok && r.Pattern != "" {
			rt.pattern = r.Pattern
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rt := &route{}
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), routeKey{}, rt)))
		RecordHTTPRequest(r.Method, routeLabel(rt.pattern), rw.statusCode, time.Since(start))
	})
}

// routeLabel drops the method from a "GET /path" pattern; the method has
// its own label.
func routeLabel(pattern string) string {
	if pattern == "" {
		return unmatched
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
