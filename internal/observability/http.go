package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Routes served by the HTTP transport. Anything else is labelled "other" so
// that unknown paths cannot grow the metric series.
const (
	RouteHealth  = "/v1/health"
	RouteReady   = "/v1/ready"
	RouteMetrics = "/v1/metrics"
	RouteRPC     = "/v1/rpc"
	RouteAudit   = "/v1/audit"
	routeOther   = "other"
)

func routeLabel(path string) string {
	switch path {
	case RouteHealth, RouteReady, RouteMetrics, RouteRPC, RouteAudit:
		return path
	default:
		return routeOther
	}
}

func isProbe(route string) bool {
	return route == RouteHealth || route == RouteReady || route == RouteMetrics
}

// LoggingMiddleware logs one line per request. Server errors log at error,
// client errors at warn, and successful probe and scrape requests at debug.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := routeLabel(r.URL.Path)
			level := slog.LevelInfo
			switch {
			case recorder.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case recorder.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			case isProbe(route):
				level = slog.LevelDebug
			}
			WithTrace(r.Context(), logger).Log(r.Context(), level, "http_request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", recorder.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int("bytes", recorder.bytes),
			)
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}
