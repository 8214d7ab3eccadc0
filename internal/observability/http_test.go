package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRouteLabelBoundsUnknownPaths(t *testing.T) {
	if got := routeLabel(RouteRPC); got != RouteRPC {
		t.Fatalf("routeLabel(%q) = %q", RouteRPC, got)
	}
	if got := routeLabel("/v1/rpc/../../etc"); got != routeOther {
		t.Fatalf("routeLabel() = %q, want %q", got, routeOther)
	}
}

func TestMetricsMiddlewareLabelsByRoute(t *testing.T) {
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	rpc := httpRequestsTotal.WithLabelValues(http.MethodPost, RouteRPC, "403")
	other := httpRequestsTotal.WithLabelValues(http.MethodGet, routeOther, "403")
	rpcBefore, otherBefore := testutil.ToFloat64(rpc), testutil.ToFloat64(other)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, RouteRPC, nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/2", nil))

	if delta := testutil.ToFloat64(rpc) - rpcBefore; delta != 1 {
		t.Fatalf("rpc delta = %v", delta)
	}
	if delta := testutil.ToFloat64(other) - otherBefore; delta != 2 {
		t.Fatalf("other delta = %v", delta)
	}
}

func TestLoggingMiddlewareLevelFollowsStatus(t *testing.T) {
	cases := []struct {
		path   string
		status int
		level  string
	}{
		{path: RouteRPC, status: http.StatusOK, level: "INFO"},
		{path: RouteAudit, status: http.StatusForbidden, level: "WARN"},
		{path: RouteRPC, status: http.StatusInternalServerError, level: "ERROR"},
		{path: RouteHealth, status: http.StatusOK, level: "DEBUG"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := TraceMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})))
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set(traceHeader, "trace-7")
		h.ServeHTTP(httptest.NewRecorder(), req)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("json.Unmarshal() error = %v, output = %q", err, buf.String())
		}
		if entry["level"] != tc.level || entry["route"] != tc.path || entry["trace_id"] != "trace-7" {
			t.Fatalf("%s %d entry = %+v", tc.path, tc.status, entry)
		}
	}
}

func TestLoggingMiddlewareHidesProbesAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, RouteMetrics, nil))
	if strings.TrimSpace(buf.String()) != "" {
		t.Fatalf("output = %q, want nothing", buf.String())
	}
}
