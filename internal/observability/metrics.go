package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_mcp_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warehouse_mcp_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	rpcRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_mcp_rpc_requests_total",
			Help: "Total number of JSON-RPC requests by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	rpcDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warehouse_mcp_rpc_duration_seconds",
			Help:    "JSON-RPC request handling latency by method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	rpcInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warehouse_mcp_rpc_in_flight",
			Help: "JSON-RPC requests currently being handled.",
		},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_mcp_guard_rejections_total",
			Help: "Total number of queries refused before reaching the warehouse.",
		},
		[]string{"reason"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warehouse_mcp_query_duration_seconds",
			Help:    "Warehouse query latency by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)
	queryRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warehouse_mcp_query_rows_total",
			Help: "Total number of rows returned by successful warehouse queries.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		rpcRequestsTotal,
		rpcDurationSeconds,
		rpcInFlight,
		guardRejectionsTotal,
		queryDurationSeconds,
		queryRowsTotal,
	)
}

// ObserveRPC records one handled request. outcome is "ok" or the error kind.
func ObserveRPC(method, outcome string, elapsed time.Duration) {
	rpcRequestsTotal.WithLabelValues(method, outcome).Inc()
	rpcDurationSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its release.
func TrackInFlight() func() {
	rpcInFlight.Inc()
	return rpcInFlight.Dec
}

func IncGuardRejection(reason string) {
	guardRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveQuery(outcome string, rows int, elapsed time.Duration) {
	queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if rows > 0 {
		queryRowsTotal.Add(float64(rows))
	}
}
