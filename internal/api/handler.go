package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckmesh/warehouse-mcp/internal/audit"
	"github.com/duckmesh/warehouse-mcp/internal/auth"
	"github.com/duckmesh/warehouse-mcp/internal/config"
	"github.com/duckmesh/warehouse-mcp/internal/mcp"
	"github.com/duckmesh/warehouse-mcp/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// RPCHandler answers one JSON-RPC message. A nil response means the
// message was a notification.
type RPCHandler interface {
	Handle(ctx context.Context, message []byte) *mcp.Response
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	RPC               RPCHandler
	AuditReader       audit.Reader
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+observability.RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"service": cfg.Service.Name,
			"project": cfg.Warehouse.ProjectID,
			"backend": cfg.Warehouse.Backend,
		})
	})

	mux.HandleFunc("GET "+observability.RouteReady, func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET "+observability.RouteMetrics, promhttp.Handler())

	rpcHandler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleRPC(deps, w, r)
	}), auth.RequireRole(auth.RoleQueryReader))
	auditHandler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleAuditList(deps, w, r)
	}), auth.RequireRole(auth.RoleAuditReader))

	protect := func(next http.Handler) http.Handler { return next }
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protect = func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
				})
			}
		} else {
			protect = deps.AuthMiddleware
		}
	}
	mux.Handle("POST "+observability.RouteRPC, protect(rpcHandler))
	mux.Handle("GET "+observability.RouteAudit, protect(auditHandler))

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// HealthChecker is satisfied by the audit store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BucketChecker is satisfied by the S3 object store.
type BucketChecker interface {
	CheckBucket(ctx context.Context) error
}

func CheckWarehouseConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Warehouse.ProjectID == "" {
			return errors.New("warehouse project id is not configured")
		}
		return nil
	}
}

func CheckAuditStore(store HealthChecker) ReadinessCheck {
	if store == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := store.HealthCheck(ctx); err != nil {
			return errors.New("audit store unavailable: " + err.Error())
		}
		return nil
	}
}

func CheckObjectStore(store BucketChecker) ReadinessCheck {
	if store == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := store.CheckBucket(ctx); err != nil {
			return errors.New("object store unavailable: " + err.Error())
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
