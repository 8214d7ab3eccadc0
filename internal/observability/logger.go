package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/duckmesh/warehouse-mcp/internal/config"
)

// NewLogger writes to writer, which for the stdio server must not be stdout.
// Every record carries the service, the profile and the warehouse it fronts.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, options)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	}

	attrs := []any{
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	}
	warehouse := make([]any, 0, 3)
	if cfg.Warehouse.Backend != "" {
		warehouse = append(warehouse, slog.String("backend", cfg.Warehouse.Backend))
	}
	if cfg.Warehouse.ProjectID != "" {
		warehouse = append(warehouse, slog.String("project", cfg.Warehouse.ProjectID))
	}
	if cfg.Warehouse.Location != "" {
		warehouse = append(warehouse, slog.String("location", cfg.Warehouse.Location))
	}
	if len(warehouse) > 0 {
		attrs = append(attrs, slog.Group("warehouse", warehouse...))
	}
	return slog.New(handler).With(attrs...)
}

// WithTrace returns logger annotated with the trace id carried by ctx, or
// logger itself when there is none.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return logger
	}
	return logger.With(slog.String("trace_id", traceID))
}
