package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/duckmesh/warehouse-mcp/internal/audit"
	"github.com/duckmesh/warehouse-mcp/internal/config"
	"github.com/duckmesh/warehouse-mcp/internal/observability"
	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
)

const (
	methodInitialize    = "initialize"
	methodPing          = "ping"
	methodResourcesList = "resources/list"
	methodResourcesRead = "resources/read"
	methodToolsList     = "tools/list"
	methodToolsCall     = "tools/call"
)

// Result is the outcome of one dispatched method: a payload for the
// response's result member, or a protocol error.
type Result struct {
	Payload any
	Err     *ProtocolError
}

func success(payload any) Result {
	return Result{Payload: payload}
}

func failure(err *ProtocolError) Result {
	return Result{Err: err}
}

type handlerFunc func(ctx context.Context, params json.RawMessage) Result

type Router struct {
	catalogID             string
	location              string
	defaultMaxBytesBilled int64
	enumerateResources    bool
	maxInFlight           int
	maxMessageBytes       int
	serverName            string
	serverVersion         string

	gateway  warehouse.Gateway
	recorder audit.Recorder
	logger   *slog.Logger
	handlers map[string]handlerFunc
}

// NewRouter reads everything it needs from cfg once. A nil recorder
// disables auditing.
func NewRouter(cfg config.Config, gateway warehouse.Gateway, recorder audit.Recorder, logger *slog.Logger) *Router {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxInFlight := cfg.Router.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	r := &Router{
		catalogID:             cfg.Warehouse.ProjectID,
		location:              cfg.Warehouse.Location,
		defaultMaxBytesBilled: cfg.Warehouse.DefaultMaxBytesBilled,
		enumerateResources:    cfg.Router.EnumerateResources,
		maxInFlight:           maxInFlight,
		maxMessageBytes:       defaultMaxMessageBytes,
		serverName:            cfg.Service.Name,
		serverVersion:         Version,
		gateway:               gateway,
		recorder:              recorder,
		logger:                logger,
	}
	r.handlers = map[string]handlerFunc{
		methodInitialize:    r.handleInitialize,
		methodPing:          r.handlePing,
		methodResourcesList: r.handleResourcesList,
		methodResourcesRead: r.handleResourcesRead,
		methodToolsList:     r.handleToolsList,
		methodToolsCall:     r.handleToolsCall,
	}
	return r
}

// Version is reported in initialize responses. It is overridden at link
// time for release builds.
var Version = "dev"

// Dispatch runs one method. Unknown methods yield MethodNotFound.
func (r *Router) Dispatch(ctx context.Context, method string, params json.RawMessage) Result {
	handler, ok := r.handlers[method]
	if !ok {
		return failure(protocolErrorf(KindMethodNotFound, "method not found: %s", method))
	}
	return handler(ctx, params)
}

// Handle decodes one JSON-RPC message, dispatches it and builds the
// response. It returns nil for notifications, which are never answered.
func (r *Router) Handle(ctx context.Context, message []byte) *Response {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return errorResponse(nil, protocolErrorf(KindInvalidRequest, "batch requests are not supported"))
	}

	var request Request
	if err := json.Unmarshal(trimmed, &request); err != nil {
		return errorResponse(nil, protocolErrorf(KindParseError, "parse error: %v", err))
	}
	if request.JSONRPC != jsonrpcVersion {
		if request.isNotification() {
			return nil
		}
		return errorResponse(request.ID, protocolErrorf(KindInvalidRequest, "jsonrpc must be %q", jsonrpcVersion))
	}
	if request.Method == "" {
		if request.isNotification() {
			return nil
		}
		return errorResponse(request.ID, protocolErrorf(KindInvalidRequest, "method is required"))
	}
	if request.isNotification() {
		r.logger.Debug("notification ignored", "method", request.Method)
		return nil
	}

	if observability.TraceIDFromContext(ctx) == "" {
		ctx = observability.ContextWithTraceID(ctx, observability.NewTraceID())
	}
	release := observability.TrackInFlight()
	start := time.Now()
	result := r.Dispatch(ctx, request.Method, request.Params)
	release()
	elapsed := time.Since(start)

	outcome := "ok"
	if result.Err != nil {
		outcome = string(result.Err.Kind)
	}
	observability.ObserveRPC(methodLabel(request.Method), outcome, elapsed)
	observability.WithTrace(ctx, r.logger).Debug("rpc handled",
		"method", request.Method,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
	)

	if result.Err != nil {
		return errorResponse(request.ID, result.Err)
	}
	return &Response{JSONRPC: jsonrpcVersion, ID: request.ID, Result: result.Payload}
}

func errorResponse(id json.RawMessage, err *ProtocolError) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Error: err.rpcError()}
}

// methodLabel bounds the metrics label set to the methods the router knows.
func methodLabel(method string) string {
	switch method {
	case methodInitialize, methodPing, methodResourcesList, methodResourcesRead, methodToolsList, methodToolsCall:
		return method
	default:
		return "other"
	}
}

func (r *Router) handleInitialize(_ context.Context, _ json.RawMessage) Result {
	return success(initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Resources: &struct{}{},
			Tools:     &struct{}{},
		},
		ServerInfo: serverInfo{Name: r.serverName, Version: r.serverVersion},
	})
}

func (r *Router) handlePing(_ context.Context, _ json.RawMessage) Result {
	return success(map[string]any{})
}

func decodeParams(params json.RawMessage, target any) *ProtocolError {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, target); err != nil {
		return protocolErrorf(KindInvalidParams, "invalid params: %v", err)
	}
	return nil
}
