package mcp

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/warehouse-mcp/internal/audit"
	"github.com/duckmesh/warehouse-mcp/internal/auth"
	"github.com/duckmesh/warehouse-mcp/internal/observability"
	"github.com/duckmesh/warehouse-mcp/internal/sqlguard"
	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
)

const queryToolName = "query"

var queryTool = toolDescription{
	Name:  queryToolName,
	Title: "Run read-only SQL",
	Description: "Run a read-only SQL query against the warehouse and return the rows as JSON. " +
		"Statements that modify data or schema are refused. " +
		"INFORMATION_SCHEMA.TABLES must be qualified with a dataset.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sqlText": map[string]any{
				"type":        "string",
				"description": "The SQL query to run.",
			},
			"maxBytesBilled": map[string]any{
				"type":        "string",
				"description": "Upper bound on bytes the query may scan, as a decimal integer.",
			},
		},
		"required": []string{"sqlText"},
	},
	Annotations: &toolAnnotations{
		ReadOnlyHint:    boolPtr(true),
		DestructiveHint: boolPtr(false),
		IdempotentHint:  boolPtr(true),
		OpenWorldHint:   boolPtr(false),
	},
}

func (r *Router) handleToolsList(_ context.Context, _ json.RawMessage) Result {
	return success(toolsListResult{Tools: []toolDescription{queryTool}})
}

type queryArguments struct {
	SQLText        string
	MaxBytesBilled int64
}

func (r *Router) handleToolsCall(ctx context.Context, params json.RawMessage) Result {
	var call toolsCallParams
	if perr := decodeParams(params, &call); perr != nil {
		return failure(perr)
	}
	if call.Name != queryToolName {
		return failure(protocolErrorf(KindUnknownTool, "unknown tool: %q", call.Name))
	}
	args, perr := r.parseQueryArguments(call.Arguments)
	if perr != nil {
		return failure(perr)
	}
	return r.runQueryTool(ctx, args)
}

// parseQueryArguments accepts sql as an alias for sqlText and
// maximumBytesBilled as an alias for maxBytesBilled. The byte cap may be
// given as a string or a number.
func (r *Router) parseQueryArguments(raw json.RawMessage) (queryArguments, *ProtocolError) {
	var fields map[string]json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return queryArguments{}, protocolErrorf(KindInvalidParams, "arguments must be an object: %v", err)
		}
	}

	sqlRaw, ok := firstPresent(fields, "sqlText", "sql")
	if !ok {
		return queryArguments{}, protocolErrorf(KindMissingArgument, "missing required argument: sqlText")
	}
	var sqlText string
	if err := json.Unmarshal(sqlRaw, &sqlText); err != nil {
		return queryArguments{}, protocolErrorf(KindMissingArgument, "sqlText must be a string")
	}
	if strings.TrimSpace(sqlText) == "" {
		return queryArguments{}, protocolErrorf(KindMissingArgument, "sqlText must not be empty")
	}

	args := queryArguments{SQLText: sqlText, MaxBytesBilled: r.defaultMaxBytesBilled}
	if capRaw, ok := firstPresent(fields, "maxBytesBilled", "maximumBytesBilled"); ok {
		value, err := parseByteCap(capRaw)
		if err != nil {
			return queryArguments{}, protocolErrorf(KindInvalidParams, "maxBytesBilled: %v", err)
		}
		args.MaxBytesBilled = value
	}
	return args, nil
}

func firstPresent(fields map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		if value, ok := fields[name]; ok && string(value) != "null" {
			return value, true
		}
	}
	return nil, false
}

func parseByteCap(raw json.RawMessage) (int64, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var number json.Number
		if numErr := json.Unmarshal(raw, &number); numErr != nil {
			return 0, errInvalidByteCap
		}
		text = number.String()
	}
	value, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || value <= 0 {
		return 0, errInvalidByteCap
	}
	return value, nil
}

func (r *Router) runQueryTool(ctx context.Context, args queryArguments) Result {
	start := time.Now()
	entry := audit.Entry{
		TraceID:     observability.TraceIDFromContext(ctx),
		OriginalSQL: args.SQLText,
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		entry.Principal = identity.Principal
	}

	classification := sqlguard.Classify(args.SQLText)
	if !classification.Allowed {
		observability.IncGuardRejection("read_only")
		entry.Status = audit.StatusRejected
		entry.ErrorMessage = classification.Reason
		r.record(ctx, entry, start)
		observability.WithTrace(ctx, r.logger).Info("query rejected", "keyword", classification.Keyword)
		return failure(&ProtocolError{Kind: KindReadOnlyViolation, Message: classification.Err().Error()})
	}

	sqlText := args.SQLText
	if sqlguard.NeedsQualification(sqlText) {
		rewritten, err := sqlguard.QualifyCatalogIntrospection(sqlText, r.catalogID)
		if err != nil {
			observability.IncGuardRejection("ambiguous_introspection")
			entry.Status = audit.StatusAmbiguous
			entry.ErrorMessage = err.Error()
			r.record(ctx, entry, start)
			return failure(&ProtocolError{Kind: KindAmbiguousIntrospection, Message: err.Error()})
		}
		sqlText = rewritten
	}
	if sqlText != args.SQLText {
		entry.RewrittenSQL = sqlText
	}

	rows, err := r.gateway.RunQuery(ctx, warehouse.QueryRequest{
		SQL:            sqlText,
		Location:       r.location,
		MaxBytesBilled: args.MaxBytesBilled,
	})
	if err != nil {
		observability.ObserveQuery("error", 0, time.Since(start))
		entry.Status = audit.StatusFailed
		entry.ErrorMessage = err.Error()
		r.record(ctx, entry, start)
		observability.WithTrace(ctx, r.logger).Warn("query failed", "error", err)
		return success(toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: "error while running query: " + err.Error()}},
			IsError: true,
		})
	}

	if rows == nil {
		rows = []warehouse.Row{}
	}
	text, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		observability.ObserveQuery("error", 0, time.Since(start))
		entry.Status = audit.StatusFailed
		entry.ErrorMessage = err.Error()
		r.record(ctx, entry, start)
		return failure(protocolErrorf(KindInternal, "encode rows: %v", err))
	}

	observability.ObserveQuery("ok", len(rows), time.Since(start))
	entry.Status = audit.StatusOK
	entry.RowCount = len(rows)
	r.record(ctx, entry, start)
	return success(toolsCallResult{Content: []contentBlock{{Type: "text", Text: string(text)}}})
}

// record stores an audit entry. A failing audit store is logged and never
// changes the response.
func (r *Router) record(ctx context.Context, entry audit.Entry, start time.Time) {
	entry.DurationMs = time.Since(start).Milliseconds()
	entry.CreatedAt = time.Now().UTC()
	if err := r.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		observability.WithTrace(ctx, r.logger).Warn("record query audit failed", "error", err)
	}
}
