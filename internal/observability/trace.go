package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	traceHeader       = "X-Trace-ID"
	traceparentHeader = "traceparent"
	maxTraceIDLength  = 64
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// NewTraceID returns a random 128-bit hex id.
func NewTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}

// TraceMiddleware takes the trace id from X-Trace-ID, then from a W3C
// traceparent header, and generates one otherwise. Ids that could corrupt
// log lines are replaced. The id is echoed in X-Trace-ID.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r.Header)
		if traceID == "" {
			traceID = NewTraceID()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ContextWithTraceID(r.Context(), traceID)))
	})
}

func incomingTraceID(header http.Header) string {
	if traceID := strings.TrimSpace(header.Get(traceHeader)); validTraceID(traceID) {
		return traceID
	}
	// version-traceid-parentid-flags
	parts := strings.Split(strings.TrimSpace(header.Get(traceparentHeader)), "-")
	if len(parts) == 4 && len(parts[1]) == 32 && isHex(parts[1]) && strings.Trim(parts[1], "0") != "" {
		return strings.ToLower(parts[1])
	}
	return ""
}

func validTraceID(traceID string) bool {
	if traceID == "" || len(traceID) > maxTraceIDLength {
		return false
	}
	for _, c := range traceID {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func isHex(value string) bool {
	_, err := hex.DecodeString(value)
	return err == nil
}
