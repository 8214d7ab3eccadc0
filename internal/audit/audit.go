// Package audit records what happened to every query submitted through the
// query tool: the text as received, the text forwarded, and the outcome.
package audit

import (
	"context"
	"time"
)

type Status string

const (
	StatusOK        Status = "ok"
	StatusRejected  Status = "rejected"
	StatusAmbiguous Status = "ambiguous"
	StatusFailed    Status = "failed"
)

type Entry struct {
	ID           int64     `json:"id,omitempty"`
	TraceID      string    `json:"trace_id"`
	Principal    string    `json:"principal,omitempty"`
	OriginalSQL  string    `json:"original_sql"`
	RewrittenSQL string    `json:"rewritten_sql,omitempty"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RowCount     int       `json:"row_count"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Reader interface {
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}

// Nop discards entries. It is the recorder when auditing is off.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
