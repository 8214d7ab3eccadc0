package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/duckmesh/warehouse-mcp/internal/audit"
)

const maxListLimit = 500

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping audit db: %w", err)
	}
	return nil
}

// Record inserts entry. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, entry audit.Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `
INSERT INTO query_audit (trace_id, principal, original_sql, rewritten_sql, status, error_message, row_count, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.db.ExecContext(ctx, query,
		entry.TraceID,
		nullString(entry.Principal),
		entry.OriginalSQL,
		nullString(entry.RewrittenSQL),
		string(entry.Status),
		nullString(entry.ErrorMessage),
		entry.RowCount,
		entry.DurationMs,
		createdAt.UTC(),
	); err != nil {
		return fmt.Errorf("record query audit: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first. limit is clamped to
// [1, 500]; zero means 50.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	switch {
	case limit <= 0:
		limit = 50
	case limit > maxListLimit:
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT audit_id, trace_id, principal, original_sql, rewritten_sql, status, error_message, row_count, duration_ms, created_at
FROM query_audit
ORDER BY audit_id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			entry        audit.Entry
			principal    sql.NullString
			rewrittenSQL sql.NullString
			status       string
			errorMessage sql.NullString
			createdAt    time.Time
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TraceID,
			&principal,
			&entry.OriginalSQL,
			&rewrittenSQL,
			&status,
			&errorMessage,
			&entry.RowCount,
			&entry.DurationMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan query audit: %w", err)
		}
		entry.Principal = principal.String
		entry.RewrittenSQL = rewrittenSQL.String
		entry.Status = audit.Status(status)
		entry.ErrorMessage = errorMessage.String
		entry.CreatedAt = createdAt
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
