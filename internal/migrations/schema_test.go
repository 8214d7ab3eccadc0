package migrations

import (
	"strings"
	"testing"
)

func TestQueryAuditMigrationMatchesStoreColumns(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_query_audit.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	for _, snippet := range []string{
		"CREATE TABLE query_audit",
		"audit_id BIGSERIAL PRIMARY KEY",
		"trace_id TEXT NOT NULL",
		"principal TEXT",
		"original_sql TEXT NOT NULL",
		"rewritten_sql TEXT",
		"status TEXT NOT NULL",
		"error_message TEXT",
		"row_count INTEGER",
		"duration_ms BIGINT",
		"created_at TIMESTAMPTZ",
		"CREATE INDEX idx_query_audit_created_at",
	} {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) == 0 || items[0].Version != 1 {
		t.Fatalf("items = %+v", items)
	}
}
