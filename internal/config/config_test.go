package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("warehouse-mcp", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Warehouse.Backend != BackendBigQuery {
		t.Fatalf("Warehouse.Backend = %q", cfg.Warehouse.Backend)
	}
	if cfg.Warehouse.Location != "us-central1" {
		t.Fatalf("Warehouse.Location = %q", cfg.Warehouse.Location)
	}
	if cfg.Warehouse.DefaultMaxBytesBilled != 1000000000 {
		t.Fatalf("Warehouse.DefaultMaxBytesBilled = %d", cfg.Warehouse.DefaultMaxBytesBilled)
	}
	if cfg.Router.EnumerateResources {
		t.Fatal("Router.EnumerateResources should default to false")
	}
	if cfg.Router.MaxInFlight != 8 {
		t.Fatalf("Router.MaxInFlight = %d", cfg.Router.MaxInFlight)
	}
	if cfg.HTTP.Address != "" {
		t.Fatalf("HTTP.Address = %q, want transport off by default", cfg.HTTP.Address)
	}
	if cfg.Audit.Enabled {
		t.Fatal("Audit.Enabled should default to false")
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("warehouse-mcp", mapLookup(map[string]string{"WAREHOUSE_MCP_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"WAREHOUSE_MCP_PROFILE":                 "test",
		"WAREHOUSE_MCP_SERVICE_NAME":            "warehouse-mcp-custom",
		"WAREHOUSE_MCP_BACKEND":                 "duckdb",
		"WAREHOUSE_MCP_PROJECT_ID":              "analytics-prod",
		"WAREHOUSE_MCP_LOCATION":                "EU",
		"WAREHOUSE_MCP_MAX_BYTES_BILLED":        "5000000000",
		"WAREHOUSE_MCP_CREDENTIALS_FILE":        "/etc/gcp/key.json",
		"WAREHOUSE_MCP_ENUMERATE_RESOURCES":     "true",
		"WAREHOUSE_MCP_MAX_IN_FLIGHT":           "3",
		"WAREHOUSE_MCP_HTTP_ADDR":               ":9999",
		"WAREHOUSE_MCP_HTTP_READ_TIMEOUT":       "2s",
		"WAREHOUSE_MCP_HTTP_SHUTDOWN_TIMEOUT":   "4s",
		"WAREHOUSE_MCP_OBJECTSTORE_ENDPOINT":    "s3.example.com",
		"WAREHOUSE_MCP_OBJECTSTORE_BUCKET":      "lake-prod",
		"WAREHOUSE_MCP_OBJECTSTORE_PREFIX":      "warehouse",
		"WAREHOUSE_MCP_OBJECTSTORE_USE_SSL":     "true",
		"WAREHOUSE_MCP_AUDIT_ENABLED":           "true",
		"WAREHOUSE_MCP_AUDIT_DSN":               "postgres://audit",
		"WAREHOUSE_MCP_AUDIT_MAX_OPEN_CONNS":    "42",
		"WAREHOUSE_MCP_AUDIT_CONN_MAX_LIFETIME": "1h",
		"WAREHOUSE_MCP_LOG_LEVEL":               "error",
		"WAREHOUSE_MCP_LOG_JSON":                "false",
		"WAREHOUSE_MCP_AUTH_REQUIRED":           "true",
		"WAREHOUSE_MCP_AUTH_STATIC_KEYS":        "k1:agent-a:query_reader",
	})
	cfg, err := Load("warehouse-mcp", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "warehouse-mcp-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.Warehouse.Backend != BackendDuckDB {
		t.Fatalf("Warehouse.Backend = %q", cfg.Warehouse.Backend)
	}
	if cfg.Warehouse.ProjectID != "analytics-prod" {
		t.Fatalf("Warehouse.ProjectID = %q", cfg.Warehouse.ProjectID)
	}
	if cfg.Warehouse.Location != "EU" {
		t.Fatalf("Warehouse.Location = %q", cfg.Warehouse.Location)
	}
	if cfg.Warehouse.DefaultMaxBytesBilled != 5000000000 {
		t.Fatalf("Warehouse.DefaultMaxBytesBilled = %d", cfg.Warehouse.DefaultMaxBytesBilled)
	}
	if cfg.Warehouse.CredentialsFile != "/etc/gcp/key.json" {
		t.Fatalf("Warehouse.CredentialsFile = %q", cfg.Warehouse.CredentialsFile)
	}
	if !cfg.Router.EnumerateResources {
		t.Fatal("Router.EnumerateResources = false, want true")
	}
	if cfg.Router.MaxInFlight != 3 {
		t.Fatalf("Router.MaxInFlight = %d", cfg.Router.MaxInFlight)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.ShutdownTimeout != 4*time.Second {
		t.Fatalf("HTTP.ShutdownTimeout = %s", cfg.HTTP.ShutdownTimeout)
	}
	if cfg.ObjectStore.Endpoint != "s3.example.com" || cfg.ObjectStore.Bucket != "lake-prod" || cfg.ObjectStore.Prefix != "warehouse" {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL = false, want true")
	}
	if !cfg.Audit.Enabled || cfg.Audit.DSN != "postgres://audit" {
		t.Fatalf("Audit = %+v", cfg.Audit)
	}
	if cfg.Audit.MaxOpenConns != 42 {
		t.Fatalf("Audit.MaxOpenConns = %d", cfg.Audit.MaxOpenConns)
	}
	if cfg.Audit.ConnMaxLifetime != time.Hour {
		t.Fatalf("Audit.ConnMaxLifetime = %s", cfg.Audit.ConnMaxLifetime)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogJSON {
		t.Fatal("LogJSON = true, want false")
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticKeys != "k1:agent-a:query_reader" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"WAREHOUSE_MCP_PROFILE": "oops"},
		{"WAREHOUSE_MCP_HTTP_READ_TIMEOUT": "NaN"},
		{"WAREHOUSE_MCP_MAX_BYTES_BILLED": "lots"},
		{"WAREHOUSE_MCP_MAX_IN_FLIGHT": "oops"},
		{"WAREHOUSE_MCP_ENUMERATE_RESOURCES": "maybe"},
		{"WAREHOUSE_MCP_AUDIT_MAX_OPEN_CONNS": "oops"},
		{"WAREHOUSE_MCP_AUTH_REQUIRED": "not-bool"},
		{"WAREHOUSE_MCP_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("warehouse-mcp", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("warehouse-mcp", mapLookup(map[string]string{"WAREHOUSE_MCP_PROJECT_ID": "proj"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	invalid := []func(*Config){
		func(c *Config) { c.Warehouse.ProjectID = " " },
		func(c *Config) { c.Warehouse.Backend = "snowflake" },
		func(c *Config) { c.Warehouse.DefaultMaxBytesBilled = 0 },
		func(c *Config) { c.Router.MaxInFlight = 0 },
		func(c *Config) { c.Audit.Enabled = true; c.Audit.DSN = "" },
		func(c *Config) { c.Warehouse.Backend = BackendDuckDB; c.ObjectStore.Bucket = "" },
	}
	for i, mutate := range invalid {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: Validate() expected error for %+v", i, cfg)
		}
	}
}

func TestFileLookupReadsScalars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse-mcp.yaml")
	content := "WAREHOUSE_MCP_PROJECT_ID: from-file\nWAREHOUSE_MCP_ENUMERATE_RESOURCES: true\nWAREHOUSE_MCP_MAX_IN_FLIGHT: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	lookup, err := FileLookup(path)
	if err != nil {
		t.Fatalf("FileLookup() error = %v", err)
	}
	cfg, err := Load("warehouse-mcp", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Warehouse.ProjectID != "from-file" {
		t.Fatalf("Warehouse.ProjectID = %q", cfg.Warehouse.ProjectID)
	}
	if !cfg.Router.EnumerateResources {
		t.Fatal("Router.EnumerateResources = false, want true")
	}
	if cfg.Router.MaxInFlight != 4 {
		t.Fatalf("Router.MaxInFlight = %d", cfg.Router.MaxInFlight)
	}
}

func TestFileLookupRejectsNestedValues(t *testing.T) {
	if _, err := parseFileLookup([]byte("WAREHOUSE_MCP_PROJECT_ID:\n  nested: value\n")); err == nil {
		t.Fatal("expected nested mapping error")
	}
	if _, err := parseFileLookup([]byte("- a\n- b\n")); err == nil {
		t.Fatal("expected top-level sequence error")
	}
}

func TestFileLookupEmptyDocument(t *testing.T) {
	lookup, err := parseFileLookup([]byte(""))
	if err != nil {
		t.Fatalf("parseFileLookup() error = %v", err)
	}
	if _, ok := lookup("WAREHOUSE_MCP_PROJECT_ID"); ok {
		t.Fatal("empty document should not resolve keys")
	}
}

func TestChainLookupPrefersEarlierSources(t *testing.T) {
	env := mapLookup(map[string]string{"WAREHOUSE_MCP_PROJECT_ID": "from-env"})
	file := mapLookup(map[string]string{
		"WAREHOUSE_MCP_PROJECT_ID": "from-file",
		"WAREHOUSE_MCP_LOCATION":   "EU",
	})
	cfg, err := Load("warehouse-mcp", ChainLookup(env, nil, file))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Warehouse.ProjectID != "from-env" {
		t.Fatalf("Warehouse.ProjectID = %q", cfg.Warehouse.ProjectID)
	}
	if cfg.Warehouse.Location != "EU" {
		t.Fatalf("Warehouse.Location = %q", cfg.Warehouse.Location)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
