package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/duckmesh/warehouse-mcp/internal/audit"
	"github.com/duckmesh/warehouse-mcp/internal/config"
)

type capture struct {
	called bool
	cfg    config.Config
}

func testEnvironment(values map[string]string, captured *capture) (environment, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	env := environment{
		lookup: func(key string) (string, bool) {
			value, ok := values[key]
			return value, ok
		},
		stdin:  strings.NewReader(""),
		stdout: &stdout,
		stderr: &stderr,
		serve: func(_ context.Context, cfg config.Config, _ environment) error {
			captured.called = true
			captured.cfg = cfg
			return nil
		},
	}
	return env, &stdout, &stderr
}

func TestExecuteRequiresProjectID(t *testing.T) {
	var captured capture
	env, stdout, stderr := testEnvironment(map[string]string{}, &captured)

	if code := execute(context.Background(), nil, env); code != 1 {
		t.Fatalf("execute() = %d, want 1", code)
	}
	if captured.called {
		t.Fatal("serve must not run without a project id")
	}
	if !strings.Contains(stderr.String(), "project id is required") {
		t.Fatalf("stderr = %s", stderr.String())
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Fatalf("stderr missing usage: %s", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout must stay clean, got %q", stdout.String())
	}
}

func TestExecuteAppliesFlagsWithDefaults(t *testing.T) {
	var captured capture
	env, _, stderr := testEnvironment(map[string]string{}, &captured)

	code := execute(context.Background(), []string{"--project-id", "proj"}, env)
	if code != 0 {
		t.Fatalf("execute() = %d, stderr=%s", code, stderr.String())
	}
	if !captured.called {
		t.Fatal("serve was not called")
	}
	if captured.cfg.Warehouse.ProjectID != "proj" || captured.cfg.Warehouse.Location != "us-central1" {
		t.Fatalf("warehouse = %+v", captured.cfg.Warehouse)
	}
	if captured.cfg.Warehouse.DefaultMaxBytesBilled != 1_000_000_000 {
		t.Fatalf("max bytes = %d", captured.cfg.Warehouse.DefaultMaxBytesBilled)
	}
	if captured.cfg.Router.EnumerateResources {
		t.Fatal("enumeration must default to off")
	}
}

func TestExecuteFlagsOverrideEnvOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse-mcp.yaml")
	content := "WAREHOUSE_MCP_PROJECT_ID: from-file\nWAREHOUSE_MCP_LOCATION: asia-east1\nWAREHOUSE_MCP_MAX_BYTES_BILLED: 5000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var captured capture
	env, _, stderr := testEnvironment(map[string]string{
		"WAREHOUSE_MCP_PROJECT_ID": "from-env",
		"WAREHOUSE_MCP_LOCATION":   "EU",
	}, &captured)

	code := execute(context.Background(), []string{"--config", path, "--location", "US", "--enumerate-resources"}, env)
	if code != 0 {
		t.Fatalf("execute() = %d, stderr=%s", code, stderr.String())
	}
	cfg := captured.cfg
	if cfg.Warehouse.ProjectID != "from-env" {
		t.Fatalf("project = %q", cfg.Warehouse.ProjectID)
	}
	if cfg.Warehouse.Location != "US" {
		t.Fatalf("location = %q", cfg.Warehouse.Location)
	}
	if cfg.Warehouse.DefaultMaxBytesBilled != 5000 {
		t.Fatalf("max bytes = %d", cfg.Warehouse.DefaultMaxBytesBilled)
	}
	if !cfg.Router.EnumerateResources {
		t.Fatal("expected enumeration on")
	}
}

func TestExecuteRejectsMalformedInvocations(t *testing.T) {
	for _, args := range [][]string{
		{"--project-id", "p", "--no-such-flag"},
		{"--project-id", "p", "extra"},
		{"--project-id", "p", "--backend", "oracle"},
		{"--project-id", "p", "--max-bytes-billed", "lots"},
		{"--project-id", "p", "--config", "/does/not/exist.yaml"},
	} {
		var captured capture
		env, _, stderr := testEnvironment(map[string]string{}, &captured)
		if code := execute(context.Background(), args, env); code != 1 {
			t.Fatalf("execute(%v) = %d, want 1", args, code)
		}
		if captured.called {
			t.Fatalf("execute(%v) reached serve", args)
		}
		if !strings.Contains(stderr.String(), "Usage:") {
			t.Fatalf("execute(%v) stderr missing usage: %s", args, stderr.String())
		}
	}
}

func TestExecuteHelpGoesToStderr(t *testing.T) {
	var captured capture
	env, stdout, stderr := testEnvironment(map[string]string{}, &captured)
	if code := execute(context.Background(), []string{"--help"}, env); code != 0 {
		t.Fatalf("execute() = %d", code)
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "--project-id") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestBuildComponentsForDuckDBBackend(t *testing.T) {
	cfg, err := config.Load(serviceName, func(key string) (string, bool) {
		values := map[string]string{
			"WAREHOUSE_MCP_PROJECT_ID":           "lake",
			"WAREHOUSE_MCP_BACKEND":              config.BackendDuckDB,
			"WAREHOUSE_MCP_OBJECTSTORE_BUCKET":   "lake",
			"WAREHOUSE_MCP_OBJECTSTORE_ENDPOINT": "localhost:9000",
		}
		value, ok := values[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	c, err := buildComponents(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildComponents() error = %v", err)
	}
	defer c.Close()
	if c.objectStore == nil {
		t.Fatal("expected object store readiness target")
	}
	if _, ok := c.recorder.(audit.Nop); !ok {
		t.Fatalf("recorder = %T, want audit.Nop", c.recorder)
	}
	if c.auditReader != nil {
		t.Fatal("audit reader must be nil when audit is off")
	}
}

func TestServeAnswersOverStdioUntilEOF(t *testing.T) {
	cfg, err := config.Load(serviceName, func(key string) (string, bool) {
		values := map[string]string{
			"WAREHOUSE_MCP_PROJECT_ID":           "lake",
			"WAREHOUSE_MCP_BACKEND":              config.BackendDuckDB,
			"WAREHOUSE_MCP_OBJECTSTORE_BUCKET":   "lake",
			"WAREHOUSE_MCP_OBJECTSTORE_ENDPOINT": "localhost:9000",
			"WAREHOUSE_MCP_LOG_LEVEL":            "error",
		}
		value, ok := values[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	var stdout, stderr bytes.Buffer
	env := environment{
		stdin:  strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"query","arguments":{"sqlText":"DELETE FROM t"}}}` + "\n"),
		stdout: &stdout,
		stderr: &stderr,
	}
	if err := serve(context.Background(), cfg, env); err != nil {
		t.Fatalf("serve() error = %v", err)
	}
	if !strings.Contains(stdout.String(), `"code":-32001`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}
