// Package warehousectl is the operator CLI for a running warehouse-mcp HTTP
// transport. It sends JSON-RPC messages to /v1/rpc and reads the plain
// HTTP endpoints.
package warehousectl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type runner struct {
	client  *http.Client
	baseURL string
	apiKey  string
	asJSON  bool
	stdout  io.Writer
	stderr  io.Writer
	nextID  int
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("warehousectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "warehouse-mcp HTTP base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")
	output := fs.String("output", "table", "output format: table or json")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if *output != "table" && *output != "json" {
		_, _ = fmt.Fprintf(stderr, "invalid -output %q\n", *output)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	r := &runner{
		client:  client,
		baseURL: strings.TrimRight(*baseURL, "/"),
		apiKey:  strings.TrimSpace(*apiKey),
		asJSON:  *output == "json",
		stdout:  stdout,
		stderr:  stderr,
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	var err error
	switch command {
	case "health":
		err = r.get(ctx, "/v1/health")
	case "ready":
		err = r.get(ctx, "/v1/ready")
	case "tools":
		err = r.tools(ctx)
	case "resources":
		err = r.resources(ctx)
	case "schema":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: warehousectl schema <uri>")
			return 2
		}
		err = r.schema(ctx, rest[0])
	case "query":
		return r.query(ctx, rest)
	case "audit":
		return r.audit(ctx, rest)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func (r *runner) get(ctx context.Context, path string) error {
	body, err := r.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	r.printRaw(body)
	return nil
}

func (r *runner) query(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(r.stderr)
	maxBytes := fs.String("max-bytes", "", "byte cap forwarded as maxBytesBilled")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	sqlText := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if sqlText == "" {
		_, _ = fmt.Fprintln(r.stderr, "usage: warehousectl query [-max-bytes N] <sql>")
		return 2
	}

	arguments := map[string]any{"sqlText": sqlText}
	if *maxBytes != "" {
		arguments["maxBytesBilled"] = *maxBytes
	}
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := r.call(ctx, "tools/call", map[string]any{"name": "query", "arguments": arguments}, &result); err != nil {
		_, _ = fmt.Fprintln(r.stderr, err)
		return 1
	}
	if len(result.Content) == 0 {
		_, _ = fmt.Fprintln(r.stderr, "empty tool result")
		return 1
	}
	text := result.Content[0].Text
	if result.IsError {
		_, _ = fmt.Fprintln(r.stderr, text)
		return 1
	}
	if r.asJSON {
		_, _ = fmt.Fprintln(r.stdout, text)
		return 0
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		_, _ = fmt.Fprintln(r.stdout, text)
		return 0
	}
	if err := renderRows(r.stdout, rows); err != nil {
		_, _ = fmt.Fprintln(r.stderr, err)
		return 1
	}
	return 0
}

func (r *runner) audit(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(r.stderr)
	limit := fs.Int("limit", 20, "number of entries")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	body, err := r.do(ctx, http.MethodGet, fmt.Sprintf("/v1/audit?limit=%d", *limit), nil)
	if err != nil {
		_, _ = fmt.Fprintln(r.stderr, err)
		return 1
	}
	if r.asJSON {
		r.printRaw(body)
		return 0
	}
	var payload struct {
		Entries []auditEntry `json:"entries"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		_, _ = fmt.Fprintf(r.stderr, "decode audit entries: %v\n", err)
		return 1
	}
	if err := renderAudit(r.stdout, payload.Entries); err != nil {
		_, _ = fmt.Fprintln(r.stderr, err)
		return 1
	}
	return 0
}

func (r *runner) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (r *runner) printRaw(body []byte) {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(r.stdout, pretty)
		return
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(r.stdout, string(body))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

var errEmptyRPCResponse = errors.New("empty rpc response")

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: warehousectl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                     GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                      GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  tools                      list tools")
	_, _ = fmt.Fprintln(w, "  resources                  list table and view resources")
	_, _ = fmt.Fprintln(w, "  schema <uri>               read one resource schema")
	_, _ = fmt.Fprintln(w, "  query [-max-bytes N] <sql> run a read-only query")
	_, _ = fmt.Fprintln(w, "  audit [-limit N]           GET /v1/audit")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
