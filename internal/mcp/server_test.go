package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/duckmesh/warehouse-mcp/internal/warehouse"
)

func TestServeAnswersEachRequestOnItsOwnLine(t *testing.T) {
	gateway := &fakeGateway{rows: []warehouse.Row{{"one": 1}}}
	router := newTestRouter(t, gateway, nil, nil)

	var input strings.Builder
	const requests = 20
	for i := 0; i < requests; i++ {
		fmt.Fprintf(&input, `{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"query","arguments":{"sqlText":"SELECT 1 AS one"}}}`+"\n", i)
	}
	input.WriteString(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	input.WriteString("\n")

	var output bytes.Buffer
	if err := router.Serve(context.Background(), strings.NewReader(input.String()), &output); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != requests {
		t.Fatalf("got %d response lines, want %d", len(lines), requests)
	}
	seen := make(map[string]bool, requests)
	for _, line := range lines {
		var response wireResponse
		if err := json.Unmarshal([]byte(line), &response); err != nil {
			t.Fatalf("response line %q is not JSON: %v", line, err)
		}
		if response.Error != nil {
			t.Fatalf("unexpected error: %+v", response.Error)
		}
		seen[string(response.ID)] = true
	}
	for i := 0; i < requests; i++ {
		if !seen[fmt.Sprint(i)] {
			t.Fatalf("no response for id %d", i)
		}
	}
}

func TestServeHandlesRequestsConcurrently(t *testing.T) {
	var active, peak atomic.Int32
	var once sync.Once
	bothRunning := make(chan struct{})
	gateway := &fakeGateway{}
	gateway.onQuery = func() {
		current := active.Add(1)
		defer active.Add(-1)
		for {
			seen := peak.Load()
			if current <= seen || peak.CompareAndSwap(seen, current) {
				break
			}
		}
		if current >= 2 {
			once.Do(func() { close(bothRunning) })
		}
		select {
		case <-bothRunning:
		case <-time.After(2 * time.Second):
		}
	}
	router := newTestRouter(t, gateway, nil, nil)

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"query","arguments":{"sqlText":"SELECT 1"}}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"query","arguments":{"sqlText":"SELECT 2"}}}` + "\n"
	var output bytes.Buffer
	if err := router.Serve(context.Background(), strings.NewReader(input), &output); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if peak.Load() < 2 {
		t.Fatalf("peak concurrency = %d, want 2", peak.Load())
	}
	if got := strings.Count(output.String(), "\n"); got != 2 {
		t.Fatalf("response lines = %d, want 2", got)
	}
}

func TestServeReportsParseErrorsAndContinues(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, nil, nil)
	input := "not json\n" + `{"jsonrpc":"2.0","id":"after","method":"ping"}` + "\n"
	var output bytes.Buffer
	if err := router.Serve(context.Background(), strings.NewReader(input), &output); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if !strings.Contains(output.String(), `"code":-32700`) {
		t.Fatalf("output = %s", output.String())
	}
	if !strings.Contains(output.String(), `"id":"after"`) {
		t.Fatalf("output = %s", output.String())
	}
}

func TestServeAnswersOversizedMessageAndContinues(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, nil, nil)
	router.maxMessageBytes = 1024

	oversized := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"query","arguments":{"sqlText":"SELECT '` +
		strings.Repeat("x", 100_000) + `'"}}}`
	input := oversized + "\n" + `{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"
	var output bytes.Buffer
	if err := router.Serve(context.Background(), strings.NewReader(input), &output); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines, want 2: %s", len(lines), output.String())
	}
	var rejected, ping wireResponse
	if err := json.Unmarshal([]byte(lines[0]), &rejected); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if rejected.Error == nil || rejected.Error.Code != -32600 || string(rejected.ID) != "null" {
		t.Fatalf("oversized response = %s", lines[0])
	}
	if err := json.Unmarshal([]byte(lines[1]), &ping); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if ping.Error != nil || string(ping.ID) != "2" {
		t.Fatalf("ping response = %s", lines[1])
	}
}

func TestServeHandlesFinalLineWithoutNewline(t *testing.T) {
	router := newTestRouter(t, &fakeGateway{}, nil, nil)
	var output bytes.Buffer
	if err := router.Serve(context.Background(), strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"ping"}`), &output); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if !strings.Contains(output.String(), `"id":7`) {
		t.Fatalf("output = %s", output.String())
	}
}
