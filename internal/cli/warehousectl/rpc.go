package warehousectl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Kind string `json:"kind"`
	} `json:"data"`
}

func (e *rpcError) Error() string {
	if e.Data.Kind != "" {
		return fmt.Sprintf("rpc error %d (%s): %s", e.Code, e.Data.Kind, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call sends one JSON-RPC request and decodes its result into target.
func (r *runner) call(ctx context.Context, method string, params any, target any) error {
	r.nextID++
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      r.nextID,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	body, err := r.do(ctx, http.MethodPost, "/v1/rpc", payload)
	if err != nil {
		return err
	}
	var response struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if response.Error != nil {
		return response.Error
	}
	if len(response.Result) == 0 {
		return errEmptyRPCResponse
	}
	if target == nil {
		return nil
	}
	if raw, ok := target.(*json.RawMessage); ok {
		*raw = response.Result
		return nil
	}
	if err := json.Unmarshal(response.Result, target); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (r *runner) tools(ctx context.Context) error {
	var raw json.RawMessage
	if err := r.call(ctx, "tools/list", map[string]any{}, &raw); err != nil {
		return err
	}
	if r.asJSON {
		r.printRaw(raw)
		return nil
	}
	var result struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Annotations struct {
				ReadOnlyHint *bool `json:"readOnlyHint"`
			} `json:"annotations"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode tools: %w", err)
	}
	data := [][]string{{"NAME", "READ-ONLY", "DESCRIPTION"}}
	for _, tool := range result.Tools {
		readOnly := "no"
		if tool.Annotations.ReadOnlyHint != nil && *tool.Annotations.ReadOnlyHint {
			readOnly = "yes"
		}
		data = append(data, []string{tool.Name, readOnly, tool.Description})
	}
	return renderTable(r.stdout, data)
}

func (r *runner) resources(ctx context.Context) error {
	var raw json.RawMessage
	if err := r.call(ctx, "resources/list", map[string]any{}, &raw); err != nil {
		return err
	}
	if r.asJSON {
		r.printRaw(raw)
		return nil
	}
	var result struct {
		Resources *[]struct {
			URI  string `json:"uri"`
			Name string `json:"name"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode resources: %w", err)
	}
	if result.Resources == nil {
		_, _ = fmt.Fprintln(r.stdout, "resource enumeration is disabled on the server")
		return nil
	}
	data := [][]string{{"URI", "NAME"}}
	for _, res := range *result.Resources {
		data = append(data, []string{res.URI, res.Name})
	}
	return renderTable(r.stdout, data)
}

func (r *runner) schema(ctx context.Context, uri string) error {
	var result struct {
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	}
	if err := r.call(ctx, "resources/read", map[string]any{"uri": uri}, &result); err != nil {
		return err
	}
	if len(result.Contents) == 0 {
		return fmt.Errorf("resource %s has no contents", uri)
	}
	text := result.Contents[0].Text
	if r.asJSON {
		_, _ = fmt.Fprintln(r.stdout, text)
		return nil
	}
	var fields []schemaField
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		_, _ = fmt.Fprintln(r.stdout, text)
		return nil
	}
	return renderSchema(r.stdout, fields)
}
