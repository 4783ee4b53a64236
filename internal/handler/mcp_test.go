package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cutiecart/internal/checkout"
	"cutiecart/internal/notify"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

// text returns the first text content of a tool result.
func (r callToolResult) text() string {
	for _, c := range r.Content {
		if c.Type == "text" {
			return c.Text
		}
	}
	return ""
}

func TestMCPServerCreation(t *testing.T) {
	env := newTestEnv(t, nil)

	if server := env.h.NewMCPServer(); server == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if handler := env.h.NewMCPHandler(); handler == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	env := newTestEnv(t, nil)

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo": map[string]string{
				"name":    "test-client",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	env.srv.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if w.Header().Get("Mcp-Session-Id") == "" {
		t.Error("expected Mcp-Session-Id header")
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}
	if resp.Result == nil {
		t.Error("Expected result in response")
	}
}

func TestMCPToolsList(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := initMCPSession(t, env.srv)

	listReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	}
	resp := mcpRoundTrip(t, env.srv, sessionID, listReq)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	want := []string{
		"list_products", "view_cart", "add_to_cart", "change_quantity", "remove_from_cart",
		"toggle_coupon", "view_checkout", "place_order", "confirmation",
	}
	have := make(map[string]bool, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		have[tool.Name] = true
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("missing tool %s", name)
		}
	}
}

func TestMCPCartFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := initMCPSession(t, env.srv)

	result := callTool(t, env.srv, sessionID, "add_to_cart", map[string]interface{}{
		"session":    testSession,
		"product_id": "kiss-001",
		"qty":        3,
	})
	if result.IsError {
		t.Fatalf("add_to_cart failed: %s", result.text())
	}
	var item ItemView
	if err := json.Unmarshal([]byte(result.text()), &item); err != nil {
		t.Fatalf("Failed to parse item view: %v", err)
	}
	if item.Control.Qty != 3 || item.Badge != 3 {
		t.Errorf("ItemView = %+v, want qty 3 badge 3", item)
	}

	result = callTool(t, env.srv, sessionID, "change_quantity", map[string]interface{}{
		"session":    testSession,
		"product_id": "kiss-001",
		"delta":      -3,
	})
	if result.IsError {
		t.Fatalf("change_quantity failed: %s", result.text())
	}
	if err := json.Unmarshal([]byte(result.text()), &item); err != nil {
		t.Fatalf("Failed to parse item view: %v", err)
	}
	if !item.Control.ShowAdd || len(item.Cart.Items) != 0 {
		t.Errorf("ItemView = %+v, want item removed", item)
	}

	callTool(t, env.srv, sessionID, "add_to_cart", map[string]interface{}{
		"session":    testSession,
		"product_id": "hug-001",
	})

	result = callTool(t, env.srv, sessionID, "view_cart", map[string]interface{}{
		"session": testSession,
	})
	var cart CartView
	if err := json.Unmarshal([]byte(result.text()), &cart); err != nil {
		t.Fatalf("Failed to parse cart: %v", err)
	}
	if cart.Count != 1 || cart.Items[0].ID != "hug-001" {
		t.Errorf("Cart = %+v, want one hug-001", cart)
	}

	// The REST view of the same session agrees.
	rest := decodeBody[CartView](t, env.do(t, "GET", "/cart", testSession, nil))
	if rest.Count != 1 {
		t.Errorf("REST cart Count = %d, want 1", rest.Count)
	}
}

func TestMCPPlaceOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := initMCPSession(t, env.srv)

	callTool(t, env.srv, sessionID, "add_to_cart", map[string]interface{}{
		"session":    testSession,
		"product_id": "movie-001",
	})
	callTool(t, env.srv, sessionID, "toggle_coupon", map[string]interface{}{
		"session": testSession,
		"code":    "DaWifey",
	})

	result := callTool(t, env.srv, sessionID, "place_order", map[string]interface{}{
		"session":       testSession,
		"buyer_name":    "Bubu",
		"delivery_time": "21:00",
		"dry_run":       true,
	})
	if result.IsError {
		t.Fatalf("place_order failed: %s", result.text())
	}

	var order PlacedOrder
	if err := json.Unmarshal([]byte(result.text()), &order); err != nil {
		t.Fatalf("Failed to parse order: %v", err)
	}
	if order.OrderID != "CUTIE-TEST01" {
		t.Errorf("OrderID = %q", order.OrderID)
	}
	if order.Notification != notify.StatusDryRun || order.DryRunSource != notify.DryRunFromRequest {
		t.Errorf("Notification = %s from %s, want dry_run from request", order.Notification, order.DryRunSource)
	}
	if order.Summary != "1 items (coupons: DaWifey)" {
		t.Errorf("Summary = %q", order.Summary)
	}
	if order.Delivery.Date != "2026-02-14" || order.Delivery.Time != "21:00" {
		t.Errorf("Delivery = %+v", order.Delivery)
	}
	if order.Redirect != checkout.ConfirmationPath {
		t.Errorf("Redirect = %q", order.Redirect)
	}

	calls := env.gateway.Calls()
	if len(calls) != 1 || !calls[0].Opts.DryRun {
		t.Fatalf("gateway calls = %+v, want one dry run", calls)
	}

	result = callTool(t, env.srv, sessionID, "confirmation", map[string]interface{}{
		"session": testSession,
	})
	var conf ConfirmationView
	if err := json.Unmarshal([]byte(result.text()), &conf); err != nil {
		t.Fatalf("Failed to parse confirmation: %v", err)
	}
	if conf.OrderID != "CUTIE-TEST01" {
		t.Errorf("confirmation = %q", conf.OrderID)
	}
}

func TestMCPToolErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := initMCPSession(t, env.srv)

	tests := []struct {
		name     string
		tool     string
		args     map[string]interface{}
		wantText string
	}{
		{
			name:     "empty cart",
			tool:     "place_order",
			args:     map[string]interface{}{"session": testSession},
			wantText: "EMPTY_CART",
		},
		{
			name:     "session not a uuid",
			tool:     "view_cart",
			args:     map[string]interface{}{"session": "tab-1"},
			wantText: "VALIDATION_ERROR",
		},
		{
			name:     "unknown product",
			tool:     "add_to_cart",
			args:     map[string]interface{}{"session": testSession, "product_id": "ghost"},
			wantText: "NOT_FOUND",
		},
		{
			name:     "add over cap",
			tool:     "add_to_cart",
			args:     map[string]interface{}{"session": testSession, "product_id": "kiss-001", "qty": 1000},
			wantText: "VALIDATION_ERROR",
		},
		{
			name:     "huge stepper delta",
			tool:     "change_quantity",
			args:     map[string]interface{}{"session": testSession, "product_id": "kiss-001", "delta": 1000000000},
			wantText: "VALIDATION_ERROR",
		},
		{
			name:     "huge negative stepper delta",
			tool:     "change_quantity",
			args:     map[string]interface{}{"session": testSession, "product_id": "kiss-001", "delta": -1000},
			wantText: "VALIDATION_ERROR",
		},
		{
			name:     "api too new",
			tool:     "place_order",
			args:     map[string]interface{}{"session": testSession, "api": "v2.0.0"},
			wantText: "version_unsupported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, env.srv, sessionID, tt.tool, tt.args)
			if !result.IsError {
				t.Fatalf("expected an error result, got %s", result.text())
			}
			if !strings.Contains(result.text(), tt.wantText) {
				t.Errorf("error = %q, want it to mention %s", result.text(), tt.wantText)
			}
		})
	}

	if len(env.gateway.Calls()) != 0 {
		t.Error("gateway called by a failing tool")
	}
	if view := decodeBody[CartView](t, env.do(t, "GET", "/cart", testSession, nil)); view.Count != 0 {
		t.Errorf("Count = %d after failing tools, want 0", view.Count)
	}
}

func TestMCPChangeQuantityLargeDelta(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := initMCPSession(t, env.srv)

	result := callTool(t, env.srv, sessionID, "change_quantity", map[string]interface{}{
		"session":    testSession,
		"product_id": "kiss-001",
		"delta":      999,
	})
	if result.IsError {
		t.Fatalf("change_quantity failed: %s", result.text())
	}
	var item ItemView
	if err := json.Unmarshal([]byte(result.text()), &item); err != nil {
		t.Fatalf("Failed to parse item view: %v", err)
	}
	if item.Control.Qty != 999 {
		t.Errorf("Qty = %d, want 999", item.Control.Qty)
	}

	result = callTool(t, env.srv, sessionID, "change_quantity", map[string]interface{}{
		"session":    testSession,
		"product_id": "kiss-001",
		"delta":      -999,
	})
	if err := json.Unmarshal([]byte(result.text()), &item); err != nil {
		t.Fatalf("Failed to parse item view: %v", err)
	}
	if !item.Control.ShowAdd || len(item.Cart.Items) != 0 {
		t.Errorf("ItemView = %+v, want item removed", item)
	}
}

func TestMCPMissingRequiredField(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := initMCPSession(t, env.srv)

	// Call view_cart without the required 'session' field
	args, _ := json.Marshal(map[string]interface{}{})
	callReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params: toolCallParams{
			Name:      "view_cart",
			Arguments: args,
		},
	}

	body, _ := json.Marshal(callReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	env.srv.ServeHTTP(w, httpReq)

	// Should still return 200, with error in the result
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

// callTool invokes an MCP tool and returns its result.
func callTool(t *testing.T, srv http.Handler, sessionID, name string, args map[string]interface{}) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpRoundTrip(t, srv, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params: toolCallParams{
			Name:      name,
			Arguments: raw,
		},
	})
	if resp.Error != nil {
		t.Fatalf("%s: unexpected JSON-RPC error: %+v", name, resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("%s: failed to parse result: %v", name, err)
	}
	return result
}

// mcpRoundTrip posts one JSON-RPC request and decodes the response.
func mcpRoundTrip(t *testing.T, srv http.Handler, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("%s: Status = %d, want %d\nBody: %s", req.Method, w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	return resp
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, srv http.Handler) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}
	sessionID := w.Header().Get("Mcp-Session-Id")

	// Complete the handshake.
	note, _ := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", Method: "notifications/initialized"})
	httpReq = httptest.NewRequest("POST", "/mcp", bytes.NewReader(note))
	setMCPHeaders(httpReq, sessionID)
	srv.ServeHTTP(httptest.NewRecorder(), httpReq)

	return sessionID
}
