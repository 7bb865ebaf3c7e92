package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func quietServer() *Server {
	return NewWithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNew(t *testing.T) {
	s := New()
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cache == nil {
		t.Fatal("New() did not initialize cache")
	}
	if s.log == nil {
		t.Fatal("New() did not set a logger")
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
		wantParams bool
	}{
		{"string id", `{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`, "test-1", "tools/list", false},
		{"number id", `{"jsonrpc":"2.0","id":42,"method":"ping"}`, float64(42), "ping", false},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"initialize"}`, nil, "initialize", false},
		{
			"with params",
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"frame_info","arguments":{"path":"/tmp/a.png"}}}`,
			float64(1), "tools/call", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
			if (len(req.Params) > 0) != tt.wantParams {
				t.Errorf("Params present: got %v, want %v", len(req.Params) > 0, tt.wantParams)
			}
		})
	}
}

func TestMCPResponse_Marshal(t *testing.T) {
	tests := []struct {
		name    string
		resp    MCPResponse
		present []string
		absent  []string
	}{
		{
			"result",
			MCPResponse{JSONRPC: "2.0", ID: 1, Result: map[string]string{"status": "ok"}},
			[]string{"result"},
			[]string{"error"},
		},
		{
			"error",
			MCPResponse{JSONRPC: "2.0", ID: 1, Error: &MCPError{Code: -32000, Message: "Tool execution failed", Data: "boom"}},
			[]string{"error"},
			[]string{"result"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}
			var decoded map[string]interface{}
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if decoded["jsonrpc"] != "2.0" {
				t.Errorf("jsonrpc: got %v", decoded["jsonrpc"])
			}
			for _, k := range tt.present {
				if _, ok := decoded[k]; !ok {
					t.Errorf("missing %q in %s", k, data)
				}
			}
			for _, k := range tt.absent {
				if _, ok := decoded[k]; ok {
					t.Errorf("unexpected %q in %s", k, data)
				}
			}
		})
	}
}

func TestHandleRequest(t *testing.T) {
	s := quietServer()

	tests := []struct {
		name      string
		req       MCPRequest
		wantNil   bool
		wantError int
	}{
		{name: "initialize", req: MCPRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"}},
		{name: "ping", req: MCPRequest{JSONRPC: "2.0", ID: "ping-1", Method: "ping"}},
		{name: "tools/list", req: MCPRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"}},
		{name: "notification", req: MCPRequest{JSONRPC: "2.0", Method: "notifications/initialized"}, wantNil: true},
		{name: "unknown method", req: MCPRequest{JSONRPC: "2.0", ID: 3, Method: "nonexistent/method"}, wantError: -32601},
		{name: "bad tool params", req: MCPRequest{JSONRPC: "2.0", ID: 4, Method: "tools/call", Params: json.RawMessage(`[1,2]`)}, wantError: -32602},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			resp := s.handleRequest(&req)
			if tt.wantNil {
				if resp != nil {
					t.Errorf("expected no response, got %+v", resp)
				}
				return
			}
			if resp == nil {
				t.Fatal("handleRequest returned nil")
			}
			if resp.ID != tt.req.ID {
				t.Errorf("ID: got %v, want %v", resp.ID, tt.req.ID)
			}
			if tt.wantError == 0 {
				if resp.Error != nil {
					t.Fatalf("Unexpected error: %+v", resp.Error)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.wantError {
				t.Errorf("Error: got %+v, want code %d", resp.Error, tt.wantError)
			}
		})
	}
}

func TestHandleInitialize(t *testing.T) {
	s := quietServer()
	resp := s.handleInitialize(&MCPRequest{JSONRPC: "2.0", ID: "init-1"})

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}
	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if serverInfo["name"] != "marker-tools-mcp" {
		t.Errorf("serverInfo.name: got %v", serverInfo["name"])
	}
	if serverInfo["version"] != ServerVersion {
		t.Errorf("serverInfo.version: got %v", serverInfo["version"])
	}
}

func TestHandleToolsList(t *testing.T) {
	resp := quietServer().handleToolsList(&MCPRequest{JSONRPC: "2.0", ID: 1})
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	tools, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatal("tools should be a slice of Tool")
	}
	if len(tools) != len(GetToolDefinitions()) {
		t.Errorf("got %d tools, want %d", len(tools), len(GetToolDefinitions()))
	}
}

func TestServe(t *testing.T) {
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"no_such_tool","arguments":{}}}`,
	}, "\n")

	var out bytes.Buffer
	if err := quietServer().Serve(strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve error: %v", err)
	}

	var responses []MCPResponse
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r MCPResponse
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("invalid response line %q: %v", sc.Text(), err)
		}
		responses = append(responses, r)
	}

	if len(responses) != 3 {
		t.Fatalf("got %d responses, want 3: %s", len(responses), out.String())
	}
	for i, want := range []float64{1, 2, 3} {
		if responses[i].ID != want {
			t.Errorf("response %d: ID %v, want %v", i, responses[i].ID, want)
		}
	}
	if responses[2].Error == nil || responses[2].Error.Code != -32000 {
		t.Errorf("unknown tool: got %+v, want code -32000", responses[2].Error)
	}
}

func TestMCPNotification_Marshal(t *testing.T) {
	data, err := json.Marshal(MCPNotification{JSONRPC: "2.0", Method: "test/notification"})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["id"]; ok {
		t.Error("notifications must not carry an id")
	}
	if _, ok := decoded["params"]; ok {
		t.Error("empty params should be omitted")
	}
}
