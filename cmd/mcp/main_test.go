package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestToolsCallProxiesToAPI(t *testing.T) {
	var gotMethod, gotURI, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotURI = r.URL.RequestURI()
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"deleted":"x"}}`))
	}))
	defer srv.Close()

	s := &MCPServer{apiURL: srv.URL, apiUsername: "admin", apiPassword: "secret", client: srv.Client()}

	tests := []struct {
		tool       string
		args       string
		wantMethod string
		wantURI    string
	}{
		{"list_events", `{}`, http.MethodGet, "/api/events"},
		{"list_events", `{"from":"2024-01-01","to":"2024-02-01"}`, http.MethodGet, "/api/events?from=2024-01-01&to=2024-02-01"},
		{"list_reminders", `{"completed":"false"}`, http.MethodGet, "/api/reminders?completed=false"},
		{"create_event", `{"title":"Standup","start":"2024-01-10 09:00"}`, http.MethodPost, "/api/events"},
		{"toggle_reminder", `{"id":"abc"}`, http.MethodPost, "/api/reminders/toggle?id=abc"},
		{"delete_event", `{"id":"/calendars/me/eventme/1.ics"}`, http.MethodDelete, "/api/events?id=%2Fcalendars%2Fme%2Feventme%2F1.ics"},
		{"delete_reminder", `{"id":"r1"}`, http.MethodDelete, "/api/reminders?id=r1"},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			params := `{"name":"` + tt.tool + `","arguments":` + tt.args + `}`
			resp := s.handleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: json.RawMessage(params)})
			if resp.Error != nil {
				t.Fatalf("rpc error: %+v", resp.Error)
			}
			result := resp.Result.(ToolCallResult)
			if result.IsError {
				t.Fatalf("tool error: %+v", result.Content)
			}
			if gotMethod != tt.wantMethod || gotURI != tt.wantURI {
				t.Errorf("request = %s %s, want %s %s", gotMethod, gotURI, tt.wantMethod, tt.wantURI)
			}
			if gotUser != "admin" {
				t.Errorf("basic auth user = %q", gotUser)
			}
		})
	}
}

func TestToolsCallAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false,"error":"Access to events is not granted"}`))
	}))
	defer srv.Close()

	s := &MCPServer{apiURL: srv.URL, client: srv.Client()}
	resp := s.handleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call",
		Params: json.RawMessage(`{"name":"list_events","arguments":{}}`)})

	result := resp.Result.(ToolCallResult)
	if !result.IsError || !strings.Contains(result.Content[0].Text, "not granted") {
		t.Errorf("result = %+v", result)
	}
}

func TestToolsList(t *testing.T) {
	s := &MCPServer{}
	resp := s.handleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	tools := resp.Result.(ToolsListResult).Tools

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"list_events", "list_reminders", "create_event", "create_reminder", "toggle_reminder", "delete_event", "delete_reminder"} {
		if !names[want] {
			t.Errorf("tool %s missing", want)
		}
	}

	unknown := s.handleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 2, Method: "resources/list"})
	if unknown.Error == nil || unknown.Error.Code != -32601 {
		t.Errorf("unknown method = %+v", unknown)
	}
}

func TestServeSkipsNotifications(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}

not json
{"jsonrpc":"2.0","id":7,"method":"ping"}
`)
	var out bytes.Buffer
	if err := (&MCPServer{}).Serve(in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("responses = %q, want one", lines)
	}
	var resp struct {
		ID    int       `json:"id"`
		Error *RPCError `json:"error"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil || resp.ID != 7 || resp.Error != nil {
		t.Errorf("response = %s (%v)", lines[0], err)
	}
}
