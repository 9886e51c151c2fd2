// Command mcp exposes the EventMe JSON API as MCP tools over stdio.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const protocolVersion = "2024-11-05"

// JSON-RPC envelope
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

func reply(id, result any) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func fail(id any, code int, msg string) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: msg}}
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// route maps a tool onto one API request.
// query names arguments sent as URL parameters; body sends all arguments as JSON.
type route struct {
	method string
	path   string
	query  []string
	body   bool
}

type toolDef struct {
	Tool
	route route
}

var idSchema = InputSchema{
	Type: "object",
	Properties: map[string]Property{
		"id": {Type: "string", Description: "Record ID as returned by the list tool"},
	},
	Required: []string{"id"},
}

var tools = []toolDef{
	{
		Tool: Tool{
			Name:        "list_events",
			Description: "List events of the EventMe calendar. Defaults to one month back and ahead; recurring events are returned per occurrence.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"from": {Type: "string", Description: "Start date YYYY-MM-DD (optional, needs to)"},
					"to":   {Type: "string", Description: "End date YYYY-MM-DD (optional, needs from)"},
				},
			},
		},
		route: route{method: http.MethodGet, path: "/api/events", query: []string{"from", "to"}},
	},
	{
		Tool: Tool{
			Name:        "list_reminders",
			Description: "List reminders of the EventMe list.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"completed": {Type: "string", Description: "Filter by completion (optional)", Enum: []string{"true", "false"}},
				},
			},
		},
		route: route{method: http.MethodGet, path: "/api/reminders", query: []string{"completed"}},
	},
	{
		Tool: Tool{
			Name:        "create_event",
			Description: "Create an event. A start without time makes an all-day event; a timed event without end lasts one hour.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"title":   {Type: "string", Description: "Event title"},
					"start":   {Type: "string", Description: "Start as YYYY-MM-DD HH:MM or YYYY-MM-DD"},
					"end":     {Type: "string", Description: "End as YYYY-MM-DD HH:MM or YYYY-MM-DD (optional)"},
					"all_day": {Type: "boolean", Description: "All-day event (optional)"},
				},
				Required: []string{"title", "start"},
			},
		},
		route: route{method: http.MethodPost, path: "/api/events", body: true},
	},
	{
		Tool: Tool{
			Name:        "create_reminder",
			Description: "Create a reminder, optionally with an alarm.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"title":      {Type: "string", Description: "Reminder title"},
					"alarm_date": {Type: "string", Description: "Alarm as YYYY-MM-DD HH:MM (optional)"},
				},
				Required: []string{"title"},
			},
		},
		route: route{method: http.MethodPost, path: "/api/reminders", body: true},
	},
	{
		Tool:  Tool{Name: "toggle_reminder", Description: "Mark a reminder completed, or incomplete again.", InputSchema: idSchema},
		route: route{method: http.MethodPost, path: "/api/reminders/toggle", query: []string{"id"}},
	},
	{
		Tool:  Tool{Name: "delete_event", Description: "Delete an event. For an occurrence of a recurring event only that occurrence is removed.", InputSchema: idSchema},
		route: route{method: http.MethodDelete, path: "/api/events", query: []string{"id"}},
	},
	{
		Tool:  Tool{Name: "delete_reminder", Description: "Delete a reminder.", InputSchema: idSchema},
		route: route{method: http.MethodDelete, path: "/api/reminders", query: []string{"id"}},
	},
}

func findTool(name string) (toolDef, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return toolDef{}, false
}

// MCPServer proxies tool calls to the bot's HTTP API
type MCPServer struct {
	apiURL      string
	apiUsername string
	apiPassword string
	client      *http.Client
}

func NewMCPServer() *MCPServer {
	apiURL := os.Getenv("EVENTME_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	return &MCPServer{
		apiURL:      strings.TrimRight(apiURL, "/"),
		apiUsername: os.Getenv("EVENTME_API_USERNAME"),
		apiPassword: os.Getenv("EVENTME_API_PASSWORD"),
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Serve reads one request per line and writes one response per line.
// Notifications (requests without an ID) get no response.
func (s *MCPServer) Serve(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("Error parsing request: %v", err)
			continue
		}
		if req.ID == nil {
			continue
		}

		if err := enc.Encode(s.handleRequest(req)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *MCPServer) handleRequest(req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return reply(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      serverInfo{Name: "eventme-mcp", Version: "1.0.0"},
		})
	case "ping":
		return reply(req.ID, map[string]any{})
	case "tools/list":
		list := make([]Tool, 0, len(tools))
		for _, t := range tools {
			list = append(list, t.Tool)
		}
		return reply(req.ID, ToolsListResult{Tools: list})
	case "tools/call":
		return s.callTool(req)
	default:
		return fail(req.ID, codeMethodNotFound, "Method not found")
	}
}

func (s *MCPServer) callTool(req JSONRPCRequest) JSONRPCResponse {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return fail(req.ID, codeInvalidParams, "Invalid params")
	}

	text, isError := "Unknown tool: "+params.Name, true
	if t, ok := findTool(params.Name); ok {
		text, isError = s.call(t.route, params.Arguments)
	}

	return reply(req.ID, ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: isError,
	})
}

// call performs the API request of a route and renders the outcome as text
func (s *MCPServer) call(r route, args map[string]any) (string, bool) {
	target := r.path
	q := url.Values{}
	for _, name := range r.query {
		if v, ok := args[name]; ok && v != nil && fmt.Sprint(v) != "" {
			q.Set(name, fmt.Sprint(v))
		}
	}
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var body io.Reader
	if r.body {
		data, err := json.Marshal(args)
		if err != nil {
			return fmt.Sprintf("Error encoding arguments: %v", err), true
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.method, s.apiURL+target, body)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}
	req.SetBasicAuth(s.apiUsername, s.apiPassword)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error calling API: %v", err), true
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return string(raw), resp.StatusCode >= http.StatusBadRequest
	}
	if !envelope.Success {
		return "API error: " + envelope.Error, true
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, envelope.Data, "", "  "); err != nil {
		return string(envelope.Data), false
	}
	return pretty.String(), false
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := NewMCPServer().Serve(os.Stdin, os.Stdout); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
