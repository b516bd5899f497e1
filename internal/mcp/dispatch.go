package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/tinytelemetry/magpie/internal/diag"
	"github.com/tinytelemetry/magpie/internal/model"
)

// LogStore is the store contract the dispatcher reads from.
type LogStore interface {
	Query(model.Filter) ([]model.LogRecord, error)
	Search(query string, f model.Filter) ([]model.LogRecord, error)
	Stats(source *string, since *float64) (model.Stats, error)
	Categories(source *string) ([]string, error)
	Sessions(source *string) ([]model.SessionSummary, error)
	LatestSession(source *string) (string, error)
	Clear(source *string, before *float64) (int64, error)
}

// SourceRegistry is the source-manager contract behind the source tools.
type SourceRegistry interface {
	AddFile(path, name string) (string, error)
	Remove(id string) bool
	List() []model.SourceInfo
}

// Dispatcher routes JSON-RPC requests to tool and resource handlers backed
// by the log store.
type Dispatcher struct {
	store   LogStore
	sources SourceRegistry
}

// NewDispatcher creates a dispatcher over the given store and registry.
func NewDispatcher(store LogStore, sources SourceRegistry) *Dispatcher {
	return &Dispatcher{store: store, sources: sources}
}

// Dispatch handles one raw request body and returns the marshaled response,
// or nil when the request is a notification (or an unmarshalable response,
// which cannot happen with well-formed handlers).
func (d *Dispatcher) Dispatch(body []byte, sessionID string) []byte {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return marshalResponse(Response{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &RPCError{Code: -32700, Message: "parse error"},
		})
	}

	diag.Logf("MCP", "%s (session: %s)", req.Method, sessionID)

	resp := d.handleSafe(req)
	if resp == nil || req.IsNotification() {
		// Notifications get no response; the transport drops empty results.
		return nil
	}
	return marshalResponse(*resp)
}

// handleSafe converts a handler panic into a -32603 error envelope so one
// bad request can never take the transport down with it.
func (d *Dispatcher) handleSafe(req Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			id := req.ID
			if id == nil {
				id = json.RawMessage("null")
			}
			resp = &Response{
				JSONRPC: "2.0",
				ID:      id,
				Error:   &RPCError{Code: -32603, Message: fmt.Sprint(r)},
			}
		}
	}()
	return d.handle(req)
}

func marshalResponse(resp Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		diag.Errorf("MCP", "response marshal failed: %v", err)
		return nil
	}
	return data
}

// handle routes one request. A nil return means "no response" (notification).
func (d *Dispatcher) handle(req Request) *Response {
	id := req.ID
	if id == nil {
		id = json.RawMessage("null")
	}

	success := func(result any) *Response {
		data, err := json.Marshal(result)
		if err != nil {
			return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: -32603, Message: err.Error()}}
		}
		return &Response{JSONRPC: "2.0", ID: id, Result: data}
	}
	failure := func(code int, msg string) *Response {
		return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: msg}}
	}

	switch req.Method {
	case "initialize":
		return success(d.handleInitialize())

	case "notifications/initialized":
		// Client acknowledgment; notifications get no response.
		return nil

	case "ping":
		return success(map[string]any{})

	case "tools/list":
		return success(map[string]any{"tools": toolCatalog()})

	case "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		// Allow absent params; only reject genuinely malformed JSON.
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			return failure(-32603, fmt.Sprintf("invalid params: %v", err))
		}
		return success(d.handleToolCall(p.Name, p.Arguments))

	case "resources/list":
		return success(map[string]any{"resources": resourceCatalog()})

	case "resources/read":
		var p struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			return failure(-32603, fmt.Sprintf("invalid params: %v", err))
		}
		result, err := d.handleResourceRead(p.URI)
		if err != nil {
			return failure(-32603, err.Error())
		}
		return success(result)

	default:
		return failure(-32601, "Method not found: "+req.Method)
	}
}

func (d *Dispatcher) handleInitialize() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{"subscribe": false},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": ServerVersion,
			"description": "Game Log Aggregation Server - Collects and queries logs from game clients and servers.\n\n" +
				"DEBUGGING WORKFLOW:\n" +
				"1. Start with 'get_stats' or 'logs://stats' to understand error/warning counts\n" +
				"2. Use 'logs://errors' to see Fatal and Error level logs immediately\n" +
				"3. Use 'get_categories' to discover what subsystems are logging\n" +
				"4. Use 'query_logs' with category filter to isolate specific subsystems\n" +
				"5. Use 'search_logs' to find specific messages, IDs, or error text\n" +
				"6. Use 'get_sessions' to compare behavior across different play sessions\n\n" +
				"LOG ENTRY FIELDS:\n" +
				"- source: 'client' or 'server' (compare both for networking issues)\n" +
				"- category: log category (LogTemp, LogNet, LogGameMode, etc.)\n" +
				"- verbosity: Fatal > Error > Warning > Display > Log > Verbose\n" +
				"- timestamp: emitter game time, frame: frame number\n" +
				"- session_id: groups logs from the same session across client+server\n" +
				"- instance_id: distinguishes multiple clients in the same session",
		},
	}
}
