package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/tinytelemetry/magpie/internal/model"
)

// toolArgs is the superset of accepted tool arguments; each tool reads the
// subset it documents. Pointers distinguish "absent" from zero values.
type toolArgs struct {
	Query       *string  `json:"query"`
	Source      *string  `json:"source"`
	Verbosity   *string  `json:"verbosity"`
	Category    *string  `json:"category"`
	Since       *float64 `json:"since"`
	Until       *float64 `json:"until"`
	Limit       *int     `json:"limit"`
	Offset      *int     `json:"offset"`
	Count       *int     `json:"count"`
	SessionID   *string  `json:"session_id"`
	InstanceID  *string  `json:"instance_id"`
	AllSessions *bool    `json:"all_sessions"`
	Before      *float64 `json:"before"`
	Path        *string  `json:"path"`
	Name        *string  `json:"name"`
	ID          *string  `json:"id"`
}

func (a toolArgs) filter() model.Filter {
	f := model.Filter{
		Since:      a.Since,
		Until:      a.Until,
		SessionID:  a.SessionID,
		InstanceID: a.InstanceID,
	}
	if a.Source != nil {
		f.Source = *a.Source
	}
	if a.Category != nil {
		f.Category = *a.Category
	}
	if a.Verbosity != nil {
		f.MinSeverity = model.ParseSeverity(*a.Verbosity)
	}
	if a.Limit != nil {
		f.Limit = *a.Limit
	}
	if a.Offset != nil {
		f.Offset = *a.Offset
	}
	if a.AllSessions != nil {
		f.AllSessions = *a.AllSessions
	}
	return f
}

// handleToolCall dispatches on tool name and wraps the result per the MCP
// tools/call contract: a text content block holding the JSON dump, plus an
// isError flag. Tool failures are reported in-band, never as RPC errors.
func (d *Dispatcher) handleToolCall(name string, rawArgs json.RawMessage) map[string]any {
	var result any
	var callErr error

	var args toolArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			callErr = fmt.Errorf("invalid arguments: %w", err)
		}
	}

	if callErr == nil {
		switch name {
		case "query_logs":
			result, callErr = d.toolQueryLogs(args)
		case "search_logs":
			result, callErr = d.toolSearchLogs(args)
		case "get_stats":
			result, callErr = d.toolGetStats(args)
		case "get_categories":
			result, callErr = d.toolGetCategories(args)
		case "clear_logs":
			result, callErr = d.toolClearLogs(args)
		case "tail_logs":
			result, callErr = d.toolTailLogs(args)
		case "get_sessions":
			result, callErr = d.toolGetSessions(args)
		case "add_file_source":
			result, callErr = d.toolAddFileSource(args)
		case "remove_source":
			result, callErr = d.toolRemoveSource(args)
		case "list_sources":
			result, callErr = d.toolListSources()
		default:
			callErr = fmt.Errorf("Unknown tool: %s", name)
		}
	}

	isError := callErr != nil
	var text string
	if isError {
		text = "Error: " + callErr.Error()
	} else {
		dump, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			isError = true
			text = "Error: " + err.Error()
		} else {
			text = string(dump)
		}
	}

	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": isError,
	}
}

func emptyRecords(logs []model.LogRecord) []model.LogRecord {
	if logs == nil {
		return []model.LogRecord{}
	}
	return logs
}

func (d *Dispatcher) toolQueryLogs(args toolArgs) (any, error) {
	logs, err := d.store.Query(args.filter())
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(logs), "logs": emptyRecords(logs)}, nil
}

func (d *Dispatcher) toolSearchLogs(args toolArgs) (any, error) {
	if args.Query == nil || *args.Query == "" {
		return nil, fmt.Errorf("Query parameter is required")
	}
	logs, err := d.store.Search(*args.Query, args.filter())
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(logs), "query": *args.Query, "logs": emptyRecords(logs)}, nil
}

func (d *Dispatcher) toolGetStats(args toolArgs) (any, error) {
	return d.store.Stats(args.Source, args.Since)
}

func (d *Dispatcher) toolGetCategories(args toolArgs) (any, error) {
	categories, err := d.store.Categories(args.Source)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []string{}
	}
	return map[string]any{"categories": categories}, nil
}

func (d *Dispatcher) toolClearLogs(args toolArgs) (any, error) {
	deleted, err := d.store.Clear(args.Source, args.Before)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"deleted": deleted,
		"message": fmt.Sprintf("%d log entries deleted", deleted),
	}, nil
}

func (d *Dispatcher) toolTailLogs(args toolArgs) (any, error) {
	count := 50
	if args.Count != nil {
		count = *args.Count
	}
	f := model.Filter{
		SessionID:  args.SessionID,
		InstanceID: args.InstanceID,
		Limit:      count,
	}
	if args.Source != nil {
		f.Source = *args.Source
	}
	if args.AllSessions != nil {
		f.AllSessions = *args.AllSessions
	}
	logs, err := d.store.Query(f)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(logs), "logs": emptyRecords(logs)}, nil
}

func (d *Dispatcher) toolGetSessions(args toolArgs) (any, error) {
	limit := 20
	if args.Limit != nil {
		limit = *args.Limit
	}
	sessions, err := d.store.Sessions(args.Source)
	if err != nil {
		return nil, err
	}
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	if sessions == nil {
		sessions = []model.SessionSummary{}
	}
	return map[string]any{"count": len(sessions), "sessions": sessions}, nil
}

func (d *Dispatcher) toolAddFileSource(args toolArgs) (any, error) {
	if args.Path == nil || *args.Path == "" {
		return nil, fmt.Errorf("path parameter is required")
	}
	name := ""
	if args.Name != nil {
		name = *args.Name
	}
	id, err := d.sources.AddFile(*args.Path, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id}, nil
}

func (d *Dispatcher) toolRemoveSource(args toolArgs) (any, error) {
	if args.ID == nil || *args.ID == "" {
		return nil, fmt.Errorf("id parameter is required")
	}
	return map[string]any{"removed": d.sources.Remove(*args.ID)}, nil
}

func (d *Dispatcher) toolListSources() (any, error) {
	list := d.sources.List()
	if list == nil {
		list = []model.SourceInfo{}
	}
	return map[string]any{"sources": list}, nil
}
