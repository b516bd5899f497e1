package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/tinytelemetry/magpie/internal/model"
)

// handleResourceRead resolves a resource URI and wraps the JSON dump in the
// resources/read contents envelope. An unknown URI is an error response.
func (d *Dispatcher) handleResourceRead(uri string) (map[string]any, error) {
	var result any
	var err error

	switch uri {
	case "logs://recent":
		result, err = d.resourceRecentLogs()
	case "logs://stats":
		result, err = d.store.Stats(nil, nil)
	case "logs://errors":
		result, err = d.resourceErrors()
	case "logs://current-session":
		result, err = d.resourceCurrentSession()
	default:
		return nil, fmt.Errorf("Unknown resource: %s", uri)
	}
	if err != nil {
		return nil, err
	}

	dump, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"contents": []map[string]any{{
			"uri":      uri,
			"mimeType": "application/json",
			"text":     string(dump),
		}},
	}, nil
}

func (d *Dispatcher) resourceRecentLogs() (any, error) {
	logs, err := d.store.Query(model.Filter{Limit: 100})
	if err != nil {
		return nil, err
	}
	return emptyRecords(logs), nil
}

func (d *Dispatcher) resourceErrors() (any, error) {
	logs, err := d.store.Query(model.Filter{MinSeverity: model.Error, Limit: 100})
	if err != nil {
		return nil, err
	}
	return emptyRecords(logs), nil
}

func (d *Dispatcher) resourceCurrentSession() (any, error) {
	logs, err := d.store.Query(model.Filter{Limit: 100})
	if err != nil {
		return nil, err
	}
	sessionID, err := d.store.LatestSession(nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id": sessionID,
		"count":      len(logs),
		"logs":       emptyRecords(logs),
	}, nil
}
