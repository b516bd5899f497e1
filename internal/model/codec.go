package model

import "encoding/json"

// wireRecord is the JSON shape of a record on every external surface:
// ingest datagrams, tool results, and resource payloads.
type wireRecord struct {
	ID         int64   `json:"id"`
	Source     string  `json:"source"`
	Category   string  `json:"category"`
	Verbosity  string  `json:"verbosity"`
	Message    string  `json:"message"`
	Timestamp  float64 `json:"timestamp"`
	Frame      *int64  `json:"frame,omitempty"`
	File       *string `json:"file,omitempty"`
	Line       *int    `json:"line,omitempty"`
	ReceivedAt float64 `json:"received_at"`
	SessionID  string  `json:"session_id"`
	InstanceID string  `json:"instance_id"`
}

// MarshalJSON renders the record with its verbosity name and omits the
// optional source-location fields when unset.
func (r LogRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		ID:         r.ID,
		Source:     r.Source,
		Category:   r.Category,
		Verbosity:  r.Severity.String(),
		Message:    r.Message,
		Timestamp:  r.Timestamp,
		Frame:      r.Frame,
		File:       r.File,
		Line:       r.Line,
		ReceivedAt: r.ReceivedAt,
		SessionID:  r.SessionID,
		InstanceID: r.InstanceID,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON, including ID and ReceivedAt.
func (r *LogRecord) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = LogRecord{
		ID:         w.ID,
		Source:     w.Source,
		Category:   w.Category,
		Severity:   ParseSeverity(w.Verbosity),
		Message:    w.Message,
		Timestamp:  w.Timestamp,
		Frame:      w.Frame,
		File:       w.File,
		Line:       w.Line,
		ReceivedAt: w.ReceivedAt,
		SessionID:  w.SessionID,
		InstanceID: w.InstanceID,
	}
	return nil
}

// ingestRecord is the accepted datagram shape. It deliberately has no id or
// received_at fields: emitters do not get to write either, and unknown
// fields are ignored.
type ingestRecord struct {
	Source     string  `json:"source"`
	Category   string  `json:"category"`
	Verbosity  string  `json:"verbosity"`
	Message    string  `json:"message"`
	Timestamp  float64 `json:"timestamp"`
	Frame      *int64  `json:"frame"`
	File       *string `json:"file"`
	Line       *int    `json:"line"`
	SessionID  string  `json:"session_id"`
	InstanceID string  `json:"instance_id"`
}

// ParseIngest converts one inbound JSON object into a record. Missing
// string fields get the documented substitutes; a missing or unrecognized
// verbosity defaults to Log. Type mismatches surface as a parse error so
// the caller can drop the payload.
func ParseIngest(data []byte) (LogRecord, error) {
	w := ingestRecord{
		Source:   "unknown",
		Category: "LogTemp",
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return LogRecord{}, err
	}
	if w.Source == "" {
		w.Source = "unknown"
	}
	if w.Category == "" {
		w.Category = "LogTemp"
	}
	return LogRecord{
		Source:     w.Source,
		Category:   w.Category,
		Severity:   ParseSeverity(w.Verbosity),
		Message:    w.Message,
		Timestamp:  w.Timestamp,
		Frame:      w.Frame,
		File:       w.File,
		Line:       w.Line,
		SessionID:  w.SessionID,
		InstanceID: w.InstanceID,
	}, nil
}
