package model

// LogRecord represents a single log entry used across the system.
// It is the canonical type for storage, transport (MCP), and display.
// Records are immutable after insert; the store assigns ID, and stamps
// ReceivedAt when the caller has left it zero.
type LogRecord struct {
	ID         int64    // store-assigned, 0 until persisted
	Source     string   // emitter class: "client", "server", "file-tailer", ...
	Category   string   // emitter-chosen subsystem name, e.g. "LogNet"
	Severity   Severity // Fatal..VeryVerbose
	Message    string
	Timestamp  float64 // emitter-supplied time in seconds, opaque
	Frame      *int64  // emitter sequence number
	File       *string // source location, when the emitter provides one
	Line       *int
	ReceivedAt float64 // store-stamped receive time in seconds
	SessionID  string  // groups records of one logical run; "" is a valid session
	InstanceID string  // distinguishes emitter processes within a session
}

// Filter holds the optional predicates applied to query and search.
// Zero values mean "no constraint", except SessionID and InstanceID where
// the empty string is itself a valid value and presence is a pointer.
type Filter struct {
	Source      string
	MinSeverity Severity // 0 = no threshold
	Category    string
	Since       *float64 // emit-time lower bound
	Until       *float64 // emit-time upper bound
	SessionID   *string
	InstanceID  *string
	AllSessions bool
	Limit       int // default 100
	Offset      int
}

// DefaultLimit is applied when a filter does not set one.
const DefaultLimit = 100

// EffectiveLimit returns the filter's limit, defaulted.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// Stats is an aggregate snapshot of the store.
type Stats struct {
	Total          int64            `json:"total"`
	Client         int64            `json:"client"`
	Server         int64            `json:"server"`
	BySource       map[string]int64 `json:"by_source"`
	Errors         int64            `json:"errors"`   // severity <= Error
	Warnings       int64            `json:"warnings"` // severity == Warning exactly
	ByCategory     map[string]int64 `json:"by_category"`
	SessionCount   int64            `json:"session_count"`
	InstanceCount  int64            `json:"instance_count"`
	CurrentSession string           `json:"current_session"`
}

// SessionSummary describes one session_id group.
type SessionSummary struct {
	SessionID string   `json:"session_id"`
	FirstSeen float64  `json:"first_seen"` // min received_at
	LastSeen  float64  `json:"last_seen"`  // max received_at
	LogCount  int64    `json:"log_count"`
	Instances []string `json:"instances"`
}

// SourceInfo describes a registered ingest source.
type SourceInfo struct {
	ID      string `json:"id"`
	Kind    string `json:"type"` // "file-tailer"
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
}

// Subscriber is invoked synchronously by the store once per successful
// insert, after the record is durable and its ID and ReceivedAt are known.
type Subscriber func(LogRecord)
