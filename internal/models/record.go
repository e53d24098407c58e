package models

import (
	"encoding/json"
	"time"
)

// HistoryRecord is one parsed line of the watched history file.
type HistoryRecord struct {
	Timestamp      time.Time                  `json:"timestamp"`
	Project        string                     `json:"project"`
	SessionID      string                     `json:"sessionId,omitempty"`
	Prompt         string                     `json:"prompt"`
	PastedContents map[string]json.RawMessage `json:"pastedContents,omitempty"`
}

// LogEntry is the durable on-disk shape written to the normalized log.
// One file per (project basename, calendar date), append-only JSONL.
type LogEntry struct {
	Timestamp      string                     `json:"timestamp"`
	Project        string                     `json:"project"`
	SessionID      string                     `json:"sessionId,omitempty"`
	Prompt         string                     `json:"prompt"`
	PastedContents map[string]json.RawMessage `json:"pastedContents,omitempty"`
}

// NewLogEntry normalizes a history record into its durable form.
func NewLogEntry(rec HistoryRecord) LogEntry {
	return LogEntry{
		Timestamp:      rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Project:        rec.Project,
		SessionID:      rec.SessionID,
		Prompt:         rec.Prompt,
		PastedContents: rec.PastedContents,
	}
}

// Time parses the entry timestamp back into a time.Time. Entries written
// by this process always round-trip; a zero time means a foreign writer
// produced something unparsable.
func (e LogEntry) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Session is a derived in-memory grouping of records sharing a session key.
type Session struct {
	Key             string          `json:"key"`
	SessionID       string          `json:"sessionId,omitempty"`
	Project         string          `json:"project"`
	Records         []HistoryRecord `json:"records"`
	LatestTimestamp time.Time       `json:"latestTimestamp"`
}

// SessionSummary is the metadata-only projection of a session, safe to
// ship in bulk across the UI boundary (no prompt bodies).
type SessionSummary struct {
	Key             string    `json:"key"`
	SessionID       string    `json:"sessionId,omitempty"`
	Project         string    `json:"project"`
	RecordCount     int       `json:"recordCount"`
	FirstTimestamp  time.Time `json:"firstTimestamp"`
	LatestTimestamp time.Time `json:"latestTimestamp"`
}

// SessionMetadata is the statistics summary derived from a per-session
// transcript. Recomputed wholesale on each request, never mutated.
type SessionMetadata struct {
	SessionID      string             `json:"sessionId"`
	Project        string             `json:"project"`
	FirstTimestamp time.Time          `json:"firstTimestamp"`
	LastTimestamp  time.Time          `json:"lastTimestamp"`
	MessageCount   int                `json:"messageCount"`
	TotalTokens    int64              `json:"total_tokens"`
	TotalCostUSD   float64            `json:"total_cost_usd"`
	HasToolUse     bool               `json:"has_tool_use"`
	HasErrors      bool               `json:"has_errors"`
	ToolUseCount   int                `json:"tool_use_count"`
	ToolUsage      map[string]int     `json:"tool_usage,omitempty"`
	ToolErrors     map[string]int     `json:"tool_errors,omitempty"`
	ToolAvgMillis  map[string]float64 `json:"tool_avg_duration,omitempty"`
}

// RetentionState describes the cleanup scheduler as reported to the UI.
type RetentionState struct {
	Enabled         bool      `json:"enabled"`
	IntervalMs      int64     `json:"intervalMs"`
	RetainMs        int64     `json:"retainMs"`
	LastCleanupTime time.Time `json:"lastCleanupTime,omitzero"`
	NextCleanupTime time.Time `json:"nextCleanupTime,omitzero"`
}
