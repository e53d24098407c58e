// Package history parses lines of the Claude history stream
// (~/.claude/history.jsonl): one JSON object per line with a prompt, a
// project path, an optional session id, and a timestamp that may be epoch
// milliseconds or an ISO-8601 string depending on the writer's version.
package history

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zhanBoss/claude-pulse/internal/models"
)

// ParseError reports a line that could not be turned into a usable
// record. It is skip-and-continue by contract: one corrupt line must not
// stop ingestion of the lines after it.
type ParseError struct {
	Reason string
	Line   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable history line: %s", e.Reason)
}

type rawEntry struct {
	Display        string                     `json:"display"`
	Prompt         string                     `json:"prompt"`
	Project        string                     `json:"project"`
	SessionID      string                     `json:"sessionId"`
	Timestamp      json.RawMessage            `json:"timestamp"`
	PastedContents map[string]json.RawMessage `json:"pastedContents"`
}

// ParseLine decodes one history line. It fails when the line is not valid
// JSON, the timestamp does not resolve to an instant, or the project is
// empty. All failures are *ParseError.
func ParseLine(line []byte) (models.HistoryRecord, error) {
	var entry rawEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return models.HistoryRecord{}, &ParseError{Reason: "invalid JSON", Line: string(line)}
	}

	ts := parseTimestamp(entry.Timestamp)
	if ts.IsZero() {
		return models.HistoryRecord{}, &ParseError{Reason: "missing or invalid timestamp", Line: string(line)}
	}

	project := strings.TrimSpace(entry.Project)
	if project == "" {
		return models.HistoryRecord{}, &ParseError{Reason: "empty project", Line: string(line)}
	}

	prompt := entry.Display
	if prompt == "" {
		prompt = entry.Prompt
	}

	return models.HistoryRecord{
		Timestamp:      ts,
		Project:        project,
		SessionID:      strings.TrimSpace(entry.SessionID),
		Prompt:         prompt,
		PastedContents: entry.PastedContents,
	}, nil
}

// parseTimestamp accepts epoch milliseconds (number or numeric string)
// and RFC3339 variants. The zero time signals failure.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if ms, err := num.Int64(); err == nil {
			return time.UnixMilli(ms)
		}
		if f, err := num.Float64(); err == nil {
			return time.UnixMilli(int64(f))
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}
