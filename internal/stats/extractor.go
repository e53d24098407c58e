// Package stats derives per-session usage statistics from the rich
// transcript files Claude Code writes under ~/.claude/projects. The
// transcripts are read-only source of truth; statistics are recomputed
// wholesale on every request, never updated incrementally.
package stats

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhanBoss/claude-pulse/internal/models"
)

// Pricing holds per-token USD rates used when a transcript turn carries
// usage but no explicit cost.
type Pricing struct {
	InputPerToken         float64 `json:"inputPerToken"`
	OutputPerToken        float64 `json:"outputPerToken"`
	CacheCreationPerToken float64 `json:"cacheCreationPerToken"`
	CacheReadPerToken     float64 `json:"cacheReadPerToken"`
}

// DefaultPricing approximates current Sonnet-class per-token rates.
func DefaultPricing() Pricing {
	return Pricing{
		InputPerToken:         3e-6,
		OutputPerToken:        15e-6,
		CacheCreationPerToken: 3.75e-6,
		CacheReadPerToken:     0.3e-6,
	}
}

// Extractor computes SessionMetadata from transcript files.
type Extractor struct {
	projectsDir string
	pricing     Pricing
}

// NewExtractor returns an extractor rooted at projectsDir
// (conventionally ~/.claude/projects).
func NewExtractor(projectsDir string, pricing Pricing) *Extractor {
	return &Extractor{projectsDir: projectsDir, pricing: pricing}
}

// TranscriptPath returns the expected transcript file for a session.
func (x *Extractor) TranscriptPath(project, sessionID string) string {
	return filepath.Join(x.projectsDir, mungeProjectPath(project), sessionID+".jsonl")
}

// mungeProjectPath reproduces the directory naming Claude Code uses for
// per-project transcript folders: every non-alphanumeric rune becomes a
// dash, so "/home/u/app" maps to "-home-u-app".
func mungeProjectPath(project string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, project)
}

type envelope struct {
	Type          string          `json:"type"`
	IsMeta        bool            `json:"isMeta"`
	Timestamp     string          `json:"timestamp"`
	Message       json.RawMessage `json:"message"`
	CostUSD       float64         `json:"costUSD"`
	ToolUseResult json.RawMessage `json:"toolUseResult"`
}

type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Usage   *usageBlock     `json:"usage"`
}

type usageBlock struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

type contentBlock struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	ToolUseID string `json:"tool_use_id"`
	IsError   bool   `json:"is_error"`
}

type toolUseResult struct {
	DurationMs float64 `json:"durationMs"`
}

// Extract computes the statistics summary for one session. A missing or
// unparsable transcript yields zeroed statistics, never an error:
// absence of detailed stats must not block session listing.
func (x *Extractor) Extract(project, sessionID string) models.SessionMetadata {
	meta := models.SessionMetadata{
		SessionID: sessionID,
		Project:   project,
	}

	f, err := os.Open(x.TranscriptPath(project, sessionID))
	if err != nil {
		return meta
	}
	defer f.Close()

	acc := newAccumulator(x.pricing)
	reader := bufio.NewReaderSize(f, 256*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			acc.addLine(bytes.TrimSpace(line))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			// Oversized or unreadable tail; keep what accumulated so far.
			break
		}
	}

	acc.fill(&meta)
	return meta
}

// accumulator is the running tool-invocation ledger plus token and cost
// totals for a single transcript pass.
type accumulator struct {
	pricing Pricing

	first time.Time
	last  time.Time

	messages    int
	totalTokens int64
	totalCost   float64

	toolUse    map[string]int
	toolErrors map[string]int
	durSum     map[string]float64
	durCount   map[string]int

	// tool_use id → tool name, so results and durations attribute to
	// the right ledger row.
	pendingTools map[string]string
}

func newAccumulator(pricing Pricing) *accumulator {
	return &accumulator{
		pricing:      pricing,
		toolUse:      make(map[string]int),
		toolErrors:   make(map[string]int),
		durSum:       make(map[string]float64),
		durCount:     make(map[string]int),
		pendingTools: make(map[string]string),
	}
}

func (a *accumulator) addLine(line []byte) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return
	}
	if env.IsMeta {
		return
	}
	if env.Type != "user" && env.Type != "assistant" {
		return
	}

	if ts := parseTime(env.Timestamp); !ts.IsZero() {
		if a.first.IsZero() || ts.Before(a.first) {
			a.first = ts
		}
		if ts.After(a.last) {
			a.last = ts
		}
	}

	var msg transcriptMessage
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return
	}
	a.messages++

	if msg.Usage != nil {
		u := msg.Usage
		a.totalTokens += u.InputTokens + u.OutputTokens +
			u.CacheCreationInputTokens + u.CacheReadInputTokens
		if env.CostUSD > 0 {
			a.totalCost += env.CostUSD
		} else {
			a.totalCost += float64(u.InputTokens)*a.pricing.InputPerToken +
				float64(u.OutputTokens)*a.pricing.OutputPerToken +
				float64(u.CacheCreationInputTokens)*a.pricing.CacheCreationPerToken +
				float64(u.CacheReadInputTokens)*a.pricing.CacheReadPerToken
		}
	} else if env.CostUSD > 0 {
		a.totalCost += env.CostUSD
	}

	var blocks []contentBlock
	if json.Unmarshal(msg.Content, &blocks) != nil {
		return
	}
	for _, b := range blocks {
		switch b.Type {
		case "tool_use":
			name := b.Name
			if name == "" {
				name = "unknown"
			}
			a.toolUse[name]++
			if b.ID != "" {
				a.pendingTools[b.ID] = name
			}
		case "tool_result":
			name := a.pendingTools[b.ToolUseID]
			if name == "" {
				name = "unknown"
			}
			if b.IsError {
				a.toolErrors[name]++
			}
			var result toolUseResult
			if len(env.ToolUseResult) > 0 && json.Unmarshal(env.ToolUseResult, &result) == nil && result.DurationMs > 0 {
				a.durSum[name] += result.DurationMs
				a.durCount[name]++
			}
		}
	}
}

func (a *accumulator) fill(meta *models.SessionMetadata) {
	meta.FirstTimestamp = a.first
	meta.LastTimestamp = a.last
	meta.MessageCount = a.messages
	meta.TotalTokens = a.totalTokens
	meta.TotalCostUSD = a.totalCost

	for _, n := range a.toolUse {
		meta.ToolUseCount += n
	}
	meta.HasToolUse = meta.ToolUseCount > 0
	if len(a.toolUse) > 0 {
		meta.ToolUsage = a.toolUse
	}
	if len(a.toolErrors) > 0 {
		meta.ToolErrors = a.toolErrors
		meta.HasErrors = true
	}

	// Tools with zero completed invocations are omitted rather than
	// reported as zero.
	avg := make(map[string]float64)
	for name, count := range a.durCount {
		if count > 0 {
			avg[name] = a.durSum[name] / float64(count)
		}
	}
	if len(avg) > 0 {
		meta.ToolAvgMillis = avg
	}
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}
