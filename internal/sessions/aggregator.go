// Package sessions groups ingested history records into logical sessions
// and exposes the read views the UI boundary consumes.
package sessions

import (
	"sort"
	"sync"
	"time"

	"github.com/zhanBoss/claude-pulse/internal/models"
)

// Aggregator indexes history records by session key, preserving arrival
// order inside each session. Duplicate deliveries of the identical
// (sessionId, timestamp, project, prompt) tuple are dropped, which is
// what makes restart-induced re-reads of a partial tail range harmless.
type Aggregator struct {
	mu    sync.RWMutex
	byKey map[string]*models.Session
	seen  map[recordKey]struct{}
}

type recordKey struct {
	sessionID string
	timestamp int64
	project   string
	prompt    string
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byKey: make(map[string]*models.Session),
		seen:  make(map[recordKey]struct{}),
	}
}

// FromEntries rebuilds an aggregator from persisted log entries, in the
// order given. Entries with unparsable timestamps are skipped.
func FromEntries(entries []models.LogEntry) *Aggregator {
	agg := NewAggregator()
	for _, e := range entries {
		ts := e.Time()
		if ts.IsZero() {
			continue
		}
		agg.Ingest(models.HistoryRecord{
			Timestamp:      ts,
			Project:        e.Project,
			SessionID:      e.SessionID,
			Prompt:         e.Prompt,
			PastedContents: e.PastedContents,
		})
	}
	return agg
}

// KeyFor returns the session key for a record: its session id, or a
// synthetic single-record key derived from the timestamp when absent.
// Two id-less records only share a key if their timestamps are
// bit-identical.
func KeyFor(rec models.HistoryRecord) string {
	if rec.SessionID != "" {
		return rec.SessionID
	}
	return "single-" + rec.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Ingest appends rec to its session, creating the session on first
// sight. Returns false when the record is a duplicate and was dropped.
func (a *Aggregator) Ingest(rec models.HistoryRecord) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	rk := recordKey{
		sessionID: rec.SessionID,
		timestamp: rec.Timestamp.UnixNano(),
		project:   rec.Project,
		prompt:    rec.Prompt,
	}
	if _, dup := a.seen[rk]; dup {
		return false
	}
	a.seen[rk] = struct{}{}

	key := KeyFor(rec)
	sess, ok := a.byKey[key]
	if !ok {
		sess = &models.Session{
			Key:       key,
			SessionID: rec.SessionID,
			Project:   rec.Project,
		}
		a.byKey[key] = sess
	}
	sess.Records = append(sess.Records, rec)
	if rec.Timestamp.After(sess.LatestTimestamp) {
		sess.LatestTimestamp = rec.Timestamp
	}
	return true
}

// RemoveRecord drops the record matching (sessionID, timestamp) so the
// live view mirrors a single-entry delete in the backing store. The
// emptied session disappears from listings. Reports whether a record was
// removed.
func (a *Aggregator) RemoveRecord(sessionID string, ts time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := KeyFor(models.HistoryRecord{SessionID: sessionID, Timestamp: ts})
	sess, ok := a.byKey[key]
	if !ok {
		return false
	}

	removed := false
	var kept []models.HistoryRecord
	for _, rec := range sess.Records {
		if rec.SessionID == sessionID && rec.Timestamp.Equal(ts) {
			removed = true
			delete(a.seen, recordKey{
				sessionID: rec.SessionID,
				timestamp: rec.Timestamp.UnixNano(),
				project:   rec.Project,
				prompt:    rec.Prompt,
			})
			continue
		}
		kept = append(kept, rec)
	}
	if !removed {
		return false
	}
	if len(kept) == 0 {
		delete(a.byKey, key)
		return true
	}
	sess.Records = kept
	sess.LatestTimestamp = latestOf(kept)
	return true
}

// PruneOlderThan drops records whose UTC calendar day ends at or before
// cutoff, the same file-granularity predicate the retention sweep applies
// to the backing store. Returns the number of records dropped.
func (a *Aggregator) PruneOlderThan(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	dropped := 0
	for key, sess := range a.byKey {
		var kept []models.HistoryRecord
		for _, rec := range sess.Records {
			y, m, d := rec.Timestamp.UTC().Date()
			day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			if !day.AddDate(0, 0, 1).After(cutoff) {
				dropped++
				delete(a.seen, recordKey{
					sessionID: rec.SessionID,
					timestamp: rec.Timestamp.UnixNano(),
					project:   rec.Project,
					prompt:    rec.Prompt,
				})
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(a.byKey, key)
			continue
		}
		if len(kept) != len(sess.Records) {
			sess.Records = kept
			sess.LatestTimestamp = latestOf(kept)
		}
	}
	return dropped
}

func latestOf(records []models.HistoryRecord) time.Time {
	var latest time.Time
	for _, rec := range records {
		if rec.Timestamp.After(latest) {
			latest = rec.Timestamp
		}
	}
	return latest
}

// List returns all sessions sorted by latest timestamp descending. The
// returned sessions are copies; callers may not mutate aggregator state
// through them.
func (a *Aggregator) List() []models.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]models.Session, 0, len(a.byKey))
	for _, sess := range a.byKey {
		cp := *sess
		cp.Records = append([]models.HistoryRecord(nil), sess.Records...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LatestTimestamp.Equal(out[j].LatestTimestamp) {
			return out[i].LatestTimestamp.After(out[j].LatestTimestamp)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ListMetadata returns the metadata-only projection, most recent session
// first, stopping before the cumulative record count across summaries
// would exceed maxRecords (when maxRecords > 0). The result is a stable
// prefix of the full listing. The newest session is always included, even
// when it alone exceeds the cap: summaries carry no record bodies, and an
// empty listing would hide the data entirely.
func (a *Aggregator) ListMetadata(maxRecords int) []models.SessionSummary {
	all := a.List()

	var out []models.SessionSummary
	total := 0
	for _, sess := range all {
		if maxRecords > 0 && len(out) > 0 && total+len(sess.Records) > maxRecords {
			break
		}
		total += len(sess.Records)

		first := sess.LatestTimestamp
		for _, rec := range sess.Records {
			if rec.Timestamp.Before(first) {
				first = rec.Timestamp
			}
		}
		out = append(out, models.SessionSummary{
			Key:             sess.Key,
			SessionID:       sess.SessionID,
			Project:         sess.Project,
			RecordCount:     len(sess.Records),
			FirstTimestamp:  first,
			LatestTimestamp: sess.LatestTimestamp,
		})
	}
	return out
}

// Get returns a copy of the session with the given key.
func (a *Aggregator) Get(key string) (models.Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sess, ok := a.byKey[key]
	if !ok {
		return models.Session{}, false
	}
	cp := *sess
	cp.Records = append([]models.HistoryRecord(nil), sess.Records...)
	return cp, true
}

// Len reports the number of sessions.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byKey)
}
