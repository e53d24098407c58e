package sessions

import (
	"fmt"
	"testing"
	"time"

	"github.com/zhanBoss/claude-pulse/internal/models"
)

func rec(ts time.Time, project, sessionID, prompt string) models.HistoryRecord {
	return models.HistoryRecord{
		Timestamp: ts,
		Project:   project,
		SessionID: sessionID,
		Prompt:    prompt,
	}
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestIngestGroupsBySessionID(t *testing.T) {
	agg := NewAggregator()

	agg.Ingest(rec(base, "/p/app", "s1", "first"))
	agg.Ingest(rec(base.Add(time.Minute), "/p/app", "s1", "second"))
	agg.Ingest(rec(base.Add(2*time.Minute), "/p/app", "s2", "other"))

	if agg.Len() != 2 {
		t.Fatalf("Len = %d, want 2", agg.Len())
	}

	sess, ok := agg.Get("s1")
	if !ok {
		t.Fatal("session s1 not found")
	}
	if len(sess.Records) != 2 {
		t.Errorf("s1 has %d records, want 2", len(sess.Records))
	}
	if sess.Records[0].Prompt != "first" || sess.Records[1].Prompt != "second" {
		t.Errorf("arrival order not preserved: %v", sess.Records)
	}
	if !sess.LatestTimestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("LatestTimestamp = %v, want %v", sess.LatestTimestamp, base.Add(time.Minute))
	}
}

func TestIngestSyntheticKeysForIDLessRecords(t *testing.T) {
	agg := NewAggregator()

	agg.Ingest(rec(base, "/p/app", "", "alone"))
	agg.Ingest(rec(base.Add(time.Second), "/p/app", "", "also alone"))

	if agg.Len() != 2 {
		t.Fatalf("Len = %d, want 2 distinct synthetic sessions", agg.Len())
	}

	key := KeyFor(rec(base, "/p/app", "", "alone"))
	want := "single-" + base.UTC().Format(time.RFC3339Nano)
	if key != want {
		t.Errorf("KeyFor = %q, want %q", key, want)
	}
	if _, ok := agg.Get(key); !ok {
		t.Errorf("synthetic session %q not found", key)
	}
}

// Id-less records with bit-identical timestamps share a synthetic key
// but remain distinct records when their prompts differ.
func TestIngestIdenticalTimestampSyntheticMerge(t *testing.T) {
	agg := NewAggregator()

	agg.Ingest(rec(base, "/p/app", "", "one"))
	agg.Ingest(rec(base, "/p/app", "", "two"))

	if agg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", agg.Len())
	}
	sess, _ := agg.Get(KeyFor(rec(base, "/p/app", "", "")))
	if len(sess.Records) != 2 {
		t.Errorf("merged session has %d records, want 2", len(sess.Records))
	}
}

func TestIngestDropsDuplicates(t *testing.T) {
	agg := NewAggregator()
	r := rec(base, "/p/app", "s1", "hello")

	if !agg.Ingest(r) {
		t.Fatal("first Ingest reported duplicate")
	}
	if agg.Ingest(r) {
		t.Fatal("second Ingest of identical record not dropped")
	}

	// Same tuple but different prompt is a distinct record.
	if !agg.Ingest(rec(base, "/p/app", "s1", "different")) {
		t.Fatal("distinct record wrongly dropped")
	}

	sess, _ := agg.Get("s1")
	if len(sess.Records) != 2 {
		t.Errorf("s1 has %d records, want 2", len(sess.Records))
	}
}

func TestListOrderedByLatestDescending(t *testing.T) {
	agg := NewAggregator()

	agg.Ingest(rec(base, "/p/app", "oldest", "x"))
	agg.Ingest(rec(base.Add(2*time.Hour), "/p/app", "newest", "x"))
	agg.Ingest(rec(base.Add(time.Hour), "/p/app", "middle", "x"))

	got := agg.List()
	if len(got) != 3 {
		t.Fatalf("List returned %d sessions, want 3", len(got))
	}
	for i, want := range []string{"newest", "middle", "oldest"} {
		if got[i].Key != want {
			t.Errorf("List[%d].Key = %q, want %q", i, got[i].Key, want)
		}
	}
}

func TestListTiesBreakOnKey(t *testing.T) {
	agg := NewAggregator()
	agg.Ingest(rec(base, "/p/app", "bbb", "x"))
	agg.Ingest(rec(base, "/p/app", "aaa", "y"))

	got := agg.List()
	if got[0].Key != "aaa" || got[1].Key != "bbb" {
		t.Errorf("tiebreak order = [%s %s], want [aaa bbb]", got[0].Key, got[1].Key)
	}
}

func TestListReturnsCopies(t *testing.T) {
	agg := NewAggregator()
	agg.Ingest(rec(base, "/p/app", "s1", "original"))

	got := agg.List()
	got[0].Records[0].Prompt = "mutated"

	again, _ := agg.Get("s1")
	if again.Records[0].Prompt != "original" {
		t.Error("mutation through List leaked into aggregator state")
	}
}

func TestListMetadataRecordCap(t *testing.T) {
	agg := NewAggregator()

	// Three sessions with 2 records each, newest first in the listing.
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		ts := base.Add(time.Duration(i) * time.Hour)
		agg.Ingest(rec(ts, "/p/app", id, "a"))
		agg.Ingest(rec(ts.Add(time.Minute), "/p/app", id, "b"))
	}

	got := agg.ListMetadata(5)
	if len(got) != 2 {
		t.Fatalf("ListMetadata(5) returned %d summaries, want 2", len(got))
	}
	if got[0].Key != "s2" || got[1].Key != "s1" {
		t.Errorf("summaries = [%s %s], want prefix [s2 s1]", got[0].Key, got[1].Key)
	}
	for _, s := range got {
		if s.RecordCount != 2 {
			t.Errorf("session %s RecordCount = %d, want 2", s.Key, s.RecordCount)
		}
	}

	all := agg.ListMetadata(0)
	if len(all) != 3 {
		t.Errorf("ListMetadata(0) returned %d summaries, want all 3", len(all))
	}
}

// A single oversized session must still yield its summary: the listing
// carries no record bodies, so an empty result would hide everything.
func TestListMetadataOversizedNewestSessionIncluded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 5; i++ {
		agg.Ingest(rec(base.Add(time.Duration(i)*time.Minute), "/p/app", "big", "x"+string(rune('a'+i))))
	}
	agg.Ingest(rec(base.Add(-time.Hour), "/p/app", "older", "y"))

	got := agg.ListMetadata(3)
	if len(got) != 1 {
		t.Fatalf("ListMetadata(3) returned %d summaries, want 1", len(got))
	}
	if got[0].Key != "big" || got[0].RecordCount != 5 {
		t.Errorf("summary = %+v, want the oversized newest session", got[0])
	}
}

func TestRemoveRecord(t *testing.T) {
	agg := NewAggregator()
	agg.Ingest(rec(base, "/p/app", "s1", "first"))
	agg.Ingest(rec(base.Add(time.Minute), "/p/app", "s1", "second"))

	if !agg.RemoveRecord("s1", base.Add(time.Minute)) {
		t.Fatal("RemoveRecord reported nothing removed")
	}

	sess, ok := agg.Get("s1")
	if !ok {
		t.Fatal("session lost with a record remaining")
	}
	if len(sess.Records) != 1 || sess.Records[0].Prompt != "first" {
		t.Errorf("records after removal = %v", sess.Records)
	}
	if !sess.LatestTimestamp.Equal(base) {
		t.Errorf("LatestTimestamp = %v, want recomputed %v", sess.LatestTimestamp, base)
	}

	if agg.RemoveRecord("s1", base.Add(time.Hour)) {
		t.Error("RemoveRecord of absent timestamp reported success")
	}
}

func TestRemoveRecordDropsEmptiedSession(t *testing.T) {
	agg := NewAggregator()
	agg.Ingest(rec(base, "/p/app", "s1", "only"))

	if !agg.RemoveRecord("s1", base) {
		t.Fatal("RemoveRecord reported nothing removed")
	}
	if _, ok := agg.Get("s1"); ok {
		t.Error("emptied session still listed")
	}
	if agg.Len() != 0 {
		t.Errorf("Len = %d, want 0", agg.Len())
	}
}

func TestRemoveRecordSyntheticSession(t *testing.T) {
	agg := NewAggregator()
	agg.Ingest(rec(base, "/p/app", "", "alone"))

	if !agg.RemoveRecord("", base) {
		t.Fatal("RemoveRecord on synthetic session reported nothing removed")
	}
	if agg.Len() != 0 {
		t.Errorf("Len = %d, want 0", agg.Len())
	}
}

// The prune predicate is file-granularity: a record on the cutoff's own
// calendar day survives, matching what the store sweep keeps on disk.
func TestPruneOlderThan(t *testing.T) {
	agg := NewAggregator()
	old := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	boundary := time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC)
	agg.Ingest(rec(old, "/p/app", "aged", "one"))
	agg.Ingest(rec(old.Add(time.Hour), "/p/app", "aged", "two"))
	agg.Ingest(rec(boundary, "/p/app", "s1", "kept"))

	cutoff := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	if dropped := agg.PruneOlderThan(cutoff); dropped != 2 {
		t.Errorf("dropped %d records, want 2", dropped)
	}

	if _, ok := agg.Get("aged"); ok {
		t.Error("fully aged session still listed")
	}
	sess, ok := agg.Get("s1")
	if !ok || len(sess.Records) != 1 {
		t.Fatalf("cutoff-day session lost: ok=%v", ok)
	}
}

func TestListMetadataTimestamps(t *testing.T) {
	agg := NewAggregator()
	agg.Ingest(rec(base.Add(time.Hour), "/p/app", "s1", "later"))
	agg.Ingest(rec(base, "/p/app", "s1", "earlier"))

	got := agg.ListMetadata(0)
	if len(got) != 1 {
		t.Fatalf("want 1 summary, got %d", len(got))
	}
	if !got[0].FirstTimestamp.Equal(base) {
		t.Errorf("FirstTimestamp = %v, want %v", got[0].FirstTimestamp, base)
	}
	if !got[0].LatestTimestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("LatestTimestamp = %v, want %v", got[0].LatestTimestamp, base.Add(time.Hour))
	}
}

// Rebuilding from disk then re-ingesting the same live records must not
// double-count: restart replays are absorbed by the dedupe.
func TestFromEntriesSeedsDedupe(t *testing.T) {
	r1 := rec(base, "/p/app", "s1", "persisted")
	r2 := rec(base.Add(time.Minute), "/p/app", "s1", "also persisted")

	agg := FromEntries([]models.LogEntry{
		models.NewLogEntry(r1),
		models.NewLogEntry(r2),
	})

	if agg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", agg.Len())
	}

	if agg.Ingest(r1) {
		t.Error("replayed record r1 not deduplicated after rebuild")
	}
	if agg.Ingest(r2) {
		t.Error("replayed record r2 not deduplicated after rebuild")
	}

	sess, _ := agg.Get("s1")
	if len(sess.Records) != 2 {
		t.Errorf("s1 has %d records, want 2", len(sess.Records))
	}
}

func TestFromEntriesSkipsUnparsableTimestamps(t *testing.T) {
	agg := FromEntries([]models.LogEntry{
		{Timestamp: "garbage", Project: "/p/app", Prompt: "x"},
		models.NewLogEntry(rec(base, "/p/app", "s1", "ok")),
	})
	if agg.Len() != 1 {
		t.Errorf("Len = %d, want 1", agg.Len())
	}
}
