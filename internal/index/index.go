// Package index maintains a SQLite full-text index over normalized
// prompt entries. It backs the search command only: the ingestion core
// never depends on it, and index write failures are absorbed by the
// caller so a broken index cannot stall the pipeline.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zhanBoss/claude-pulse/internal/models"
)

// Index is a searchable mirror of the normalized log.
type Index struct {
	db   *sql.DB
	path string
}

// Result is one search hit.
type Result struct {
	Entry   models.LogEntry `json:"entry"`
	Snippet string          `json:"snippet"`
	Score   float64         `json:"score"`
}

// Open creates or opens the index database at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ix := &Index{db: db, path: path}
	if err := ix.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Index) initialize() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := ix.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set %s: %w", pragma, err)
		}
	}

	queries := []string{
		queryCreateEntriesTable,
		queryCreateEntriesFTS,
		queryCreateIndexEntriesSession,
		queryCreateIndexEntriesTimestamp,
		queryCreateEntriesInsertTrigger,
		queryCreateEntriesDeleteTrigger,
	}
	for _, query := range queries {
		if _, err := ix.db.Exec(query); err != nil {
			return fmt.Errorf("failed to initialize index schema: %w", err)
		}
	}
	return nil
}

// Add indexes one entry. Re-adding an identical entry is a no-op, which
// keeps the index idempotent under the same duplicate deliveries the
// aggregator tolerates.
func (ix *Index) Add(entry models.LogEntry) error {
	_, err := ix.db.Exec(queryInsertEntry,
		entry.SessionID, entry.Project, entry.Timestamp, entry.Prompt)
	if err != nil {
		return fmt.Errorf("failed to index entry: %w", err)
	}
	return nil
}

// Search runs a full-text query over prompts, best matches first.
func (ix *Index) Search(query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := ix.db.Query(querySearchEntries, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var sessionID sql.NullString
		if err := rows.Scan(&sessionID, &r.Entry.Project, &r.Entry.Timestamp,
			&r.Entry.Prompt, &r.Snippet, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Entry.SessionID = sessionID.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// Prune drops indexed entries older than cutoff, mirroring the retention
// sweep over the log files.
func (ix *Index) Prune(cutoff time.Time) error {
	_, err := ix.db.Exec(queryDeleteOlderThan, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to prune index: %w", err)
	}
	return nil
}

// Remove drops the single indexed entry matching (sessionID, timestamp).
func (ix *Index) Remove(sessionID, timestamp string) error {
	_, err := ix.db.Exec(queryDeleteEntry, sessionID, timestamp)
	if err != nil {
		return fmt.Errorf("failed to remove entry from index: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}
