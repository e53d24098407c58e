// Package logstore persists normalized history records as per-project,
// per-day JSONL files. Files are append-only and never exclusively
// locked, so independent processes can read them while a monitor writes.
package logstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zhanBoss/claude-pulse/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const fileExt = ".jsonl"

// Store manages the normalized log file set. All mutation goes through a
// single mutex, which is the serialization point between the ingestion
// path appending and the retention path deleting.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// NewStore creates the base directory if needed and returns a store over it.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// BaseDir returns the directory holding the log files.
func (s *Store) BaseDir() string { return s.baseDir }

// Append writes entry to the file determined by its project basename and
// calendar date. Entries for the same pair always land in the same file,
// in arrival order.
func (s *Store) Append(entry models.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, fileNameFor(entry.Project, entry.Time()))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// ReadAll returns entries from every log file in stable (sorted filename)
// order, at most limit entries when limit > 0. Malformed lines are
// skipped; foreign writers share these files.
func (s *Store) ReadAll(limit int) ([]models.LogEntry, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}

	var entries []models.LogEntry
	for _, path := range files {
		if limit > 0 && len(entries) >= limit {
			break
		}
		fileEntries, err := readEntries(path)
		if err != nil {
			return nil, err
		}
		for _, e := range fileEntries {
			if limit > 0 && len(entries) >= limit {
				break
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// ReadSession returns every persisted entry carrying the given session id,
// in stable file order.
func (s *Store) ReadSession(sessionID string) ([]models.LogEntry, error) {
	if sessionID == "" {
		return nil, nil
	}
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}

	var entries []models.LogEntry
	for _, path := range files {
		fileEntries, err := readEntries(path)
		if err != nil {
			return nil, err
		}
		for _, e := range fileEntries {
			if e.SessionID == sessionID {
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

// DeleteOlderThan removes whole files whose calendar date guarantees that
// every entry inside predates cutoff, and reports how many entries were
// removed. Partial failures do not abort the sweep: the count reflects
// what succeeded and the first error is returned alongside it.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listFilesLocked()
	if err != nil {
		return 0, err
	}

	deleted := 0
	var firstErr error
	for _, path := range files {
		day, ok := fileDate(path)
		if !ok {
			continue
		}
		// The file's day must end before the cutoff; a file covering the
		// cutoff day may still hold entries inside the retention window.
		if !day.AddDate(0, 0, 1).After(cutoff) {
			n := countLines(path)
			if err := os.Remove(path); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err)
				}
				continue
			}
			deleted += n
		}
	}
	return deleted, firstErr
}

// DeleteEntry removes the single entry matching (sessionID, timestamp).
// This is the one exception to append-only files: an explicit user
// action, implemented as a filtered rewrite to a temp file followed by a
// rename so concurrent readers never observe a half-written file.
func (s *Store) DeleteEntry(sessionID, timestamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listFilesLocked()
	if err != nil {
		return err
	}

	for _, path := range files {
		removed, err := rewriteWithout(path, func(e models.LogEntry) bool {
			return e.SessionID == sessionID && e.Timestamp == timestamp
		})
		if err != nil {
			return err
		}
		if removed {
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) listFiles() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listFilesLocked()
}

func (s *Store) listFilesLocked() ([]string, error) {
	pattern := filepath.Join(s.baseDir, "*"+fileExt)
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// fileNameFor derives the log file name from the project path and entry
// time. The name is fully determined by (project basename, day).
func fileNameFor(project string, t time.Time) string {
	base := filepath.Base(strings.TrimRight(project, "/"))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "unknown"
	}
	base = sanitize(base)

	day := t
	if day.IsZero() {
		day = time.Now()
	}
	return fmt.Sprintf("%s_%s%s", base, day.UTC().Format("2006-01-02"), fileExt)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '-'
		}
		return r
	}, name)
}

// fileDate recovers the calendar date embedded in a log file name.
func fileDate(path string) (time.Time, bool) {
	name := strings.TrimSuffix(filepath.Base(path), fileExt)
	i := strings.LastIndex(name, "_")
	if i < 0 {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", name[i+1:])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func readEntries(path string) ([]models.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var entries []models.LogEntry
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var entry models.LogEntry
			if json.Unmarshal(line, &entry) == nil {
				entries = append(entries, entry)
			}
		}
		if err == io.EOF {
			break
		}
	}
	return entries, nil
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			count++
		}
		if err != nil {
			break
		}
	}
	return count
}

// rewriteWithout copies path to a temp file, dropping lines that match,
// then renames over the original. Reports whether anything was dropped.
func rewriteWithout(path string, match func(models.LogEntry) bool) (bool, error) {
	entries, err := readEntries(path)
	if err != nil {
		return false, err
	}

	var kept []models.LogEntry
	removed := false
	for _, e := range entries {
		if match(e) {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return false, nil
	}

	if len(kept) == 0 {
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err)
		}
		return true, nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range kept {
		data, err := json.Marshal(e)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return false, fmt.Errorf("failed to marshal entry: %w", err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return false, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
