// Package monitor wires the ingestion pipeline together: the tailer
// streams new history lines, the parser validates them, the aggregator
// indexes them, the log store persists them, and the event bus tells the
// UI boundary. It also owns the retention scheduler's lifecycle.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/zhanBoss/claude-pulse/internal/config"
	"github.com/zhanBoss/claude-pulse/internal/events"
	"github.com/zhanBoss/claude-pulse/internal/history"
	"github.com/zhanBoss/claude-pulse/internal/index"
	"github.com/zhanBoss/claude-pulse/internal/logstore"
	"github.com/zhanBoss/claude-pulse/internal/models"
	"github.com/zhanBoss/claude-pulse/internal/retention"
	"github.com/zhanBoss/claude-pulse/internal/sessions"
	"github.com/zhanBoss/claude-pulse/internal/stats"
	"github.com/zhanBoss/claude-pulse/internal/tailer"
)

// Metrics is a snapshot of the pipeline counters. Absorbed errors are
// counted here instead of being surfaced as failures.
type Metrics struct {
	LinesSeen      int64     `json:"lines_seen"`
	RecordsStored  int64     `json:"records_stored"`
	ParseFailures  int64     `json:"parse_failures"`
	Duplicates     int64     `json:"duplicates"`
	IndexFailures  int64     `json:"index_failures"`
	AppendFailures int64     `json:"append_failures"`
	StartTime      time.Time `json:"start_time"`
	LastRecordTime time.Time `json:"last_record_time"`
}

type metrics struct {
	mu sync.Mutex
	Metrics
}

func (m *metrics) snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Metrics
}

// Monitor is the long-running ingestion daemon.
type Monitor struct {
	cfg *config.Config

	tailer    *tailer.Tailer
	tail      *tailer.Tail
	agg       *sessions.Aggregator
	store     *logstore.Store
	idx       *index.Index
	scheduler *retention.Scheduler
	extractor *stats.Extractor
	bus       *events.Bus
	metrics   *metrics

	lock       *flock.Flock
	statusFile string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a monitor from configuration. The aggregator is seeded from
// the persisted log so duplicate deliveries after a restart are
// recognized and dropped.
func New(cfg *config.Config) (*Monitor, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	store, err := logstore.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	existing, err := store.ReadAll(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read persisted log: %w", err)
	}

	idx, err := index.Open(cfg.IndexPath)
	if err != nil {
		// The search index is auxiliary; run without it.
		fmt.Fprintf(os.Stderr, "Search index unavailable: %v\n", err)
		idx = nil
	}

	tl, err := tailer.New(0)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())

	m := &Monitor{
		cfg:        cfg,
		tailer:     tl,
		agg:        sessions.FromEntries(existing),
		store:      store,
		idx:        idx,
		extractor:  stats.NewExtractor(cfg.ProjectsDir, cfg.Pricing),
		bus:        bus,
		metrics:    &metrics{Metrics: Metrics{StartTime: time.Now()}},
		lock:       flock.New(filepath.Join(filepath.Dir(cfg.DataDir), "monitor.lock")),
		statusFile: filepath.Join(filepath.Dir(cfg.DataDir), "monitor.status"),
		ctx:        ctx,
		cancel:     cancel,
	}
	m.scheduler = retention.NewScheduler(&pruningDeleter{m: m}, bus, nil)
	return m, nil
}

// pruningDeleter deletes from the log store and keeps the live session
// view and search index in step. Index failures are absorbed and counted.
type pruningDeleter struct {
	m *Monitor
}

func (d *pruningDeleter) DeleteOlderThan(cutoff time.Time) (int, error) {
	deleted, err := d.m.store.DeleteOlderThan(cutoff)
	d.m.agg.PruneOlderThan(cutoff)
	if d.m.idx != nil {
		if perr := d.m.idx.Prune(cutoff); perr != nil {
			d.m.metrics.mu.Lock()
			d.m.metrics.IndexFailures++
			d.m.metrics.mu.Unlock()
		}
	}
	return deleted, err
}

// Bus returns the UI boundary event bus.
func (m *Monitor) Bus() *events.Bus { return m.bus }

// Aggregator returns the live session view.
func (m *Monitor) Aggregator() *sessions.Aggregator { return m.agg }

// Store returns the persistence sink.
func (m *Monitor) Store() *logstore.Store { return m.store }

// Scheduler returns the retention scheduler.
func (m *Monitor) Scheduler() *retention.Scheduler { return m.scheduler }

// Extractor returns the statistics extractor.
func (m *Monitor) Extractor() *stats.Extractor { return m.extractor }

// Index returns the search index, or nil when it failed to open.
func (m *Monitor) Index() *index.Index { return m.idx }

// Config returns the active configuration.
func (m *Monitor) Config() *config.Config { return m.cfg }

// MetricsSnapshot returns a copy of the pipeline counters.
func (m *Monitor) MetricsSnapshot() Metrics { return m.metrics.snapshot() }

// Start acquires the single-instance lock, attaches the tailer, and arms
// retention if configured.
func (m *Monitor) Start() error {
	if err := os.MkdirAll(filepath.Dir(m.lock.Path()), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	locked, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire monitor lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("monitor already running (lock held: %s)", m.lock.Path())
	}

	tail, err := m.tailer.Attach(m.cfg.HistoryPath, m.handleLine)
	if err != nil {
		m.lock.Unlock()
		return fmt.Errorf("failed to attach to history file: %w", err)
	}
	m.tail = tail
	m.tailer.Start()

	if m.cfg.Retention.Enabled {
		if err := m.scheduler.Enable(m.cfg.Retention.IntervalMs, m.cfg.Retention.RetainMs); err != nil {
			fmt.Fprintf(os.Stderr, "Retention not armed: %v\n", err)
		}
	}

	m.wg.Add(1)
	go m.writeStatusLoop()

	return nil
}

// Stop shuts the pipeline down in reverse order of Start.
func (m *Monitor) Stop() error {
	m.cancel()

	if m.tail != nil {
		m.tailer.Detach(m.tail)
	}
	if err := m.tailer.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping tailer: %v\n", err)
	}
	m.scheduler.Close()
	m.wg.Wait()

	if m.idx != nil {
		m.idx.Close()
	}
	os.Remove(m.statusFile)
	return m.lock.Unlock()
}

// Run starts the monitor and blocks until interrupted.
func (m *Monitor) Run() error {
	if err := m.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-m.ctx.Done():
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down...\n", sig)
	}

	return m.Stop()
}

// handleLine is the per-line pipeline: parse, de-duplicate, persist,
// index, notify. Parse failures and duplicates are counted and skipped;
// nothing here stops the stream.
func (m *Monitor) handleLine(line []byte) {
	m.metrics.mu.Lock()
	m.metrics.LinesSeen++
	m.metrics.mu.Unlock()

	rec, err := history.ParseLine(line)
	if err != nil {
		m.metrics.mu.Lock()
		m.metrics.ParseFailures++
		m.metrics.mu.Unlock()
		return
	}

	if !m.agg.Ingest(rec) {
		m.metrics.mu.Lock()
		m.metrics.Duplicates++
		m.metrics.mu.Unlock()
		return
	}

	entry := models.NewLogEntry(rec)
	if err := m.store.Append(entry); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to persist record: %v\n", err)
		m.metrics.mu.Lock()
		m.metrics.AppendFailures++
		m.metrics.mu.Unlock()
		// An unpersisted record is not stored and not announced.
		return
	}

	if m.idx != nil {
		if err := m.idx.Add(entry); err != nil {
			m.metrics.mu.Lock()
			m.metrics.IndexFailures++
			m.metrics.mu.Unlock()
		}
	}

	m.metrics.mu.Lock()
	m.metrics.RecordsStored++
	m.metrics.LastRecordTime = time.Now()
	m.metrics.mu.Unlock()

	m.bus.Emit(events.NewRecord, entry)
}

// DeleteRecord removes one persisted record along with its live-view and
// index rows, and is the request-boundary implementation of
// delete-one-record.
func (m *Monitor) DeleteRecord(sessionID, timestamp string) error {
	if err := m.store.DeleteEntry(sessionID, timestamp); err != nil {
		return err
	}
	if ts, perr := time.Parse(time.RFC3339Nano, timestamp); perr == nil {
		m.agg.RemoveRecord(sessionID, ts)
	}
	if m.idx != nil {
		if err := m.idx.Remove(sessionID, timestamp); err != nil {
			m.metrics.mu.Lock()
			m.metrics.IndexFailures++
			m.metrics.mu.Unlock()
		}
	}
	return nil
}

// EnableRetention validates and applies new retention parameters, and
// persists them so they survive restarts.
func (m *Monitor) EnableRetention(intervalMs, retainMs int64) error {
	if err := m.scheduler.Enable(intervalMs, retainMs); err != nil {
		return err
	}
	m.cfg.Retention = config.Retention{Enabled: true, IntervalMs: intervalMs, RetainMs: retainMs}
	m.saveConfig()
	return nil
}

// DisableRetention stops the cleanup timer and persists the change.
func (m *Monitor) DisableRetention() {
	m.scheduler.Disable()
	m.cfg.Retention.Enabled = false
	m.saveConfig()
}

func (m *Monitor) saveConfig() {
	path, err := config.DefaultPath()
	if err != nil {
		return
	}
	if err := m.cfg.Save(path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save config: %v\n", err)
	}
}

func (m *Monitor) writeStatusLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.writeStatusFile()
		}
	}
}

func (m *Monitor) writeStatusFile() {
	status := struct {
		PID       int                   `json:"pid"`
		Status    string                `json:"status"`
		Metrics   Metrics               `json:"metrics"`
		Sessions  int                   `json:"sessions"`
		Retention models.RetentionState `json:"retention"`
		UpdatedAt time.Time             `json:"updated_at"`
	}{
		PID:       os.Getpid(),
		Status:    "running",
		Metrics:   m.metrics.snapshot(),
		Sessions:  m.agg.Len(),
		Retention: m.scheduler.State(),
		UpdatedAt: time.Now(),
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return
	}
	tmp := m.statusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return
	}
	os.Rename(tmp, m.statusFile)
}
