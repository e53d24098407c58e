// Package retention runs the periodic cleanup of aged normalized log
// data. The scheduler is an explicit state machine (disabled → armed →
// running → armed) driven by an injectable clock so tests advance
// simulated time instead of sleeping.
package retention

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zhanBoss/claude-pulse/internal/events"
	"github.com/zhanBoss/claude-pulse/internal/models"
)

// ErrCleanupRunning is returned when a trigger overlaps an in-flight
// cleanup; overlapping runs are rejected, not queued.
var ErrCleanupRunning = errors.New("cleanup already running")

// tickInterval is the countdown granularity reported to the UI.
const tickInterval = time.Second

// Clock abstracts wall-clock access for deterministic tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }

// Deleter removes persisted entries older than a cutoff and reports how
// many were removed. Partial success is allowed: the count covers what
// succeeded even when err is non-nil.
type Deleter interface {
	DeleteOlderThan(cutoff time.Time) (int, error)
}

// Emitter receives scheduler events. *events.Bus satisfies it.
type Emitter interface {
	Emit(name string, payload any)
}

// TickPayload accompanies auto-cleanup-tick events.
type TickPayload struct {
	NextCleanupTime time.Time `json:"nextCleanupTime"`
	RemainingMs     int64     `json:"remainingMs"`
}

// ExecutedPayload accompanies auto-cleanup-executed events.
type ExecutedPayload struct {
	DeletedCount    int       `json:"deletedCount"`
	NextCleanupTime time.Time `json:"nextCleanupTime"`
}

// ErrorPayload accompanies auto-cleanup-error events.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Scheduler owns the retention timer loop. All transitions happen under
// one mutex; the generation counter makes cancellation immediate: a loop
// belonging to a stale generation exits without side effects even if its
// timer already fired.
type Scheduler struct {
	clock   Clock
	deleter Deleter
	bus     Emitter

	mu      sync.Mutex
	state   models.RetentionState
	gen     int
	running bool

	wg sync.WaitGroup
}

// NewScheduler creates a disabled scheduler. A nil clock selects the
// system clock.
func NewScheduler(deleter Deleter, bus Emitter, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		clock:   clock,
		deleter: deleter,
		bus:     bus,
	}
}

// State returns a snapshot of the current retention state.
func (s *Scheduler) State() models.RetentionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enable arms the scheduler with new parameters, cancelling any existing
// timer first. Invalid parameters are rejected and leave the current
// state untouched.
func (s *Scheduler) Enable(intervalMs, retainMs int64) error {
	if intervalMs <= 0 {
		return fmt.Errorf("invalid retention interval: %dms", intervalMs)
	}
	if retainMs <= 0 {
		return fmt.Errorf("invalid retention window: %dms", retainMs)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state.Enabled = true
	s.state.IntervalMs = intervalMs
	s.state.RetainMs = retainMs
	s.state.NextCleanupTime = s.clock.Now().Add(time.Duration(intervalMs) * time.Millisecond)
	state := s.state
	s.mu.Unlock()

	s.bus.Emit(events.CleanupConfigUpdated, state)

	s.wg.Add(1)
	go s.run(gen)
	return nil
}

// Disable cancels the timer. No tick or cleanup for the cancelled arm
// fires after Disable returns a state snapshot.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	s.gen++
	s.state.Enabled = false
	s.state.NextCleanupTime = time.Time{}
	state := s.state
	s.mu.Unlock()

	s.bus.Emit(events.CleanupConfigUpdated, state)
}

// Close cancels the timer without emitting a config change and waits for
// the loop to exit. Used on daemon shutdown.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.wg.Wait()
}

// run is the armed loop for one generation. Each second it either fires
// a cleanup (interval elapsed) or reports the remaining countdown.
func (s *Scheduler) run(gen int) {
	defer s.wg.Done()

	for {
		<-s.clock.After(tickInterval)

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		now := s.clock.Now()
		next := s.state.NextCleanupTime
		s.mu.Unlock()

		if now.Before(next) {
			remaining := next.Sub(now).Milliseconds()
			if remaining < 0 {
				remaining = 0
			}
			s.bus.Emit(events.CleanupTick, TickPayload{
				NextCleanupTime: next,
				RemainingMs:     remaining,
			})
			continue
		}

		// Errors are emitted inside runCleanup; the loop keeps going
		// either way, so one failed pass never stops future attempts.
		s.runCleanup(gen)
	}
}

// TriggerCleanup runs a cleanup immediately, outside the timer schedule.
// It requires a configured retention window and rejects overlap with an
// in-flight run.
func (s *Scheduler) TriggerCleanup() error {
	s.mu.Lock()
	retain := s.state.RetainMs
	gen := s.gen
	s.mu.Unlock()

	if retain <= 0 {
		return fmt.Errorf("retention window not configured")
	}
	return s.runCleanup(gen)
}

// runCleanup performs one cleanup pass and re-arms. A failed delete is
// reported but never leaves the scheduler dead: nextCleanupTime is
// always recomputed from "now" (drift-corrected, no catch-up bursts
// after system sleep).
func (s *Scheduler) runCleanup(gen int) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	if s.running {
		s.mu.Unlock()
		return ErrCleanupRunning
	}
	s.running = true
	retain := time.Duration(s.state.RetainMs) * time.Millisecond
	s.mu.Unlock()

	cutoff := s.clock.Now().Add(-retain)
	deleted, err := s.deleter.DeleteOlderThan(cutoff)

	s.mu.Lock()
	s.running = false
	now := s.clock.Now()
	s.state.LastCleanupTime = now
	if s.state.Enabled {
		s.state.NextCleanupTime = now.Add(time.Duration(s.state.IntervalMs) * time.Millisecond)
	}
	next := s.state.NextCleanupTime
	s.mu.Unlock()

	if err != nil {
		s.bus.Emit(events.CleanupError, ErrorPayload{Error: err.Error()})
		return err
	}
	s.bus.Emit(events.CleanupExecuted, ExecutedPayload{
		DeletedCount:    deleted,
		NextCleanupTime: next,
	})
	return nil
}
