package tailer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LineHandler receives one complete line from a tailed file. Lines from a
// single growth notification arrive in file order.
type LineHandler func(line []byte)

// Tail tracks one watched append-only file. All state is per-handle, so
// independent files (and tests) never share offsets.
type Tail struct {
	path    string
	handler LineHandler

	mu       sync.Mutex
	offset   int64
	buf      *LineBuffer
	detached bool
}

// Path returns the watched file path.
func (t *Tail) Path() string { return t.path }

// Offset returns the last fully processed byte offset.
func (t *Tail) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Tailer watches append-only files for growth and streams newly appended
// complete lines to per-file handlers. Historical content present at
// attach time is never replayed; tailing starts at the current size.
type Tailer struct {
	watcher      *fsnotify.Watcher
	pollInterval time.Duration

	mu          sync.RWMutex
	tails       map[string]*Tail
	watchedDirs map[string]int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Tailer. pollInterval bounds detection latency on
// filesystems where change notifications are unreliable; ≤0 selects the
// default of 500ms.
func New(pollInterval time.Duration) (*Tailer, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	return &Tailer{
		watcher:      fsWatcher,
		pollInterval: pollInterval,
		tails:        make(map[string]*Tail),
		watchedDirs:  make(map[string]int),
		stopCh:       make(chan struct{}),
	}, nil
}

// Attach starts tailing path and returns its handle. The current file
// size becomes the initial offset; only growth after this call is
// delivered. A missing file is treated as empty and picked up when
// created.
func (a *Tailer) Attach(path string, handler LineHandler) (*Tail, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.tails[abs]; exists {
		return nil, fmt.Errorf("already tailing %s", abs)
	}

	var offset int64
	if info, err := os.Stat(abs); err == nil {
		offset = info.Size()
	}

	// Watch the containing directory: events for files that do not exist
	// yet only surface at the directory level.
	dir := filepath.Dir(abs)
	if a.watchedDirs[dir] == 0 {
		if err := a.watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	a.watchedDirs[dir]++

	t := &Tail{
		path:    abs,
		handler: handler,
		offset:  offset,
		buf:     NewLineBuffer(),
	}
	a.tails[abs] = t
	return t, nil
}

// Detach stops delivery for t and releases its watch. No handler call for
// t is in flight or will fire once Detach returns.
func (a *Tailer) Detach(t *Tail) {
	a.mu.Lock()
	if _, exists := a.tails[t.path]; exists {
		delete(a.tails, t.path)
		dir := filepath.Dir(t.path)
		a.watchedDirs[dir]--
		if a.watchedDirs[dir] <= 0 {
			delete(a.watchedDirs, dir)
			a.watcher.Remove(dir)
		}
	}
	a.mu.Unlock()

	// Taking the tail lock waits out any delivery already in progress.
	t.mu.Lock()
	t.detached = true
	t.mu.Unlock()
}

// Start launches the notification and polling loops.
func (a *Tailer) Start() {
	a.wg.Add(1)
	go a.watchLoop()

	a.wg.Add(1)
	go a.pollLoop()
}

// Stop halts both loops and closes the underlying watcher.
func (a *Tailer) Stop() error {
	close(a.stopCh)
	a.wg.Wait()

	a.mu.Lock()
	for _, t := range a.tails {
		t.mu.Lock()
		t.detached = true
		t.mu.Unlock()
	}
	a.tails = make(map[string]*Tail)
	a.mu.Unlock()

	return a.watcher.Close()
}

func (a *Tailer) watchLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			return

		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if t := a.lookup(event.Name); t != nil {
					a.drain(t)
				}
			}

		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "Tailer watch error: %v\n", err)
		}
	}
}

// pollLoop is the fallback for missed notifications: every interval each
// tail is drained as if a write event had arrived.
func (a *Tailer) pollLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.mu.RLock()
			tails := make([]*Tail, 0, len(a.tails))
			for _, t := range a.tails {
				tails = append(tails, t)
			}
			a.mu.RUnlock()

			for _, t := range tails {
				a.drain(t)
			}
		}
	}
}

func (a *Tailer) lookup(path string) *Tail {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tails[abs]
}

// drain reads any byte range appended past the tail offset and delivers
// the complete lines it contains. A shrunken file re-baselines the offset
// to zero so a rotated or truncated file is picked up from its new start.
func (a *Tailer) drain(t *Tail) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.detached {
		return
	}

	info, err := os.Stat(t.path)
	if err != nil {
		// Momentarily missing or locked; the next cycle retries.
		return
	}
	size := info.Size()

	if size < t.offset {
		t.offset = 0
		t.buf.Reset()
	}
	if size == t.offset {
		return
	}

	chunk, err := readRange(t.path, t.offset, size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tailer read error for %s: %v\n", t.path, err)
		return
	}

	t.buf.Feed(chunk, func(line []byte) {
		t.handler(line)
	})
	t.offset = size
}

// readRange reads exactly [offset, end) of the file at path.
func readRange(path string, offset, end int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, end-offset)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}
