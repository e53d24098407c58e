package events

import (
	"fmt"
	"os"
	"sync"
)

// Event names on the UI boundary wire.
const (
	NewRecord            = "new-record"
	CleanupTick          = "auto-cleanup-tick"
	CleanupExecuted      = "auto-cleanup-executed"
	CleanupError         = "auto-cleanup-error"
	CleanupConfigUpdated = "auto-cleanup-config-updated"
)

// Event is one notification pushed to the UI boundary.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Handler processes emitted events. Handler errors are reported to stderr
// and never propagate back into the emitting component.
type Handler func(event Event) error

// Bus fans events out to registered handlers. Emit is safe to call
// concurrently with Subscribe.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Emit delivers the event to every handler in subscription order.
func (b *Bus) Emit(name string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	ev := Event{Name: name, Payload: payload}
	for _, h := range handlers {
		if err := h(ev); err != nil {
			fmt.Fprintf(os.Stderr, "Event handler error (%s): %v\n", name, err)
		}
	}
}
