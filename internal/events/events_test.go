package events

import (
	"errors"
	"sync"
	"testing"
)

func TestEmitDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(func(ev Event) error {
		order = append(order, "first:"+ev.Name)
		return nil
	})
	bus.Subscribe(func(ev Event) error {
		order = append(order, "second:"+ev.Name)
		return nil
	})

	bus.Emit(NewRecord, "payload")

	if len(order) != 2 || order[0] != "first:new-record" || order[1] != "second:new-record" {
		t.Errorf("delivery order = %v", order)
	}
}

func TestEmitPassesPayload(t *testing.T) {
	bus := NewBus()

	var got Event
	bus.Subscribe(func(ev Event) error {
		got = ev
		return nil
	})

	bus.Emit(CleanupExecuted, 42)

	if got.Name != CleanupExecuted {
		t.Errorf("Name = %q, want %q", got.Name, CleanupExecuted)
	}
	if got.Payload != 42 {
		t.Errorf("Payload = %v, want 42", got.Payload)
	}
}

// A failing handler must not block delivery to the handlers after it.
func TestEmitContinuesPastHandlerError(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(func(Event) error { return errors.New("boom") })

	delivered := false
	bus.Subscribe(func(Event) error {
		delivered = true
		return nil
	})

	bus.Emit(NewRecord, nil)

	if !delivered {
		t.Error("handler after a failing one was not called")
	}
}

func TestEmitWithNoHandlers(t *testing.T) {
	NewBus().Emit(NewRecord, nil)
}

func TestConcurrentSubscribeAndEmit(t *testing.T) {
	bus := NewBus()
	var count sync.WaitGroup

	count.Add(2)
	go func() {
		defer count.Done()
		for i := 0; i < 100; i++ {
			bus.Subscribe(func(Event) error { return nil })
		}
	}()
	go func() {
		defer count.Done()
		for i := 0; i < 100; i++ {
			bus.Emit(CleanupTick, i)
		}
	}()
	count.Wait()
}
