package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// blockingStore lets tests hold the background writer mid-flight.
type blockingStore struct {
	mu      sync.Mutex
	events  []Event
	gate    chan struct{}
	failing bool
}

func (s *blockingStore) InsertAuditEvent(ctx context.Context, component, level, message string, metadata map[string]any, sessionID string, durationMs int64) error {
	if s.gate != nil {
		<-s.gate
	}
	if s.failing {
		return errors.New("store down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{Component: component, Level: level, Message: message, SessionID: sessionID, DurationMs: durationMs})
	return nil
}

func (s *blockingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestSink_WritesEvents(t *testing.T) {
	store := &blockingStore{}
	sink := NewSink(store, 10)

	sink.Record(Event{Component: "clusterer", Level: "info", Message: "assigned"})
	sink.Record(Event{Component: "attributor", Level: "info", Message: "attributed"})
	sink.Close()

	if got := store.count(); got != 2 {
		t.Errorf("stored events = %d, want 2", got)
	}
	if sink.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", sink.Dropped())
	}
}

func TestSink_DropsWhenSaturated(t *testing.T) {
	store := &blockingStore{gate: make(chan struct{})}
	sink := NewSink(store, 1)

	// First event is picked up by the writer and parked on the gate;
	// second fills the queue; the rest must drop without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			sink.Record(Event{Component: "clusterer", Message: "event"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a saturated queue")
	}

	if sink.Dropped() == 0 {
		t.Error("expected dropped events on a saturated queue")
	}

	close(store.gate)
	sink.Close()
}

func TestSink_StoreFailureDoesNotPropagate(t *testing.T) {
	store := &blockingStore{failing: true}
	sink := NewSink(store, 10)

	// Must not panic or block; failures are logged and discarded.
	sink.Record(Event{Component: "watchdog", Message: "rollback"})
	sink.Close()

	if got := store.count(); got != 0 {
		t.Errorf("stored events = %d, want 0 (store failing)", got)
	}
}

func TestSink_CloseDrainsQueue(t *testing.T) {
	store := &blockingStore{}
	sink := NewSink(store, 100)

	for i := 0; i < 50; i++ {
		sink.Record(Event{Component: "classifier", Message: "verdict"})
	}
	sink.Close()

	if got := store.count(); got != 50 {
		t.Errorf("stored events = %d, want 50 after drain", got)
	}
}
