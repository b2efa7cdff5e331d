// Package audit provides a bounded, non-blocking sink for structured
// event rows. Recording never blocks the request path and store
// failures never propagate to the caller; saturation is observable as
// a drop counter instead of silent loss.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const flushTimeout = 5 * time.Second

// Store persists audit events.
type Store interface {
	InsertAuditEvent(ctx context.Context, component, level, message string, metadata map[string]any, sessionID string, durationMs int64) error
}

// Event is one structured audit record.
type Event struct {
	Component  string
	Level      string
	Message    string
	Metadata   map[string]any
	SessionID  string
	DurationMs int64
}

// Sink writes audit events in the background through a bounded queue.
type Sink struct {
	store    Store
	queue    chan Event
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64
}

// NewSink creates a sink and starts its background writer.
func NewSink(store Store, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = 1000
	}
	s := &Sink{
		store:    store,
		queue:    make(chan Event, queueSize),
		stopChan: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.process()

	return s
}

// Record enqueues an event without blocking. When the queue is full the
// event is dropped and counted.
func (s *Sink) Record(e Event) {
	select {
	case s.queue <- e:
	default:
		n := s.dropped.Add(1)
		slog.Warn("audit queue full, dropping event",
			"component", e.Component, "message", e.Message, "dropped_total", n)
	}
}

// Dropped returns how many events have been dropped since startup.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops the background writer after draining queued events.
func (s *Sink) Close() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
}

func (s *Sink) process() {
	defer s.wg.Done()

	for {
		select {
		case e := <-s.queue:
			s.write(e)
		case <-s.stopChan:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case e := <-s.queue:
					s.write(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := s.store.InsertAuditEvent(ctx, e.Component, e.Level, e.Message, e.Metadata, e.SessionID, e.DurationMs); err != nil {
		slog.Warn("audit event write failed", "component", e.Component, "error", err)
	}
}
