package orchestrator

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultEventBuffer is the event channel capacity used by New.
const DefaultEventBuffer = 256

// EventEmitter fans orchestrator events out on a buffered channel.
// Slow subscribers lose events instead of stalling agents.
type EventEmitter struct {
	mu           sync.RWMutex
	closed       bool
	events       chan Event
	droppedCount atomic.Uint64
	// subscribed is set by the first Events call. Until then a full
	// buffer drops without waiting.
	subscribed atomic.Bool
	now        func() time.Time
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
		now:    time.Now,
	}
}

// Emit sends an event. If the channel is full it waits briefly for a
// subscribed receiver, then drops the event. Without a subscriber a full
// channel drops at once. Emit after Close is a no-op.
func (e *EventEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	if !e.subscribed.Load() {
		e.droppedCount.Add(1)
		return
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // every 10th drop
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events and marks the emitter as
// subscribed.
func (e *EventEmitter) Events() <-chan Event {
	e.subscribed.Store(true)
	return e.events
}

// Close closes the events channel. Later calls are no-ops.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}
