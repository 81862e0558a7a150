package registry

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind identifies a registry event.
type EventKind string

const (
	EventRegistered     EventKind = "registered"
	EventUnregistered   EventKind = "unregistered"
	EventRestarted      EventKind = "restarted"
	EventBatchRestarted EventKind = "batch_restarted"
)

// Event describes one registry state change.
type Event struct {
	Kind        EventKind
	OperationID string
	ProfileID   string
	// OldProfile is set on restart events.
	OldProfile string
	// Count is set on batch events.
	Count int
}

// emitter is a per-kind observer list. Handlers run synchronously on
// the emitting goroutine.
type emitter struct {
	mu        sync.Mutex
	observers map[EventKind]map[string]func(Event)
}

func newEmitter() *emitter {
	return &emitter{observers: make(map[EventKind]map[string]func(Event))}
}

func (e *emitter) subscribe(kind EventKind, fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	handle := uuid.NewString()
	if e.observers[kind] == nil {
		e.observers[kind] = make(map[string]func(Event))
	}
	e.observers[kind][handle] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers[kind], handle)
	}
}

func (e *emitter) emit(event Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.observers[event.Kind]))
	for _, fn := range e.observers[event.Kind] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Subscribe registers a handler for one event kind and returns the
// unsubscribe function. Handlers run synchronously; long work belongs
// on the subscriber's own goroutine.
func (r *Registry) Subscribe(kind EventKind, fn func(Event)) func() {
	return r.events.subscribe(kind, fn)
}
