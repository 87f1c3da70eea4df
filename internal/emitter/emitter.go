// Package emitter provides a small named-event publish/subscribe primitive.
//
// Handlers for a name run synchronously, in registration order, on the
// goroutine that calls Emit. A panicking handler is recovered and logged so
// the remaining handlers of the same emission still run.
package emitter

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives the payload of an emitted event.
type Handler[T any] func(T)

// ListenerID identifies a registered handler so it can be removed later.
// Zero is never handed out.
type ListenerID uint64

type listener[T any] struct {
	id      ListenerID
	handler Handler[T]
	once    bool
	removed bool
}

// Emitter fans named events out to registered handlers.
type Emitter[T any] struct {
	mu      sync.Mutex
	buckets map[string][]*listener[T]
	nextID  ListenerID
	logger  zerolog.Logger
}

// New creates an empty Emitter.
func New[T any](logger zerolog.Logger) *Emitter[T] {
	return &Emitter[T]{
		buckets: make(map[string][]*listener[T]),
		logger:  logger.With().Str("component", "emitter").Logger(),
	}
}

// On registers a persistent handler for name.
func (e *Emitter[T]) On(name string, h Handler[T]) ListenerID {
	return e.add(name, h, false)
}

// Once registers a handler that is removed before its first invocation.
func (e *Emitter[T]) Once(name string, h Handler[T]) ListenerID {
	return e.add(name, h, true)
}

func (e *Emitter[T]) add(name string, h Handler[T], once bool) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	l := &listener[T]{id: e.nextID, handler: h, once: once}
	e.buckets[name] = append(e.buckets[name], l)
	return l.id
}

// Off removes a single handler. It reports whether the handler was found.
func (e *Emitter[T]) Off(name string, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	bucket := e.buckets[name]
	for i, l := range bucket {
		if l.id != id {
			continue
		}
		l.removed = true
		e.setBucket(name, append(bucket[:i:i], bucket[i+1:]...))
		return true
	}
	return false
}

// Emit invokes every handler registered for name with v. Emitting a name
// without handlers is a no-op.
func (e *Emitter[T]) Emit(name string, v T) {
	e.mu.Lock()
	bucket := e.buckets[name]
	if len(bucket) == 0 {
		e.mu.Unlock()
		return
	}
	snapshot := make([]*listener[T], len(bucket))
	copy(snapshot, bucket)
	e.mu.Unlock()

	for _, l := range snapshot {
		if !e.claim(name, l) {
			continue
		}
		e.invoke(name, l.handler, v)
	}
}

// claim reports whether l should still run in the current emission and
// detaches once-listeners before they are invoked.
func (e *Emitter[T]) claim(name string, l *listener[T]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if l.removed {
		return false
	}
	if l.once {
		l.removed = true
		bucket := e.buckets[name]
		for i, other := range bucket {
			if other == l {
				e.setBucket(name, append(bucket[:i:i], bucket[i+1:]...))
				break
			}
		}
	}
	return true
}

func (e *Emitter[T]) invoke(name string, h Handler[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("event", name).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	h(v)
}

// RemoveAllListeners clears the named buckets, or every bucket when called
// without names.
func (e *Emitter[T]) RemoveAllListeners(names ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(names) == 0 {
		for _, bucket := range e.buckets {
			markRemoved(bucket)
		}
		e.buckets = make(map[string][]*listener[T])
		return
	}
	for _, name := range names {
		markRemoved(e.buckets[name])
		delete(e.buckets, name)
	}
}

// ListenerCount returns the number of handlers registered for name.
func (e *Emitter[T]) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buckets[name])
}

// Must be called with e.mu held.
func (e *Emitter[T]) setBucket(name string, bucket []*listener[T]) {
	if len(bucket) == 0 {
		delete(e.buckets, name)
		return
	}
	e.buckets[name] = bucket
}

func markRemoved[T any](bucket []*listener[T]) {
	for _, l := range bucket {
		l.removed = true
	}
}
