// Package events implements a small synchronous event emitter. Handlers run
// in registration order on the emitting goroutine; a panicking handler never
// takes down dispatch.
package events

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/alxayo/go-rornet/internal/logger"
)

// Meta events the bus emits about itself.
const (
	// NewListener fires with (event string, listener Listener) whenever a
	// listener is added, before it becomes eligible for dispatch.
	NewListener = "new_listener"
	// Error fires with (error) when a handler panics. If nothing listens,
	// the error is logged instead.
	Error = "error"
)

// Listener handles one emitted event. Args are whatever the emitter passed.
type Listener func(args ...any)

type entry struct {
	fn   Listener
	id   uintptr
	once bool
}

// Bus routes named events to listeners.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]entry
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]entry)}
}

// On registers fn for every future emission of event.
func (b *Bus) On(event string, fn Listener) {
	b.add(event, fn, false)
}

// Once registers fn for only the next emission of event.
func (b *Bus) Once(event string, fn Listener) {
	b.add(event, fn, true)
}

func (b *Bus) add(event string, fn Listener, once bool) {
	b.emit(NewListener, event, fn)
	b.mu.Lock()
	b.listeners[event] = append(b.listeners[event], entry{
		fn:   fn,
		id:   reflect.ValueOf(fn).Pointer(),
		once: once,
	})
	b.mu.Unlock()
}

// RemoveListener drops the first registration of fn for event, matched by
// function identity. Unknown listeners are ignored.
func (b *Bus) RemoveListener(event string, fn Listener) {
	id := reflect.ValueOf(fn).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.listeners[event]
	for i, e := range list {
		if e.id == id {
			b.listeners[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// ListenerCount reports how many listeners are registered for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[event])
}

// Emit dispatches event to its listeners in registration order. Once
// listeners are consumed before their handler runs, so a handler emitting
// the same event cannot retrigger itself.
func (b *Bus) Emit(event string, args ...any) {
	b.emit(event, args...)
}

func (b *Bus) emit(event string, args ...any) {
	b.mu.Lock()
	list := b.listeners[event]
	snapshot := make([]entry, len(list))
	copy(snapshot, list)
	kept := list[:0]
	for _, e := range list {
		if !e.once {
			kept = append(kept, e)
		}
	}
	b.listeners[event] = kept
	b.mu.Unlock()

	for _, e := range snapshot {
		b.dispatch(event, e.fn, args)
	}
}

func (b *Bus) dispatch(event string, fn Listener, args []any) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if event != Error && b.ListenerCount(Error) > 0 {
			b.emit(Error, err)
			return
		}
		logger.Error("event handler failed", "event", event, "error", err)
	}()
	fn(args...)
}
