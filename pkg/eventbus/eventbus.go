// Package eventbus provides a typed, synchronous publish/subscribe primitive
// used to couple the harvester's long-lived subsystems.
package eventbus

import (
	"sync"

	"github.com/laik/harvest/pkg/log"
)

// Listener receives a dispatched payload. Listeners run synchronously on the
// dispatching goroutine and must not block for long.
type Listener[T any] func(event string, payload T)

type registration[T any] struct {
	id       uint64
	listener Listener[T]
}

// Bus is a typed publish/subscribe dispatcher. Registration order determines
// dispatch order; a panicking listener is recovered and logged so the
// remaining listeners still run.
type Bus[T any] struct {
	mu        sync.RWMutex
	listeners map[string][]registration[T]
	nextID    uint64
}

// New creates an empty bus for the given payload type.
func New[T any]() *Bus[T] {
	return &Bus[T]{
		listeners: make(map[string][]registration[T]),
	}
}

// Register adds a listener for event. It returns an id that Unregister
// accepts; registration is append-only so dispatch order matches call order.
func (b *Bus[T]) Register(event string, listener Listener[T]) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[event] = append(b.listeners[event], registration[T]{id: id, listener: listener})
	return id
}

// Unregister removes a previously registered listener.
func (b *Bus[T]) Unregister(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[event]
	for i, r := range regs {
		if r.id == id {
			b.listeners[event] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every listener registered for event, in registration
// order, passing payload to each. A listener that panics is recovered and
// logged; the remaining listeners still run.
func (b *Bus[T]) Dispatch(event string, payload T) {
	b.mu.RLock()
	regs := make([]registration[T], len(b.listeners[event]))
	copy(regs, b.listeners[event])
	b.mu.RUnlock()

	for _, r := range regs {
		b.invoke(r.listener, event, payload)
	}
}

func (b *Bus[T]) invoke(listener Listener[T], event string, payload T) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error().
				Str("event", event).
				Interface("panic", r).
				Msg("event bus listener panicked")
		}
	}()
	listener(event, payload)
}
