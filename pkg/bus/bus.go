// Package bus is an in-process, synchronous publish/subscribe router keyed by
// event kind.
//
// Handlers are plain typed closures registered per kind. Publish delivers an
// event to every handler subscribed at the moment Publish is called, on the
// calling goroutine, in subscription order. A handler subscribed while a
// Publish is running does not see that event.
//
// The bus is safe for concurrent use: timer goroutines owned by the save
// orchestrator publish completion events while the game loop publishes
// requests.
package bus

import (
	"fmt"
	"sync"
)

// Kind identifies an event type on the bus.
type Kind string

// Event is implemented by every payload that travels on the bus.
// Kind must not depend on the receiver's field values.
type Event interface {
	Kind() Kind
}

type entry struct {
	id      uint64
	handler any
}

// Bus routes events to the handlers registered for their kind.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]entry
	nextID   uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[Kind][]entry)}
}

// Subscribe registers fn for events of type T and returns a function that
// removes the registration. Calling the returned function more than once is safe.
func Subscribe[T Event](b *Bus, fn func(T)) (unsubscribe func()) {
	var zero T
	kind := zero.Kind()

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], entry{id: id, handler: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, id) })
	}
}

// Publish delivers ev to every handler currently subscribed to its kind.
// It returns the number of handlers invoked.
func Publish[T Event](b *Bus, ev T) int {
	b.mu.RLock()
	subs := b.handlers[ev.Kind()]
	snapshot := make([]entry, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	delivered := 0
	for _, e := range snapshot {
		fn, ok := e.handler.(func(T))
		if !ok {
			// Two Go types claimed the same Kind.
			panic(fmt.Sprintf("bus: handler for kind %q does not accept %T", ev.Kind(), ev))
		}
		fn(ev)
		delivered++
	}
	return delivered
}

// HandlerCount returns the number of handlers subscribed to kind.
func (b *Bus) HandlerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

func (b *Bus) remove(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[kind]
	for i, e := range subs {
		if e.id == id {
			// Copy so snapshots held by in-flight Publish calls stay intact.
			next := make([]entry, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, kind)
			} else {
				b.handlers[kind] = next
			}
			return
		}
	}
}
