// Package bus provides the in-process fan-out of sanctum events to live
// subscribers. The bus holds no buffer and no backlog: an event reaches the
// handlers registered at emission time and is then gone.
package bus

import (
	"log"
	"sync"

	"github.com/bloodroom/sanctum/internal/protocol"
)

// Handler receives every event emitted after its subscription.
type Handler func(protocol.Event)

type subscriber struct {
	id uint64
	fn Handler
}

// Bus is a mutex-guarded listener registry with synchronous dispatch.
// Subscribe, Unsubscribe and Emit are safe to call from concurrent
// request-handling goroutines.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber // in registration order
}

// New creates an empty Bus. One instance is constructed at process start and
// injected into every handler that needs it.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn to receive every event emitted after this call and
// returns a token for Unsubscribe. There is no limit on concurrent
// subscribers.
func (b *Bus) Subscribe(fn Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, fn: fn})
	return b.nextID
}

// Unsubscribe removes the subscription identified by id. Removing an id that
// is not currently registered is a no-op.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit synchronously invokes every currently-registered handler with ev, in
// registration order. A panicking handler does not prevent delivery to the
// rest.
func (b *Bus) Emit(ev protocol.Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		dispatch(s, ev)
	}
}

// Subscribers returns the current number of registered handlers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func dispatch(s subscriber, ev protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: handler %d panicked on %s event: %v", s.id, ev.EventType(), r)
		}
	}()
	s.fn(ev)
}
