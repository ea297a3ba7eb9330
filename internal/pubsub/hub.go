// Package pubsub provides a small publish/subscribe hub with explicitly
// scoped subscriptions. A subscriber receives every value published after it
// subscribed and until it closes its Subscription.
package pubsub

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans published values out to the current subscribers.
// The zero value is not usable; create hubs with New.
type Hub[T any] struct {
	mu   sync.RWMutex
	subs map[string]func(T)
}

// Subscription is the handle returned by Subscribe. Close detaches the
// callback; it is safe to call more than once.
type Subscription struct {
	id   string
	once sync.Once
	drop func(string)
}

// New creates an empty hub.
func New[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[string]func(T))}
}

// Subscribe registers fn and returns the handle that owns the registration.
func (h *Hub[T]) Subscribe(fn func(T)) *Subscription {
	id := uuid.NewString()

	h.mu.Lock()
	h.subs[id] = fn
	h.mu.Unlock()

	return &Subscription{id: id, drop: h.unsubscribe}
}

// Publish delivers v to every subscriber, in no particular order.
// Callbacks run on the caller's goroutine and must not block for long.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	fns := make([]func(T), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of live subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub[T]) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Close detaches the subscription from its hub.
func (s *Subscription) Close() {
	s.once.Do(func() { s.drop(s.id) })
}
