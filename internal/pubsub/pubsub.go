// Package pubsub provides a small typed publish/subscribe broker.
package pubsub

import "sync"

// Disposer removes a subscription. Calling it more than once is a no-op.
type Disposer func()

// Broker delivers published values to every current subscriber.
type Broker[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{subs: make(map[uint64]func(T))}
}

// Subscribe registers fn and returns its disposer.
func (b *Broker[T]) Subscribe(fn func(T)) Disposer {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish calls every subscriber synchronously, in no particular order.
// Subscribers may subscribe or dispose from inside the callback.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	handlers := make([]func(T), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(v)
	}
}

// Len returns the number of active subscriptions.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Clear drops every subscription.
func (b *Broker[T]) Clear() {
	b.mu.Lock()
	b.subs = make(map[uint64]func(T))
	b.mu.Unlock()
}
