// Package gateway turns Discord gateway traffic into categorized
// notifications for the handler dispatchers.
package gateway

import (
	"context"
	"sync"
	"sync/atomic"

	"modwarden/internal/handler"
)

type subscription struct {
	id       uint64
	once     bool
	fired    atomic.Bool
	listener handler.Listener
}

// Bus is a synchronous in-process listener table keyed by category.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]*subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Subscribe adds listener to category. A once listener is removed before its
// first delivery so concurrent publishes deliver it at most one time.
func (b *Bus) Subscribe(category string, once bool, listener handler.Listener) func() {
	if listener == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, once: once, listener: listener}
	b.subs[category] = append(b.subs[category], sub)
	b.mu.Unlock()

	return func() { b.remove(category, sub.id) }
}

func (b *Bus) UnsubscribeAll(category string) {
	b.mu.Lock()
	delete(b.subs, category)
	b.mu.Unlock()
}

func (b *Bus) ListenerCount(category string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[category])
}

// Publish delivers n to every listener of category and returns how many
// listeners ran.
func (b *Bus) Publish(ctx context.Context, category string, n handler.Notification, args ...any) int {
	subs := b.snapshot(category)

	delivered := 0
	for _, sub := range subs {
		if sub.once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			b.remove(category, sub.id)
		}
		sub.listener(ctx, n, args...)
		delivered++
	}
	return delivered
}

func (b *Bus) snapshot(category string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]*subscription, len(b.subs[category]))
	copy(subs, b.subs[category])
	return subs
}

func (b *Bus) remove(category string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[category]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		next := make([]*subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, category)
		} else {
			b.subs[category] = next
		}
		return
	}
}
