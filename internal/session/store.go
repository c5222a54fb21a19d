// Package session keeps short-lived per-user state for multi-step
// interactions such as the embed builder.
package session

import (
	"sync"
	"time"
)

type Key struct {
	UserID string
	Kind   string
}

type entry[T any] struct {
	value   T
	expires time.Time
}

// Store holds values that expire ttl after their last Put. Expiry is checked
// on every access.
type Store[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[Key]entry[T]
}

func New[T any](ttl time.Duration) *Store[T] {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store[T]{ttl: ttl, now: time.Now, entries: make(map[Key]entry[T])}
}

func (s *Store[T]) WithClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store[T]) Put(key Key, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[T]{value: value, expires: s.now().Add(s.ttl)}
}

// Get returns the live value for key. An expired entry is dropped and
// reported as absent.
func (s *Store[T]) Get(key Key) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Update applies fn to the live value and stores the result, refreshing the
// expiry. It reports false when there is no live value.
func (s *Store[T]) Update(key Key, fn func(T) T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expires) {
		delete(s.entries, key)
		var zero T
		return zero, false
	}
	next := fn(e.value)
	s.entries[key] = entry[T]{value: next, expires: s.now().Add(s.ttl)}
	return next, true
}

func (s *Store[T]) Delete(key Key) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Sweep drops every expired entry and returns how many were removed.
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
