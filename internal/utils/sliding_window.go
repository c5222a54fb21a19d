package utils

import (
	"sync"
	"time"
)

// SlidingWindow counts hits that happened within the trailing window.
type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	hits   []time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

func (w *SlidingWindow) Add(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked(now)
	w.hits = append(w.hits, now)
	return len(w.hits)
}

func (w *SlidingWindow) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked(now)
	return len(w.hits)
}

func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	w.hits = nil
	w.mu.Unlock()
}

func (w *SlidingWindow) expireLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	w.hits = w.hits[idx:]
}

// KeyedWindows keeps one SlidingWindow per key, such as one per guild.
type KeyedWindows struct {
	mu      sync.Mutex
	window  time.Duration
	windows map[string]*SlidingWindow
}

func NewKeyedWindows(window time.Duration) *KeyedWindows {
	return &KeyedWindows{window: window, windows: make(map[string]*SlidingWindow)}
}

func (k *KeyedWindows) Add(key string, now time.Time) int {
	return k.get(key).Add(now)
}

func (k *KeyedWindows) Reset(key string) {
	k.mu.Lock()
	delete(k.windows, key)
	k.mu.Unlock()
}

// SetWindow changes the span for windows created afterwards and drops the
// existing ones when the span differs.
func (k *KeyedWindows) SetWindow(window time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if window == k.window {
		return
	}
	k.window = window
	k.windows = make(map[string]*SlidingWindow)
}

func (k *KeyedWindows) get(key string) *SlidingWindow {
	k.mu.Lock()
	defer k.mu.Unlock()
	w := k.windows[key]
	if w == nil {
		w = NewSlidingWindow(k.window)
		k.windows[key] = w
	}
	return w
}
