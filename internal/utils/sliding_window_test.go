package utils

import (
	"testing"
	"time"
)

func TestSlidingWindowAdd(t *testing.T) {
	window := NewSlidingWindow(2 * time.Second)
	now := time.Now()
	if count := window.Add(now); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	window.Add(now.Add(500 * time.Millisecond))
	if count := window.Count(now.Add(1 * time.Second)); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if count := window.Count(now.Add(3 * time.Second)); count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
	window.Add(now)
	window.Reset()
	if count := window.Count(now); count != 0 {
		t.Fatalf("expected reset window, got %d", count)
	}
}

func TestKeyedWindows(t *testing.T) {
	windows := NewKeyedWindows(5 * time.Second)
	now := time.Unix(100, 0)
	windows.Add("g1", now)
	windows.Add("g1", now.Add(time.Second))
	if count := windows.Add("g2", now); count != 1 {
		t.Fatalf("keys must not share windows, got %d", count)
	}
	if count := windows.Add("g1", now.Add(7*time.Second)); count != 1 {
		t.Fatalf("expected old hits to expire, got %d", count)
	}

	windows.SetWindow(time.Minute)
	if count := windows.Add("g1", now.Add(8*time.Second)); count != 1 {
		t.Fatalf("changing the span should start fresh, got %d", count)
	}
}
