package session

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestStoreExpiresOnAccess(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := New[string](time.Minute)
	store.WithClock(clock.Now)

	key := Key{UserID: "u1", Kind: "embed"}
	store.Put(key, "draft")

	clock.Advance(59 * time.Second)
	if got, ok := store.Get(key); !ok || got != "draft" {
		t.Fatalf("expected live value, got %q %v", got, ok)
	}

	clock.Advance(time.Second)
	if _, ok := store.Get(key); ok {
		t.Fatalf("expected value to expire at ttl")
	}
	if store.Len() != 0 {
		t.Fatalf("expired entry should be dropped on access")
	}
}

func TestStoreKeysAreScopedByKind(t *testing.T) {
	store := New[int](time.Minute)
	store.Put(Key{UserID: "u1", Kind: "embed"}, 1)
	store.Put(Key{UserID: "u1", Kind: "poll"}, 2)

	if v, _ := store.Get(Key{UserID: "u1", Kind: "embed"}); v != 1 {
		t.Fatalf("unexpected embed value %d", v)
	}
	store.Delete(Key{UserID: "u1", Kind: "embed"})
	if _, ok := store.Get(Key{UserID: "u1", Kind: "embed"}); ok {
		t.Fatalf("expected deleted")
	}
	if v, _ := store.Get(Key{UserID: "u1", Kind: "poll"}); v != 2 {
		t.Fatalf("other kind must survive delete")
	}
}

func TestUpdateRefreshesExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := New[int](time.Minute)
	store.WithClock(clock.Now)
	key := Key{UserID: "u1", Kind: "embed"}
	store.Put(key, 1)

	clock.Advance(50 * time.Second)
	if v, ok := store.Update(key, func(n int) int { return n + 1 }); !ok || v != 2 {
		t.Fatalf("unexpected update result %d %v", v, ok)
	}
	clock.Advance(50 * time.Second)
	if _, ok := store.Get(key); !ok {
		t.Fatalf("update should refresh expiry")
	}
	if _, ok := store.Update(Key{UserID: "nobody"}, func(n int) int { return n }); ok {
		t.Fatalf("update of missing key must fail")
	}
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := New[int](time.Minute)
	store.WithClock(clock.Now)
	store.Put(Key{UserID: "a"}, 1)
	clock.Advance(30 * time.Second)
	store.Put(Key{UserID: "b"}, 2)
	clock.Advance(40 * time.Second)

	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected one expired entry, got %d", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one survivor")
	}
}
