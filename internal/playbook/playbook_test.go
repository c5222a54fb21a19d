package playbook

import (
	"context"
	"sync"
	"testing"
	"time"

	"modwarden/internal/modules/audit"

	"go.uber.org/zap"
)

type fakeTimer struct {
	stopped bool
	fn      func()
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	f.delays = append(f.delays, d)
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	pending := append([]*fakeTimer{}, f.timers...)
	f.timers = nil
	f.delays = nil
	f.mu.Unlock()
	for _, timer := range pending {
		if !timer.stopped {
			timer.fn()
		}
	}
}

func newEngine(minutes int) (*Engine, *fakeClock) {
	engine := New(Config{LockdownMinutes: minutes}, audit.NewLogger(zap.NewNop()))
	clock := &fakeClock{now: time.Unix(0, 0)}
	engine.WithClock(clock)
	return engine, clock
}

func TestPlaybookTrigger(t *testing.T) {
	engine, clock := newEngine(1)
	var engaged, released []string
	engine.OnEngage(func(_ context.Context, guildID, reason string) { engaged = append(engaged, guildID+":"+reason) })
	engine.OnRelease(func(_ context.Context, guildID, _ string) { released = append(released, guildID) })

	ctx := context.Background()
	if !engine.TriggerLockdown(ctx, "g1", "anti_raid") {
		t.Fatalf("expected trigger")
	}
	if engine.TriggerLockdown(ctx, "g1", "anti_raid") {
		t.Fatalf("second trigger must be ignored while active")
	}
	state := engine.IsLockdown("g1")
	if !state.Lockdown || state.Reason != "anti_raid" || !state.Until.Equal(time.Unix(60, 0)) {
		t.Fatalf("unexpected state %+v", state)
	}
	if clock.delays[0] != time.Minute {
		t.Fatalf("unexpected timer delay %s", clock.delays[0])
	}

	clock.Advance(2 * time.Minute)
	if engine.IsLockdown("g1").Lockdown {
		t.Fatalf("expected lockdown ended")
	}
	if len(engaged) != 1 || engaged[0] != "g1:anti_raid" || len(released) != 1 {
		t.Fatalf("unexpected hooks: engaged %v released %v", engaged, released)
	}
}

func TestPlaybookRelease(t *testing.T) {
	engine, clock := newEngine(0)
	releases := 0
	engine.OnRelease(func(context.Context, string, string) { releases++ })

	ctx := context.Background()
	engine.TriggerLockdown(ctx, "g1", "manual")
	if clock.delays[0] != 10*time.Minute {
		t.Fatalf("expected default duration, got %s", clock.delays[0])
	}
	if !engine.Release(ctx, "g1") {
		t.Fatalf("expected release")
	}
	if engine.Release(ctx, "g1") {
		t.Fatalf("second release must report inactive")
	}

	clock.Advance(time.Hour)
	if releases != 1 {
		t.Fatalf("stopped timer must not release again, got %d", releases)
	}
	if !engine.TriggerLockdown(ctx, "g1", "again") {
		t.Fatalf("expected new lockdown after release")
	}
}

func TestPlaybookResume(t *testing.T) {
	engine, clock := newEngine(10)
	var engaged, released int
	engine.OnEngage(func(context.Context, string, string) { engaged++ })
	engine.OnRelease(func(context.Context, string, string) { released++ })

	ctx := context.Background()
	if !engine.Resume(ctx, "g1", "anti_raid", clock.Now().Add(3*time.Minute)) {
		t.Fatalf("expected resume")
	}
	if engine.Resume(ctx, "g1", "anti_raid", clock.Now().Add(time.Hour)) {
		t.Fatalf("resume must not replace an active lockdown")
	}
	if state := engine.IsLockdown("g1"); !state.Lockdown || !state.Until.Equal(time.Unix(180, 0)) {
		t.Fatalf("unexpected state %+v", state)
	}
	if clock.delays[0] != 3*time.Minute {
		t.Fatalf("expected remaining time as delay, got %s", clock.delays[0])
	}
	clock.Advance(3 * time.Minute)
	if engine.IsLockdown("g1").Lockdown || released != 1 {
		t.Fatalf("expected resumed lockdown to end, released %d", released)
	}

	if !engine.Resume(ctx, "g2", "anti_raid", clock.Now().Add(-time.Minute)) {
		t.Fatalf("expected expired resume to report restored")
	}
	if engine.IsLockdown("g2").Lockdown || released != 2 {
		t.Fatalf("expired lockdown must finish at once, released %d", released)
	}
	if engaged != 0 {
		t.Fatalf("resume must not engage again, got %d", engaged)
	}
}
