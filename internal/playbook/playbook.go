// Package playbook runs timed guild lockdowns.
package playbook

import (
	"context"
	"sync"
	"time"

	"modwarden/internal/modules/audit"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type Config struct {
	LockdownMinutes int
}

type State struct {
	Lockdown bool
	Reason   string
	Since    time.Time
	Until    time.Time
}

// Hook applies or reverts a lockdown on Discord.
type Hook func(ctx context.Context, guildID, reason string)

type Engine struct {
	mu      sync.RWMutex
	cfg     Config
	clock   Clock
	audit   *audit.Logger
	states  map[string]*State
	timers  map[string]Timer
	engage  Hook
	release Hook
}

func New(cfg Config, auditLogger *audit.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		clock:  realClock{},
		audit:  auditLogger,
		states: make(map[string]*State),
		timers: make(map[string]Timer),
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// OnEngage and OnRelease install the hooks run when a lockdown starts and
// ends.
func (e *Engine) OnEngage(hook Hook) {
	e.engage = hook
}

func (e *Engine) OnRelease(hook Hook) {
	e.release = hook
}

func (e *Engine) duration() time.Duration {
	d := time.Duration(e.cfg.LockdownMinutes) * time.Minute
	if d <= 0 {
		d = 10 * time.Minute
	}
	return d
}

// TriggerLockdown starts a lockdown unless one is already active. It reports
// whether a new lockdown began.
func (e *Engine) TriggerLockdown(ctx context.Context, guildID, reason string) bool {
	now := e.clock.Now()
	d := e.duration()

	e.mu.Lock()
	state := e.stateLocked(guildID)
	if state.Lockdown {
		e.mu.Unlock()
		return false
	}
	state.Lockdown = true
	state.Reason = reason
	state.Since = now
	state.Until = now.Add(d)
	e.mu.Unlock()

	e.audit.Log(ctx, audit.LevelWarn, guildID, "", "raid_lockdown", "lockdown initiated: "+reason)
	if e.engage != nil {
		e.engage(ctx, guildID, reason)
	}

	timer := e.clock.AfterFunc(d, func() {
		e.finish(context.WithoutCancel(ctx), guildID, "lockdown ended")
	})
	e.mu.Lock()
	e.timers[guildID] = timer
	e.mu.Unlock()
	return true
}

// Resume restores a lockdown that was active before a restart without
// running the engage hook again. A lockdown whose end already passed is
// finished right away. It reports whether a lockdown was restored.
func (e *Engine) Resume(ctx context.Context, guildID, reason string, until time.Time) bool {
	now := e.clock.Now()

	e.mu.Lock()
	state := e.stateLocked(guildID)
	if state.Lockdown {
		e.mu.Unlock()
		return false
	}
	state.Lockdown = true
	state.Reason = reason
	state.Since = now
	state.Until = until
	e.mu.Unlock()

	d := until.Sub(now)
	if d <= 0 {
		e.finish(ctx, guildID, "lockdown ended while offline")
		return true
	}
	e.audit.Log(ctx, audit.LevelInfo, guildID, "", "raid_lockdown", "lockdown resumed: "+reason)
	timer := e.clock.AfterFunc(d, func() {
		e.finish(context.WithoutCancel(ctx), guildID, "lockdown ended")
	})
	e.mu.Lock()
	e.timers[guildID] = timer
	e.mu.Unlock()
	return true
}

// Release ends an active lockdown early. It reports whether one was active.
func (e *Engine) Release(ctx context.Context, guildID string) bool {
	e.mu.Lock()
	if timer := e.timers[guildID]; timer != nil {
		timer.Stop()
	}
	e.mu.Unlock()
	return e.finish(ctx, guildID, "lockdown released")
}

func (e *Engine) finish(ctx context.Context, guildID, message string) bool {
	e.mu.Lock()
	state := e.stateLocked(guildID)
	if !state.Lockdown {
		e.mu.Unlock()
		return false
	}
	reason := state.Reason
	*state = State{}
	delete(e.timers, guildID)
	e.mu.Unlock()

	e.audit.Log(ctx, audit.LevelInfo, guildID, "", "raid_lockdown", message)
	if e.release != nil {
		e.release(ctx, guildID, reason)
	}
	return true
}

func (e *Engine) IsLockdown(guildID string) State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state := e.states[guildID]
	if state == nil {
		return State{}
	}
	return *state
}

func (e *Engine) stateLocked(guildID string) *State {
	state := e.states[guildID]
	if state == nil {
		state = &State{}
		e.states[guildID] = state
	}
	return state
}
