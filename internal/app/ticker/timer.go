// Package ticker provides the playback timer that emits one tick per interval
// while playback is running.
package ticker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackd/internal/app/emitter"
	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/app/scheduler"
)

// DefaultInterval is the tick interval used when none is configured.
const DefaultInterval = time.Second

// State represents the timer state.
type State int

const (
	StateIdle    State = iota // No tick chain scheduled
	StateRunning              // A tick chain is scheduled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Scheduler posts delayed callbacks.
type Scheduler interface {
	PostDelayed(d time.Duration, fn func()) (scheduler.Token, error)
	RemoveCallbacks(token scheduler.Token) bool
}

// Emitter broadcasts events.
type Emitter interface {
	Emit(event string, data map[string]any)
}

// chain is the single outstanding repeating callback.
type chain struct {
	start int64 // Unix seconds at activation
	token scheduler.Token
}

// Timer emits EventPlaybackTimerTick with the whole seconds elapsed since playback started.
type Timer struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	sched    Scheduler
	emitter  Emitter
	interval time.Duration
	chain    *chain // nil when idle
	closed   bool
}

// New creates an idle timer.
func New(clock clockwork.Clock, sched Scheduler, em Emitter, interval time.Duration) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Timer{
		clock:    clock,
		sched:    sched,
		emitter:  em,
		interval: interval,
	}
}

// Toggle starts the tick chain on playing and cancels it on none, paused or stopped.
// Other states leave the timer unchanged.
func (t *Timer) Toggle(state playback.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	switch {
	case state == playback.StatePlaying:
		if t.chain != nil {
			return
		}
		c := &chain{start: t.clock.Now().Unix()}
		t.chain = c
		t.fireLocked(c)
	case state.IsStopClass():
		t.cancelLocked()
	}
}

// State returns the current timer state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.chain == nil {
		return StateIdle
	}
	return StateRunning
}

// Close cancels the tick chain and disables the timer.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	t.closed = true
}

func (t *Timer) run(c *chain) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Cancelled after the callback was dequeued
	if t.chain != c {
		return
	}
	t.fireLocked(c)
}

// fireLocked schedules the next firing, then emits the tick.
// Must be called with lock held.
func (t *Timer) fireLocked(c *chain) {
	elapsed := t.clock.Now().Unix() - c.start

	token, err := t.sched.PostDelayed(t.interval, func() { t.run(c) })
	if err != nil {
		zlog.Debug().Msgf("ticker: cannot schedule next tick: %v", err)
		t.chain = nil
		return
	}
	c.token = token

	t.emitter.Emit(emitter.EventPlaybackTimerTick, map[string]any{"time": elapsed})
}

func (t *Timer) cancelLocked() {
	if t.chain == nil {
		return
	}
	t.sched.RemoveCallbacks(t.chain.token)
	t.chain = nil
}
