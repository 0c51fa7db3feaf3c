package ticker

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackd/internal/app/emitter"
	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/app/scheduler"
)

type fixture struct {
	clock   *clockwork.FakeClock
	handler *scheduler.Handler
	sub     *emitter.Subscription
	timer   *Timer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	handler := scheduler.New(clock)
	em := emitter.New(64, clock)
	t.Cleanup(func() {
		handler.Close()
		em.Close()
	})
	return &fixture{
		clock:   clock,
		handler: handler,
		sub:     em.Subscribe(),
		timer:   New(clock, handler, em, time.Second),
	}
}

func (f *fixture) nextTick(t *testing.T) int64 {
	t.Helper()
	select {
	case env := <-f.sub.C:
		require.Equal(t, emitter.EventPlaybackTimerTick, env.Event)
		elapsed, ok := env.Data["time"].(int64)
		require.True(t, ok, "tick payload should carry int64 seconds")
		return elapsed
	case <-time.After(time.Second):
		t.Fatal("no tick emitted")
		return -1
	}
}

func (f *fixture) assertNoTick(t *testing.T) {
	t.Helper()
	select {
	case env := <-f.sub.C:
		t.Fatalf("unexpected event: %s %v", env.Event, env.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer_PlayingEmitsImmediateTick(t *testing.T) {
	f := newFixture(t)

	f.timer.Toggle(playback.StatePlaying)

	assert.Equal(t, int64(0), f.nextTick(t))
	assert.Equal(t, StateRunning, f.timer.State())
	assert.Equal(t, 1, f.handler.Pending())
}

func TestTimer_SecondPlayingDoesNotStartSecondChain(t *testing.T) {
	f := newFixture(t)

	f.timer.Toggle(playback.StatePlaying)
	f.nextTick(t)
	f.timer.Toggle(playback.StatePlaying)

	assert.Equal(t, 1, f.handler.Pending())
	f.assertNoTick(t)
}

func TestTimer_ConcurrentPlayingCreatesOneChain(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.timer.Toggle(playback.StatePlaying)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), f.nextTick(t))
	assert.Equal(t, 1, f.handler.Pending())
	f.assertNoTick(t)
}

func TestTimer_ElapsedMatchesFiringCount(t *testing.T) {
	f := newFixture(t)

	f.timer.Toggle(playback.StatePlaying)
	require.Equal(t, int64(0), f.nextTick(t))

	for i := int64(1); i <= 5; i++ {
		f.clock.Advance(time.Second)
		assert.Equal(t, i, f.nextTick(t))
	}
	assert.Equal(t, 1, f.handler.Pending())
}

func TestTimer_StopClassCancelsChain(t *testing.T) {
	for _, state := range []playback.State{playback.StateNone, playback.StatePaused, playback.StateStopped} {
		t.Run(state.String(), func(t *testing.T) {
			f := newFixture(t)

			f.timer.Toggle(playback.StatePlaying)
			f.nextTick(t)
			f.clock.Advance(time.Second)
			f.nextTick(t)

			f.timer.Toggle(state)

			assert.Equal(t, StateIdle, f.timer.State())
			assert.Equal(t, 0, f.handler.Pending())

			f.clock.Advance(5 * time.Second)
			f.assertNoTick(t)
		})
	}
}

func TestTimer_StopClassWhileIdleIsNoop(t *testing.T) {
	f := newFixture(t)

	assert.NotPanics(t, func() {
		f.timer.Toggle(playback.StatePaused)
		f.timer.Toggle(playback.StateStopped)
		f.timer.Toggle(playback.StateNone)
	})
	assert.Equal(t, StateIdle, f.timer.State())
	f.assertNoTick(t)
}

func TestTimer_BufferingLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)

	f.timer.Toggle(playback.StateBuffering)
	assert.Equal(t, StateIdle, f.timer.State())

	f.timer.Toggle(playback.StatePlaying)
	f.nextTick(t)
	f.timer.Toggle(playback.StateBuffering)
	assert.Equal(t, StateRunning, f.timer.State())
}

func TestTimer_RestartCapturesFreshStart(t *testing.T) {
	f := newFixture(t)

	f.timer.Toggle(playback.StatePlaying)
	f.nextTick(t)
	f.clock.Advance(time.Second)
	f.nextTick(t)

	f.timer.Toggle(playback.StatePaused)
	f.clock.Advance(10 * time.Second)

	f.timer.Toggle(playback.StatePlaying)
	assert.Equal(t, int64(0), f.nextTick(t))
	f.clock.Advance(time.Second)
	assert.Equal(t, int64(1), f.nextTick(t))
}

func TestTimer_CloseDisablesToggle(t *testing.T) {
	f := newFixture(t)

	f.timer.Toggle(playback.StatePlaying)
	f.nextTick(t)

	f.timer.Close()
	assert.Equal(t, 0, f.handler.Pending())

	f.timer.Toggle(playback.StatePlaying)
	f.clock.Advance(time.Second)
	f.assertNoTick(t)
	assert.Equal(t, StateIdle, f.timer.State())
}

func TestTimer_ClosedSchedulerEmitsNothing(t *testing.T) {
	f := newFixture(t)
	f.handler.Close()

	f.timer.Toggle(playback.StatePlaying)

	f.assertNoTick(t)
	assert.Equal(t, StateIdle, f.timer.State())
}

// capturingScheduler hands posted callbacks to the test instead of running them.
type capturingScheduler struct {
	mu    sync.Mutex
	next  scheduler.Token
	posts []func()
}

func (s *capturingScheduler) PostDelayed(_ time.Duration, fn func()) (scheduler.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.posts = append(s.posts, fn)
	return s.next, nil
}

func (s *capturingScheduler) RemoveCallbacks(scheduler.Token) bool {
	return true
}

func (s *capturingScheduler) last() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[len(s.posts)-1]
}

type countingEmitter struct {
	mu    sync.Mutex
	count int
}

func (e *countingEmitter) Emit(string, map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count++
}

func (e *countingEmitter) emits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func TestTimer_FiringDequeuedBeforeCancelDoesNotEmit(t *testing.T) {
	sched := &capturingScheduler{}
	em := &countingEmitter{}
	timer := New(clockwork.NewFakeClock(), sched, em, time.Second)

	timer.Toggle(playback.StatePlaying)
	require.Equal(t, 1, em.emits(), "initial tick")
	pending := sched.last()

	timer.Toggle(playback.StatePaused)
	pending()

	assert.Equal(t, 1, em.emits())
	assert.Equal(t, StateIdle, timer.State())
}
