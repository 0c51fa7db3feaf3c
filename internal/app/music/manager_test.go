package music

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackd/internal/app/emitter"
	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/domain/intent"
	"github.com/osa030/trackd/internal/domain/track"
)

type emitted struct {
	event string
	data  map[string]any
}

type recordingHost struct {
	mu      sync.Mutex
	events  []emitted
	toggles []playback.State
	panics  int // Number of Emit calls that panic
}

func (h *recordingHost) Emit(event string, data map[string]any) {
	h.mu.Lock()
	if h.panics > 0 {
		h.panics--
		h.mu.Unlock()
		panic("emit failed")
	}
	h.events = append(h.events, emitted{event: event, data: data})
	h.mu.Unlock()
}

func (h *recordingHost) ToggleTimerTick(state playback.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.toggles = append(h.toggles, state)
}

func (h *recordingHost) find(event string) (emitted, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e.event == event {
			return e, true
		}
	}
	return emitted{}, false
}

func (h *recordingHost) lastToggle() (playback.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.toggles) == 0 {
		return playback.StateNone, false
	}
	return h.toggles[len(h.toggles)-1], true
}

func testTracks() []track.Track {
	return []track.Track{
		{ID: "t1", Title: "First", Artists: []string{"A"}, Duration: 10 * time.Second},
		{ID: "t2", Title: "Second", Artists: []string{"B"}, Duration: 10 * time.Second},
	}
}

func newTestManager(t *testing.T, options Options) (*Manager, *recordingHost, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	host := &recordingHost{}
	player := playback.NewController(playback.Config{Clock: clock})
	m := NewManager(host, player, options)
	t.Cleanup(m.Destroy)
	return m, host, clock
}

func waitForToggle(t *testing.T, host *recordingHost, want playback.State) {
	t.Helper()
	assert.Eventually(t, func() bool {
		state, ok := host.lastToggle()
		return ok && state == want
	}, time.Second, 5*time.Millisecond, "timer toggle %s", want)
}

func TestManager_PlayReportsState(t *testing.T) {
	m, host, _ := newTestManager(t, Options{})

	require.NoError(t, m.Add(testTracks()...))
	require.NoError(t, m.Play())

	waitForToggle(t, host, playback.StatePlaying)
	assert.True(t, m.SessionActive())

	state, ok := host.find(emitter.EventPlaybackState)
	require.True(t, ok)
	assert.Equal(t, "playing", state.data["state"])

	changed, ok := host.find(emitter.EventPlaybackTrackChanged)
	require.True(t, ok)
	payload, ok := changed.data["track"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t1", payload["id"])
}

func TestManager_PauseKeepsSessionActive(t *testing.T) {
	m, host, _ := newTestManager(t, Options{})

	require.NoError(t, m.Add(testTracks()...))
	require.NoError(t, m.Play())
	waitForToggle(t, host, playback.StatePlaying)

	require.NoError(t, m.Pause())
	waitForToggle(t, host, playback.StatePaused)
	assert.True(t, m.SessionActive())

	require.NoError(t, m.StopPlayback())
	waitForToggle(t, host, playback.StateStopped)
	assert.False(t, m.SessionActive())
}

func TestManager_QueueEnded(t *testing.T) {
	m, host, clock := newTestManager(t, Options{})

	require.NoError(t, m.Add(testTracks()[0]))
	require.NoError(t, m.Play())
	waitForToggle(t, host, playback.StatePlaying)

	clock.Advance(10 * time.Second)

	assert.Eventually(t, func() bool {
		_, ok := host.find(emitter.EventPlaybackQueueEnded)
		return ok
	}, time.Second, 5*time.Millisecond)
	waitForToggle(t, host, playback.StateStopped)
	assert.False(t, m.SessionActive())

	ended, _ := host.find(emitter.EventPlaybackQueueEnded)
	assert.Equal(t, float64(10), ended.data["position"])
}

func TestManager_Options(t *testing.T) {
	m, _, _ := newTestManager(t, Options{StopWithApp: true})

	assert.True(t, m.ShouldStopWithApp())
	assert.Equal(t, DefaultJumpInterval, m.Options().JumpInterval)

	m.UpdateOptions(Options{StopWithApp: false, JumpInterval: 30 * time.Second})
	assert.False(t, m.ShouldStopWithApp())
	assert.Equal(t, 30*time.Second, m.Options().JumpInterval)

	m.UpdateOptions(Options{StopWithApp: true})
	assert.Equal(t, 30*time.Second, m.Options().JumpInterval)
}

func TestManager_HandleMediaButton(t *testing.T) {
	m, host, _ := newTestManager(t, Options{JumpInterval: 10 * time.Second})

	require.NoError(t, m.HandleMediaButton(context.Background(), intent.NewMediaButton(intent.KeyFastForward)))

	e, ok := host.find(emitter.EventRemoteJumpForward)
	require.True(t, ok)
	assert.Equal(t, float64(10), e.data["interval"])
}

func TestManager_HandleMediaButtonCancelled(t *testing.T) {
	m, host, _ := newTestManager(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.HandleMediaButton(ctx, intent.NewMediaButton(intent.KeyPlay))
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := host.find(emitter.EventRemotePlay)
	assert.False(t, ok)
}

func TestManager_DestroyIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})

	assert.NotPanics(t, func() {
		m.Destroy()
		m.Destroy()
	})
	assert.ErrorIs(t, m.Play(), playback.ErrClosed)
	assert.False(t, m.SessionActive())
}

func TestManager_RecoversFromHostPanic(t *testing.T) {
	clock := clockwork.NewFakeClock()
	host := &recordingHost{panics: 1}
	m := NewManager(host, playback.NewController(playback.Config{Clock: clock}), Options{})
	defer m.Destroy()

	require.NoError(t, m.Add(testTracks()...))
	require.NoError(t, m.Play())

	waitForToggle(t, host, playback.StatePlaying)
}

func TestManager_ApplyRemote(t *testing.T) {
	m, host, _ := newTestManager(t, Options{})
	require.NoError(t, m.Add(testTracks()...))

	require.NoError(t, m.ApplyRemote(emitter.EventRemotePlay))
	waitForToggle(t, host, playback.StatePlaying)

	require.NoError(t, m.ApplyRemote(emitter.EventRemoteNext))
	current, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "t2", current.ID)

	require.NoError(t, m.ApplyRemote(emitter.EventRemotePrevious))
	current, ok = m.Current()
	require.True(t, ok)
	assert.Equal(t, "t1", current.ID)

	require.NoError(t, m.ApplyRemote(emitter.EventRemoteJumpForward))
	require.NoError(t, m.ApplyRemote(emitter.EventPlaybackTimerTick))

	require.NoError(t, m.ApplyRemote(emitter.EventRemotePause))
	waitForToggle(t, host, playback.StatePaused)

	require.NoError(t, m.ApplyRemote(emitter.EventRemoteStop))
	waitForToggle(t, host, playback.StateStopped)
}

func TestRemoteControl(t *testing.T) {
	m, host, _ := newTestManager(t, Options{})
	require.NoError(t, m.Add(testTracks()...))

	events := make(chan emitter.Envelope, 4)
	done := make(chan struct{})
	bound := false
	var mu sync.Mutex

	go func() {
		defer close(done)
		RemoteControl(context.Background(), events, func() (*Manager, bool) {
			mu.Lock()
			defer mu.Unlock()
			return m, bound
		})
	}()

	// Ignored while nothing is bound
	events <- emitter.Envelope{Event: emitter.EventRemotePlay}

	mu.Lock()
	bound = true
	mu.Unlock()

	events <- emitter.Envelope{Event: emitter.EventRemotePlay}
	waitForToggle(t, host, playback.StatePlaying)

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("remote control did not exit")
	}
}

func TestRemoteTask_AppliesEventsEmittedBeforeStart(t *testing.T) {
	m, host, _ := newTestManager(t, Options{})
	require.NoError(t, m.Add(testTracks()...))

	em := emitter.New(8, nil)
	defer em.Close()
	sub := em.Subscribe()

	task := RemoteTask(sub.C, func() (*Manager, bool) { return m, true })

	// Emitted before the task runs
	em.Emit(emitter.EventRemotePlay, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task(ctx) }()

	waitForToggle(t, host, playback.StatePlaying)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("remote task did not exit")
	}
}
