// Package music provides the playback manager driven by the service.
package music

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackd/internal/app/emitter"
	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/domain/intent"
	"github.com/osa030/trackd/internal/domain/track"
)

// DefaultJumpInterval is the jump interval reported with jump events.
const DefaultJumpInterval = 15 * time.Second

// Player plays a queue of tracks and reports its transitions.
type Player interface {
	Play() error
	Pause() error
	Stop() error
	Skip() error
	Previous() error
	Enqueue(tracks ...track.Track) error
	State() playback.State
	Current() (*track.Track, bool)
	Events() <-chan playback.Event
	Close()
}

// Host is the service the manager reports to.
type Host interface {
	Emit(event string, data map[string]any)
	ToggleTimerTick(state playback.State)
}

// Options holds the client-adjustable manager options.
type Options struct {
	StopWithApp  bool          // Stop playback when the host application task is removed
	JumpInterval time.Duration // Interval reported with jump events
}

// Manager owns a player and its media session.
type Manager struct {
	mu sync.RWMutex

	host    Host
	player  Player
	session *Session
	options Options

	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	destroyOnce sync.Once
}

// NewManager creates a manager and starts consuming player events.
func NewManager(host Host, player Player, options Options) *Manager {
	if options.JumpInterval <= 0 {
		options.JumpInterval = DefaultJumpInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		host:    host,
		player:  player,
		session: newSession(host, options.JumpInterval),
		options: options,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go m.eventLoop()
	return m
}

// Session returns the media session.
func (m *Manager) Session() *Session {
	return m.session
}

// SessionActive returns true if the media session is active.
func (m *Manager) SessionActive() bool {
	return m.session.IsActive()
}

// HandleMediaButton forwards a media-button intent to the media session.
func (m *Manager) HandleMediaButton(ctx context.Context, in intent.Intent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.session.HandleIntent(in)
}

// StopPlayback stops the player.
func (m *Manager) StopPlayback() error {
	return m.player.Stop()
}

// ShouldStopWithApp reports whether playback stops with the host application task.
func (m *Manager) ShouldStopWithApp() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.options.StopWithApp
}

// Options returns the current options.
func (m *Manager) Options() Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.options
}

// UpdateOptions replaces the options. A zero jump interval keeps the current one.
func (m *Manager) UpdateOptions(options Options) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if options.JumpInterval <= 0 {
		options.JumpInterval = m.options.JumpInterval
	}
	m.options = options
	m.session.setJumpInterval(options.JumpInterval)

	zlog.Info().Msgf("music: options updated: stop_with_app=%v jump_interval=%v", options.StopWithApp, options.JumpInterval)
}

// Add appends tracks to the player queue.
func (m *Manager) Add(tracks ...track.Track) error {
	return m.player.Enqueue(tracks...)
}

// Play starts or resumes playback.
func (m *Manager) Play() error {
	return m.player.Play()
}

// Pause pauses playback.
func (m *Manager) Pause() error {
	return m.player.Pause()
}

// Stop stops playback.
func (m *Manager) Stop() error {
	return m.player.Stop()
}

// Skip plays the next track.
func (m *Manager) Skip() error {
	return m.player.Skip()
}

// Previous plays the previous track.
func (m *Manager) Previous() error {
	return m.player.Previous()
}

// State returns the player state.
func (m *Manager) State() playback.State {
	return m.player.State()
}

// Current returns the current track.
func (m *Manager) Current() (*track.Track, bool) {
	return m.player.Current()
}

// Destroy closes the player and waits for the event loop to exit.
func (m *Manager) Destroy() {
	m.destroyOnce.Do(func() {
		m.cancel()
		m.player.Close()
		<-m.done
		m.session.update(playback.StateNone)
		zlog.Info().Msg("music: manager destroyed")
	})
}

func (m *Manager) eventLoop() {
	defer close(m.done)

	for !m.consumeEvents() {
		zlog.Info().Msg("music: restarting event loop")
	}
}

// consumeEvents returns true when the loop should exit.
func (m *Manager) consumeEvents() (exit bool) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("music: event loop panicked: %v", r)
			exit = false
		}
	}()

	events := m.player.Events()
	for {
		select {
		case <-m.ctx.Done():
			return true
		case event, ok := <-events:
			if !ok {
				return true
			}
			m.handleEvent(event)
		}
	}
}

func (m *Manager) handleEvent(event playback.Event) {
	zlog.Debug().Msgf("music: playback event: type=%s state=%s", event.Type, event.State)

	switch event.Type {
	case playback.EventStateChanged:
		m.session.update(event.State)
		m.host.ToggleTimerTick(event.State)
		m.host.Emit(emitter.EventPlaybackState, map[string]any{
			"state": event.State.String(),
		})

	case playback.EventTrackChanged:
		m.host.Emit(emitter.EventPlaybackTrackChanged, trackPayload(event))

	case playback.EventQueueEnded:
		m.host.Emit(emitter.EventPlaybackQueueEnded, trackPayload(event))

	case playback.EventError:
		message := "unknown error"
		if event.Err != nil {
			message = event.Err.Error()
		}
		zlog.Error().Msgf("music: player error: %s", message)
		m.host.Emit(emitter.EventPlaybackError, map[string]any{
			"message": message,
		})
	}
}

func trackPayload(event playback.Event) map[string]any {
	data := map[string]any{
		"position": event.Position.Seconds(),
	}
	if event.Track != nil {
		data["track"] = event.Track.Payload()
	}
	return data
}
