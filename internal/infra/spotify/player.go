package spotify

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/domain/track"
)

const defaultRequestTimeout = 10 * time.Second

// Remote is a device that plays tracks.
type Remote interface {
	PlayTrack(ctx context.Context, t track.Track) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
}

// PlayerConfig holds remote player configuration.
type PlayerConfig struct {
	Clock          clockwork.Clock // Clock driving track end timers (real clock if nil)
	RequestTimeout time.Duration   // Timeout for a single device call
	EventBuffer    int             // Size of the event channel buffer
}

// Player keeps the queue locally and mirrors every transition to a remote
// device. The state is buffering while a device call is in flight.
type Player struct {
	*playback.Controller

	remote  Remote
	timeout time.Duration

	mu            sync.RWMutex
	buffering     bool
	remotePlaying bool
	trackStarted  bool // The next playing transition belongs to a track change

	events chan playback.Event
	done   chan struct{}
}

// NewPlayer creates a remote player.
func NewPlayer(remote Remote, config PlayerConfig) *Player {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = 16
	}

	p := &Player{
		Controller: playback.NewController(playback.Config{
			Clock:       config.Clock,
			EventBuffer: buffer,
		}),
		remote:  remote,
		timeout: timeout,
		events:  make(chan playback.Event, buffer),
		done:    make(chan struct{}),
	}

	go p.mirror()
	return p
}

// Events returns the event channel. It is closed by Close.
func (p *Player) Events() <-chan playback.Event {
	return p.events
}

// State returns the playback state, buffering while a device call is in flight.
func (p *Player) State() playback.State {
	p.mu.RLock()
	buffering := p.buffering
	p.mu.RUnlock()

	if buffering {
		return playback.StateBuffering
	}
	return p.Controller.State()
}

// Close stops the local queue and waits for pending device calls.
func (p *Player) Close() {
	p.Controller.Close()
	<-p.done
}

func (p *Player) mirror() {
	defer close(p.done)
	defer close(p.events)

	for event := range p.Controller.Events() {
		switch event.Type {
		case playback.EventTrackChanged:
			p.forward(event)
			p.startTrack(event)

		case playback.EventStateChanged:
			p.applyState(event)
			p.forward(event)

		default:
			p.forward(event)
		}
	}
}

func (p *Player) startTrack(event playback.Event) {
	if event.Track == nil {
		return
	}

	p.setBuffering(true)
	p.forward(playback.Event{
		Type:  playback.EventStateChanged,
		State: playback.StateBuffering,
		Track: event.Track,
	})

	err := p.call(func(ctx context.Context) error {
		return p.remote.PlayTrack(ctx, *event.Track)
	})
	p.setBuffering(false)

	p.mu.Lock()
	p.trackStarted = true
	p.remotePlaying = err == nil
	p.mu.Unlock()

	if err != nil {
		p.fail(err)
	}
}

func (p *Player) applyState(event playback.Event) {
	p.mu.Lock()
	trackStarted := p.trackStarted
	remotePlaying := p.remotePlaying
	p.trackStarted = false
	p.mu.Unlock()

	var err error
	switch event.State {
	case playback.StatePlaying:
		if trackStarted {
			return
		}
		err = p.call(p.remote.Resume)
		if err == nil {
			p.setRemotePlaying(true)
		}
	case playback.StatePaused, playback.StateStopped, playback.StateNone:
		if !remotePlaying {
			return
		}
		err = p.call(p.remote.Pause)
		if err == nil {
			p.setRemotePlaying(false)
		}
	}

	if err != nil {
		p.fail(err)
	}
}

// fail reports err and stops the local queue so it does not run ahead of the device.
func (p *Player) fail(err error) {
	zlog.Error().Msgf("spotify: device call failed: %v", err)
	p.forward(playback.Event{
		Type: playback.EventError,
		Err:  err,
	})
	if stopErr := p.Controller.Stop(); stopErr != nil {
		zlog.Debug().Msgf("spotify: stop after failure: %v", stopErr)
	}
}

func (p *Player) call(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return fn(ctx)
}

func (p *Player) setBuffering(b bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffering = b
}

func (p *Player) setRemotePlaying(b bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remotePlaying = b
}

func (p *Player) forward(event playback.Event) {
	select {
	case p.events <- event:
	default:
		zlog.Warn().Msgf("spotify: event channel full, dropping event: type=%s", event.Type)
	}
}
