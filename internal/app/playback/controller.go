package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackd/internal/domain/track"
)

// Errors
var (
	ErrNoTrack    = errors.New("no track loaded")
	ErrQueueEmpty = errors.New("queue is empty")
	ErrNotPlaying = errors.New("not playing")
	ErrNoPrevious = errors.New("no previous track")
	ErrClosed     = errors.New("player is closed")
)

const defaultEventBuffer = 16

// Config holds controller configuration.
type Config struct {
	Clock       clockwork.Clock // Clock driving track end timers (real clock if nil)
	EventBuffer int             // Size of the event channel buffer
}

// Controller is a local queue player. Track playback is simulated with timers
// on the configured clock.
type Controller struct {
	mu sync.RWMutex

	// Queue management
	queue  []track.Track // Tracks waiting to be played
	played []track.Track // Tracks that have been played (history)

	// Current track state
	current       *track.Track
	state         State
	startTime     time.Time
	pausedAt      *time.Time
	pausedElapsed time.Duration

	// Track end timer
	timerCancel func()
	timerGen    uint64

	clock   clockwork.Clock
	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewController creates a new playback controller.
func NewController(config Config) *Controller {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		queue:   make([]track.Track, 0),
		played:  make([]track.Track, 0),
		state:   StateNone,
		clock:   clock,
		eventCh: make(chan Event, buffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Play starts playback. A paused track resumes, a stopped track restarts
// from the beginning, otherwise the next queued track starts.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	switch c.state {
	case StatePlaying:
		return nil
	case StatePaused:
		return c.resumeLocked()
	}

	if c.current != nil {
		c.startTrackLocked(*c.current, 0)
		return nil
	}
	return c.playNextLocked(0)
}

// Pause pauses the current playback.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	if c.state != StatePlaying {
		return ErrNotPlaying
	}

	c.stopTimerLocked()

	now := c.clock.Now()
	c.pausedAt = &now
	c.state = StatePaused

	c.sendEventLocked(Event{
		Type:  EventStateChanged,
		Track: c.current,
		State: c.state,
	})
	return nil
}

func (c *Controller) resumeLocked() error {
	if c.current == nil {
		return ErrNoTrack
	}

	if c.pausedAt != nil {
		c.pausedElapsed += c.clock.Since(*c.pausedAt)
	}
	c.pausedAt = nil
	c.state = StatePlaying

	if c.current.Duration > 0 {
		remaining := c.current.Duration - c.positionLocked()
		if remaining <= 0 {
			c.onTrackEndLocked()
			return nil
		}
		c.startTrackTimer(remaining)
	}

	c.sendEventLocked(Event{
		Type:  EventStateChanged,
		Track: c.current,
		State: c.state,
	})
	return nil
}

// Stop stops playback and rewinds the current track.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNone || c.state == StateStopped {
		return nil
	}

	c.stopTimerLocked()
	c.state = StateStopped
	c.startTime = time.Time{}
	c.pausedAt = nil
	c.pausedElapsed = 0

	c.sendEventLocked(Event{
		Type:  EventStateChanged,
		Track: c.current,
		State: c.state,
	})
	return nil
}

// Skip skips the current track and plays the next one.
func (c *Controller) Skip() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoTrack
	}
	if len(c.queue) == 0 {
		return ErrQueueEmpty
	}

	position := c.positionLocked()
	c.stopTimerLocked()
	c.played = append(c.played, *c.current)
	return c.playNextLocked(position)
}

// Previous goes back to the last played track.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.played) == 0 {
		return ErrNoPrevious
	}

	var position time.Duration
	if c.current != nil {
		position = c.positionLocked()
		c.queue = append([]track.Track{*c.current}, c.queue...)
	}
	c.stopTimerLocked()

	prev := c.played[len(c.played)-1]
	c.played = c.played[:len(c.played)-1]
	c.startTrackLocked(prev, position)
	return nil
}

// Enqueue adds tracks to the end of the queue.
func (c *Controller) Enqueue(tracks ...track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.queue = append(c.queue, tracks...)
	return nil
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Current returns the current track.
func (c *Controller) Current() (*track.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return nil, false
	}
	t := *c.current
	return &t, true
}

// Position returns the playback position within the current track.
func (c *Controller) Position() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positionLocked()
}

func (c *Controller) positionLocked() time.Duration {
	if c.current == nil || c.startTime.IsZero() {
		return 0
	}

	end := c.clock.Now()
	if c.pausedAt != nil {
		end = *c.pausedAt
	}
	position := end.Sub(c.startTime) - c.pausedElapsed
	if position < 0 {
		return 0
	}
	return position
}

// Queue returns a copy of the queued tracks.
func (c *Controller) Queue() []track.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]track.Track, len(c.queue))
	copy(result, c.queue)
	return result
}

// Close stops playback and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.stopTimerLocked()
	c.current = nil
	c.state = StateNone
	close(c.eventCh)
}

// playNextLocked plays the next track from the queue.
// Must be called with lock held.
func (c *Controller) playNextLocked(previousPosition time.Duration) error {
	if len(c.queue) == 0 {
		return ErrQueueEmpty
	}

	next := c.queue[0]
	c.queue = c.queue[1:]
	c.startTrackLocked(next, previousPosition)
	return nil
}

// startTrackLocked makes t the current track and starts it from the beginning.
// Must be called with lock held.
func (c *Controller) startTrackLocked(t track.Track, previousPosition time.Duration) {
	c.stopTimerLocked()

	c.current = &t
	c.startTime = c.clock.Now()
	c.pausedAt = nil
	c.pausedElapsed = 0
	c.state = StatePlaying

	// Tracks without a known duration play until stopped
	if t.Duration > 0 {
		c.startTrackTimer(t.Duration)
	}

	zlog.Debug().Msgf("playback: track started: id=%s title=%s duration=%v", t.ID, t.Title, t.Duration)

	c.sendEventLocked(Event{
		Type:     EventTrackChanged,
		Track:    c.current,
		State:    c.state,
		Position: previousPosition,
	})
	c.sendEventLocked(Event{
		Type:  EventStateChanged,
		Track: c.current,
		State: c.state,
	})
}

// onTrackEnd is called when the current track ends.
func (c *Controller) onTrackEnd(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer timer replaced this one
	if gen != c.timerGen || c.closed {
		return
	}
	c.timerCancel = nil
	c.onTrackEndLocked()
}

func (c *Controller) onTrackEndLocked() {
	if c.current == nil {
		return
	}

	ended := *c.current
	c.played = append(c.played, ended)

	if len(c.queue) > 0 {
		_ = c.playNextLocked(ended.Duration)
		return
	}

	c.stopTimerLocked()
	c.current = nil
	c.state = StateStopped
	c.startTime = time.Time{}
	c.pausedAt = nil
	c.pausedElapsed = 0

	c.sendEventLocked(Event{
		Type:  EventStateChanged,
		State: c.state,
	})
	c.sendEventLocked(Event{
		Type:     EventQueueEnded,
		Track:    &ended,
		State:    c.state,
		Position: ended.Duration,
	})
}

// startTrackTimer starts the track end timer.
func (c *Controller) startTrackTimer(duration time.Duration) {
	c.stopTimerLocked()

	c.timerGen++
	gen := c.timerGen
	timer := c.clock.AfterFunc(duration, func() {
		go c.onTrackEnd(gen)
	})
	c.timerCancel = func() { timer.Stop() }
}

func (c *Controller) stopTimerLocked() {
	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
	}
	c.timerGen++
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		zlog.Warn().Msgf("playback: event channel full, dropping event: type=%s", e.Type)
	}
}
