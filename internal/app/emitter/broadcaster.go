// Package emitter provides the process-local event broadcaster.
package emitter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"
)

// DefaultBufferSize is the per-subscriber buffer used when none is configured.
const DefaultBufferSize = 32

// Event names emitted to bridge subscribers.
const (
	EventPlaybackTimerTick    = "playback-timer-tick"
	EventPlaybackState        = "playback-state"
	EventPlaybackTrackChanged = "playback-track-changed"
	EventPlaybackQueueEnded   = "playback-queue-ended"
	EventPlaybackError        = "playback-error"
	EventRemotePlay           = "remote-play"
	EventRemotePause          = "remote-pause"
	EventRemoteStop           = "remote-stop"
	EventRemoteNext           = "remote-next"
	EventRemotePrevious       = "remote-previous"
	EventRemoteJumpForward    = "remote-jump-forward"
	EventRemoteJumpBackward   = "remote-jump-backward"
)

// Envelope is a single broadcast message.
type Envelope struct {
	Event      string
	Data       map[string]any // nil when the event carries no payload
	SequenceNo uint64
	Time       time.Time
}

// Subscription is a subscriber's receive side.
type Subscription struct {
	ID string
	C  <-chan Envelope

	ch      chan Envelope
	dropped atomic.Uint64
}

// Dropped returns how many envelopes were dropped because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Broadcaster fans out envelopes to every subscriber without blocking the caller.
type Broadcaster struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	sequenceNo    uint64
	bufferSize    int
	clock         clockwork.Clock
	closed        bool
}

// New creates a new broadcaster.
func New(bufferSize int, clock clockwork.Clock) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broadcaster{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    bufferSize,
		clock:         clock,
	}
}

// Subscribe registers a new subscriber.
// The returned channel is closed by Unsubscribe or Close.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, b.bufferSize)
	sub := &Subscription{
		ID: uuid.New().String(),
		C:  ch,
		ch: ch,
	}
	if b.closed {
		close(ch)
		return sub
	}
	b.subscriptions[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscriptions[id]
	if !ok {
		return
	}
	delete(b.subscriptions, id)
	close(sub.ch)
}

// Emit broadcasts an event with an optional payload.
// A subscriber whose buffer is full misses the envelope.
func (b *Broadcaster) Emit(event string, data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.sequenceNo++
	env := Envelope{
		Event:      event,
		Data:       data,
		SequenceNo: b.sequenceNo,
		Time:       b.clock.Now(),
	}

	for _, sub := range b.subscriptions {
		select {
		case sub.ch <- env:
		default:
			sub.dropped.Add(1)
			zlog.Debug().Msgf("emitter: dropped envelope: event=%s subscription=%s seq=%d", event, sub.ID, env.SequenceNo)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close closes every subscription. Emit is a no-op afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscriptions {
		close(sub.ch)
		delete(b.subscriptions, id)
	}
}
