package emitter

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_EmitDeliversToAllSubscribers(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	b := New(4, clock)

	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Emit(EventPlaybackState, map[string]any{"state": "playing"})

	for _, sub := range []*Subscription{first, second} {
		env := <-sub.C
		assert.Equal(t, EventPlaybackState, env.Event)
		assert.Equal(t, "playing", env.Data["state"])
		assert.Equal(t, uint64(1), env.SequenceNo)
		assert.Equal(t, clock.Now(), env.Time)
	}
}

func TestBroadcaster_EmitWithoutPayload(t *testing.T) {
	b := New(1, nil)
	sub := b.Subscribe()

	b.Emit(EventRemotePlay, nil)

	env := <-sub.C
	assert.Equal(t, EventRemotePlay, env.Event)
	assert.Nil(t, env.Data)
}

func TestBroadcaster_SequenceIncreases(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe()

	for i := 0; i < 3; i++ {
		b.Emit(EventPlaybackTimerTick, map[string]any{"time": int64(i)})
	}

	var last uint64
	for i := 0; i < 3; i++ {
		env := <-sub.C
		assert.Greater(t, env.SequenceNo, last)
		last = env.SequenceNo
	}
}

func TestBroadcaster_EmitNeverBlocksOnFullSubscriber(t *testing.T) {
	b := New(1, nil)
	slow := b.Subscribe()
	fast := b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Emit(EventPlaybackTimerTick, map[string]any{"time": int64(i)})
			<-fast.C
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}

	env := <-slow.C
	assert.Equal(t, uint64(1), env.SequenceNo, "slow subscriber keeps only the first envelope")
	assert.Equal(t, uint64(9), slow.Dropped())
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := New(1, nil)
	sub := b.Subscribe()

	b.Unsubscribe(sub.ID)
	b.Unsubscribe(sub.ID) // second call is a no-op

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, b.SubscriberCount())

	assert.NotPanics(t, func() { b.Emit(EventRemoteStop, nil) })
}

func TestBroadcaster_Close(t *testing.T) {
	b := New(1, nil)
	sub := b.Subscribe()

	b.Close()
	b.Close()

	_, ok := <-sub.C
	assert.False(t, ok)

	assert.NotPanics(t, func() { b.Emit(EventRemoteStop, nil) })

	late := b.Subscribe()
	_, ok = <-late.C
	require.False(t, ok, "subscriptions after Close are closed immediately")
}
