package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = time.Second

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("callback did not run")
		return ""
	}
}

func TestHandler_PostRunsImmediately(t *testing.T) {
	h := New(clockwork.NewFakeClock())
	defer h.Close()

	ran := make(chan string, 1)
	_, err := h.Post(func() { ran <- "post" })
	require.NoError(t, err)

	assert.Equal(t, "post", waitFor(t, ran))
}

func TestHandler_PostDelayedRunsAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := New(clock)
	defer h.Close()

	ran := make(chan string, 1)
	_, err := h.PostDelayed(time.Second, func() { ran <- "delayed" })
	require.NoError(t, err)
	assert.Equal(t, 1, h.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(999 * time.Millisecond)
	select {
	case <-ran:
		t.Fatal("callback ran before its delay")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	assert.Equal(t, "delayed", waitFor(t, ran))
	assert.Equal(t, 0, h.Pending())
}

func TestHandler_CallbacksRunInFiringOrder(t *testing.T) {
	t.Run("immediate", func(t *testing.T) {
		h := New(clockwork.NewFakeClock())
		defer h.Close()

		ran := make(chan string, 3)
		for _, name := range []string{"a", "b", "c"} {
			name := name
			_, err := h.Post(func() { ran <- name })
			require.NoError(t, err)
		}

		assert.Equal(t, "a", waitFor(t, ran))
		assert.Equal(t, "b", waitFor(t, ran))
		assert.Equal(t, "c", waitFor(t, ran))
	})

	t.Run("delayed due together", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		h := New(clock)
		defer h.Close()

		ran := make(chan string, 3)
		for _, p := range []struct {
			name  string
			delay time.Duration
		}{
			{name: "third", delay: 3 * time.Second},
			{name: "first", delay: time.Second},
			{name: "second", delay: 2 * time.Second},
		} {
			p := p
			_, err := h.PostDelayed(p.delay, func() { ran <- p.name })
			require.NoError(t, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		require.NoError(t, clock.BlockUntilContext(ctx, 3))

		clock.Advance(3 * time.Second)
		assert.Equal(t, "first", waitFor(t, ran))
		assert.Equal(t, "second", waitFor(t, ran))
		assert.Equal(t, "third", waitFor(t, ran))
	})

	t.Run("delayed on real clock", func(t *testing.T) {
		h := New(clockwork.NewRealClock())
		defer h.Close()

		for i := 0; i < 50; i++ {
			ran := make(chan string, 2)
			_, err := h.PostDelayed(10*time.Millisecond, func() { ran <- "later" })
			require.NoError(t, err)
			_, err = h.PostDelayed(time.Millisecond, func() { ran <- "sooner" })
			require.NoError(t, err)

			require.Equal(t, "sooner", waitFor(t, ran), "iteration %d", i)
			require.Equal(t, "later", waitFor(t, ran), "iteration %d", i)
		}
	})
}

func TestHandler_RemoveCallbacks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := New(clock)
	defer h.Close()

	ran := make(chan string, 2)
	token, err := h.PostDelayed(time.Second, func() { ran <- "cancelled" })
	require.NoError(t, err)

	assert.True(t, h.RemoveCallbacks(token))
	assert.False(t, h.RemoveCallbacks(token), "second removal reports nothing to remove")

	clock.Advance(2 * time.Second)
	_, err = h.Post(func() { ran <- "marker" })
	require.NoError(t, err)

	assert.Equal(t, "marker", waitFor(t, ran))
	assert.Equal(t, 0, h.Pending())
}

func TestHandler_RemoveAll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := New(clock)
	defer h.Close()

	ran := make(chan string, 3)
	for i := 0; i < 2; i++ {
		_, err := h.PostDelayed(time.Second, func() { ran <- "cancelled" })
		require.NoError(t, err)
	}
	h.RemoveAll()
	assert.Equal(t, 0, h.Pending())

	clock.Advance(time.Second)
	_, err := h.Post(func() { ran <- "marker" })
	require.NoError(t, err)
	assert.Equal(t, "marker", waitFor(t, ran))
}

func TestHandler_PanicDoesNotStopLoop(t *testing.T) {
	h := New(clockwork.NewFakeClock())
	defer h.Close()

	ran := make(chan string, 1)
	_, err := h.Post(func() { panic("boom") })
	require.NoError(t, err)
	_, err = h.Post(func() { ran <- "after panic" })
	require.NoError(t, err)

	assert.Equal(t, "after panic", waitFor(t, ran))
}

func TestHandler_Close(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := New(clock)

	ran := make(chan string, 1)
	_, err := h.PostDelayed(time.Second, func() { ran <- "cancelled" })
	require.NoError(t, err)

	h.Close()
	h.Close()

	_, err = h.Post(func() {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, h.Pending())

	clock.Advance(time.Second)
	select {
	case <-ran:
		t.Fatal("callback ran after Close")
	case <-time.After(20 * time.Millisecond):
	}
}
