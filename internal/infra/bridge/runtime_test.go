package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackd/internal/app/service"
)

func blockingTask(started chan<- struct{}) Task {
	return func(ctx context.Context) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
}

func TestRuntime_UIAttachment(t *testing.T) {
	r := New()
	assert.False(t, r.HasAttachedUI())

	first := r.AttachUI()
	second := r.AttachUI()
	assert.NotEqual(t, first, second)
	assert.True(t, r.HasAttachedUI())

	r.DetachUI(first)
	assert.True(t, r.HasAttachedUI())
	r.DetachUI(second)
	assert.False(t, r.HasAttachedUI())

	assert.NotPanics(t, func() { r.DetachUI("unknown") })
}

func TestRuntime_StartHeadlessTask(t *testing.T) {
	r := New()
	defer r.Close()

	started := make(chan struct{}, 1)
	r.Register("TrackPlayer", blockingTask(started))

	id, err := r.StartHeadlessTask(service.DefaultHeadlessTask)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	<-started
	assert.Equal(t, 1, r.RunningTasks())
}

func TestRuntime_StartUnknownTask(t *testing.T) {
	r := New()
	defer r.Close()

	_, err := r.StartHeadlessTask(service.HeadlessTaskConfig{Name: "missing"})
	assert.ErrorIs(t, err, ErrTaskNotRegistered)
}

func TestRuntime_ForegroundNotAllowed(t *testing.T) {
	r := New()
	defer r.Close()
	r.Register("task", func(ctx context.Context) error { return nil })
	r.AttachUI()

	_, err := r.StartHeadlessTask(service.HeadlessTaskConfig{Name: "task", AllowedInForeground: false})
	assert.ErrorIs(t, err, ErrForegroundNotAllowed)

	_, err = r.StartHeadlessTask(service.HeadlessTaskConfig{Name: "task", AllowedInForeground: true})
	assert.NoError(t, err)
}

func TestRuntime_RestartCancelsPreviousTask(t *testing.T) {
	r := New()
	defer r.Close()

	started := make(chan struct{}, 2)
	r.Register("TrackPlayer", blockingTask(started))

	var mu sync.Mutex
	var finished []int
	r.OnTaskFinished(func(id int) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, id)
	})

	first, err := r.StartHeadlessTask(service.DefaultHeadlessTask)
	require.NoError(t, err)
	<-started

	second, err := r.StartHeadlessTask(service.DefaultHeadlessTask)
	require.NoError(t, err)
	<-started

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 1 && finished[0] == first
	}, time.Second, 5*time.Millisecond)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, r.RunningTasks())
}

func TestRuntime_TaskTimeout(t *testing.T) {
	r := New()
	defer r.Close()

	started := make(chan struct{}, 1)
	r.Register("short", blockingTask(started))

	_, err := r.StartHeadlessTask(service.HeadlessTaskConfig{Name: "short", Timeout: 20 * time.Millisecond, AllowedInForeground: true})
	require.NoError(t, err)
	<-started

	assert.Eventually(t, func() bool {
		return r.RunningTasks() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRuntime_TaskFailureAndPanic(t *testing.T) {
	r := New()
	defer r.Close()

	done := make(chan int, 2)
	r.OnTaskFinished(func(id int) { done <- id })
	r.Register("fails", func(ctx context.Context) error { return errors.New("boom") })
	r.Register("panics", func(ctx context.Context) error { panic("boom") })

	_, err := r.StartHeadlessTask(service.HeadlessTaskConfig{Name: "fails", AllowedInForeground: true})
	require.NoError(t, err)
	_, err = r.StartHeadlessTask(service.HeadlessTaskConfig{Name: "panics", AllowedInForeground: true})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task did not finish")
		}
	}
	assert.Equal(t, 0, r.RunningTasks())
}

func TestRuntime_Close(t *testing.T) {
	r := New()

	started := make(chan struct{}, 1)
	r.Register("TrackPlayer", blockingTask(started))

	_, err := r.StartHeadlessTask(service.DefaultHeadlessTask)
	require.NoError(t, err)
	<-started

	r.Close()
	assert.Equal(t, 0, r.RunningTasks())

	_, err = r.StartHeadlessTask(service.DefaultHeadlessTask)
	assert.ErrorIs(t, err, ErrClosed)
}
