// Package bridge provides the application runtime that observes the service:
// attached UI clients and headless tasks.
package bridge

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackd/internal/app/service"
)

// Errors
var (
	ErrTaskNotRegistered    = errors.New("headless task not registered")
	ErrForegroundNotAllowed = errors.New("headless task not allowed while a UI is attached")
	ErrClosed               = errors.New("bridge is closed")
)

// Task is a headless task body. It runs until ctx is done or it returns.
type Task func(ctx context.Context) error

type runningTask struct {
	id     int
	name   string
	cancel context.CancelFunc
}

// Runtime is the bridge between the service and its clients.
type Runtime struct {
	mu       sync.Mutex
	uis      map[string]struct{}
	tasks    map[string]Task
	running  map[int]*runningTask
	nextID   int
	onFinish func(taskID int)
	closed   bool

	wg sync.WaitGroup
}

// New creates an empty runtime.
func New() *Runtime {
	return &Runtime{
		uis:     make(map[string]struct{}),
		tasks:   make(map[string]Task),
		running: make(map[int]*runningTask),
	}
}

// AttachUI registers an attached UI and returns its attachment ID.
func (r *Runtime) AttachUI() string {
	id := uuid.New().String()

	r.mu.Lock()
	r.uis[id] = struct{}{}
	count := len(r.uis)
	r.mu.Unlock()

	zlog.Debug().Msgf("bridge: UI attached: id=%s count=%d", id, count)
	return id
}

// DetachUI removes an attached UI.
func (r *Runtime) DetachUI(id string) {
	r.mu.Lock()
	delete(r.uis, id)
	count := len(r.uis)
	r.mu.Unlock()

	zlog.Debug().Msgf("bridge: UI detached: id=%s count=%d", id, count)
}

// HasAttachedUI returns true if at least one UI is attached.
func (r *Runtime) HasAttachedUI() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uis) > 0
}

// Register registers a headless task body under name.
func (r *Runtime) Register(name string, task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = task
}

// OnTaskFinished sets the callback invoked after a task returns.
func (r *Runtime) OnTaskFinished(fn func(taskID int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinish = fn
}

// StartHeadlessTask starts the task registered under cfg.Name.
// A running task with the same name is cancelled first.
func (r *Runtime) StartHeadlessTask(cfg service.HeadlessTaskConfig) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}
	task, ok := r.tasks[cfg.Name]
	if !ok {
		return 0, errors.Wrapf(ErrTaskNotRegistered, "name=%s", cfg.Name)
	}
	if !cfg.AllowedInForeground && len(r.uis) > 0 {
		return 0, ErrForegroundNotAllowed
	}

	for _, rt := range r.running {
		if rt.name == cfg.Name {
			rt.cancel()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.Timeout)
		parent := cancel
		cancel = func() {
			timeoutCancel()
			parent()
		}
	}

	r.nextID++
	rt := &runningTask{id: r.nextID, name: cfg.Name, cancel: cancel}
	r.running[rt.id] = rt

	r.wg.Add(1)
	go r.run(ctx, rt, task)

	return rt.id, nil
}

func (r *Runtime) run(ctx context.Context, rt *runningTask, task Task) {
	defer r.wg.Done()

	err := r.invoke(ctx, task)
	rt.cancel()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		zlog.Debug().Msgf("bridge: headless task returned: name=%s task_id=%d", rt.name, rt.id)
	case errors.Is(err, context.DeadlineExceeded):
		zlog.Warn().Msgf("bridge: headless task timed out: name=%s task_id=%d", rt.name, rt.id)
	default:
		zlog.Error().Msgf("bridge: headless task failed: name=%s task_id=%d error=%v", rt.name, rt.id, err)
	}

	r.mu.Lock()
	delete(r.running, rt.id)
	onFinish := r.onFinish
	r.mu.Unlock()

	if onFinish != nil {
		onFinish(rt.id)
	}
}

func (r *Runtime) invoke(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf("headless task panicked: %v", rec)
		}
	}()
	return task(ctx)
}

// RunningTasks returns the number of running tasks.
func (r *Runtime) RunningTasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Close cancels every running task and waits for them to return.
func (r *Runtime) Close() {
	r.mu.Lock()
	r.closed = true
	for _, rt := range r.running {
		rt.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
}
