// Package scheduler provides a single-goroutine delayed callback queue.
package scheduler

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"
)

// ErrClosed is returned when posting to a closed handler.
var ErrClosed = errors.New("handler is closed")

// Token identifies a posted callback.
type Token uint64

type job struct {
	token Token
	due   time.Time
	fn    func()
}

// entry is a callback that has not run yet.
type entry struct {
	job
	timer  clockwork.Timer // nil for immediate posts
	queued bool            // Moved to the ready queue
}

// Handler runs posted callbacks one at a time, in firing order, on its own goroutine.
type Handler struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	next    Token
	pending map[Token]*entry
	ready   []job // Ordered by due time, then token
	closed  bool

	notify chan struct{}
	done   chan struct{}
}

// New creates a handler and starts its loop.
func New(clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &Handler{
		clock:   clock,
		pending: make(map[Token]*entry),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

// Post queues fn to run as soon as possible.
func (h *Handler) Post(fn func()) (Token, error) {
	return h.PostDelayed(0, fn)
}

// PostDelayed queues fn to run after d.
func (h *Handler) PostDelayed(d time.Duration, fn func()) (Token, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}

	h.next++
	token := h.next
	e := &entry{job: job{token: token, due: h.clock.Now().Add(max(d, 0)), fn: fn}}
	h.pending[token] = e

	if d <= 0 {
		h.enqueueLocked(e)
		return token, nil
	}

	// The clock may run the callback while holding its own lock
	e.timer = h.clock.AfterFunc(d, func() {
		go h.fire(token)
	})
	return token, nil
}

// fire moves every delayed callback that is due, not just token, to the
// ready queue. A late fire goroutine for an earlier callback then finds it
// already queued ahead of the later one.
func (h *Handler) fire(token Token) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.pending[token]
	if !ok || e.queued {
		return
	}

	now := h.clock.Now()
	due := []*entry{e}
	for _, other := range h.pending {
		if other == e || other.queued || other.due.After(now) {
			continue
		}
		due = append(due, other)
	}
	for _, d := range due {
		if d.timer != nil {
			d.timer.Stop()
		}
		h.enqueueLocked(d)
	}
}

// RemoveCallbacks cancels a posted callback. It returns false if the callback
// already ran or was never posted.
func (h *Handler) RemoveCallbacks(token Token) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.pending[token]
	if !ok {
		return false
	}
	delete(h.pending, token)
	if e.timer != nil {
		e.timer.Stop()
	}
	return true
}

// RemoveAll cancels every posted callback.
func (h *Handler) RemoveAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeAllLocked()
}

// Pending returns the number of callbacks that have not run yet.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Close cancels every posted callback and stops the loop.
// A callback that is already running is allowed to finish.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.removeAllLocked()
	close(h.done)
}

func (h *Handler) removeAllLocked() {
	for token, e := range h.pending {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(h.pending, token)
	}
	h.ready = nil
}

func (h *Handler) enqueueLocked(e *entry) {
	e.queued = true
	i, _ := slices.BinarySearchFunc(h.ready, e.job, compareJobs)
	h.ready = slices.Insert(h.ready, i, e.job)
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func compareJobs(a, b job) int {
	if c := a.due.Compare(b.due); c != 0 {
		return c
	}
	return cmp.Compare(a.token, b.token)
}

func (h *Handler) loop() {
	for {
		select {
		case <-h.done:
			return
		case <-h.notify:
		}

		for {
			fn, ok := h.dequeue()
			if !ok {
				break
			}
			h.invoke(fn)
		}
	}
}

// dequeue pops the next callback that is still pending.
func (h *Handler) dequeue() (func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for len(h.ready) > 0 {
		j := h.ready[0]
		h.ready = h.ready[1:]
		if _, ok := h.pending[j.token]; !ok {
			continue
		}
		delete(h.pending, j.token)
		return j.fn, true
	}
	return nil, false
}

func (h *Handler) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("scheduler: callback panicked: %v", r)
		}
	}()
	fn()
}
