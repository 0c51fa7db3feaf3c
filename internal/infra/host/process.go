// Package host provides the process-level host the service runs in.
package host

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackd/internal/app/admission"
)

// ErrShuttingDown is returned when promoting a process that is shutting down.
var ErrShuttingDown = errors.New("process is shutting down")

// Destroyer is the service torn down when the process stops it.
type Destroyer interface {
	Destroy()
}

// Process tracks the foreground status of the daemon and stops the service on request.
type Process struct {
	mu           sync.Mutex
	svc          Destroyer
	foreground   bool
	notification *admission.Notification
	closed       bool

	stops chan struct{}
	wg    sync.WaitGroup
}

// NewProcess creates a background process.
func NewProcess() *Process {
	return &Process{
		stops: make(chan struct{}, 1),
	}
}

// SetService sets the service stopped by StopSelf.
func (p *Process) SetService(svc Destroyer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.svc = svc
}

// StartForeground promotes the process and shows n.
func (p *Process) StartForeground(n admission.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrShuttingDown
	}
	p.foreground = true
	p.notification = &n

	zlog.Debug().Msgf("host: foreground started: notification_id=%d channel=%s", n.ID, n.ChannelID)
	return nil
}

// StopSelf demotes the process and destroys the service asynchronously.
func (p *Process) StopSelf() {
	p.mu.Lock()
	p.foreground = false
	p.notification = nil
	svc := p.svc
	p.mu.Unlock()

	if svc != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			svc.Destroy()
		}()
	}

	select {
	case p.stops <- struct{}{}:
	default:
	}
	zlog.Info().Msg("host: service stop requested")
}

// Stops returns a channel that receives after each StopSelf.
func (p *Process) Stops() <-chan struct{} {
	return p.stops
}

// Foreground returns true if the process is in the foreground.
func (p *Process) Foreground() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.foreground
}

// Notification returns the notification shown while in the foreground.
func (p *Process) Notification() (admission.Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.notification == nil {
		return admission.Notification{}, false
	}
	return *p.notification, true
}

// Close rejects further promotions and waits for pending stops.
func (p *Process) Close() {
	p.mu.Lock()
	p.closed = true
	p.foreground = false
	p.notification = nil
	p.mu.Unlock()

	p.wg.Wait()
}
