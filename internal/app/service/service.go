// Package service provides the background playback service lifecycle.
//
// The service owns a runtime (manager, callback handler and tick timer) that
// is created by a start command and torn down on destroy or when the host
// application task is removed.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackd/internal/app/admission"
	"github.com/osa030/trackd/internal/app/emitter"
	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/app/scheduler"
	"github.com/osa030/trackd/internal/app/ticker"
	"github.com/osa030/trackd/internal/domain/intent"
)

// ErrNotBound is returned when no manager is bound to the service.
var ErrNotBound = errors.New("no manager bound")

// Manager is the playback manager driven by the service.
type Manager interface {
	// SessionActive reports whether the media session is active.
	SessionActive() bool
	// HandleMediaButton forwards a media-button intent to the media session.
	HandleMediaButton(ctx context.Context, in intent.Intent) error
	// StopPlayback stops the player synchronously.
	StopPlayback() error
	// ShouldStopWithApp reports whether playback ends with the host application task.
	ShouldStopWithApp() bool
	// Destroy releases the manager. Safe to call more than once.
	Destroy()
}

// ManagerFactory creates a manager that calls back into s.
type ManagerFactory func(s *Service) (Manager, error)

// HeadlessTaskConfig describes the bridge task started with the service.
type HeadlessTaskConfig struct {
	Name                string
	Timeout             time.Duration // 0 means no timeout
	AllowedInForeground bool
}

// DefaultHeadlessTask is the task started when none is configured.
var DefaultHeadlessTask = HeadlessTaskConfig{
	Name:                "TrackPlayer",
	Timeout:             0,
	AllowedInForeground: true,
}

// Bridge is the application runtime observing the service.
type Bridge interface {
	admission.UIProbe
	StartHeadlessTask(cfg HeadlessTaskConfig) (int, error)
}

// Host is the process hosting the service.
type Host interface {
	admission.Host
}

// Config holds service configuration.
type Config struct {
	Clock        clockwork.Clock        // Clock for the handler and timer (real clock if nil)
	Notification admission.Notification // Placeholder used for foreground promotion
	TickInterval time.Duration          // Tick timer interval (1s if zero)
	HeadlessTask HeadlessTaskConfig     // Bridge task started on a real start
}

// runtime is created on start and torn down as a unit.
type runtime struct {
	manager Manager
	handler *scheduler.Handler
	timer   *ticker.Timer
}

// Service is the background playback service.
type Service struct {
	mu sync.Mutex

	config     Config
	clock      clockwork.Clock
	emitter    *emitter.Broadcaster
	bridge     Bridge
	host       Host
	guard      *admission.Guard
	newManager ManagerFactory

	rt    *runtime // nil when stopped
	state State
}

// New creates a stopped service.
func New(config Config, em *emitter.Broadcaster, bridge Bridge, host Host, newManager ManagerFactory) *Service {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.HeadlessTask.Name == "" {
		config.HeadlessTask = DefaultHeadlessTask
	}

	return &Service{
		config:     config,
		clock:      clock,
		emitter:    em,
		bridge:     bridge,
		host:       host,
		guard:      admission.New(bridge, host, config.Notification),
		newManager: newManager,
		state:      StateStopped,
	}
}

// StartCommand handles a start request from the host.
// A media-button intent never creates a runtime.
func (s *Service) StartCommand(ctx context.Context, in intent.Intent) StartResult {
	if in.IsMediaButton() {
		s.handleMediaButton(ctx, in)
		return NotSticky
	}

	if err := s.start(); err != nil {
		zlog.Error().Msgf("service: failed to start: %v", err)
	}
	return NotSticky
}

// handleMediaButton delivers the intent before admission, which may stop the
// service. Session activity is sampled first so the key itself cannot change
// the admission decision.
func (s *Service) handleMediaButton(ctx context.Context, in intent.Intent) {
	manager := s.currentManager()

	var session admission.SessionProbe
	if manager != nil {
		session = sessionActivity(manager.SessionActive())
		if err := manager.HandleMediaButton(ctx, in); err != nil {
			zlog.Error().Msgf("service: failed to handle media button: %v", err)
		}
	}

	decision := s.guard.Admit(session)
	zlog.Debug().Msgf("service: media button admission: decision=%s", decision)
}

// sessionActivity reports session activity fixed at the sampled value.
type sessionActivity bool

func (a sessionActivity) SessionActive() bool { return bool(a) }

func (s *Service) start() error {
	rt := &runtime{
		handler: scheduler.New(s.clock),
	}
	rt.timer = ticker.New(s.clock, rt.handler, s.emitter, s.config.TickInterval)

	s.mu.Lock()
	previous := s.rt
	s.rt = rt
	s.state = StateActive
	s.mu.Unlock()

	if previous != nil {
		zlog.Info().Msg("service: replacing previous runtime")
		previous.teardown()
	}

	// The manager calls back into the service, so the runtime is installed first
	manager, err := s.newManager(s)
	if err != nil {
		s.teardown()
		return errors.Wrap(err, "failed to create manager")
	}

	s.mu.Lock()
	if s.rt != rt {
		// Torn down or replaced while the manager was being created
		s.mu.Unlock()
		manager.Destroy()
		return nil
	}
	rt.manager = manager
	s.mu.Unlock()

	zlog.Info().Msg("service: started")

	taskID, err := s.bridge.StartHeadlessTask(s.config.HeadlessTask)
	if err != nil {
		zlog.Error().Msgf("service: failed to start headless task: name=%s error=%v", s.config.HeadlessTask.Name, err)
		return nil
	}
	zlog.Info().Msgf("service: headless task started: name=%s task_id=%d", s.config.HeadlessTask.Name, taskID)
	return nil
}

// Binder exposes the service and its manager to a connecting client.
type Binder struct {
	Service *Service
	Manager Manager // nil when no manager exists
}

// Bind returns a binder for the connect action. Other actions get no binder.
func (s *Service) Bind(in intent.Intent) (*Binder, bool) {
	if in.Action != intent.ActionConnect {
		return nil, false
	}
	return &Binder{
		Service: s,
		Manager: s.currentManager(),
	}, true
}

// Destroy cancels pending callbacks and releases the handler and manager.
func (s *Service) Destroy() {
	if s.teardown() {
		zlog.Info().Msg("service: destroyed")
	}
}

// TaskRemoved handles removal of the host application task.
func (s *Service) TaskRemoved() {
	manager := s.currentManager()
	if manager != nil && !manager.ShouldStopWithApp() {
		zlog.Info().Msg("service: task removed, keeping playback alive")
		return
	}

	if manager != nil {
		if err := manager.StopPlayback(); err != nil {
			zlog.Error().Msgf("service: failed to stop playback: %v", err)
		}
	}
	s.Destroy()
	s.host.StopSelf()
}

// HeadlessTaskFinished is called when the bridge task finishes.
// The service keeps running.
func (s *Service) HeadlessTaskFinished(taskID int) {
	zlog.Debug().Msgf("service: headless task finished: task_id=%d", taskID)
}

// Emit broadcasts an event to subscribers. No-op while stopped.
func (s *Service) Emit(event string, data map[string]any) {
	s.mu.Lock()
	active := s.rt != nil
	s.mu.Unlock()

	if !active {
		zlog.Debug().Msgf("service: dropping event while stopped: event=%s", event)
		return
	}
	s.emitter.Emit(event, data)
}

// ToggleTimerTick starts or cancels the tick timer. No-op while stopped.
func (s *Service) ToggleTimerTick(state playback.State) {
	s.mu.Lock()
	rt := s.rt
	s.mu.Unlock()

	if rt == nil {
		return
	}
	rt.timer.Toggle(state)
}

// State returns the lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Manager returns the current manager.
func (s *Service) Manager() (Manager, bool) {
	manager := s.currentManager()
	return manager, manager != nil
}

func (s *Service) currentManager() Manager {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rt == nil || s.rt.manager == nil {
		return nil
	}
	return s.rt.manager
}

// teardown swaps out the runtime and releases it outside the lock.
// It returns false if there was nothing to tear down.
func (s *Service) teardown() bool {
	s.mu.Lock()
	rt := s.rt
	s.rt = nil
	s.state = StateStopped
	s.mu.Unlock()

	if rt == nil {
		return false
	}
	rt.teardown()
	return true
}

func (r *runtime) teardown() {
	r.timer.Close()
	r.handler.Close()
	if r.manager != nil {
		r.manager.Destroy()
	}
}
