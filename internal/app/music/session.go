package music

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/trackd/internal/app/emitter"
	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/domain/intent"
)

// Errors
var (
	ErrNoKeyEvent = errors.New("media button intent has no key event")
	ErrUnknownKey = errors.New("unknown media key")
)

// Session is the media session. It is active while the player holds a track.
type Session struct {
	mu           sync.RWMutex
	active       bool
	state        playback.State
	jumpInterval time.Duration
	host         Host
}

func newSession(host Host, jumpInterval time.Duration) *Session {
	return &Session{
		state:        playback.StateNone,
		jumpInterval: jumpInterval,
		host:         host,
	}
}

// IsActive returns true if the session is active.
func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Session) update(state playback.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	switch state {
	case playback.StatePlaying, playback.StatePaused, playback.StateBuffering:
		s.active = true
	default:
		s.active = false
	}
}

func (s *Session) setJumpInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jumpInterval = d
}

// HandleIntent translates a media key press into a remote event.
// Key releases are ignored.
func (s *Session) HandleIntent(in intent.Intent) error {
	if in.KeyEvent == nil {
		return ErrNoKeyEvent
	}
	if in.KeyEvent.Action != intent.KeyDown {
		return nil
	}

	event, data, err := s.remoteEvent(in.KeyEvent.Code)
	if err != nil {
		return err
	}
	s.host.Emit(event, data)
	return nil
}

func (s *Session) remoteEvent(code intent.KeyCode) (string, map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch code {
	case intent.KeyPlay:
		return emitter.EventRemotePlay, nil, nil
	case intent.KeyPause:
		return emitter.EventRemotePause, nil, nil
	case intent.KeyPlayPause:
		if s.state == playback.StatePlaying || s.state == playback.StateBuffering {
			return emitter.EventRemotePause, nil, nil
		}
		return emitter.EventRemotePlay, nil, nil
	case intent.KeyStop:
		return emitter.EventRemoteStop, nil, nil
	case intent.KeyNext:
		return emitter.EventRemoteNext, nil, nil
	case intent.KeyPrevious:
		return emitter.EventRemotePrevious, nil, nil
	case intent.KeyFastForward:
		return emitter.EventRemoteJumpForward, map[string]any{"interval": s.jumpInterval.Seconds()}, nil
	case intent.KeyRewind:
		return emitter.EventRemoteJumpBackward, map[string]any{"interval": s.jumpInterval.Seconds()}, nil
	default:
		return "", nil, errors.Wrapf(ErrUnknownKey, "key=%q", code)
	}
}
