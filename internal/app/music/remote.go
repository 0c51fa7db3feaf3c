package music

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackd/internal/app/emitter"
)

// Resolver returns the manager currently bound to the service.
type Resolver func() (*Manager, bool)

// ApplyRemote applies a remote-* event to the player.
// Other events are ignored.
func (m *Manager) ApplyRemote(event string) error {
	switch event {
	case emitter.EventRemotePlay:
		return m.Play()
	case emitter.EventRemotePause:
		return m.Pause()
	case emitter.EventRemoteStop:
		return m.Stop()
	case emitter.EventRemoteNext:
		return m.Skip()
	case emitter.EventRemotePrevious:
		return m.Previous()
	case emitter.EventRemoteJumpForward, emitter.EventRemoteJumpBackward:
		zlog.Debug().Msgf("music: seeking is not supported by the player: event=%s", event)
	}
	return nil
}

// RemoteControl applies remote events to the bound manager until ctx is done
// or events is closed.
func RemoteControl(ctx context.Context, events <-chan emitter.Envelope, resolve Resolver) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			m, bound := resolve()
			if !bound {
				continue
			}
			if err := m.ApplyRemote(env.Event); err != nil {
				zlog.Debug().Msgf("music: remote event not applied: event=%s error=%v", env.Event, err)
			}
		}
	}
}

// RemoteTask returns a headless task body that runs RemoteControl on events.
// The caller opens the subscription before the task is started, so events
// emitted before the task runs are still applied.
func RemoteTask(events <-chan emitter.Envelope, resolve Resolver) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		RemoteControl(ctx, events, resolve)
		return nil
	}
}
