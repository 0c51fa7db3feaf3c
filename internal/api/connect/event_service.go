package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/trackd/internal/app/emitter"
	"github.com/osa030/trackd/internal/app/service"
)

// EventInitialState is the first message of every subscription.
const EventInitialState = "initial-state"

// UIAttacher tracks attached UI subscribers.
type UIAttacher interface {
	AttachUI() string
	DetachUI(id string)
}

// SubscribeRequest is the Subscribe request.
type SubscribeRequest struct {
	UI     bool     `json:"ui"`
	Events []string `json:"events" validate:"dive,required"`
}

// EventService streams emitter envelopes to clients.
type EventService struct {
	svc     *service.Service
	emitter *emitter.Broadcaster
	ui      UIAttacher
}

// NewEventService creates a new EventService.
func NewEventService(svc *service.Service, em *emitter.Broadcaster, ui UIAttacher) *EventService {
	return &EventService{
		svc:     svc,
		emitter: em,
		ui:      ui,
	}
}

// Subscribe streams events until the client disconnects or the emitter closes.
// A subscriber with ui set counts as an attached UI while connected.
func (s *EventService) Subscribe(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	var body SubscribeRequest
	if err := decode(req.Msg, &body); err != nil {
		return err
	}

	filter := make(map[string]struct{}, len(body.Events))
	for _, event := range body.Events {
		filter[event] = struct{}{}
	}

	sub := s.emitter.Subscribe()
	defer s.emitter.Unsubscribe(sub.ID)

	if body.UI && s.ui != nil {
		uiID := s.ui.AttachUI()
		defer s.ui.DetachUI(uiID)
	}

	initial, err := encode(map[string]any{
		"event": EventInitialState,
		"data": map[string]any{
			"service": s.svc.State().String(),
		},
	})
	if err != nil {
		return err
	}
	if err := stream.Send(initial); err != nil {
		return err
	}

	zlog.Debug().Msgf("event: subscribed: subscription=%s ui=%t", sub.ID, body.UI)
	defer func() {
		zlog.Debug().Msgf("event: unsubscribed: subscription=%s dropped=%d", sub.ID, sub.Dropped())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.C:
			if !ok {
				return nil
			}
			if len(filter) > 0 {
				if _, want := filter[env.Event]; !want {
					continue
				}
			}
			msg, err := envelopeMessage(env)
			if err != nil {
				zlog.Error().Msgf("event: failed to encode envelope: event=%s: %v", env.Event, err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func envelopeMessage(env emitter.Envelope) (*structpb.Struct, error) {
	m := map[string]any{
		"event":       env.Event,
		"sequence_no": float64(env.SequenceNo),
		"time":        env.Time.Format(time.RFC3339Nano),
	}
	if env.Data != nil {
		m["data"] = env.Data
	}
	return encode(m)
}
