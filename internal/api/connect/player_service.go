package connect

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/trackd/internal/app/music"
	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/app/service"
	"github.com/osa030/trackd/internal/domain/intent"
	"github.com/osa030/trackd/internal/domain/track"
)

// Controls is the player surface exposed through a binder.
type Controls interface {
	Add(tracks ...track.Track) error
	Play() error
	Pause() error
	Stop() error
	Skip() error
	Previous() error
	UpdateOptions(options music.Options)
	Options() music.Options
	State() playback.State
	Current() (*track.Track, bool)
}

// Resolver resolves track or playlist references to tracks.
type Resolver interface {
	Resolve(ctx context.Context, ref string) ([]track.Track, error)
}

// TrackInput is a track supplied by the client.
type TrackInput struct {
	ID          string   `json:"id" validate:"required"`
	URL         string   `json:"url" validate:"omitempty,url"`
	Title       string   `json:"title"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album"`
	Artwork     string   `json:"artwork"`
	DurationSec float64  `json:"duration" validate:"gte=0"`
}

// Track converts the input to a domain track.
func (t TrackInput) Track() track.Track {
	return track.Track{
		ID:         t.ID,
		URL:        t.URL,
		Title:      t.Title,
		Artists:    t.Artists,
		Album:      t.Album,
		ArtworkURL: t.Artwork,
		Duration:   time.Duration(t.DurationSec * float64(time.Second)),
	}
}

// AddRequest is the Add request.
type AddRequest struct {
	Tracks []TrackInput `json:"tracks" validate:"dive"`
	Refs   []string     `json:"refs" validate:"dive,required"`
}

// UpdateOptionsRequest is the UpdateOptions request.
type UpdateOptionsRequest struct {
	StopWithApp     *bool   `json:"stop_with_app"`
	JumpIntervalSec float64 `json:"jump_interval" validate:"gte=0,lte=3600"`
}

// PlayerService controls the manager bound to the service.
type PlayerService struct {
	svc      *service.Service
	resolver Resolver // nil disables reference resolution
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(svc *service.Service, resolver Resolver) *PlayerService {
	return &PlayerService{
		svc:      svc,
		resolver: resolver,
	}
}

// controls binds to the service and returns the bound manager.
func (s *PlayerService) controls() (Controls, error) {
	binder, ok := s.svc.Bind(intent.New(intent.ActionConnect))
	if !ok || binder.Manager == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, service.ErrNotBound)
	}
	controls, ok := binder.Manager.(Controls)
	if !ok {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("bound manager does not expose player controls"))
	}
	return controls, nil
}

// Add appends tracks to the queue.
func (s *PlayerService) Add(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var body AddRequest
	if err := decode(req.Msg, &body); err != nil {
		return nil, err
	}
	if len(body.Tracks) == 0 && len(body.Refs) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("tracks or refs are required"))
	}

	controls, err := s.controls()
	if err != nil {
		return nil, err
	}

	tracks := make([]track.Track, 0, len(body.Tracks))
	for _, t := range body.Tracks {
		tracks = append(tracks, t.Track())
	}

	if len(body.Refs) > 0 {
		if s.resolver == nil {
			return nil, connect.NewError(connect.CodeUnimplemented, errors.New("reference resolution is not available for this player"))
		}
		for _, ref := range body.Refs {
			resolved, err := s.resolver.Resolve(ctx, ref)
			if err != nil {
				return nil, connect.NewError(connect.CodeNotFound, errors.Wrapf(err, "failed to resolve %s", ref))
			}
			tracks = append(tracks, resolved...)
		}
	}

	if err := controls.Add(tracks...); err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("player: tracks added: count=%d", len(tracks))

	res, err := encode(map[string]any{"added": len(tracks)})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// Play starts or resumes playback.
func (s *PlayerService) Play(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.do(Controls.Play)
}

// Pause pauses playback.
func (s *PlayerService) Pause(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.do(Controls.Pause)
}

// Stop stops playback.
func (s *PlayerService) Stop(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.do(Controls.Stop)
}

// Skip plays the next track.
func (s *PlayerService) Skip(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.do(Controls.Skip)
}

// Previous plays the previous track.
func (s *PlayerService) Previous(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.do(Controls.Previous)
}

func (s *PlayerService) do(op func(Controls) error) (*connect.Response[emptypb.Empty], error) {
	controls, err := s.controls()
	if err != nil {
		return nil, err
	}
	if err := op(controls); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// UpdateOptions updates the manager options. Omitted fields keep their value.
func (s *PlayerService) UpdateOptions(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var body UpdateOptionsRequest
	if err := decode(req.Msg, &body); err != nil {
		return nil, err
	}

	controls, err := s.controls()
	if err != nil {
		return nil, err
	}

	options := controls.Options()
	if body.StopWithApp != nil {
		options.StopWithApp = *body.StopWithApp
	}
	if body.JumpIntervalSec > 0 {
		options.JumpInterval = time.Duration(body.JumpIntervalSec * float64(time.Second))
	}
	controls.UpdateOptions(options)

	return connect.NewResponse(&emptypb.Empty{}), nil
}

// GetState returns the player state and options.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	controls, err := s.controls()
	if err != nil {
		return nil, err
	}

	options := controls.Options()
	state := map[string]any{
		"service":       s.svc.State().String(),
		"state":         controls.State().String(),
		"stop_with_app": options.StopWithApp,
		"jump_interval": options.JumpInterval.Seconds(),
	}
	if current, ok := controls.Current(); ok {
		state["track"] = current.Payload()
	}

	res, err := encode(state)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}
