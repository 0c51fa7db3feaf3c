package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/trackd/internal/app/service"
	"github.com/osa030/trackd/internal/domain/intent"
)

// StartCommandRequest is the StartCommand request.
type StartCommandRequest struct {
	Action    string `json:"action" validate:"omitempty,oneof=start media-button connect"`
	Key       string `json:"key"`
	KeyAction string `json:"key_action" validate:"omitempty,oneof=down up"`
}

// Intent converts the request into a host intent.
func (r StartCommandRequest) Intent() (intent.Intent, error) {
	action, ok := intent.ParseAction(r.Action)
	if !ok {
		return intent.Intent{}, errors.Newf("unknown action: %q", r.Action)
	}
	if action != intent.ActionMediaButton {
		return intent.New(action), nil
	}

	code, ok := intent.ParseKeyCode(r.Key)
	if !ok {
		return intent.Intent{}, errors.Newf("unknown media key: %q", r.Key)
	}
	in := intent.NewMediaButton(code)
	if r.KeyAction == string(intent.KeyUp) {
		in.KeyEvent.Action = intent.KeyUp
	}
	return in, nil
}

// BindRequest is the Bind request.
type BindRequest struct {
	Action string `json:"action" validate:"omitempty,oneof=start media-button connect"`
}

// HostService receives host lifecycle signals.
type HostService struct {
	svc *service.Service
}

// NewHostService creates a new HostService.
func NewHostService(svc *service.Service) *HostService {
	return &HostService{svc: svc}
}

// StartCommand delivers a start command to the service.
func (s *HostService) StartCommand(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var body StartCommandRequest
	if err := decode(req.Msg, &body); err != nil {
		return nil, err
	}
	in, err := body.Intent()
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	zlog.Info().Msgf("host: start command: action=%s", in.Action)
	result := s.svc.StartCommand(ctx, in)

	res, err := encode(map[string]any{
		"result": result.String(),
		"state":  s.svc.State().String(),
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// Bind requests a binder from the service.
func (s *HostService) Bind(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var body BindRequest
	if err := decode(req.Msg, &body); err != nil {
		return nil, err
	}
	action, _ := intent.ParseAction(body.Action)

	binder, ok := s.svc.Bind(intent.New(action))
	res, err := encode(map[string]any{
		"bound":       ok,
		"has_manager": ok && binder.Manager != nil,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

// Destroy destroys the service runtime.
func (s *HostService) Destroy(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	zlog.Info().Msg("host: destroy")
	s.svc.Destroy()
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// TaskRemoved notifies the service that the host application task was removed.
func (s *HostService) TaskRemoved(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	zlog.Info().Msg("host: task removed")
	s.svc.TaskRemoved()
	return connect.NewResponse(&emptypb.Empty{}), nil
}
