package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/trackd/internal/app/playback"
	"github.com/osa030/trackd/internal/app/service"
)

var validate = validator.New()

// decode decodes s into out and validates it. A nil struct decodes as empty.
func decode(s *structpb.Struct, out any) error {
	var input map[string]any
	if s != nil {
		input = s.AsMap()
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to create decoder"))
	}
	if err := decoder.Decode(input); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.Wrap(err, "malformed request"))
	}
	if err := validate.Struct(out); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.Wrap(err, "invalid request"))
	}
	return nil
}

// encode converts m into a Struct.
func encode(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode response"))
	}
	return s, nil
}

// toConnectError maps domain errors to connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	switch {
	case errors.Is(err, service.ErrNotBound),
		errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, playback.ErrQueueEmpty),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNoPrevious),
		errors.Is(err, playback.ErrClosed):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
