package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the trackd services.
type Client struct {
	startCommand *connect.Client[structpb.Struct, structpb.Struct]
	bind         *connect.Client[structpb.Struct, structpb.Struct]
	destroy      *connect.Client[emptypb.Empty, emptypb.Empty]
	taskRemoved  *connect.Client[emptypb.Empty, emptypb.Empty]

	add           *connect.Client[structpb.Struct, structpb.Struct]
	play          *connect.Client[emptypb.Empty, emptypb.Empty]
	pause         *connect.Client[emptypb.Empty, emptypb.Empty]
	stop          *connect.Client[emptypb.Empty, emptypb.Empty]
	skip          *connect.Client[emptypb.Empty, emptypb.Empty]
	previous      *connect.Client[emptypb.Empty, emptypb.Empty]
	updateOptions *connect.Client[structpb.Struct, emptypb.Empty]
	getState      *connect.Client[emptypb.Empty, structpb.Struct]

	subscribe *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a client for the server at baseURL.
// A non-empty token is sent with every call.
func NewClient(httpClient connect.HTTPClient, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts := connect.WithInterceptors(&tokenCredentials{token: token})

	return &Client{
		startCommand: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+HostStartCommandProcedure, opts),
		bind:         connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+HostBindProcedure, opts),
		destroy:      connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+HostDestroyProcedure, opts),
		taskRemoved:  connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+HostTaskRemovedProcedure, opts),

		add:           connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+PlayerAddProcedure, opts),
		play:          connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+PlayerPlayProcedure, opts),
		pause:         connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+PlayerPauseProcedure, opts),
		stop:          connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+PlayerStopProcedure, opts),
		skip:          connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+PlayerSkipProcedure, opts),
		previous:      connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+PlayerPreviousProcedure, opts),
		updateOptions: connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+PlayerUpdateOptionsProcedure, opts),
		getState:      connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerGetStateProcedure, opts),

		subscribe: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+EventSubscribeProcedure, opts),
	}
}

// StartCommand sends a start command and returns the response fields.
func (c *Client) StartCommand(ctx context.Context, req StartCommandRequest) (map[string]any, error) {
	return callStruct(ctx, c.startCommand, map[string]any{
		"action":     req.Action,
		"key":        req.Key,
		"key_action": req.KeyAction,
	})
}

// Bind requests a binder for action.
func (c *Client) Bind(ctx context.Context, action string) (map[string]any, error) {
	return callStruct(ctx, c.bind, map[string]any{"action": action})
}

// Destroy destroys the service runtime.
func (c *Client) Destroy(ctx context.Context) error {
	return callEmpty(ctx, c.destroy)
}

// TaskRemoved signals removal of the host application task.
func (c *Client) TaskRemoved(ctx context.Context) error {
	return callEmpty(ctx, c.taskRemoved)
}

// Add enqueues tracks and references. It returns the number of tracks added.
func (c *Client) Add(ctx context.Context, tracks []TrackInput, refs []string) (int, error) {
	items := make([]any, 0, len(tracks))
	for _, t := range tracks {
		artists := make([]any, len(t.Artists))
		for i, a := range t.Artists {
			artists[i] = a
		}
		items = append(items, map[string]any{
			"id":       t.ID,
			"url":      t.URL,
			"title":    t.Title,
			"artists":  artists,
			"album":    t.Album,
			"artwork":  t.Artwork,
			"duration": t.DurationSec,
		})
	}
	refItems := make([]any, len(refs))
	for i, r := range refs {
		refItems[i] = r
	}

	res, err := callStruct(ctx, c.add, map[string]any{
		"tracks": items,
		"refs":   refItems,
	})
	if err != nil {
		return 0, err
	}
	added, _ := res["added"].(float64)
	return int(added), nil
}

// Play starts or resumes playback.
func (c *Client) Play(ctx context.Context) error { return callEmpty(ctx, c.play) }

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error { return callEmpty(ctx, c.pause) }

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) error { return callEmpty(ctx, c.stop) }

// Skip plays the next track.
func (c *Client) Skip(ctx context.Context) error { return callEmpty(ctx, c.skip) }

// Previous plays the previous track.
func (c *Client) Previous(ctx context.Context) error { return callEmpty(ctx, c.previous) }

// UpdateOptions updates the manager options.
func (c *Client) UpdateOptions(ctx context.Context, stopWithApp *bool, jumpIntervalSec float64) error {
	body := map[string]any{}
	if stopWithApp != nil {
		body["stop_with_app"] = *stopWithApp
	}
	if jumpIntervalSec > 0 {
		body["jump_interval"] = jumpIntervalSec
	}
	msg, err := structpb.NewStruct(body)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}
	_, err = c.updateOptions.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

// GetState returns the player state.
func (c *Client) GetState(ctx context.Context) (map[string]any, error) {
	res, err := c.getState.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

// Subscribe streams events to fn until ctx is done, the server closes the
// stream or fn returns false.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest, fn func(event map[string]any) bool) error {
	events := make([]any, len(req.Events))
	for i, e := range req.Events {
		events[i] = e
	}
	msg, err := structpb.NewStruct(map[string]any{
		"ui":     req.UI,
		"events": events,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}

	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(msg))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if !fn(stream.Msg().AsMap()) {
			return nil
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func callStruct(ctx context.Context, client *connect.Client[structpb.Struct, structpb.Struct], body map[string]any) (map[string]any, error) {
	msg, err := structpb.NewStruct(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}
	res, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

func callEmpty(ctx context.Context, client *connect.Client[emptypb.Empty, emptypb.Empty]) error {
	_, err := client.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	return err
}
