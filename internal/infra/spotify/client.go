// Package spotify provides a client for the Spotify API and a remote player
// driving a Spotify Connect device.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/trackd/internal/domain/track"
)

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	deviceID   string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
	DeviceID     string // Empty targets the user's active device
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	// Create authenticator with playback scopes
	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopePlaylistReadPrivate,
		),
	)

	// Create token from refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, token)
	client := spotify.New(httpClient)

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     client,
		market:     market,
		deviceID:   cfg.DeviceID,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return nil, errors.New("track ID is required")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	return c.convertTrack(result), nil
}

// GetPlaylistTracks retrieves all tracks from a playlist.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistURL string) ([]track.Track, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var tracks []track.Track
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only process tracks (exclude episodes)
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, *c.convertTrack(item.Track.Track))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// Resolve resolves a track or playlist reference (ID, URL, or URI) to tracks.
func (c *Client) Resolve(ctx context.Context, ref string) ([]track.Track, error) {
	if isPlaylistRef(ref) {
		return c.GetPlaylistTracks(ctx, ref)
	}

	t, err := c.GetTrack(ctx, ref)
	if err != nil {
		return nil, err
	}
	return []track.Track{*t}, nil
}

// PlayTrack starts t on the target device.
func (c *Client) PlayTrack(ctx context.Context, t track.Track) error {
	ref := t.ID
	if ref == "" {
		ref = t.URL
	}
	id := extractTrackID(ref)
	if id == "" {
		return errors.Newf("track has no Spotify ID: title=%s", t.Title)
	}

	opt := c.playOptions()
	opt.URIs = []spotify.URI{trackURI(id)}

	err := c.retry(ctx, func() error {
		return c.client.PlayOpt(ctx, opt)
	})
	return errors.Wrap(err, "failed to start playback")
}

// Resume resumes playback on the target device.
func (c *Client) Resume(ctx context.Context) error {
	err := c.retry(ctx, func() error {
		return c.client.PlayOpt(ctx, c.playOptions())
	})
	return errors.Wrap(err, "failed to resume playback")
}

// Pause pauses playback on the target device.
func (c *Client) Pause(ctx context.Context) error {
	err := c.retry(ctx, func() error {
		return c.client.PauseOpt(ctx, c.playOptions())
	})
	return errors.Wrap(err, "failed to pause playback")
}

func (c *Client) playOptions() *spotify.PlayOptions {
	opt := &spotify.PlayOptions{}
	if c.deviceID != "" {
		id := spotify.ID(c.deviceID)
		opt.DeviceID = &id
	}
	return opt
}

// convertTrack converts a Spotify FullTrack to domain Track.
func (c *Client) convertTrack(t *spotify.FullTrack) *track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	return &track.Track{
		ID:         string(t.ID),
		URL:        GetTrackURL(string(t.ID)),
		Title:      t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		ArtworkURL: albumArt,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
	}
}

// GetTrackURL returns the Spotify URL for a track.
func GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

func trackURI(trackID string) spotify.URI {
	return spotify.URI("spotify:track:" + trackID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), lastErr.Error())
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// isPlaylistRef reports whether ref names a playlist rather than a track.
func isPlaylistRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	return strings.HasPrefix(ref, "spotify:playlist:") ||
		(strings.Contains(ref, "open.spotify.com") && strings.Contains(ref, "/playlist/"))
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles spotify:KIND:ID URIs and open.spotify.com/KIND/ID URLs,
// including localized /intl-XX/ paths. Anything else is assumed to be an ID.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)

	uriPrefix := "spotify:" + kind + ":"
	if strings.HasPrefix(input, uriPrefix) {
		return strings.TrimPrefix(input, uriPrefix)
	}

	segment := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
