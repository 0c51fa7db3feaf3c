// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// Track represents a playable item in the player queue.
type Track struct {
	ID         string        // Track ID (Spotify ID for the remote player)
	URL        string        // Media URL or Spotify URL
	Title      string        // Track title
	Artists    []string      // Artist names
	Album      string        // Album name
	ArtworkURL string        // Album art URL
	Duration   time.Duration // Track duration (zero if unknown)
}

// DisplayName returns "Artist - Title", or the bare title when no artist is known.
func (t Track) DisplayName() string {
	if len(t.Artists) == 0 {
		return t.Title
	}
	return strings.Join(t.Artists, ", ") + " - " + t.Title
}

// Payload returns the event payload representation of the track.
func (t Track) Payload() map[string]any {
	artists := make([]any, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a
	}
	return map[string]any{
		"id":       t.ID,
		"url":      t.URL,
		"title":    t.Title,
		"artists":  artists,
		"album":    t.Album,
		"artwork":  t.ArtworkURL,
		"duration": t.Duration.Seconds(),
	}
}
