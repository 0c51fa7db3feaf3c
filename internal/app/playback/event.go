package playback

import (
	"time"

	"github.com/osa030/trackd/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventStateChanged EventType = iota // Playback state changed
	EventTrackChanged                  // A different track became current
	EventQueueEnded                    // The last track finished
	EventError                         // The player failed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventTrackChanged:
		return "track_changed"
	case EventQueueEnded:
		return "queue_ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	State    State
	Track    *track.Track  // Current track (previous track for EventQueueEnded)
	Position time.Duration // Position of the previous track when it changed
	Err      error         // Only set for EventError
}
