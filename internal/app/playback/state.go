// Package playback provides the local queue player and the playback state model.
package playback

import "strings"

// State represents the playback state.
type State int

const (
	StateNone      State = iota // Nothing loaded
	StateStopped                // Loaded but stopped
	StatePaused                 // Paused mid-track
	StatePlaying                // Playing
	StateBuffering              // Waiting for the player to start
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateBuffering:
		return "buffering"
	default:
		return "unknown"
	}
}

// IsStopClass returns true for states that end the playback timer.
func (s State) IsStopClass() bool {
	return s == StateNone || s == StatePaused || s == StateStopped
}

// ParseState parses a state name.
func ParseState(s string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return StateNone, true
	case "stopped":
		return StateStopped, true
	case "paused":
		return StatePaused, true
	case "playing":
		return StatePlaying, true
	case "buffering":
		return StateBuffering, true
	default:
		return StateNone, false
	}
}
