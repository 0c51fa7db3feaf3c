// Package intent provides the host signal entity delivered to the service.
package intent

import "strings"

// Action identifies what a host signal asks the service to do.
type Action string

const (
	ActionStart       Action = "start"        // Genuine start request
	ActionMediaButton Action = "media-button" // Hardware or bluetooth media key press
	ActionConnect     Action = "connect"      // Bind request from a controlling client
)

// KeyCode represents a media key.
type KeyCode string

const (
	KeyUnknown     KeyCode = ""
	KeyPlay        KeyCode = "play"
	KeyPause       KeyCode = "pause"
	KeyPlayPause   KeyCode = "play-pause"
	KeyStop        KeyCode = "stop"
	KeyNext        KeyCode = "next"
	KeyPrevious    KeyCode = "previous"
	KeyFastForward KeyCode = "fast-forward"
	KeyRewind      KeyCode = "rewind"
)

// KeyAction represents the edge of a key press.
type KeyAction string

const (
	KeyDown KeyAction = "down"
	KeyUp   KeyAction = "up"
)

// KeyEvent is the media key carried by a media-button intent.
type KeyEvent struct {
	Code   KeyCode
	Action KeyAction
}

// Intent represents a signal delivered by the host.
type Intent struct {
	Action   Action
	KeyEvent *KeyEvent     // Only set for media-button intents
	Extras   map[string]any
}

// New creates an intent for the given action.
func New(action Action) Intent {
	return Intent{Action: action}
}

// NewMediaButton creates a key-down media-button intent.
func NewMediaButton(code KeyCode) Intent {
	return Intent{
		Action:   ActionMediaButton,
		KeyEvent: &KeyEvent{Code: code, Action: KeyDown},
	}
}

// IsMediaButton returns true if the intent is a bare media-button signal.
func (i Intent) IsMediaButton() bool {
	return i.Action == ActionMediaButton
}

// ParseAction parses an action name. Empty input means a start request.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case "", ActionStart:
		return ActionStart, true
	case ActionMediaButton:
		return ActionMediaButton, true
	case ActionConnect:
		return ActionConnect, true
	default:
		return "", false
	}
}

// ParseKeyCode parses a key code name.
func ParseKeyCode(s string) (KeyCode, bool) {
	code := KeyCode(strings.ToLower(strings.TrimSpace(s)))
	switch code {
	case KeyPlay, KeyPause, KeyPlayPause, KeyStop, KeyNext, KeyPrevious, KeyFastForward, KeyRewind:
		return code, true
	default:
		return KeyUnknown, false
	}
}
