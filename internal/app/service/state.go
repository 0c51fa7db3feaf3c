package service

// State represents the service lifecycle state.
type State int

const (
	StateStopped State = iota // No runtime installed
	StateActive               // Manager and handler are installed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// StartResult tells the host how to treat the service after a start command.
type StartResult int

const (
	NotSticky StartResult = iota // Do not recreate the service after it is killed
	Sticky                       // Recreate the service after it is killed
)

// String returns the string representation of the start result.
func (r StartResult) String() string {
	switch r {
	case NotSticky:
		return "not_sticky"
	case Sticky:
		return "sticky"
	default:
		return "unknown"
	}
}
