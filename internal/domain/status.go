package domain

// CallStatus is the externally visible lifecycle state of a call.
type CallStatus int

const (
	StatusIdle CallStatus = iota
	StatusCalling
	StatusInCall
	StatusEnded
)

func (s CallStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCalling:
		return "calling"
	case StatusInCall:
		return "in_call"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// CanTransition reports whether from -> to is an edge of the call lifecycle.
func CanTransition(from, to CallStatus) bool {
	switch to {
	case StatusCalling:
		return from == StatusIdle
	case StatusInCall:
		return from == StatusIdle || from == StatusCalling || from == StatusInCall
	case StatusEnded:
		return from != StatusEnded
	case StatusIdle:
		// Calling -> Idle is the revert after a failed negotiation
		return from == StatusEnded || from == StatusCalling
	}
	return false
}
