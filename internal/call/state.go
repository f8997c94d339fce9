package call

// State is the call session's position in the connection state machine.
type State int

const (
	// StateIdle: no channel, no peer connection.
	StateIdle State = iota
	// StateConnecting: the signaling channel is opening.
	StateConnecting
	// StateJoined: the channel is open and join was sent.
	StateJoined
	// StateNegotiating: an offer/answer exchange is in flight.
	StateNegotiating
	// StateActive: remote audio is flowing.
	StateActive
	// StateClosed is transient; teardown always ends in StateIdle.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// inCall reports whether the state has an open signaling channel.
func (s State) inCall() bool {
	return s == StateJoined || s == StateNegotiating || s == StateActive
}
