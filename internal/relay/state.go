package relay

import "fmt"

// State is the single authoritative connection state. Transitions are totally
// ordered in time; exactly one state is active at any moment.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStabilizing
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStabilizing:
		return "stabilizing"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}
