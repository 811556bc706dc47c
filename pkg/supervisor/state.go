// Package supervisor owns the vehicle readiness state machine: connect, arm, enter offboard,
// and the teardown that guarantees the boat ends disarmed or killed.
package supervisor

import "fmt"

// State is the readiness state of the vehicle session.
type State int

const (
	// StateDisconnected indicates no link handshake yet, or a session reset after a kill.
	StateDisconnected State = iota
	// StateConnected indicates the link is up and home is recorded.
	StateConnected
	// StateArmed indicates motors are armed but setpoints are not yet accepted.
	StateArmed
	// StateOffboardActive indicates the controller is following external setpoints.
	StateOffboardActive
	// StateFaulted indicates teardown failed; only a kill leaves it.
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateArmed:
		return "armed"
	case StateOffboardActive:
		return "offboard_active"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsArmed reports whether the motors may be live in this state.
func (s State) IsArmed() bool {
	return s == StateArmed || s == StateOffboardActive || s == StateFaulted
}
