package connector

// State represents the current state of the connector.
type State int

const (
	// StateDisconnected means no transport is open. This is the initial
	// state, and the terminal state after an explicit Disconnect or after
	// the reconnect attempts are exhausted.
	StateDisconnected State = iota

	// StateConnecting means the connector is establishing a connection.
	StateConnecting

	// StateConnected means the transport is open and ready.
	StateConnected

	// StateError means the transport reported an error. A close follows.
	StateError
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
