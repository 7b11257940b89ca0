package orchestrator

// State is the connection lifecycle position of the client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedToHub
	StateJoined
	StateStreamConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedToHub:
		return "connected"
	case StateJoined:
		return "joined"
	case StateStreamConnected:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Error reasons reported through Status.Reason.
const (
	ReasonConnectTimeout = "connect timeout"
	ReasonConnectionLost = "connection lost"
	ReasonGaveUp         = "gave up"
	ReasonReplaced       = "broadcaster replaced"
)

// Status is the user-visible connection status.
type Status struct {
	State  State
	Reason string
}

// Message maps the status to the text shown to the user.
func (s Status) Message() string {
	switch s.State {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting..."
	case StateConnectedToHub:
		return "Connected, joining room..."
	case StateJoined:
		return "Waiting for stream"
	case StateStreamConnected:
		return "Live"
	case StateError:
		switch s.Reason {
		case ReasonGaveUp:
			return "Could not reach the live room. Reconnect to try again"
		case ReasonReplaced:
			return "Another broadcaster took over this room"
		case "":
			return "Connection error, retrying"
		default:
			return "Connection error: " + s.Reason
		}
	default:
		return "Unknown"
	}
}

// CanReconnect reports whether a manual reconnect makes sense.
func (s Status) CanReconnect() bool {
	return s.State == StateError || s.State == StateDisconnected
}
