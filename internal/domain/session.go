package domain

// SocketState is the lifecycle of a single transport handle.
type SocketState int

const (
	SocketIdle SocketState = iota
	SocketConnecting
	SocketOpen
	SocketClosed
	SocketErrored
)

func (s SocketState) String() string {
	switch s {
	case SocketIdle:
		return "idle"
	case SocketConnecting:
		return "connecting"
	case SocketOpen:
		return "open"
	case SocketClosed:
		return "closed"
	case SocketErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// SessionState is what a mounted chat view observes.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionLive
	SessionClosed
	SessionErrored
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionLive:
		return "live"
	case SessionClosed:
		return "closed"
	case SessionErrored:
		return "errored"
	default:
		return "unknown"
	}
}
