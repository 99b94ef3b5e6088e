package transport

import "time"

// State 连接状态
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	default:
		return "invalid"
	}
}

// Priority selects batching behavior for an outbound envelope.
type Priority int

const (
	// PriorityHigh bypasses the batch queue entirely.
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "invalid"
	}
}

// Status is an introspection snapshot; it stays readable while a failure is
// being recovered from.
type Status struct {
	State             State
	ReconnectAttempts int
	QueuedMessages    int
	PendingRequests   int
	LastHeartbeat     time.Time
	LastError         error
}
