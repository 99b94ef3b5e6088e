package transport

import "fmt"

// Kind classifies transport failures.
type Kind int

const (
	// KindConnectionTimeout: the handshake did not complete in time.
	KindConnectionTimeout Kind = iota + 1
	// KindConnectionLost: unexpected close or liveness timeout while connected.
	KindConnectionLost
	// KindRequestTimeout: no correlated response before the deadline.
	KindRequestTimeout
	// KindRequestCancelled: explicit disconnect while the request was pending.
	KindRequestCancelled
	// KindRemoteError: the correlated response declared the error type.
	KindRemoteError
	// KindMalformedFrame: decompression or parse failure on an inbound frame.
	KindMalformedFrame
	// KindMaxReconnectAttempts: automatic reconnection gave up.
	KindMaxReconnectAttempts
	// KindQueueFull: the batch queue is at its configured bound.
	KindQueueFull
)

func (k Kind) String() string {
	switch k {
	case KindConnectionTimeout:
		return "connection_timeout"
	case KindConnectionLost:
		return "connection_lost"
	case KindRequestTimeout:
		return "request_timeout"
	case KindRequestCancelled:
		return "request_cancelled"
	case KindRemoteError:
		return "remote_error"
	case KindMalformedFrame:
		return "malformed_frame"
	case KindMaxReconnectAttempts:
		return "max_reconnect_attempts"
	case KindQueueFull:
		return "queue_full"
	default:
		return "unknown"
	}
}

// Error is a kinded transport error. errors.Is matches on Kind, so callers
// can compare against the sentinels below without caring about wrapping.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrConnectionTimeout    = &Error{Kind: KindConnectionTimeout, Msg: "connection handshake timed out"}
	ErrConnectionLost       = &Error{Kind: KindConnectionLost, Msg: "connection lost"}
	ErrRequestTimeout       = &Error{Kind: KindRequestTimeout, Msg: "request timed out"}
	ErrRequestCancelled     = &Error{Kind: KindRequestCancelled, Msg: "request cancelled by disconnect"}
	ErrRemoteError          = &Error{Kind: KindRemoteError, Msg: "remote reported an error"}
	ErrMalformedFrame       = &Error{Kind: KindMalformedFrame, Msg: "malformed frame"}
	ErrMaxReconnectAttempts = &Error{Kind: KindMaxReconnectAttempts, Msg: "max reconnect attempts exhausted"}
	ErrQueueFull            = &Error{Kind: KindQueueFull, Msg: "outbound queue is full"}
)

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}
