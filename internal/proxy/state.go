// ABOUTME: Connection states and error types for the proxy client
// ABOUTME: ConnectError covers the handshake, CallError a single tool invocation

package proxy

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of the proxy connection.
type State int

// Connection states. Disconnected→Connecting on Start, Connecting→Connected
// or Failed, Connected→Disconnected on Stop. There is no reconnect.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNotConnected is returned by Call outside StateConnected.
	ErrNotConnected = errors.New("proxy not connected")

	// ErrCallTimeout is returned when a tool call exceeds the call timeout.
	ErrCallTimeout = errors.New("tool call timed out")

	// ErrMalformedResponse is returned when a tool result is not a JSON object.
	ErrMalformedResponse = errors.New("malformed tool response")

	// ErrAlreadyStarted is returned by Start while another Start's handshake
	// is still running, or after Stop tore down a connection.
	ErrAlreadyStarted = errors.New("proxy already started")

	// ErrStopped is returned by Start when Stop ran before or during the handshake.
	ErrStopped = errors.New("proxy stopped")
)

// ConnectError reports a failed start. The reason is kept for diagnostics.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return "proxy connect: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CallError reports a failed tool invocation.
type CallError struct {
	Tool string
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("proxy call %s: %v", e.Tool, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }
