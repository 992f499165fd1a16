package kuma

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when an entity list is requested before the server
// has pushed its initial broadcast set for that list.
var ErrNotReady = errors.New("kuma: server lists not received yet")

// ErrDisconnected is returned when a call is attempted without an open
// socket.io session.
var ErrDisconnected = errors.New("kuma: not connected")

// RemoteError is an error reported by the Uptime Kuma server itself, i.e. a
// response with ok=false. The server only provides a message, not a code.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("kuma: server rejected %s: %s", e.Op, e.Message)
}

// TransportError wraps connection, protocol, and timeout failures. Timeout
// reports whether the failure was a per-call or connect timeout; timeouts are
// retriable on the next reconcile tick.
type TransportError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("kuma: %s timed out", e.Op)
	}
	return fmt.Sprintf("kuma: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError indicates rejected credentials or an invalid session token.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("kuma: authentication failed: %s", e.Message)
}

// IDNotFoundError is returned by get operations when the server does not know
// the requested entity.
type IDNotFoundError struct {
	Kind string
	ID   string
}

func (e *IDNotFoundError) Error() string {
	return fmt.Sprintf("kuma: %s %s not found", e.Kind, e.ID)
}

// InvalidReferenceError is returned when a monitor references a parent,
// notification, or docker host that does not exist on the server.
type InvalidReferenceError struct {
	Field string
	Ref   string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("kuma: invalid %s reference %q", e.Field, e.Ref)
}
