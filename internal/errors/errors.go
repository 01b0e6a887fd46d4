package errors

import (
	stdErrors "errors"
	"fmt"
)

// protocolMarker is implemented by all protocol-layer error types so we can classify them.
type protocolMarker interface {
	error
	isProtocol()
}

// ProtocolError is a generic RoRnet protocol layer error (violations, state, etc).
type ProtocolError struct {
	Op  string // high-level operation (e.g. "frame.read", "dispatch.stream_unregister")
	Err error  // underlying cause (may be nil)
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %s", e.Op)
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}
func (e *ProtocolError) Unwrap() error { return e.Err }
func (e *ProtocolError) isProtocol()   {}

// DecodeError indicates a packet header or payload could not be interpreted
// (bad type code, short payload, bad discriminant). Fatal to the reader loop.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode error: %s", e.Op)
	}
	return fmt.Sprintf("decode error: %s: %v", e.Op, e.Err)
}
func (e *DecodeError) Unwrap() error { return e.Err }
func (e *DecodeError) isProtocol()   {}

// RefusalError is raised during the handshake when the server answers with
// SERVER_FULL, WRONG_PASSWORD, WRONG_VERSION or BANNED. Never retried.
type RefusalError struct {
	Code   uint32 // the refusing message type code
	Reason string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("server refused connection: %s", e.Reason)
}
func (e *RefusalError) isProtocol() {}

// DisconnectedError indicates the server terminated the session (USER_LEAVE
// addressed to the bot) or the socket closed underneath it.
type DisconnectedError struct {
	Reason string
}

func (e *DisconnectedError) Error() string {
	if e.Reason == "" {
		return "disconnected from server"
	}
	return fmt.Sprintf("disconnected from server: %s", e.Reason)
}

// IsProtocolError returns true if the error chain contains any protocol-layer
// error (ProtocolError, DecodeError, RefusalError).
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	var pm protocolMarker
	return stdErrors.As(err, &pm)
}

// IsDecodeError returns true if the error chain contains a DecodeError.
func IsDecodeError(err error) bool {
	if err == nil {
		return false
	}
	var de *DecodeError
	return stdErrors.As(err, &de)
}

// IsRefusal returns true if the error chain contains a RefusalError.
func IsRefusal(err error) bool {
	if err == nil {
		return false
	}
	var re *RefusalError
	return stdErrors.As(err, &re)
}

// IsDisconnected returns true if the error chain contains a DisconnectedError.
func IsDisconnected(err error) bool {
	if err == nil {
		return false
	}
	var de *DisconnectedError
	return stdErrors.As(err, &de)
}

func NewProtocolError(op string, cause error) error { return &ProtocolError{Op: op, Err: cause} }
func NewDecodeError(op string, cause error) error   { return &DecodeError{Op: op, Err: cause} }
func NewRefusalError(code uint32, reason string) error {
	return &RefusalError{Code: code, Reason: reason}
}
func NewDisconnectedError(reason string) error { return &DisconnectedError{Reason: reason} }
