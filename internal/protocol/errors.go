package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transfer-engine error.
type ErrorKind uint8

const (
	// KindNone (0): no error.
	KindNone ErrorKind = iota
	// KindTruncatedFrame: an inbound frame is shorter than its header declares.
	KindTruncatedFrame
	// KindEncodingError: an outbound frame cannot be encoded (e.g. oversized id).
	KindEncodingError
	// KindChunkOutOfBounds: a page chunk's offset+length exceeds the page capacity.
	KindChunkOutOfBounds
	// KindProtocolViolation: a well-formed frame arrived in a phase where it is
	// not valid. Soft; the frame is ignored and never surfaced to the caller.
	KindProtocolViolation
	// KindPeerReportedError: the companion app sent an explicit ERROR frame.
	KindPeerReportedError
	// KindConnectionLost: the transport collaborator reported a disconnect.
	KindConnectionLost
	// KindTimeout: no inbound frame advanced an in-flight transfer in time.
	KindTimeout
)

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindTruncatedFrame:
		return "TRUNCATED_FRAME"
	case KindEncodingError:
		return "ENCODING_ERROR"
	case KindChunkOutOfBounds:
		return "CHUNK_OUT_OF_BOUNDS"
	case KindProtocolViolation:
		return "PROTOCOL_VIOLATION"
	case KindPeerReportedError:
		return "PEER_REPORTED_ERROR"
	case KindConnectionLost:
		return "CONNECTION_LOST"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("UNKNOWN_ERROR_KIND_%d", uint8(k))
	}
}

// Error is a transfer-engine error carrying a kind, a message and an
// optional underlying cause. It implements the standard error interface.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

// Error returns a string representation of the Error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transfer error: %s (kind %s): %s", e.Msg, e.Kind, e.Cause)
	}
	return fmt.Sprintf("transfer error: %s (kind %s)", e.Msg, e.Kind)
}

// Unwrap returns the underlying cause of the error, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, making
// errors.Is usable with sentinel kinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError creates a new Error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// NewErrorWithCause creates a new Error with an underlying cause.
func NewErrorWithCause(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the ErrorKind from err. It returns KindNone for nil or
// for errors that are not *Error; no classification of foreign errors is
// attempted.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
