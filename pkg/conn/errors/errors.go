// Package errors provides error codes and the error type shared by the
// connection object layer and the session manager built on top of it.
// This is a leaf package with no internal dependencies so that both
// pkg/conn and pkg/smbconn (and the transports) can import it.
//
// Import graph: errors <- conn <- smbconn
package errors

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrPermissionDenied indicates the caller may not request the
	// given owner or group, or failed the access check.
	ErrPermissionDenied ErrorCode = iota + 1

	// ErrNotFound indicates no session or share matched and creation
	// was not permitted.
	ErrNotFound

	// ErrTransport indicates the transport collaborator failed
	// (network or handshake failure).
	ErrTransport

	// ErrBusy indicates an object could not be destroyed because live
	// references remain.
	ErrBusy

	// ErrInterrupted indicates a blocking wait was cancelled.
	ErrInterrupted

	// ErrGone indicates the object has been marked gone and can no
	// longer be locked.
	ErrGone

	// ErrRecursiveLock indicates the lock owner tried to take an
	// exclusive lock it already holds.
	ErrRecursiveLock

	// ErrInvalidArgument indicates a malformed request.
	ErrInvalidArgument
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrPermissionDenied:
		return "PermissionDenied"
	case ErrNotFound:
		return "NotFound"
	case ErrTransport:
		return "TransportError"
	case ErrBusy:
		return "Busy"
	case ErrInterrupted:
		return "Interrupted"
	case ErrGone:
		return "Gone"
	case ErrRecursiveLock:
		return "RecursiveLock"
	case ErrInvalidArgument:
		return "InvalidArgument"
	default:
		return fmt.Sprintf("Unknown(%d)", int(e))
	}
}

// ConnError is the error returned by connection operations.
//
// Object names the session or share involved (server address, share
// name or object id) and may be empty.
type ConnError struct {
	Code    ErrorCode
	Message string
	Object  string
	cause   error
}

// Error implements the error interface.
func (e *ConnError) Error() string {
	msg := e.Message
	if e.Object != "" {
		msg = msg + ": " + e.Object
	}
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *ConnError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a *ConnError with the same code. This
// lets callers compare against the sentinel values below with
// errors.Is.
func (e *ConnError) Is(target error) bool {
	t, ok := target.(*ConnError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Object == ""
}

// Sentinels for errors.Is comparisons. They carry only a code.
var (
	PermissionDenied = &ConnError{Code: ErrPermissionDenied}
	NotFound         = &ConnError{Code: ErrNotFound}
	Transport        = &ConnError{Code: ErrTransport}
	Busy             = &ConnError{Code: ErrBusy}
	Interrupted      = &ConnError{Code: ErrInterrupted}
	Gone             = &ConnError{Code: ErrGone}
	RecursiveLock    = &ConnError{Code: ErrRecursiveLock}
	InvalidArgument  = &ConnError{Code: ErrInvalidArgument}
)

// NewPermissionDeniedError reports an identity/owner-group mismatch.
func NewPermissionDeniedError(reason string) *ConnError {
	return &ConnError{Code: ErrPermissionDenied, Message: "permission denied", Object: reason}
}

// NewNotFoundError reports that nothing matched the request.
func NewNotFoundError(object string) *ConnError {
	return &ConnError{Code: ErrNotFound, Message: "no matching connection", Object: object}
}

// NewTransportError wraps a failure returned by the transport. The
// cause is wrapped with a stack trace so the original failure site
// stays visible in verbose error output.
func NewTransportError(op, object string, cause error) *ConnError {
	return &ConnError{
		Code:    ErrTransport,
		Message: op + " failed",
		Object:  object,
		cause:   cerrors.WithStack(cause),
	}
}

// NewBusyError reports that live references prevent destruction.
func NewBusyError(object string, refs int) *ConnError {
	return &ConnError{
		Code:    ErrBusy,
		Message: fmt.Sprintf("object busy (%d references)", refs),
		Object:  object,
	}
}

// NewInterruptedError reports a cancelled wait. cause is the context
// error.
func NewInterruptedError(object string, cause error) *ConnError {
	return &ConnError{Code: ErrInterrupted, Message: "wait interrupted", Object: object, cause: cause}
}

// NewGoneError reports an operation on an object marked gone.
func NewGoneError(object string) *ConnError {
	return &ConnError{Code: ErrGone, Message: "object is gone", Object: object}
}

// NewRecursiveLockError reports a re-entrant exclusive acquisition.
func NewRecursiveLockError(object string) *ConnError {
	return &ConnError{Code: ErrRecursiveLock, Message: "recursive exclusive lock", Object: object}
}

// NewInvalidArgumentError reports a malformed request.
func NewInvalidArgumentError(message string) *ConnError {
	return &ConnError{Code: ErrInvalidArgument, Message: "invalid argument", Object: message}
}

// CodeOf returns the code of the first *ConnError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var ce *ConnError
	if cerrors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsPermissionDenied checks for ErrPermissionDenied.
func IsPermissionDenied(err error) bool { return IsCode(err, ErrPermissionDenied) }

// IsNotFound checks for ErrNotFound.
func IsNotFound(err error) bool { return IsCode(err, ErrNotFound) }

// IsTransport checks for ErrTransport.
func IsTransport(err error) bool { return IsCode(err, ErrTransport) }

// IsBusy checks for ErrBusy.
func IsBusy(err error) bool { return IsCode(err, ErrBusy) }

// IsInterrupted checks for ErrInterrupted.
func IsInterrupted(err error) bool { return IsCode(err, ErrInterrupted) }

// IsGone checks for ErrGone.
func IsGone(err error) bool { return IsCode(err, ErrGone) }
