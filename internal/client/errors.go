package client

import "errors"

// ConflictError means a session start was attempted while one is already
// running. Never retried automatically; the caller must re-fetch current
// session state.
type ConflictError struct {
	Message    string
	StatusCode int
}

func (e *ConflictError) Error() string {
	return e.Message
}

// InvalidStateError means pause/resume/stop was called from a lifecycle state
// that does not permit it
type InvalidStateError struct {
	Message    string
	StatusCode int
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// AuthorizationError means the backend rejected the bearer credential. The
// client clears persisted credentials through its callback unless the failing
// call was itself an auth attempt.
type AuthorizationError struct {
	Message    string
	StatusCode int
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// BackendError covers any other non-2xx response or transport-level failure
type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsInvalidState reports whether err is an InvalidStateError
func IsInvalidState(err error) bool {
	var ie *InvalidStateError
	return errors.As(err, &ie)
}

// IsAuthorization reports whether err is an AuthorizationError
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}
