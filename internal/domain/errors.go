package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound          = errors.New("not found")
	ErrConnection        = errors.New("broker unreachable")
	ErrQueueUnavailable  = errors.New("email queue is not initialized")
	ErrQueueClosed       = errors.New("email queue is shutting down")
	ErrHandlerRegistered = errors.New("a worker is already registered for this queue")
)

// ValidationError reports a job whose payload is missing a required field.
// It is permanent: retrying the same payload cannot succeed.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func (e *ValidationError) Error() string { return e.Message }

// UnknownJobTypeError reports a job type no dispatcher route exists for.
type UnknownJobTypeError struct {
	Type string
}

func (e *UnknownJobTypeError) Error() string {
	return fmt.Sprintf("unknown job type %q", e.Type)
}

// DispatchError wraps a failure of the email-sending collaborator.
// These are transient and retried by the queue.
type DispatchError struct {
	Type JobType
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Type, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsPermanent reports whether err marks a job that must not be retried.
func IsPermanent(err error) bool {
	var ve *ValidationError
	var ue *UnknownJobTypeError
	return errors.As(err, &ve) || errors.As(err, &ue)
}
