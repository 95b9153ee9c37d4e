package todoapi

import (
	"errors"
	"fmt"
)

// ValidationError means the service rejected the payload's content. The
// message comes from the service and is meant for the user.
type ValidationError struct {
	Op         string
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: rejected by service (%d): %s", e.Op, e.StatusCode, e.Message)
}

// NotFoundError means the target task no longer exists on the service.
type NotFoundError struct {
	Op      string
	ID      string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: task %s not found: %s", e.Op, e.ID, e.Message)
}

// TransportError covers network failures, timeouts and unexpected status
// codes. StatusCode is zero when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means a success response did not hold a well-formed task.
type DecodeError struct {
	Op    string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: malformed response field %q: %v", e.Op, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Message returns the text to show a user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var (
		verr *ValidationError
		nerr *NotFoundError
		terr *TransportError
		derr *DecodeError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.As(err, &nerr):
		return nerr.Message
	case errors.As(err, &terr):
		if terr.StatusCode == 0 {
			return terr.Message + ", please retry"
		}
		return terr.Message
	case errors.As(err, &derr):
		return "The task service sent a response that could not be read"
	}
	return err.Error()
}

// Retryable reports whether retrying the same call could succeed.
func Retryable(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}
