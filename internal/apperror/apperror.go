// Package apperror defines the error kinds every layer of eventhub speaks.
//
// Services return *AppError values wrapping one of the sentinels below.
// Handlers match them with errors.Is and turn them into HTTP responses, so
// the service layer never needs to know about status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAlreadyJoined   = errors.New("already joined")
	ErrUnavailable     = errors.New("unavailable")
)

// Stable, client-facing messages for the RSVP failure kinds.
// Clients branch on the error kind; these strings never change.
const (
	MsgAlreadyJoined = "You have already joined this event"
	MsgUnavailable   = "Event is full or unavailable"
)

// MsgEmailLinkedElsewhere is the Conflict message for a GitHub sign-in whose
// email belongs to an account linked to a different GitHub user.
const MsgEmailLinkedElsewhere = "This email is already linked to a different GitHub account"

type AppError struct {
	Err     error  // sentinel kind
	Message string // human-readable message, safe to show to clients
	Field   string // optional: input field that failed validation
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation such as a duplicate email.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated means the credential was missing, invalid or wrong.
// The message is deliberately generic so it does not reveal which part failed.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// AlreadyJoined is returned by Join when the user is already an attendee.
func AlreadyJoined() *AppError {
	return &AppError{
		Err:     ErrAlreadyJoined,
		Message: MsgAlreadyJoined,
	}
}

// Unavailable is returned by Join when the event is full, gone, or changed
// underneath the request. These cases are intentionally not told apart.
func Unavailable() *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: MsgUnavailable,
	}
}
