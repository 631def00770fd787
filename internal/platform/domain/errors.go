package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel error kinds. Concrete errors are marked with one of these so callers
// can branch with errors.Is regardless of how deeply the error was wrapped.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrDataUnavailable = errors.New("data unavailable")
	ErrMalformedRecord = errors.New("malformed record")
	ErrUnsupported     = errors.New("unsupported operation")
)

// DomainError is a typed error carrying one of the sentinel kinds.
type DomainError struct {
	Err     error
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) error {
	return &DomainError{Err: ErrNotFound, Message: fmt.Sprintf("%s %s", entity, id)}
}

// NewConflictError reports a concurrent modification or duplicate.
func NewConflictError(msg string) error {
	return &DomainError{Err: ErrConflict, Message: msg}
}

// NewInvalidStateError reports a disallowed state transition.
func NewInvalidStateError(from, to string) error {
	return &DomainError{Err: ErrInvalidState, Message: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

// NewValidationError reports invalid input.
func NewValidationError(msg string) error {
	return &DomainError{Err: ErrValidation, Message: msg}
}

// NewMalformedRecordError reports a stored record that cannot be interpreted.
func NewMalformedRecordError(id, detail string) error {
	return &DomainError{Err: ErrMalformedRecord, Message: fmt.Sprintf("record %s: %s", id, detail)}
}

// Unavailable wraps a store or network failure and marks it as ErrDataUnavailable.
// The original cause stays reachable through errors.Is / errors.As.
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrDataUnavailable)
}

// Unsupported marks err as ErrUnsupported.
func Unsupported(msg string) error {
	return errors.Mark(errors.New(msg), ErrUnsupported)
}

// Is reports whether err carries the given kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
