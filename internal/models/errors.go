package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a guard rejects a state change.
	ErrInvalidTransition = errors.New("invalid transition")

	ErrNotFound            = errors.New("not found")
	ErrOrderNotFound       = fmt.Errorf("order %w", ErrNotFound)
	ErrLineNotFound        = fmt.Errorf("order line %w", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)

	// ErrLockHeld means another session holds the resource lock.
	ErrLockHeld = errors.New("resource lock held by another session")

	// ErrPersistenceConflict means the row changed between read and write.
	// Callers retry once before surfacing it as a transient failure.
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrCorruptStatus is a data integrity failure: a stored status value
	// is outside the known enum.
	ErrCorruptStatus = errors.New("unrecognized status value")

	ErrValidation = errors.New("validation failed")

	// ErrForbidden means the participant's role may not perform the action.
	ErrForbidden = errors.New("action not permitted for participant role")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrValidation
}

// TransitionError carries the rejected event and the state it was
// attempted from. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", e.Entity, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
