package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced customer, staff, film or rental
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoAvailableCopy is returned when every copy of a film is rented out.
	ErrNoAvailableCopy = errors.New("no available copy")

	// ErrAlreadyReturned is returned when returning a rental twice.
	ErrAlreadyReturned = errors.New("rental already returned")

	// ErrCannotCancelReturned is returned when canceling a returned rental.
	ErrCannotCancelReturned = errors.New("cannot cancel a returned rental")

	// ErrTransient marks store contention or timeouts; the whole operation may
	// be retried against fresh reads.
	ErrTransient = errors.New("transient store failure")

	// ErrAllocationRace marks a reservation that lost a race at insert time.
	// The lifecycle manager retries once and then reports ErrNoAvailableCopy.
	ErrAllocationRace = errors.New("inventory copy reserved concurrently")
)

// Kind classifies errors for callers deciding on retries and responses.
type Kind int

const (
	KindFatal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidState
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     int32
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFound builds a NotFoundError for entity/id.
func NewNotFound(entity string, id int32) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// KindOf maps any error onto the taxonomy. Unknown errors are fatal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindFatal
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoAvailableCopy), errors.Is(err, ErrAllocationRace):
		return KindConflict
	case errors.Is(err, ErrAlreadyReturned), errors.Is(err, ErrCannotCancelReturned):
		return KindInvalidState
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindFatal
	}
}

// IsRetryable reports whether the whole operation may be retried once.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrAllocationRace)
}

// IsNotFound reports whether err refers to a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
