package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks input rejected before any persistence attempt.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing receipt, transaction, request or customer.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a write that lost a race or would duplicate a unique record.
	ErrConflict = errors.New("conflict")

	// ErrPersistence marks an underlying store failure.
	ErrPersistence = errors.New("persistence failure")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidationErrors collects every field failure of one command.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type ConflictError struct {
	Entity string
	ID     any
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// PersistenceError hides store detail behind a generic message.
// The wrapped error stays reachable for logging through errors.As.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrPersistence)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// ItemFailure is one item a batch could not process.
type ItemFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// PartialFailure reports a batch that finished with some items skipped.
type PartialFailure struct {
	Succeeded int
	Failures  []ItemFailure
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("batch finished with %d failures (%d succeeded)", len(e.Failures), e.Succeeded)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// Persistence wraps err unless it already carries a ledger error kind.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsConflict(err) || IsValidation(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
