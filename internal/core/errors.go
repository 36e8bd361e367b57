package core

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when an event id does not exist in the store.
	ErrNotFound = errors.New("event not found")
	// ErrReadOnly is returned by stores that cannot be mutated (ICS feeds).
	ErrReadOnly = errors.New("store is read-only")
	// ErrInvalidInput marks malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInconsistent marks a store result that cannot be merged into held state.
	ErrInconsistent = errors.New("inconsistent store result")
)

var validate = validator.New()

// StoreError wraps a failure from an EventStore operation.
type StoreError struct {
	Op      string
	StoreID string
	Err     error
}

func (e *StoreError) Error() string {
	if e.StoreID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.StoreID, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStoreError returns nil for a nil err, otherwise a *StoreError.
// An err that already is a *StoreError is returned unchanged.
func WrapStoreError(op, storeID string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, StoreID: storeID, Err: err}
}
