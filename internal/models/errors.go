package models

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence matches any *PersistenceError via errors.Is.
	ErrPersistence = errors.New("persistence failure")

	// ErrMalformedEvent is returned for inbound frames that cannot be decoded
	// or are missing required fields.
	ErrMalformedEvent = errors.New("malformed event")
)

// PersistenceError reports a history store that was unreachable, rejected a
// read or write, or did not answer within the persistence timeout.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// MalformedEvent wraps a decoding or validation problem as ErrMalformedEvent.
func MalformedEvent(eventType string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, eventType, err)
}
