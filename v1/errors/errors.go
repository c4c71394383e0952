// Package errors defines the error values shared by the lock and wait
// packages.
package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIllegalState is returned by Release on a lock that is not held.
	ErrIllegalState = errors.New("settle: lock is not held")
	// ErrAlreadyHeld is returned by Acquire on a held lock when await
	// checking is enabled.
	ErrAlreadyHeld = errors.New("settle: lock already held")
	// ErrTimeout matches every TimeoutError.
	ErrTimeout = errors.New("settle: condition not satisfied in time")
)

// TimeoutError is returned when a wait reaches its deadline without a match
// and without a pending probe error. LastValue holds the most recent sampled
// value that failed to match.
type TimeoutError struct {
	LastValue any
	// HasValue is false when the probe never produced a value.
	HasValue bool
	Timeout  time.Duration
	Polls    int
}

func (e *TimeoutError) Error() string {
	if !e.HasValue {
		return fmt.Sprintf("%s after %s (%d polls)", ErrTimeout, e.Timeout, e.Polls)
	}
	return fmt.Sprintf("%s after %s (%d polls, last value: %v)", ErrTimeout, e.Timeout, e.Polls, e.LastValue)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// PanicError carries the value recovered from a panicking probe.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("settle: probe panicked: %v", e.Value)
}

// Unwrap returns the recovered value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
