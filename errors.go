//go:build linux

package v4l2

import (
	"errors"
	"fmt"
)

// ErrTimeout reports a readiness wait that expired with nothing to deliver.
var ErrTimeout = errors.New("wait for readiness timed out")

// SequencingError reports an operation attempted in the wrong lifecycle
// stage. It is raised locally, before any control request reaches the device.
type SequencingError struct {
	From State
	To   State
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("invalid state: cannot move from %s to %s", e.From, e.To)
}

// NegotiationError reports a format the device rejected or cannot provide.
type NegotiationError struct {
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("format negotiation failed: %v", e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// AllocationError reports a buffer allocation that failed, either on the
// device side or while attaching the memory strategy.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("buffer allocation failed: %v", e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
