//go:build linux

package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady reports a dequeue attempt with nothing completed. The
	// queue is unchanged; the caller decides whether and when to retry.
	ErrNotReady = errors.New("no slot ready")
	// ErrInvalidArgument reports a caller mistake (bad index, payload that
	// does not fit the negotiated format, slot owned by the device). It is
	// raised before any control request is issued.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotStreaming reports a dequeue on a queue that is not streaming.
	ErrNotStreaming = errors.New("streaming is not active")
	// ErrStreamingActive reports a teardown or re-allocation attempt while
	// streaming is still on.
	ErrStreamingActive = errors.New("streaming is active")
)

// FatalError poisons the queue: once raised, every operation except the
// teardown path returns it until the queue is released and renegotiated.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal device error: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// SubmitError reports a queue submission the device rejected. The slot stays
// Free and no partial state is retained.
type SubmitError struct {
	Index uint32
	Err   error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("slot %d rejected by device: %v", e.Index, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
