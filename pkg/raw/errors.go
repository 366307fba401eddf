//go:build linux

package raw

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Typed failures of the control channel. Callers classify with errors.Is.
var (
	// ErrInvalid reports a request the device rejected as malformed or
	// unsupported, and also terminates enumerations.
	ErrInvalid = errors.New("invalid argument")
	// ErrBusy reports a request that conflicts with outstanding device state.
	ErrBusy = errors.New("device busy")
	// ErrNoDevice reports a device that disappeared under the descriptor.
	ErrNoDevice = errors.New("no such device")
	// ErrInterrupted reports a request cut short by a signal.
	ErrInterrupted = errors.New("interrupted")
	// ErrWouldBlock reports a non-blocking request with nothing to deliver.
	ErrWouldBlock = errors.New("resource temporarily unavailable")
	// ErrEndOfStream reports that the device signalled end of stream.
	ErrEndOfStream = errors.New("end of stream")
	// ErrIO reports a device-side I/O failure.
	ErrIO = errors.New("device i/o error")
)

func errnoErr(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}
	switch errno {
	case unix.EINVAL:
		return ErrInvalid
	case unix.EBUSY:
		return ErrBusy
	case unix.ENODEV, unix.ENXIO:
		return ErrNoDevice
	case unix.EINTR:
		return ErrInterrupted
	case unix.EAGAIN:
		return ErrWouldBlock
	case unix.EPIPE:
		return ErrEndOfStream
	case unix.EIO:
		return ErrIO
	}
	return err
}

// Fatal reports whether err indicates the device itself failed, as opposed to
// a rejected or retriable request. Fatal errors poison the owning queue.
func Fatal(err error) bool {
	return errors.Is(err, ErrNoDevice) || errors.Is(err, ErrIO)
}
