//go:build linux

package v4l2

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/edgevid/v4l2/pkg/raw"
)

// WaitReady blocks until the device has a completed slot to hand back, the
// timeout expires, or the wait is interrupted. A negative timeout waits
// indefinitely. Capture handles wait for read readiness, output handles for
// write readiness.
func (d *Device) WaitReady(timeout time.Duration) error {
	if err := d.guard(); err != nil {
		return err
	}
	fd := d.ch.Fd()

	var set unix.FdSet
	set.Set(fd)

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	var n int
	var err error
	if d.dir == Output {
		n, err = unix.Select(fd+1, nil, &set, nil, tv)
	} else {
		n, err = unix.Select(fd+1, &set, nil, nil, tv)
	}
	switch {
	case err == unix.EINTR:
		return raw.ErrInterrupted
	case err != nil:
		return err
	case n == 0:
		return ErrTimeout
	}
	return nil
}
