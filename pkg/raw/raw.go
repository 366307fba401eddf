//go:build linux

// Package raw issues individual V4L2 control requests against an open device
// descriptor. It is stateless: every call is one ioctl, and failures come back
// as the typed errors of this package so callers never match on raw errno
// values.
package raw

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/edgevid/v4l2/pkg/videodev"
)

// Channel is a control channel bound to one open descriptor. It performs no
// sequencing or ownership checks; that is the queue's job.
type Channel struct {
	fd int
}

// Open opens the device node read-write and non-blocking. Dequeue requests on
// a non-blocking descriptor return ErrWouldBlock instead of sleeping, which
// lets the caller decide between polling and retrying.
func Open(path string) (*Channel, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errnoErr(err)
	}
	return &Channel{fd: fd}, nil
}

// NewChannel wraps an already-open descriptor. The caller keeps ownership.
func NewChannel(fd int) *Channel {
	return &Channel{fd: fd}
}

// Fd exposes the descriptor for mmap and readiness polling.
func (c *Channel) Fd() int { return c.fd }

// Close releases the descriptor.
func (c *Channel) Close() error {
	return errnoErr(unix.Close(c.fd))
}

// Invoke issues a single ioctl. arg must point to a structure whose layout
// matches the request code.
func (c *Channel) Invoke(req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errnoErr(errno)
	}
	return nil
}

// QueryCap fills cap from VIDIOC_QUERYCAP.
func (c *Channel) QueryCap(cap *videodev.Capability) error {
	return c.Invoke(videodev.VidiocQueryCap, unsafe.Pointer(cap))
}

// EnumFormat fills desc from VIDIOC_ENUM_FMT. The caller sets Index and Type;
// ErrInvalid marks the end of the enumeration.
func (c *Channel) EnumFormat(desc *videodev.FmtDesc) error {
	return c.Invoke(videodev.VidiocEnumFmt, unsafe.Pointer(desc))
}

// EnumFrameSizes fills e from VIDIOC_ENUM_FRAMESIZES.
func (c *Channel) EnumFrameSizes(e *videodev.FrmSizeEnum) error {
	return c.Invoke(videodev.VidiocEnumFrameSizes, unsafe.Pointer(e))
}

// GetFormat fills f from VIDIOC_G_FMT for f.Type.
func (c *Channel) GetFormat(f *videodev.Format) error {
	return c.Invoke(videodev.VidiocGetFormat, unsafe.Pointer(f))
}

// SetFormat negotiates f via VIDIOC_S_FMT. The driver may amend the requested
// values in place.
func (c *Channel) SetFormat(f *videodev.Format) error {
	return c.Invoke(videodev.VidiocSetFormat, unsafe.Pointer(f))
}

// TryFormat probes f via VIDIOC_TRY_FMT without changing device state.
func (c *Channel) TryFormat(f *videodev.Format) error {
	return c.Invoke(videodev.VidiocTryFormat, unsafe.Pointer(f))
}

// RequestBuffers negotiates a buffer allocation via VIDIOC_REQBUFS. The
// granted count comes back in rb.Count and may differ from the request.
func (c *Channel) RequestBuffers(rb *videodev.RequestBuffers) error {
	return c.Invoke(videodev.VidiocReqBufs, unsafe.Pointer(rb))
}

// QueryBuffer fills b with the layout of an allocated slot (VIDIOC_QUERYBUF).
func (c *Channel) QueryBuffer(b *videodev.Buffer) error {
	return c.Invoke(videodev.VidiocQueryBuf, unsafe.Pointer(b))
}

// QueueBuffer hands a slot to the device (VIDIOC_QBUF).
func (c *Channel) QueueBuffer(b *videodev.Buffer) error {
	return c.Invoke(videodev.VidiocQBuf, unsafe.Pointer(b))
}

// DequeueBuffer reclaims a completed slot (VIDIOC_DQBUF). On a non-blocking
// descriptor this returns ErrWouldBlock when nothing has completed.
func (c *Channel) DequeueBuffer(b *videodev.Buffer) error {
	return c.Invoke(videodev.VidiocDQBuf, unsafe.Pointer(b))
}

// StreamOn starts streaming for the buffer type (VIDIOC_STREAMON).
func (c *Channel) StreamOn(bufType uint32) error {
	return c.Invoke(videodev.VidiocStreamOn, unsafe.Pointer(&bufType))
}

// StreamOff stops streaming and forces the device to relinquish every queued
// slot (VIDIOC_STREAMOFF).
func (c *Channel) StreamOff(bufType uint32) error {
	return c.Invoke(videodev.VidiocStreamOff, unsafe.Pointer(&bufType))
}

// ExportBuffer exports one plane of an mmap slot as a dmabuf fd
// (VIDIOC_EXPBUF).
func (c *Channel) ExportBuffer(e *videodev.ExportBuffer) error {
	return c.Invoke(videodev.VidiocExpBuf, unsafe.Pointer(e))
}

// GetControl reads a simple control value (VIDIOC_G_CTRL).
func (c *Channel) GetControl(ctrl *videodev.Control) error {
	return c.Invoke(videodev.VidiocGetCtrl, unsafe.Pointer(ctrl))
}

// SetControl writes a simple control value (VIDIOC_S_CTRL).
func (c *Channel) SetControl(ctrl *videodev.Control) error {
	return c.Invoke(videodev.VidiocSetCtrl, unsafe.Pointer(ctrl))
}

// GetParm reads streaming parameters (VIDIOC_G_PARM).
func (c *Channel) GetParm(p *videodev.StreamParm) error {
	return c.Invoke(videodev.VidiocGetParm, unsafe.Pointer(p))
}

// SetParm writes streaming parameters such as the frame interval
// (VIDIOC_S_PARM).
func (c *Channel) SetParm(p *videodev.StreamParm) error {
	return c.Invoke(videodev.VidiocSetParm, unsafe.Pointer(p))
}
