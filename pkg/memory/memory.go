//go:build linux

// Package memory implements the buffer backing strategies a queue allocation
// can use: kernel-mapped memory (Mmap), caller-supplied memory (UserPtr) and
// imported dmabuf descriptors (DmaBuf). A queue holds exactly one strategy for
// the lifetime of an allocation and never mixes variants.
package memory

import (
	"errors"

	"github.com/edgevid/v4l2/pkg/videodev"
)

// Type is the V4L2 memory code carried in allocation and queue requests.
type Type uint32

const (
	TypeMmap    Type = Type(videodev.MemoryMmap)
	TypeUserPtr Type = Type(videodev.MemoryUserPtr)
	TypeDmaBuf  Type = Type(videodev.MemoryDmaBuf)
)

func (t Type) String() string {
	switch t {
	case TypeMmap:
		return "mmap"
	case TypeUserPtr:
		return "userptr"
	case TypeDmaBuf:
		return "dmabuf"
	}
	return "unknown"
}

// ErrPlaneMismatch reports a payload whose plane count or sizes do not match
// the negotiated format. The slot is left untouched.
var ErrPlaneMismatch = errors.New("payload does not match negotiated plane layout")

// Region is one contiguous backing span for a plane of a slot. Data is nil
// for imported descriptors; FD is -1 unless the plane is an imported dmabuf.
type Region struct {
	Data      []byte
	FD        int
	Length    uint32
	BytesUsed uint32
}

// PlaneLayout is the device-side layout of one plane of an allocated slot,
// as reported by the buffer query after allocation.
type PlaneLayout struct {
	Offset uint32
	Length uint32
}

// Payload is the caller-supplied backing handed over when a slot is queued.
// Which fields may be set depends on the strategy: UserPtr takes Planes,
// DmaBuf takes FDs, Mmap takes neither. BytesUsed describes, per plane, how
// many bytes the caller filled; it is only meaningful for the output
// direction.
type Payload struct {
	Planes    [][]byte
	FDs       []int
	BytesUsed []uint32
}

// Strategy owns the memory regions backing each slot of one allocation.
//
// Attach is called once per slot right after allocation succeeds. Bind is
// called on every queue submission: it validates the payload against the
// negotiated plane sizes and returns the regions to marshal into the control
// request, failing with ErrPlaneMismatch before anything reaches the device.
// Regions exposes the current backing of a slot; the queue only consults it
// while the application owns the slot. Detach releases the backing at
// teardown.
type Strategy interface {
	Type() Type
	Attach(index uint32, layout []PlaneLayout) error
	Bind(index uint32, payload *Payload, sizes []uint32) ([]Region, error)
	Regions(index uint32) []Region
	Detach(index uint32) error
}

func payloadBytesUsed(payload *Payload, plane int) uint32 {
	if payload == nil || plane >= len(payload.BytesUsed) {
		return 0
	}
	return payload.BytesUsed[plane]
}
