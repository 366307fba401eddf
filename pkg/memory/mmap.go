//go:build linux

package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mmap maps device-allocated buffer memory into the process and owns the
// mappings until Detach. The application reads and writes through the
// length-bounded Region views; there is no way to reach past a mapping.
type Mmap struct {
	fd    int
	slots map[uint32][]Region
}

// NewMmap builds a kernel-mapped strategy over the device descriptor the
// allocation belongs to.
func NewMmap(fd int) *Mmap {
	return &Mmap{fd: fd, slots: make(map[uint32][]Region)}
}

func (m *Mmap) Type() Type { return TypeMmap }

// Attach maps every plane of the slot. A failed plane unmaps the ones already
// mapped so a partial slot never survives.
func (m *Mmap) Attach(index uint32, layout []PlaneLayout) error {
	regions := make([]Region, 0, len(layout))
	for _, pl := range layout {
		data, err := unix.Mmap(m.fd, int64(pl.Offset), int(pl.Length),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			for _, r := range regions {
				_ = unix.Munmap(r.Data)
			}
			return fmt.Errorf("mmap slot %d: %w", index, err)
		}
		regions = append(regions, Region{Data: data, FD: -1, Length: pl.Length})
	}
	m.slots[index] = regions
	return nil
}

// Bind rejects any payload memory: the backing already exists in the mapping.
// Only BytesUsed may be supplied, for the output direction.
func (m *Mmap) Bind(index uint32, payload *Payload, sizes []uint32) ([]Region, error) {
	regions, ok := m.slots[index]
	if !ok {
		return nil, fmt.Errorf("slot %d is not attached", index)
	}
	if payload != nil && (len(payload.Planes) > 0 || len(payload.FDs) > 0) {
		return nil, fmt.Errorf("%w: kernel-mapped slots take no memory payload", ErrPlaneMismatch)
	}
	if len(regions) != len(sizes) {
		return nil, fmt.Errorf("%w: slot has %d planes, format has %d", ErrPlaneMismatch, len(regions), len(sizes))
	}
	for i := range regions {
		regions[i].BytesUsed = payloadBytesUsed(payload, i)
	}
	m.slots[index] = regions
	return regions, nil
}

func (m *Mmap) Regions(index uint32) []Region {
	return m.slots[index]
}

// Detach unmaps the slot's planes.
func (m *Mmap) Detach(index uint32) error {
	regions, ok := m.slots[index]
	if !ok {
		return nil
	}
	delete(m.slots, index)
	for _, r := range regions {
		if r.Data == nil {
			continue
		}
		if err := unix.Munmap(r.Data); err != nil {
			return fmt.Errorf("munmap slot %d: %w", index, err)
		}
	}
	return nil
}
