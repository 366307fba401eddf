//go:build linux

package memory

import "fmt"

// DmaBuf imports externally-allocated buffers by file descriptor. The
// strategy holds the descriptor numbers for the control request only; the
// underlying resource stays owned by whoever exported it.
type DmaBuf struct {
	slots map[uint32][]Region
}

// NewDmaBuf builds an imported-descriptor strategy.
func NewDmaBuf() *DmaBuf {
	return &DmaBuf{slots: make(map[uint32][]Region)}
}

func (d *DmaBuf) Type() Type { return TypeDmaBuf }

// Attach records the plane count; descriptors arrive at queue time.
func (d *DmaBuf) Attach(index uint32, layout []PlaneLayout) error {
	d.slots[index] = make([]Region, len(layout))
	return nil
}

// Bind validates one descriptor per negotiated plane and records them as the
// slot's backing.
func (d *DmaBuf) Bind(index uint32, payload *Payload, sizes []uint32) ([]Region, error) {
	if _, ok := d.slots[index]; !ok {
		return nil, fmt.Errorf("slot %d is not attached", index)
	}
	if payload == nil || len(payload.FDs) != len(sizes) {
		got := 0
		if payload != nil {
			got = len(payload.FDs)
		}
		return nil, fmt.Errorf("%w: got %d descriptors, format has %d planes", ErrPlaneMismatch, got, len(sizes))
	}
	if len(payload.Planes) > 0 {
		return nil, fmt.Errorf("%w: imported slots take descriptors, not memory", ErrPlaneMismatch)
	}
	regions := make([]Region, len(sizes))
	for i, fd := range payload.FDs {
		if fd < 0 {
			return nil, fmt.Errorf("%w: plane %d has invalid descriptor %d", ErrPlaneMismatch, i, fd)
		}
		regions[i] = Region{
			FD:        fd,
			Length:    sizes[i],
			BytesUsed: payloadBytesUsed(payload, i),
		}
	}
	d.slots[index] = regions
	return regions, nil
}

func (d *DmaBuf) Regions(index uint32) []Region {
	return d.slots[index]
}

// Detach drops the descriptor references without closing them.
func (d *DmaBuf) Detach(index uint32) error {
	delete(d.slots, index)
	return nil
}
