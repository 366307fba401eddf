//go:build linux

package memory

import "fmt"

// UserPtr records caller-supplied memory per queue submission. The strategy
// never owns the memory: the slices are borrowed while the slot is queued,
// and the slot state is what signals the ownership handover.
type UserPtr struct {
	slots map[uint32][]Region
}

// NewUserPtr builds a caller-supplied memory strategy.
func NewUserPtr() *UserPtr {
	return &UserPtr{slots: make(map[uint32][]Region)}
}

func (u *UserPtr) Type() Type { return TypeUserPtr }

// Attach records the plane count; memory arrives at queue time.
func (u *UserPtr) Attach(index uint32, layout []PlaneLayout) error {
	u.slots[index] = make([]Region, len(layout))
	return nil
}

// Bind validates the payload slices against the negotiated plane sizes and
// records them as the slot's backing. A plane shorter than the negotiated
// size is rejected here, before any control request is issued.
func (u *UserPtr) Bind(index uint32, payload *Payload, sizes []uint32) ([]Region, error) {
	if _, ok := u.slots[index]; !ok {
		return nil, fmt.Errorf("slot %d is not attached", index)
	}
	if payload == nil || len(payload.Planes) != len(sizes) {
		got := 0
		if payload != nil {
			got = len(payload.Planes)
		}
		return nil, fmt.Errorf("%w: got %d planes, format has %d", ErrPlaneMismatch, got, len(sizes))
	}
	if len(payload.FDs) > 0 {
		return nil, fmt.Errorf("%w: user-allocated slots take memory, not descriptors", ErrPlaneMismatch)
	}
	regions := make([]Region, len(sizes))
	for i, plane := range payload.Planes {
		if len(plane) == 0 {
			return nil, fmt.Errorf("%w: plane %d is empty", ErrPlaneMismatch, i)
		}
		if uint32(len(plane)) < sizes[i] {
			return nil, fmt.Errorf("%w: plane %d is %d bytes, format needs %d",
				ErrPlaneMismatch, i, len(plane), sizes[i])
		}
		regions[i] = Region{
			Data:      plane,
			FD:        -1,
			Length:    uint32(len(plane)),
			BytesUsed: payloadBytesUsed(payload, i),
		}
	}
	u.slots[index] = regions
	return regions, nil
}

func (u *UserPtr) Regions(index uint32) []Region {
	return u.slots[index]
}

// Detach drops the borrowed references. The memory itself belongs to the
// caller and is left alone.
func (u *UserPtr) Detach(index uint32) error {
	delete(u.slots, index)
	return nil
}
