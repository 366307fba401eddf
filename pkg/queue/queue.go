//go:build linux

// Package queue tracks the ownership of every buffer slot negotiated with a
// V4L2 device. Each slot is either Free (application owns it), Queued (device
// owns it) or Ready (completed, application owns it again), and every
// transition goes through the queue so the two sides can never hold a slot at
// the same time.
//
// The queue talks to the device through the Controller boundary only, which
// keeps it independent of how control requests are encoded and makes the
// state machine testable without hardware.
package queue

import (
	"errors"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/edgevid/v4l2/internal/logging"
	"github.com/edgevid/v4l2/pkg/memory"
	"github.com/edgevid/v4l2/pkg/raw"
	"github.com/edgevid/v4l2/pkg/videodev"
)

var logger = logging.NewLogger("v4l2/queue")

// Controller is the control-channel boundary the queue consumes. *raw.Channel
// implements it; tests substitute a fake device.
type Controller interface {
	RequestBuffers(*videodev.RequestBuffers) error
	QueryBuffer(*videodev.Buffer) error
	QueueBuffer(*videodev.Buffer) error
	DequeueBuffer(*videodev.Buffer) error
	StreamOn(bufType uint32) error
	StreamOff(bufType uint32) error
}

// SlotState is the ownership state of one buffer slot.
type SlotState uint8

const (
	// SlotFree means the application owns the slot and may fill or queue it.
	SlotFree SlotState = iota
	// SlotQueued means the device owns the slot; its memory is off limits.
	SlotQueued
	// SlotReady means the device completed the slot and the application owns
	// it again, metadata included.
	SlotReady
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotQueued:
		return "queued"
	case SlotReady:
		return "ready"
	}
	return "unknown"
}

// Meta is the device-populated completion record of a dequeued slot.
type Meta struct {
	Index      uint32
	BytesUsed  uint32
	PlaneBytes []uint32
	Flags      uint32
	Sequence   uint32
	Timestamp  time.Time
}

// Config describes one allocation request.
type Config struct {
	// BufType is the V4L2 buffer type, single or multi-planar.
	BufType uint32
	// PlaneSizes are the negotiated per-plane sizes, one entry per plane.
	PlaneSizes []uint32
	// Count is the requested slot count. The device may grant fewer or more.
	Count uint32
}

func (c Config) mplane() bool {
	return c.BufType == videodev.BufTypeVideoCaptureMPlane ||
		c.BufType == videodev.BufTypeVideoOutputMPlane
}

// Queue is the allocated slot set of one device. It is the sole mutator of
// slot state and assumes a single logical caller; see the package note on
// concurrency in the root package.
type Queue struct {
	ctrl     Controller
	strategy memory.Strategy
	cfg      Config

	slots     []SlotState
	queued    int
	streaming bool
	fatal     error
}

// Allocate negotiates cfg.Count slots with the device and attaches the memory
// strategy to each granted slot. On any failure the allocation is unwound:
// no queue and no device-side buffer state survive.
func Allocate(ctrl Controller, strategy memory.Strategy, cfg Config) (*Queue, error) {
	if cfg.Count == 0 {
		return nil, fmt.Errorf("%w: slot count must be positive", ErrInvalidArgument)
	}
	if len(cfg.PlaneSizes) == 0 {
		return nil, fmt.Errorf("%w: format has no planes", ErrInvalidArgument)
	}
	if len(cfg.PlaneSizes) > videodev.MaxPlanes {
		return nil, fmt.Errorf("%w: %d planes exceeds the %d plane limit", ErrInvalidArgument, len(cfg.PlaneSizes), videodev.MaxPlanes)
	}
	if !cfg.mplane() && len(cfg.PlaneSizes) != 1 {
		return nil, fmt.Errorf("%w: single-planar buffer type with %d planes", ErrInvalidArgument, len(cfg.PlaneSizes))
	}

	rb := videodev.RequestBuffers{
		Count:  cfg.Count,
		Type:   cfg.BufType,
		Memory: uint32(strategy.Type()),
	}
	if err := ctrl.RequestBuffers(&rb); err != nil {
		return nil, fmt.Errorf("request %d buffers: %w", cfg.Count, err)
	}
	if rb.Count == 0 {
		return nil, fmt.Errorf("device granted no buffers for %d requested", cfg.Count)
	}

	q := &Queue{
		ctrl:     ctrl,
		strategy: strategy,
		cfg:      cfg,
		slots:    make([]SlotState, rb.Count),
	}

	for i := uint32(0); i < rb.Count; i++ {
		layout, err := q.slotLayout(i)
		if err == nil {
			err = strategy.Attach(i, layout)
		}
		if err != nil {
			q.unwind(i)
			return nil, fmt.Errorf("attach slot %d: %w", i, err)
		}
	}

	logger.Debugf("allocated %d slots (%s, %d planes)", rb.Count, strategy.Type(), len(cfg.PlaneSizes))
	return q, nil
}

// slotLayout queries the device-side layout of a slot. Only kernel-mapped
// allocations have one; the other strategies get placeholder planes.
func (q *Queue) slotLayout(index uint32) ([]memory.PlaneLayout, error) {
	layout := make([]memory.PlaneLayout, len(q.cfg.PlaneSizes))
	if q.strategy.Type() != memory.TypeMmap {
		return layout, nil
	}

	b := videodev.Buffer{
		Index:  index,
		Type:   q.cfg.BufType,
		Memory: uint32(q.strategy.Type()),
	}
	var planes [videodev.MaxPlanes]videodev.Plane
	if q.cfg.mplane() {
		b.Length = uint32(len(layout))
		b.SetPlanes(&planes[0])
	}
	err := q.ctrl.QueryBuffer(&b)
	runtime.KeepAlive(&planes)
	if err != nil {
		return nil, err
	}

	if q.cfg.mplane() {
		for i := range layout {
			layout[i] = memory.PlaneLayout{Offset: planes[i].Offset(), Length: planes[i].Length}
		}
	} else {
		layout[0] = memory.PlaneLayout{Offset: b.Offset(), Length: b.Length}
	}
	return layout, nil
}

func (q *Queue) unwind(attached uint32) {
	for i := uint32(0); i < attached; i++ {
		if err := q.strategy.Detach(i); err != nil {
			logger.Warnf("detach slot %d during unwind: %v", i, err)
		}
	}
	rb := videodev.RequestBuffers{Type: q.cfg.BufType, Memory: uint32(q.strategy.Type())}
	if err := q.ctrl.RequestBuffers(&rb); err != nil {
		logger.Warnf("free buffers during unwind: %v", err)
	}
}

// Count returns the granted slot count.
func (q *Queue) Count() int { return len(q.slots) }

// QueuedCount returns the number of slots the device currently holds.
func (q *Queue) QueuedCount() int { return q.queued }

// Streaming reports whether the device is processing queued slots.
func (q *Queue) Streaming() bool { return q.streaming }

// State returns the ownership state of one slot.
func (q *Queue) State(index uint32) (SlotState, error) {
	if int(index) >= len(q.slots) {
		return 0, fmt.Errorf("%w: slot %d of %d", ErrInvalidArgument, index, len(q.slots))
	}
	return q.slots[index], nil
}

// Planes exposes the backing regions of a slot while the application owns it.
// A queued slot's memory belongs to the device and is not reachable here.
func (q *Queue) Planes(index uint32) ([]memory.Region, error) {
	if int(index) >= len(q.slots) {
		return nil, fmt.Errorf("%w: slot %d of %d", ErrInvalidArgument, index, len(q.slots))
	}
	if q.slots[index] == SlotQueued {
		return nil, fmt.Errorf("%w: slot %d is owned by the device", ErrInvalidArgument, index)
	}
	return q.strategy.Regions(index), nil
}

// Enqueue hands a slot to the device. The payload carries caller memory or
// descriptors for the UserPtr and DmaBuf strategies and is validated against
// the negotiated plane sizes before any control request is issued. On a
// device rejection the slot stays Free and a SubmitError is returned.
func (q *Queue) Enqueue(index uint32, payload *memory.Payload) error {
	if q.fatal != nil {
		return q.fatal
	}
	if int(index) >= len(q.slots) {
		return fmt.Errorf("%w: slot %d of %d", ErrInvalidArgument, index, len(q.slots))
	}
	if q.slots[index] == SlotQueued {
		return fmt.Errorf("%w: slot %d is already queued", ErrInvalidArgument, index)
	}

	regions, err := q.strategy.Bind(index, payload, q.cfg.PlaneSizes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	b := videodev.Buffer{
		Index:  index,
		Type:   q.cfg.BufType,
		Memory: uint32(q.strategy.Type()),
	}
	var planes [videodev.MaxPlanes]videodev.Plane
	if q.cfg.mplane() {
		for i, r := range regions {
			planes[i].Length = r.Length
			planes[i].BytesUsed = r.BytesUsed
			switch q.strategy.Type() {
			case memory.TypeUserPtr:
				planes[i].SetUserPtr(uintptr(unsafe.Pointer(&r.Data[0])))
			case memory.TypeDmaBuf:
				planes[i].SetFD(int32(r.FD))
			}
		}
		b.Length = uint32(len(regions))
		b.SetPlanes(&planes[0])
	} else {
		r := regions[0]
		b.Length = r.Length
		b.BytesUsed = r.BytesUsed
		switch q.strategy.Type() {
		case memory.TypeUserPtr:
			b.SetUserPtr(uintptr(unsafe.Pointer(&r.Data[0])))
		case memory.TypeDmaBuf:
			b.SetFD(int32(r.FD))
		}
	}

	err = q.ctrl.QueueBuffer(&b)
	runtime.KeepAlive(&planes)
	runtime.KeepAlive(regions)
	if err != nil {
		if raw.Fatal(err) {
			return q.poison(err)
		}
		return &SubmitError{Index: index, Err: err}
	}

	q.slots[index] = SlotQueued
	q.queued++
	return nil
}

// Dequeue reclaims one completed slot. It never blocks: with nothing
// completed it returns ErrNotReady and the queue is unchanged. Completion
// order is decided by the device; the sequence number in the returned Meta is
// the authoritative ordering.
func (q *Queue) Dequeue() (Meta, error) {
	if q.fatal != nil {
		return Meta{}, q.fatal
	}
	if !q.streaming {
		return Meta{}, ErrNotStreaming
	}

	b := videodev.Buffer{
		Type:   q.cfg.BufType,
		Memory: uint32(q.strategy.Type()),
	}
	var planes [videodev.MaxPlanes]videodev.Plane
	if q.cfg.mplane() {
		b.Length = uint32(len(q.cfg.PlaneSizes))
		b.SetPlanes(&planes[0])
	}
	err := q.ctrl.DequeueBuffer(&b)
	runtime.KeepAlive(&planes)
	if err != nil {
		switch {
		case errors.Is(err, raw.ErrWouldBlock), errors.Is(err, raw.ErrInterrupted):
			return Meta{}, fmt.Errorf("%w: %w", ErrNotReady, err)
		case errors.Is(err, raw.ErrEndOfStream):
			return Meta{}, err
		default:
			// A dequeue the device cannot serve coherently leaves the
			// slot accounting unknowable.
			return Meta{}, q.poison(err)
		}
	}

	if int(b.Index) >= len(q.slots) || q.slots[b.Index] != SlotQueued {
		return Meta{}, q.poison(fmt.Errorf("device returned slot %d in state %v", b.Index, q.slotOrNone(b.Index)))
	}

	q.slots[b.Index] = SlotReady
	q.queued--

	meta := Meta{
		Index:     b.Index,
		Flags:     b.Flags,
		Sequence:  b.Sequence,
		Timestamp: time.Unix(b.Timestamp.Sec, b.Timestamp.Usec*1000),
	}
	if q.cfg.mplane() {
		meta.PlaneBytes = make([]uint32, len(q.cfg.PlaneSizes))
		for i := range meta.PlaneBytes {
			meta.PlaneBytes[i] = planes[i].BytesUsed
			meta.BytesUsed += planes[i].BytesUsed
		}
	} else {
		meta.BytesUsed = b.BytesUsed
		meta.PlaneBytes = []uint32{b.BytesUsed}
	}
	return meta, nil
}

// StreamOn starts device-side processing. Starting an already-streaming queue
// is a no-op. Slots may be queued before or after this point.
func (q *Queue) StreamOn() error {
	if q.fatal != nil {
		return q.fatal
	}
	if q.streaming {
		return nil
	}
	if err := q.ctrl.StreamOn(q.cfg.BufType); err != nil {
		if raw.Fatal(err) {
			return q.poison(err)
		}
		return fmt.Errorf("stream on: %w", err)
	}
	q.streaming = true
	return nil
}

// StreamOff stops device-side processing and forces every Queued slot back to
// Free, discarding its content. This is the single drain path and the only
// cancellation primitive. Stopping an already-stopped queue changes nothing
// and succeeds. StreamOff runs even on a poisoned queue so teardown can
// always proceed.
func (q *Queue) StreamOff() error {
	if !q.streaming {
		return nil
	}
	if err := q.ctrl.StreamOff(q.cfg.BufType); err != nil {
		if raw.Fatal(err) {
			return q.poison(err)
		}
		return fmt.Errorf("stream off: %w", err)
	}
	q.streaming = false
	for i, s := range q.slots {
		if s == SlotQueued {
			q.slots[i] = SlotFree
		}
	}
	q.queued = 0
	return nil
}

// Release frees every slot and returns the allocation to the device.
// Streaming must be stopped first. Release runs even on a poisoned queue;
// it is the explicit recovery step.
func (q *Queue) Release() error {
	if q.streaming {
		return ErrStreamingActive
	}
	var firstErr error
	for i := range q.slots {
		if err := q.strategy.Detach(uint32(i)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	q.slots = nil
	q.queued = 0

	rb := videodev.RequestBuffers{Type: q.cfg.BufType, Memory: uint32(q.strategy.Type())}
	if err := q.ctrl.RequestBuffers(&rb); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (q *Queue) poison(err error) error {
	if q.fatal == nil {
		q.fatal = &FatalError{Err: err}
		logger.Errorf("queue poisoned: %v", err)
	}
	return q.fatal
}

func (q *Queue) slotOrNone(index uint32) SlotState {
	if int(index) >= len(q.slots) {
		return SlotFree
	}
	return q.slots[index]
}
