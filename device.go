//go:build linux

package v4l2

import (
	"errors"
	"fmt"

	"github.com/edgevid/v4l2/internal/logging"
	"github.com/edgevid/v4l2/pkg/memory"
	"github.com/edgevid/v4l2/pkg/queue"
	"github.com/edgevid/v4l2/pkg/raw"
	"github.com/edgevid/v4l2/pkg/videodev"
)

var logger = logging.NewLogger("v4l2/device")

// controlChannel is everything the handle consumes from the control channel.
// *raw.Channel implements it; tests substitute a fake device.
type controlChannel interface {
	queue.Controller
	QueryCap(*videodev.Capability) error
	EnumFormat(*videodev.FmtDesc) error
	EnumFrameSizes(*videodev.FrmSizeEnum) error
	GetFormat(*videodev.Format) error
	SetFormat(*videodev.Format) error
	ExportBuffer(*videodev.ExportBuffer) error
	GetControl(*videodev.Control) error
	SetControl(*videodev.Control) error
	GetParm(*videodev.StreamParm) error
	SetParm(*videodev.StreamParm) error
	Fd() int
	Close() error
}

// Device is one open video device bound to one data direction. It owns the
// descriptor, the negotiated format, the memory strategy and the buffer
// queue, and it is the only place lifecycle transitions happen.
//
// A Device is not internally synchronized: it assumes a single logical caller
// drives it, or that the caller provides mutual exclusion.
type Device struct {
	ch      controlChannel
	dir     Direction
	state   State
	caps    videodev.Capability
	bufType uint32

	format   *Format
	strategy memory.Strategy
	queue    *queue.Queue

	// fatal is the sticky device failure. Once set, every operation except
	// Close returns it; the only recovery is a fresh Open.
	fatal error
}

// Open opens the device node and queries its capabilities. The device must
// support streaming I/O in the requested direction.
func Open(path string, dir Direction) (*Device, error) {
	ch, err := raw.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d, err := newDevice(ch, dir)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	logger.Debugf("opened %s as %s (%s)", path, dir, d.Card())
	return d, nil
}

func newDevice(ch controlChannel, dir Direction) (*Device, error) {
	d := &Device{ch: ch, dir: dir, state: StateClosed}
	if err := d.state.Update(StateOpened, d.probe); err != nil {
		return nil, err
	}
	return d, nil
}

// probe reads capabilities and picks the buffer type for the direction,
// preferring the multi-planar interface when the device offers it.
func (d *Device) probe() error {
	if err := d.ch.QueryCap(&d.caps); err != nil {
		return fmt.Errorf("query capabilities: %w", err)
	}
	caps := d.caps.Capabilities
	if caps&videodev.CapDeviceCaps != 0 {
		caps = d.caps.DeviceCaps
	}
	if caps&videodev.CapStreaming == 0 {
		return errors.New("device does not support streaming i/o")
	}

	switch d.dir {
	case Capture:
		switch {
		case caps&videodev.CapVideoCaptureMPlane != 0:
			d.bufType = videodev.BufTypeVideoCaptureMPlane
		case caps&videodev.CapVideoCapture != 0:
			d.bufType = videodev.BufTypeVideoCapture
		default:
			return errors.New("not a video capture device")
		}
	case Output:
		switch {
		case caps&videodev.CapVideoOutputMPlane != 0:
			d.bufType = videodev.BufTypeVideoOutputMPlane
		case caps&videodev.CapVideoOutput != 0:
			d.bufType = videodev.BufTypeVideoOutput
		default:
			return errors.New("not a video output device")
		}
	}
	return nil
}

// State returns the current lifecycle stage.
func (d *Device) State() State { return d.state }

// Fd returns the underlying descriptor, for mapping and readiness waits.
func (d *Device) Fd() int { return d.ch.Fd() }

// Direction returns the data direction the handle is bound to.
func (d *Device) Direction() Direction { return d.dir }

// Capability returns a copy of the raw capability record.
func (d *Device) Capability() videodev.Capability { return d.caps }

// Driver returns the kernel driver name from the capability record.
func (d *Device) Driver() string { return cstr(d.caps.Driver[:]) }

// Card returns the device name from the capability record.
func (d *Device) Card() string { return cstr(d.caps.Card[:]) }

// BusInfo returns the bus location from the capability record.
func (d *Device) BusInfo() string { return cstr(d.caps.BusInfo[:]) }

// Format returns the negotiated format, or nil before negotiation.
func (d *Device) Format() *Format { return d.format }

// Formats enumerates the pixel formats the device supports for the handle's
// direction.
func (d *Device) Formats() ([]FormatDesc, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	var out []FormatDesc
	for i := uint32(0); ; i++ {
		desc := videodev.FmtDesc{Index: i, Type: d.bufType}
		if err := d.ch.EnumFormat(&desc); err != nil {
			if errors.Is(err, raw.ErrInvalid) {
				break
			}
			return nil, fmt.Errorf("enumerate formats: %w", err)
		}
		out = append(out, FormatDesc{
			PixelFormat: desc.PixelFormat,
			Description: cstr(desc.Description[:]),
			Flags:       desc.Flags,
		})
	}
	return out, nil
}

// FrameSizes enumerates the frame geometries the device supports for a pixel
// format.
func (d *Device) FrameSizes(pixelFormat uint32) ([]FrameSize, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	var out []FrameSize
	for i := uint32(0); ; i++ {
		e := videodev.FrmSizeEnum{Index: i, PixelFormat: pixelFormat}
		if err := d.ch.EnumFrameSizes(&e); err != nil {
			if errors.Is(err, raw.ErrInvalid) {
				break
			}
			return nil, fmt.Errorf("enumerate frame sizes: %w", err)
		}
		switch e.Type {
		case videodev.FrmSizeTypeDiscrete:
			dsc := e.Discrete()
			out = append(out, FrameSize{
				MinWidth: dsc.Width, MaxWidth: dsc.Width,
				MinHeight: dsc.Height, MaxHeight: dsc.Height,
			})
		default:
			sw := e.Stepwise()
			out = append(out, FrameSize{
				MinWidth: sw.MinWidth, MaxWidth: sw.MaxWidth, StepWidth: sw.StepWidth,
				MinHeight: sw.MinHeight, MaxHeight: sw.MaxHeight, StepHeight: sw.StepHeight,
			})
		}
	}
	return out, nil
}

// SetFormat negotiates a format. The driver may amend the request; the
// returned record is what the device actually agreed to and is immutable.
// Negotiating is only possible while no buffers are allocated.
func (d *Device) SetFormat(req Format) (*Format, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	if d.queue != nil {
		return nil, &SequencingError{From: d.state, To: StateFormatSet}
	}
	if len(req.Planes) > videodev.MaxPlanes {
		return nil, fmt.Errorf("%w: %d planes exceeds the %d plane limit",
			queue.ErrInvalidArgument, len(req.Planes), videodev.MaxPlanes)
	}

	vf := marshalFormat(d.bufType, &req)
	err := d.state.Update(StateFormatSet, func() error {
		if err := d.ch.SetFormat(vf); err != nil {
			return &NegotiationError{Err: err}
		}
		d.format = unmarshalFormat(d.dir, vf)
		return nil
	})
	if err != nil {
		return nil, d.noteFatal(err)
	}
	logger.Debugf("negotiated %s", d.format)
	return d.format, nil
}

// Alloc creates the buffer queue: count slots backed by the given strategy.
// Requires a negotiated format and no existing allocation; allocating while
// streaming is a sequencing error.
func (d *Device) Alloc(strategy memory.Strategy, count uint32) error {
	if err := d.guard(); err != nil {
		return err
	}
	if d.state != StateFormatSet {
		return &SequencingError{From: d.state, To: StateAllocated}
	}

	return d.state.Update(StateAllocated, func() error {
		q, err := queue.Allocate(d.ch, strategy, queue.Config{
			BufType:    d.bufType,
			PlaneSizes: d.format.PlaneSizes(),
			Count:      count,
		})
		if err != nil {
			return d.noteFatal(&AllocationError{Err: err})
		}
		d.queue = q
		d.strategy = strategy
		return nil
	})
}

// Free releases the buffer queue and returns the handle to the format-set
// stage. Streaming must be stopped first.
func (d *Device) Free() error {
	if d.state != StateAllocated {
		return &SequencingError{From: d.state, To: StateFormatSet}
	}
	return d.state.Update(StateFormatSet, func() error {
		err := d.queue.Release()
		d.queue = nil
		d.strategy = nil
		return err
	})
}

// Buffers returns the granted slot count of the current allocation.
func (d *Device) Buffers() int {
	if d.queue == nil {
		return 0
	}
	return d.queue.Count()
}

// Planes exposes the backing regions of a slot while the application owns it.
func (d *Device) Planes(index uint32) ([]memory.Region, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	if d.queue == nil {
		return nil, &SequencingError{From: d.state, To: StateAllocated}
	}
	return d.queue.Planes(index)
}

// Enqueue hands a slot to the device. Slots may be queued before streaming
// starts; many drivers expect priming.
func (d *Device) Enqueue(index uint32, payload *memory.Payload) error {
	if err := d.guard(); err != nil {
		return err
	}
	if d.state != StateAllocated && d.state != StateStreaming {
		return &SequencingError{From: d.state, To: StateStreaming}
	}
	return d.noteFatal(d.queue.Enqueue(index, payload))
}

// Dequeue reclaims one completed slot. With block set, the call waits on
// descriptor readiness and retries until a slot is available; otherwise it
// returns queue.ErrNotReady immediately when nothing has completed.
func (d *Device) Dequeue(block bool) (queue.Meta, error) {
	if err := d.guard(); err != nil {
		return queue.Meta{}, err
	}
	if d.state != StateStreaming {
		return queue.Meta{}, &SequencingError{From: d.state, To: StateStreaming}
	}
	for {
		meta, err := d.queue.Dequeue()
		if err == nil {
			return meta, nil
		}
		if !block || !errors.Is(err, queue.ErrNotReady) {
			return meta, d.noteFatal(err)
		}
		if werr := d.WaitReady(-1); werr != nil {
			return queue.Meta{}, werr
		}
	}
}

// Start begins streaming. Requires an allocated queue.
func (d *Device) Start() error {
	if err := d.guard(); err != nil {
		return err
	}
	return d.state.Update(StateStreaming, func() error {
		return d.noteFatal(d.queue.StreamOn())
	})
}

// Stop halts streaming and forces every queued slot back to the application,
// discarding content. Stopping an already-stopped handle is a no-op.
func (d *Device) Stop() error {
	if d.state != StateStreaming {
		if d.state == StateClosed {
			return &SequencingError{From: d.state, To: StateAllocated}
		}
		return nil
	}
	return d.state.Update(StateAllocated, func() error {
		return d.noteFatal(d.queue.StreamOff())
	})
}

// ExportBuffer exports one plane of a kernel-mapped slot as a dmabuf
// descriptor the caller owns. The descriptor can back another device's
// DmaBuf strategy.
func (d *Device) ExportBuffer(index, plane uint32) (int, error) {
	if err := d.guard(); err != nil {
		return -1, err
	}
	if d.queue == nil {
		return -1, &SequencingError{From: d.state, To: StateAllocated}
	}
	if d.strategy.Type() != memory.TypeMmap {
		return -1, fmt.Errorf("%w: only kernel-mapped slots can be exported", queue.ErrInvalidArgument)
	}
	e := videodev.ExportBuffer{Type: d.bufType, Index: index, Plane: plane}
	if err := d.ch.ExportBuffer(&e); err != nil {
		return -1, fmt.Errorf("export slot %d plane %d: %w", index, plane, err)
	}
	return int(e.FD), nil
}

// Control reads a simple user control.
func (d *Device) Control(id uint32) (int32, error) {
	if err := d.guard(); err != nil {
		return 0, err
	}
	ctrl := videodev.Control{ID: id}
	if err := d.ch.GetControl(&ctrl); err != nil {
		return 0, fmt.Errorf("get control %#x: %w", id, err)
	}
	return ctrl.Value, nil
}

// SetControl writes a simple user control.
func (d *Device) SetControl(id uint32, value int32) error {
	if err := d.guard(); err != nil {
		return err
	}
	ctrl := videodev.Control{ID: id, Value: value}
	if err := d.ch.SetControl(&ctrl); err != nil {
		return fmt.Errorf("set control %#x: %w", id, err)
	}
	return nil
}

// SetFrameRate asks the device for a fixed frame rate. Not every driver
// honors it; the granted rate is returned.
func (d *Device) SetFrameRate(fps uint32) (uint32, error) {
	if err := d.guard(); err != nil {
		return 0, err
	}
	p := videodev.StreamParm{Type: d.bufType}
	p.Capture().TimePerFrame = videodev.Fract{Numerator: 1, Denominator: fps}
	if err := d.ch.SetParm(&p); err != nil {
		return 0, fmt.Errorf("set frame rate: %w", err)
	}
	tpf := p.Capture().TimePerFrame
	if tpf.Numerator == 0 {
		return 0, nil
	}
	return tpf.Denominator / tpf.Numerator, nil
}

// Close tears the handle down from any state: streaming is stopped, buffers
// are released and the descriptor is closed, in that order, so no device-side
// state outlives the handle. Closing a closed handle is a no-op.
func (d *Device) Close() error {
	if d.state == StateClosed {
		return nil
	}
	if d.queue != nil {
		if err := d.queue.StreamOff(); err != nil {
			logger.Warnf("stop streaming on close: %v", err)
		}
		if err := d.queue.Release(); err != nil {
			logger.Warnf("release buffers on close: %v", err)
		}
		d.queue = nil
		d.strategy = nil
	}
	return d.state.Update(StateClosed, d.ch.Close)
}

// guard rejects every operation after a fatal device failure.
func (d *Device) guard() error {
	return d.fatal
}

// noteFatal makes queue poisoning sticky at the handle level.
func (d *Device) noteFatal(err error) error {
	if err == nil {
		return nil
	}
	var fatal *queue.FatalError
	if errors.As(err, &fatal) && d.fatal == nil {
		d.fatal = err
		logger.Errorf("device poisoned: %v", err)
	}
	return err
}
