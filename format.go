//go:build linux

package v4l2

import (
	"bytes"
	"fmt"

	"github.com/edgevid/v4l2/pkg/videodev"
)

// Direction is the data direction a device handle is bound to.
type Direction int

const (
	// Capture devices produce data for the application.
	Capture Direction = iota
	// Output devices consume data from the application.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "capture"
}

// FormatDesc describes one pixel format a device supports.
type FormatDesc struct {
	PixelFormat uint32
	Description string
	Flags       uint32
}

// FrameSize is one supported frame geometry for a pixel format. Discrete
// sizes have Min == Max and a zero step.
type FrameSize struct {
	MinWidth   uint32
	MaxWidth   uint32
	StepWidth  uint32
	MinHeight  uint32
	MaxHeight  uint32
	StepHeight uint32
}

// PlaneFormat is the negotiated size of one plane.
type PlaneFormat struct {
	SizeImage    uint32
	BytesPerLine uint32
}

// Format is the data layout agreed between application and device. The record
// returned by SetFormat is immutable; renegotiating requires freeing the
// buffer queue first.
type Format struct {
	Direction   Direction
	PixelFormat uint32
	Width       uint32
	Height      uint32
	Field       uint32
	Planes      []PlaneFormat
}

// NumPlanes returns the negotiated plane count.
func (f *Format) NumPlanes() int { return len(f.Planes) }

// PlaneSizes returns the per-plane sizes in plane order.
func (f *Format) PlaneSizes() []uint32 {
	sizes := make([]uint32, len(f.Planes))
	for i, p := range f.Planes {
		sizes[i] = p.SizeImage
	}
	return sizes
}

func (f *Format) String() string {
	return fmt.Sprintf("%s %s %dx%d (%d planes)",
		f.Direction, videodev.FourCCString(f.PixelFormat), f.Width, f.Height, len(f.Planes))
}

// marshalFormat builds the wire structure for a format request.
func marshalFormat(bufType uint32, req *Format) *videodev.Format {
	vf := &videodev.Format{Type: bufType}
	switch bufType {
	case videodev.BufTypeVideoCaptureMPlane, videodev.BufTypeVideoOutputMPlane:
		mp := vf.MPlane()
		mp.Width = req.Width
		mp.Height = req.Height
		mp.PixelFormat = req.PixelFormat
		mp.Field = req.Field
		mp.NumPlanes = uint8(len(req.Planes))
		for i, p := range req.Planes {
			mp.PlaneFmt[i] = videodev.PlanePixFormat{SizeImage: p.SizeImage, BytesPerLine: p.BytesPerLine}
		}
	default:
		pix := vf.Pix()
		pix.Width = req.Width
		pix.Height = req.Height
		pix.PixelFormat = req.PixelFormat
		pix.Field = req.Field
		if len(req.Planes) == 1 {
			pix.SizeImage = req.Planes[0].SizeImage
			pix.BytesPerLine = req.Planes[0].BytesPerLine
		}
	}
	return vf
}

// unmarshalFormat reads back the driver-amended format.
func unmarshalFormat(dir Direction, vf *videodev.Format) *Format {
	f := &Format{Direction: dir}
	switch vf.Type {
	case videodev.BufTypeVideoCaptureMPlane, videodev.BufTypeVideoOutputMPlane:
		mp := vf.MPlane()
		f.PixelFormat = mp.PixelFormat
		f.Width = mp.Width
		f.Height = mp.Height
		f.Field = mp.Field
		f.Planes = make([]PlaneFormat, mp.NumPlanes)
		for i := range f.Planes {
			f.Planes[i] = PlaneFormat{
				SizeImage:    mp.PlaneFmt[i].SizeImage,
				BytesPerLine: mp.PlaneFmt[i].BytesPerLine,
			}
		}
	default:
		pix := vf.Pix()
		f.PixelFormat = pix.PixelFormat
		f.Width = pix.Width
		f.Height = pix.Height
		f.Field = pix.Field
		f.Planes = []PlaneFormat{{SizeImage: pix.SizeImage, BytesPerLine: pix.BytesPerLine}}
	}
	return f
}

// cstr trims a fixed-size kernel string at its NUL terminator.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
