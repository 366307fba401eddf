//go:build linux && (amd64 || arm64 || riscv64)

package videodev

import "unsafe"

// Request codes for the 64-bit ABI. The size field baked into each code
// matches the struct sizes below; the tests pin both.
const (
	VidiocQueryCap       = 0x80685600
	VidiocEnumFmt        = 0xc0405602
	VidiocGetFormat      = 0xc0d05604
	VidiocSetFormat      = 0xc0d05605
	VidiocReqBufs        = 0xc0145608
	VidiocQueryBuf       = 0xc0585609
	VidiocQBuf           = 0xc058560f
	VidiocExpBuf         = 0xc0405610
	VidiocDQBuf          = 0xc0585611
	VidiocStreamOn       = 0x40045612
	VidiocStreamOff      = 0x40045613
	VidiocGetParm        = 0xc0cc5615
	VidiocSetParm        = 0xc0cc5616
	VidiocGetCtrl        = 0xc008561b
	VidiocSetCtrl        = 0xc008561c
	VidiocTryFormat      = 0xc0d05640
	VidiocEnumFrameSizes = 0xc02c564a
)

// Capability mirrors struct v4l2_capability.
type Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	_            [3]uint32
}

// FmtDesc mirrors struct v4l2_fmtdesc.
type FmtDesc struct {
	Index       uint32
	Type        uint32
	Flags       uint32
	Description [32]byte
	PixelFormat uint32
	MbusCode    uint32
	_           [3]uint32
}

// PixFormat mirrors struct v4l2_pix_format (single-planar).
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// PlanePixFormat mirrors struct v4l2_plane_pix_format.
type PlanePixFormat struct {
	SizeImage    uint32
	BytesPerLine uint32
	_            [6]uint16
}

// PixFormatMPlane mirrors struct v4l2_pix_format_mplane.
type PixFormatMPlane struct {
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Field       uint32
	Colorspace  uint32
	PlaneFmt    [MaxPlanes]PlanePixFormat
	NumPlanes   uint8
	Flags       uint8
	YcbcrEnc    uint8
	Quantization uint8
	XferFunc    uint8
	_           [7]uint8
}

// Format mirrors struct v4l2_format. The union body is kept raw; use Pix or
// MPlane to view it according to Type.
type Format struct {
	Type uint32
	_    [4]byte
	Raw  [200]byte
}

// Pix returns the single-planar view of the format union.
func (f *Format) Pix() *PixFormat {
	return (*PixFormat)(unsafe.Pointer(&f.Raw[0]))
}

// MPlane returns the multi-planar view of the format union.
func (f *Format) MPlane() *PixFormatMPlane {
	return (*PixFormatMPlane)(unsafe.Pointer(&f.Raw[0]))
}

// RequestBuffers mirrors struct v4l2_requestbuffers.
type RequestBuffers struct {
	Count        uint32
	Type         uint32
	Memory       uint32
	Capabilities uint32
	Flags        uint8
	_            [3]uint8
}

// Timecode mirrors struct v4l2_timecode.
type Timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	Userbits [4]uint8
}

// Timeval mirrors the 64-bit struct timeval used in v4l2_buffer.
type Timeval struct {
	Sec  int64
	Usec int64
}

// Buffer mirrors struct v4l2_buffer. M is the memory union: an mmap offset,
// a userspace pointer, a dmabuf fd, or a pointer to a Plane array for
// multi-planar buffer types.
type Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	_         [4]byte
	Timestamp Timeval
	Timecode  Timecode
	Sequence  uint32
	Memory    uint32
	M         [8]byte
	Length    uint32
	Reserved2 uint32
	RequestFD int32
	_         [4]byte
}

// Plane mirrors struct v4l2_plane. M is the per-plane memory union.
type Plane struct {
	BytesUsed  uint32
	Length     uint32
	M          [8]byte
	DataOffset uint32
	_          [44]byte
}

// Offset reads the union as an mmap offset.
func (b *Buffer) Offset() uint32 { return *(*uint32)(unsafe.Pointer(&b.M[0])) }

// SetUserPtr stores a userspace address in the union.
func (b *Buffer) SetUserPtr(p uintptr) { *(*uintptr)(unsafe.Pointer(&b.M[0])) = p }

// FD reads the union as a dmabuf file descriptor.
func (b *Buffer) FD() int32 { return *(*int32)(unsafe.Pointer(&b.M[0])) }

// SetFD stores a dmabuf file descriptor in the union.
func (b *Buffer) SetFD(fd int32) { *(*int32)(unsafe.Pointer(&b.M[0])) = fd }

// SetPlanes points the union at a plane array. The caller keeps the array
// alive for the duration of the ioctl.
func (b *Buffer) SetPlanes(p *Plane) { *(*uintptr)(unsafe.Pointer(&b.M[0])) = uintptr(unsafe.Pointer(p)) }

// Offset reads the plane union as an mmap offset.
func (p *Plane) Offset() uint32 { return *(*uint32)(unsafe.Pointer(&p.M[0])) }

// SetUserPtr stores a userspace address in the plane union.
func (p *Plane) SetUserPtr(a uintptr) { *(*uintptr)(unsafe.Pointer(&p.M[0])) = a }

// FD reads the plane union as a dmabuf file descriptor.
func (p *Plane) FD() int32 { return *(*int32)(unsafe.Pointer(&p.M[0])) }

// SetFD stores a dmabuf file descriptor in the plane union.
func (p *Plane) SetFD(fd int32) { *(*int32)(unsafe.Pointer(&p.M[0])) = fd }

// ExportBuffer mirrors struct v4l2_exportbuffer (VIDIOC_EXPBUF).
type ExportBuffer struct {
	Type  uint32
	Index uint32
	Plane uint32
	Flags uint32
	FD    int32
	_     [11]uint32
}

// Control mirrors struct v4l2_control.
type Control struct {
	ID    uint32
	Value int32
}

// Fract mirrors struct v4l2_fract.
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// CaptureParm mirrors struct v4l2_captureparm.
type CaptureParm struct {
	Capability   uint32
	CaptureMode  uint32
	TimePerFrame Fract
	ExtendedMode uint32
	ReadBuffers  uint32
}

// StreamParm mirrors struct v4l2_streamparm with a raw union body.
type StreamParm struct {
	Type uint32
	Raw  [200]byte
}

// Capture returns the capture view of the parm union.
func (p *StreamParm) Capture() *CaptureParm {
	return (*CaptureParm)(unsafe.Pointer(&p.Raw[0]))
}

// FrmSizeDiscrete mirrors struct v4l2_frmsize_discrete.
type FrmSizeDiscrete struct {
	Width  uint32
	Height uint32
}

// FrmSizeStepwise mirrors struct v4l2_frmsize_stepwise.
type FrmSizeStepwise struct {
	MinWidth   uint32
	MaxWidth   uint32
	StepWidth  uint32
	MinHeight  uint32
	MaxHeight  uint32
	StepHeight uint32
}

// FrmSizeEnum mirrors struct v4l2_frmsizeenum with a raw union body.
type FrmSizeEnum struct {
	Index       uint32
	PixelFormat uint32
	Type        uint32
	Raw         [24]byte
	_           [2]uint32
}

// Discrete returns the discrete view of the size union.
func (e *FrmSizeEnum) Discrete() *FrmSizeDiscrete {
	return (*FrmSizeDiscrete)(unsafe.Pointer(&e.Raw[0]))
}

// Stepwise returns the stepwise view of the size union.
func (e *FrmSizeEnum) Stepwise() *FrmSizeStepwise {
	return (*FrmSizeStepwise)(unsafe.Pointer(&e.Raw[0]))
}
