// Package videodev carries the videodev2.h data contract: structure layouts,
// request codes and constants needed to talk to a V4L2 character device.
// The layouts mirror the kernel ABI for 64-bit Linux and are pinned by size
// assertions in the tests.
//
// Reference: https://github.com/torvalds/linux/blob/master/include/uapi/linux/videodev2.h
package videodev

// Buffer types.
const (
	BufTypeVideoCapture       uint32 = 1
	BufTypeVideoOutput        uint32 = 2
	BufTypeVideoCaptureMPlane uint32 = 9
	BufTypeVideoOutputMPlane  uint32 = 10
)

// Memory backing types for v4l2_requestbuffers and v4l2_buffer.
const (
	MemoryMmap    uint32 = 1
	MemoryUserPtr uint32 = 2
	MemoryDmaBuf  uint32 = 4
)

// Capability flags reported by VIDIOC_QUERYCAP.
const (
	CapVideoCapture       uint32 = 0x00000001
	CapVideoOutput        uint32 = 0x00000002
	CapVideoCaptureMPlane uint32 = 0x00001000
	CapVideoOutputMPlane  uint32 = 0x00002000
	CapReadWrite          uint32 = 0x01000000
	CapStreaming          uint32 = 0x04000000
	CapDeviceCaps         uint32 = 0x80000000
)

// Field order.
const (
	FieldAny  uint32 = 0
	FieldNone uint32 = 1
)

// Buffer flags.
const (
	BufFlagMapped uint32 = 0x00000001
	BufFlagQueued uint32 = 0x00000002
	BufFlagDone   uint32 = 0x00000004
	BufFlagError  uint32 = 0x00000040
	BufFlagLast   uint32 = 0x00100000
)

// Frame size enumeration types.
const (
	FrmSizeTypeDiscrete   uint32 = 1
	FrmSizeTypeContinuous uint32 = 2
	FrmSizeTypeStepwise   uint32 = 3
)

const ColorspaceDefault uint32 = 0

// MaxPlanes is VIDEO_MAX_PLANES.
const MaxPlanes = 8

// FourCC packs four characters into a little-endian pixel format code.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// FourCCString renders a pixel format code back into its four characters.
func FourCCString(code uint32) string {
	return string([]byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)})
}

// Common pixel format codes.
var (
	PixFmtYUYV   = FourCC('Y', 'U', 'Y', 'V')
	PixFmtUYVY   = FourCC('U', 'Y', 'V', 'Y')
	PixFmtYUV420 = FourCC('Y', 'U', '1', '2')
	PixFmtNV12   = FourCC('N', 'V', '1', '2')
	PixFmtNV12M  = FourCC('N', 'M', '1', '2')
	PixFmtMJPEG  = FourCC('M', 'J', 'P', 'G')
	PixFmtH264   = FourCC('H', '2', '6', '4')
	PixFmtRGB24  = FourCC('R', 'G', 'B', '3')
	PixFmtGrey   = FourCC('G', 'R', 'E', 'Y')
)

// User control IDs (V4L2_CID_*). Only the simple user-class controls are
// carried; extended and compound controls are out of scope.
const (
	ctrlBase uint32 = 0x00980900

	CtrlBrightness       = ctrlBase + 0
	CtrlContrast         = ctrlBase + 1
	CtrlSaturation       = ctrlBase + 2
	CtrlHue              = ctrlBase + 3
	CtrlAutoWhiteBalance = ctrlBase + 12
	CtrlGamma            = ctrlBase + 16
	CtrlGain             = ctrlBase + 19
	CtrlHFlip            = ctrlBase + 20
	CtrlVFlip            = ctrlBase + 21
	CtrlSharpness        = ctrlBase + 27
	CtrlRotate           = ctrlBase + 34
)
