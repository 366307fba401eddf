//go:build linux && (amd64 || arm64 || riscv64)

package videodev

import (
	"testing"
	"unsafe"
)

// The request codes encode the argument size, so a drifting layout would
// corrupt ioctl calls silently. Pin every struct to its kernel ABI size.
func TestLayoutSizes(t *testing.T) {
	cases := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"Capability", unsafe.Sizeof(Capability{}), 104},
		{"FmtDesc", unsafe.Sizeof(FmtDesc{}), 64},
		{"Format", unsafe.Sizeof(Format{}), 208},
		{"PixFormat", unsafe.Sizeof(PixFormat{}), 48},
		{"PixFormatMPlane", unsafe.Sizeof(PixFormatMPlane{}), 192},
		{"RequestBuffers", unsafe.Sizeof(RequestBuffers{}), 20},
		{"Buffer", unsafe.Sizeof(Buffer{}), 88},
		{"Plane", unsafe.Sizeof(Plane{}), 64},
		{"ExportBuffer", unsafe.Sizeof(ExportBuffer{}), 64},
		{"Control", unsafe.Sizeof(Control{}), 8},
		{"StreamParm", unsafe.Sizeof(StreamParm{}), 204},
		{"FrmSizeEnum", unsafe.Sizeof(FrmSizeEnum{}), 44},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("sizeof(%s) = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestLayoutOffsets(t *testing.T) {
	var b Buffer
	if off := unsafe.Offsetof(b.Timestamp); off != 24 {
		t.Errorf("Buffer.Timestamp offset = %d, want 24", off)
	}
	if off := unsafe.Offsetof(b.Sequence); off != 56 {
		t.Errorf("Buffer.Sequence offset = %d, want 56", off)
	}
	if off := unsafe.Offsetof(b.M); off != 64 {
		t.Errorf("Buffer.M offset = %d, want 64", off)
	}
	var p Plane
	if off := unsafe.Offsetof(p.M); off != 8 {
		t.Errorf("Plane.M offset = %d, want 8", off)
	}
}

func TestFourCC(t *testing.T) {
	if PixFmtYUYV != 0x56595559 {
		t.Errorf("YUYV = %#x, want 0x56595559", PixFmtYUYV)
	}
	if got := FourCCString(PixFmtMJPEG); got != "MJPG" {
		t.Errorf("FourCCString(MJPG) = %q", got)
	}
}

func TestBufferUnion(t *testing.T) {
	var b Buffer
	b.SetFD(42)
	if b.FD() != 42 {
		t.Errorf("FD round trip = %d", b.FD())
	}
	var p Plane
	p.SetUserPtr(0xdeadbeef)
	if got := *(*uintptr)(unsafe.Pointer(&p.M[0])); got != 0xdeadbeef {
		t.Errorf("plane userptr = %#x", got)
	}
}
