//go:build linux

package queue

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgevid/v4l2/pkg/memory"
	"github.com/edgevid/v4l2/pkg/raw"
	"github.com/edgevid/v4l2/pkg/videodev"
)

const fakeStride = 4096

// fakeDevice simulates the kernel side of the control channel. Completion
// order is scripted, not FIFO, because real devices complete buffers in
// whatever order they like.
type fakeDevice struct {
	mplane     bool
	planeSizes []uint32
	granted    uint32 // overrides the granted count when non-zero

	queued      []uint32
	completions []uint32 // next indices DQBUF hands back; FIFO of queued when empty
	seq         uint32
	streamOn    bool
	freed       bool

	errQueue    error // one-shot QBUF failure
	errDequeue  error // one-shot DQBUF failure
	errStreamOn error

	qbufs, dqbufs, reqbufs int
}

func (f *fakeDevice) RequestBuffers(rb *videodev.RequestBuffers) error {
	f.reqbufs++
	if rb.Count == 0 {
		f.freed = true
		return nil
	}
	if f.granted != 0 {
		rb.Count = f.granted
	}
	return nil
}

func (f *fakeDevice) planesOf(b *videodev.Buffer) []videodev.Plane {
	ptr := *(*uintptr)(unsafe.Pointer(&b.M[0]))
	return (*[videodev.MaxPlanes]videodev.Plane)(unsafe.Pointer(ptr))[:len(f.planeSizes)]
}

func (f *fakeDevice) QueryBuffer(b *videodev.Buffer) error {
	if f.mplane {
		planes := f.planesOf(b)
		for i, sz := range f.planeSizes {
			planes[i].Length = sz
			off := (b.Index*uint32(len(f.planeSizes)) + uint32(i)) * fakeStride
			*(*uint32)(unsafe.Pointer(&planes[i].M[0])) = off
		}
	} else {
		b.Length = f.planeSizes[0]
		*(*uint32)(unsafe.Pointer(&b.M[0])) = b.Index * fakeStride
	}
	return nil
}

func (f *fakeDevice) QueueBuffer(b *videodev.Buffer) error {
	f.qbufs++
	if f.errQueue != nil {
		err := f.errQueue
		f.errQueue = nil
		return err
	}
	f.queued = append(f.queued, b.Index)
	return nil
}

func (f *fakeDevice) DequeueBuffer(b *videodev.Buffer) error {
	f.dqbufs++
	if f.errDequeue != nil {
		err := f.errDequeue
		f.errDequeue = nil
		return err
	}
	var index uint32
	if len(f.completions) > 0 {
		index, f.completions = f.completions[0], f.completions[1:]
	} else if len(f.queued) > 0 {
		index, f.queued = f.queued[0], f.queued[1:]
	} else {
		return raw.ErrWouldBlock
	}
	b.Index = index
	b.Sequence = f.seq
	b.Timestamp = videodev.Timeval{Sec: 100, Usec: int64(f.seq)}
	f.seq++
	if f.mplane {
		planes := f.planesOf(b)
		for i, sz := range f.planeSizes {
			planes[i].BytesUsed = sz
		}
	} else {
		b.BytesUsed = f.planeSizes[0]
	}
	return nil
}

func (f *fakeDevice) StreamOn(bufType uint32) error {
	if f.errStreamOn != nil {
		return f.errStreamOn
	}
	f.streamOn = true
	return nil
}

func (f *fakeDevice) StreamOff(bufType uint32) error {
	f.streamOn = false
	return nil
}

func newUserPtrQueue(t *testing.T, dev *fakeDevice, count uint32) *Queue {
	t.Helper()
	if dev.planeSizes == nil {
		dev.planeSizes = []uint32{4096}
	}
	q, err := Allocate(dev, memory.NewUserPtr(), Config{
		BufType:    videodev.BufTypeVideoCapture,
		PlaneSizes: dev.planeSizes,
		Count:      count,
	})
	require.NoError(t, err)
	return q
}

func onePlane() *memory.Payload {
	return &memory.Payload{Planes: [][]byte{make([]byte, 4096)}}
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 4)
	require.NoError(t, q.StreamOn())

	require.NoError(t, q.Enqueue(0, onePlane()))
	require.NoError(t, q.Enqueue(1, onePlane()))
	require.NoError(t, q.Enqueue(2, onePlane()))
	assert.Equal(t, 3, q.QueuedCount())

	// The device completes out of submission order.
	dev.completions = []uint32{1, 0, 2}
	dev.queued = nil

	meta, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), meta.Index)
	assert.Equal(t, uint32(4096), meta.BytesUsed)
	assert.Equal(t, uint32(0), meta.Sequence)

	s, err := q.State(1)
	require.NoError(t, err)
	assert.Equal(t, SlotReady, s)
	assert.Equal(t, 2, q.QueuedCount())

	// Ready goes back to the device through the same enqueue path.
	require.NoError(t, q.Enqueue(1, onePlane()))
	s, _ = q.State(1)
	assert.Equal(t, SlotQueued, s)
}

func TestEnqueueInvalidIndexIssuesNoRequest(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 4)

	err := q.Enqueue(5, onePlane())
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, dev.qbufs)
}

func TestEnqueueDeviceOwnedSlot(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)
	require.NoError(t, q.Enqueue(0, onePlane()))

	err := q.Enqueue(0, onePlane())
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 1, q.QueuedCount())
}

func TestPayloadMismatchRejectedBeforeSubmit(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)

	err := q.Enqueue(0, &memory.Payload{Planes: [][]byte{make([]byte, 100)}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, memory.ErrPlaneMismatch)
	assert.Zero(t, dev.qbufs)

	s, _ := q.State(0)
	assert.Equal(t, SlotFree, s)
}

func TestSubmitRejectionLeavesSlotFree(t *testing.T) {
	dev := &fakeDevice{errQueue: raw.ErrInvalid}
	q := newUserPtrQueue(t, dev, 2)

	err := q.Enqueue(0, onePlane())
	var submit *SubmitError
	require.ErrorAs(t, err, &submit)
	assert.Equal(t, uint32(0), submit.Index)
	assert.ErrorIs(t, err, raw.ErrInvalid)

	s, _ := q.State(0)
	assert.Equal(t, SlotFree, s)
	assert.Zero(t, q.QueuedCount())

	// The rejection was local to the attempt; the slot queues fine now.
	require.NoError(t, q.Enqueue(0, onePlane()))
}

func TestDequeueNotReadyLeavesSlotQueued(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)
	require.NoError(t, q.StreamOn())
	require.NoError(t, q.Enqueue(0, onePlane()))

	dev.errDequeue = raw.ErrWouldBlock
	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrNotReady)

	s, _ := q.State(0)
	assert.Equal(t, SlotQueued, s)
	assert.Equal(t, 1, q.QueuedCount())

	// Interrupted waits are equally recoverable.
	dev.errDequeue = raw.ErrInterrupted
	_, err = q.Dequeue()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDequeueRequiresStreaming(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrNotStreaming)
	assert.Zero(t, dev.dqbufs)
}

func TestStreamOffDrainsQueuedSlots(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 4)
	require.NoError(t, q.StreamOn())
	for i := uint32(0); i < 3; i++ {
		require.NoError(t, q.Enqueue(i, onePlane()))
	}

	require.NoError(t, q.StreamOff())
	assert.False(t, q.Streaming())
	assert.Zero(t, q.QueuedCount())
	for i := uint32(0); i < 4; i++ {
		s, err := q.State(i)
		require.NoError(t, err)
		assert.Equal(t, SlotFree, s, "slot %d", i)
	}

	// Second stop is a no-op and must not disturb slot state.
	require.NoError(t, q.Enqueue(0, onePlane()))
	require.NoError(t, q.StreamOff())
	s, _ := q.State(0)
	assert.Equal(t, SlotQueued, s)
}

func TestFatalErrorPoisonsQueue(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)
	require.NoError(t, q.StreamOn())
	require.NoError(t, q.Enqueue(0, onePlane()))

	dev.errDequeue = raw.ErrIO
	_, err := q.Dequeue()
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)

	// Every further operation fails without reaching the device.
	qbufs, dqbufs := dev.qbufs, dev.dqbufs
	assert.ErrorAs(t, q.Enqueue(1, onePlane()), &fatal)
	_, err = q.Dequeue()
	assert.ErrorAs(t, err, &fatal)
	assert.ErrorAs(t, q.StreamOn(), &fatal)
	assert.Equal(t, qbufs, dev.qbufs)
	assert.Equal(t, dqbufs, dev.dqbufs)

	// Teardown still runs: this is the recovery path.
	assert.NoError(t, q.StreamOff())
	assert.NoError(t, q.Release())
	assert.True(t, dev.freed)
}

func TestUnknownCompletionPoisons(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 4)
	require.NoError(t, q.StreamOn())
	require.NoError(t, q.Enqueue(0, onePlane()))

	// Device hands back a slot that was never queued.
	dev.completions = []uint32{3}
	_, err := q.Dequeue()
	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestNoDoubleDequeue(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)
	require.NoError(t, q.StreamOn())
	require.NoError(t, q.Enqueue(0, onePlane()))

	dev.completions = []uint32{0}
	_, err := q.Dequeue()
	require.NoError(t, err)

	// The same completion again without a re-queue is a protocol violation.
	dev.completions = []uint32{0}
	_, err = q.Dequeue()
	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestReleaseRequiresStreamOff(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)
	require.NoError(t, q.StreamOn())

	assert.ErrorIs(t, q.Release(), ErrStreamingActive)
	require.NoError(t, q.StreamOff())
	require.NoError(t, q.Release())
	assert.True(t, dev.freed)
}

func TestAllocateValidation(t *testing.T) {
	dev := &fakeDevice{planeSizes: []uint32{4096}}

	_, err := Allocate(dev, memory.NewUserPtr(), Config{BufType: videodev.BufTypeVideoCapture, PlaneSizes: []uint32{4096}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Allocate(dev, memory.NewUserPtr(), Config{BufType: videodev.BufTypeVideoCapture, Count: 4})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Two plane sizes on a single-planar buffer type cannot be expressed.
	_, err = Allocate(dev, memory.NewUserPtr(), Config{
		BufType: videodev.BufTypeVideoCapture, PlaneSizes: []uint32{4096, 2048}, Count: 4,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// More planes than a buffer can carry, rejected before any request.
	reqbufs := dev.reqbufs
	_, err = Allocate(dev, memory.NewUserPtr(), Config{
		BufType:    videodev.BufTypeVideoCaptureMPlane,
		PlaneSizes: make([]uint32, videodev.MaxPlanes+1),
		Count:      4,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, reqbufs, dev.reqbufs)
}

func TestAllocateHonorsGrantedCount(t *testing.T) {
	dev := &fakeDevice{granted: 3}
	q := newUserPtrQueue(t, dev, 8)
	assert.Equal(t, 3, q.Count())

	err := q.Enqueue(3, onePlane())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPlanesHiddenWhileDeviceOwns(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)
	require.NoError(t, q.Enqueue(0, onePlane()))

	_, err := q.Planes(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	regions, err := q.Planes(1)
	require.NoError(t, err)
	assert.Len(t, regions, 1)
}

// End-to-end pass over a two-plane format backed by kernel-mapped memory. A
// temp file stands in for the device node so the mappings are real.
func TestMmapMultiPlanarScenario(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "fakedev")
	require.NoError(t, err)
	defer f.Close()
	sizes := []uint32{4096, 2048}
	require.NoError(t, f.Truncate(int64(4*len(sizes)*fakeStride)))

	dev := &fakeDevice{mplane: true, planeSizes: sizes}
	q, err := Allocate(dev, memory.NewMmap(int(f.Fd())), Config{
		BufType:    videodev.BufTypeVideoCaptureMPlane,
		PlaneSizes: sizes,
		Count:      4,
	})
	require.NoError(t, err)
	require.NoError(t, q.StreamOn())

	for i := uint32(0); i < 4; i++ {
		regions, err := q.Planes(i)
		require.NoError(t, err)
		require.Len(t, regions, 2)
		assert.Equal(t, uint32(4096), regions[0].Length)
		assert.Equal(t, uint32(2048), regions[1].Length)
		assert.Len(t, regions[0].Data, 4096)
	}

	require.NoError(t, q.Enqueue(0, nil))
	s, _ := q.State(0)
	assert.Equal(t, SlotQueued, s)

	meta, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), meta.Index)
	assert.LessOrEqual(t, meta.BytesUsed, uint32(4096+2048))
	assert.Equal(t, []uint32{4096, 2048}, meta.PlaneBytes)

	s, _ = q.State(0)
	assert.Equal(t, SlotReady, s)

	require.NoError(t, q.Enqueue(0, nil))
	s, _ = q.State(0)
	assert.Equal(t, SlotQueued, s)

	require.NoError(t, q.StreamOff())
	require.NoError(t, q.Release())
}

func TestQueuedNeverExceedsAllocated(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 3)
	require.NoError(t, q.StreamOn())

	for i := uint32(0); i < 3; i++ {
		require.NoError(t, q.Enqueue(i, onePlane()))
	}
	assert.Equal(t, q.Count(), q.QueuedCount())

	// Everything is device-owned now; nothing more can be handed over.
	for i := uint32(0); i < 3; i++ {
		err := q.Enqueue(i, onePlane())
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
	assert.Equal(t, 3, q.QueuedCount())
}

func TestEndOfStreamIsNotFatal(t *testing.T) {
	dev := &fakeDevice{}
	q := newUserPtrQueue(t, dev, 2)
	require.NoError(t, q.StreamOn())
	require.NoError(t, q.Enqueue(0, onePlane()))

	dev.errDequeue = raw.ErrEndOfStream
	_, err := q.Dequeue()
	assert.ErrorIs(t, err, raw.ErrEndOfStream)

	// The queue is still usable afterwards.
	dev.completions = []uint32{0}
	_, err = q.Dequeue()
	assert.NoError(t, err)
}
