// Package v4l2 is a safe, allocation-aware wrapper around the Linux video
// device streaming interface.
//
// A Device goes through a fixed lifecycle: open the node, negotiate a
// Format, allocate a buffer queue backed by a memory.Strategy, stream, and
// tear down. Each stage is enforced before any control request reaches the
// kernel, so misuse surfaces as a SequencingError instead of an opaque
// driver errno.
//
// Frame memory follows one of three strategies: kernel-mapped regions
// (memory.Mmap), application-owned slices (memory.UserPtr), or imported
// dmabuf descriptors (memory.DmaBuf). The queue tracks which side owns each
// slot; a slot handed to the device is inaccessible until it is dequeued.
//
// A Device is not internally synchronized. Drive it from one goroutine, or
// serialize access externally.
package v4l2
