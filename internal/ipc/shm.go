package ipc

import (
	"sync"
	"sync/atomic"
)

// PhysAddr is a physical address granted by the page allocator. It is an
// opaque token here; only the allocator and the virtual-memory mapper
// interpret it.
type PhysAddr uint64

// PageSize is the granularity of physical grants and page table mappings.
const PageSize = 4096

// PagesFor returns the number of pages needed to back size bytes.
func PagesFor(size uint64) int {
	return int((size + PageSize - 1) / PageSize)
}

type attachKey struct {
	pid  uint64
	addr uint64
}

// SharedMemoryRegion is a reference-counted grant of physical memory that
// can be mapped into multiple address spaces. The physical backing is
// released only when the reference count reaches zero.
//
// The region tracks every (process, virtual address) attachment so a detach
// can be validated against a real mapping instead of trusting the
// caller-supplied address.
type SharedMemoryRegion struct {
	ID    uint64
	Owner uint64
	Size  uint64

	// frames are the backing page frames in mapping order. Base returns
	// frames[0]; the frames need not be physically contiguous.
	frames []PhysAddr

	refs atomic.Int64

	mu          sync.Mutex
	attachments map[attachKey]uint64 // (pid, va) -> mapped size
}

// NewSharedMemoryRegion creates a region over the given page frames with a
// reference count of 1.
func NewSharedMemoryRegion(id, owner uint64, size uint64, frames []PhysAddr) *SharedMemoryRegion {
	r := &SharedMemoryRegion{
		ID:          id,
		Owner:       owner,
		Size:        size,
		frames:      frames,
		attachments: make(map[attachKey]uint64),
	}
	r.refs.Store(1)
	return r
}

// Base returns the first backing frame.
func (r *SharedMemoryRegion) Base() PhysAddr {
	return r.frames[0]
}

// Frames returns the backing page frames in mapping order.
func (r *SharedMemoryRegion) Frames() []PhysAddr {
	return r.frames
}

// IncRef atomically increments the reference count and returns the new
// value.
func (r *SharedMemoryRegion) IncRef() int64 {
	return r.refs.Add(1)
}

// DecRef atomically decrements the reference count and returns the new
// value. The caller owning the zero transition releases the physical
// backing.
func (r *SharedMemoryRegion) DecRef() int64 {
	return r.refs.Add(-1)
}

// RefCount returns the current reference count.
func (r *SharedMemoryRegion) RefCount() int64 {
	return r.refs.Load()
}

// Contains reports whether [offset, offset+length) fits inside the region.
// The comparison is phrased to reject ranges whose sum would wrap uint64.
func (r *SharedMemoryRegion) Contains(offset, length uint64) bool {
	return length <= r.Size && offset <= r.Size-length
}

func (r *SharedMemoryRegion) recordAttachment(pid, addr uint64) {
	r.mu.Lock()
	r.attachments[attachKey{pid, addr}] = r.Size
	r.mu.Unlock()
}

// takeAttachment removes and returns the mapped size of a recorded
// attachment, reporting whether it existed.
func (r *SharedMemoryRegion) takeAttachment(pid, addr uint64) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	size, ok := r.attachments[attachKey{pid, addr}]
	if ok {
		delete(r.attachments, attachKey{pid, addr})
	}
	return size, ok
}

// AttachmentCount returns the number of live attachments across all
// processes.
func (r *SharedMemoryRegion) AttachmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attachments)
}
