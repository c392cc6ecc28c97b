package ipc

// PageTable is an opaque per-process page table handle resolved through the
// process table collaborator. The zero value is invalid.
type PageTable uint64

// Perm is a page permission bit set for mappings.
type Perm uint8

// Page permissions. Shared memory attachments map user/read/write.
const (
	PermUser Perm = 1 << iota
	PermRead
	PermWrite
)

// PageAllocator grants and releases physical pages. All shared memory
// backing flows through it.
type PageAllocator interface {
	AllocatePage() (PhysAddr, error)
	FreePage(addr PhysAddr) error
}

// FrameMemory is an optional extension of PageAllocator for hosted
// allocators that can expose the bytes backing a frame. The Manager uses it
// for the shared memory read/write paths; a bare-metal allocator simply does
// not implement it.
type FrameMemory interface {
	FrameBytes(addr PhysAddr) ([]byte, error)
}

// VirtualMemory maps and unmaps physical pages in a process page table and
// finds free virtual ranges. All page table mutation is serialized through
// this collaborator.
type VirtualMemory interface {
	MapPages(pt PageTable, va uint64, pa PhysAddr, size uint64, perm Perm) error
	UnmapPage(pt PageTable, va uint64) error
	FindFreeRange(pt PageTable, size uint64) (uint64, bool)
}

// ProcessTable resolves process ids to their page tables.
type ProcessTable interface {
	PageTable(pid uint64) (PageTable, error)
}

// Scheduler wakes processes this layer previously reported as blocked. The
// IPC core updates its bookkeeping first, then delegates the wakeup, keeping
// IPC state independent of scheduling policy.
type Scheduler interface {
	Wake(pid uint64)
}
