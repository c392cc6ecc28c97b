// Package ipc implements the inter-process communication core of the kernel:
// priority-ordered message queues with a zero-copy transport mode,
// reference-counted shared memory regions, counting semaphores, and event
// channels, all owned by a single Manager registry.
//
// Entities:
//   - MessageQueue: bounded buffer, priority descending, FIFO within equal priority
//   - SharedMemoryRegion: refcounted physical backing, mappable into many address spaces
//   - Semaphore: bounded counter with a waiting list of blocked process ids
//   - EventChannel: mask-filtered delivery from one shared pending list
//
// The package is passive state accessed by preemptible kernel threads. Each
// entity guards its own mutable state with a short-held lock; the Manager's
// id maps are guarded separately so registry lookups never block behind a
// long entity operation. Wait and Receive never block here: they return
// ErrWouldBlock and leave suspension to the scheduler collaborator.
//
// External references to entities are opaque integer ids resolved through the
// Manager under lock, never aliased pointers. The Manager holds the sole
// owning slot per entity.
//
// Collaborators (page allocator, virtual memory, process table, scheduler)
// are consumed through interfaces declared in this package; reference
// implementations live in internal/memory and internal/process.
package ipc
