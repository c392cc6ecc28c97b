package ipc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/helixos/kernel-ipc/internal/logging"
)

// Manager is the IPC registry: it owns every queue, shared memory region,
// semaphore and event channel, allocates their ids, and is the only
// component that talks to the memory and process collaborators.
//
// The registry is constructed explicitly by the kernel's composition root;
// there is no global instance. Each entity kind has its own map and lock so
// lookups of one kind never contend with another, and so a registry lookup
// never blocks behind a long entity operation.
type Manager struct {
	allocator PageAllocator
	frames    FrameMemory // nil when the allocator cannot expose frame bytes
	vm        VirtualMemory
	procs     ProcessTable
	sched     Scheduler
	log       *logging.Logger

	queuesMu sync.RWMutex
	queues   map[uint64]*MessageQueue

	regionsMu sync.RWMutex
	regions   map[uint64]*SharedMemoryRegion

	semsMu sync.RWMutex
	sems   map[uint64]*Semaphore

	channelsMu sync.RWMutex
	channels   map[uint64]*EventChannel

	nextQueueID   atomic.Uint64
	nextRegionID  atomic.Uint64
	nextSemID     atomic.Uint64
	nextChannelID atomic.Uint64

	messagesSent    atomic.Uint64
	eventsPublished atomic.Uint64
}

// Stats is a point-in-time snapshot of registry state.
type Stats struct {
	Queues          int    `json:"queues"`
	Regions         int    `json:"regions"`
	Semaphores      int    `json:"semaphores"`
	Channels        int    `json:"channels"`
	MessagesSent    uint64 `json:"messages_sent"`
	EventsPublished uint64 `json:"events_published"`
}

// NewManager creates the registry over its collaborators. The logger may be
// nil.
func NewManager(alloc PageAllocator, vm VirtualMemory, procs ProcessTable, sched Scheduler, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	frames, _ := alloc.(FrameMemory)
	return &Manager{
		allocator: alloc,
		frames:    frames,
		vm:        vm,
		procs:     procs,
		sched:     sched,
		log:       log,
		queues:    make(map[uint64]*MessageQueue),
		regions:   make(map[uint64]*SharedMemoryRegion),
		sems:      make(map[uint64]*Semaphore),
		channels:  make(map[uint64]*EventChannel),
	}
}

// ----------------------------------------------------------------------------
// Message queues
// ----------------------------------------------------------------------------

// CreateMessageQueue registers a new bounded queue and returns its id.
func (m *Manager) CreateMessageQueue(owner uint64, maxMessages int, maxMessageSize uint64) (uint64, error) {
	if maxMessages <= 0 || maxMessageSize == 0 {
		return 0, fmt.Errorf("queue limits %d/%d: %w", maxMessages, maxMessageSize, ErrInvalidArgument)
	}

	id := m.nextQueueID.Add(1)
	q := NewMessageQueue(id, owner, maxMessages, maxMessageSize, m)

	m.queuesMu.Lock()
	m.queues[id] = q
	m.queuesMu.Unlock()

	m.log.Debug("message queue created",
		zap.Uint64("queue", id),
		zap.Uint64("owner", owner),
		zap.Int("max_messages", maxMessages))
	return id, nil
}

// CreateZeroCopyQueue composes a shared memory region sized
// maxMessages x maxMessageSize with a queue that references it for
// zero-copy payloads.
func (m *Manager) CreateZeroCopyQueue(owner uint64, maxMessages int, maxMessageSize uint64) (uint64, error) {
	if maxMessages <= 0 || maxMessageSize == 0 {
		return 0, fmt.Errorf("queue limits %d/%d: %w", maxMessages, maxMessageSize, ErrInvalidArgument)
	}

	segment, err := m.CreateSharedMemory(owner, uint64(maxMessages)*maxMessageSize)
	if err != nil {
		return 0, err
	}

	id := m.nextQueueID.Add(1)
	q := NewZeroCopyQueue(id, owner, maxMessages, maxMessageSize, segment, m)

	m.queuesMu.Lock()
	m.queues[id] = q
	m.queuesMu.Unlock()

	m.log.Debug("zero-copy queue created",
		zap.Uint64("queue", id),
		zap.Uint64("segment", segment),
		zap.Uint64("owner", owner))
	return id, nil
}

// DestroyMessageQueue removes a queue. A zero-copy queue's backing segment
// is destroyed with it, bypassing the refcount discipline.
func (m *Manager) DestroyMessageQueue(id uint64) error {
	m.queuesMu.Lock()
	q, ok := m.queues[id]
	if !ok {
		m.queuesMu.Unlock()
		return fmt.Errorf("queue %d: %w", id, ErrNotFound)
	}
	delete(m.queues, id)
	m.queuesMu.Unlock()

	if segment, ok := q.BackingSegment(); ok {
		if err := m.DestroySharedMemory(segment); err != nil {
			m.log.Warn("backing segment teardown failed",
				zap.Uint64("queue", id),
				zap.Uint64("segment", segment),
				zap.Error(err))
		}
	}
	m.log.Debug("message queue destroyed", zap.Uint64("queue", id))
	return nil
}

// Queue resolves a queue id.
func (m *Manager) Queue(id uint64) (*MessageQueue, error) {
	m.queuesMu.RLock()
	q, ok := m.queues[id]
	m.queuesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("queue %d: %w", id, ErrNotFound)
	}
	return q, nil
}

// SendMessage enqueues a message on the identified queue.
func (m *Manager) SendMessage(queueID uint64, msg Message) error {
	q, err := m.Queue(queueID)
	if err != nil {
		return err
	}
	if err := q.Send(msg); err != nil {
		return err
	}
	m.messagesSent.Add(1)
	return nil
}

// ReceiveMessage dequeues the next message for receiver on the identified
// queue.
func (m *Manager) ReceiveMessage(queueID, receiver uint64) (Message, error) {
	q, err := m.Queue(queueID)
	if err != nil {
		return Message{}, err
	}
	return q.Receive(receiver)
}

// PeekMessage returns the next message for receiver without removing it.
func (m *Manager) PeekMessage(queueID, receiver uint64) (Message, bool, error) {
	q, err := m.Queue(queueID)
	if err != nil {
		return Message{}, false, err
	}
	msg, ok := q.Peek(receiver)
	return msg, ok, nil
}

// SendZeroCopy enqueues a zero-copy message on the identified queue.
func (m *Manager) SendZeroCopy(queueID, sender, receiver uint64, msgType uint32, ref ZeroCopyRef) error {
	q, err := m.Queue(queueID)
	if err != nil {
		return err
	}
	if err := q.SendZeroCopy(sender, receiver, msgType, ref); err != nil {
		return err
	}
	m.messagesSent.Add(1)
	return nil
}

// ReceiveZeroCopy dequeues a zero-copy message and returns its shared memory
// reference.
func (m *Manager) ReceiveZeroCopy(queueID, receiver uint64) (ZeroCopyRef, error) {
	q, err := m.Queue(queueID)
	if err != nil {
		return ZeroCopyRef{}, err
	}
	return q.ReceiveZeroCopy(receiver)
}

// ----------------------------------------------------------------------------
// Shared memory
// ----------------------------------------------------------------------------

// CreateSharedMemory allocates physical backing for size bytes and registers
// a region with reference count 1.
func (m *Manager) CreateSharedMemory(owner uint64, size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("zero-sized region: %w", ErrInvalidArgument)
	}

	pages := PagesFor(size)
	frames := make([]PhysAddr, 0, pages)
	for i := 0; i < pages; i++ {
		frame, err := m.allocator.AllocatePage()
		if err != nil {
			for _, f := range frames {
				_ = m.allocator.FreePage(f)
			}
			return 0, fmt.Errorf("allocating page %d of %d: %w", i+1, pages, err)
		}
		frames = append(frames, frame)
	}

	id := m.nextRegionID.Add(1)
	r := NewSharedMemoryRegion(id, owner, size, frames)

	m.regionsMu.Lock()
	m.regions[id] = r
	m.regionsMu.Unlock()

	m.log.Debug("shared memory created",
		zap.Uint64("segment", id),
		zap.Uint64("owner", owner),
		zap.Uint64("size", size),
		zap.Int("pages", pages))
	return id, nil
}

// DestroySharedMemory removes a region and frees its backing regardless of
// the reference count, bypassing the normal detach discipline. It exists for
// registry teardown paths (a zero-copy queue taking its backing segment
// down). Live attachments in process page tables are left to process
// teardown.
func (m *Manager) DestroySharedMemory(segment uint64) error {
	m.regionsMu.Lock()
	r, ok := m.regions[segment]
	if !ok {
		m.regionsMu.Unlock()
		return fmt.Errorf("segment %d: %w", segment, ErrNotFound)
	}
	delete(m.regions, segment)
	m.regionsMu.Unlock()

	for _, frame := range r.Frames() {
		_ = m.allocator.FreePage(frame)
	}
	m.log.Info("shared memory destroyed",
		zap.Uint64("segment", segment),
		zap.Int64("refs_at_destroy", r.RefCount()))
	return nil
}

// Region resolves a segment id.
func (m *Manager) Region(segment uint64) (*SharedMemoryRegion, error) {
	m.regionsMu.RLock()
	r, ok := m.regions[segment]
	m.regionsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("segment %d: %w", segment, ErrNotFound)
	}
	return r, nil
}

// RegionSize implements RegionResolver for queue-side zero-copy validation.
func (m *Manager) RegionSize(segment uint64) (uint64, error) {
	r, err := m.Region(segment)
	if err != nil {
		return 0, err
	}
	return r.Size, nil
}

// AttachSharedMemory maps a region into a process address space with
// user/read/write permission and increments the reference count. addr, when
// non-nil, fixes the virtual base; otherwise a free range is resolved
// through the virtual-memory collaborator. Returns the chosen virtual
// address.
func (m *Manager) AttachSharedMemory(segment, pid uint64, addr *uint64) (uint64, error) {
	r, err := m.Region(segment)
	if err != nil {
		return 0, err
	}
	pt, err := m.pageTable(pid)
	if err != nil {
		return 0, err
	}

	var va uint64
	if addr != nil {
		va = *addr
	} else {
		v, ok := m.vm.FindFreeRange(pt, r.Size)
		if !ok {
			return 0, fmt.Errorf("no free range for %d bytes in process %d: %w", r.Size, pid, ErrOutOfMemory)
		}
		va = v
	}

	perm := PermUser | PermRead | PermWrite
	for i, frame := range r.Frames() {
		if err := m.vm.MapPages(pt, va+uint64(i)*PageSize, frame, PageSize, perm); err != nil {
			for j := 0; j < i; j++ {
				_ = m.vm.UnmapPage(pt, va+uint64(j)*PageSize)
			}
			return 0, fmt.Errorf("mapping segment %d at %#x for process %d: %w", segment, va, pid, ErrFault)
		}
	}

	r.IncRef()
	r.recordAttachment(pid, va)

	m.log.Debug("shared memory attached",
		zap.Uint64("segment", segment),
		zap.Uint64("pid", pid),
		zap.Uint64("va", va),
		zap.Int64("refs", r.RefCount()))
	return va, nil
}

// DetachSharedMemory unmaps every page of a recorded attachment and
// decrements the reference count; the zero transition releases the physical
// backing and invalidates the handle. An address that was never returned by
// AttachSharedMemory for this process fails with ErrInvalidArgument.
func (m *Manager) DetachSharedMemory(segment, pid, addr uint64) error {
	r, err := m.Region(segment)
	if err != nil {
		return err
	}
	pt, err := m.pageTable(pid)
	if err != nil {
		return err
	}

	size, ok := r.takeAttachment(pid, addr)
	if !ok {
		return fmt.Errorf("process %d has no attachment of segment %d at %#x: %w", pid, segment, addr, ErrInvalidArgument)
	}

	// The attachment record is gone, so the detach must run to completion:
	// a page that fails to unmap is reported but does not abort the loop or
	// the refcount decrement, keeping the bookkeeping consistent.
	var unmapErr error
	for off := uint64(0); off < size; off += PageSize {
		if err := m.vm.UnmapPage(pt, addr+off); err != nil && unmapErr == nil {
			unmapErr = fmt.Errorf("unmapping %#x for process %d: %w", addr+off, pid, ErrFault)
		}
	}
	if unmapErr != nil {
		m.log.Warn("partial unmap during detach",
			zap.Uint64("segment", segment),
			zap.Uint64("pid", pid),
			zap.Error(unmapErr))
	}

	if r.DecRef() == 0 {
		m.regionsMu.Lock()
		delete(m.regions, segment)
		m.regionsMu.Unlock()
		for _, frame := range r.Frames() {
			_ = m.allocator.FreePage(frame)
		}
		m.log.Info("shared memory released", zap.Uint64("segment", segment))
	}
	return unmapErr
}

// ZeroCopyAddress attaches the referenced segment to a process and returns
// the virtual address of the referenced bytes. The reference is bounds
// checked against the region on every resolution.
func (m *Manager) ZeroCopyAddress(ref ZeroCopyRef, pid uint64) (uint64, error) {
	r, err := m.Region(ref.Segment)
	if err != nil {
		return 0, err
	}
	if !r.Contains(ref.Offset, ref.Length) {
		return 0, fmt.Errorf("zero-copy range %d+%d outside segment %d: %w",
			ref.Offset, ref.Length, ref.Segment, ErrInvalidArgument)
	}
	va, err := m.AttachSharedMemory(ref.Segment, pid, nil)
	if err != nil {
		return 0, err
	}
	return va + ref.Offset, nil
}

// ReleaseZeroCopy detaches the mapping obtained from ZeroCopyAddress. va is
// the address ZeroCopyAddress returned, offset included.
func (m *Manager) ReleaseZeroCopy(ref ZeroCopyRef, pid, va uint64) error {
	if va < ref.Offset {
		return fmt.Errorf("address %#x below zero-copy offset %d: %w", va, ref.Offset, ErrInvalidArgument)
	}
	return m.DetachSharedMemory(ref.Segment, pid, va-ref.Offset)
}

// WriteSharedMemory copies data into a region at offset. Available when the
// page allocator exposes frame bytes (hosted mode); otherwise ErrFault.
func (m *Manager) WriteSharedMemory(segment, offset uint64, data []byte) error {
	r, frames, err := m.frameAccess(segment, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	for written := 0; written < len(data); {
		pos := offset + uint64(written)
		b, err := m.frames.FrameBytes(frames[pos/PageSize])
		if err != nil {
			return fmt.Errorf("frame for segment %d: %w", r.ID, ErrFault)
		}
		n := copy(b[pos%PageSize:], data[written:])
		written += n
	}
	return nil
}

// ReadSharedMemory copies length bytes out of a region at offset. Available
// when the page allocator exposes frame bytes (hosted mode); otherwise
// ErrFault.
func (m *Manager) ReadSharedMemory(segment, offset, length uint64) ([]byte, error) {
	r, frames, err := m.frameAccess(segment, offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	for read := 0; uint64(read) < length; {
		pos := offset + uint64(read)
		b, err := m.frames.FrameBytes(frames[pos/PageSize])
		if err != nil {
			return nil, fmt.Errorf("frame for segment %d: %w", r.ID, ErrFault)
		}
		n := copy(out[read:], b[pos%PageSize:])
		read += n
	}
	return out, nil
}

func (m *Manager) frameAccess(segment, offset, length uint64) (*SharedMemoryRegion, []PhysAddr, error) {
	if m.frames == nil {
		return nil, nil, fmt.Errorf("allocator does not expose frame memory: %w", ErrFault)
	}
	r, err := m.Region(segment)
	if err != nil {
		return nil, nil, err
	}
	if !r.Contains(offset, length) {
		return nil, nil, fmt.Errorf("range %d+%d outside segment %d: %w", offset, length, segment, ErrInvalidArgument)
	}
	return r, r.Frames(), nil
}

func (m *Manager) pageTable(pid uint64) (PageTable, error) {
	pt, err := m.procs.PageTable(pid)
	if err != nil || pt == 0 {
		return 0, fmt.Errorf("process %d page table: %w", pid, ErrFault)
	}
	return pt, nil
}

// ----------------------------------------------------------------------------
// Semaphores
// ----------------------------------------------------------------------------

// CreateSemaphore registers a new semaphore and returns its id.
func (m *Manager) CreateSemaphore(owner uint64, initial, max int64) (uint64, error) {
	if max <= 0 || initial < 0 || initial > max {
		return 0, fmt.Errorf("semaphore bounds %d/%d: %w", initial, max, ErrInvalidArgument)
	}

	id := m.nextSemID.Add(1)
	m.semsMu.Lock()
	m.sems[id] = NewSemaphore(id, owner, initial, max)
	m.semsMu.Unlock()

	m.log.Debug("semaphore created",
		zap.Uint64("semaphore", id),
		zap.Int64("initial", initial),
		zap.Int64("max", max))
	return id, nil
}

// DestroySemaphore removes a semaphore. Blocked waiters are not woken; their
// cleanup on process exit is the process table's job.
func (m *Manager) DestroySemaphore(id uint64) error {
	m.semsMu.Lock()
	defer m.semsMu.Unlock()
	if _, ok := m.sems[id]; !ok {
		return fmt.Errorf("semaphore %d: %w", id, ErrNotFound)
	}
	delete(m.sems, id)
	return nil
}

// Semaphore resolves a semaphore id.
func (m *Manager) Semaphore(id uint64) (*Semaphore, error) {
	m.semsMu.RLock()
	s, ok := m.sems[id]
	m.semsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("semaphore %d: %w", id, ErrNotFound)
	}
	return s, nil
}

// WaitSemaphore attempts an acquire for pid, reporting ErrWouldBlock after
// recording pid as a waiter.
func (m *Manager) WaitSemaphore(id, pid uint64) error {
	s, err := m.Semaphore(id)
	if err != nil {
		return err
	}
	return s.Wait(pid)
}

// SignalSemaphore releases one unit, waking the most recently blocked waiter
// through the scheduler collaborator.
func (m *Manager) SignalSemaphore(id uint64) error {
	s, err := m.Semaphore(id)
	if err != nil {
		return err
	}
	pid, woken, err := s.Signal()
	if err != nil {
		return err
	}
	if woken {
		m.sched.Wake(pid)
		m.log.Debug("semaphore wake", zap.Uint64("semaphore", id), zap.Uint64("pid", pid))
	}
	return nil
}

// ----------------------------------------------------------------------------
// Event channels
// ----------------------------------------------------------------------------

// CreateEventChannel registers a new channel and returns its id.
func (m *Manager) CreateEventChannel(owner uint64) uint64 {
	id := m.nextChannelID.Add(1)
	m.channelsMu.Lock()
	m.channels[id] = NewEventChannel(id, owner)
	m.channelsMu.Unlock()

	m.log.Debug("event channel created", zap.Uint64("channel", id), zap.Uint64("owner", owner))
	return id
}

// DestroyEventChannel removes a channel and drops its pending events.
func (m *Manager) DestroyEventChannel(id uint64) error {
	m.channelsMu.Lock()
	defer m.channelsMu.Unlock()
	if _, ok := m.channels[id]; !ok {
		return fmt.Errorf("channel %d: %w", id, ErrNotFound)
	}
	delete(m.channels, id)
	return nil
}

// Channel resolves a channel id.
func (m *Manager) Channel(id uint64) (*EventChannel, error) {
	m.channelsMu.RLock()
	c, ok := m.channels[id]
	m.channelsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("channel %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// Subscribe registers a subscriber mask on a channel.
func (m *Manager) Subscribe(channelID, subscriber uint64, mask uint32) error {
	c, err := m.Channel(channelID)
	if err != nil {
		return err
	}
	c.Subscribe(subscriber, mask)
	return nil
}

// Unsubscribe removes a subscriber from a channel.
func (m *Manager) Unsubscribe(channelID, subscriber uint64) error {
	c, err := m.Channel(channelID)
	if err != nil {
		return err
	}
	c.Unsubscribe(subscriber)
	return nil
}

// Publish appends an event to a channel's pending list.
func (m *Manager) Publish(channelID uint64, eventType uint32, source uint64, data []byte) error {
	c, err := m.Channel(channelID)
	if err != nil {
		return err
	}
	c.Publish(eventType, source, data)
	m.eventsPublished.Add(1)
	return nil
}

// ChannelEvents drains the events matching a subscriber's mask.
func (m *Manager) ChannelEvents(channelID, subscriber uint64) ([]Event, error) {
	c, err := m.Channel(channelID)
	if err != nil {
		return nil, err
	}
	return c.Events(subscriber), nil
}

// ----------------------------------------------------------------------------
// Introspection
// ----------------------------------------------------------------------------

// Stats returns a snapshot of registry state.
func (m *Manager) Stats() Stats {
	m.queuesMu.RLock()
	queues := len(m.queues)
	m.queuesMu.RUnlock()
	m.regionsMu.RLock()
	regions := len(m.regions)
	m.regionsMu.RUnlock()
	m.semsMu.RLock()
	sems := len(m.sems)
	m.semsMu.RUnlock()
	m.channelsMu.RLock()
	channels := len(m.channels)
	m.channelsMu.RUnlock()

	return Stats{
		Queues:          queues,
		Regions:         regions,
		Semaphores:      sems,
		Channels:        channels,
		MessagesSent:    m.messagesSent.Load(),
		EventsPublished: m.eventsPublished.Load(),
	}
}
