// Package http exposes the IPC registry to the syscall-dispatch layer over
// HTTP. Handlers translate the core error taxonomy into status codes and
// never retry: WouldBlock and capacity failures go back to the caller.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/helixos/kernel-ipc/internal/config"
	"github.com/helixos/kernel-ipc/internal/ipc"
	"github.com/helixos/kernel-ipc/internal/logging"
	"github.com/helixos/kernel-ipc/internal/monitoring"
	"github.com/helixos/kernel-ipc/internal/process"
)

// Handlers carries the dependencies of the syscall surface.
type Handlers struct {
	mgr     *ipc.Manager
	procs   *process.Table
	metrics *monitoring.Metrics
	cfg     *config.Config
	log     *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(mgr *ipc.Manager, procs *process.Table, metrics *monitoring.Metrics, cfg *config.Config, log *logging.Logger) *Handlers {
	return &Handlers{mgr: mgr, procs: procs, metrics: metrics, cfg: cfg, log: log}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats reports a registry snapshot.
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.mgr.Stats())
}

// ----------------------------------------------------------------------------
// Processes
// ----------------------------------------------------------------------------

// RegisterProcess adds a pid to the process table, creating its page table.
func (h *Handlers) RegisterProcess(c *gin.Context) {
	var req struct {
		PID uint64 `json:"pid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	pt, err := h.procs.Register(req.PID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pid": req.PID, "page_table": uint64(pt)})
}

// UnregisterProcess removes a pid from the process table.
func (h *Handlers) UnregisterProcess(c *gin.Context) {
	pid, ok := h.pathID(c, "pid")
	if !ok {
		return
	}
	if err := h.procs.Unregister(pid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pid": pid, "removed": true})
}

// ----------------------------------------------------------------------------
// Message queues
// ----------------------------------------------------------------------------

// CreateQueue creates a plain or zero-copy message queue.
func (h *Handlers) CreateQueue(c *gin.Context) {
	var req struct {
		Owner          uint64 `json:"owner"`
		MaxMessages    int    `json:"max_messages" binding:"required"`
		MaxMessageSize uint64 `json:"max_message_size" binding:"required"`
		ZeroCopy       bool   `json:"zero_copy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.MaxMessages > h.cfg.IPC.MaxQueueDepth || req.MaxMessageSize > h.cfg.IPC.MaxMessageSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "queue limits exceed service caps",
			"code":  ipc.Code(ipc.ErrInvalidArgument),
		})
		return
	}

	var (
		id  uint64
		err error
	)
	if req.ZeroCopy {
		id, err = h.mgr.CreateZeroCopyQueue(req.Owner, req.MaxMessages, req.MaxMessageSize)
	} else {
		id, err = h.mgr.CreateMessageQueue(req.Owner, req.MaxMessages, req.MaxMessageSize)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.SetEntities("queue", h.mgr.Stats().Queues)
	c.JSON(http.StatusCreated, gin.H{"queue_id": id, "zero_copy": req.ZeroCopy})
}

// DestroyQueue removes a queue and, for zero-copy queues, its backing
// segment.
func (h *Handlers) DestroyQueue(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.mgr.DestroyMessageQueue(id); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.SetEntities("queue", h.mgr.Stats().Queues)
	c.JSON(http.StatusOK, gin.H{"queue_id": id, "destroyed": true})
}

// SendMessage enqueues an inline message.
func (h *Handlers) SendMessage(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Sender   uint64 `json:"sender"`
		Receiver uint64 `json:"receiver"`
		Type     uint32 `json:"type"`
		Priority uint8  `json:"priority"`
		Data     string `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	msg := ipc.NewMessage(req.Sender, req.Receiver, req.Type, []byte(req.Data)).WithPriority(req.Priority)
	if err := h.mgr.SendMessage(id, msg); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.RecordMessage("inline")
	c.JSON(http.StatusOK, gin.H{"queue_id": id, "message_id": msg.ID})
}

// ReceiveMessage dequeues the next message for a receiver.
func (h *Handlers) ReceiveMessage(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Receiver uint64 `json:"receiver"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	msg, err := h.mgr.ReceiveMessage(id, req.Receiver)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.RecordReceive()
	c.JSON(http.StatusOK, gin.H{"message": msg, "data": string(msg.Data)})
}

// PeekMessage returns the next matching message without removing it.
func (h *Handlers) PeekMessage(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	receiver, err := strconv.ParseUint(c.DefaultQuery("receiver", "0"), 10, 64)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	msg, found, err := h.mgr.PeekMessage(id, receiver)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"message": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "data": string(msg.Data)})
}

// SendZeroCopy enqueues a message referencing shared memory.
func (h *Handlers) SendZeroCopy(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Sender   uint64 `json:"sender"`
		Receiver uint64 `json:"receiver"`
		Type     uint32 `json:"type"`
		Segment  uint64 `json:"segment"`
		Offset   uint64 `json:"offset"`
		Length   uint64 `json:"length"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ref := ipc.ZeroCopyRef{Segment: req.Segment, Offset: req.Offset, Length: req.Length}
	if err := h.mgr.SendZeroCopy(id, req.Sender, req.Receiver, req.Type, ref); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.RecordMessage("zero_copy")
	c.JSON(http.StatusOK, gin.H{"queue_id": id, "segment": req.Segment})
}

// ReceiveZeroCopy dequeues a zero-copy message and returns its reference.
func (h *Handlers) ReceiveZeroCopy(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Receiver uint64 `json:"receiver"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ref, err := h.mgr.ReceiveZeroCopy(id, req.Receiver)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.RecordReceive()
	c.JSON(http.StatusOK, gin.H{"zero_copy": ref})
}

// ----------------------------------------------------------------------------
// Shared memory
// ----------------------------------------------------------------------------

// CreateSharedMemory allocates a region.
func (h *Handlers) CreateSharedMemory(c *gin.Context) {
	var req struct {
		Owner uint64 `json:"owner"`
		Size  uint64 `json:"size" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.Size > h.cfg.IPC.MaxRegionBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "region size exceeds service cap",
			"code":  ipc.Code(ipc.ErrInvalidArgument),
		})
		return
	}

	id, err := h.mgr.CreateSharedMemory(req.Owner, req.Size)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.SetEntities("region", h.mgr.Stats().Regions)
	c.JSON(http.StatusCreated, gin.H{"segment_id": id, "size": req.Size})
}

// DestroySharedMemory removes a region unconditionally.
func (h *Handlers) DestroySharedMemory(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.mgr.DestroySharedMemory(id); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.SetEntities("region", h.mgr.Stats().Regions)
	c.JSON(http.StatusOK, gin.H{"segment_id": id, "destroyed": true})
}

// AttachSharedMemory maps a region into a process address space.
func (h *Handlers) AttachSharedMemory(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		PID  uint64  `json:"pid" binding:"required"`
		Addr *uint64 `json:"addr"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	va, err := h.mgr.AttachSharedMemory(id, req.PID, req.Addr)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.ShmAttaches.Inc()
	c.JSON(http.StatusOK, gin.H{"segment_id": id, "pid": req.PID, "va": va})
}

// DetachSharedMemory unmaps a previously recorded attachment.
func (h *Handlers) DetachSharedMemory(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		PID  uint64 `json:"pid" binding:"required"`
		Addr uint64 `json:"addr" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.mgr.DetachSharedMemory(id, req.PID, req.Addr); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.ShmDetaches.Inc()
	c.JSON(http.StatusOK, gin.H{"segment_id": id, "pid": req.PID, "detached": true})
}

// WriteSharedMemory copies bytes into a region (hosted mode only).
func (h *Handlers) WriteSharedMemory(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Offset uint64 `json:"offset"`
		Data   string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.mgr.WriteSharedMemory(id, req.Offset, []byte(req.Data)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment_id": id, "bytes_written": len(req.Data)})
}

// ReadSharedMemory copies bytes out of a region (hosted mode only).
func (h *Handlers) ReadSharedMemory(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	offset, err1 := strconv.ParseUint(c.DefaultQuery("offset", "0"), 10, 64)
	length, err2 := strconv.ParseUint(c.Query("length"), 10, 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "offset and length query parameters are required",
			"code":  ipc.Code(ipc.ErrInvalidArgument),
		})
		return
	}

	data, err := h.mgr.ReadSharedMemory(id, offset, length)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment_id": id, "data": string(data), "bytes": len(data)})
}

// ZeroCopyAddress resolves a zero-copy reference to a virtual address for a
// process, attaching the segment.
func (h *Handlers) ZeroCopyAddress(c *gin.Context) {
	var req struct {
		Segment uint64 `json:"segment" binding:"required"`
		Offset  uint64 `json:"offset"`
		Length  uint64 `json:"length"`
		PID     uint64 `json:"pid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ref := ipc.ZeroCopyRef{Segment: req.Segment, Offset: req.Offset, Length: req.Length}
	va, err := h.mgr.ZeroCopyAddress(ref, req.PID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.ShmAttaches.Inc()
	c.JSON(http.StatusOK, gin.H{"va": va, "pid": req.PID})
}

// ReleaseZeroCopy detaches a mapping obtained from ZeroCopyAddress.
func (h *Handlers) ReleaseZeroCopy(c *gin.Context) {
	var req struct {
		Segment uint64 `json:"segment" binding:"required"`
		Offset  uint64 `json:"offset"`
		Length  uint64 `json:"length"`
		PID     uint64 `json:"pid" binding:"required"`
		VA      uint64 `json:"va" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ref := ipc.ZeroCopyRef{Segment: req.Segment, Offset: req.Offset, Length: req.Length}
	if err := h.mgr.ReleaseZeroCopy(ref, req.PID, req.VA); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.ShmDetaches.Inc()
	c.JSON(http.StatusOK, gin.H{"released": true})
}

// ----------------------------------------------------------------------------
// Semaphores
// ----------------------------------------------------------------------------

// CreateSemaphore creates a bounded semaphore.
func (h *Handlers) CreateSemaphore(c *gin.Context) {
	var req struct {
		Owner   uint64 `json:"owner"`
		Initial int64  `json:"initial"`
		Max     int64  `json:"max" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	id, err := h.mgr.CreateSemaphore(req.Owner, req.Initial, req.Max)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.SetEntities("semaphore", h.mgr.Stats().Semaphores)
	c.JSON(http.StatusCreated, gin.H{"semaphore_id": id})
}

// DestroySemaphore removes a semaphore.
func (h *Handlers) DestroySemaphore(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.mgr.DestroySemaphore(id); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.SetEntities("semaphore", h.mgr.Stats().Semaphores)
	c.JSON(http.StatusOK, gin.H{"semaphore_id": id, "destroyed": true})
}

// WaitSemaphore attempts an acquire; 409 with the pid recorded as a waiter
// when the semaphore is exhausted.
func (h *Handlers) WaitSemaphore(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		PID uint64 `json:"pid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.mgr.WaitSemaphore(id, req.PID); err != nil {
		if errors.Is(err, ipc.ErrWouldBlock) {
			h.metrics.RecordSemaphoreWait("blocked")
		}
		h.fail(c, err)
		return
	}
	h.metrics.RecordSemaphoreWait("acquired")
	c.JSON(http.StatusOK, gin.H{"semaphore_id": id, "acquired": true})
}

// SignalSemaphore releases one unit, waking a waiter if any.
func (h *Handlers) SignalSemaphore(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.mgr.SignalSemaphore(id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"semaphore_id": id, "signaled": true})
}

// ----------------------------------------------------------------------------
// Event channels
// ----------------------------------------------------------------------------

// CreateChannel creates an event channel.
func (h *Handlers) CreateChannel(c *gin.Context) {
	var req struct {
		Owner uint64 `json:"owner"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	id := h.mgr.CreateEventChannel(req.Owner)
	h.metrics.SetEntities("channel", h.mgr.Stats().Channels)
	c.JSON(http.StatusCreated, gin.H{"channel_id": id})
}

// DestroyChannel removes an event channel.
func (h *Handlers) DestroyChannel(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.mgr.DestroyEventChannel(id); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.SetEntities("channel", h.mgr.Stats().Channels)
	c.JSON(http.StatusOK, gin.H{"channel_id": id, "destroyed": true})
}

// Subscribe registers a subscriber mask.
func (h *Handlers) Subscribe(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Subscriber uint64 `json:"subscriber" binding:"required"`
		Mask       uint32 `json:"mask"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	mask := req.Mask
	if mask == 0 {
		mask = ^uint32(0)
	}
	if err := h.mgr.Subscribe(id, req.Subscriber, mask); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": id, "subscriber": req.Subscriber, "mask": mask})
}

// Unsubscribe removes a subscriber.
func (h *Handlers) Unsubscribe(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Subscriber uint64 `json:"subscriber" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.mgr.Unsubscribe(id, req.Subscriber); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": id, "unsubscribed": true})
}

// Publish appends an event to a channel.
func (h *Handlers) Publish(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Type   uint32 `json:"type" binding:"required"`
		Source uint64 `json:"source"`
		Data   string `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.mgr.Publish(id, req.Type, req.Source, []byte(req.Data)); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.EventsPublished.Inc()
	c.JSON(http.StatusOK, gin.H{"channel_id": id, "published": true})
}

// GetEvents drains the events matching a subscriber's mask.
func (h *Handlers) GetEvents(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Subscriber uint64 `json:"subscriber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	events, err := h.mgr.ChannelEvents(id, req.Subscriber)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.EventsDelivered.Add(float64(len(events)))
	c.JSON(http.StatusOK, gin.H{"channel_id": id, "events": events, "count": len(events)})
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func (h *Handlers) pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "malformed id: " + c.Param(name),
			"code":  ipc.Code(ipc.ErrInvalidArgument),
		})
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": err.Error(),
		"code":  ipc.Code(ipc.ErrInvalidArgument),
	})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": ipc.Code(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ipc.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ipc.ErrWouldBlock):
		return http.StatusConflict
	case errors.Is(err, ipc.ErrMessageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ipc.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ipc.ErrOutOfMemory):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
