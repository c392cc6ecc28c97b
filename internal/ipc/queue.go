package ipc

import (
	"fmt"
	"sync"
)

// RegionResolver resolves a shared memory segment id to its size. The
// Manager provides it so zero-copy sends can validate their references at
// send time.
type RegionResolver interface {
	RegionSize(segment uint64) (uint64, error)
}

// MessageQueue is a bounded per-owner message buffer kept in priority order:
// descending priority, FIFO among equal priorities. Count, IsFull and
// IsEmpty are derived from the live list so the depth can never drift from
// the buffer contents.
type MessageQueue struct {
	ID    uint64
	Owner uint64

	maxMessages    int
	maxMessageSize uint64

	// backing is the shared memory segment for zero-copy payloads, when the
	// queue was created with zero-copy support.
	backing *uint64

	regions RegionResolver

	mu       sync.Mutex
	messages []Message
}

// NewMessageQueue creates a plain bounded queue.
func NewMessageQueue(id, owner uint64, maxMessages int, maxMessageSize uint64, regions RegionResolver) *MessageQueue {
	return &MessageQueue{
		ID:             id,
		Owner:          owner,
		maxMessages:    maxMessages,
		maxMessageSize: maxMessageSize,
		regions:        regions,
	}
}

// NewZeroCopyQueue creates a queue backed by a shared memory segment for
// zero-copy payloads.
func NewZeroCopyQueue(id, owner uint64, maxMessages int, maxMessageSize uint64, segment uint64, regions RegionResolver) *MessageQueue {
	q := NewMessageQueue(id, owner, maxMessages, maxMessageSize, regions)
	q.backing = &segment
	return q
}

// BackingSegment returns the zero-copy backing segment id, if the queue has
// one.
func (q *MessageQueue) BackingSegment() (uint64, bool) {
	if q.backing == nil {
		return 0, false
	}
	return *q.backing, true
}

// Send enqueues a message in priority order. It fails with ErrWouldBlock at
// max depth and ErrMessageTooLarge when the accounted size exceeds the
// queue's limit. Zero-copy messages are validated against their referenced
// region before insertion.
func (q *MessageQueue) Send(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) >= q.maxMessages {
		return fmt.Errorf("queue %d at max depth %d: %w", q.ID, q.maxMessages, ErrWouldBlock)
	}
	if msg.Size() > q.maxMessageSize {
		return fmt.Errorf("message size %d exceeds limit %d: %w", msg.Size(), q.maxMessageSize, ErrMessageTooLarge)
	}

	if ref := msg.ZeroCopy; ref != nil {
		if len(msg.Data) != 0 {
			return fmt.Errorf("message carries both inline and zero-copy payloads: %w", ErrInvalidArgument)
		}
		if q.regions == nil {
			return fmt.Errorf("queue %d has no region resolver: %w", q.ID, ErrFault)
		}
		size, err := q.regions.RegionSize(ref.Segment)
		if err != nil {
			return fmt.Errorf("zero-copy segment %d: %w", ref.Segment, err)
		}
		// Phrased against wraparound: offset+length could overflow uint64.
		if ref.Length > size || ref.Offset > size-ref.Length {
			return fmt.Errorf("zero-copy range %d+%d exceeds segment size %d: %w",
				ref.Offset, ref.Length, size, ErrMessageTooLarge)
		}
	}

	// Insert before the first entry of strictly lower priority: total
	// deterministic ordering with FIFO tie-break.
	pos := len(q.messages)
	for i, m := range q.messages {
		if m.Priority < msg.Priority {
			pos = i
			break
		}
	}
	q.messages = append(q.messages, Message{})
	copy(q.messages[pos+1:], q.messages[pos:])
	q.messages[pos] = msg

	return nil
}

// SendZeroCopy constructs and enqueues a zero-copy message. It fails with
// ErrInvalidArgument when the queue was not created with zero-copy support.
func (q *MessageQueue) SendZeroCopy(sender, receiver uint64, msgType uint32, ref ZeroCopyRef) error {
	if q.backing == nil {
		return fmt.Errorf("queue %d has no zero-copy backing: %w", q.ID, ErrInvalidArgument)
	}
	return q.Send(NewZeroCopyMessage(sender, receiver, msgType, ref))
}

// Receive removes and returns the first message addressed to receiver or to
// the wildcard id. The buffer is priority sorted, so this is always the
// highest-priority match. ErrWouldBlock when nothing matches.
func (q *MessageQueue) Receive(receiver uint64) (Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.Receiver == receiver || m.Receiver == Wildcard {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return m, nil
		}
	}
	return Message{}, fmt.Errorf("no message for receiver %d: %w", receiver, ErrWouldBlock)
}

// ReceiveZeroCopy dequeues the next message for receiver and unwraps its
// shared memory reference. A dequeued inline message fails with
// ErrInvalidArgument.
func (q *MessageQueue) ReceiveZeroCopy(receiver uint64) (ZeroCopyRef, error) {
	msg, err := q.Receive(receiver)
	if err != nil {
		return ZeroCopyRef{}, err
	}
	if msg.ZeroCopy == nil {
		return ZeroCopyRef{}, fmt.Errorf("message %d carries an inline payload: %w", msg.ID, ErrInvalidArgument)
	}
	return *msg.ZeroCopy, nil
}

// Peek returns the first matching message without removing it.
func (q *MessageQueue) Peek(receiver uint64) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.Receiver == receiver || m.Receiver == Wildcard {
			return m, true
		}
	}
	return Message{}, false
}

// Count returns the number of buffered messages.
func (q *MessageQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// IsFull reports whether the queue is at max depth.
func (q *MessageQueue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages) >= q.maxMessages
}

// IsEmpty reports whether the queue holds no messages.
func (q *MessageQueue) IsEmpty() bool {
	return q.Count() == 0
}
