package ipc

import (
	"sync/atomic"
	"time"
)

// Wildcard is the receiver id matched by any Receive call regardless of the
// caller's actual id.
const Wildcard uint64 = 0

// headerSize is the fixed bookkeeping cost charged per message against a
// queue's max message size, on top of the payload length.
const headerSize = 64

var nextMessageID atomic.Uint64

// ZeroCopyRef locates a message payload inside a shared memory segment
// instead of carrying the bytes inline.
type ZeroCopyRef struct {
	Segment uint64 `json:"segment"`
	Offset  uint64 `json:"offset"`
	Length  uint64 `json:"length"`
}

// Message is a single IPC message. Exactly one of Data and ZeroCopy is set;
// the constructors enforce this.
type Message struct {
	ID        uint64       `json:"id"`
	Sender    uint64       `json:"sender"`
	Receiver  uint64       `json:"receiver"`
	Type      uint32       `json:"type"`
	Priority  uint8        `json:"priority"`
	Data      []byte       `json:"data,omitempty"`
	ZeroCopy  *ZeroCopyRef `json:"zero_copy,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewMessage builds an inline message with priority 0.
func NewMessage(sender, receiver uint64, msgType uint32, data []byte) Message {
	return Message{
		ID:        nextMessageID.Add(1),
		Sender:    sender,
		Receiver:  receiver,
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewZeroCopyMessage builds a message whose payload stays in shared memory.
func NewZeroCopyMessage(sender, receiver uint64, msgType uint32, ref ZeroCopyRef) Message {
	return Message{
		ID:        nextMessageID.Add(1),
		Sender:    sender,
		Receiver:  receiver,
		Type:      msgType,
		ZeroCopy:  &ref,
		Timestamp: time.Now(),
	}
}

// WithPriority returns a copy of the message with the given priority.
func (m Message) WithPriority(priority uint8) Message {
	m.Priority = priority
	return m
}

// Size is the queue-accounting size of the message: the fixed header cost
// plus the payload length, whether inline or referenced.
func (m Message) Size() uint64 {
	if m.ZeroCopy != nil {
		return headerSize + m.ZeroCopy.Length
	}
	return headerSize + uint64(len(m.Data))
}

// IsZeroCopy reports whether the payload lives in shared memory.
func (m Message) IsZeroCopy() bool {
	return m.ZeroCopy != nil
}
