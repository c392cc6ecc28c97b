package ipc

import (
	"sync"
	"time"
)

// matchAll is the filter applied to subscribers with no registered mask.
const matchAll = ^uint32(0)

// Event is a published notification.
type Event struct {
	Type      uint32    `json:"type"`
	Source    uint64    `json:"source"`
	Data      []byte    `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventChannel delivers published events to subscribers filtered by a
// per-subscriber event mask, all drawn from one shared pending list.
//
// Delivery is single-consumer despite the subscribe naming: an event is
// removed from the pending list the first time any subscriber whose mask
// matches polls for it. Whoever polls first wins; this is not multicast.
type EventChannel struct {
	ID    uint64
	Owner uint64

	mu          sync.Mutex
	subscribers map[uint64]uint32
	pending     []Event
}

// NewEventChannel creates an empty channel.
func NewEventChannel(id, owner uint64) *EventChannel {
	return &EventChannel{
		ID:          id,
		Owner:       owner,
		subscribers: make(map[uint64]uint32),
	}
}

// Subscribe registers or replaces the event mask for a subscriber. The
// latest call wins.
func (c *EventChannel) Subscribe(subscriber uint64, mask uint32) {
	c.mu.Lock()
	c.subscribers[subscriber] = mask
	c.mu.Unlock()
}

// Unsubscribe removes a subscriber's mask registration.
func (c *EventChannel) Unsubscribe(subscriber uint64) {
	c.mu.Lock()
	delete(c.subscribers, subscriber)
	c.mu.Unlock()
}

// Publish appends an event to the shared pending list.
func (c *EventChannel) Publish(eventType uint32, source uint64, data []byte) {
	c.mu.Lock()
	c.pending = append(c.pending, Event{
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	})
	c.mu.Unlock()
}

// Events removes and returns the pending events matching the subscriber's
// mask. Unsubscribed callers match everything. Non-matching events remain
// pending for other subscribers.
func (c *EventChannel) Events(subscriber uint64) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	mask, ok := c.subscribers[subscriber]
	if !ok {
		mask = matchAll
	}

	var matched []Event
	kept := c.pending[:0]
	for _, ev := range c.pending {
		if ev.Type&mask != 0 {
			matched = append(matched, ev)
		} else {
			kept = append(kept, ev)
		}
	}
	c.pending = kept
	return matched
}

// SubscriberCount returns the number of registered subscribers.
func (c *EventChannel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

// PendingCount returns the number of undelivered events.
func (c *EventChannel) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
