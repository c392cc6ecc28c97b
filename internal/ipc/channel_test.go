package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSingleDelivery(t *testing.T) {
	c := NewEventChannel(1, 100)
	c.Subscribe(10, ^uint32(0))
	c.Subscribe(11, ^uint32(0))

	c.Publish(0x1, 5, []byte("once"))

	first := c.Events(10)
	require.Len(t, first, 1)
	assert.Equal(t, "once", string(first[0].Data))

	// Whoever polls first consumed it; the second subscriber sees nothing.
	assert.Empty(t, c.Events(11))
	assert.Equal(t, 0, c.PendingCount())
}

func TestChannelMaskFiltering(t *testing.T) {
	c := NewEventChannel(1, 100)
	c.Subscribe(10, 0x1)
	c.Subscribe(11, 0x2)

	c.Publish(0x1, 5, nil)
	c.Publish(0x2, 5, nil)
	c.Publish(0x2, 5, nil)

	got := c.Events(10)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(0x1), got[0].Type)

	// The non-matching events stayed pending for subscriber 11.
	assert.Len(t, c.Events(11), 2)
	assert.Equal(t, 0, c.PendingCount())
}

func TestChannelUnsubscribedDrainsAll(t *testing.T) {
	c := NewEventChannel(1, 100)

	c.Publish(0x1, 5, nil)
	c.Publish(0x80, 6, nil)

	// No registered mask means match-everything.
	assert.Len(t, c.Events(99), 2)
}

func TestChannelResubscribeReplacesMask(t *testing.T) {
	c := NewEventChannel(1, 100)
	c.Subscribe(10, 0x1)
	c.Subscribe(10, 0x2)
	assert.Equal(t, 1, c.SubscriberCount())

	c.Publish(0x1, 5, nil)
	c.Publish(0x2, 5, nil)

	got := c.Events(10)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(0x2), got[0].Type)
	assert.Equal(t, 1, c.PendingCount())
}

func TestChannelUnsubscribe(t *testing.T) {
	c := NewEventChannel(1, 100)
	c.Subscribe(10, 0x1)
	c.Unsubscribe(10)
	assert.Equal(t, 0, c.SubscriberCount())

	c.Publish(0x80, 5, nil)

	// Back to the match-everything default after unsubscribing.
	assert.Len(t, c.Events(10), 1)
}

func TestChannelEventsKeepPublishOrder(t *testing.T) {
	c := NewEventChannel(1, 100)
	c.Publish(0x1, 1, []byte("a"))
	c.Publish(0x1, 2, []byte("b"))
	c.Publish(0x1, 3, []byte("c"))

	got := c.Events(10)
	require.Len(t, got, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, string(got[i].Data))
	}
}
