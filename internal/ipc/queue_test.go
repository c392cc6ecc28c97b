package ipc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	sizes map[uint64]uint64
}

func (f *fakeResolver) RegionSize(segment uint64) (uint64, error) {
	size, ok := f.sizes[segment]
	if !ok {
		return 0, fmt.Errorf("segment %d: %w", segment, ErrNotFound)
	}
	return size, nil
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewMessageQueue(1, 100, 16, 4096, nil)

	require.NoError(t, q.Send(NewMessage(1, 2, 0, []byte("low")).WithPriority(1)))
	require.NoError(t, q.Send(NewMessage(1, 2, 0, []byte("high")).WithPriority(9)))
	require.NoError(t, q.Send(NewMessage(1, 2, 0, []byte("mid")).WithPriority(5)))

	var got []string
	for i := 0; i < 3; i++ {
		msg, err := q.Receive(2)
		require.NoError(t, err)
		got = append(got, string(msg.Data))
	}
	assert.Equal(t, []string{"high", "mid", "low"}, got)
}

func TestQueueFIFOAmongEqualPriorities(t *testing.T) {
	q := NewMessageQueue(1, 100, 16, 4096, nil)

	first := NewMessage(1, 2, 0, []byte("first")).WithPriority(5)
	second := NewMessage(1, 2, 0, []byte("second")).WithPriority(5)
	require.NoError(t, q.Send(first))
	require.NoError(t, q.Send(second))

	msg, err := q.Receive(2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, msg.ID)

	msg, err = q.Receive(2)
	require.NoError(t, err)
	assert.Equal(t, second.ID, msg.ID)
}

func TestQueueRejectsAtMaxDepth(t *testing.T) {
	q := NewMessageQueue(1, 100, 2, 4096, nil)

	require.NoError(t, q.Send(NewMessage(1, 2, 0, nil)))
	require.NoError(t, q.Send(NewMessage(1, 2, 0, nil)))
	assert.True(t, q.IsFull())

	err := q.Send(NewMessage(1, 2, 0, nil))
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 2, q.Count())
}

func TestQueueRejectsOversizedMessage(t *testing.T) {
	q := NewMessageQueue(1, 100, 16, 256, nil)

	// headerSize is charged on top of the payload.
	err := q.Send(NewMessage(1, 2, 0, make([]byte, 256)))
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	require.NoError(t, q.Send(NewMessage(1, 2, 0, make([]byte, 256-headerSize))))
}

func TestQueueReceiveMatchesWildcard(t *testing.T) {
	q := NewMessageQueue(1, 100, 16, 4096, nil)

	require.NoError(t, q.Send(NewMessage(1, 7, 0, []byte("direct"))))
	require.NoError(t, q.Send(NewMessage(1, Wildcard, 0, []byte("broadcast"))))

	// Receiver 9 only matches the wildcard entry.
	msg, err := q.Receive(9)
	require.NoError(t, err)
	assert.Equal(t, "broadcast", string(msg.Data))

	_, err = q.Receive(9)
	assert.ErrorIs(t, err, ErrWouldBlock)

	msg, err = q.Receive(7)
	require.NoError(t, err)
	assert.Equal(t, "direct", string(msg.Data))
	assert.True(t, q.IsEmpty())
}

func TestQueueReceiveSkipsHigherPriorityForOtherReceiver(t *testing.T) {
	q := NewMessageQueue(1, 100, 16, 4096, nil)

	require.NoError(t, q.Send(NewMessage(1, 5, 0, []byte("for five")).WithPriority(9)))
	require.NoError(t, q.Send(NewMessage(1, 6, 0, []byte("for six")).WithPriority(1)))

	msg, err := q.Receive(6)
	require.NoError(t, err)
	assert.Equal(t, "for six", string(msg.Data))
	assert.Equal(t, 1, q.Count())
}

func TestQueueTwoReceiverScenario(t *testing.T) {
	q := NewMessageQueue(1, 100, 2, 4096, nil)

	require.NoError(t, q.Send(NewMessage(1, 2, 100, nil).WithPriority(0)))
	require.NoError(t, q.Send(NewMessage(1, 3, 101, nil).WithPriority(5)))

	msg, err := q.Receive(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(101), msg.Type)

	msg, err = q.Receive(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), msg.Type)
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	q := NewMessageQueue(1, 100, 16, 4096, nil)

	_, found := q.Peek(2)
	assert.False(t, found)

	sent := NewMessage(1, 2, 0, []byte("x"))
	require.NoError(t, q.Send(sent))

	msg, found := q.Peek(2)
	require.True(t, found)
	assert.Equal(t, sent.ID, msg.ID)
	assert.Equal(t, 1, q.Count())
}

func TestQueueZeroCopyValidation(t *testing.T) {
	regions := &fakeResolver{sizes: map[uint64]uint64{42: 8192}}
	q := NewZeroCopyQueue(1, 100, 16, 1<<20, 42, regions)

	seg, ok := q.BackingSegment()
	require.True(t, ok)
	assert.Equal(t, uint64(42), seg)

	require.NoError(t, q.SendZeroCopy(1, 2, 0, ZeroCopyRef{Segment: 42, Offset: 0, Length: 8192}))

	err := q.SendZeroCopy(1, 2, 0, ZeroCopyRef{Segment: 42, Offset: 4096, Length: 4097})
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	err = q.SendZeroCopy(1, 2, 0, ZeroCopyRef{Segment: 99, Length: 16})
	assert.ErrorIs(t, err, ErrNotFound)

	// Offsets near the top of uint64 must not wrap past the bounds check.
	err = q.SendZeroCopy(1, 2, 0, ZeroCopyRef{Segment: 42, Offset: ^uint64(0), Length: 2})
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	err = q.SendZeroCopy(1, 2, 0, ZeroCopyRef{Segment: 42, Offset: 2, Length: ^uint64(0)})
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestQueueRejectsDualPayload(t *testing.T) {
	regions := &fakeResolver{sizes: map[uint64]uint64{42: 8192}}
	q := NewZeroCopyQueue(1, 100, 16, 1<<20, 42, regions)

	msg := NewMessage(1, 2, 0, []byte("inline"))
	msg.ZeroCopy = &ZeroCopyRef{Segment: 42, Length: 16}
	assert.ErrorIs(t, q.Send(msg), ErrInvalidArgument)
}

func TestQueueSendZeroCopyWithoutBacking(t *testing.T) {
	q := NewMessageQueue(1, 100, 16, 4096, nil)
	err := q.SendZeroCopy(1, 2, 0, ZeroCopyRef{Segment: 1, Length: 16})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestQueueReceiveZeroCopyOnInlineMessage(t *testing.T) {
	regions := &fakeResolver{sizes: map[uint64]uint64{42: 8192}}
	q := NewZeroCopyQueue(1, 100, 16, 1<<20, 42, regions)

	require.NoError(t, q.Send(NewMessage(1, 2, 0, []byte("inline"))))

	_, err := q.ReceiveZeroCopy(2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	// The message was consumed by the dequeue even though unwrapping failed.
	assert.True(t, q.IsEmpty())
}

func TestQueueReceiveZeroCopyReturnsRef(t *testing.T) {
	regions := &fakeResolver{sizes: map[uint64]uint64{42: 8192}}
	q := NewZeroCopyQueue(1, 100, 16, 1<<20, 42, regions)

	want := ZeroCopyRef{Segment: 42, Offset: 128, Length: 512}
	require.NoError(t, q.SendZeroCopy(3, 4, 0, want))

	ref, err := q.ReceiveZeroCopy(4)
	require.NoError(t, err)
	assert.Equal(t, want, ref)
}
