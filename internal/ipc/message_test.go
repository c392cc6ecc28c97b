package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageAssignsUniqueIDs(t *testing.T) {
	a := NewMessage(1, 2, 0, []byte("a"))
	b := NewMessage(1, 2, 0, []byte("b"))

	assert.NotZero(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Timestamp.IsZero())
}

func TestMessageSizeAccountsHeader(t *testing.T) {
	inline := NewMessage(1, 2, 0, make([]byte, 100))
	assert.Equal(t, uint64(headerSize+100), inline.Size())

	empty := NewMessage(1, 2, 0, nil)
	assert.Equal(t, uint64(headerSize), empty.Size())

	zc := NewZeroCopyMessage(1, 2, 0, ZeroCopyRef{Segment: 7, Offset: 64, Length: 512})
	assert.Equal(t, uint64(headerSize+512), zc.Size())
}

func TestMessagePayloadKind(t *testing.T) {
	inline := NewMessage(1, 2, 0, []byte("x"))
	assert.False(t, inline.IsZeroCopy())

	zc := NewZeroCopyMessage(1, 2, 0, ZeroCopyRef{Segment: 1, Length: 8})
	assert.True(t, zc.IsZeroCopy())
	assert.Nil(t, zc.Data)
}

func TestWithPriorityDoesNotMutate(t *testing.T) {
	base := NewMessage(1, 2, 0, nil)
	high := base.WithPriority(9)

	assert.Equal(t, uint8(0), base.Priority)
	assert.Equal(t, uint8(9), high.Priority)
	assert.Equal(t, base.ID, high.ID)
}
