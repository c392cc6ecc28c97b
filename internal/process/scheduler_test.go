package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeSchedulerDrainsFIFO(t *testing.T) {
	s := NewWakeScheduler()

	s.Wake(10)
	s.Wake(11)
	s.Wake(12)
	assert.Equal(t, 3, s.Pending())

	for _, want := range []uint64{10, 11, 12} {
		pid, ok := s.Next()
		require.True(t, ok)
		assert.Equal(t, want, pid)
	}

	_, ok := s.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Pending())
}

func TestWakeSchedulerEmpty(t *testing.T) {
	s := NewWakeScheduler()
	_, ok := s.Next()
	assert.False(t, ok)
}
