package ipc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreWaitDecrements(t *testing.T) {
	s := NewSemaphore(1, 100, 2, 2)

	require.NoError(t, s.Wait(10))
	require.NoError(t, s.Wait(11))
	assert.Equal(t, int64(0), s.Value())
	assert.Equal(t, 0, s.WaiterCount())
}

func TestSemaphoreExhaustedRecordsWaiter(t *testing.T) {
	s := NewSemaphore(1, 100, 0, 4)

	err := s.Wait(10)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 1, s.WaiterCount())

	// A repeated wait by the same pid is not recorded twice.
	assert.ErrorIs(t, s.Wait(10), ErrWouldBlock)
	assert.Equal(t, 1, s.WaiterCount())
}

func TestSemaphoreSignalWakesLIFO(t *testing.T) {
	s := NewSemaphore(1, 100, 0, 4)

	require.ErrorIs(t, s.Wait(10), ErrWouldBlock)
	require.ErrorIs(t, s.Wait(11), ErrWouldBlock)
	require.ErrorIs(t, s.Wait(12), ErrWouldBlock)

	for _, want := range []uint64{12, 11, 10} {
		pid, woken, err := s.Signal()
		require.NoError(t, err)
		require.True(t, woken)
		assert.Equal(t, want, pid)
	}
	// The unit transfers to the woken process; the value never moved.
	assert.Equal(t, int64(0), s.Value())
	assert.Equal(t, 0, s.WaiterCount())
}

func TestSemaphoreSignalIncrementsWithoutWaiters(t *testing.T) {
	s := NewSemaphore(1, 100, 0, 2)

	_, woken, err := s.Signal()
	require.NoError(t, err)
	assert.False(t, woken)
	assert.Equal(t, int64(1), s.Value())
}

func TestSemaphoreSignalRejectsOverflow(t *testing.T) {
	s := NewSemaphore(1, 100, 2, 2)

	_, _, err := s.Signal()
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, int64(2), s.Value())
}

func TestSemaphoreConcurrentWaiters(t *testing.T) {
	const units = 64
	s := NewSemaphore(1, 100, units, units)

	var wg sync.WaitGroup
	acquired := make(chan struct{}, units*2)
	for i := 0; i < units*2; i++ {
		wg.Add(1)
		go func(pid uint64) {
			defer wg.Done()
			if err := s.Wait(pid); err == nil {
				acquired <- struct{}{}
			}
		}(uint64(i + 1))
	}
	wg.Wait()
	close(acquired)

	assert.Equal(t, units, len(acquired))
	assert.Equal(t, int64(0), s.Value())
	assert.Equal(t, units, s.WaiterCount())
}
