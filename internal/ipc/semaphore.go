package ipc

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Semaphore is a bounded counting semaphore with a waiting list of blocked
// process ids. Wait and Signal never block in this layer: a Wait that cannot
// acquire records the caller and returns ErrWouldBlock, and suspension is
// the scheduler collaborator's job.
//
// Wakeup order is LIFO among waiters: the most recently blocked process is
// woken first. This is an explicit policy choice, not POSIX fairness.
type Semaphore struct {
	ID    uint64
	Owner uint64

	max   int64
	value atomic.Int64

	mu      sync.Mutex
	waiters []uint64 // insertion order; Signal pops the tail
}

// NewSemaphore creates a semaphore with the given initial value and upper
// bound.
func NewSemaphore(id, owner uint64, initial, max int64) *Semaphore {
	s := &Semaphore{ID: id, Owner: owner, max: max}
	s.value.Store(initial)
	return s
}

// Wait attempts to acquire one unit for pid. The fast path is a
// retry-on-conflict compare-and-swap decrement. When the value is zero, pid
// is appended to the waiting list (once) and ErrWouldBlock is returned.
//
// There is a window between the zero observation and the append: a Signal
// landing inside it sees no waiters and increments the value, so the
// recorded pid stays parked until a further Signal arrives. Callers retry
// Wait after wakeup, which absorbs the window.
func (s *Semaphore) Wait(pid uint64) error {
	for {
		v := s.value.Load()
		if v > 0 {
			if s.value.CompareAndSwap(v, v-1) {
				return nil
			}
			continue
		}

		s.mu.Lock()
		if !s.waiting(pid) {
			s.waiters = append(s.waiters, pid)
		}
		s.mu.Unlock()
		return fmt.Errorf("semaphore %d exhausted: %w", s.ID, ErrWouldBlock)
	}
}

// Signal releases one unit. With waiters present it removes the most
// recently added pid and reports it for wakeup without touching the value:
// the unit transfers directly to the woken process. With no waiters the
// value is incremented, and ErrWouldBlock is returned if that would exceed
// the bound. Overflow is rejected, not clamped.
func (s *Semaphore) Signal() (pid uint64, woken bool, err error) {
	s.mu.Lock()
	if n := len(s.waiters); n > 0 {
		pid = s.waiters[n-1]
		s.waiters = s.waiters[:n-1]
		s.mu.Unlock()
		return pid, true, nil
	}
	s.mu.Unlock()

	for {
		v := s.value.Load()
		if v >= s.max {
			return 0, false, fmt.Errorf("semaphore %d at max %d: %w", s.ID, s.max, ErrWouldBlock)
		}
		if s.value.CompareAndSwap(v, v+1) {
			return 0, false, nil
		}
	}
}

// Value returns the current count.
func (s *Semaphore) Value() int64 {
	return s.value.Load()
}

// Max returns the upper bound.
func (s *Semaphore) Max() int64 {
	return s.max
}

// WaiterCount returns the number of blocked process ids.
func (s *Semaphore) WaiterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

func (s *Semaphore) waiting(pid uint64) bool {
	for _, w := range s.waiters {
		if w == pid {
			return true
		}
	}
	return false
}
