package process

import (
	"sync"

	"github.com/eapache/queue"
)

// WakeScheduler implements ipc.Scheduler by queuing wake requests for the
// host scheduler loop to drain. Requests drain FIFO; which waiter gets woken
// is decided upstream by the semaphore's own policy.
type WakeScheduler struct {
	mu      sync.Mutex
	pending *queue.Queue
}

// NewWakeScheduler creates an empty wake queue.
func NewWakeScheduler() *WakeScheduler {
	return &WakeScheduler{pending: queue.New()}
}

// Wake records a wakeup request for pid.
func (s *WakeScheduler) Wake(pid uint64) {
	s.mu.Lock()
	s.pending.Add(pid)
	s.mu.Unlock()
}

// Next pops the oldest pending wakeup, reporting whether one existed.
func (s *WakeScheduler) Next() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Length() == 0 {
		return 0, false
	}
	return s.pending.Remove().(uint64), true
}

// Pending returns the number of queued wakeups.
func (s *WakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length()
}
