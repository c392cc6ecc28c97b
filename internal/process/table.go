package process

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/helixos/kernel-ipc/internal/ipc"
)

// Table maps process ids to page table handles, implementing
// ipc.ProcessTable. Handles are allocated on registration; the zero handle
// is never issued.
type Table struct {
	mu     sync.RWMutex
	procs  map[uint64]ipc.PageTable
	nextPT atomic.Uint64
}

// NewTable creates an empty process table.
func NewTable() *Table {
	return &Table{procs: make(map[uint64]ipc.PageTable)}
}

// Register adds a process and returns its new page table handle.
func (t *Table) Register(pid uint64) (ipc.PageTable, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.procs[pid]; exists {
		return 0, fmt.Errorf("process %d already registered: %w", pid, ipc.ErrInvalidArgument)
	}
	pt := ipc.PageTable(t.nextPT.Add(1))
	t.procs[pid] = pt
	return pt, nil
}

// Unregister removes a process.
func (t *Table) Unregister(pid uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.procs[pid]; !exists {
		return fmt.Errorf("process %d: %w", pid, ipc.ErrNotFound)
	}
	delete(t.procs, pid)
	return nil
}

// PageTable resolves a pid to its page table handle. Unknown pids fault, per
// the attach/detach contract.
func (t *Table) PageTable(pid uint64) (ipc.PageTable, error) {
	t.mu.RLock()
	pt, ok := t.procs[pid]
	t.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("process %d not registered: %w", pid, ipc.ErrFault)
	}
	return pt, nil
}

// Count returns the number of registered processes.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.procs)
}
