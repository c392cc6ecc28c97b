package memory

import (
	"fmt"
	"sync"

	"github.com/helixos/kernel-ipc/internal/ipc"
)

// User-range bounds for FindFreeRange. Mappings below the base are reserved
// for the process image.
const (
	userBase = uint64(0x4000_0000)
	userTop  = uint64(0x8000_0000)
)

type mapping struct {
	frame ipc.PhysAddr
	perm  ipc.Perm
}

type tableState struct {
	pages map[uint64]mapping // page-aligned va -> frame
}

// AddressSpace implements the virtual-memory collaborator: per-page-table
// bookkeeping of va -> frame mappings with first-fit free range search. All
// mutation is serialized under one lock, matching the kernel contract that
// page table updates go through a single walker.
type AddressSpace struct {
	mu     sync.Mutex
	tables map[ipc.PageTable]*tableState
}

// NewAddressSpace creates an empty address space bookkeeper.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{tables: make(map[ipc.PageTable]*tableState)}
}

// MapPages maps [va, va+size) to the physical range starting at pa. Mapping
// over an existing page is a fault.
func (s *AddressSpace) MapPages(pt ipc.PageTable, va uint64, pa ipc.PhysAddr, size uint64, perm ipc.Perm) error {
	if pt == 0 || va%ipc.PageSize != 0 || size == 0 {
		return fmt.Errorf("map %#x+%d in table %d: %w", va, size, pt, ipc.ErrFault)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.table(pt)
	for off := uint64(0); off < size; off += ipc.PageSize {
		if _, exists := state.pages[va+off]; exists {
			return fmt.Errorf("page %#x already mapped: %w", va+off, ipc.ErrFault)
		}
	}
	for off := uint64(0); off < size; off += ipc.PageSize {
		state.pages[va+off] = mapping{frame: pa + ipc.PhysAddr(off), perm: perm}
	}
	return nil
}

// UnmapPage removes the single page mapping at va. Unmapping an unmapped
// page is a fault.
func (s *AddressSpace) UnmapPage(pt ipc.PageTable, va uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tables[pt]
	if !ok {
		return fmt.Errorf("unknown page table %d: %w", pt, ipc.ErrFault)
	}
	if _, exists := state.pages[va]; !exists {
		return fmt.Errorf("page %#x not mapped: %w", va, ipc.ErrFault)
	}
	delete(state.pages, va)
	return nil
}

// FindFreeRange returns the lowest user-range virtual address with size
// contiguous unmapped bytes, first-fit.
func (s *AddressSpace) FindFreeRange(pt ipc.PageTable, size uint64) (uint64, bool) {
	if pt == 0 || size == 0 {
		return 0, false
	}
	pages := uint64(ipc.PagesFor(size))

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.table(pt)
	for candidate := userBase; candidate+pages*ipc.PageSize <= userTop; {
		conflict := uint64(0)
		found := true
		for i := uint64(0); i < pages; i++ {
			if _, exists := state.pages[candidate+i*ipc.PageSize]; exists {
				conflict = candidate + i*ipc.PageSize
				found = false
				break
			}
		}
		if found {
			return candidate, true
		}
		candidate = conflict + ipc.PageSize
	}
	return 0, false
}

// Translate resolves a mapped virtual page to its frame, for tests and
// diagnostics.
func (s *AddressSpace) Translate(pt ipc.PageTable, va uint64) (ipc.PhysAddr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tables[pt]
	if !ok {
		return 0, false
	}
	m, ok := state.pages[va-va%ipc.PageSize]
	if !ok {
		return 0, false
	}
	return m.frame + ipc.PhysAddr(va%ipc.PageSize), true
}

// MappedPages returns the number of live mappings in a table.
func (s *AddressSpace) MappedPages(pt ipc.PageTable) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tables[pt]
	if !ok {
		return 0
	}
	return len(state.pages)
}

// table returns the state for pt, creating it on first use. Callers hold mu.
func (s *AddressSpace) table(pt ipc.PageTable) *tableState {
	state, ok := s.tables[pt]
	if !ok {
		state = &tableState{pages: make(map[uint64]mapping)}
		s.tables[pt] = state
	}
	return state
}
