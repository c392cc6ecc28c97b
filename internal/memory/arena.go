package memory

import (
	"fmt"
	"sync"

	"github.com/helixos/kernel-ipc/internal/ipc"
)

// Arena hands out page-sized grants from one backing buffer. Grant addresses
// are byte offsets into the buffer, starting at PageSize so that address 0
// is never a valid grant. Freed pages are reused before the bump pointer
// advances.
//
// On linux the buffer is an anonymous mmap; elsewhere it is heap memory.
type Arena struct {
	mu      sync.Mutex
	data    []byte
	pages   int
	nextPg  int
	free    []ipc.PhysAddr
	granted []bool // per page; rejects double-free and never-granted frees
	release func() error
}

// NewArena creates an arena holding the given number of pages.
func NewArena(pages int) (*Arena, error) {
	if pages <= 0 {
		return nil, fmt.Errorf("arena of %d pages: %w", pages, ipc.ErrInvalidArgument)
	}
	data, release, err := arenaBuffer(pages * ipc.PageSize)
	if err != nil {
		return nil, fmt.Errorf("arena backing: %w", ipc.ErrOutOfMemory)
	}
	return &Arena{data: data, pages: pages, granted: make([]bool, pages), release: release}, nil
}

// AllocatePage grants one physical page.
func (a *Arena) AllocatePage() (ipc.PhysAddr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var pa ipc.PhysAddr
	if n := len(a.free); n > 0 {
		pa = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		if a.nextPg >= a.pages {
			return 0, fmt.Errorf("arena exhausted at %d pages: %w", a.pages, ipc.ErrOutOfMemory)
		}
		a.nextPg++
		pa = ipc.PhysAddr(a.nextPg * ipc.PageSize)
	}
	a.granted[a.index(pa)] = true
	return pa, nil
}

// FreePage returns a granted page to the free list. Double frees and
// addresses never granted are rejected, so one frame can never end up
// backing two regions.
func (a *Arena) FreePage(pa ipc.PhysAddr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check(pa); err != nil {
		return err
	}
	idx := a.index(pa)
	if !a.granted[idx] {
		return fmt.Errorf("address %#x not granted: %w", uint64(pa), ipc.ErrInvalidArgument)
	}
	a.granted[idx] = false
	a.free = append(a.free, pa)
	return nil
}

// FrameBytes exposes the PageSize byte window backing a granted frame,
// implementing ipc.FrameMemory.
func (a *Arena) FrameBytes(pa ipc.PhysAddr) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check(pa); err != nil {
		return nil, err
	}
	if !a.granted[a.index(pa)] {
		return nil, fmt.Errorf("address %#x not granted: %w", uint64(pa), ipc.ErrInvalidArgument)
	}
	// Grant addresses start one page in; the buffer is indexed from zero.
	off := int(pa) - ipc.PageSize
	return a.data[off : off+ipc.PageSize], nil
}

// Pages returns the arena capacity in pages.
func (a *Arena) Pages() int {
	return a.pages
}

// FreeCount returns the number of pages currently available.
func (a *Arena) FreeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pages - a.nextPg + len(a.free)
}

// Close releases the backing buffer. The arena must not be used afterwards.
func (a *Arena) Close() error {
	if a.release != nil {
		return a.release()
	}
	return nil
}

func (a *Arena) check(pa ipc.PhysAddr) error {
	if pa == 0 || pa%ipc.PageSize != 0 || int(pa) > a.pages*ipc.PageSize {
		return fmt.Errorf("address %#x outside arena: %w", uint64(pa), ipc.ErrInvalidArgument)
	}
	return nil
}

// index maps a grant address to its page slot. Callers validate pa first.
func (a *Arena) index(pa ipc.PhysAddr) int {
	return int(pa)/ipc.PageSize - 1
}
