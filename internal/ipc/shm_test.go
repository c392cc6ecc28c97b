package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagesFor(t *testing.T) {
	assert.Equal(t, 1, PagesFor(1))
	assert.Equal(t, 1, PagesFor(PageSize))
	assert.Equal(t, 2, PagesFor(PageSize+1))
	assert.Equal(t, 3, PagesFor(3*PageSize))
}

func TestRegionRefCounting(t *testing.T) {
	r := NewSharedMemoryRegion(1, 100, PageSize, []PhysAddr{0x1000})
	assert.Equal(t, int64(1), r.RefCount())

	assert.Equal(t, int64(2), r.IncRef())
	assert.Equal(t, int64(3), r.IncRef())
	assert.Equal(t, int64(2), r.DecRef())
	assert.Equal(t, int64(1), r.DecRef())
}

func TestRegionRefCountReachesZero(t *testing.T) {
	r := NewSharedMemoryRegion(1, 100, 4096, []PhysAddr{0x1000})

	assert.Equal(t, int64(2), r.IncRef())
	assert.Equal(t, int64(1), r.DecRef())
	// Dropping the creation reference is the owner-release transition.
	assert.Equal(t, int64(0), r.DecRef())
}

func TestRegionContains(t *testing.T) {
	r := NewSharedMemoryRegion(1, 100, 8192, []PhysAddr{0x1000, 0x2000})

	assert.True(t, r.Contains(0, 8192))
	assert.True(t, r.Contains(8191, 1))
	assert.True(t, r.Contains(8192, 0))
	assert.False(t, r.Contains(8192, 1))
	assert.False(t, r.Contains(0, 8193))
}

func TestRegionContainsRejectsWrappedRange(t *testing.T) {
	r := NewSharedMemoryRegion(1, 100, 4096, []PhysAddr{0x1000})

	// offset+length wraps uint64; a naive sum comparison would admit these.
	assert.False(t, r.Contains(^uint64(0), 2))
	assert.False(t, r.Contains(2, ^uint64(0)))
	assert.False(t, r.Contains(^uint64(0), ^uint64(0)))
}

func TestRegionAttachmentTracking(t *testing.T) {
	r := NewSharedMemoryRegion(1, 100, 8192, []PhysAddr{0x1000, 0x2000})

	r.recordAttachment(10, 0x4000_0000)
	r.recordAttachment(11, 0x4000_0000)
	assert.Equal(t, 2, r.AttachmentCount())

	size, ok := r.takeAttachment(10, 0x4000_0000)
	require.True(t, ok)
	assert.Equal(t, uint64(8192), size)

	// Taken once; a second detach of the same mapping has nothing to take.
	_, ok = r.takeAttachment(10, 0x4000_0000)
	assert.False(t, ok)

	_, ok = r.takeAttachment(11, 0xdead_0000)
	assert.False(t, ok)
	assert.Equal(t, 1, r.AttachmentCount())
}

func TestRegionFrames(t *testing.T) {
	frames := []PhysAddr{0x3000, 0x1000, 0x2000}
	r := NewSharedMemoryRegion(1, 100, 3*PageSize, frames)

	assert.Equal(t, PhysAddr(0x3000), r.Base())
	assert.Equal(t, frames, r.Frames())
}
