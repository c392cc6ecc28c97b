package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixos/kernel-ipc/internal/ipc"
)

func TestArenaAllocateAndFree(t *testing.T) {
	a, err := NewArena(4)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 4, a.Pages())
	assert.Equal(t, 4, a.FreeCount())

	pa, err := a.AllocatePage()
	require.NoError(t, err)
	assert.NotZero(t, pa)
	assert.Zero(t, pa%ipc.PageSize)
	assert.Equal(t, 3, a.FreeCount())

	require.NoError(t, a.FreePage(pa))
	assert.Equal(t, 4, a.FreeCount())
}

func TestArenaReusesFreedPages(t *testing.T) {
	a, err := NewArena(2)
	require.NoError(t, err)
	defer a.Close()

	pa, err := a.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, a.FreePage(pa))

	again, err := a.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, pa, again)
}

func TestArenaExhaustion(t *testing.T) {
	a, err := NewArena(2)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AllocatePage()
	require.NoError(t, err)
	_, err = a.AllocatePage()
	require.NoError(t, err)

	_, err = a.AllocatePage()
	assert.ErrorIs(t, err, ipc.ErrOutOfMemory)
}

func TestArenaFrameBytesRoundTrip(t *testing.T) {
	a, err := NewArena(2)
	require.NoError(t, err)
	defer a.Close()

	pa, err := a.AllocatePage()
	require.NoError(t, err)

	b, err := a.FrameBytes(pa)
	require.NoError(t, err)
	require.Len(t, b, ipc.PageSize)

	copy(b, "written through one view")

	b2, err := a.FrameBytes(pa)
	require.NoError(t, err)
	assert.Equal(t, []byte("written through one view"), b2[:24])
}

func TestArenaRejectsBadAddresses(t *testing.T) {
	a, err := NewArena(2)
	require.NoError(t, err)
	defer a.Close()

	assert.ErrorIs(t, a.FreePage(0), ipc.ErrInvalidArgument)
	assert.ErrorIs(t, a.FreePage(ipc.PageSize+1), ipc.ErrInvalidArgument)
	assert.ErrorIs(t, a.FreePage(ipc.PhysAddr(3*ipc.PageSize)), ipc.ErrInvalidArgument)

	_, err = a.FrameBytes(0)
	assert.ErrorIs(t, err, ipc.ErrInvalidArgument)
}

func TestArenaRejectsDoubleFree(t *testing.T) {
	a, err := NewArena(2)
	require.NoError(t, err)
	defer a.Close()

	pa, err := a.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, a.FreePage(pa))

	assert.ErrorIs(t, a.FreePage(pa), ipc.ErrInvalidArgument)
	assert.Equal(t, 2, a.FreeCount())
}

func TestArenaRejectsFreeOfUngrantedPage(t *testing.T) {
	a, err := NewArena(4)
	require.NoError(t, err)
	defer a.Close()

	// Page-aligned, within capacity, but never handed out.
	err = a.FreePage(ipc.PhysAddr(2 * ipc.PageSize))
	assert.ErrorIs(t, err, ipc.ErrInvalidArgument)
}

func TestArenaFrameBytesAfterFree(t *testing.T) {
	a, err := NewArena(2)
	require.NoError(t, err)
	defer a.Close()

	pa, err := a.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, a.FreePage(pa))

	_, err = a.FrameBytes(pa)
	assert.ErrorIs(t, err, ipc.ErrInvalidArgument)
}

func TestArenaRejectsZeroPages(t *testing.T) {
	_, err := NewArena(0)
	assert.ErrorIs(t, err, ipc.ErrInvalidArgument)
}
