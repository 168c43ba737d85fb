package vmm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memcore/kernel/hal/bootinfo"
	"memcore/kernel/mm"
	"memcore/kernel/mm/allocator"
	"memcore/kernel/mm/vmm"
)

const (
	arenaBaseFrame  = 0x100
	arenaFrameCount = 64
)

// newTestEnv builds a manager whose general frame pool coincides with a
// fresh arena, plus one extra frame range the arena does not back.
func newTestEnv(t *testing.T) (*allocator.Manager, *vmm.ArenaMapper) {
	t.Helper()

	arenaStart := uint64(arenaBaseFrame) * 4096
	memMap := bootinfo.MemoryMap{
		{Start: arenaStart, Length: arenaFrameCount * 4096, Type: bootinfo.RegionAvailable},
		// frames beyond the arena, used to exercise the bounds checks
		{Start: arenaStart + arenaFrameCount*4096, Length: 8 * 4096, Type: bootinfo.RegionAvailable},
	}
	window := mm.NewChunkRange[mm.Virtual](512, 1023)

	m, err := allocator.NewManager(memMap, window)
	require.Nil(t, err)

	mapper, err := vmm.NewArenaMapper(arenaBaseFrame, arenaFrameCount)
	require.Nil(t, err)
	t.Cleanup(mapper.Close)

	return m, mapper
}

func TestMapAllocatedPagesBacksPagesWithFrames(t *testing.T) {
	m, mapper := newTestEnv(t)

	freePages, freeFrames := m.FreePageCount(), m.FreeFrameCount()

	pages, err := m.AllocatePages(4)
	require.Nil(t, err)

	mapped, err := mapper.MapAllocatedPages(pages, vmm.FlagPresent|vmm.FlagRW, m)
	require.Nil(t, err)

	assert.Equal(t, uintptr(4), mapped.SizeInChunks())
	assert.Equal(t, uintptr(4*4096), mapped.SizeInBytes())
	assert.Equal(t, vmm.FlagPresent|vmm.FlagRW, mapped.Flags())
	assert.Equal(t, pages.StartAddress(), mapped.StartAddress())

	buf := mapped.Bytes()
	require.Len(t, buf, 4*4096)
	buf[0], buf[len(buf)-1] = 0xaa, 0x55
	assert.Equal(t, byte(0xaa), buf[0])
	assert.Equal(t, byte(0x55), buf[len(buf)-1])

	require.Nil(t, mapped.Unmap())
	assert.Nil(t, mapped.Bytes())

	// unmapping returned both ranges to their stores
	assert.Equal(t, freePages, m.FreePageCount())
	assert.Equal(t, freeFrames, m.FreeFrameCount())

	// a second unmap is a no-op
	require.Nil(t, mapped.Unmap())
	assert.Equal(t, freePages, m.FreePageCount())
}

func TestMapAllocatedPagesToValidatesTheRequest(t *testing.T) {
	m, mapper := newTestEnv(t)

	pages, err := m.AllocatePages(3)
	require.Nil(t, err)

	// size mismatch
	frames, err := m.AllocateFrames(2)
	require.Nil(t, err)
	_, mapErr := mapper.MapAllocatedPagesTo(pages, frames, vmm.FlagPresent)
	assert.Equal(t, vmm.ErrMappingSizeMismatch, mapErr)

	// frames outside the arena
	outsideAddr := mm.NewCanonicalAddress[mm.Physical]((arenaBaseFrame + arenaFrameCount) * 4096)
	outside, err := m.AllocateFramesAt(outsideAddr, 3)
	require.Nil(t, err)
	_, mapErr = mapper.MapAllocatedPagesTo(pages, outside, vmm.FlagPresent)
	assert.Equal(t, vmm.ErrFrameOutsideArena, mapErr)

	// on failure the caller keeps ownership of every handle
	freeFrames := m.FreeFrameCount()
	frames.Drop()
	outside.Drop()
	pages.Drop()
	assert.Equal(t, freeFrames+5, m.FreeFrameCount())
}

func TestMapAllocatedPagesToRejectsFramesFarBeyondArena(t *testing.T) {
	// frames near the top of the physical space put the frame distance far
	// past the arena capacity; the bounds check must reject them before
	// any offset arithmetic can wrap around
	memMap := bootinfo.MemoryMap{
		{Start: 0xffffffffffff0000, Length: 0x8000, Type: bootinfo.RegionAvailable},
	}
	m, err := allocator.NewManager(memMap, mm.NewChunkRange[mm.Virtual](512, 1023))
	require.Nil(t, err)

	mapper, err := vmm.NewArenaMapper(0, 4)
	require.Nil(t, err)
	defer mapper.Close()

	pages, err := m.AllocatePages(2)
	require.Nil(t, err)
	frames, err := m.AllocateFrames(2)
	require.Nil(t, err)

	_, mapErr := mapper.MapAllocatedPagesTo(pages, frames, vmm.FlagPresent|vmm.FlagRW)
	assert.Equal(t, vmm.ErrFrameOutsideArena, mapErr)

	pages.Drop()
	frames.Drop()
}

func TestMapAllocatedPagesToExposesZeroedMemory(t *testing.T) {
	m, mapper := newTestEnv(t)

	// map a fixed frame range, dirty it and unmap
	frameAddr := mm.NewCanonicalAddress[mm.Physical](arenaBaseFrame * 4096)
	pages, err := m.AllocatePages(2)
	require.Nil(t, err)
	frames, err := m.AllocateFramesAt(frameAddr, 2)
	require.Nil(t, err)

	mapped, err := mapper.MapAllocatedPagesTo(pages, frames, vmm.FlagPresent|vmm.FlagRW)
	require.Nil(t, err)
	for i := range mapped.Bytes() {
		mapped.Bytes()[i] = 0xff
	}
	require.Nil(t, mapped.Unmap())

	// remapping the same frames yields zeroed memory again
	pages, err = m.AllocatePages(2)
	require.Nil(t, err)
	frames, err = m.AllocateFramesAt(frameAddr, 2)
	require.Nil(t, err)

	mapped, err = mapper.MapAllocatedPagesTo(pages, frames, vmm.FlagPresent|vmm.FlagRW)
	require.Nil(t, err)
	defer mapped.Unmap()

	for _, b := range mapped.Bytes() {
		if b != 0 {
			t.Fatal("expected a fresh mapping to expose zeroed memory")
		}
	}
}

func TestMapAllocatedPagesPropagatesFrameExhaustion(t *testing.T) {
	m, mapper := newTestEnv(t)

	pages, err := m.AllocatePages(uintptr(arenaFrameCount) + 16)
	require.Nil(t, err)

	_, mapErr := mapper.MapAllocatedPages(pages, vmm.FlagPresent|vmm.FlagRW, m)
	assert.Equal(t, allocator.ErrOutOfAddressSpace, mapErr)

	// the page range is still owned by the caller
	freePages := m.FreePageCount()
	pages.Drop()
	assert.Equal(t, freePages+uintptr(arenaFrameCount)+16, m.FreePageCount())
}
