package vmm

import (
	"memcore/kernel"
	"memcore/kernel/mm"
	"memcore/kernel/mm/allocator"
)

var (
	errArenaMapFailed = &kernel.Error{Module: "mm/vmm", Message: "unable to reserve backing memory for the frame arena"}

	// ErrFrameOutsideArena is returned when a mapping request names frames
	// that the arena does not back.
	ErrFrameOutsideArena = &kernel.Error{Module: "mm/vmm", Message: "frame range lies outside the arena"}

	// ErrMappingSizeMismatch is returned when the page and frame ranges of
	// a mapping request differ in length.
	ErrMappingSizeMismatch = &kernel.Error{Module: "mm/vmm", Message: "page and frame ranges differ in size"}

	errEmptyMapping = &kernel.Error{Module: "mm/vmm", Message: "cannot map an empty page range"}
)

// ArenaMapper is a Mapper whose frame pool is backed by one anonymous
// memory mapping. It performs no page-table manipulation: the arena stands
// in for physical memory so that mapped page ranges expose real writable
// bytes, which is what the kernel test suites and user-space consumers of
// this allocator need. The arena covers the frame range
// [baseFrame, baseFrame+frameCount).
type ArenaMapper struct {
	baseFrame mm.Chunk[mm.Physical]
	arena     []byte
}

// NewArenaMapper reserves a zeroed arena backing frameCount frames starting
// at baseFrame.
func NewArenaMapper(baseFrame mm.Chunk[mm.Physical], frameCount uintptr) (*ArenaMapper, *kernel.Error) {
	buf, err := mapArena(int(frameCount * mm.PageSize))
	if err != nil {
		return nil, errArenaMapFailed
	}

	return &ArenaMapper{baseFrame: baseFrame, arena: buf}, nil
}

// Close releases the arena's backing memory. The mapper must not be used
// afterwards.
func (am *ArenaMapper) Close() {
	if am.arena != nil {
		unmapArena(am.arena)
		am.arena = nil
	}
}

// MapAllocatedPages backs pages with frames allocated from the supplied
// source. On failure ownership of pages stays with the caller.
func (am *ArenaMapper) MapAllocatedPages(pages *allocator.AllocatedChunks[mm.Virtual], flags EntryFlag, frames FrameSource) (*MappedPages, *kernel.Error) {
	if pages.SizeInChunks() == 0 {
		return nil, errEmptyMapping
	}

	backing, err := frames.AllocateFrames(pages.SizeInChunks())
	if err != nil {
		return nil, err
	}

	mapped, err := am.MapAllocatedPagesTo(pages, backing, flags)
	if err != nil {
		backing.Drop()
		return nil, err
	}
	return mapped, nil
}

// MapAllocatedPagesTo establishes a mapping between pages and the given
// frame range. The frame range must lie inside the arena and match the page
// range in size. On failure ownership of both handles stays with the
// caller.
func (am *ArenaMapper) MapAllocatedPagesTo(pages *allocator.AllocatedChunks[mm.Virtual], frames *allocator.AllocatedChunks[mm.Physical], flags EntryFlag) (*MappedPages, *kernel.Error) {
	if pages.SizeInChunks() == 0 {
		return nil, errEmptyMapping
	}
	if pages.SizeInChunks() != frames.SizeInChunks() {
		return nil, ErrMappingSizeMismatch
	}
	if frames.Start() < am.baseFrame {
		return nil, ErrFrameOutsideArena
	}

	// bound the frame distance before multiplying so neither the offset
	// nor offset+size can wrap around
	diff := uintptr(frames.Start() - am.baseFrame)
	if diff > uintptr(len(am.arena))/mm.PageSize {
		return nil, ErrFrameOutsideArena
	}
	offset := diff * mm.PageSize
	size := frames.SizeInBytes()
	if size > uintptr(len(am.arena))-offset {
		return nil, ErrFrameOutsideArena
	}

	// a fresh mapping always starts out zeroed, even when the frames were
	// used before
	view := am.arena[offset : offset+size]
	clear(view)

	return &MappedPages{
		pages:  pages,
		frames: frames,
		flags:  flags,
		mem:    view,
		// the arena needs no teardown per mapping; dropping the handles
		// is all an unmap has to do
		unmapFn: nil,
	}, nil
}
