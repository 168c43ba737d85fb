package vmm

import (
	"memcore/kernel"
	"memcore/kernel/mm"
	"memcore/kernel/mm/allocator"
)

var (
	errStackGuardNotAdjacent = &kernel.Error{Module: "mm/vmm", Message: "guard page is not immediately below the stack pages"}
	errStackGuardSize        = &kernel.Error{Module: "mm/vmm", Message: "stack guard must be exactly one page"}
)

// Stack is one task's execution stack: a permanently unmapped guard page
// immediately below a writable mapped page range. A stack overflow walks
// into the guard page and faults instead of silently corrupting whatever
// lies below.
type Stack struct {
	// guard stays allocated for the stack's whole lifetime but is never
	// mapped.
	guard *allocator.AllocatedChunks[mm.Virtual]
	pages *MappedPages
}

// AllocStack reserves sizeInPages+1 contiguous virtual pages anywhere in
// the address space, keeps the lowest one as the unmapped guard and maps
// the rest writable, backed by frames from the supplied source. On failure
// every partially acquired resource is returned to its free list.
func AllocStack(sizeInPages uintptr, mapper Mapper, pages PageSource, frames FrameSource) (*Stack, *kernel.Error) {
	if sizeInPages == 0 {
		return nil, allocator.ErrInvalidRequest
	}

	all, err := pages.AllocatePages(sizeInPages + 1)
	if err != nil {
		return nil, err
	}
	return buildStack(all, mapper, frames)
}

// AllocStackAt behaves like AllocStack but places the guard page exactly at
// bottom. It is used to put a specific CPU's boot stack at a well-known
// address.
func AllocStackAt(bottom mm.Address[mm.Virtual], sizeInPages uintptr, mapper Mapper, pages PageSource, frames FrameSource) (*Stack, *kernel.Error) {
	if sizeInPages == 0 {
		return nil, allocator.ErrInvalidRequest
	}

	all, err := pages.AllocatePagesAt(bottom, sizeInPages+1)
	if err != nil {
		return nil, err
	}
	return buildStack(all, mapper, frames)
}

func buildStack(all *allocator.AllocatedChunks[mm.Virtual], mapper Mapper, frames FrameSource) (*Stack, *kernel.Error) {
	guard, stackPages, err := all.Split(all.Start() + 1)
	if err != nil {
		all.Drop()
		return nil, err
	}

	mapped, err := mapper.MapAllocatedPages(stackPages, FlagPresent|FlagRW|FlagNoExecute, frames)
	if err != nil {
		stackPages.Drop()
		guard.Drop()
		return nil, err
	}

	return &Stack{guard: guard, pages: mapped}, nil
}

// StackFromParts assembles a Stack from an already allocated guard page and
// an already mapped page range. It fails unless the guard is exactly one
// page and ends immediately below the first mapped page; on failure the
// caller keeps ownership of both parts.
func StackFromParts(guard *allocator.AllocatedChunks[mm.Virtual], pages *MappedPages) (*Stack, *kernel.Error) {
	if guard.SizeInChunks() != 1 {
		return nil, errStackGuardSize
	}
	if guard.End()+1 != pages.Start() {
		return nil, errStackGuardNotAdjacent
	}

	return &Stack{guard: guard, pages: pages}, nil
}

// Guard returns the chunk range of the unmapped guard page.
func (s *Stack) Guard() mm.ChunkRange[mm.Virtual] {
	return s.guard.Range()
}

// Bottom returns the lowest usable stack address.
func (s *Stack) Bottom() mm.Address[mm.Virtual] {
	return s.pages.StartAddress()
}

// TopUnusable returns the address one byte past the highest mapped stack
// byte. The stack pointer must never be set to this address; it is the
// exclusive upper bound.
func (s *Stack) TopUnusable() mm.Address[mm.Virtual] {
	return s.pages.StartAddress().Add(s.pages.SizeInBytes())
}

// TopUsable returns the highest address a stack pointer may be set to: one
// pointer size below TopUnusable.
func (s *Stack) TopUsable() mm.Address[mm.Virtual] {
	return s.TopUnusable().Sub(uintptr(1) << mm.PointerShift)
}

// SizeInBytes returns the usable stack size, excluding the guard page.
func (s *Stack) SizeInBytes() uintptr {
	return s.pages.SizeInBytes()
}

// Bytes returns the writable view of the stack memory, when the mapper
// exposes one.
func (s *Stack) Bytes() []byte {
	return s.pages.Bytes()
}

// Drop unmaps the stack pages and releases both the pages and the guard
// back to their free lists. It is idempotent.
func (s *Stack) Drop() {
	if s == nil {
		return
	}
	s.pages.Unmap()
	s.guard.Drop()
}
