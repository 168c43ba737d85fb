// Package vmm contains the virtual memory collaborators of the chunk
// allocator: the Mapper boundary through which allocated page ranges get
// backed by physical frames, and the guard-paged stack builder.
package vmm

import (
	"memcore/kernel"
	"memcore/kernel/mm"
	"memcore/kernel/mm/allocator"
)

// EntryFlag describes the attribute bits requested for a mapped page range.
type EntryFlag uintptr

const (
	// FlagPresent marks the mapping as established.
	FlagPresent EntryFlag = 1 << iota

	// FlagRW allows writes to the mapped range.
	FlagRW

	// FlagNoExecute forbids instruction fetches from the mapped range.
	FlagNoExecute
)

// PageSource hands out owned virtual page ranges. *allocator.Manager
// satisfies this interface.
type PageSource interface {
	AllocatePages(n uintptr) (*allocator.AllocatedChunks[mm.Virtual], *kernel.Error)
	AllocatePagesAt(addr mm.Address[mm.Virtual], n uintptr) (*allocator.AllocatedChunks[mm.Virtual], *kernel.Error)
}

// FrameSource hands out owned physical frame ranges for backing page
// mappings. *allocator.Manager satisfies this interface.
type FrameSource interface {
	AllocateFrames(n uintptr) (*allocator.AllocatedChunks[mm.Physical], *kernel.Error)
}

// Mapper establishes mappings between owned virtual page ranges and the
// physical frames that back them.
//
// On success the mapper takes ownership of the supplied handles and wraps
// them in a MappedPages. On failure ownership of every supplied handle
// stays with the caller.
type Mapper interface {
	// MapAllocatedPages backs pages with freshly allocated frames from the
	// supplied source and establishes the mapping with the given flags.
	MapAllocatedPages(pages *allocator.AllocatedChunks[mm.Virtual], flags EntryFlag, frames FrameSource) (*MappedPages, *kernel.Error)

	// MapAllocatedPagesTo establishes a mapping between pages and the
	// specific frame range, e.g. for MMIO regions claimed at a fixed
	// physical address.
	MapAllocatedPagesTo(pages *allocator.AllocatedChunks[mm.Virtual], frames *allocator.AllocatedChunks[mm.Physical], flags EntryFlag) (*MappedPages, *kernel.Error)
}

// MappedPages owns a mapped virtual page range together with the physical
// frames backing it. Unmapping returns both ranges to their free-list
// stores.
type MappedPages struct {
	pages  *allocator.AllocatedChunks[mm.Virtual]
	frames *allocator.AllocatedChunks[mm.Physical]
	flags  EntryFlag

	// mem is the writable view of the backing memory, when the mapper
	// provides one.
	mem []byte

	unmapFn  func(*MappedPages) *kernel.Error
	unmapped bool
}

// Start returns the first mapped page.
func (mp *MappedPages) Start() mm.Chunk[mm.Virtual] {
	return mp.pages.Start()
}

// End returns the last mapped page.
func (mp *MappedPages) End() mm.Chunk[mm.Virtual] {
	return mp.pages.End()
}

// StartAddress returns the virtual address of the first mapped byte.
func (mp *MappedPages) StartAddress() mm.Address[mm.Virtual] {
	return mp.pages.StartAddress()
}

// SizeInChunks returns the number of mapped pages.
func (mp *MappedPages) SizeInChunks() uintptr {
	return mp.pages.SizeInChunks()
}

// SizeInBytes returns the number of mapped bytes.
func (mp *MappedPages) SizeInBytes() uintptr {
	return mp.pages.SizeInBytes()
}

// Flags returns the flags the mapping was established with.
func (mp *MappedPages) Flags() EntryFlag {
	return mp.flags
}

// Bytes returns the view of the backing memory, or nil if the mapper does
// not expose one or the mapping has been unmapped.
func (mp *MappedPages) Bytes() []byte {
	if mp.unmapped {
		return nil
	}
	return mp.mem
}

// Unmap removes the mapping and returns both the page range and the frame
// range to their free-list stores. It is idempotent and safe to call on a
// nil receiver. Errors reported by the mapper are logged by the caller via
// the returned value; the owned ranges are released regardless.
func (mp *MappedPages) Unmap() *kernel.Error {
	if mp == nil || mp.unmapped {
		return nil
	}
	mp.unmapped = true

	var err *kernel.Error
	if mp.unmapFn != nil {
		err = mp.unmapFn(mp)
	}
	mp.mem = nil
	mp.pages.Drop()
	mp.frames.Drop()

	return err
}
