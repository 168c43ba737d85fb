package allocator

import (
	"memcore/kernel"
	"memcore/kernel/hal/bootinfo"
	"memcore/kernel/kfmt"
	"memcore/kernel/mm"
)

var (
	// ErrInvalidRequest is returned for zero-length allocation requests.
	ErrInvalidRequest = &kernel.Error{Module: "mm/allocator", Message: "requested chunk count must be at least 1"}

	// ErrOutOfAddressSpace is returned when no free range in the store is
	// large enough to satisfy the request.
	ErrOutOfAddressSpace = &kernel.Error{Module: "mm/allocator", Message: "no free range large enough to satisfy allocation request"}

	// ErrRangeUnavailable is returned by exact-address allocations when the
	// requested range is already allocated or only partially free.
	ErrRangeUnavailable = &kernel.Error{Module: "mm/allocator", Message: "requested range is not entirely free"}
)

// Manager owns the free-list stores for every memory pool: one for virtual
// pages and, for physical frames, one for general memory and one for the
// boot-reported reserved regions so that MMIO and boot-reserved frames are
// never handed out to ordinary allocations.
//
// A Manager is constructed once at boot and passed to every call site; no
// package-level state exists, so tests can construct isolated instances.
// Each store is guarded by its own spinlock and no operation ever holds two
// store locks at once.
type Manager struct {
	pages          freeList[mm.Virtual]
	framesGeneral  freeList[mm.Physical]
	framesReserved freeList[mm.Physical]

	// reservedRegions records the boot-reported reserved frame ranges. The
	// set is fixed after construction and is consulted by the physical
	// drop path to route frames back to the correct store.
	reservedRegions     [arraySlots]mm.ChunkRange[mm.Physical]
	reservedRegionCount int
}

// NewManager constructs a memory manager from the bootloader-supplied
// physical memory map and the virtual address window that page allocations
// may be served from. Available regions seed the general frame store;
// everything else seeds the reserved frame store and the reserved-region
// set. Frame ranges are trimmed inward for available regions and expanded
// outward for reserved ones so a partially covered boundary frame is never
// treated as free.
func NewManager(memMap bootinfo.MemoryMap, virtualWindow mm.ChunkRange[mm.Virtual]) (*Manager, *kernel.Error) {
	m := &Manager{}

	if err := m.pages.insert(virtualWindow); err != nil {
		return nil, err
	}

	var seedErr *kernel.Error
	memMap.Visit(func(region *bootinfo.Region) bool {
		if region.Length == 0 {
			return true
		}

		if region.Type == bootinfo.RegionAvailable {
			rng, ok := frameRangeInside(region)
			if !ok {
				// smaller than a single frame once aligned
				return true
			}
			seedErr = m.framesGeneral.insert(rng)
			return seedErr == nil
		}

		rng := frameRangeCovering(region)
		if m.reservedRegionCount == len(m.reservedRegions) {
			seedErr = ErrArrayFull
			return false
		}
		m.reservedRegions[m.reservedRegionCount] = rng
		m.reservedRegionCount++

		seedErr = m.framesReserved.insert(rng)
		return seedErr == nil
	})
	if seedErr != nil {
		return nil, seedErr
	}

	memMap.Print()
	kfmt.Printf("[mm/allocator] tracking %d available and %d reserved frame ranges\n",
		m.framesGeneral.count(), m.reservedRegionCount)

	return m, nil
}

// AllocatePages reserves n virtual pages using a first-fit search over the
// free page ranges in ascending address order.
func (m *Manager) AllocatePages(n uintptr) (*AllocatedChunks[mm.Virtual], *kernel.Error) {
	return allocateAny(&m.pages, pageSink{m}, n)
}

// AllocatePagesAt reserves the n virtual pages starting at the page that
// contains addr. It fails with ErrRangeUnavailable unless the whole range
// is free.
func (m *Manager) AllocatePagesAt(addr mm.Address[mm.Virtual], n uintptr) (*AllocatedChunks[mm.Virtual], *kernel.Error) {
	return allocateAt(&m.pages, pageSink{m}, mm.ChunkFromAddress(addr), n)
}

// AllocateFrames reserves n physical frames from general memory using a
// first-fit search. Reserved regions are never used to satisfy an
// any-address request.
func (m *Manager) AllocateFrames(n uintptr) (*AllocatedChunks[mm.Physical], *kernel.Error) {
	return allocateAny(&m.framesGeneral, frameSink{m}, n)
}

// AllocateFramesAt reserves the n physical frames starting at the frame
// that contains addr. The general store is searched first; on a miss the
// request is retried against the reserved store, which is how MMIO regions
// get claimed at their fixed physical addresses.
func (m *Manager) AllocateFramesAt(addr mm.Address[mm.Physical], n uintptr) (*AllocatedChunks[mm.Physical], *kernel.Error) {
	frames, err := allocateAt(&m.framesGeneral, frameSink{m}, mm.ChunkFromAddress(addr), n)
	if err == ErrRangeUnavailable {
		return allocateAt(&m.framesReserved, frameSink{m}, mm.ChunkFromAddress(addr), n)
	}
	return frames, err
}

// ConvertToHeapAllocated migrates every store from its bootstrap array to a
// heap-backed balanced tree. It must be called exactly once the kernel heap
// becomes available; further calls are no-ops.
func (m *Manager) ConvertToHeapAllocated() {
	convertStore(&m.pages)
	convertStore(&m.framesGeneral)
	convertStore(&m.framesReserved)
}

// Coalesce merges adjacent free ranges in every store. The drop path never
// merges (freed ranges keep their allocation-time boundaries), so sustained
// alloc/free churn fragments the free lists; Coalesce is the explicit
// remediation and is never invoked implicitly.
func (m *Manager) Coalesce() {
	coalesceStore(&m.pages)
	coalesceStore(&m.framesGeneral)
	coalesceStore(&m.framesReserved)
}

// FreePageCount returns the total number of free virtual pages.
func (m *Manager) FreePageCount() uintptr {
	return countStore(&m.pages)
}

// FreeFrameCount returns the total number of free general-memory frames.
func (m *Manager) FreeFrameCount() uintptr {
	return countStore(&m.framesGeneral)
}

// allocateAny implements the any-address first-fit allocation over a single
// store: the first entry with enough chunks is removed, the leading n
// chunks become the allocation and any remainder is reinserted.
func allocateAny[K mm.Kind](fl *freeList[K], sink releaseSink[K], n uintptr) (*AllocatedChunks[K], *kernel.Error) {
	if n == 0 {
		return nil, ErrInvalidRequest
	}

	fl.lock.Acquire()
	defer fl.lock.Release()

	var (
		entry mm.ChunkRange[K]
		found bool
	)
	fl.visit(func(rng mm.ChunkRange[K]) bool {
		if rng.SizeInChunks() >= n {
			entry, found = rng, true
			return false
		}
		return true
	})
	if !found {
		return nil, ErrOutOfAddressSpace
	}

	fl.remove(entry.Start())
	if entry.SizeInChunks() > n {
		// the remove above freed a slot, so this insert cannot fail
		fl.insert(mm.NewChunkRange(entry.Start()+mm.Chunk[K](n), entry.End()))
	}

	return &AllocatedChunks[K]{
		rng:  mm.NewChunkRange(entry.Start(), entry.Start()+mm.Chunk[K](n-1)),
		sink: sink,
	}, nil
}

// allocateAt implements the exact-address allocation over a single store:
// the entry that fully contains the requested range is removed, split into
// up to three pieces and the unused head/tail pieces are reinserted.
func allocateAt[K mm.Kind](fl *freeList[K], sink releaseSink[K], start mm.Chunk[K], n uintptr) (*AllocatedChunks[K], *kernel.Error) {
	if n == 0 {
		return nil, ErrInvalidRequest
	}
	want := mm.NewChunkRange(start, start+mm.Chunk[K](n-1))

	fl.lock.Acquire()
	defer fl.lock.Release()

	var (
		entry mm.ChunkRange[K]
		found bool
	)
	fl.visit(func(rng mm.ChunkRange[K]) bool {
		if rng.ContainsRange(want) {
			entry, found = rng, true
			return false
		}
		// entries are visited in ascending order; once past the wanted
		// start no later entry can contain it
		return rng.Start() <= want.Start()
	})
	if !found {
		return nil, ErrRangeUnavailable
	}

	fl.remove(entry.Start())

	if entry.Start() < want.Start() {
		fl.insert(mm.NewChunkRange(entry.Start(), want.Start()-1))
	}
	if want.End() < entry.End() {
		if err := fl.insert(mm.NewChunkRange(want.End()+1, entry.End())); err != nil {
			// not enough slots for both remainder pieces; restore the
			// original entry and fail the request
			fl.remove(entry.Start())
			fl.insert(entry)
			return nil, err
		}
	}

	return &AllocatedChunks[K]{rng: want, sink: sink}, nil
}

func convertStore[K mm.Kind](fl *freeList[K]) {
	fl.lock.Acquire()
	fl.convertToHeapAllocated()
	fl.lock.Release()
}

func coalesceStore[K mm.Kind](fl *freeList[K]) {
	fl.lock.Acquire()
	fl.coalesce()
	fl.lock.Release()
}

func countStore[K mm.Kind](fl *freeList[K]) uintptr {
	fl.lock.Acquire()
	defer fl.lock.Release()

	var total uintptr
	fl.visit(func(rng mm.ChunkRange[K]) bool {
		total += rng.SizeInChunks()
		return true
	})
	return total
}

// isReserved returns true if rng overlaps any boot-reported reserved
// region.
func (m *Manager) isReserved(rng mm.ChunkRange[mm.Physical]) bool {
	for i := 0; i < m.reservedRegionCount; i++ {
		if _, ok := m.reservedRegions[i].Overlap(rng); ok {
			return true
		}
	}
	return false
}

// pageSink routes dropped virtual ranges back to the page store.
type pageSink struct {
	m *Manager
}

func (s pageSink) release(rng mm.ChunkRange[mm.Virtual]) {
	releaseTo(&s.m.pages, rng)
}

// frameSink routes dropped physical ranges to the reserved store when they
// overlap the boot-reported reserved set and to the general store
// otherwise.
type frameSink struct {
	m *Manager
}

func (s frameSink) release(rng mm.ChunkRange[mm.Physical]) {
	fl := &s.m.framesGeneral
	if s.m.isReserved(rng) {
		fl = &s.m.framesReserved
	}
	releaseTo(fl, rng)
}

// releaseTo inserts a dropped range into fl. Insert failures must not
// panic on the drop path, so the range is leaked and an error is logged.
func releaseTo[K mm.Kind](fl *freeList[K], rng mm.ChunkRange[K]) {
	fl.lock.Acquire()
	err := fl.insert(rng)
	fl.lock.Release()

	if err != nil {
		var kind K
		kfmt.Printf("[mm/allocator] error: leaking dropped %s range [%d, %d]: %s\n",
			kind.PoolName(), rng.Start().Number(), rng.End().Number(), err.Message)
	}
}

// frameRangeInside returns the largest frame range that lies entirely
// inside the given region: the start rounds up and the end rounds down to a
// frame boundary. ok is false if the aligned region is smaller than one
// frame.
func frameRangeInside(region *bootinfo.Region) (mm.ChunkRange[mm.Physical], bool) {
	pageSizeMinus1 := uint64(mm.PageSize - 1)
	startFrame := (region.Start + pageSizeMinus1) &^ pageSizeMinus1 >> uint64(mm.PageShift)
	endFrame := (region.Start+region.Length)&^pageSizeMinus1>>uint64(mm.PageShift) - 1

	if endFrame+1 <= startFrame {
		return mm.EmptyChunkRange[mm.Physical](), false
	}
	return mm.NewChunkRange(mm.Chunk[mm.Physical](startFrame), mm.Chunk[mm.Physical](endFrame)), true
}

// frameRangeCovering returns the smallest frame range that fully covers the
// given region: the start rounds down and the end rounds up.
func frameRangeCovering(region *bootinfo.Region) mm.ChunkRange[mm.Physical] {
	pageSizeMinus1 := uint64(mm.PageSize - 1)
	startFrame := region.Start &^ pageSizeMinus1 >> uint64(mm.PageShift)
	endFrame := (region.Start+region.Length+pageSizeMinus1)&^pageSizeMinus1>>uint64(mm.PageShift) - 1

	return mm.NewChunkRange(mm.Chunk[mm.Physical](startFrame), mm.Chunk[mm.Physical](endFrame))
}
