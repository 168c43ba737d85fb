package allocator

import (
	"memcore/kernel"
	"memcore/kernel/mm"
)

var (
	// ErrNotAdjacent is returned by Merge when the two handles do not own
	// chunk-adjacent ranges.
	ErrNotAdjacent = &kernel.Error{Module: "mm/allocator", Message: "cannot merge non-adjacent chunk ranges"}

	// ErrInvalidSplit is returned by Split when the split chunk does not
	// fall within the owned range.
	ErrInvalidSplit = &kernel.Error{Module: "mm/allocator", Message: "split chunk falls outside the owned range"}

	// errConsumedHandle flags use of a handle whose ownership was already
	// transferred by Merge, Split or Drop.
	errConsumedHandle = &kernel.Error{Module: "mm/allocator", Message: "allocated chunks handle was already consumed"}
)

// releaseSink routes a dropped chunk range back to the free-list store that
// owns it. The sink is chosen when the handle is created so a handle can be
// dropped from any context without consulting the allocator again.
type releaseSink[K mm.Kind] interface {
	release(rng mm.ChunkRange[K])
}

// AllocatedChunks represents exclusive ownership of a range of chunks that
// has been removed from its pool's free list. At most one live handle covers
// any given chunk: handles are created only by the allocation facade, and
// Merge and Split transfer ownership instead of duplicating it.
//
// Go has no destructors, so reclamation is explicit: Drop returns the owned
// range to its free list. A handle whose ownership was transferred is marked
// consumed and its Drop becomes a no-op, so a range can never be returned
// twice.
type AllocatedChunks[K mm.Kind] struct {
	rng      mm.ChunkRange[K]
	sink     releaseSink[K]
	consumed bool
}

// Range returns a copy of the owned chunk range.
func (a *AllocatedChunks[K]) Range() mm.ChunkRange[K] {
	return a.rng
}

// Start returns the first owned chunk.
func (a *AllocatedChunks[K]) Start() mm.Chunk[K] {
	return a.rng.Start()
}

// End returns the last owned chunk.
func (a *AllocatedChunks[K]) End() mm.Chunk[K] {
	return a.rng.End()
}

// StartAddress returns the address of the first owned byte.
func (a *AllocatedChunks[K]) StartAddress() mm.Address[K] {
	return a.rng.StartAddress()
}

// SizeInChunks returns the number of owned chunks.
func (a *AllocatedChunks[K]) SizeInChunks() uintptr {
	return a.rng.SizeInChunks()
}

// SizeInBytes returns the number of owned bytes.
func (a *AllocatedChunks[K]) SizeInBytes() uintptr {
	return a.rng.SizeInBytes()
}

// Merge grows this handle to also cover the chunks owned by other. The two
// ranges must be chunk-adjacent in either order; merging with an empty
// handle absorbs it. On success the ownership of other transfers into this
// handle and other is consumed without releasing its chunks. On failure an
// error is returned and both handles are left untouched, so the caller
// still owns both.
func (a *AllocatedChunks[K]) Merge(other *AllocatedChunks[K]) *kernel.Error {
	if a.consumed || other.consumed {
		return errConsumedHandle
	}

	switch {
	case other.rng.SizeInChunks() == 0:
		// nothing to absorb
	case a.rng.SizeInChunks() == 0:
		a.rng = other.rng
	case a.rng.End()+1 == other.rng.Start():
		a.rng = mm.NewChunkRange(a.rng.Start(), other.rng.End())
	case other.rng.End()+1 == a.rng.Start():
		a.rng = mm.NewChunkRange(other.rng.Start(), a.rng.End())
	default:
		return ErrNotAdjacent
	}

	other.consumed = true
	return nil
}

// Split divides the owned range into [start, at-1] and [at, end] and
// returns the two pieces as new handles, consuming this one. Splitting
// exactly at the range start or at end+1 is legal and yields one empty
// handle (whose Drop does nothing). Any other chunk outside the range fails
// with ErrInvalidSplit, leaving this handle untouched.
func (a *AllocatedChunks[K]) Split(at mm.Chunk[K]) (*AllocatedChunks[K], *AllocatedChunks[K], *kernel.Error) {
	if a.consumed {
		return nil, nil, errConsumedHandle
	}
	if a.rng.SizeInChunks() == 0 {
		return nil, nil, ErrInvalidSplit
	}

	start, end := a.rng.Start(), a.rng.End()
	if at < start || at > end+1 {
		return nil, nil, ErrInvalidSplit
	}

	var before, after mm.ChunkRange[K]
	switch at {
	case start:
		before, after = mm.EmptyChunkRange[K](), a.rng
	case end + 1:
		before, after = a.rng, mm.EmptyChunkRange[K]()
	default:
		before = mm.NewChunkRange(start, at-1)
		after = mm.NewChunkRange(at, end)
	}

	a.consumed = true
	return &AllocatedChunks[K]{rng: before, sink: a.sink},
		&AllocatedChunks[K]{rng: after, sink: a.sink},
		nil
}

// Drop returns the owned range to the free-list store it was allocated
// from. Dropping a consumed or empty handle does nothing; Drop is safe to
// call on a nil handle so error paths can drop unconditionally.
func (a *AllocatedChunks[K]) Drop() {
	if a == nil || a.consumed {
		return
	}
	a.consumed = true

	if a.rng.SizeInChunks() == 0 || a.sink == nil {
		return
	}
	a.sink.release(a.rng)
}
