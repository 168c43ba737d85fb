package mm

// Chunk describes the index of one allocatable memory unit of kind K: a
// virtual page or a physical frame. Chunks order naturally by their number.
type Chunk[K Kind] uintptr

// ChunkFromAddress returns the Chunk that contains the given address. This
// function can handle both chunk-aligned and not aligned addresses. In the
// latter case the input address is rounded down to the chunk that contains
// it.
func ChunkFromAddress[K Kind](addr Address[K]) Chunk[K] {
	return Chunk[K](addr.Value() >> PageShift)
}

// Number returns the chunk number.
func (c Chunk[K]) Number() uintptr {
	return uintptr(c)
}

// Address returns the address of the first byte of this chunk.
func (c Chunk[K]) Address() Address[K] {
	return NewCanonicalAddress[K](uintptr(c) << PageShift)
}

// ChunkRange describes an inclusive range [start, end] of chunks. A range is
// a plain value: copying it carries no ownership of the chunks it covers.
type ChunkRange[K Kind] struct {
	start, end Chunk[K]
}

// NewChunkRange returns the inclusive range [start, end]. If end is below
// start the result is the canonical empty range.
func NewChunkRange[K Kind](start, end Chunk[K]) ChunkRange[K] {
	if end < start {
		return EmptyChunkRange[K]()
	}
	return ChunkRange[K]{start: start, end: end}
}

// EmptyChunkRange returns the canonical empty range. It is encoded as
// [1, 0] so that size and iteration treat it uniformly with any other
// inverted range.
func EmptyChunkRange[K Kind]() ChunkRange[K] {
	return ChunkRange[K]{start: 1, end: 0}
}

// ChunkRangeFromAddress returns the smallest range covering sizeInBytes
// bytes starting at startAddr. A range of a single byte maps to exactly one
// chunk. sizeInBytes must not be zero; violating this is a caller bug and
// panics.
func ChunkRangeFromAddress[K Kind](startAddr Address[K], sizeInBytes uintptr) ChunkRange[K] {
	if sizeInBytes == 0 {
		panic("mm: chunk range byte size must not be zero")
	}

	return ChunkRange[K]{
		start: ChunkFromAddress(startAddr),
		end:   ChunkFromAddress(startAddr.Add(sizeInBytes - 1)),
	}
}

// Start returns the first chunk of the range.
func (r ChunkRange[K]) Start() Chunk[K] {
	return r.start
}

// End returns the last chunk of the range.
func (r ChunkRange[K]) End() Chunk[K] {
	return r.end
}

// StartAddress returns the address of the first byte covered by the range.
func (r ChunkRange[K]) StartAddress() Address[K] {
	return r.start.Address()
}

// SizeInChunks returns the number of chunks covered by the range; zero for
// the empty range.
func (r ChunkRange[K]) SizeInChunks() uintptr {
	end := uintptr(r.end) + 1
	if uintptr(r.start) > end {
		return 0
	}
	return end - uintptr(r.start)
}

// SizeInBytes returns the number of bytes covered by the range.
func (r ChunkRange[K]) SizeInBytes() uintptr {
	return r.SizeInChunks() << PageShift
}

// Contains returns true if the range covers the given chunk.
func (r ChunkRange[K]) Contains(c Chunk[K]) bool {
	return c >= r.start && c <= r.end
}

// ContainsRange returns true if the range fully covers other. The empty
// range is contained by every range.
func (r ChunkRange[K]) ContainsRange(other ChunkRange[K]) bool {
	if other.SizeInChunks() == 0 {
		return true
	}
	return r.Contains(other.start) && r.Contains(other.end)
}

// OffsetOf returns the byte offset of addr from the start of the range. The
// second return value is false if addr is not covered by the range.
func (r ChunkRange[K]) OffsetOf(addr Address[K]) (uintptr, bool) {
	if !r.Contains(ChunkFromAddress(addr)) {
		return 0, false
	}
	return addr.Value() - r.StartAddress().Value(), true
}

// AddressAt returns the address at the given byte offset into the range. The
// second return value is false if the offset falls outside the range.
func (r ChunkRange[K]) AddressAt(offset uintptr) (Address[K], bool) {
	if offset >= r.SizeInBytes() {
		return 0, false
	}
	return r.StartAddress().Add(offset), true
}

// Overlap returns the intersection of two inclusive ranges. The second
// return value is false if the ranges are disjoint.
func (r ChunkRange[K]) Overlap(other ChunkRange[K]) (ChunkRange[K], bool) {
	start := r.start
	if other.start > start {
		start = other.start
	}

	end := r.end
	if other.end < end {
		end = other.end
	}

	if start > end {
		return EmptyChunkRange[K](), false
	}
	return ChunkRange[K]{start: start, end: end}, true
}

// Extended returns the smallest range covering both r and the single extra
// chunk c. It is meant for growing a range by one neighboring chunk; for an
// empty r the result covers just c.
func (r ChunkRange[K]) Extended(c Chunk[K]) ChunkRange[K] {
	if r.SizeInChunks() == 0 {
		return ChunkRange[K]{start: c, end: c}
	}

	ext := r
	if c < ext.start {
		ext.start = c
	}
	if c > ext.end {
		ext.end = c
	}
	return ext
}

// Visit invokes the supplied visitor for each chunk in the range in
// ascending order until the visitor returns false. Visiting an empty range
// invokes the visitor zero times.
func (r ChunkRange[K]) Visit(visitor func(Chunk[K]) bool) {
	if r.SizeInChunks() == 0 {
		return
	}

	for c := r.start; ; c++ {
		if !visitor(c) {
			return
		}
		if c == r.end {
			return
		}
	}
}
