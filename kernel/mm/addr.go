// Package mm provides the address, chunk and chunk-range abstractions that
// the physical and virtual memory allocators are built on.
package mm

// Address describes one canonical machine address of memory kind K.
type Address[K Kind] uintptr

// NewAddress returns the Address that corresponds to raw. The second return
// value is false if raw violates the canonicalization rule for kind K.
func NewAddress[K Kind](raw uintptr) (Address[K], bool) {
	var kind K
	if !kind.isCanonical(raw) {
		return 0, false
	}
	return Address[K](raw), true
}

// NewCanonicalAddress masks or sign-extends raw into the canonical range for
// kind K. It is a total function: any input maps to a valid address and
// canonical inputs map to themselves.
func NewCanonicalAddress[K Kind](raw uintptr) Address[K] {
	var kind K
	return Address[K](kind.canonicalize(raw))
}

// Value returns the raw address value.
func (a Address[K]) Value() uintptr {
	return uintptr(a)
}

// ChunkOffset returns the offset of this address within the chunk that
// contains it.
func (a Address[K]) ChunkOffset() uintptr {
	return uintptr(a) & (PageSize - 1)
}

// IsAligned returns true if this address points to the first byte of a chunk.
func (a Address[K]) IsAligned() bool {
	return a.ChunkOffset() == 0
}

// Add returns the address delta bytes above a. The addition saturates at the
// highest canonical address of kind K instead of wrapping around and the
// result is re-canonicalized.
func (a Address[K]) Add(delta uintptr) Address[K] {
	var kind K
	sum := uintptr(a) + delta
	if sum < uintptr(a) || sum > kind.maxAddr() {
		sum = kind.maxAddr()
	}
	return NewCanonicalAddress[K](sum)
}

// Sub returns the address delta bytes below a, saturating at zero.
func (a Address[K]) Sub(delta uintptr) Address[K] {
	if delta > uintptr(a) {
		return NewCanonicalAddress[K](0)
	}
	return NewCanonicalAddress[K](uintptr(a) - delta)
}
