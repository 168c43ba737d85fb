package mm

// Kind is the constraint satisfied by the two memory kind markers. Each
// marker supplies the architecture's canonicalization rule for addresses of
// that kind. The union keeps the constraint sealed so that address, chunk
// and range types can only ever be instantiated for virtual or physical
// memory.
type Kind interface {
	Virtual | Physical

	canonicalize(raw uintptr) uintptr
	isCanonical(raw uintptr) bool
	maxAddr() uintptr

	// PoolName is exported so that packages generic over Kind can name the
	// pool in their log output.
	PoolName() string
}

// Virtual marks addresses and chunks that refer to virtual memory pages.
type Virtual struct{}

func (Virtual) canonicalize(raw uintptr) uintptr {
	if raw&virtSignBit != 0 {
		return raw | ^virtAddrMask
	}
	return raw & virtAddrMask
}

// isCanonical reports whether bits 48-63 of raw are a sign-extension of
// bit 47.
func (Virtual) isCanonical(raw uintptr) bool {
	upper := raw &^ virtAddrMask
	if raw&virtSignBit != 0 {
		return upper == ^virtAddrMask
	}
	return upper == 0
}

// maxAddr returns the highest canonical virtual address.
func (Virtual) maxAddr() uintptr { return ^uintptr(0) }

// PoolName returns the name of the virtual memory pool.
func (Virtual) PoolName() string { return "virtual" }

// Physical marks addresses and chunks that refer to physical memory frames.
type Physical struct{}

func (Physical) canonicalize(raw uintptr) uintptr {
	return raw & physAddrMask
}

// isCanonical reports whether bits 52-63 of raw are zero.
func (Physical) isCanonical(raw uintptr) bool {
	return raw&^physAddrMask == 0
}

// maxAddr returns the highest canonical physical address.
func (Physical) maxAddr() uintptr { return physAddrMask }

// PoolName returns the name of the physical memory pool.
func (Physical) PoolName() string { return "physical" }
