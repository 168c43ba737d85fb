package mm

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert an address to a chunk number (shift right by
	// PageShift) and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes. Virtual pages and
	// physical frames share the same size.
	PageSize = uintptr(1 << PageShift)

	// virtSignBit is the bit that gets sign-extended into the upper bits
	// of a canonical virtual address.
	virtSignBit = uintptr(1) << 47

	// virtAddrMask selects the bits of a virtual address that are not
	// covered by the sign extension.
	virtAddrMask = (uintptr(1) << 48) - 1

	// physAddrMask selects the valid bits of a physical address; bits
	// 52-63 must be zero.
	physAddrMask = (uintptr(1) << 52) - 1
)
