//go:build !linux

package vmm

// mapArena falls back to a heap-allocated arena on platforms without the
// anonymous-mapping fast path.
func mapArena(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapArena([]byte) error {
	return nil
}
