//go:build linux

package vmm

import "golang.org/x/sys/unix"

// mapArena reserves size bytes of zeroed memory using an anonymous private
// mapping, keeping the arena out of the Go heap.
func mapArena(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

// unmapArena releases a mapping obtained through mapArena.
func unmapArena(buf []byte) error {
	return unix.Munmap(buf)
}
