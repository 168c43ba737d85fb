// Package allocator implements the chunk allocator at the core of the
// kernel's memory management: it tracks the free ranges of each memory pool,
// hands out exclusively owned ranges and reclaims them when the owning
// handle is dropped.
package allocator

import (
	"memcore/kernel"
	"memcore/kernel/mm"
	ksync "memcore/kernel/sync"
)

// arraySlots bounds the number of free ranges a store can track before it
// has been converted to heap-allocated mode. Only a handful of large
// boot-time regions need tracking before the kernel heap is carved out, so
// a small fixed capacity suffices.
const arraySlots = 32

// ErrArrayFull is returned by a free-list insert while the store is still
// in bootstrap array mode and all slots are occupied. It indicates that the
// bootstrap capacity was undersized; the kernel can usually continue in a
// degraded state (the range is leaked), so this is surfaced as a logged
// error rather than a panic.
var ErrArrayFull = &kernel.Error{Module: "mm/allocator", Message: "bootstrap free-list array has no empty slot"}

// freeList holds the non-overlapping free chunk ranges of one memory pool.
// It starts life backed by a fixed-capacity array so it is usable before a
// heap exists and is converted in place to a balanced tree once the kernel
// heap becomes available.
//
// The store methods perform no locking themselves: callers must hold the
// store's lock for the duration of every operation or compound operation.
type freeList[K mm.Kind] struct {
	lock ksync.Spinlock

	// slots backs the store while heapBacked is false. Entry order within
	// the array carries no meaning; iteration sorts on the fly.
	slots [arraySlots]freeSlot[K]

	// tree backs the store after conversion.
	tree       rangeTree[K]
	heapBacked bool
}

type freeSlot[K mm.Kind] struct {
	rng  mm.ChunkRange[K]
	used bool
}

// insert adds rng to the store. Empty ranges are ignored. In array mode the
// insert fails with ErrArrayFull when no free slot exists.
func (fl *freeList[K]) insert(rng mm.ChunkRange[K]) *kernel.Error {
	if rng.SizeInChunks() == 0 {
		return nil
	}

	if fl.heapBacked {
		fl.tree.insert(rng)
		return nil
	}

	for i := range fl.slots {
		if !fl.slots[i].used {
			fl.slots[i] = freeSlot[K]{rng: rng, used: true}
			return nil
		}
	}

	return ErrArrayFull
}

// remove deletes the entry whose start chunk equals start and returns true
// if such an entry existed.
func (fl *freeList[K]) remove(start mm.Chunk[K]) bool {
	if fl.heapBacked {
		return fl.tree.remove(start)
	}

	for i := range fl.slots {
		if fl.slots[i].used && fl.slots[i].rng.Start() == start {
			fl.slots[i] = freeSlot[K]{}
			return true
		}
	}

	return false
}

// visit invokes the visitor for every stored range in ascending start-chunk
// order until the visitor returns false. The order is the same in both
// backing modes.
func (fl *freeList[K]) visit(visitor func(mm.ChunkRange[K]) bool) {
	if fl.heapBacked {
		fl.tree.visit(visitor)
		return
	}

	// The array is unsorted; select the next-larger entry on each step.
	// The slot count is small enough that the quadratic scan does not
	// matter.
	var (
		last    mm.Chunk[K]
		started bool
	)
	for {
		var (
			best  mm.ChunkRange[K]
			found bool
		)
		for i := range fl.slots {
			if !fl.slots[i].used {
				continue
			}
			start := fl.slots[i].rng.Start()
			if started && start <= last {
				continue
			}
			if !found || start < best.Start() {
				best = fl.slots[i].rng
				found = true
			}
		}

		if !found {
			return
		}
		if !visitor(best) {
			return
		}
		last, started = best.Start(), true
	}
}

// count returns the number of stored ranges.
func (fl *freeList[K]) count() int {
	if fl.heapBacked {
		return fl.tree.size
	}

	var n int
	for i := range fl.slots {
		if fl.slots[i].used {
			n++
		}
	}
	return n
}

// convertToHeapAllocated migrates every array entry into a newly created
// balanced tree. The migration happens exactly once; calling it again is a
// no-op. It must only be invoked after the kernel heap allocator is
// available.
func (fl *freeList[K]) convertToHeapAllocated() {
	if fl.heapBacked {
		return
	}

	fl.tree = rangeTree[K]{}
	for i := range fl.slots {
		if fl.slots[i].used {
			fl.tree.insert(fl.slots[i].rng)
			fl.slots[i] = freeSlot[K]{}
		}
	}
	fl.heapBacked = true
}

// coalesce merges adjacent or overlapping entries in place. It is only ever
// triggered explicitly: the regular drop path deliberately performs no
// merging.
func (fl *freeList[K]) coalesce() {
	var (
		merged  [arraySlots]mm.ChunkRange[K]
		spill   []mm.ChunkRange[K]
		count   int
		current mm.ChunkRange[K]
		active  bool
	)

	emit := func(rng mm.ChunkRange[K]) {
		if count < arraySlots {
			merged[count] = rng
			count++
			return
		}
		spill = append(spill, rng)
	}

	fl.visit(func(rng mm.ChunkRange[K]) bool {
		if !active {
			current, active = rng, true
			return true
		}
		if rng.Start() <= current.End()+1 {
			if rng.End() > current.End() {
				current = mm.NewChunkRange(current.Start(), rng.End())
			}
			return true
		}
		emit(current)
		current = rng
		return true
	})
	if active {
		emit(current)
	}

	if fl.heapBacked {
		fl.tree = rangeTree[K]{}
	} else {
		fl.slots = [arraySlots]freeSlot[K]{}
	}

	for i := 0; i < count; i++ {
		fl.insert(merged[i])
	}
	for _, rng := range spill {
		fl.insert(rng)
	}
}
