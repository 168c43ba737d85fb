package allocator

import (
	"testing"

	"memcore/kernel/mm"
)

// recordingSink captures released ranges so tests can observe the drop path
// without a full Manager.
type recordingSink[K mm.Kind] struct {
	released []mm.ChunkRange[K]
}

func (s *recordingSink[K]) release(rng mm.ChunkRange[K]) {
	s.released = append(s.released, rng)
}

func newHandle[K mm.Kind](start, end mm.Chunk[K], sink releaseSink[K]) *AllocatedChunks[K] {
	return &AllocatedChunks[K]{rng: mm.NewChunkRange(start, end), sink: sink}
}

func TestAllocatedChunksAccessors(t *testing.T) {
	handle := newHandle[mm.Virtual](10, 19, nil)

	if handle.Start() != 10 || handle.End() != 19 {
		t.Fatalf("expected handle to cover [10, 19]; got [%d, %d]", handle.Start(), handle.End())
	}
	if got := handle.SizeInChunks(); got != 10 {
		t.Fatalf("expected size in chunks to be 10; got %d", got)
	}
	if exp, got := uintptr(10*4096), handle.SizeInBytes(); got != exp {
		t.Fatalf("expected size in bytes to be %d; got %d", exp, got)
	}
	if exp, got := uintptr(10*4096), handle.StartAddress().Value(); got != exp {
		t.Fatalf("expected start address to be 0x%x; got 0x%x", exp, got)
	}
}

func TestSplitMergeReconstructsOriginalRange(t *testing.T) {
	for _, at := range []mm.Chunk[mm.Virtual]{11, 15, 19} {
		orig := newHandle[mm.Virtual](10, 19, nil)

		before, after, err := orig.Split(at)
		if err != nil {
			t.Fatalf("[at %d] expected split to succeed; got %v", at, err)
		}
		if before.End()+1 != after.Start() {
			t.Fatalf("[at %d] expected split pieces to be adjacent; got [%d, %d] and [%d, %d]",
				at, before.Start(), before.End(), after.Start(), after.End())
		}

		if err = before.Merge(after); err != nil {
			t.Fatalf("[at %d] expected merge to succeed; got %v", at, err)
		}
		if before.Start() != 10 || before.End() != 19 {
			t.Fatalf("[at %d] expected merge to reconstruct [10, 19]; got [%d, %d]",
				at, before.Start(), before.End())
		}
	}

	// merging in the opposite order reconstructs the range as well
	orig := newHandle[mm.Virtual](10, 19, nil)
	before, after, err := orig.Split(15)
	if err != nil {
		t.Fatal(err)
	}
	if err = after.Merge(before); err != nil {
		t.Fatalf("expected reverse-order merge to succeed; got %v", err)
	}
	if after.Start() != 10 || after.End() != 19 {
		t.Fatalf("expected reverse-order merge to reconstruct [10, 19]; got [%d, %d]", after.Start(), after.End())
	}
}

func TestSplitEdgeCases(t *testing.T) {
	// splitting exactly at the start yields an empty before piece
	handle := newHandle[mm.Virtual](10, 19, nil)
	before, after, err := handle.Split(10)
	if err != nil {
		t.Fatal(err)
	}
	if got := before.SizeInChunks(); got != 0 {
		t.Fatalf("expected the before piece to be empty; got %d chunks", got)
	}
	if after.Start() != 10 || after.End() != 19 {
		t.Fatalf("expected the after piece to cover [10, 19]; got [%d, %d]", after.Start(), after.End())
	}

	// splitting at end+1 yields an empty after piece
	handle = newHandle[mm.Virtual](10, 19, nil)
	before, after, err = handle.Split(20)
	if err != nil {
		t.Fatal(err)
	}
	if before.Start() != 10 || before.End() != 19 {
		t.Fatalf("expected the before piece to cover [10, 19]; got [%d, %d]", before.Start(), before.End())
	}
	if got := after.SizeInChunks(); got != 0 {
		t.Fatalf("expected the after piece to be empty; got %d chunks", got)
	}

	// out-of-range split chunks fail and leave the handle usable
	handle = newHandle[mm.Virtual](10, 19, nil)
	for _, at := range []mm.Chunk[mm.Virtual]{9, 21, 100} {
		if _, _, err = handle.Split(at); err != ErrInvalidSplit {
			t.Fatalf("expected Split(%d) to return ErrInvalidSplit; got %v", at, err)
		}
	}
	if _, _, err = handle.Split(15); err != nil {
		t.Fatalf("expected the handle to remain splittable after a failed split; got %v", err)
	}
}

func TestMergeRejectsNonAdjacentRanges(t *testing.T) {
	var sink recordingSink[mm.Virtual]

	self := newHandle[mm.Virtual](10, 19, &sink)
	other := newHandle[mm.Virtual](30, 39, &sink)

	if err := self.Merge(other); err != ErrNotAdjacent {
		t.Fatalf("expected merging non-adjacent ranges to return ErrNotAdjacent; got %v", err)
	}

	// both handles remain intact and owned by the caller
	if self.Start() != 10 || self.End() != 19 {
		t.Fatalf("expected self to be unchanged; got [%d, %d]", self.Start(), self.End())
	}
	if other.Start() != 30 || other.End() != 39 {
		t.Fatalf("expected other to be unchanged; got [%d, %d]", other.Start(), other.End())
	}

	other.Drop()
	self.Drop()
	if len(sink.released) != 2 {
		t.Fatalf("expected both handles to release their ranges after the failed merge; got %d releases", len(sink.released))
	}
}

func TestMergeAdjacency(t *testing.T) {
	// self before other
	self := newHandle[mm.Virtual](10, 19, nil)
	other := newHandle[mm.Virtual](20, 29, nil)
	if err := self.Merge(other); err != nil {
		t.Fatal(err)
	}
	if self.Start() != 10 || self.End() != 29 {
		t.Fatalf("expected merged handle to cover [10, 29]; got [%d, %d]", self.Start(), self.End())
	}

	// other before self
	self = newHandle[mm.Virtual](20, 29, nil)
	other = newHandle[mm.Virtual](10, 19, nil)
	if err := self.Merge(other); err != nil {
		t.Fatal(err)
	}
	if self.Start() != 10 || self.End() != 29 {
		t.Fatalf("expected merged handle to cover [10, 29]; got [%d, %d]", self.Start(), self.End())
	}
}

func TestMergeConsumesOtherWithoutRelease(t *testing.T) {
	var sink recordingSink[mm.Physical]

	self := newHandle[mm.Physical](0, 4, &sink)
	other := newHandle[mm.Physical](5, 9, &sink)

	if err := self.Merge(other); err != nil {
		t.Fatal(err)
	}

	// the consumed handle no longer owns its chunks; dropping it must not
	// return them to the free list
	other.Drop()
	if len(sink.released) != 0 {
		t.Fatalf("expected dropping the consumed handle to release nothing; got %d releases", len(sink.released))
	}

	self.Drop()
	if len(sink.released) != 1 || sink.released[0] != mm.NewChunkRange[mm.Physical](0, 9) {
		t.Fatalf("expected dropping the merged handle to release [0, 9]; got %v", sink.released)
	}
}

func TestSplitConsumesOriginalWithoutRelease(t *testing.T) {
	var sink recordingSink[mm.Virtual]

	orig := newHandle[mm.Virtual](10, 19, &sink)
	before, after, err := orig.Split(15)
	if err != nil {
		t.Fatal(err)
	}

	orig.Drop()
	if len(sink.released) != 0 {
		t.Fatalf("expected dropping the split handle to release nothing; got %d releases", len(sink.released))
	}

	before.Drop()
	after.Drop()
	exp := []mm.ChunkRange[mm.Virtual]{
		mm.NewChunkRange[mm.Virtual](10, 14),
		mm.NewChunkRange[mm.Virtual](15, 19),
	}
	if len(sink.released) != len(exp) || sink.released[0] != exp[0] || sink.released[1] != exp[1] {
		t.Fatalf("expected the split pieces to release %v; got %v", exp, sink.released)
	}

	// operations on a consumed handle fail
	if err = orig.Merge(before); err != errConsumedHandle {
		t.Fatalf("expected merging into a consumed handle to fail; got %v", err)
	}
	if _, _, err = orig.Split(15); err != errConsumedHandle {
		t.Fatalf("expected splitting a consumed handle to fail; got %v", err)
	}
}

func TestDropIsIdempotentAndSkipsEmptyHandles(t *testing.T) {
	var sink recordingSink[mm.Virtual]

	handle := newHandle[mm.Virtual](10, 19, &sink)
	handle.Drop()
	handle.Drop()
	if len(sink.released) != 1 {
		t.Fatalf("expected a double drop to release exactly once; got %d releases", len(sink.released))
	}

	empty := &AllocatedChunks[mm.Virtual]{rng: mm.EmptyChunkRange[mm.Virtual](), sink: &sink}
	empty.Drop()
	if len(sink.released) != 1 {
		t.Fatal("expected dropping an empty handle to release nothing")
	}

	var nilHandle *AllocatedChunks[mm.Virtual]
	nilHandle.Drop()
}
