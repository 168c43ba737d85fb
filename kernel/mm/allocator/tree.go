package allocator

import "memcore/kernel/mm"

// rangeTree is an AVL tree of free chunk ranges keyed by their start chunk.
// It backs a free list once the store has been converted to heap-allocated
// mode and its entry count is unbounded.
type rangeTree[K mm.Kind] struct {
	root *rangeNode[K]
	size int
}

type rangeNode[K mm.Kind] struct {
	rng         mm.ChunkRange[K]
	left, right *rangeNode[K]
	height      int
}

// insert adds rng to the tree. Entries are keyed by their start chunk;
// inserting a duplicate start key replaces the stored range.
func (t *rangeTree[K]) insert(rng mm.ChunkRange[K]) {
	t.root = t.insertNode(t.root, rng)
}

func (t *rangeTree[K]) insertNode(node *rangeNode[K], rng mm.ChunkRange[K]) *rangeNode[K] {
	if node == nil {
		t.size++
		return &rangeNode[K]{rng: rng, height: 1}
	}

	switch {
	case rng.Start() < node.rng.Start():
		node.left = t.insertNode(node.left, rng)
	case rng.Start() > node.rng.Start():
		node.right = t.insertNode(node.right, rng)
	default:
		node.rng = rng
		return node
	}

	return rebalance(node)
}

// remove deletes the entry whose start chunk equals start and returns true
// if such an entry existed.
func (t *rangeTree[K]) remove(start mm.Chunk[K]) bool {
	var removed bool
	t.root, removed = t.removeNode(t.root, start)
	if removed {
		t.size--
	}
	return removed
}

func (t *rangeTree[K]) removeNode(node *rangeNode[K], start mm.Chunk[K]) (*rangeNode[K], bool) {
	if node == nil {
		return nil, false
	}

	var removed bool
	switch {
	case start < node.rng.Start():
		node.left, removed = t.removeNode(node.left, start)
	case start > node.rng.Start():
		node.right, removed = t.removeNode(node.right, start)
	default:
		removed = true
		if node.left == nil {
			return node.right, true
		}
		if node.right == nil {
			return node.left, true
		}

		// replace with the in-order successor and delete it from the
		// right subtree
		succ := node.right
		for succ.left != nil {
			succ = succ.left
		}
		node.rng = succ.rng
		node.right, _ = t.removeNode(node.right, succ.rng.Start())
	}

	return rebalance(node), removed
}

// visit walks the tree in order of ascending start chunk until the visitor
// returns false.
func (t *rangeTree[K]) visit(visitor func(mm.ChunkRange[K]) bool) {
	visitNode(t.root, visitor)
}

func visitNode[K mm.Kind](node *rangeNode[K], visitor func(mm.ChunkRange[K]) bool) bool {
	if node == nil {
		return true
	}
	if !visitNode(node.left, visitor) {
		return false
	}
	if !visitor(node.rng) {
		return false
	}
	return visitNode(node.right, visitor)
}

func height[K mm.Kind](node *rangeNode[K]) int {
	if node == nil {
		return 0
	}
	return node.height
}

func balanceFactor[K mm.Kind](node *rangeNode[K]) int {
	return height(node.left) - height(node.right)
}

func fixHeight[K mm.Kind](node *rangeNode[K]) {
	node.height = 1 + max(height(node.left), height(node.right))
}

func rotateRight[K mm.Kind](node *rangeNode[K]) *rangeNode[K] {
	pivot := node.left
	node.left = pivot.right
	pivot.right = node
	fixHeight(node)
	fixHeight(pivot)
	return pivot
}

func rotateLeft[K mm.Kind](node *rangeNode[K]) *rangeNode[K] {
	pivot := node.right
	node.right = pivot.left
	pivot.left = node
	fixHeight(node)
	fixHeight(pivot)
	return pivot
}

func rebalance[K mm.Kind](node *rangeNode[K]) *rangeNode[K] {
	fixHeight(node)

	if bf := balanceFactor(node); bf > 1 {
		if balanceFactor(node.left) < 0 {
			node.left = rotateLeft(node.left)
		}
		return rotateRight(node)
	} else if bf < -1 {
		if balanceFactor(node.right) > 0 {
			node.right = rotateRight(node.right)
		}
		return rotateLeft(node)
	}

	return node
}
