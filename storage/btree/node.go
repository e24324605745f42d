// Package btree implements the spec's B+ tree Storage: an augmented
// B+ tree whose interior nodes cache their subtree's accumulator and
// item count, giving O(log n) range fingerprints, O(log n) indexed
// access, and a doubly-linked leaf chain for forward scans.
package btree

import (
	"github.com/erigontech/negentropy/accumulator"
	"github.com/erigontech/negentropy/types"
)

// key is one slot of a node: either a leaf entry (nodeID == 0, item is
// the stored value) or an interior pointer (nodeID names a child,
// item is that child's minimum).
type key struct {
	item   types.Item
	nodeID uint64
}

// node is a B+ tree node: a leaf if every key has nodeID == 0,
// interior otherwise. accum/accumCount summarize the entire subtree
// rooted here (for a leaf, just its own items), which is what makes
// Fingerprint and indexed access O(log n) instead of O(n).
type node struct {
	items      []key
	accum      accumulator.Accumulator
	accumCount uint64
	nextLeaf   uint64
	prevLeaf   uint64
}

func (n *node) numItems() int {
	return len(n.items)
}

func (n *node) isLeaf() bool {
	return len(n.items) == 0 || n.items[0].nodeID == 0
}

// childIndexFor returns the index of the child subtree that does, or
// would, contain it: the largest i such that items[i].item <= it.
func (n *node) childIndexFor(it types.Item) int {
	index := len(n.items) - 1
	for i := 1; i < len(n.items); i++ {
		if it.Less(n.items[i].item) {
			index = i - 1
			break
		}
	}
	return index
}

func (n *node) clone() *node {
	cp := *n
	cp.items = append([]key(nil), n.items...)
	return &cp
}
