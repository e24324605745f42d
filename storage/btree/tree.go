package btree

import (
	"fmt"

	"github.com/erigontech/negentropy/accumulator"
	"github.com/erigontech/negentropy/storage"
	"github.com/erigontech/negentropy/types"
)

// TreeConfig bounds node fan-out. The shipped default (30/80/40)
// matches the spec's wire-compatible B+ tree shape; smaller values
// are useful in tests to exercise splits and merges without building
// thousands of items.
type TreeConfig struct {
	MinItems int
	MaxItems int
	MaxJoin  int
}

// DefaultTreeConfig returns the shipped fan-out bounds.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{MinItems: 30, MaxItems: 80, MaxJoin: 40}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.MinItems <= 0 {
		c.MinItems = d.MinItems
	}
	if c.MaxItems <= 0 {
		c.MaxItems = d.MaxItems
	}
	if c.MaxJoin <= 0 {
		c.MaxJoin = d.MaxJoin
	}
	return c
}

// Tree is a B+ tree implementation of storage.Storage, backed by a
// NodeStore. It is safe to share across goroutines: every operation
// opens its own read or write transaction against the store.
type Tree struct {
	store NodeStore
	cfg   TreeConfig
}

// NewTree returns a Tree over an empty store. Pass cfg's zero value
// to use DefaultTreeConfig.
func NewTree(store NodeStore, cfg TreeConfig) *Tree {
	return &Tree{store: store, cfg: cfg.withDefaults()}
}

func invariantViolation(format string, args ...interface{}) {
	panic(fmt.Sprintf("negentropy: btree invariant violated: "+format, args...))
}

// Insert adds a single item in its own transaction. It reports
// whether the item was newly inserted (false if it was already
// present).
func (t *Tree) Insert(timestamp uint64, id []byte) (bool, error) {
	item, ok := types.NewItem(timestamp, id)
	if !ok {
		return false, storage.ErrBadIDSize
	}
	txn := t.store.BeginWrite()
	inserted, err := t.insertItem(txn, item)
	if err != nil {
		txn.Rollback()
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return inserted, nil
}

// Erase removes a single item in its own transaction. It reports
// whether an item was actually removed.
func (t *Tree) Erase(timestamp uint64, id []byte) (bool, error) {
	item, ok := types.NewItem(timestamp, id)
	if !ok {
		return false, storage.ErrBadIDSize
	}
	txn := t.store.BeginWrite()
	removed, err := t.eraseItem(txn, item)
	if err != nil {
		txn.Rollback()
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return removed, nil
}

// Batch runs fn against a single write transaction, committing once
// fn returns nil and rolling back otherwise.
func (t *Tree) Batch(fn func(b *Batch) error) error {
	txn := t.store.BeginWrite()
	b := &Batch{tree: t, txn: txn}
	if err := fn(b); err != nil {
		txn.Rollback()
		return err
	}
	return txn.Commit()
}

// Batch groups multiple inserts/erases into one atomic transaction.
type Batch struct {
	tree *Tree
	txn  RWTxn
}

func (b *Batch) Insert(timestamp uint64, id []byte) (bool, error) {
	item, ok := types.NewItem(timestamp, id)
	if !ok {
		return false, storage.ErrBadIDSize
	}
	return b.tree.insertItem(b.txn, item)
}

func (b *Batch) Erase(timestamp uint64, id []byte) (bool, error) {
	item, ok := types.NewItem(timestamp, id)
	if !ok {
		return false, storage.ErrBadIDSize
	}
	return b.tree.eraseItem(b.txn, item)
}

func (t *Tree) sizeOf(rd ReadTxn) uint64 {
	n, ok := rd.GetNode(rd.RootNodeID())
	if !ok {
		return 0
	}
	return n.accumCount
}

func (t *Tree) Size() uint64 {
	rd := t.store.BeginRead()
	defer rd.Rollback()
	return t.sizeOf(rd)
}

func (t *Tree) GetItem(i uint64) (types.Item, error) {
	rd := t.store.BeginRead()
	defer rd.Rollback()
	if i >= t.sizeOf(rd) {
		return types.Item{}, storage.ErrOutOfRange
	}
	n, idx := t.descendToOffset(rd, i)
	return n.items[idx].item, nil
}

func (t *Tree) Iterate(begin, end uint64, cb func(types.Item, uint64) bool) error {
	rd := t.store.BeginRead()
	defer rd.Rollback()
	size := t.sizeOf(rd)
	if begin > end || end > size {
		return storage.ErrBadRange
	}
	if begin == end {
		return nil
	}
	cur, idx := t.descendToOffset(rd, begin)
	i := idx
	for k := begin; k < end; k++ {
		if !cb(cur.items[i].item, k) {
			return nil
		}
		i++
		if i >= len(cur.items) && k+1 < end {
			nxt, ok := rd.GetNode(cur.nextLeaf)
			if !ok {
				invariantViolation("iterate ran past the end of the leaf chain")
			}
			cur = nxt
			i = 0
		}
	}
	return nil
}

// descendToOffset returns the leaf node containing global index, and
// that item's index within the leaf's items slice.
func (t *Tree) descendToOffset(rd ReadTxn, index uint64) (*node, int) {
	n, ok := rd.GetNode(rd.RootNodeID())
	if !ok {
		invariantViolation("descendToOffset called on an empty tree")
	}
	for !n.isLeaf() {
		var advanced bool
		for i := range n.items {
			child, ok := rd.GetNode(n.items[i].nodeID)
			if !ok {
				invariantViolation("missing child node %d", n.items[i].nodeID)
			}
			if index < child.accumCount {
				n = child
				advanced = true
				break
			}
			index -= child.accumCount
		}
		if !advanced {
			invariantViolation("offset out of range during descent")
		}
	}
	return n, int(index)
}

func (t *Tree) FindLowerBound(begin uint64, bound types.Bound) (uint64, error) {
	rd := t.store.BeginRead()
	defer rd.Rollback()
	size := t.sizeOf(rd)
	if begin > size {
		return 0, storage.ErrBadRange
	}
	root, ok := rd.GetNode(rd.RootNodeID())
	if !ok {
		return begin, nil
	}
	target := bound.AsItem()
	var result uint64
	if target.LessEq(root.items[0].item) {
		result = 0
	} else {
		result = t.findLowerBoundAux(rd, target, root, 0)
	}
	if result > size {
		result = size
	}
	if result < begin {
		result = begin
	}
	return result, nil
}

func (t *Tree) findLowerBoundAux(rd ReadTxn, target types.Item, n *node, numToLeft uint64) uint64 {
	for i := 1; i < len(n.items); i++ {
		if target.LessEq(n.items[i].item) {
			child, ok := rd.GetNode(n.items[i-1].nodeID)
			if !ok {
				return numToLeft + 1
			}
			return t.findLowerBoundAux(rd, target, child, numToLeft)
		}
		childID := n.items[i-1].nodeID
		if childID != 0 {
			child, ok := rd.GetNode(childID)
			if !ok {
				invariantViolation("missing child node %d", childID)
			}
			numToLeft += child.accumCount
		} else {
			numToLeft++
		}
	}
	lastID := n.items[len(n.items)-1].nodeID
	child, ok := rd.GetNode(lastID)
	if !ok {
		return numToLeft + 1
	}
	return t.findLowerBoundAux(rd, target, child, numToLeft)
}

func (t *Tree) Fingerprint(begin, end uint64) (accumulator.Fingerprint, error) {
	rd := t.store.BeginRead()
	defer rd.Rollback()
	size := t.sizeOf(rd)
	if begin > end || end > size {
		return accumulator.Fingerprint{}, storage.ErrBadRange
	}
	left := t.accumLeftOf(rd, begin)
	right := t.accumLeftOf(rd, end)
	left.Negate()
	right.Add(left)
	return right.Fingerprint(end - begin), nil
}

func (t *Tree) accumLeftOf(rd ReadTxn, index uint64) accumulator.Accumulator {
	acc := accumulator.Zero()
	n, ok := rd.GetNode(rd.RootNodeID())
	if !ok {
		return acc
	}
	if index >= n.accumCount {
		acc.Add(n.accum)
		return acc
	}
	for {
		if n.isLeaf() {
			for i := 0; i < int(index); i++ {
				acc.AddItem(n.items[i].item)
			}
			return acc
		}
		var advanced bool
		for i := range n.items {
			child, ok := rd.GetNode(n.items[i].nodeID)
			if !ok {
				invariantViolation("missing child node %d", n.items[i].nodeID)
			}
			if index < child.accumCount {
				n = child
				advanced = true
				break
			}
			acc.Add(child.accum)
			index -= child.accumCount
		}
		if !advanced {
			invariantViolation("offset overrun computing left accumulator")
		}
	}
}
