package btree

import "github.com/erigontech/negentropy/types"

type breadcrumb struct {
	nodeID uint64
	index  int
}

// insertItem inserts newItem, splitting nodes bottom-up as needed and
// growing the tree's height by one when the root itself splits. It
// reports false without modifying anything if newItem is already
// present.
func (t *Tree) insertItem(txn RWTxn, newItem types.Item) (bool, error) {
	rootID := txn.RootNodeID()
	if rootID == 0 {
		id := txn.AllocNodeID()
		n := txn.PutNode(id)
		n.items = []key{{item: newItem}}
		n.accum.AddItem(newItem)
		n.accumCount = 1
		txn.SetRootNodeID(id)
		return true, nil
	}

	var crumbs []breadcrumb
	curID := rootID
	for curID != 0 {
		n, ok := txn.GetNode(curID)
		if !ok {
			invariantViolation("missing node %d during insert descent", curID)
		}
		index := n.childIndexFor(newItem)
		if n.items[index].item.Equal(newItem) {
			return false, nil
		}
		crumbs = append(crumbs, breadcrumb{nodeID: curID, index: index})
		curID = n.items[index].nodeID
	}

	newKey := key{item: newItem}
	needsSplit := true

	for i := len(crumbs) - 1; i >= 0; i-- {
		c := crumbs[i]
		n := txn.PutNode(c.nodeID)

		if needsSplit {
			if len(n.items) < t.cfg.MaxItems {
				insertSorted(n, newKey)
				n.accum.AddItem(newItem)
				n.accumCount++
				needsSplit = false
			} else {
				rightID := txn.AllocNodeID()
				newKey = t.splitNode(txn, c.nodeID, rightID, newKey)
				n = txn.PutNode(c.nodeID)
			}
		} else {
			n.accum.AddItem(newItem)
			n.accumCount++
		}

		if i > 0 {
			parent := txn.PutNode(crumbs[i-1].nodeID)
			parent.items[crumbs[i-1].index].item = n.items[0].item
		}
	}

	if needsSplit {
		leftID := rootID
		rightID := newKey.nodeID
		left, ok := txn.GetNode(leftID)
		if !ok {
			invariantViolation("missing left node %d after root split", leftID)
		}
		right, ok := txn.GetNode(rightID)
		if !ok {
			invariantViolation("missing right node %d after root split", rightID)
		}

		newRootID := txn.AllocNodeID()
		newRoot := txn.PutNode(newRootID)
		newRoot.items = []key{
			{item: left.items[0].item, nodeID: leftID},
			{item: right.items[0].item, nodeID: rightID},
		}
		newRoot.accum = left.accum
		newRoot.accum.Add(right.accum)
		newRoot.accumCount = left.accumCount + right.accumCount
		txn.SetRootNodeID(newRootID)
	}

	return true, nil
}

func insertSorted(n *node, k key) {
	n.items = append(n.items, key{})
	i := len(n.items) - 1
	for i > 0 && k.item.Less(n.items[i-1].item) {
		n.items[i] = n.items[i-1]
		i--
	}
	n.items[i] = k
}

func (t *Tree) addToAccum(txn RWTxn, n *node, k key) {
	if k.nodeID == 0 {
		n.accum.AddItem(k.item)
		n.accumCount++
		return
	}
	child, ok := txn.GetNode(k.nodeID)
	if !ok {
		invariantViolation("missing child node %d during accumulation", k.nodeID)
	}
	n.accum.Add(child.accum)
	n.accumCount += child.accumCount
}

// splitNode splits the (full) node leftID in two, placing newKey into
// sorted position first. The right half is written to rightID. Both
// halves' accum/accumCount are rebuilt from their (possibly-child)
// contents, and the nextLeaf/prevLeaf chain is relinked around the new
// right node; this relinking happens for interior nodes too, where the
// links are never read. It returns the key the parent should insert to
// point at the new right node.
func (t *Tree) splitNode(txn RWTxn, leftID, rightID uint64, newKey key) key {
	left := txn.PutNode(leftID)
	isLeaf := left.isLeaf()
	insertSorted(left, newKey)

	leftCount := t.cfg.MaxItems/2 + 1
	all := left.items // length MaxItems+1

	leftItems := append([]key(nil), all[:leftCount]...)
	rightItems := append([]key(nil), all[leftCount:]...)

	left.items = leftItems
	left.accum.SetZero()
	left.accumCount = 0
	for _, k := range leftItems {
		t.addToAccum(txn, left, k)
	}

	right := txn.PutNode(rightID)
	right.items = rightItems
	right.accum.SetZero()
	right.accumCount = 0
	for _, k := range rightItems {
		t.addToAccum(txn, right, k)
	}

	oldNextLeaf := left.nextLeaf
	right.nextLeaf = oldNextLeaf
	right.prevLeaf = leftID
	left.nextLeaf = rightID
	if oldNextLeaf != 0 {
		nxt := txn.PutNode(oldNextLeaf)
		nxt.prevLeaf = rightID
	}
	_ = isLeaf // leaf linkage is harmless, if unused, on interior nodes too

	return key{item: rightItems[0].item, nodeID: rightID}
}
