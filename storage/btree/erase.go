package btree

import "github.com/erigontech/negentropy/types"

// eraseItem removes target if present, rebalancing underflowing
// nodes against a sibling (merging when the combined size fits under
// MaxJoin, otherwise redistributing keys evenly) and collapsing the
// root when the tree shrinks by a level. It reports false without
// modifying anything if target is not present.
func (t *Tree) eraseItem(txn RWTxn, target types.Item) (bool, error) {
	rootID := txn.RootNodeID()
	if rootID == 0 {
		return false, nil
	}

	var crumbs []breadcrumb
	curID := rootID
	for {
		n, ok := txn.GetNode(curID)
		if !ok {
			invariantViolation("missing node %d during erase descent", curID)
		}
		if n.isLeaf() {
			idx := -1
			for i, k := range n.items {
				if k.item.Equal(target) {
					idx = i
					break
				}
			}
			if idx < 0 {
				return false, nil
			}
			crumbs = append(crumbs, breadcrumb{nodeID: curID, index: idx})
			break
		}
		idx := n.childIndexFor(target)
		crumbs = append(crumbs, breadcrumb{nodeID: curID, index: idx})
		curID = n.items[idx].nodeID
	}

	leafCrumb := crumbs[len(crumbs)-1]
	leaf := txn.PutNode(leafCrumb.nodeID)
	removed := leaf.items[leafCrumb.index].item
	leaf.items = append(leaf.items[:leafCrumb.index], leaf.items[leafCrumb.index+1:]...)
	leaf.accum.SubItem(removed)
	leaf.accumCount--

	for i := len(crumbs) - 2; i >= 0; i-- {
		n := txn.PutNode(crumbs[i].nodeID)
		n.accum.SubItem(removed)
		n.accumCount--
	}

	t.refreshLeftKeys(txn, crumbs)

	for level := len(crumbs) - 1; level >= 1; level-- {
		child := crumbs[level]
		parentCrumb := crumbs[level-1]
		parent := txn.PutNode(parentCrumb.nodeID)
		childNode, ok := txn.GetNode(child.nodeID)
		if !ok {
			invariantViolation("missing node %d while checking underflow", child.nodeID)
		}
		if len(childNode.items) >= t.cfg.MinItems {
			continue
		}

		idx := parentCrumb.index
		switch {
		case idx+1 < len(parent.items):
			t.fixPair(txn, parent, idx)
		case idx > 0:
			t.fixPair(txn, parent, idx-1)
		default:
			continue // only child of its parent; parent must be the root
		}

		t.refreshLeftKeys(txn, crumbs[:level])
	}

	rootID = txn.RootNodeID()
	root, ok := txn.GetNode(rootID)
	if !ok {
		return true, nil
	}
	if len(root.items) == 0 {
		txn.DeleteNode(rootID)
		txn.SetRootNodeID(0)
	} else if len(root.items) == 1 && root.items[0].nodeID != 0 {
		onlyChild := root.items[0].nodeID
		txn.DeleteNode(rootID)
		txn.SetRootNodeID(onlyChild)
	}

	return true, nil
}

// fixPair resolves an underflow between the adjacent siblings at
// parent.items[idx] and parent.items[idx+1]: merge them if their
// combined size fits within MaxJoin, otherwise split the combined keys
// evenly between the two (the left side takes the smaller half when
// the total is odd). The split does not ensure that both sides reach
// MinItems; a pair holding fewer than 2*MinItems keys stays underfull.
func (t *Tree) fixPair(txn RWTxn, parent *node, idx int) {
	leftID := parent.items[idx].nodeID
	rightID := parent.items[idx+1].nodeID
	left := txn.PutNode(leftID)
	right := txn.PutNode(rightID)

	total := len(left.items) + len(right.items)
	if total <= t.cfg.MaxJoin {
		left.items = append(left.items, right.items...)
		left.accum.Add(right.accum)
		left.accumCount += right.accumCount
		left.nextLeaf = right.nextLeaf
		if right.nextLeaf != 0 {
			nxt := txn.PutNode(right.nextLeaf)
			nxt.prevLeaf = leftID
		}
		txn.DeleteNode(rightID)
		parent.items = append(parent.items[:idx+1], parent.items[idx+2:]...)
		if len(left.items) > 0 {
			parent.items[idx].item = left.items[0].item
		}
		return
	}

	all := append(append([]key(nil), left.items...), right.items...)
	leftCount := len(all) / 2
	left.items = append([]key(nil), all[:leftCount]...)
	right.items = append([]key(nil), all[leftCount:]...)

	left.accum.SetZero()
	left.accumCount = 0
	for _, k := range left.items {
		t.addToAccum(txn, left, k)
	}
	right.accum.SetZero()
	right.accumCount = 0
	for _, k := range right.items {
		t.addToAccum(txn, right, k)
	}

	parent.items[idx].item = left.items[0].item
	parent.items[idx+1].item = right.items[0].item
}

// refreshLeftKeys walks crumbs from the deepest node upward, fixing
// each parent's key for its child whenever that child's minimum item
// changed. Stale crumb entries (whose node was merged away by a
// sibling fix-up) are skipped rather than treated as errors.
func (t *Tree) refreshLeftKeys(txn RWTxn, crumbs []breadcrumb) {
	for i := len(crumbs) - 1; i > 0; i-- {
		child, ok := txn.GetNode(crumbs[i].nodeID)
		if !ok {
			continue
		}
		if len(child.items) == 0 {
			continue
		}
		parent := txn.PutNode(crumbs[i-1].nodeID)
		idx := crumbs[i-1].index
		if idx >= len(parent.items) || parent.items[idx].nodeID != crumbs[i].nodeID {
			continue
		}
		parent.items[idx].item = child.items[0].item
	}
}
