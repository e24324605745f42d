package btree

import (
	"errors"
	"sync"
)

// ErrTxnClosed is returned by Commit on a transaction that has already
// been committed or rolled back. Rollback on a closed transaction is a
// no-op.
var ErrTxnClosed = errors.New("negentropy: transaction already closed")

// ReadTxn is a read-only snapshot of the node store, taken at
// BeginRead time. Concurrent writers do not affect an in-flight
// ReadTxn's view.
type ReadTxn interface {
	GetNode(id uint64) (*node, bool)
	RootNodeID() uint64
	Rollback()
}

// RWTxn is a read-write transaction. Writes accumulate in a
// dirty-node overlay invisible to other transactions until Commit,
// mirroring the withTxn/dirty-node-cache pattern an LMDB-backed
// implementation would use; here the backing store is a plain Go map.
type RWTxn interface {
	ReadTxn
	// PutNode returns a mutable node for id, safe to edit in place:
	// the transaction's own overlay copy if id is already dirty, a
	// copy-on-write clone of the base store's node if it exists there,
	// or a fresh zero node otherwise.
	PutNode(id uint64) *node
	AllocNodeID() uint64
	DeleteNode(id uint64)
	SetRootNodeID(id uint64)
	Commit() error
	Rollback()
}

// NodeStore is the persistent backing for B+ tree nodes, addressed by
// stable uint64 ids rather than pointers so the tree forms a
// re-attachable DAG instead of a pointer structure. NewMemNodeStore
// is the only implementation shipped here; the interface exists so a
// host can swap in a real transactional KV engine without touching
// Tree.
type NodeStore interface {
	BeginRead() ReadTxn
	BeginWrite() RWTxn
}

type memNodeStore struct {
	mu     sync.RWMutex
	nodes  map[uint64]*node
	rootID uint64
	nextID uint64
}

// NewMemNodeStore returns an in-memory NodeStore. Node id 0 is
// reserved as the "no node" sentinel; real node ids start at 1.
func NewMemNodeStore() NodeStore {
	return &memNodeStore{nodes: map[uint64]*node{}, nextID: 1}
}

func (s *memNodeStore) BeginRead() ReadTxn {
	s.mu.RLock()
	return &memReadTxn{s: s}
}

func (s *memNodeStore) BeginWrite() RWTxn {
	s.mu.Lock()
	return &memRWTxn{
		s:       s,
		dirty:   map[uint64]*node{},
		deleted: map[uint64]bool{},
		rootID:  s.rootID,
		nextID:  s.nextID,
	}
}

type memReadTxn struct {
	s    *memNodeStore
	done bool
}

func (t *memReadTxn) GetNode(id uint64) (*node, bool) {
	n, ok := t.s.nodes[id]
	return n, ok
}

func (t *memReadTxn) RootNodeID() uint64 {
	return t.s.rootID
}

func (t *memReadTxn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.s.mu.RUnlock()
}

type memRWTxn struct {
	s       *memNodeStore
	dirty   map[uint64]*node
	deleted map[uint64]bool
	rootID  uint64
	nextID  uint64
	done    bool
}

func (t *memRWTxn) GetNode(id uint64) (*node, bool) {
	if t.deleted[id] {
		return nil, false
	}
	if n, ok := t.dirty[id]; ok {
		return n, true
	}
	n, ok := t.s.nodes[id]
	return n, ok
}

func (t *memRWTxn) RootNodeID() uint64 {
	return t.rootID
}

func (t *memRWTxn) PutNode(id uint64) *node {
	if n, ok := t.dirty[id]; ok {
		return n
	}
	var n *node
	if existing, ok := t.GetNode(id); ok {
		n = existing.clone()
	} else {
		n = &node{}
	}
	delete(t.deleted, id)
	t.dirty[id] = n
	return n
}

func (t *memRWTxn) AllocNodeID() uint64 {
	id := t.nextID
	t.nextID++
	return id
}

func (t *memRWTxn) DeleteNode(id uint64) {
	delete(t.dirty, id)
	t.deleted[id] = true
}

func (t *memRWTxn) SetRootNodeID(id uint64) {
	t.rootID = id
}

func (t *memRWTxn) Commit() error {
	if t.done {
		return ErrTxnClosed
	}
	t.done = true
	defer t.s.mu.Unlock()
	for id, n := range t.dirty {
		t.s.nodes[id] = n
	}
	for id := range t.deleted {
		delete(t.s.nodes, id)
	}
	t.s.rootID = t.rootID
	t.s.nextID = t.nextID
	return nil
}

func (t *memRWTxn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.s.mu.Unlock()
}
