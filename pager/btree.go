package pager

import (
	"bytes"
	"fmt"
)

// BTree is a single ordered keyspace addressed by a root page pointer. Every
// column family, and the master column family that bootstraps the registry,
// is backed by its own BTree sharing one page pool (get/new/del below).
//
// root == 0 means "empty tree": no page has been allocated yet.
type BTree struct {
	root     uint64
	pageSize int
	get      func(uint64) BNode   // dereference a page pointer
	new      func(BNode) uint64   // allocate a new page, returns its pointer
	del      func(uint64)         // free a page
}

func checkLimit(key, val []byte) error {
	if len(key) > MaxKeySize {
		return fmt.Errorf("key too large: %d bytes", len(key))
	}
	if len(val) > maxValueSize {
		return fmt.Errorf("value too large: %d bytes", len(val))
	}
	return nil
}

// Insert inserts or replaces key/val.
func (t *BTree) Insert(key, val []byte) error {
	if err := checkLimit(key, val); err != nil {
		return err
	}
	if t.root == 0 {
		root := newNode(t.pageSize)
		root.setHeader(bnodeLeaf, 2)
		// a dummy first key makes every lookup find a containing slot.
		nodeAppendKV(root, 0, 0, nil, nil)
		nodeAppendKV(root, 1, 0, key, val)
		t.root = t.new(root)
		return nil
	}
	node := t.treeInsert(t.get(t.root), key, val)
	nsplit, split := t.nodeSplit3(node)
	t.del(t.root)
	if nsplit > 1 {
		root := newNode(t.pageSize)
		root.setHeader(bnodeInternal, nsplit)
		for i, knode := range split[:nsplit] {
			ptr, key := t.new(knode), knode.getKey(0)
			nodeAppendKV(root, uint16(i), ptr, key, nil)
		}
		t.root = t.new(root)
	} else {
		t.root = t.new(split[0])
	}
	return nil
}

// Delete removes key, reporting whether it was present.
func (t *BTree) Delete(key []byte) (bool, error) {
	if t.root == 0 {
		return false, nil
	}
	if err := checkLimit(key, nil); err != nil {
		return false, err
	}
	updated := t.treeDelete(t.get(t.root), key)
	if updated == nil {
		return false, nil
	}
	t.del(t.root)
	if updated.nkeys() == 0 {
		t.root = 0
	} else {
		t.root = t.new(updated)
	}
	return true, nil
}

// Get looks up key.
func (t *BTree) Get(key []byte) ([]byte, bool) {
	if t.root == 0 {
		return nil, false
	}
	node := t.get(t.root)
	idx := nodeLookupLE(node, key)
	if idx < node.nkeys() && bytes.Equal(node.getKey(idx), key) {
		val := node.getVal(idx)
		out := make([]byte, len(val))
		copy(out, val)
		return out, true
	}
	return nil, false
}

// Root exposes the current root pointer, for persisting into the master CF.
func (t *BTree) Root() uint64 { return t.root }

// SetRoot restores a previously persisted root pointer, e.g. when opening an
// existing column family.
func (t *BTree) SetRoot(root uint64) { t.root = root }

// Empty reports whether the tree currently has no entries at all.
func (t *BTree) Empty() bool { return t.root == 0 }
