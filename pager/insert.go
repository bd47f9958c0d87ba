package pager

import (
	"bytes"
	"encoding/binary"
)

func nodeAppendKV(n BNode, idx uint16, ptr uint64, key, val []byte) {
	n.setPtr(idx, ptr)
	pos := n.kvPos(idx)
	binary.LittleEndian.PutUint16(n[pos+0:], uint16(len(key)))
	binary.LittleEndian.PutUint16(n[pos+2:], uint16(len(val)))
	copy(n[pos+4:], key)
	copy(n[pos+4+uint16(len(key)):], val)
	n.setOffset(idx+1, n.getOffset(idx)+4+uint16(len(key))+uint16(len(val)))
}

// nodeAppendRange copies n consecutive cells from old[srcOld:] to new[dstNew:].
func nodeAppendRange(new, old BNode, dstNew, srcOld, n uint16) {
	for i := uint16(0); i < n; i++ {
		dst, src := dstNew+i, srcOld+i
		nodeAppendKV(new, dst, old.getPtr(src), old.getKey(src), old.getVal(src))
	}
}

// nodeLookupLE returns the index of the last key <= key. The tree always
// carries a dummy first key (nil) so every lookup finds a containing slot.
func nodeLookupLE(n BNode, key []byte) uint16 {
	nkeys := n.nkeys()
	var i uint16
	for i = 0; i < nkeys; i++ {
		cmp := bytes.Compare(n.getKey(i), key)
		if cmp == 0 {
			return i
		}
		if cmp > 0 {
			return i - 1
		}
	}
	return i - 1
}

func leafInsert(new, old BNode, idx uint16, key, val []byte) {
	new.setHeader(bnodeLeaf, old.nkeys()+1)
	nodeAppendRange(new, old, 0, 0, idx)
	nodeAppendKV(new, idx, 0, key, val)
	nodeAppendRange(new, old, idx+1, idx, old.nkeys()-idx)
}

func leafUpdate(new, old BNode, idx uint16, key, val []byte) {
	new.setHeader(bnodeLeaf, old.nkeys())
	nodeAppendRange(new, old, 0, 0, idx)
	nodeAppendKV(new, idx, 0, key, val)
	nodeAppendRange(new, old, idx+1, idx+1, old.nkeys()-(idx+1))
}

// treeInsert inserts key/val starting at node, returning an oversized node
// (up to 2 pages) that the caller splits with nodeSplit3.
func (t *BTree) treeInsert(node BNode, key, val []byte) BNode {
	new := newNode(2 * t.pageSize)
	idx := nodeLookupLE(node, key)
	switch node.btype() {
	case bnodeLeaf:
		if idx < node.nkeys() && bytes.Equal(key, node.getKey(idx)) {
			leafUpdate(new, node, idx, key, val)
		} else {
			leafInsert(new, node, idx+1, key, val)
		}
	case bnodeInternal:
		kptr := node.getPtr(idx)
		knode := t.treeInsert(t.get(kptr), key, val)
		nsplit, split := t.nodeSplit3(knode)
		t.del(kptr)
		t.nodeReplaceKidN(new, node, idx, split[:nsplit]...)
	default:
		panic("bad node type")
	}
	return new
}

func (t *BTree) nodeSplit2(left, right, old BNode) {
	nleft := old.nkeys() / 2
	leftBytes := func() uint16 {
		return nodeHeader + 8*nleft + 2*nleft + old.getOffset(nleft)
	}
	for leftBytes() > uint16(t.pageSize) {
		nleft--
	}
	rightBytes := func() uint16 {
		return old.nbytes() - leftBytes() + nodeHeader
	}
	for rightBytes() > uint16(t.pageSize) {
		nleft++
	}
	nright := old.nkeys() - nleft
	left.setHeader(old.btype(), nleft)
	right.setHeader(old.btype(), nright)
	nodeAppendRange(left, old, 0, 0, nleft)
	nodeAppendRange(right, old, 0, nleft, nright)
}

// nodeSplit3 splits an oversized node into at most 3 page-sized nodes.
func (t *BTree) nodeSplit3(old BNode) (uint16, [3]BNode) {
	if int(old.nbytes()) <= t.pageSize {
		old = old[:t.pageSize]
		return 1, [3]BNode{old}
	}
	left := newNode(2 * t.pageSize)
	right := newNode(t.pageSize)
	t.nodeSplit2(left, right, old)
	if int(left.nbytes()) <= t.pageSize {
		left = left[:t.pageSize]
		return 2, [3]BNode{left, right}
	}
	leftleft := newNode(t.pageSize)
	middle := newNode(t.pageSize)
	t.nodeSplit2(leftleft, middle, left)
	return 3, [3]BNode{leftleft, middle, right}
}

func (t *BTree) nodeReplaceKidN(new, old BNode, idx uint16, kids ...BNode) {
	inc := uint16(len(kids))
	new.setHeader(bnodeInternal, old.nkeys()+inc-1)
	nodeAppendRange(new, old, 0, 0, idx)
	for i, kid := range kids {
		nodeAppendKV(new, idx+uint16(i), t.new(kid), kid.getKey(0), nil)
	}
	nodeAppendRange(new, old, idx+inc, idx+1, old.nkeys()-(idx+1))
}
