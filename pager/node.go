package pager

import "encoding/binary"

// Node type tags, stored in the first two bytes of every page.
const (
	bnodeInternal = 1 // internal node: pointers to child pages
	bnodeLeaf     = 2 // leaf node: values
)

// PageSize constraints. PageSize itself is set per-database at creation time
// (Config.PageSize); these bound the payload a single cell may carry so that
// one maximal cell, next to the empty dummy first cell, plus the header fits
// on a 4096-byte page. Smaller page sizes do not get that guarantee.
const (
	MinPageSize  = 512
	MaxPageSize  = 65536
	MaxKeySize   = 1000
	maxValueSize = 3000
)

const nodeHeader = 4 // type(2B) + nkeys(2B)

// BNode is one on-disk/in-memory page of the B-tree, laid out as:
//
//	| type | nkeys | pointers   | offsets    | key-values | unused |
//	| 2B   | 2B    | nkeys × 8B | nkeys × 2B |     ...    |        |
//
// and, per key-value cell:
//
//	| key_size | val_size | key | val |
//	|   2B     |   2B     | ... | ... |
type BNode []byte

func (n BNode) btype() uint16 {
	return binary.LittleEndian.Uint16(n[0:2])
}

func (n BNode) nkeys() uint16 {
	return binary.LittleEndian.Uint16(n[2:4])
}

func (n BNode) setHeader(btype, nkeys uint16) {
	binary.LittleEndian.PutUint16(n[0:2], btype)
	binary.LittleEndian.PutUint16(n[2:4], nkeys)
}

func (n BNode) getPtr(idx uint16) uint64 {
	pos := nodeHeader + 8*idx
	return binary.LittleEndian.Uint64(n[pos:])
}

func (n BNode) setPtr(idx uint16, val uint64) {
	pos := nodeHeader + 8*idx
	binary.LittleEndian.PutUint64(n[pos:], val)
}

func offsetPos(n BNode, idx uint16) uint16 {
	return nodeHeader + 8*n.nkeys() + 2*(idx-1)
}

func (n BNode) getOffset(idx uint16) uint16 {
	if idx == 0 {
		return 0
	}
	return binary.LittleEndian.Uint16(n[offsetPos(n, idx):])
}

func (n BNode) setOffset(idx, val uint16) {
	binary.LittleEndian.PutUint16(n[offsetPos(n, idx):], val)
}

func (n BNode) kvPos(idx uint16) uint16 {
	return nodeHeader + 8*n.nkeys() + 2*n.nkeys() + n.getOffset(idx)
}

func (n BNode) getKey(idx uint16) []byte {
	pos := n.kvPos(idx)
	klen := binary.LittleEndian.Uint16(n[pos:])
	return n[pos+4:][:klen]
}

func (n BNode) getVal(idx uint16) []byte {
	pos := n.kvPos(idx)
	klen := binary.LittleEndian.Uint16(n[pos+0:])
	vlen := binary.LittleEndian.Uint16(n[pos+2:])
	return n[pos+4+klen:][:vlen]
}

// nbytes is the size of the node's used portion: the offset of the
// one-past-the-last key doubles as the total payload length.
func (n BNode) nbytes() uint16 {
	return n.kvPos(n.nkeys())
}

func newNode(pageSize int) BNode {
	return BNode(make([]byte, pageSize))
}
