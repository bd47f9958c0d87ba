package pager

import (
	"encoding/binary"
	"fmt"
)

// superSig identifies an SNKV database file. Page size is recorded right
// after it so an existing file's page size can be discovered on reopen
// rather than assumed.
const superSig = "SNKV-CORE-FILE-1"

// Page 0 is always the super header:
//
//	| sig(16B) | pageSize(4B) | flushed(8B) | freeHead(8B) | dirRoot(8B) | version(8B) | nextTable(4B) |
const superHeaderSize = 16 + 4 + 8 + 8 + 8 + 8 + 4

type superHeader struct {
	pageSize   int
	flushed    uint64 // written as 0 and not read back; the page count is derived from the file size on open
	freeHead   uint64 // head page of the persisted freelist chain, 0 if empty
	dirRoot    uint64 // head page of the persisted table-directory chain
	version    uint64 // monotonic commit counter
	nextTable  uint32 // next table id CreateTable will hand out (0 reserved for master)
}

func encodeSuper(h superHeader, pageSize int) []byte {
	buf := make([]byte, pageSize)
	copy(buf[0:16], superSig)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.pageSize))
	binary.LittleEndian.PutUint64(buf[20:28], h.flushed)
	binary.LittleEndian.PutUint64(buf[28:36], h.freeHead)
	binary.LittleEndian.PutUint64(buf[36:44], h.dirRoot)
	binary.LittleEndian.PutUint64(buf[44:52], h.version)
	binary.LittleEndian.PutUint32(buf[52:56], h.nextTable)
	return buf
}

func decodeSuper(buf []byte) (superHeader, error) {
	var h superHeader
	if len(buf) < superHeaderSize || string(buf[0:16]) != superSig {
		return h, fmt.Errorf("%w: bad super header", ErrCorrupt)
	}
	h.pageSize = int(binary.LittleEndian.Uint32(buf[16:20]))
	h.flushed = binary.LittleEndian.Uint64(buf[20:28])
	h.freeHead = binary.LittleEndian.Uint64(buf[28:36])
	h.dirRoot = binary.LittleEndian.Uint64(buf[36:44])
	h.version = binary.LittleEndian.Uint64(buf[44:52])
	h.nextTable = binary.LittleEndian.Uint32(buf[52:56])
	return h, nil
}

// --- table directory -------------------------------------------------------
//
// The directory maps small table ids (table 0 is always the master CF) to
// their current B-tree root pointer. Because there are at most a few hundred
// tables (64 user CFs plus a TTL pair each, plus the master and default
// CFs), the whole directory is kept as one chain of flat pages rather than
// as a B-tree of its own.
//
// Directory page:
//	| type=4(2B) | count(2B) | next(8B) | count * (tableID(4B) + root(8B)) |
const dirPageHeader = 2 + 2 + 8
const dirEntrySize = 4 + 8
const bnodeDirPage = 4

type directory map[uint32]uint64

func decodeDirectory(pp *pagePool, root uint64) (directory, error) {
	dir := directory{}
	for ptr := root; ptr != 0; {
		page, err := pp.readPage(ptr)
		if err != nil {
			return nil, err
		}
		if binary.LittleEndian.Uint16(page[0:2]) != bnodeDirPage {
			return nil, fmt.Errorf("%w: bad directory page", ErrCorrupt)
		}
		count := binary.LittleEndian.Uint16(page[2:4])
		next := binary.LittleEndian.Uint64(page[4:12])
		for i := uint16(0); i < count; i++ {
			off := dirPageHeader + int(i)*dirEntrySize
			id := binary.LittleEndian.Uint32(page[off:])
			rootPtr := binary.LittleEndian.Uint64(page[off+4:])
			dir[id] = rootPtr
		}
		ptr = next
	}
	return dir, nil
}

// encodeDirectory serializes dir into a chain of fresh pages, allocated via
// alloc (the caller's page-allocation callback for the in-flight commit).
// It returns the new chain's head pointer and the full list of newly
// written pages (ptr, data) for the caller to persist.
func encodeDirectory(dir directory, pageSize int, alloc func() uint64) (uint64, map[uint64][]byte) {
	ids := make([]uint32, 0, len(dir))
	for id := range dir {
		ids = append(ids, id)
	}
	// deterministic ascending order: the same directory always encodes to
	// the same page contents.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	perPage := (pageSize - dirPageHeader) / dirEntrySize
	if perPage < 1 {
		perPage = 1
	}
	pages := map[uint64][]byte{}
	var head uint64
	var prev []byte
	var prevPtr uint64
	for i := 0; i < len(ids); i += perPage {
		end := i + perPage
		if end > len(ids) {
			end = len(ids)
		}
		page := make([]byte, pageSize)
		binary.LittleEndian.PutUint16(page[0:2], bnodeDirPage)
		binary.LittleEndian.PutUint16(page[2:4], uint16(end-i))
		for k, id := range ids[i:end] {
			off := dirPageHeader + k*dirEntrySize
			binary.LittleEndian.PutUint32(page[off:], id)
			binary.LittleEndian.PutUint64(page[off+4:], dir[id])
		}
		ptr := alloc()
		pages[ptr] = page
		if prev == nil {
			head = ptr
		} else {
			binary.LittleEndian.PutUint64(prev[4:12], ptr)
			pages[prevPtr] = prev
		}
		prev = page
		prevPtr = ptr
	}
	if len(ids) == 0 {
		ptr := alloc()
		page := make([]byte, pageSize)
		binary.LittleEndian.PutUint16(page[0:2], bnodeDirPage)
		pages[ptr] = page
		head = ptr
	}
	return head, pages
}

// --- freelist ---------------------------------------------------------------
//
// Persisted as a flat chain of pages. Version-tagged reuse bookkeeping is
// kept purely in memory for the lifetime of one open Engine — see
// pagepool.go.
//
//	| type=3(2B) | count(2B) | next(8B) | count * ptr(8B) |
const freePageHeader = 2 + 2 + 8
const bnodeFreePage = 3

func decodeFreeChain(pp *pagePool, head uint64) ([]uint64, error) {
	var ptrs []uint64
	for ptr := head; ptr != 0; {
		page, err := pp.readPage(ptr)
		if err != nil {
			return nil, err
		}
		if binary.LittleEndian.Uint16(page[0:2]) != bnodeFreePage {
			return nil, fmt.Errorf("%w: bad freelist page", ErrCorrupt)
		}
		count := binary.LittleEndian.Uint16(page[2:4])
		next := binary.LittleEndian.Uint64(page[4:12])
		for i := uint16(0); i < count; i++ {
			off := freePageHeader + int(i)*8
			ptrs = append(ptrs, binary.LittleEndian.Uint64(page[off:]))
		}
		ptr = next
	}
	return ptrs, nil
}

func encodeFreeChain(ptrs []uint64, pageSize int, alloc func() uint64) (uint64, map[uint64][]byte) {
	perPage := (pageSize - freePageHeader) / 8
	if perPage < 1 {
		perPage = 1
	}
	pages := map[uint64][]byte{}
	if len(ptrs) == 0 {
		ptr := alloc()
		page := make([]byte, pageSize)
		binary.LittleEndian.PutUint16(page[0:2], bnodeFreePage)
		pages[ptr] = page
		return ptr, pages
	}
	var head uint64
	var prev []byte
	var prevPtr uint64
	for i := 0; i < len(ptrs); i += perPage {
		end := i + perPage
		if end > len(ptrs) {
			end = len(ptrs)
		}
		page := make([]byte, pageSize)
		binary.LittleEndian.PutUint16(page[0:2], bnodeFreePage)
		binary.LittleEndian.PutUint16(page[2:4], uint16(end-i))
		for k, p := range ptrs[i:end] {
			off := freePageHeader + k*8
			binary.LittleEndian.PutUint64(page[off:], p)
		}
		ptr := alloc()
		pages[ptr] = page
		if prev == nil {
			head = ptr
		} else {
			binary.LittleEndian.PutUint64(prev[4:12], ptr)
			pages[prevPtr] = prev
		}
		prev = page
		prevPtr = ptr
	}
	return head, pages
}
