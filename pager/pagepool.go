package pager

import (
	"fmt"
)

// freeEntry is a page made available for reuse, tagged with the commit
// version that freed it. A page is only handed back out once no live
// snapshot could still be reading the pre-free contents.
type freeEntry struct {
	ptr     uint64
	freedAt uint64
}

// pagePool owns the single underlying file and the bookkeeping needed to
// hand out page pointers to B-trees: flushed page count, the free list, and
// (during a write transaction) a staging area of pages written but not yet
// fsynced to their final home.
type pagePool struct {
	file     pageFile
	pageSize int

	// flushed is the logical page count: every pointer below it has been
	// committed, whether or not it has reached the main file yet. In
	// JournalDelete mode it always equals physFlushed; in JournalWAL mode it
	// can run ahead while committed pages still live only in walCache.
	flushed     uint64
	physFlushed uint64 // pages actually durable in the main file, including page 0
	free        []freeEntry

	// staged holds pages allocated or modified by the in-flight write
	// transaction, keyed by pointer, not yet durable. Reads during the same
	// transaction must check here first so a tree sees its own writes.
	staged map[uint64][]byte
	freed  map[uint64]bool // committed pages freePage()d during the in-flight transaction

	// walCache holds committed-but-not-yet-checkpointed pages in WAL mode,
	// mirroring what appendCommit persisted to the -wal file, so reads in
	// the same process don't need to re-parse that file.
	walCache map[uint64][]byte

	minReaderVersion func() uint64 // lowest version any open Snapshot still needs
	version          uint64        // version of the last commit; the in-flight write transaction commits as version+1
}

func (pp *pagePool) readPage(ptr uint64) ([]byte, error) {
	if pp.staged != nil {
		if data, ok := pp.staged[ptr]; ok {
			return data, nil
		}
	}
	if data, ok := pp.walCache[ptr]; ok {
		return data, nil
	}
	if ptr == 0 || ptr >= pp.physFlushed {
		return nil, fmt.Errorf("%w: page %d out of range", ErrCorrupt, ptr)
	}
	buf := make([]byte, pp.pageSize)
	_, err := pp.file.ReadAt(buf, int64(ptr)*int64(pp.pageSize))
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", ptr, err)
	}
	return buf, nil
}

// allocPage stages data under a fresh or reused pointer and returns it. Only
// valid while a write transaction is in flight (pp.staged != nil).
func (pp *pagePool) allocPage(data []byte) uint64 {
	ptr := pp.takeFreePage()
	if ptr == 0 {
		ptr = pp.nextNewPointer()
	}
	buf := make([]byte, pp.pageSize)
	copy(buf, data)
	pp.staged[ptr] = buf
	return ptr
}

// nextNewPointer hands out the next never-committed page number: the
// current flushed count plus however many brand-new (not-yet-flushed,
// not-reused) pages are already staged in this transaction.
func (pp *pagePool) nextNewPointer() uint64 {
	ptr := pp.flushed
	for {
		if _, taken := pp.staged[ptr]; !taken {
			return ptr
		}
		ptr++
	}
}

// takeFreePage pops a reusable page whose freedAt precedes every still-open
// snapshot's version, or 0 if none qualifies (callers then grow the file).
func (pp *pagePool) takeFreePage() uint64 {
	if len(pp.free) == 0 {
		return 0
	}
	minVer := uint64(0)
	if pp.minReaderVersion != nil {
		minVer = pp.minReaderVersion()
	}
	for i, e := range pp.free {
		if e.freedAt < minVer {
			pp.free = append(pp.free[:i], pp.free[i+1:]...)
			return e.ptr
		}
	}
	return 0
}

// freePage marks ptr as released by the in-flight transaction. It is not
// reusable until this transaction's version is no longer needed by any
// open snapshot. A page this transaction allocated fresh (at or past
// flushed) was never committed, so its number is simply dropped from the
// staging area and nextNewPointer may hand it out again.
func (pp *pagePool) freePage(ptr uint64) {
	if _, staged := pp.staged[ptr]; staged && ptr >= pp.flushed {
		delete(pp.staged, ptr)
		return
	}
	if pp.freed == nil {
		pp.freed = map[uint64]bool{}
	}
	pp.freed[ptr] = true
	delete(pp.staged, ptr)
}

// beginWrite opens the staging area for a new write transaction.
func (pp *pagePool) beginWrite() {
	pp.staged = map[uint64][]byte{}
	pp.freed = map[uint64]bool{}
}

// abortWrite discards every staged change.
func (pp *pagePool) abortWrite() {
	pp.staged = nil
	pp.freed = nil
}

// commitWrite flushes every staged page to the main file (growing it as
// needed), appends freed pages to the free list tagged with this commit's
// version, advances flushed/physFlushed/version, and clears the staging
// area. It does not sync; the caller (journal path) controls fsync
// ordering around it.
func (pp *pagePool) commitWrite() error {
	maxPtr := pp.flushed
	for ptr := range pp.staged {
		if ptr+1 > maxPtr {
			maxPtr = ptr + 1
		}
	}
	if maxPtr > pp.physFlushed {
		if err := pp.file.Truncate(int64(maxPtr) * int64(pp.pageSize)); err != nil {
			return err
		}
	}
	for ptr, data := range pp.staged {
		if _, err := pp.file.WriteAt(data, int64(ptr)*int64(pp.pageSize)); err != nil {
			return fmt.Errorf("write page %d: %w", ptr, err)
		}
	}
	pp.flushed = maxPtr
	pp.physFlushed = maxPtr
	pp.finishCommitVersion()
	return nil
}

// commitWriteToCache is the WAL-mode counterpart of commitWrite: staged
// pages are merged into walCache instead of written to the main file, and
// flushed advances while physFlushed does not, until a checkpoint runs.
func (pp *pagePool) commitWriteToCache() {
	maxPtr := pp.flushed
	for ptr := range pp.staged {
		if ptr+1 > maxPtr {
			maxPtr = ptr + 1
		}
	}
	if pp.walCache == nil {
		pp.walCache = map[uint64][]byte{}
	}
	for ptr, data := range pp.staged {
		pp.walCache[ptr] = data
	}
	pp.flushed = maxPtr
	pp.finishCommitVersion()
}

func (pp *pagePool) finishCommitVersion() {
	pp.version++
	for ptr := range pp.freed {
		pp.free = append(pp.free, freeEntry{ptr: ptr, freedAt: pp.version})
		delete(pp.walCache, ptr)
	}
	pp.staged = nil
	pp.freed = nil
}

func (pp *pagePool) sync() error { return pp.file.Sync() }
