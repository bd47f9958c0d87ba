package pager

import (
	"encoding/binary"
	"os"
)

// walWriter implements JournalWAL: committed pages are appended as frames to
// <path>-wal instead of touching the main file, so readers already holding
// a Snapshot keep seeing the pre-commit main file undisturbed. WALCheckpoint
// later folds frames back into the main file.
//
// Frame format, repeated, no header (the main file's super header already
// carries pageSize):
//
//	| ptr(8B) | version(8B) | page data |
const walFrameHeader = 8 + 8

func walPath(dbPath string) string { return dbPath + "-wal" }

type walWriter struct {
	path     string
	pageSize int
	fp       *os.File
}

func openWAL(path string, pageSize int) (*walWriter, error) {
	fp, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &walWriter{path: path, pageSize: pageSize, fp: fp}, nil
}

// appendCommit writes every staged page as one frame each, in a stable
// order, then fsyncs — the moment of durability for a WAL-mode commit.
func (w *walWriter) appendCommit(pp *pagePool, version uint64) error {
	if len(pp.staged) == 0 {
		return nil
	}
	ptrs := make([]uint64, 0, len(pp.staged))
	for ptr := range pp.staged {
		ptrs = append(ptrs, ptr)
	}
	for i := 1; i < len(ptrs); i++ {
		for j := i; j > 0 && ptrs[j-1] > ptrs[j]; j-- {
			ptrs[j-1], ptrs[j] = ptrs[j], ptrs[j-1]
		}
	}
	frame := make([]byte, walFrameHeader+w.pageSize)
	for _, ptr := range ptrs {
		binary.LittleEndian.PutUint64(frame[0:8], ptr)
		binary.LittleEndian.PutUint64(frame[8:16], version)
		copy(frame[walFrameHeader:], pp.staged[ptr])
		if _, err := w.fp.Write(frame); err != nil {
			return err
		}
	}
	return w.fp.Sync()
}

// frames reads every frame currently in the WAL file, in append order.
func (w *walWriter) frames() ([]uint64, map[uint64][]byte, error) {
	fi, err := w.fp.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := fi.Size()
	frameSize := int64(walFrameHeader + w.pageSize)
	n := size / frameSize
	order := make([]uint64, 0, n)
	latest := map[uint64][]byte{}
	buf := make([]byte, walFrameHeader+w.pageSize)
	for i := int64(0); i < n; i++ {
		if _, err := w.fp.ReadAt(buf, i*frameSize); err != nil {
			return nil, nil, err
		}
		ptr := binary.LittleEndian.Uint64(buf[0:8])
		data := make([]byte, w.pageSize)
		copy(data, buf[walFrameHeader:])
		if _, seen := latest[ptr]; !seen {
			order = append(order, ptr)
		}
		latest[ptr] = data
	}
	return order, latest, nil
}

// checkpoint folds every frame back into the main file via the page pool,
// then truncates the WAL according to mode. Passive and Full both fold
// everything back in this single-writer design (there is no concurrent
// writer to make "as much as possible without blocking" meaningfully
// partial); Restart and Truncate additionally reset the WAL file itself.
func (w *walWriter) checkpoint(pp *pagePool, mode CheckpointMode) (frames int, checkpointed int, err error) {
	order, latest, err := w.frames()
	if err != nil {
		return 0, 0, err
	}
	frames = len(order)
	if frames == 0 {
		return 0, 0, nil
	}
	maxPtr := pp.physFlushed
	for _, ptr := range order {
		if ptr+1 > maxPtr {
			maxPtr = ptr + 1
		}
	}
	if maxPtr > pp.physFlushed {
		if err := pp.file.Truncate(int64(maxPtr) * int64(pp.pageSize)); err != nil {
			return frames, 0, err
		}
	}
	for _, ptr := range order {
		if _, err := pp.file.WriteAt(latest[ptr], int64(ptr)*int64(pp.pageSize)); err != nil {
			return frames, checkpointed, err
		}
		checkpointed++
		delete(pp.walCache, ptr)
	}
	pp.physFlushed = maxPtr
	if pp.flushed < maxPtr {
		pp.flushed = maxPtr
	}
	if err := pp.file.Sync(); err != nil {
		return frames, checkpointed, err
	}
	switch mode {
	case CheckpointRestart, CheckpointTruncate:
		if err := w.fp.Truncate(0); err != nil {
			return frames, checkpointed, err
		}
		if _, err := w.fp.Seek(0, 0); err != nil {
			return frames, checkpointed, err
		}
	}
	return frames, checkpointed, nil
}

func (w *walWriter) close() error { return w.fp.Close() }
