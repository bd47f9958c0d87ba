package pager

import (
	"encoding/binary"
	"fmt"
	"os"
)

// journalWriter implements the classic rollback journal (JournalDelete):
// before a write transaction's pages are written to the main file, their
// pre-image is appended to <path>-journal. If the process dies mid-commit,
// reopening the database replays the journal to undo the partial write;
// once a commit has been written to the main file (and fsynced, unless the
// sync level is SyncOff), the journal file is removed.
//
// Frame format, repeated:
//
//	| ptr(8B) | pageSize bytes of pre-image |
//
// preceded by a one-time header: | "SNKVJRNL"(8B) | pageSize(4B) | nframes(4B) |
const journalMagic = "SNKVJRNL"

func journalPath(dbPath string) string { return dbPath + "-journal" }

// writeJournal captures the pre-commit image of every page about to be
// overwritten (anything in staged that already exists on disk) and fsyncs
// it before the caller proceeds to modify the main file.
func writeJournal(path string, pp *pagePool) error {
	preimages := map[uint64][]byte{}
	for ptr := range pp.staged {
		if ptr >= pp.physFlushed {
			continue // brand-new page, nothing to roll back to
		}
		old, err := pp.readPageFromDisk(ptr)
		if err != nil {
			return err
		}
		preimages[ptr] = old
	}
	if len(preimages) == 0 {
		return nil
	}
	fp, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer fp.Close()
	hdr := make([]byte, 16)
	copy(hdr[0:8], journalMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(pp.pageSize))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(preimages)))
	if _, err := fp.Write(hdr); err != nil {
		return err
	}
	for ptr, data := range preimages {
		frame := make([]byte, 8+pp.pageSize)
		binary.LittleEndian.PutUint64(frame[0:8], ptr)
		copy(frame[8:], data)
		if _, err := fp.Write(frame); err != nil {
			return err
		}
	}
	return fp.Sync()
}

func removeJournal(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// replayJournal restores every page recorded in an abandoned journal, used
// on Open to recover from a crash between writeJournal and removeJournal.
func replayJournal(path string, file pageFile) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) < 16 || string(data[0:8]) != journalMagic {
		return nil // truncated/corrupt journal header: nothing trustworthy to replay
	}
	pageSize := int(binary.LittleEndian.Uint32(data[8:12]))
	nframes := int(binary.LittleEndian.Uint32(data[12:16]))
	off := 16
	frameSize := 8 + pageSize
	for i := 0; i < nframes; i++ {
		if off+frameSize > len(data) {
			break // journal itself was cut short; best-effort recovery
		}
		ptr := binary.LittleEndian.Uint64(data[off : off+8])
		page := data[off+8 : off+frameSize]
		if _, err := file.WriteAt(page, int64(ptr)*int64(pageSize)); err != nil {
			return err
		}
		off += frameSize
	}
	if err := file.Sync(); err != nil {
		return err
	}
	return os.Remove(path)
}

// readPageFromDisk bypasses the staging overlay, used only while building a
// journal pre-image (we need what's durable now, not what this txn staged).
func (pp *pagePool) readPageFromDisk(ptr uint64) ([]byte, error) {
	buf := make([]byte, pp.pageSize)
	if _, err := pp.file.ReadAt(buf, int64(ptr)*int64(pp.pageSize)); err != nil {
		return nil, fmt.Errorf("read page %d: %w", ptr, err)
	}
	return buf, nil
}
