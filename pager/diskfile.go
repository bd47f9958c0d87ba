package pager

import (
	"fmt"
	"os"
	"sync"
)

// pageFile is the minimal random-access-file contract the page pool needs.
// Two implementations back it: osPageFile for on-disk databases, memPageFile
// for ":memory:" ones, so the engine runs entirely in RAM for tests without
// any file descriptor at all.
type pageFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Sync() error
	Size() (int64, error)
	Close() error
}

type osPageFile struct {
	fp *os.File
}

func openOSFile(path string, readOnly bool) (*osPageFile, error) {
	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	fp, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &osPageFile{fp: fp}, nil
}

func (f *osPageFile) ReadAt(p []byte, off int64) (int, error)  { return f.fp.ReadAt(p, off) }
func (f *osPageFile) WriteAt(p []byte, off int64) (int, error) { return f.fp.WriteAt(p, off) }
func (f *osPageFile) Truncate(size int64) error                { return f.fp.Truncate(size) }
func (f *osPageFile) Sync() error                              { return f.fp.Sync() }
func (f *osPageFile) Close() error                              { return f.fp.Close() }

func (f *osPageFile) Size() (int64, error) {
	fi, err := f.fp.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// memPageFile is a growable in-memory file for :memory: databases.
type memPageFile struct {
	mu   sync.Mutex
	data []byte
}

func newMemPageFile() *memPageFile { return &memPageFile{} }

func (f *memPageFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *memPageFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], p)
	return len(p), nil
}

func (f *memPageFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (f *memPageFile) Sync() error { return nil }
func (f *memPageFile) Close() error { return nil }

func (f *memPageFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}
