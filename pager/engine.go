package pager

import (
	"fmt"
	"sync"
)

// MasterTableID is the table id of the always-present master column family,
// whose own keyspace (reserved for internal bookkeeping the store package
// may need, e.g. schema metadata) bootstraps before any user table exists.
const MasterTableID = 0

// fileEngine is the concrete Engine backing one open database file (or one
// in-memory instance). It owns the single page pool, the in-memory table
// directory, and — in WAL mode — the on-disk WAL writer.
type fileEngine struct {
	mu sync.Mutex

	path string
	opts Options

	pool    *pagePool
	dir     directory
	readers *readerSet

	journalMode JournalMode
	journalFile string
	wal         *walWriter
	inMemory    bool // true for ":memory:"/"" — never touches the filesystem, including the rollback journal

	superTemplate superHeader // last-known super header fields besides dirRoot/freeHead/version
	writeOpen     bool
}

// Open creates or opens a database file at path (":memory:" for a purely
// in-memory instance) with the given options.
func Open(path string, opts Options) (Engine, error) {
	if opts.PageSize == 0 {
		opts.PageSize = 4096
	}
	if opts.PageSize < MinPageSize || opts.PageSize > MaxPageSize {
		return nil, fmt.Errorf("pager: page size %d out of range", opts.PageSize)
	}

	var pf pageFile
	var err error
	inMemory := path == "" || path == ":memory:"
	if inMemory {
		pf = newMemPageFile()
	} else {
		pf, err = openOSFile(path, opts.ReadOnly)
		if err != nil {
			return nil, err
		}
		if !opts.ReadOnly {
			if err := replayJournal(journalPath(path), pf); err != nil {
				return nil, fmt.Errorf("pager: journal replay: %w", err)
			}
		}
	}

	size, err := pf.Size()
	if err != nil {
		return nil, err
	}

	e := &fileEngine{
		path:        path,
		opts:        opts,
		journalMode: opts.JournalMode,
		journalFile: journalPath(path),
		inMemory:    inMemory,
		readers:     newReaderSet(),
	}
	e.pool = &pagePool{file: pf, pageSize: opts.PageSize}
	e.pool.minReaderVersion = func() uint64 { return e.readers.min(e.pool.version) }

	if !inMemory && opts.JournalMode == JournalWAL {
		e.wal, err = openWAL(walPath(path), opts.PageSize)
		if err != nil {
			return nil, err
		}
	}

	if size == 0 {
		if err := e.bootstrap(); err != nil {
			return nil, err
		}
	} else {
		if err := e.loadExisting(size); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// bootstrap initializes a brand-new database: super header, empty master
// table, empty directory and freelist, all in one implicit commit.
func (e *fileEngine) bootstrap() error {
	e.pool.physFlushed = 1
	e.pool.flushed = 1
	e.pool.beginWrite()

	e.dir = directory{MasterTableID: 0}
	alloc := e.reserveAlloc()
	dirRoot, dirPages := encodeDirectory(e.dir, e.pool.pageSize, alloc)
	for ptr, data := range dirPages {
		e.pool.staged[ptr] = data
	}
	freeRoot, freePages := encodeFreeChain(nil, e.pool.pageSize, alloc)
	for ptr, data := range freePages {
		e.pool.staged[ptr] = data
	}
	super := superHeader{pageSize: e.pool.pageSize, dirRoot: dirRoot, freeHead: freeRoot, nextTable: 1}
	e.pool.staged[0] = encodeSuper(super, e.pool.pageSize)
	e.superTemplate = super

	return e.pool.commitWrite()
}

// loadExisting opens an existing, non-empty database file.
func (e *fileEngine) loadExisting(size int64) error {
	buf := make([]byte, e.opts.PageSize)
	if _, err := e.pool.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("pager: read super header: %w", err)
	}
	super, err := decodeSuper(buf)
	if err != nil {
		return err
	}
	e.pool.pageSize = super.pageSize
	e.pool.physFlushed = uint64(size) / uint64(super.pageSize)
	e.pool.flushed = e.pool.physFlushed
	e.pool.version = super.version

	if e.wal != nil {
		if _, _, err := e.wal.checkpoint(e.pool, CheckpointFull); err != nil {
			return fmt.Errorf("pager: wal recovery checkpoint: %w", err)
		}
		// re-read the super header: the checkpoint may have just folded a
		// newer copy of page 0 back into the main file.
		if _, err := e.pool.file.ReadAt(buf, 0); err != nil {
			return err
		}
		super, err = decodeSuper(buf)
		if err != nil {
			return err
		}
		e.pool.version = super.version
	}

	dir, err := decodeDirectory(e.pool, super.dirRoot)
	if err != nil {
		return err
	}
	free, err := decodeFreeChain(e.pool, super.freeHead)
	if err != nil {
		return err
	}
	e.dir = dir
	for _, ptr := range free {
		e.pool.free = append(e.pool.free, freeEntry{ptr: ptr, freedAt: 0})
	}
	e.superTemplate = super
	return nil
}

func (e *fileEngine) reserveAlloc() func() uint64 {
	reserved := map[uint64]bool{}
	return func() uint64 {
		ptr := e.pool.takeFreePage()
		if ptr == 0 {
			ptr = e.pool.flushed
			for {
				if _, staged := e.pool.staged[ptr]; !staged && !reserved[ptr] {
					break
				}
				ptr++
			}
		}
		reserved[ptr] = true
		return ptr
	}
}

func (e *fileEngine) treeFor(root uint64, writable bool) *BTree {
	t := &BTree{root: root, pageSize: e.pool.pageSize}
	t.get = func(ptr uint64) BNode {
		data, err := e.pool.readPage(ptr)
		if err != nil {
			panic(err) // collaborator-internal invariant violation
		}
		return BNode(data)
	}
	if writable {
		t.new = func(n BNode) uint64 { return e.pool.allocPage(n) }
		t.del = func(ptr uint64) { e.pool.freePage(ptr) }
	}
	return t
}

// --- Engine ------------------------------------------------------------

func (e *fileEngine) BeginRead() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	version := e.pool.version
	e.readers.pin(version)
	dirCopy := directory{}
	for k, v := range e.dir {
		dirCopy[k] = v
	}
	return &snapshot{engine: e, version: version, dir: dirCopy}
}

func (e *fileEngine) BeginWrite() (WriteTxn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opts.ReadOnly {
		return nil, ErrReadOnly
	}
	if e.writeOpen {
		return nil, ErrBusy
	}
	e.writeOpen = true
	e.pool.beginWrite()
	dirCopy := directory{}
	for k, v := range e.dir {
		dirCopy[k] = v
	}
	return newWriteTxn(e, dirCopy), nil
}

func (e *fileEngine) IncrementalVacuum(n int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return incrementalVacuum(e.pool, n)
}

func (e *fileEngine) WALCheckpoint(mode CheckpointMode) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wal == nil {
		return 0, 0, nil
	}
	return e.wal.checkpoint(e.pool, mode)
}

func (e *fileEngine) IntegrityCheck() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return integrityCheck(e.pool, e.dir)
}

func (e *fileEngine) JournalMode() JournalMode { return e.journalMode }

func (e *fileEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wal != nil {
		if err := e.wal.close(); err != nil {
			return err
		}
	}
	return e.pool.file.Close()
}
