package pager

// snapshot is a read-only view of the database pinned at a specific commit
// version: pages freed after that version stay intact until the snapshot
// closes, via pool.minReaderVersion.
type snapshot struct {
	engine  *fileEngine
	version uint64
	dir     directory
	closed  bool
}

func (s *snapshot) OpenCursor(root uint64) Cursor {
	return newCursor(s.engine.treeFor(root, false), false, nil)
}

func (s *snapshot) TableRoot(id uint32) uint64 { return s.dir[id] }

func (s *snapshot) MasterRoot() uint64 { return s.dir[MasterTableID] }

func (s *snapshot) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.engine.readers.unpin(s.version)
}

// writeTxn is the single in-flight write transaction. trees caches one
// *BTree per table id touched so repeated OpenCursor calls (and the cursors
// they hand out) all mutate the same root, instead of each call starting
// from the table's pre-transaction root.
type writeTxn struct {
	engine    *fileEngine
	dir       directory
	trees     map[uint32]*BTree
	done      bool
	nextTable uint32 // local copy of the table-id counter, only published on Commit
}

func newWriteTxn(e *fileEngine, dir directory) *writeTxn {
	return &writeTxn{engine: e, dir: dir, trees: map[uint32]*BTree{}, nextTable: e.superTemplate.nextTable}
}

func (w *writeTxn) treeFor(id uint32) *BTree {
	if t, ok := w.trees[id]; ok {
		return t
	}
	t := w.engine.treeFor(w.dir[id], true)
	w.trees[id] = t
	return t
}

func (w *writeTxn) OpenCursor(tableID uint32) Cursor {
	t := w.treeFor(tableID)
	return newCursor(t, true, func() { w.dir[tableID] = t.Root() })
}

func (w *writeTxn) CreateTable() (uint32, error) {
	id := w.nextTable
	w.nextTable++
	w.dir[id] = 0
	return id, nil
}

func (w *writeTxn) DropTable(id uint32) error {
	if id == MasterTableID {
		return ErrTableNotFound
	}
	root, ok := w.dir[id]
	if !ok {
		return ErrTableNotFound
	}
	w.freeSubtree(root)
	delete(w.dir, id)
	delete(w.trees, id)
	return nil
}

func (w *writeTxn) freeSubtree(ptr uint64) {
	if ptr == 0 {
		return
	}
	data, err := w.engine.pool.readPage(ptr)
	if err != nil {
		return
	}
	node := BNode(data)
	if node.btype() == bnodeInternal {
		for i := uint16(0); i < node.nkeys(); i++ {
			w.freeSubtree(node.getPtr(i))
		}
	}
	w.engine.pool.freePage(ptr)
}

func (w *writeTxn) TableRoot(id uint32) uint64 {
	if t, ok := w.trees[id]; ok {
		return t.Root()
	}
	return w.dir[id]
}

func (w *writeTxn) Commit() error {
	if w.done {
		return ErrNoTransaction
	}
	w.done = true
	e := w.engine
	defer func() {
		e.mu.Lock()
		e.writeOpen = false
		e.mu.Unlock()
	}()

	for id, t := range w.trees {
		w.dir[id] = t.Root()
	}

	alloc := e.reserveAlloc()
	dirRoot, dirPages := encodeDirectory(w.dir, e.pool.pageSize, alloc)
	for ptr, data := range dirPages {
		e.pool.staged[ptr] = data
	}
	freePtrs := make([]uint64, len(e.pool.free))
	for i, f := range e.pool.free {
		freePtrs[i] = f.ptr
	}
	freeRoot, freePages := encodeFreeChain(freePtrs, e.pool.pageSize, alloc)
	for ptr, data := range freePages {
		e.pool.staged[ptr] = data
	}

	super := e.superTemplate
	super.pageSize = e.pool.pageSize
	super.dirRoot = dirRoot
	super.freeHead = freeRoot
	super.version = e.pool.version + 1
	super.nextTable = w.nextTable
	e.pool.staged[0] = encodeSuper(super, e.pool.pageSize)

	var err error
	if e.journalMode == JournalWAL && e.wal != nil {
		if err = e.wal.appendCommit(e.pool, super.version); err == nil {
			e.pool.commitWriteToCache()
		}
	} else {
		if e.inMemory {
			// no filesystem backing: nothing to journal or remove.
			err = e.pool.commitWrite()
		} else if err = writeJournal(e.journalFile, e.pool); err == nil {
			if err = e.pool.commitWrite(); err == nil {
				if e.opts.SyncLevel != SyncOff {
					err = e.pool.sync()
				}
				if err == nil {
					err = removeJournal(e.journalFile)
				}
			}
		}
	}
	if err != nil {
		e.pool.abortWrite()
		return err
	}

	e.dir = w.dir
	e.superTemplate = super
	return nil
}

func (w *writeTxn) Rollback() {
	if w.done {
		return
	}
	w.done = true
	e := w.engine
	e.pool.abortWrite()
	e.mu.Lock()
	e.writeOpen = false
	e.mu.Unlock()
}
