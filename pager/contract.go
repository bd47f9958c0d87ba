// Package pager implements the page-oriented B-tree collaborator that the
// storage core (package store) is layered on top of. store never reaches
// into this package's page format; it only ever talks to the Engine
// interface below, the "BTree adaptor" boundary of the storage core.
package pager

import "errors"

// JournalMode selects the durability mechanism for write transactions.
type JournalMode int

const (
	// JournalWAL appends committed pages to <path>-wal instead of writing
	// the main file directly; WALCheckpoint later folds WAL frames back
	// into the main file. It is the zero value and the spec's default.
	JournalWAL JournalMode = iota
	// JournalDelete is the classic rollback journal: a copy of every page a
	// write transaction is about to touch is saved to <path>-journal before
	// the main file is modified in place, and the journal is removed once
	// the commit has been written (and fsynced, unless SyncLevel is SyncOff).
	JournalDelete
)

// SyncLevel controls how aggressively fsync is called around commits.
type SyncLevel int

const (
	SyncOff SyncLevel = iota
	SyncNormal
	SyncFull
)

// CheckpointMode selects how aggressively WALCheckpoint folds WAL frames
// back into the main file.
type CheckpointMode int

const (
	CheckpointPassive CheckpointMode = iota
	CheckpointFull
	CheckpointRestart
	CheckpointTruncate
)

// Sentinel errors the store package translates into its own Status values.
var (
	ErrBusy          = errors.New("pager: busy")
	ErrCorrupt       = errors.New("pager: corrupt")
	ErrReadOnly      = errors.New("pager: read-only")
	ErrNoTransaction = errors.New("pager: no write transaction open")
	ErrTableNotFound = errors.New("pager: table not found")
)

// Options configure a newly opened Engine.
type Options struct {
	PageSize      int // power of two in [MinPageSize, MaxPageSize]; new files only
	CacheSize     int // advisory page cache budget, informational only here
	SyncLevel     SyncLevel
	JournalMode   JournalMode
	ReadOnly      bool
	BusyTimeoutMs int
}

// Cursor walks one table's keyspace in order: seek, advance, read, and
// (on a write cursor) mutate in place.
type Cursor interface {
	// SeekFirst positions at the first key of the table.
	SeekFirst()
	// Seek positions at the first key >= key.
	Seek(key []byte)
	// Next advances one key.
	Next()
	// Eof reports whether the cursor has run past the last key.
	Eof() bool
	// Key returns the current key. Valid only when !Eof().
	Key() []byte
	// Value returns the current value. Valid only when !Eof().
	Value() []byte
	// Get is a direct point lookup, independent of cursor position.
	Get(key []byte) ([]byte, bool)
	// Insert inserts or replaces key/val. Write cursors only.
	Insert(key, val []byte) error
	// Delete removes key, reporting whether it was present. Write cursors only.
	Delete(key []byte) (bool, error)
	// Close releases the cursor. Safe to call multiple times.
	Close()
}

// Snapshot is a read-only view of the database as of the moment it was
// opened; it is the collaborator-side realization of begin_read.
type Snapshot interface {
	// OpenCursor opens a read cursor over the table rooted at root.
	OpenCursor(root uint64) Cursor
	// TableRoot returns the current root pointer for a table id, as of this
	// snapshot.
	TableRoot(id uint32) uint64
	// MasterRoot returns the root of the always-present master table (id 0).
	MasterRoot() uint64
	// Close ends the read transaction, releasing its pin on the freelist.
	Close()
}

// WriteTxn is a single write transaction; it is the collaborator-side
// realization of begin_write/commit/rollback.
type WriteTxn interface {
	// OpenCursor opens a write cursor over the table rooted at the given
	// table id (not a raw page pointer: writes must update the table's
	// root as the tree mutates, which only the engine's own directory
	// bookkeeping can do correctly).
	OpenCursor(tableID uint32) Cursor
	// CreateTable allocates a new, empty table and returns its id.
	CreateTable() (uint32, error)
	// DropTable frees every page reachable from the table's current root
	// and removes it from the directory.
	DropTable(id uint32) error
	// TableRoot returns the table's root pointer as of the current state
	// of this transaction (reflecting any writes already done in it).
	TableRoot(id uint32) uint64
	// Commit durably applies every change made through this transaction.
	Commit() error
	// Rollback discards every change made through this transaction.
	Rollback()
}

// Engine is the full collaborator contract the storage core is layered on.
type Engine interface {
	// BeginRead opens a new read snapshot.
	BeginRead() Snapshot
	// BeginWrite opens the single write transaction slot, or returns
	// ErrBusy immediately if one is already open (the caller — the
	// transaction coordinator — is responsible for busy/backoff retry).
	BeginWrite() (WriteTxn, error)
	// IncrementalVacuum steps the freelist, releasing up to n trailing
	// pages back to the filesystem. n == 0 means "as many as possible".
	IncrementalVacuum(n int) (int, error)
	// WALCheckpoint runs a checkpoint in the given mode. On a non-WAL
	// database this is a documented no-op.
	WALCheckpoint(mode CheckpointMode) (walFrames int, checkpointed int, err error)
	// IntegrityCheck walks every table in the current directory and
	// verifies per-node invariants.
	IntegrityCheck() (ok bool, detail string)
	// JournalMode reports the mode the database is actually running with.
	JournalMode() JournalMode
	// Close flushes and releases the underlying file.
	Close() error
}
