package store

import (
	"sync"

	"github.com/rs/zerolog"

	"govetachun/snkv/pager"
)

// Store is a single open database handle: one pager.Engine, one column
// family registry, one guard mutex over the handle's fields. The mutex is
// taken briefly around field access and is not held for the whole of a
// public call, so it does not serialize concurrent calls on one Store.
// The pager's own single-writer exclusivity arbitrates concurrent write
// transactions and surfaces StatusBusy.
type Store struct {
	mu sync.Mutex

	engine pager.Engine
	cfg    Config
	log    zerolog.Logger

	cfs       *cfRegistry
	curWrite  *Txn
	fatal     bool
	activeTTL int64 // number of keys currently carrying a live TTL, across all CFs
	walFrames int64

	// persistentRead is the standing read transaction kept open whenever no
	// write transaction is active, so bare (implicit) reads don't pay a
	// begin/commit per call. It is torn down and recreated around every
	// commit (to observe this connection's own writes) and around
	// Checkpoint.
	persistentRead pager.Snapshot
	openIterators  int64

	stats Stats
}

// Open creates or opens a database at path (":memory:" selects the pager's
// in-memory mode). The master column family and the always-present
// "default" CF are bootstrapped if this is a new file.
func Open(path string, cfg Config) (*Store, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	engine, err := pager.Open(path, cfg.toPagerOptions())
	if err != nil {
		return nil, translatePagerErr(err)
	}
	s := &Store{
		engine: engine,
		cfg:    cfg,
		log:    newLogger("store"),
	}
	s.persistentRead = s.engine.BeginRead()
	s.cfs = newCFRegistry(s)
	if err := s.cfs.bootstrap(); err != nil {
		s.persistentRead.Close()
		engine.Close()
		return nil, err
	}
	s.log.Info().Str("path", path).Msg("store opened")
	return s, nil
}

// Close releases the underlying file. Any explicit transaction still open
// on this handle is rolled back first.
func (s *Store) Close() error {
	s.mu.Lock()
	cur := s.curWrite
	s.mu.Unlock()
	if cur != nil {
		cur.Rollback()
	}
	s.mu.Lock()
	if s.persistentRead != nil {
		s.persistentRead.Close()
		s.persistentRead = nil
	}
	s.mu.Unlock()
	s.log.Info().Msg("store closed")
	return s.engine.Close()
}

// renewPersistentRead closes and reopens the standing read transaction so
// it observes this connection's own just-committed writes.
func (s *Store) renewPersistentRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistentRead != nil {
		s.persistentRead.Close()
	}
	s.persistentRead = s.engine.BeginRead()
}

func (s *Store) applyTTLDelta(delta int64) {
	if delta == 0 {
		return
	}
	s.mu.Lock()
	s.activeTTL += delta
	s.mu.Unlock()
}

// Stats returns a point-in-time snapshot of the store's counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.ActiveTTLKeys = s.activeTTL
	return st
}
