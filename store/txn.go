package store

import (
	"errors"
	"time"

	"govetachun/snkv/pager"
)

const (
	backoffMin = 10 * time.Millisecond
	backoffMax = 100 * time.Millisecond
)

// Txn is an explicit transaction handle returned by (*Store).Begin. Every
// bare Store/CF method (Put, Get, ...) that is not called through a Txn runs
// its own single-operation implicit transaction instead; a bare call made
// while an explicit write Txn is open on the same Store runs inside that
// Txn rather than opening a second one.
type Txn struct {
	store   *Store
	write   bool
	wtx     pager.WriteTxn
	snap    pager.Snapshot
	aborted bool
	done    bool

	ttlDelta int64 // net change to the active-TTL counter, applied on Commit, discarded on Rollback
}

// Begin starts an explicit transaction. A second Begin(true) while one
// explicit write transaction is already open on this Store returns
// StatusError immediately, without retrying. Bare (non-Txn) calls never hit
// this path; they busy-retry against the pager's own write-slot exclusivity
// instead, unless an explicit write Txn is already open, in which case they
// run inside it.
func (s *Store) Begin(write bool) (*Txn, error) {
	s.mu.Lock()
	if s.fatal {
		s.mu.Unlock()
		return nil, newErr(StatusCorrupt, "store unusable after corruption", nil)
	}
	if write && s.curWrite != nil {
		s.mu.Unlock()
		return nil, newErr(StatusError, "write transaction already in progress", nil)
	}
	s.mu.Unlock()

	if !write {
		return &Txn{store: s, write: false, snap: s.engine.BeginRead()}, nil
	}

	wtx, err := s.beginWriteWithRetry()
	if err != nil {
		return nil, err
	}
	t := &Txn{store: s, write: true, wtx: wtx}
	s.mu.Lock()
	s.curWrite = t
	s.mu.Unlock()
	return t, nil
}

// beginWriteWithRetry loops acquiring the pager's single write slot,
// backing off between 10ms and 100ms, until BusyTimeoutMs elapses.
func (s *Store) beginWriteWithRetry() (pager.WriteTxn, error) {
	deadline := time.Now().Add(time.Duration(s.cfg.BusyTimeoutMs) * time.Millisecond)
	backoff := backoffMin
	for {
		wtx, err := s.engine.BeginWrite()
		if err == nil {
			return wtx, nil
		}
		if !errors.Is(err, pager.ErrBusy) {
			return nil, translatePagerErr(err)
		}
		if time.Now().After(deadline) {
			s.log.Warn().Msg("busy timeout exceeded acquiring write transaction")
			return nil, newErr(StatusBusy, "timed out waiting for write transaction", err)
		}
		time.Sleep(backoff)
		if backoff < backoffMax {
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
	}
}

// writeCtx is the scratch state threaded through one write transaction —
// implicit (one doWrite call) or explicit (one Txn) — so operations that
// touch the active-TTL counter can stage their delta and have it applied
// atomically with the surrounding commit, never on a path that rolls back.
type writeCtx struct {
	wtx      pager.WriteTxn
	ttlDelta int64
}

// reader is a read view a KV operation can open a cursor against: either the
// store's persistent read snapshot, or — when an explicit write Txn is open
// on this Store — that transaction's own in-progress writes, so a bare read
// called while a write Txn is open observes its uncommitted changes.
type reader interface {
	cursor(tableID uint32) pager.Cursor
}

type snapReader struct{ snap pager.Snapshot }

func (r snapReader) cursor(tableID uint32) pager.Cursor {
	return r.snap.OpenCursor(r.snap.TableRoot(tableID))
}

type wtxReader struct{ wtx pager.WriteTxn }

func (r wtxReader) cursor(tableID uint32) pager.Cursor {
	return r.wtx.OpenCursor(tableID)
}

// doWrite runs fn as a single write operation. If an explicit write Txn is
// already open on this Store, fn runs inside it (via Txn.runWrite) and is
// committed only when the caller commits that Txn; otherwise fn runs as its
// own implicit, single-operation write transaction.
func (s *Store) doWrite(fn func(ctx *writeCtx) error) error {
	s.mu.Lock()
	if s.fatal {
		s.mu.Unlock()
		return newErr(StatusCorrupt, "store unusable after corruption", nil)
	}
	cur := s.curWrite
	s.mu.Unlock()

	if cur != nil {
		return cur.runWrite(fn)
	}

	wtx, err := s.beginWriteWithRetry()
	if err != nil {
		return err
	}
	ctx := &writeCtx{wtx: wtx}
	if err := fn(ctx); err != nil {
		wtx.Rollback()
		s.noteFailure(err)
		return err
	}
	s.applyTTLDelta(ctx.ttlDelta)
	if err := wtx.Commit(); err != nil {
		err = translatePagerErr(err)
		s.noteFailure(err)
		s.applyTTLDelta(-ctx.ttlDelta)
		return err
	}
	s.afterCommit()
	return nil
}

// doRead runs fn against a read view of the store: the persistent read
// snapshot for a bare call, or the currently open explicit write Txn's own
// cursors if one is open, so a bare (implicit) read incurs no begin/commit
// overhead and observes this connection's own in-progress write.
func (s *Store) doRead(fn func(r reader) error) error {
	s.mu.Lock()
	if s.fatal {
		s.mu.Unlock()
		return newErr(StatusCorrupt, "store unusable after corruption", nil)
	}
	cur := s.curWrite
	snap := s.persistentRead
	s.mu.Unlock()

	var err error
	if cur != nil {
		if cur.done {
			err = newErr(StatusError, "transaction already closed", nil)
		} else if cur.aborted {
			err = newErr(StatusError, "transaction aborted by a prior error", nil)
		} else {
			err = fn(wtxReader{wtx: cur.wtx})
		}
	} else {
		err = fn(snapReader{snap: snap})
	}
	if err != nil {
		s.noteFailure(err)
		return err
	}
	return nil
}

// Commit applies every change made through t. For a write Txn, a StatusCorrupt
// from the pager marks the whole Store unusable.
func (t *Txn) Commit() error {
	if t.done {
		return newErr(StatusError, "transaction already closed", nil)
	}
	t.done = true
	if !t.write {
		t.snap.Close()
		return nil
	}
	defer func() {
		t.store.mu.Lock()
		t.store.curWrite = nil
		t.store.mu.Unlock()
	}()
	if t.aborted {
		t.wtx.Rollback()
		return newErr(StatusError, "transaction aborted by a prior error, rolled back", nil)
	}
	t.store.applyTTLDelta(t.ttlDelta)
	if err := t.wtx.Commit(); err != nil {
		err = translatePagerErr(err)
		t.store.noteFailure(err)
		return err
	}
	t.store.mu.Lock()
	t.store.curWrite = nil
	t.store.mu.Unlock()
	t.store.afterCommit()
	return nil
}

// Rollback discards every change made through t.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	if !t.write {
		t.snap.Close()
		return
	}
	t.wtx.Rollback()
	t.store.mu.Lock()
	t.store.curWrite = nil
	t.store.mu.Unlock()
}

// runWrite runs fn against this explicit write transaction, accumulating
// any TTL-counter delta it stages into the transaction's total (applied at
// Commit, discarded at Rollback).
func (t *Txn) runWrite(fn func(ctx *writeCtx) error) error {
	if t.done {
		return newErr(StatusError, "transaction already closed", nil)
	}
	if !t.write {
		return newErr(StatusReadOnly, "read transaction cannot write", nil)
	}
	if t.aborted {
		return newErr(StatusError, "transaction aborted by a prior error", nil)
	}
	ctx := &writeCtx{wtx: t.wtx}
	if err := fn(ctx); err != nil {
		t.abort(err)
		return err
	}
	t.ttlDelta += ctx.ttlDelta
	return nil
}

// abort marks the transaction unusable after a corrupt/internal error,
// short-circuiting further operations until Rollback.
func (t *Txn) abort(err error) {
	t.aborted = true
	if StatusOf(err) == StatusCorrupt {
		t.store.mu.Lock()
		t.store.fatal = true
		t.store.mu.Unlock()
	}
}

// mustBeActive reports whether t is still eligible to carry out an
// operation: not yet committed/rolled back, and — for a write Txn — still
// the one write transaction currently open on its Store (a Txn handle kept
// around past its own Commit/Rollback must not silently operate on whatever
// transaction happens to be open now).
func (t *Txn) mustBeActive() error {
	if t.done {
		return newErr(StatusError, "transaction already closed", nil)
	}
	if t.write {
		t.store.mu.Lock()
		active := t.store.curWrite == t
		t.store.mu.Unlock()
		if !active {
			return newErr(StatusError, "transaction is no longer the open write transaction", nil)
		}
	}
	return nil
}

// Put is (*CF).Put against the default column family, scoped to this
// transaction: if t is an explicit write transaction the change is only
// visible to other operations on this Store once t.Commit() runs.
func (t *Txn) Put(key, val []byte) error {
	if err := t.mustBeActive(); err != nil {
		return err
	}
	return t.store.Default().Put(key, val)
}

// Get is (*CF).Get against the default column family, scoped to this
// transaction.
func (t *Txn) Get(key []byte) ([]byte, error) {
	if err := t.mustBeActive(); err != nil {
		return nil, err
	}
	return t.store.Default().Get(key)
}

// Delete is (*CF).Delete against the default column family, scoped to this
// transaction.
func (t *Txn) Delete(key []byte) error {
	if err := t.mustBeActive(); err != nil {
		return err
	}
	return t.store.Default().Delete(key)
}

// Exists is (*CF).Exists against the default column family, scoped to this
// transaction.
func (t *Txn) Exists(key []byte) (bool, error) {
	if err := t.mustBeActive(); err != nil {
		return false, err
	}
	return t.store.Default().Exists(key)
}

// PutTTL is (*CF).PutTTL against the default column family, scoped to this
// transaction.
func (t *Txn) PutTTL(key, val []byte, expireMs int64) error {
	if err := t.mustBeActive(); err != nil {
		return err
	}
	return t.store.Default().PutTTL(key, val, expireMs)
}

// GetTTL is (*CF).GetTTL against the default column family, scoped to this
// transaction.
func (t *Txn) GetTTL(key []byte) ([]byte, int64, error) {
	if err := t.mustBeActive(); err != nil {
		return nil, 0, err
	}
	return t.store.Default().GetTTL(key)
}

// TTLRemaining is (*CF).TTLRemaining against the default column family,
// scoped to this transaction.
func (t *Txn) TTLRemaining(key []byte) (int64, error) {
	if err := t.mustBeActive(); err != nil {
		return 0, err
	}
	return t.store.Default().TTLRemaining(key)
}

// PurgeExpired is (*CF).PurgeExpired against the default column family,
// scoped to this transaction.
func (t *Txn) PurgeExpired() (int, error) {
	if err := t.mustBeActive(); err != nil {
		return 0, err
	}
	return t.store.Default().PurgeExpired()
}

// CF opens an existing column family for use within this transaction: every
// operation called on the returned handle runs inside t the same way the
// default-CF methods above do.
func (t *Txn) CF(name string) (*CF, error) {
	if err := t.mustBeActive(); err != nil {
		return nil, err
	}
	return t.store.OpenCF(name)
}

func (s *Store) noteFailure(err error) {
	if StatusOf(err) == StatusCorrupt {
		s.mu.Lock()
		s.fatal = true
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("store marked unusable after corruption")
	}
	s.mu.Lock()
	s.stats.NErrors++
	s.mu.Unlock()
}

// afterCommit triggers a passive checkpoint once cfg.WALSizeLimit write
// transactions have committed since the last successful checkpoint.
func (s *Store) afterCommit() {
	s.mu.Lock()
	s.walFrames++
	due := s.cfg.JournalMode == JournalWAL && s.cfg.WALSizeLimit > 0 && s.walFrames >= s.cfg.WALSizeLimit
	s.mu.Unlock()
	s.renewPersistentRead()
	if !due {
		return
	}
	if _, _, err := s.Checkpoint(CheckpointPassive); err != nil {
		s.log.Warn().Err(err).Msg("auto-checkpoint failed")
	}
}

func translatePagerErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pager.ErrBusy):
		return newErr(StatusBusy, "pager busy", err)
	case errors.Is(err, pager.ErrCorrupt):
		return newErr(StatusCorrupt, "pager reported corruption", err)
	case errors.Is(err, pager.ErrReadOnly):
		return newErr(StatusReadOnly, "database is read-only", err)
	case errors.Is(err, pager.ErrTableNotFound):
		return newErr(StatusNotFound, "table not found", err)
	default:
		return newErr(StatusError, "pager error", err)
	}
}
