package store

import (
	"bytes"

	"govetachun/snkv/pager"
)

// iterState is the Iterator state machine.
type iterState int

const (
	iterUninitialized iterState = iota
	iterPositioned
	iterEOF
)

// Iterator is a forward-only cursor over one CF, bound to the store's
// persistent read snapshot, with optional prefix bounds and transparent
// TTL filtering. It borrows from the CF and the store and must be released
// (Close) before a write transaction that touches its CF commits.
type Iterator struct {
	store  *Store
	cf     *CF
	snap   pager.Snapshot
	cur    pager.Cursor
	prefix []byte
	state  iterState
	closed bool
}

// NewIterator is store.Default().NewIterator.
func (s *Store) NewIterator(prefix []byte) *Iterator { return s.Default().NewIterator(prefix) }

// NewIterator allocates a forward cursor over cf. A nil or empty prefix
// scans the whole CF; a non-empty prefix bounds the scan and is recorded so
// First can restore it.
func (cf *CF) NewIterator(prefix []byte) *Iterator {
	s := cf.store
	s.mu.Lock()
	s.openIterators++
	s.stats.NIterations++
	s.mu.Unlock()

	var p []byte
	if len(prefix) > 0 {
		p = append([]byte(nil), prefix...)
	}
	it := &Iterator{store: s, cf: cf, prefix: p}
	it.First()
	return it
}

// First positions the iterator at the first key of its bound range
// (whole CF, or the smallest key carrying the recorded prefix).
func (it *Iterator) First() {
	snap := it.store.currentSnapshot()
	it.snap = snap
	cur := snap.OpenCursor(snap.TableRoot(it.cf.tableID))
	if len(it.prefix) > 0 {
		cur.Seek(it.prefix)
	} else {
		cur.SeekFirst()
	}
	it.cur = cur
	it.settle()
}

// currentSnapshot returns the store's persistent read snapshot. An iterator
// opened while an explicit write transaction is active still sees only
// data committed before that transaction began; the transaction's own
// cursors are the only way to observe its uncommitted writes.
func (s *Store) currentSnapshot() pager.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistentRead
}

// Next advances one key, transitioning to Eof when the next key no longer
// carries the recorded prefix (prefix mode) or the cursor runs off the end.
// Expired keys are skipped transparently and read-only; iteration never
// mutates, leaving reclamation to Get/PurgeExpired.
func (it *Iterator) Next() {
	if it.state != iterPositioned {
		return
	}
	it.cur.Next()
	it.settle()
}

// settle advances past any expired key until a live one is found or the
// cursor runs off the end / out of the prefix range.
func (it *Iterator) settle() {
	for {
		if it.cur.Eof() {
			it.state = iterEOF
			return
		}
		key := it.cur.Key()
		if len(it.prefix) > 0 && !bytes.HasPrefix(key, it.prefix) {
			it.state = iterEOF
			return
		}
		if !it.isExpired(key) {
			it.state = iterPositioned
			return
		}
		it.cur.Next()
	}
}

func (it *Iterator) isExpired(key []byte) bool {
	it.store.mu.Lock()
	active := it.store.activeTTL
	it.store.mu.Unlock()
	if active == 0 {
		return false
	}
	expireMs, has := it.store.peekTTL(it.cf, key)
	if !has {
		return false
	}
	return it.store.cfg.Clock.NowMS() >= expireMs
}

// Eof reports whether the iterator has run off the end of its range.
func (it *Iterator) Eof() bool { return it.state != iterPositioned }

// Key borrows the current key. Valid only until the next Next/First/Close
// or any write to the same CF through any handle on this store.
func (it *Iterator) Key() []byte {
	if it.Eof() {
		return nil
	}
	return it.cur.Key()
}

// Value borrows the current value, with the same validity window as Key.
func (it *Iterator) Value() []byte {
	if it.Eof() {
		return nil
	}
	return it.cur.Value()
}

// Close releases the iterator's cursor. Safe to call more than once.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	if it.cur != nil {
		it.cur.Close()
		it.cur = nil
	}
	it.state = iterEOF
	it.store.mu.Lock()
	if it.store.openIterators > 0 {
		it.store.openIterators--
	}
	it.store.mu.Unlock()
}
