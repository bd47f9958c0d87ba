package store

import (
	"encoding/binary"

	"govetachun/snkv/pager"
)

// NoTTL is the sentinel ttl_remaining value meaning the key exists but
// carries no expiry.
const NoTTL int64 = -1

func encodeExpireMs(ms int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ms))
	return buf
}

func decodeExpireMs(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

func expiryIndexKey(expireMs int64, userKey []byte) []byte {
	out := make([]byte, 8+len(userKey))
	binary.BigEndian.PutUint64(out[:8], uint64(expireMs))
	copy(out[8:], userKey)
	return out
}

// lookupTTL reads the TTL key-index for key, if the index CF exists.
func lookupTTL(wtx pager.WriteTxn, cfs *cfRegistry, cfName string, key []byte) (expireMs int64, has bool) {
	kID, _, ok := cfs.ttlIndexesIfPresent(cfName)
	if !ok {
		return 0, false
	}
	cur := wtx.OpenCursor(kID)
	defer cur.Close()
	val, found := cur.Get(key)
	if !found {
		return 0, false
	}
	return decodeExpireMs(val), true
}

// clearTTL removes both TTL index entries for key, if any, and reports
// whether one was present (for active-TTL counter bookkeeping).
func clearTTL(wtx pager.WriteTxn, cfs *cfRegistry, cfName string, key []byte) (hadTTL bool, err error) {
	kID, eID, ok := cfs.ttlIndexesIfPresent(cfName)
	if !ok {
		return false, nil
	}
	kCur := wtx.OpenCursor(kID)
	defer kCur.Close()
	val, found := kCur.Get(key)
	if !found {
		return false, nil
	}
	expireMs := decodeExpireMs(val)
	if _, err := kCur.Delete(key); err != nil {
		return false, translatePagerErr(err)
	}
	eCur := wtx.OpenCursor(eID)
	defer eCur.Close()
	if _, err := eCur.Delete(expiryIndexKey(expireMs, key)); err != nil {
		return false, translatePagerErr(err)
	}
	return true, nil
}

// writeTTL replaces key's TTL with expireMs (0 clears it), and stages the
// active-TTL counter delta into ctx.
func (s *Store) writeTTL(ctx *writeCtx, cf *CF, key []byte, expireMs int64) error {
	hadTTL, err := clearTTL(ctx.wtx, s.cfs, cf.name, key)
	if err != nil {
		return err
	}
	if hadTTL {
		ctx.ttlDelta--
	}
	if expireMs == 0 {
		return nil
	}
	kID, eID, err := s.cfs.ensureTTLIndexes(ctx, cf.name)
	if err != nil {
		return err
	}
	kCur := ctx.wtx.OpenCursor(kID)
	defer kCur.Close()
	if err := kCur.Insert(key, encodeExpireMs(expireMs)); err != nil {
		return translatePagerErr(err)
	}
	eCur := ctx.wtx.OpenCursor(eID)
	defer eCur.Close()
	if err := eCur.Insert(expiryIndexKey(expireMs, key), nil); err != nil {
		return translatePagerErr(err)
	}
	ctx.ttlDelta++
	return nil
}

// expireKeyIfDue performs the lazy-expiry reclaim: if key has a TTL and
// now >= expireMs, deletes the data entry and both TTL entries in a fresh
// write transaction, decrementing the active-TTL counter. Returns true if
// the key was (or had already been) reclaimed.
func (s *Store) expireKeyIfDue(cf *CF, key []byte) (bool, error) {
	s.mu.Lock()
	active := s.activeTTL
	s.mu.Unlock()
	if active == 0 {
		return false, nil
	}
	now := s.cfg.Clock.NowMS()

	var expired bool
	err := s.doWrite(func(ctx *writeCtx) error {
		expireMs, has := lookupTTL(ctx.wtx, s.cfs, cf.name, key)
		if !has || now < expireMs {
			return nil
		}
		dataCur := ctx.wtx.OpenCursor(cf.tableID)
		defer dataCur.Close()
		if _, err := dataCur.Delete(key); err != nil {
			return translatePagerErr(err)
		}
		if _, err := clearTTL(ctx.wtx, s.cfs, cf.name, key); err != nil {
			return err
		}
		ctx.ttlDelta--
		expired = true
		return nil
	})
	return expired, err
}

// PutTTL is store.Default().PutTTL.
func (s *Store) PutTTL(key, val []byte, expireMs int64) error { return s.Default().PutTTL(key, val, expireMs) }

// PutTTL inserts or replaces key/val and sets (or, if expireMs == 0, clears)
// its TTL.
func (cf *CF) PutTTL(key, val []byte, expireMs int64) error {
	if len(key) == 0 {
		return newErr(StatusInvalidArgument, "key must not be empty", nil)
	}
	s := cf.store
	return s.doWrite(func(ctx *writeCtx) error {
		cur := ctx.wtx.OpenCursor(cf.tableID)
		if err := cur.Insert(key, val); err != nil {
			cur.Close()
			return translatePagerErr(err)
		}
		cur.Close()
		return s.writeTTL(ctx, cf, key, expireMs)
	})
}

// GetTTL is store.Default().GetTTL.
func (s *Store) GetTTL(key []byte) ([]byte, int64, error) { return s.Default().GetTTL(key) }

// GetTTL reads key like Get, additionally reporting remaining TTL millis or
// NoTTL.
func (cf *CF) GetTTL(key []byte) ([]byte, int64, error) {
	if len(key) == 0 {
		return nil, 0, newErr(StatusInvalidArgument, "key must not be empty", nil)
	}
	s := cf.store

	expired, err := s.expireKeyIfDue(cf, key)
	if err != nil {
		return nil, 0, err
	}
	if expired {
		return nil, 0, newErr(StatusNotFound, "key not found", nil)
	}

	var val []byte
	var remaining int64 = NoTTL
	err = s.doRead(func(rd reader) error {
		cur := rd.cursor(cf.tableID)
		defer cur.Close()
		v, found := cur.Get(key)
		if !found {
			return newErr(StatusNotFound, "key not found", nil)
		}
		val = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	expireMs, has := s.peekTTL(cf, key)
	if has {
		now := s.cfg.Clock.NowMS()
		remaining = expireMs - now
		if remaining < 0 {
			remaining = 0
		}
	}
	return val, remaining, nil
}

func (s *Store) peekTTL(cf *CF, key []byte) (int64, bool) {
	var expireMs int64
	var has bool
	s.doRead(func(rd reader) error {
		kID, _, ok := s.cfs.ttlIndexesIfPresent(cf.name)
		if !ok {
			return nil
		}
		cur := rd.cursor(kID)
		defer cur.Close()
		val, found := cur.Get(key)
		if found {
			expireMs, has = decodeExpireMs(val), true
		}
		return nil
	})
	return expireMs, has
}

// TTLRemaining is store.Default().TTLRemaining.
func (s *Store) TTLRemaining(key []byte) (int64, error) { return s.Default().TTLRemaining(key) }

// TTLRemaining reads the TTL key-index only.
func (cf *CF) TTLRemaining(key []byte) (int64, error) {
	if len(key) == 0 {
		return 0, newErr(StatusInvalidArgument, "key must not be empty", nil)
	}
	s := cf.store
	var exists bool
	err := s.doRead(func(rd reader) error {
		cur := rd.cursor(cf.tableID)
		defer cur.Close()
		_, exists = cur.Get(key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, newErr(StatusNotFound, "key not found", nil)
	}
	expireMs, has := s.peekTTL(cf, key)
	if !has {
		return NoTTL, nil
	}
	now := s.cfg.Clock.NowMS()
	remaining := expireMs - now
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

const purgeBatchSize = 256

// PurgeExpired is store.Default().PurgeExpired.
func (s *Store) PurgeExpired() (int, error) { return s.Default().PurgeExpired() }

// PurgeExpired batches all expiry-index entries with expire_ms <= now,
// deleting the data key and both TTL entries per batch, looping until no
// expired keys remain.
func (cf *CF) PurgeExpired() (int, error) {
	s := cf.store
	total := 0
	for {
		n, err := s.purgeExpiredBatch(cf)
		if err != nil {
			return total, err
		}
		total += n
		if n < purgeBatchSize {
			return total, nil
		}
	}
}

func (s *Store) purgeExpiredBatch(cf *CF) (int, error) {
	now := s.cfg.Clock.NowMS()
	n := 0
	err := s.doWrite(func(ctx *writeCtx) error {
		_, eID, ok := s.cfs.ttlIndexesIfPresent(cf.name)
		if !ok {
			return nil
		}
		eCur := ctx.wtx.OpenCursor(eID)
		defer eCur.Close()

		var victims [][]byte
		eCur.SeekFirst()
		for !eCur.Eof() && n+len(victims) < purgeBatchSize {
			ik := eCur.Key()
			expireMs := decodeExpireMs(ik[:8])
			if expireMs > now {
				break
			}
			userKey := append([]byte(nil), ik[8:]...)
			victims = append(victims, userKey)
			eCur.Next()
		}
		for _, key := range victims {
			dataCur := ctx.wtx.OpenCursor(cf.tableID)
			dataCur.Delete(key)
			dataCur.Close()
			if _, err := clearTTL(ctx.wtx, s.cfs, cf.name, key); err != nil {
				return err
			}
			ctx.ttlDelta--
			n++
		}
		return nil
	})
	return n, err
}
