package store

// Put is store.Default().Put.
func (s *Store) Put(key, val []byte) error { return s.Default().Put(key, val) }

// Put inserts or replaces key/val. If the key previously carried a TTL, the
// TTL is cleared: a plain Put always produces a key with no expiry.
func (cf *CF) Put(key, val []byte) error {
	if len(key) == 0 {
		return newErr(StatusInvalidArgument, "key must not be empty", nil)
	}
	s := cf.store
	err := s.doWrite(func(ctx *writeCtx) error {
		cur := ctx.wtx.OpenCursor(cf.tableID)
		if err := cur.Insert(key, val); err != nil {
			cur.Close()
			return translatePagerErr(err)
		}
		cur.Close()
		s.mu.Lock()
		hasTTL := s.activeTTL > 0
		s.mu.Unlock()
		if !hasTTL {
			return nil
		}
		hadTTL, err := clearTTL(ctx.wtx, s.cfs, cf.name, key)
		if err != nil {
			return err
		}
		if hadTTL {
			ctx.ttlDelta--
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.stats.NPuts++
	s.mu.Unlock()
	return nil
}

// Get is store.Default().Get.
func (s *Store) Get(key []byte) ([]byte, error) { return s.Default().Get(key) }

// Get reads key, transparently reclaiming it first if its TTL has expired;
// lazy expiry surfaces as StatusNotFound.
func (cf *CF) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, newErr(StatusInvalidArgument, "key must not be empty", nil)
	}
	s := cf.store
	expired, err := s.expireKeyIfDue(cf, key)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, newErr(StatusNotFound, "key not found", nil)
	}
	var val []byte
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
		return nil, err
	}
	s.mu.Lock()
	s.stats.NGets++
	s.mu.Unlock()
	return val, nil
}

// Delete is store.Default().Delete.
func (s *Store) Delete(key []byte) error { return s.Default().Delete(key) }

// Delete removes key's data entry and any TTL entries for it, returning
// StatusNotFound if the data entry did not exist.
func (cf *CF) Delete(key []byte) error {
	if len(key) == 0 {
		return newErr(StatusInvalidArgument, "key must not be empty", nil)
	}
	s := cf.store
	var existed bool
	err := s.doWrite(func(ctx *writeCtx) error {
		cur := ctx.wtx.OpenCursor(cf.tableID)
		ok, err := cur.Delete(key)
		cur.Close()
		if err != nil {
			return translatePagerErr(err)
		}
		existed = ok
		if !ok {
			return nil
		}
		hadTTL, err := clearTTL(ctx.wtx, s.cfs, cf.name, key)
		if err != nil {
			return err
		}
		if hadTTL {
			ctx.ttlDelta--
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !existed {
		s.noteFailure(newErr(StatusNotFound, "key not found", nil))
		return newErr(StatusNotFound, "key not found", nil)
	}
	s.mu.Lock()
	s.stats.NDeletes++
	s.mu.Unlock()
	return nil
}

// Exists is store.Default().Exists.
func (s *Store) Exists(key []byte) (bool, error) { return s.Default().Exists(key) }

// Exists reports whether key is present, applying the same lazy-expiry
// reclaim as Get — the decided Open Question, see DESIGN.md.
func (cf *CF) Exists(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, newErr(StatusInvalidArgument, "key must not be empty", nil)
	}
	s := cf.store
	expired, err := s.expireKeyIfDue(cf, key)
	if err != nil {
		return false, err
	}
	if expired {
		return false, nil
	}
	var found bool
	err = s.doRead(func(rd reader) error {
		cur := rd.cursor(cf.tableID)
		defer cur.Close()
		_, found = cur.Get(key)
		return nil
	})
	return found, err
}
