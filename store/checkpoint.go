package store

// Checkpoint runs a WAL checkpoint in the given mode: reject if a write
// transaction is open, release the persistent read cursor, call the
// pager's checkpoint primitive, then always reacquire the persistent read
// cursor before returning (even if the checkpoint itself failed).
func (s *Store) Checkpoint(mode CheckpointMode) (walFrames int, checkpointed int, err error) {
	s.mu.Lock()
	if s.fatal {
		s.mu.Unlock()
		return 0, 0, newErr(StatusCorrupt, "store unusable after corruption", nil)
	}
	if s.curWrite != nil {
		s.mu.Unlock()
		return 0, 0, newErr(StatusBusy, "write transaction open", nil)
	}
	if s.persistentRead != nil {
		s.persistentRead.Close()
		s.persistentRead = nil
	}
	s.mu.Unlock()

	walFrames, checkpointed, ckErr := s.engine.WALCheckpoint(mode)

	s.mu.Lock()
	s.persistentRead = s.engine.BeginRead()
	s.mu.Unlock()

	if ckErr != nil {
		return walFrames, checkpointed, translatePagerErr(ckErr)
	}
	s.mu.Lock()
	s.walFrames = 0
	s.mu.Unlock()
	return walFrames, checkpointed, nil
}

// IncrementalVacuum steps the pager's incremental vacuum, refusing to run
// while an iterator or write transaction is open on this store.
func (s *Store) IncrementalVacuum(n int) (int, error) {
	s.mu.Lock()
	if s.fatal {
		s.mu.Unlock()
		return 0, newErr(StatusCorrupt, "store unusable after corruption", nil)
	}
	if s.curWrite != nil || s.openIterators > 0 {
		s.mu.Unlock()
		return 0, newErr(StatusBusy, "iterator or write transaction open", nil)
	}
	s.mu.Unlock()

	reclaimed, err := s.engine.IncrementalVacuum(n)
	if err != nil {
		return reclaimed, translatePagerErr(err)
	}
	return reclaimed, nil
}
