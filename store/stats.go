package store

// Stats is a plain counters snapshot: monotonically increasing counters for
// puts/gets/deletes/iterations/errors. Every field except ActiveTTLKeys
// only ever increments; NPuts/NGets/NDeletes/NIterations only on the
// error-free path, NErrors only on a failure recorded by noteFailure.
type Stats struct {
	NPuts         int64
	NGets         int64
	NDeletes      int64
	NIterations   int64
	NErrors       int64
	ActiveTTLKeys int64
}

// IntegrityCheck delegates to the pager's own structural walk of every
// known B-tree root — the Go-native equivalent of page-level checksums.
func (s *Store) IntegrityCheck() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.IntegrityCheck()
}
