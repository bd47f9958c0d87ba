package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := Open(":memory:", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenHasDefaultCF(t *testing.T) {
	s := openMem(t, Config{})
	def := s.Default()
	require.NotNil(t, def)
	require.Equal(t, "default", def.Name())
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openMem(t, Config{})
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
}

func TestPutEmptyValueRoundTrips(t *testing.T) {
	s := openMem(t, Config{})
	require.NoError(t, s.Put([]byte("k"), nil))
	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestPutRejectsEmptyKey(t *testing.T) {
	s := openMem(t, Config{})
	err := s.Put(nil, []byte("v"))
	require.Equal(t, StatusInvalidArgument, StatusOf(err))
}

func TestPutLastWriterWins(t *testing.T) {
	s := openMem(t, Config{})
	require.NoError(t, s.Put([]byte("k"), []byte("A")))
	require.NoError(t, s.Put([]byte("k"), []byte("B")))
	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "B", string(v))
}

func TestDeleteThenGetNotFound(t *testing.T) {
	s := openMem(t, Config{})
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Delete([]byte("k")))
	_, err := s.Get([]byte("k"))
	require.Equal(t, StatusNotFound, StatusOf(err))
}

func TestDeleteMissingKeyReturnsNotFound(t *testing.T) {
	s := openMem(t, Config{})
	err := s.Delete([]byte("absent"))
	require.Equal(t, StatusNotFound, StatusOf(err))
}

func TestExistsTracksPresence(t *testing.T) {
	s := openMem(t, Config{})
	ok, err := s.Exists([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	ok, err = s.Exists([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
}

// TestNamespaceIsolation is the "isolation of namespaces" invariant: the
// same key in two distinct column families carries independent values.
func TestNamespaceIsolation(t *testing.T) {
	s := openMem(t, Config{})
	a, err := s.CreateCF("A")
	require.NoError(t, err)
	b, err := s.CreateCF("B")
	require.NoError(t, err)

	require.NoError(t, a.Put([]byte("k"), []byte("v1")))
	require.NoError(t, b.Put([]byte("k"), []byte("v2")))

	v1, err := a.Get([]byte("k"))
	require.NoError(t, err)
	v2, err := b.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v1))
	require.Equal(t, "v2", string(v2))
}

func TestCreateCFRejectsReservedPrefix(t *testing.T) {
	s := openMem(t, Config{})
	_, err := s.CreateCF("__reserved")
	require.Equal(t, StatusInvalidArgument, StatusOf(err))
}

func TestCreateCFRejectsEmptyName(t *testing.T) {
	s := openMem(t, Config{})
	_, err := s.CreateCF("")
	require.Equal(t, StatusInvalidArgument, StatusOf(err))
}

func TestCreateCFRejectsDuplicate(t *testing.T) {
	s := openMem(t, Config{})
	_, err := s.CreateCF("dup")
	require.NoError(t, err)
	_, err = s.CreateCF("dup")
	require.Equal(t, StatusError, StatusOf(err))
}

func TestOpenCFMissingReturnsNotFound(t *testing.T) {
	s := openMem(t, Config{})
	_, err := s.OpenCF("nope")
	require.Equal(t, StatusNotFound, StatusOf(err))
}

func TestDropCFRejectsDefault(t *testing.T) {
	s := openMem(t, Config{})
	err := s.DropCF("default")
	require.Equal(t, StatusError, StatusOf(err))
}

func TestDropCFRemovesData(t *testing.T) {
	s := openMem(t, Config{})
	cf, err := s.CreateCF("temp")
	require.NoError(t, err)
	require.NoError(t, cf.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.DropCF("temp"))
	_, err = s.OpenCF("temp")
	require.Equal(t, StatusNotFound, StatusOf(err))
}

// TestListCFsNeverReturnsReservedNames checks that the TTL index CFs
// created lazily for the default CF never leak into List.
func TestListCFsNeverReturnsReservedNames(t *testing.T) {
	s := openMem(t, Config{})
	_, err := s.CreateCF("events")
	require.NoError(t, err)
	require.NoError(t, s.PutTTL([]byte("k"), []byte("v"), 1))

	names, err := s.ListCFs()
	require.NoError(t, err)
	for _, n := range names {
		require.NotContains(t, n, "__")
	}
	require.Contains(t, names, "events")
	require.Contains(t, names, "default")
}

func TestMaxUserCFsEnforced(t *testing.T) {
	s := openMem(t, Config{})
	for i := 0; i < maxUserCFs; i++ {
		_, err := s.CreateCF(cfNameFor(i))
		require.NoError(t, err)
	}
	_, err := s.CreateCF("one-too-many")
	require.Equal(t, StatusInvalidArgument, StatusOf(err))
}

func cfNameFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	return "cf-" + string(letters[i%len(letters)]) + string(letters[(i/len(letters))%len(letters)])
}

// TestAtomicityRollback / TestAtomicityCommit run several writes through
// one explicit transaction and check that a Rollback undoes all of them
// and a Commit makes all of them visible.
func TestAtomicityRollback(t *testing.T) {
	s := openMem(t, Config{})
	txn, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, txn.Put([]byte("k2"), []byte("v2")))
	txn.Rollback()

	_, err = s.Get([]byte("k1"))
	require.Equal(t, StatusNotFound, StatusOf(err))
	_, err = s.Get([]byte("k2"))
	require.Equal(t, StatusNotFound, StatusOf(err))
}

func TestAtomicityCommit(t *testing.T) {
	s := openMem(t, Config{})
	txn, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, txn.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, txn.Commit())

	v1, err := s.Get([]byte("k1"))
	require.NoError(t, err)
	v2, err := s.Get([]byte("k2"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v1))
	require.Equal(t, "v2", string(v2))
}

// TestImplicitWriteRoutesThroughOpenTxn checks that a store-level (implicit)
// Put issued while an explicit write Txn is already open on this handle
// joins that transaction instead of blocking on the pager's single write
// slot.
func TestImplicitWriteRoutesThroughOpenTxn(t *testing.T) {
	s := openMem(t, Config{})
	txn, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, txn.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, txn.Commit())

	v1, err := s.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v1))
	v2, err := s.Get([]byte("k2"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(v2))
}

func TestSecondWriteBeginReturnsError(t *testing.T) {
	s := openMem(t, Config{})
	txn, err := s.Begin(true)
	require.NoError(t, err)
	_, err = s.Begin(true)
	require.Equal(t, StatusError, StatusOf(err))
	txn.Rollback()
}

func TestWriteOnReadTransactionIsReadOnly(t *testing.T) {
	s := openMem(t, Config{})
	txn, err := s.Begin(false)
	require.NoError(t, err)
	err = txn.runWrite(func(ctx *writeCtx) error { return nil })
	require.Equal(t, StatusReadOnly, StatusOf(err))
	txn.Rollback()
}

// TestDurabilityWAL checks that committed writes survive a close+reopen of
// the same path.
func TestDurabilityWAL(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/a.db"

	s1, err := Open(path, Config{JournalMode: JournalWAL})
	require.NoError(t, err)
	require.NoError(t, s1.Put([]byte("u"), []byte("v")))
	require.NoError(t, s1.Close())

	s2, err := Open(path, Config{JournalMode: JournalWAL})
	require.NoError(t, err)
	defer s2.Close()
	v, err := s2.Get([]byte("u"))
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
}

// TestCrashSafetyUncommittedRolledBack checks that a write transaction
// opened but never committed leaves no trace once the store is closed and
// reopened.
func TestCrashSafetyUncommittedRolledBack(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/b.db"

	s1, err := Open(path, Config{JournalMode: JournalWAL})
	require.NoError(t, err)
	require.NoError(t, s1.Put([]byte("committed"), []byte("yes")))

	txn, err := s1.Begin(true)
	require.NoError(t, err)
	require.NoError(t, txn.runWrite(func(ctx *writeCtx) error {
		cur := ctx.wtx.OpenCursor(s1.Default().tableID)
		defer cur.Close()
		return cur.Insert([]byte("uncommitted"), []byte("no"))
	}))
	require.NoError(t, s1.Close()) // closes without committing txn

	s2, err := Open(path, Config{JournalMode: JournalWAL})
	require.NoError(t, err)
	defer s2.Close()
	v, err := s2.Get([]byte("committed"))
	require.NoError(t, err)
	require.Equal(t, "yes", string(v))
	_, err = s2.Get([]byte("uncommitted"))
	require.Equal(t, StatusNotFound, StatusOf(err))
}

func TestCheckpointPassiveIdempotent(t *testing.T) {
	s := openMem(t, Config{JournalMode: JournalWAL})
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	_, _, err := s.Checkpoint(CheckpointPassive)
	require.NoError(t, err)
	_, _, err = s.Checkpoint(CheckpointPassive)
	require.NoError(t, err)
}

func TestCheckpointRejectsOpenWriteTxn(t *testing.T) {
	s := openMem(t, Config{JournalMode: JournalWAL})
	txn, err := s.Begin(true)
	require.NoError(t, err)
	_, _, err = s.Checkpoint(CheckpointPassive)
	require.Equal(t, StatusBusy, StatusOf(err))
	txn.Rollback()
}

func TestIntegrityCheckOK(t *testing.T) {
	s := openMem(t, Config{})
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	ok, msg := s.IntegrityCheck()
	require.True(t, ok, msg)
}

func TestStatsIncrementOnSuccess(t *testing.T) {
	s := openMem(t, Config{})
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	_, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, s.Delete([]byte("k")))

	st := s.Stats()
	require.Equal(t, int64(1), st.NPuts)
	require.Equal(t, int64(1), st.NGets)
	require.Equal(t, int64(1), st.NDeletes)
}

func TestStatsIncrementOnError(t *testing.T) {
	s := openMem(t, Config{})
	_, err := s.Get([]byte("missing"))
	require.Equal(t, StatusNotFound, StatusOf(err))
	st := s.Stats()
	require.Equal(t, int64(1), st.NErrors)
}
