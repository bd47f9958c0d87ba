package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openMemWithClock(t *testing.T, startMs int64) (*Store, Clock) {
	t.Helper()
	clock := NewManualClock(startMs)
	s := openMem(t, Config{Clock: clock})
	return s, clock
}

func TestPutTTLZeroIsPlainPut(t *testing.T) {
	s, _ := openMemWithClock(t, 1000)
	require.NoError(t, s.PutTTL([]byte("k"), []byte("v"), 0))
	v, remaining, err := s.GetTTL([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
	require.Equal(t, NoTTL, remaining)

	r, err := s.TTLRemaining([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, NoTTL, r)
}

func TestTTLLazyExpiry(t *testing.T) {
	s, clock := openMemWithClock(t, 1000)
	require.NoError(t, s.PutTTL([]byte("e"), []byte("v"), 1499))
	Advance(clock, 500) // now = 1500 >= 1499

	_, remaining, err := s.GetTTL([]byte("e"))
	require.Equal(t, StatusNotFound, StatusOf(err))
	require.Equal(t, int64(0), remaining)

	_, err = s.Get([]byte("e"))
	require.Equal(t, StatusNotFound, StatusOf(err))
}

func TestTTLRemainingCountsDown(t *testing.T) {
	s, clock := openMemWithClock(t, 1000)
	require.NoError(t, s.PutTTL([]byte("k"), []byte("v"), 1000+10_000))
	r, err := s.TTLRemaining([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, int64(10_000), r)

	Advance(clock, 4_000)
	r, err = s.TTLRemaining([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, int64(6_000), r)
}

func TestTTLRemainingMissingKeyNotFound(t *testing.T) {
	s, _ := openMemWithClock(t, 1000)
	_, err := s.TTLRemaining([]byte("absent"))
	require.Equal(t, StatusNotFound, StatusOf(err))
}

// TestTTLActiveCounterConsistency checks that the active-TTL counter tracks
// Puts, TTL-clearing Puts, Deletes, and PurgeExpired correctly.
func TestTTLActiveCounterConsistency(t *testing.T) {
	s, clock := openMemWithClock(t, 1000)
	require.NoError(t, s.PutTTL([]byte("a"), []byte("1"), 1000+5000))
	require.NoError(t, s.PutTTL([]byte("b"), []byte("2"), 1000+5000))
	require.Equal(t, int64(2), s.Stats().ActiveTTLKeys)

	// Plain Put clears any TTL on the same key.
	require.NoError(t, s.Put([]byte("a"), []byte("1b")))
	require.Equal(t, int64(1), s.Stats().ActiveTTLKeys)

	require.NoError(t, s.Delete([]byte("b")))
	require.Equal(t, int64(0), s.Stats().ActiveTTLKeys)

	require.NoError(t, s.PutTTL([]byte("c"), []byte("3"), 1000+100))
	Advance(clock, 200)
	n, err := s.PurgeExpired()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, int64(0), s.Stats().ActiveTTLKeys)
}

func TestTTLCounterRestoredOnRollback(t *testing.T) {
	s, _ := openMemWithClock(t, 1000)
	txn, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, txn.PutTTL([]byte("k"), []byte("v"), 1000+5000))
	txn.Rollback()
	require.Equal(t, int64(0), s.Stats().ActiveTTLKeys)
}

// TestPurgeExpiredMultiBatch checks the ">256 expired keys in one call"
// boundary behavior.
func TestPurgeExpiredMultiBatch(t *testing.T) {
	s, clock := openMemWithClock(t, 1000)
	const n = 300
	for i := 0; i < n; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		require.NoError(t, s.PutTTL(key, []byte("v"), 1000+50))
	}
	Advance(clock, 100)

	total, err := s.PurgeExpired()
	require.NoError(t, err)
	require.Equal(t, n, total)

	second, err := s.PurgeExpired()
	require.NoError(t, err)
	require.Equal(t, 0, second)
}

func TestPurgeExpiredIdempotentWhenEmpty(t *testing.T) {
	s, _ := openMemWithClock(t, 1000)
	n, err := s.PurgeExpired()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
