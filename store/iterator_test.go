package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(it *Iterator) [][2]string {
	defer it.Close()
	var out [][2]string
	for !it.Eof() {
		out = append(out, [2]string{string(it.Key()), string(it.Value())})
		it.Next()
	}
	return out
}

// TestIteratorOrdering checks ascending unsigned byte order regardless of
// insertion order.
func TestIteratorOrdering(t *testing.T) {
	s := openMem(t, Config{})
	for _, k := range []string{"banana", "apple", "cherry", "date", "ant"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}
	got := collect(s.NewIterator(nil))
	want := []string{"ant", "apple", "banana", "cherry", "date"}
	require.Len(t, got, len(want))
	for i, w := range want {
		require.Equal(t, w, got[i][0])
		require.Equal(t, w, got[i][1])
	}
}

func TestIteratorEmptyCFYieldsNothing(t *testing.T) {
	s := openMem(t, Config{})
	it := s.NewIterator(nil)
	require.True(t, it.Eof())
	it.Close()
}

// TestIteratorPrefixScan checks prefix-bounded scans, including the
// "prefix matches exactly one key" boundary case.
func TestIteratorPrefixScan(t *testing.T) {
	s := openMem(t, Config{})
	for _, k := range []string{"user:1", "user:2", "user:3", "order:1", "order:2"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	got := collect(s.NewIterator([]byte("user:")))
	require.Len(t, got, 3)
	require.Equal(t, "user:1", got[0][0])
	require.Equal(t, "user:2", got[1][0])
	require.Equal(t, "user:3", got[2][0])

	got = collect(s.NewIterator([]byte("order:2")))
	require.Len(t, got, 1)
	require.Equal(t, "order:2", got[0][0])

	got = collect(s.NewIterator([]byte("nope")))
	require.Len(t, got, 0)
}

// TestIteratorSkipsExpiredWithoutMutating checks that keys {a,b,c,d,e} with
// TTL on b,d expired yields a,c,e in order, and the underlying data/TTL
// entries are left untouched by the iteration itself.
func TestIteratorSkipsExpiredWithoutMutating(t *testing.T) {
	clock := NewManualClock(1000)
	s := openMem(t, Config{Clock: clock})
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}
	require.NoError(t, s.PutTTL([]byte("b"), []byte("b"), 1000+50))
	require.NoError(t, s.PutTTL([]byte("d"), []byte("d"), 1000+50))
	Advance(clock, 100)

	got := collect(s.NewIterator(nil))
	var keys []string
	for _, kv := range got {
		keys = append(keys, kv[0])
	}
	require.Equal(t, []string{"a", "c", "e"}, keys)

	// Iteration itself must not have reclaimed the expired entries: the
	// active-TTL counter still reflects both as live until Get/PurgeExpired
	// actually touches them.
	require.Equal(t, int64(2), s.Stats().ActiveTTLKeys)
}

func TestIteratorNamespacedToCF(t *testing.T) {
	s := openMem(t, Config{})
	other, err := s.CreateCF("other")
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("default")))
	require.NoError(t, other.Put([]byte("k"), []byte("other")))

	defIt := s.NewIterator(nil)
	defGot := collect(defIt)
	require.Len(t, defGot, 1)
	require.Equal(t, "default", defGot[0][1])

	otherGot := collect(other.NewIterator(nil))
	require.Len(t, otherGot, 1)
	require.Equal(t, "other", otherGot[0][1])
}

func TestIteratorCloseIsIdempotent(t *testing.T) {
	s := openMem(t, Config{})
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	it := s.NewIterator(nil)
	it.Close()
	it.Close() // must not double-decrement openIterators or panic
	require.True(t, it.Eof())
}
