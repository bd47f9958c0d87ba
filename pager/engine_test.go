package pager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T, opts Options) Engine {
	t.Helper()
	e, err := Open(":memory:", opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineBasicPutGet(t *testing.T) {
	e := openMem(t, Options{})

	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	cur := wtx.OpenCursor(MasterTableID)
	require.NoError(t, cur.Insert([]byte("hello"), []byte("world")))
	cur.Close()
	require.NoError(t, wtx.Commit())

	snap := e.BeginRead()
	defer snap.Close()
	cur2 := snap.OpenCursor(snap.MasterRoot())
	defer cur2.Close()
	v, ok := cur2.Get([]byte("hello"))
	require.True(t, ok)
	require.Equal(t, "world", string(v))
}

func TestEngineCreateTableIsolated(t *testing.T) {
	e := openMem(t, Options{})

	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	id, err := wtx.CreateTable()
	require.NoError(t, err)
	a := wtx.OpenCursor(MasterTableID)
	require.NoError(t, a.Insert([]byte("k"), []byte("master-val")))
	a.Close()
	b := wtx.OpenCursor(id)
	require.NoError(t, b.Insert([]byte("k"), []byte("table-val")))
	b.Close()
	require.NoError(t, wtx.Commit())

	snap := e.BeginRead()
	defer snap.Close()
	c1 := snap.OpenCursor(snap.MasterRoot())
	v1, _ := c1.Get([]byte("k"))
	c1.Close()
	c2 := snap.OpenCursor(snap.TableRoot(id))
	v2, _ := c2.Get([]byte("k"))
	c2.Close()
	require.Equal(t, "master-val", string(v1))
	require.Equal(t, "table-val", string(v2))
}

func TestEngineForwardIterationOrder(t *testing.T) {
	e := openMem(t, Options{})
	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	id, err := wtx.CreateTable()
	require.NoError(t, err)
	cur := wtx.OpenCursor(id)
	for _, k := range []string{"banana", "apple", "cherry", "date"} {
		require.NoError(t, cur.Insert([]byte(k), []byte(k)))
	}
	cur.Close()
	require.NoError(t, wtx.Commit())

	snap := e.BeginRead()
	defer snap.Close()
	rc := snap.OpenCursor(snap.TableRoot(id))
	defer rc.Close()
	rc.SeekFirst()
	var got []string
	for !rc.Eof() {
		got = append(got, string(rc.Key()))
		rc.Next()
	}
	require.Equal(t, []string{"apple", "banana", "cherry", "date"}, got)
}

func TestEngineDeleteAndDropTable(t *testing.T) {
	e := openMem(t, Options{})
	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	id, err := wtx.CreateTable()
	require.NoError(t, err)
	cur := wtx.OpenCursor(id)
	require.NoError(t, cur.Insert([]byte("x"), []byte("1")))
	ok, err := cur.Delete([]byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	cur.Close()
	require.NoError(t, wtx.Commit())

	wtx2, err := e.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx2.DropTable(id))
	require.NoError(t, wtx2.Commit())

	wtx3, err := e.BeginWrite()
	require.NoError(t, err)
	require.ErrorIs(t, wtx3.DropTable(id), ErrTableNotFound)
	wtx3.Rollback()
}

func TestEngineWriteBusyWhileOpen(t *testing.T) {
	e := openMem(t, Options{})
	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	_, err = e.BeginWrite()
	require.ErrorIs(t, err, ErrBusy)
	wtx.Rollback()

	wtx2, err := e.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx2.Commit())
}

func TestEngineRollbackDiscardsChanges(t *testing.T) {
	e := openMem(t, Options{})
	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	id, err := wtx.CreateTable()
	require.NoError(t, err)
	cur := wtx.OpenCursor(id)
	require.NoError(t, cur.Insert([]byte("k"), []byte("v")))
	cur.Close()
	require.NoError(t, wtx.Commit())

	wtx2, err := e.BeginWrite()
	require.NoError(t, err)
	cur2 := wtx2.OpenCursor(id)
	require.NoError(t, cur2.Insert([]byte("k2"), []byte("v2")))
	cur2.Close()
	wtx2.Rollback()

	snap := e.BeginRead()
	defer snap.Close()
	rc := snap.OpenCursor(snap.TableRoot(id))
	defer rc.Close()
	_, ok := rc.Get([]byte("k2"))
	require.False(t, ok)
	_, ok = rc.Get([]byte("k"))
	require.True(t, ok)
}

func TestEngineWALCheckpoint(t *testing.T) {
	e := openMem(t, Options{JournalMode: JournalWAL})
	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	id, err := wtx.CreateTable()
	require.NoError(t, err)
	cur := wtx.OpenCursor(id)
	require.NoError(t, cur.Insert([]byte("k"), []byte("v")))
	cur.Close()
	require.NoError(t, wtx.Commit())

	_, _, err = e.WALCheckpoint(CheckpointPassive)
	require.NoError(t, err)
	ok, detail := e.IntegrityCheck()
	require.True(t, ok, detail)
}

func TestEngineIntegrityCheckPasses(t *testing.T) {
	e := openMem(t, Options{})
	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	id, err := wtx.CreateTable()
	require.NoError(t, err)
	cur := wtx.OpenCursor(id)
	for i := 0; i < 200; i++ {
		k := []byte{byte(i), byte(i >> 8)}
		require.NoError(t, cur.Insert(k, k))
	}
	cur.Close()
	require.NoError(t, wtx.Commit())

	ok, detail := e.IntegrityCheck()
	require.True(t, ok, detail)
}

func TestEngineIncrementalVacuumAfterDropTable(t *testing.T) {
	e := openMem(t, Options{})
	wtx, err := e.BeginWrite()
	require.NoError(t, err)
	id, err := wtx.CreateTable()
	require.NoError(t, err)
	cur := wtx.OpenCursor(id)
	for i := 0; i < 500; i++ {
		k := []byte{byte(i), byte(i >> 8), byte(i >> 16)}
		require.NoError(t, cur.Insert(k, make([]byte, 100)))
	}
	cur.Close()
	require.NoError(t, wtx.Commit())

	wtx2, err := e.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, wtx2.DropTable(id))
	require.NoError(t, wtx2.Commit())

	n, err := e.IncrementalVacuum(0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 0)
}
