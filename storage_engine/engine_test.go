package storageengine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"EmberDB/config"
	"EmberDB/types"
)

func testOptions() config.Options {
	return config.Options{PageSize: 8192, CacheSize: 1 << 20}
}

func TestSetSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(dir, testOptions())
	require.NoError(t, err)
	require.NoError(t, e.Set([]byte("hello"), []byte("world")))
	require.NoError(t, e.Close())

	e, err = Open(dir, testOptions())
	require.NoError(t, err)
	defer e.Close()

	got, err := e.Get([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("world"), got)
}

func TestGetMissingKey(t *testing.T) {
	e, err := Open(t.TempDir(), testOptions())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Get([]byte("nope"))
	require.ErrorIs(t, err, types.ErrKeyNotFound)
}

func TestPageSizeMismatchRejected(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(dir, config.Options{PageSize: 4096, CacheSize: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = Open(dir, config.Options{PageSize: 8192, CacheSize: 1 << 20})
	require.Error(t, err)
}

func TestAbortRestoresPriorValue(t *testing.T) {
	e, err := Open(t.TempDir(), testOptions())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Set([]byte("k"), []byte("original")))

	tx := e.Begin()
	require.NoError(t, tx.Set([]byte("k"), []byte("overwritten")))
	require.NoError(t, tx.Set([]byte("extra"), []byte("doomed")))

	// The transaction sees its own writes.
	got, err := tx.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("overwritten"), got)

	require.NoError(t, tx.Abort())

	got, err = e.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)
	_, err = e.Get([]byte("extra"))
	require.ErrorIs(t, err, types.ErrKeyNotFound)

	// The transaction is spent.
	require.ErrorIs(t, tx.Set([]byte("k"), []byte("late")), types.ErrTxnFinished)
}

func TestAbortUnwindsStructuralChanges(t *testing.T) {
	e, err := Open(t.TempDir(), config.Options{PageSize: 512, CacheSize: 1 << 20})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Set([]byte("keeper"), []byte("stays")))

	// Enough entries to force leaf splits and a root split, all rolled
	// back as one transaction.
	tx := e.Begin()
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("bulk-%04d", i)
		require.NoError(t, tx.Set([]byte(key), []byte("value-padding-padding-padding")))
	}
	require.NoError(t, tx.Abort())

	got, err := e.Get([]byte("keeper"))
	require.NoError(t, err)
	require.Equal(t, []byte("stays"), got)
	for i := 0; i < 100; i++ {
		_, err := e.Get([]byte(fmt.Sprintf("bulk-%04d", i)))
		require.ErrorIs(t, err, types.ErrKeyNotFound, "bulk key %d survived the abort", i)
	}
}

func TestCommittedTransactionSurvivesCrash(t *testing.T) {
	dir := t.TempDir()

	// Abandon the first engine without Close: the heap store never sees
	// the pages, only the log does.
	e1, err := Open(dir, testOptions())
	require.NoError(t, err)
	require.NoError(t, e1.Set([]byte("committed"), []byte("durable")))

	tx := e1.Begin()
	require.NoError(t, tx.Set([]byte("committed"), []byte("in-flight")))
	require.NoError(t, tx.Set([]byte("loser"), []byte("gone")))
	// No commit: this transaction dies with the process.

	e2, err := Open(dir, testOptions())
	require.NoError(t, err)
	defer e2.Close()

	got, err := e2.Get([]byte("committed"))
	require.NoError(t, err)
	require.Equal(t, []byte("durable"), got, "winner lost or loser leaked through recovery")

	_, err = e2.Get([]byte("loser"))
	require.ErrorIs(t, err, types.ErrKeyNotFound)
}

func TestRecoveryIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	e1, err := Open(dir, testOptions())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, e1.Set([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("val-%d", i))))
	}
	// Crash without Close, then recover twice in a row.
	for round := 0; round < 2; round++ {
		e, err := Open(dir, testOptions())
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			got, err := e.Get([]byte(fmt.Sprintf("key-%d", i)))
			require.NoError(t, err)
			require.Equal(t, []byte(fmt.Sprintf("val-%d", i)), got)
		}
		// First round crashes again (no Close), second closes cleanly.
		if round == 1 {
			require.NoError(t, e.Close())
		}
	}
}

func TestDeleteSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(dir, testOptions())
	require.NoError(t, err)
	require.NoError(t, e.Set([]byte("a"), []byte("1")))
	require.NoError(t, e.Set([]byte("b"), []byte("2")))
	require.NoError(t, e.Delete([]byte("a")))
	require.NoError(t, e.Close())

	e, err = Open(dir, testOptions())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Get([]byte("a"))
	require.ErrorIs(t, err, types.ErrKeyNotFound)
	got, err := e.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
}

func TestManyEntriesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	opts := config.Options{PageSize: 512, CacheSize: 1 << 20}

	e, err := Open(dir, opts)
	require.NoError(t, err)
	const n = 300
	for i := 0; i < n; i++ {
		require.NoError(t, e.Set(
			[]byte(fmt.Sprintf("key-%04d", i)),
			[]byte(fmt.Sprintf("value-%04d-padding-padding", i))))
	}
	require.NoError(t, e.Close())

	e, err = Open(dir, opts)
	require.NoError(t, err)
	defer e.Close()
	for i := 0; i < n; i++ {
		got, err := e.Get([]byte(fmt.Sprintf("key-%04d", i)))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("value-%04d-padding-padding", i), string(got))
	}
}

func TestClosedEngineRejectsOperations(t *testing.T) {
	e, err := Open(t.TempDir(), testOptions())
	require.NoError(t, err)

	tx := e.Begin()
	require.NoError(t, e.Close())

	require.ErrorIs(t, e.Set([]byte("k"), []byte("v")), types.ErrClosed)
	_, err = e.Get([]byte("k"))
	require.ErrorIs(t, err, types.ErrClosed)
	require.ErrorIs(t, tx.Commit(), types.ErrClosed)
}
