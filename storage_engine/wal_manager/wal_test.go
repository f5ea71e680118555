package wal_manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"EmberDB/types"
)

func setupWAL(t *testing.T) (*WALManager, string) {
	t.Helper()
	dir := t.TempDir()
	wal, err := OpenWAL(dir, zap.NewNop())
	require.NoError(t, err)
	return wal, dir
}

func testUpdate(tx types.TxID, pid types.PageID, prev types.LSN, key, val string) *LogRecord {
	return UpdateRecord(tx, pid, prev, SetUpdate([]byte(key), []byte(val)), DelUpdate([]byte(key)))
}

func TestAppendScanRoundTrip(t *testing.T) {
	wal, _ := setupWAL(t)
	defer wal.Close()

	lsn1, err := wal.Append(testUpdate(7, 3, 0, "alpha", "1"))
	require.NoError(t, err)
	require.Equal(t, types.LSN(1), lsn1, "LSNs are sequential and 1-based")

	lsn2, err := wal.Append(testUpdate(7, 4, lsn1, "beta", "2"))
	require.NoError(t, err)
	require.Equal(t, types.LSN(2), lsn2)

	_, err = wal.Append(CommitRecord(7, lsn2))
	require.NoError(t, err)
	require.NoError(t, wal.Force())

	var got []*LogRecord
	require.NoError(t, wal.Scan(func(lr *LogRecord) error {
		got = append(got, lr)
		return nil
	}))

	require.Len(t, got, 3)
	require.Equal(t, RecordUpdate, got[0].Type)
	require.Equal(t, types.TxID(7), got[0].TxID)
	require.Equal(t, types.PageID(3), got[0].PageID)
	require.Equal(t, PageSet, got[0].Redo.Kind)
	require.Equal(t, []byte("alpha"), got[0].Redo.Key)
	require.Equal(t, []byte("1"), got[0].Redo.Value)
	require.Equal(t, PageDel, got[0].Undo.Kind)

	require.Equal(t, lsn1, got[1].PrevLSN, "update chain links through PrevLSN")

	require.Equal(t, RecordCommit, got[2].Type)
	require.Equal(t, lsn2, got[2].LastLSN)
}

func TestSequenceRecoveredOnReopen(t *testing.T) {
	wal, dir := setupWAL(t)
	for i := 0; i < 5; i++ {
		_, err := wal.Append(testUpdate(1, types.PageID(i+1), types.LSN(i), "k", "v"))
		require.NoError(t, err)
	}
	require.NoError(t, wal.Close())

	wal2, err := OpenWAL(dir, zap.NewNop())
	require.NoError(t, err)
	defer wal2.Close()

	require.Equal(t, types.LSN(5), wal2.CurrentLSN, "counter resumes after the last durable record")

	lsn, err := wal2.Append(testUpdate(2, 9, 0, "k", "v"))
	require.NoError(t, err)
	require.Equal(t, types.LSN(6), lsn)
}

// TestTornTailDiscarded simulates a crash mid-append: a partial frame at
// the tail must be dropped on reopen, and the scan must stop at the
// last verifiable record instead of failing recovery.
func TestTornTailDiscarded(t *testing.T) {
	wal, dir := setupWAL(t)
	_, err := wal.Append(testUpdate(1, 1, 0, "good", "v"))
	require.NoError(t, err)
	require.NoError(t, wal.Close())

	segPath := filepath.Join(dir, "wal_0000000000000000.log")
	f, err := os.OpenFile(segPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xde, 0xad, 0xbe}) // half a frame header
	require.NoError(t, err)
	require.NoError(t, f.Close())

	wal2, err := OpenWAL(dir, zap.NewNop())
	require.NoError(t, err)
	defer wal2.Close()

	count := 0
	require.NoError(t, wal2.Scan(func(*LogRecord) error {
		count++
		return nil
	}))
	require.Equal(t, 1, count, "only the intact record survives")

	// The torn bytes are gone; new appends land on a clean boundary.
	_, err = wal2.Append(testUpdate(2, 2, 0, "next", "v"))
	require.NoError(t, err)
	require.NoError(t, wal2.Force())

	count = 0
	require.NoError(t, wal2.Scan(func(*LogRecord) error {
		count++
		return nil
	}))
	require.Equal(t, 2, count)
}

// TestCorruptTailStopsScan flips a payload byte of the last record; the
// CRC must catch it and the scan must stop there, keeping the earlier
// records.
func TestCorruptTailStopsScan(t *testing.T) {
	wal, dir := setupWAL(t)
	_, err := wal.Append(testUpdate(1, 1, 0, "first", "v"))
	require.NoError(t, err)
	_, err = wal.Append(testUpdate(1, 2, 1, "second", "v"))
	require.NoError(t, err)
	require.NoError(t, wal.Close())

	segPath := filepath.Join(dir, "wal_0000000000000000.log")
	raw, err := os.ReadFile(segPath)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(segPath, raw, 0644))

	wal2, err := OpenWAL(dir, zap.NewNop())
	require.NoError(t, err)
	defer wal2.Close()

	var keys []string
	require.NoError(t, wal2.Scan(func(lr *LogRecord) error {
		keys = append(keys, string(lr.Redo.Key))
		return nil
	}))
	require.Equal(t, []string{"first"}, keys)
	require.Equal(t, types.LSN(1), wal2.CurrentLSN)
}

func TestPayloadRoundTripAllKinds(t *testing.T) {
	records := []*LogRecord{
		UpdateRecord(3, 9, 2, ImageUpdate([]byte{1, 2, 3, 4}), ImageUpdate(nil)),
		UpdateRecord(3, 9, 2, FreeUpdate(), ImageUpdate([]byte("old page"))),
		CommitRecord(3, 11),
	}
	for _, lr := range records {
		decoded := &LogRecord{}
		require.NoError(t, decoded.DecodePayload(lr.EncodePayload()))
		require.Equal(t, lr.Type, decoded.Type)
		require.Equal(t, lr.TxID, decoded.TxID)
		if lr.Type == RecordUpdate {
			require.Equal(t, lr.Redo.Kind, decoded.Redo.Kind)
			require.Equal(t, lr.Undo.Kind, decoded.Undo.Kind)
		} else {
			require.Equal(t, lr.LastLSN, decoded.LastLSN)
		}
	}
}
