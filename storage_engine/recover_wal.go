package storageengine

import (
	"fmt"

	"go.uber.org/zap"

	"EmberDB/storage_engine/page"
	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

// recoverFromWAL is called once at startup, before the buffer pool
// exists, so pages are patched straight through the disk manager.
//
// One scan collects everything: every Update record is replayed into
// the heap store (redo phase; the per-slot stamp makes replay
// idempotent), Commit records mark the winners, and afterwards every
// update belonging to a transaction without a Commit record is reversed
// in reverse log order (undo phase). The scanner itself discards any
// torn tail, so a crash mid-append just shortens the replayed prefix.
//
// Returns the largest transaction id seen, so the id counter can resume
// past it.
func (e *Engine) recoverFromWAL() (types.TxID, error) {
	var updates []*walmanager.LogRecord
	winners := make(map[types.TxID]bool)
	maxTx := types.TxID(0)

	err := e.wal.Scan(func(lr *walmanager.LogRecord) error {
		if lr.TxID > maxTx {
			maxTx = lr.TxID
		}
		switch lr.Type {
		case walmanager.RecordCommit:
			winners[lr.TxID] = true
			return nil
		case walmanager.RecordUpdate:
			updates = append(updates, lr)
			return e.redoApply(lr)
		default:
			return fmt.Errorf("%w: record type %d", types.ErrChecksumMismatch, lr.Type)
		}
	})
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 && len(winners) == 0 {
		return maxTx, nil
	}

	undone := 0
	for i := len(updates) - 1; i >= 0; i-- {
		lr := updates[i]
		if winners[lr.TxID] {
			continue
		}
		if err := e.undoApply(lr); err != nil {
			return 0, err
		}
		undone++
	}

	if err := e.disk.Sync(); err != nil {
		return 0, err
	}
	e.log.Info("recovered from log",
		zap.Int("updates", len(updates)),
		zap.Int("committed", len(winners)),
		zap.Int("undone", undone))
	return maxTx, nil
}

// redoApply replays one update's redo payload onto the heap store. The
// slot stamp gate skips records already reflected in a flushed page.
func (e *Engine) redoApply(lr *walmanager.LogRecord) error {
	if e.disk.PageLSN(lr.PageID) >= lr.LSN {
		return nil
	}
	return e.applyToDisk(lr.PageID, &lr.Redo, lr.LSN)
}

// undoApply reverses one update of a losing transaction. The page is
// stamped with the undone record's sequence number; undo payloads are
// absolute, so a repeat after another crash lands on the same state.
func (e *Engine) undoApply(lr *walmanager.LogRecord) error {
	return e.applyToDisk(lr.PageID, &lr.Undo, lr.LSN)
}

// applyToDisk applies one page update payload directly to the heap
// store image.
func (e *Engine) applyToDisk(pid types.PageID, u *walmanager.PageUpdate, lsn types.LSN) error {
	switch u.Kind {
	case walmanager.PageImage:
		if err := e.disk.WritePage(pid, u.Value, lsn); err != nil {
			return err
		}
		e.disk.Reclaim(pid)
		return nil

	case walmanager.PageFree:
		return e.disk.FreePage(pid)

	case walmanager.PageSet, walmanager.PageDel:
		data, _, err := e.disk.ReadPage(pid)
		if err != nil {
			return fmt.Errorf("replaying update against page %d: %w", pid, err)
		}
		v, err := page.Decode(data)
		if err != nil {
			return err
		}
		var newBytes []byte
		if u.Kind == walmanager.PageSet {
			newBytes, _, err = e.codec.Insert(v, u.Key, u.Value)
			if err != nil {
				return err
			}
		} else {
			newBytes, _, _ = e.codec.Remove(v, u.Key)
		}
		return e.disk.WritePage(pid, newBytes, lsn)

	default:
		return fmt.Errorf("%w: unknown page update kind %d", types.ErrCorruptPage, u.Kind)
	}
}
