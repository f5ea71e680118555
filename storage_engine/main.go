package storageengine

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	bplus "EmberDB/bplustree"
	"EmberDB/config"
	"EmberDB/logger"
	"EmberDB/storage_engine/bufferpool"
	diskmanager "EmberDB/storage_engine/disk_manager"
	"EmberDB/storage_engine/page"
	txn "EmberDB/storage_engine/transaction_manager"
	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

/*
The main file of the storage engine: open, the key-value operations, and
shutdown. Open never returns a half-recovered engine; any failure while
replaying the log or bootstrapping the root aborts the whole open.
*/

// Open opens (creating if absent) the store in dir.
func Open(dir string, opts config.Options) (*Engine, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}
	log, err := logger.New(opts.Log)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	disk, err := diskmanager.NewDiskManager(dir, opts.PageSize, log)
	if err != nil {
		return nil, err
	}
	meta, err := disk.ReadMeta()
	switch {
	case err == nil:
		if meta.PageSize != opts.PageSize {
			disk.Close()
			return nil, fmt.Errorf("store was created with page size %d, not %d", meta.PageSize, opts.PageSize)
		}
	case errors.Is(err, types.ErrPageNotFound):
		meta = nil // fresh store
	default:
		disk.Close()
		return nil, err
	}

	wal, err := walmanager.OpenWAL(dir, log)
	if err != nil {
		disk.Close()
		return nil, err
	}

	e := &Engine{
		dir:   dir,
		opts:  opts,
		codec: page.NewCodec(opts.PageSize),
		disk:  disk,
		wal:   wal,
		txns:  txn.NewTxnManager(),
		log:   log,
	}

	maxTx, err := e.recoverFromWAL()
	if err != nil {
		wal.Close()
		disk.Close()
		return nil, fmt.Errorf("recovery failed: %w", err)
	}
	e.txns.SetNextID(maxTx + 1)

	e.pool, err = bufferpool.NewBufferPool(opts.PageSize, opts.CacheSize, disk, log)
	if err != nil {
		wal.Close()
		disk.Close()
		return nil, err
	}
	e.pool.SetWALManager(wal)
	e.tree = bplus.NewBPlusTree(e.codec, e.pool, wal, disk, log)

	// Recovery may have rewritten the meta slot; re-read for the root.
	meta, err = disk.ReadMeta()
	switch {
	case err == nil:
		e.tree.Load(meta.Root)
	case errors.Is(err, types.ErrPageNotFound):
		if err := e.bootstrap(); err != nil {
			e.pool.Close()
			wal.Close()
			disk.Close()
			return nil, fmt.Errorf("bootstrap failed: %w", err)
		}
	default:
		e.pool.Close()
		wal.Close()
		disk.Close()
		return nil, err
	}

	log.Info("store opened",
		zap.String("dir", dir),
		zap.Int("pageSize", opts.PageSize),
		zap.Uint64("root", uint64(e.tree.Root())))
	return e, nil
}

// bootstrap creates the root leaf and meta block of a fresh store under
// its own committed transaction.
func (e *Engine) bootstrap() error {
	tx := e.txns.Begin()
	if err := e.tree.Bootstrap(tx); err != nil {
		return err
	}
	return e.commit(tx)
}

// Begin opens an explicit transaction.
func (e *Engine) Begin() *Txn {
	return &Txn{engine: e, inner: e.txns.Begin()}
}

// Get returns the value stored under key, or ErrKeyNotFound. Reads need
// no transaction.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed {
		return nil, types.ErrClosed
	}
	return e.tree.Search(key)
}

// Set stores key -> value under an auto-committed transaction.
func (e *Engine) Set(key, value []byte) error {
	tx := e.Begin()
	if err := tx.Set(key, value); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit()
}

// Delete removes key under an auto-committed transaction.
func (e *Engine) Delete(key []byte) error {
	tx := e.Begin()
	if err := tx.Delete(key); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit()
}

// Set stores key -> value within the transaction.
func (tx *Txn) Set(key, value []byte) error {
	if err := tx.usable(); err != nil {
		return err
	}
	return tx.engine.tree.Insert(tx.inner, key, value)
}

// Get reads through to the tree. The transaction sees its own writes,
// since updates apply to the cached pages as they are logged.
func (tx *Txn) Get(key []byte) ([]byte, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	return tx.engine.tree.Search(key)
}

// Delete removes key within the transaction.
func (tx *Txn) Delete(key []byte) error {
	if err := tx.usable(); err != nil {
		return err
	}
	return tx.engine.tree.Delete(tx.inner, key)
}

// Commit makes the transaction durable: Commit record, then log force.
func (tx *Txn) Commit() error {
	if err := tx.usable(); err != nil {
		return err
	}
	return tx.engine.commit(tx.inner)
}

// Abort rolls the transaction's pages back and discards it.
func (tx *Txn) Abort() error {
	if err := tx.usable(); err != nil {
		return err
	}
	return tx.engine.abort(tx.inner)
}

func (tx *Txn) usable() error {
	if tx.engine.closed {
		return types.ErrClosed
	}
	if tx.inner.State != txn.TxnActive {
		return fmt.Errorf("%w: transaction %d", types.ErrTxnFinished, tx.inner.ID)
	}
	return nil
}

func (e *Engine) commit(tx *txn.Transaction) error {
	if _, err := e.wal.Append(walmanager.CommitRecord(tx.ID, tx.LastLSN)); err != nil {
		return fmt.Errorf("failed to log commit: %w", err)
	}
	// The force is the durability boundary; data pages stay lazy.
	if err := e.wal.Force(); err != nil {
		return fmt.Errorf("failed to force log: %w", err)
	}
	return e.txns.Commit(tx.ID)
}

func (e *Engine) abort(tx *txn.Transaction) error {
	for _, rec := range tx.UndoChain() {
		if err := e.applyUndo(rec); err != nil {
			return fmt.Errorf("failed to roll back page %d: %w", rec.PageID, err)
		}
	}
	// The root pointer may have been rolled back through the meta slot.
	if meta, err := e.disk.ReadMeta(); err == nil {
		e.tree.Load(meta.Root)
	}
	if err := e.txns.Abort(tx.ID); err != nil {
		return err
	}
	e.log.Debug("aborted transaction", zap.Uint64("txn", uint64(tx.ID)))
	return nil
}

// applyUndo reverses one logged update. Undo payloads are absolute
// (full entries or whole images), so re-applying one is harmless.
func (e *Engine) applyUndo(rec txn.UndoRecord) error {
	switch rec.Undo.Kind {
	case walmanager.PageImage:
		if rec.PageID == types.InvalidPageID {
			// Meta slot: never cached, write straight through.
			return e.disk.WritePage(rec.PageID, rec.Undo.Value, rec.LSN)
		}
		ref, err := e.pool.FetchPage(rec.PageID)
		if errors.Is(err, types.ErrPageNotFound) {
			// The transaction freed this page; resurrect it.
			e.disk.Reclaim(rec.PageID)
			ref, err = e.pool.AdmitNew(rec.PageID, rec.Undo.Value, rec.LSN)
			if err != nil {
				return err
			}
			return e.pool.Unpin(ref, true)
		}
		if err != nil {
			return err
		}
		if err := e.pool.WritePinned(ref, rec.Undo.Value, rec.LSN); err != nil {
			e.pool.Unpin(ref, false)
			return err
		}
		return e.pool.Unpin(ref, true)

	case walmanager.PageSet, walmanager.PageDel:
		ref, err := e.pool.FetchPage(rec.PageID)
		if err != nil {
			return err
		}
		v, err := page.Decode(ref.Bytes())
		if err != nil {
			e.pool.Unpin(ref, false)
			return err
		}
		var newBytes []byte
		if rec.Undo.Kind == walmanager.PageSet {
			newBytes, _, err = e.codec.Insert(v, rec.Undo.Key, rec.Undo.Value)
			if err != nil {
				e.pool.Unpin(ref, false)
				return err
			}
		} else {
			newBytes, _, _ = e.codec.Remove(v, rec.Undo.Key)
		}
		if err := e.pool.WritePinned(ref, newBytes, rec.LSN); err != nil {
			e.pool.Unpin(ref, false)
			return err
		}
		return e.pool.Unpin(ref, true)

	case walmanager.PageFree:
		return e.pool.FreePage(rec.PageID)

	default:
		return fmt.Errorf("%w: unknown undo kind %d", types.ErrCorruptPage, rec.Undo.Kind)
	}
}

// Close forces the log, flushes dirty pages, forces the heap store, and
// releases the size-class regions, in that order.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(e.wal.Force())
	keep(e.pool.FlushAll())
	keep(e.disk.Sync())
	keep(e.pool.Close())
	keep(e.wal.Close())
	keep(e.disk.Close())

	e.log.Info("store closed", zap.String("dir", e.dir))
	return firstErr
}
