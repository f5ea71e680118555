package bplus

import (
	"fmt"

	"go.uber.org/zap"

	"EmberDB/storage_engine/bufferpool"
	diskmanager "EmberDB/storage_engine/disk_manager"
	"EmberDB/storage_engine/page"
	txn "EmberDB/storage_engine/transaction_manager"
	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

func NewBPlusTree(codec *page.Codec, cache *bufferpool.BufferPool, wal *walmanager.WALManager,
	disk *diskmanager.DiskManager, log *zap.Logger) *BPlusTree {
	return &BPlusTree{
		codec: codec,
		cache: cache,
		wal:   wal,
		disk:  disk,
		log:   log,
	}
}

// Load points the tree at an existing root, typically the one recovered
// from the meta slot.
func (t *BPlusTree) Load(root types.PageID) {
	t.root = root
}

// Bootstrap creates the empty root leaf of a fresh store and persists
// the root pointer. The root leaf covers the whole key space.
func (t *BPlusTree) Bootstrap(tx *txn.Transaction) error {
	rootBytes := page.Encode(page.NewLeaf(nil, nil))
	pid := t.disk.AllocatePage()

	lsn, err := t.logUpdate(tx, pid, walmanager.ImageUpdate(rootBytes), walmanager.FreeUpdate())
	if err != nil {
		return err
	}
	ref, err := t.cache.AdmitNew(pid, rootBytes, lsn)
	if err != nil {
		return err
	}
	if err := t.cache.Unpin(ref, true); err != nil {
		return err
	}

	if err := t.saveRoot(tx, pid); err != nil {
		return err
	}
	t.log.Debug("bootstrapped tree", zap.Uint64("root", uint64(pid)))
	return nil
}

// saveRoot logs and writes the meta block with the new root pointer.
// The meta slot goes through the same image-update machinery as any
// page, so root changes replay and undo generically.
func (t *BPlusTree) saveRoot(tx *txn.Transaction, root types.PageID) error {
	oldMeta := diskmanager.EncodeMeta(&diskmanager.Meta{
		PageSize:    t.codec.PageSize,
		SizeClasses: page.SizeClasses,
		Root:        t.root,
	})
	newMeta := diskmanager.EncodeMeta(&diskmanager.Meta{
		PageSize:    t.codec.PageSize,
		SizeClasses: page.SizeClasses,
		Root:        root,
	})

	lsn, err := t.logUpdate(tx, types.InvalidPageID,
		walmanager.ImageUpdate(newMeta), walmanager.ImageUpdate(oldMeta))
	if err != nil {
		return err
	}
	if err := t.disk.WritePage(types.InvalidPageID, newMeta, lsn); err != nil {
		return fmt.Errorf("failed to persist root change: %w", err)
	}
	t.root = root
	return nil
}

// logUpdate appends one update record and links it into the
// transaction's undo chain. The page mutation it describes must only be
// applied after this returns.
func (t *BPlusTree) logUpdate(tx *txn.Transaction, pid types.PageID, redo, undo walmanager.PageUpdate) (types.LSN, error) {
	lsn, err := t.wal.Append(walmanager.UpdateRecord(tx.ID, pid, tx.LastLSN, redo, undo))
	if err != nil {
		return 0, err
	}
	tx.RecordUpdate(lsn, pid, undo)
	return lsn, nil
}

// snapshot copies a pinned page's resident image, for undo payloads
// that must outlive the pin scope.
func snapshot(ref *bufferpool.PageRef) []byte {
	return append([]byte(nil), ref.Bytes()...)
}
