package storageengine

import (
	"go.uber.org/zap"

	bplus "EmberDB/bplustree"
	"EmberDB/config"
	"EmberDB/storage_engine/bufferpool"
	diskmanager "EmberDB/storage_engine/disk_manager"
	"EmberDB/storage_engine/page"
	txn "EmberDB/storage_engine/transaction_manager"
	walmanager "EmberDB/storage_engine/wal_manager"
)

// ############################################# STORAGE ENGINE #############################################

// Engine is the embedded store facade: one heap file, one log, one
// tree, all under a single directory. It is not safe for concurrent
// use; callers run operations one at a time.
type Engine struct {
	dir  string
	opts config.Options

	codec *page.Codec
	disk  *diskmanager.DiskManager
	wal   *walmanager.WALManager
	pool  *bufferpool.BufferPool
	txns  *txn.TxnManager
	tree  *bplus.BPlusTree

	log    *zap.Logger
	closed bool
}

// Txn binds key-value operations to one open transaction.
type Txn struct {
	engine *Engine
	inner  *txn.Transaction
}
