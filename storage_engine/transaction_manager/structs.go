package txn

import (
	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

type TxnState uint8

const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnAborted
)

type Transaction struct {
	ID    types.TxID
	State TxnState

	// LastLSN is the sequence number of the most recent update, and the
	// PrevLSN of the next one.
	LastLSN types.LSN

	// Physical UNDO support: one entry per logged update, in log order.
	undo []UndoRecord
}

// UndoRecord keeps everything needed to reverse one update without
// re-reading the log.
type UndoRecord struct {
	LSN    types.LSN
	PageID types.PageID
	Undo   walmanager.PageUpdate
}

type TxnManager struct {
	nextID     types.TxID
	activeTxns map[types.TxID]*Transaction // all currently active transactions
}
