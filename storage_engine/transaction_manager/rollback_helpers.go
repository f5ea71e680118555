package txn

import (
	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

/*
Before a transaction completes it is not known whether it will commit or
abort. Each logged update therefore parks its undo payload here, so an
abort can reverse the pages without reading the log back.
*/

// RecordUpdate links one logged update into the transaction's chain.
// lsn is the sequence number the log assigned to the update record.
func (txn *Transaction) RecordUpdate(lsn types.LSN, pid types.PageID, undo walmanager.PageUpdate) {
	txn.undo = append(txn.undo, UndoRecord{LSN: lsn, PageID: pid, Undo: undo})
	txn.LastLSN = lsn
}

// UndoChain returns the recorded updates in reverse order, newest first,
// which is the order an abort must apply them in.
func (txn *Transaction) UndoChain() []UndoRecord {
	chain := make([]UndoRecord, len(txn.undo))
	for i, rec := range txn.undo {
		chain[len(txn.undo)-1-i] = rec
	}
	return chain
}
