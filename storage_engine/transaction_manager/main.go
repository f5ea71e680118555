package txn

import (
	"fmt"

	"EmberDB/types"
)

/*
Transaction manager manages the BEGIN, COMMIT, ABORT state of mutations
that are to be made atomically (either all of them land or none).

It only tracks state and undo chains; the log append and the page-level
undo application belong to the storage engine, which owns the log and
the buffer pool.
*/

func NewTxnManager() *TxnManager {
	return &TxnManager{
		nextID:     1,
		activeTxns: make(map[types.TxID]*Transaction),
	}
}

// SetNextID bumps the id counter after recovery, so ids never repeat
// across restarts. Lower values are ignored.
func (tm *TxnManager) SetNextID(next types.TxID) {
	if next > tm.nextID {
		tm.nextID = next
	}
}

// Begin starts a new transaction and registers it as active.
func (tm *TxnManager) Begin() *Transaction {
	txnID := tm.nextID
	tm.nextID++

	txn := &Transaction{
		ID:    txnID,
		State: TxnActive,
	}
	tm.activeTxns[txnID] = txn
	return txn
}

// Commit marks a transaction as committed and removes it from the active
// set. Called AFTER the Commit record has been appended and the log
// forced.
func (tm *TxnManager) Commit(txnID types.TxID) error {
	txn, exists := tm.activeTxns[txnID]
	if !exists {
		// Already committed/aborted or never existed.
		return nil
	}
	if txn.State == TxnAborted {
		return fmt.Errorf("%w: transaction %d was already aborted", types.ErrTxnFinished, txnID)
	}

	txn.State = TxnCommitted
	txn.undo = nil
	delete(tm.activeTxns, txnID)
	return nil
}

// Abort marks a transaction as aborted and removes it from the active
// set. Called AFTER the engine has applied the undo chain; no log record
// is written for an abort, because nothing outside the process can have
// observed the transaction's effects before its Commit record.
func (tm *TxnManager) Abort(txnID types.TxID) error {
	txn, exists := tm.activeTxns[txnID]
	if !exists {
		return nil
	}
	if txn.State == TxnCommitted {
		return fmt.Errorf("%w: transaction %d was already committed", types.ErrTxnFinished, txnID)
	}

	txn.State = TxnAborted
	txn.undo = nil
	delete(tm.activeTxns, txnID)
	return nil
}

// GetTransaction returns the transaction with the given ID, or nil if not found.
func (tm *TxnManager) GetTransaction(txnID types.TxID) *Transaction {
	return tm.activeTxns[txnID]
}

// IsActive returns true if the given txnID is currently active.
func (tm *TxnManager) IsActive(txnID types.TxID) bool {
	_, exists := tm.activeTxns[txnID]
	return exists
}

// ActiveTransactions returns a snapshot of all currently active transactions.
func (tm *TxnManager) ActiveTransactions() []*Transaction {
	txns := make([]*Transaction, 0, len(tm.activeTxns))
	for _, txn := range tm.activeTxns {
		txns = append(txns, txn)
	}
	return txns
}
