package txn

import (
	"testing"

	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

func TestBeginIssuesMonotonicIDs(t *testing.T) {
	tm := NewTxnManager()

	t1 := tm.Begin()
	t2 := tm.Begin()
	if t2.ID <= t1.ID {
		t.Fatalf("ids not monotonic: %d then %d", t1.ID, t2.ID)
	}
	if !tm.IsActive(t1.ID) || !tm.IsActive(t2.ID) {
		t.Fatal("fresh transactions should be active")
	}
}

func TestSetNextIDNeverLowers(t *testing.T) {
	tm := NewTxnManager()
	tm.SetNextID(100)
	if got := tm.Begin().ID; got != 100 {
		t.Fatalf("expected id 100 after SetNextID, got %d", got)
	}

	tm.SetNextID(5)
	if got := tm.Begin().ID; got != 101 {
		t.Fatalf("SetNextID lowered the counter: got %d", got)
	}
}

func TestCommitAndAbortAreTerminal(t *testing.T) {
	tm := NewTxnManager()

	tx := tm.Begin()
	if err := tm.Commit(tx.ID); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if tm.IsActive(tx.ID) {
		t.Fatal("committed transaction still active")
	}
	// Repeating is idempotent.
	if err := tm.Commit(tx.ID); err != nil {
		t.Fatalf("repeated Commit: %v", err)
	}
	if err := tm.Abort(tx.ID); err != nil {
		t.Fatalf("Abort of a finished transaction should be a no-op: %v", err)
	}

	tx2 := tm.Begin()
	if err := tm.Abort(tx2.ID); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if tx2.State != TxnAborted {
		t.Fatalf("expected aborted state, got %d", tx2.State)
	}
}

func TestUndoChainIsNewestFirst(t *testing.T) {
	tm := NewTxnManager()
	tx := tm.Begin()

	tx.RecordUpdate(10, 3, walmanager.DelUpdate([]byte("a")))
	tx.RecordUpdate(11, 4, walmanager.SetUpdate([]byte("b"), []byte("old")))
	tx.RecordUpdate(12, 3, walmanager.DelUpdate([]byte("c")))

	if tx.LastLSN != 12 {
		t.Fatalf("expected LastLSN 12, got %d", tx.LastLSN)
	}

	chain := tx.UndoChain()
	if len(chain) != 3 {
		t.Fatalf("expected 3 undo records, got %d", len(chain))
	}
	wantLSNs := []types.LSN{12, 11, 10}
	for i, rec := range chain {
		if rec.LSN != wantLSNs[i] {
			t.Fatalf("undo chain out of order at %d: got lsn %d, want %d", i, rec.LSN, wantLSNs[i])
		}
	}
	if chain[1].PageID != 4 || string(chain[1].Undo.Key) != "b" {
		t.Fatal("undo payload lost in the chain")
	}
}
