package types

/*
Shared identifier types for the storage engine.

All three are stable 64-bit logical values:
PageID addresses a slot in the heap store, TxID identifies a transaction,
LSN orders write-ahead log records. None of them ever refer to memory;
in-memory locations exist only inside the buffer pool (see bufferpool.PageRef).
*/

// PageID is a stable logical address into the heap store.
// It stays valid for as long as the page exists, across restarts.
type PageID uint64

// InvalidPageID doubles as the meta slot address; it is never handed out
// by the allocator.
const InvalidPageID PageID = 0

// TxID identifies a transaction. Issued monotonically by the engine,
// recovered on open as max(log)+1.
type TxID uint64

// LSN is a log sequence number: strictly increasing, durable once the
// log has been forced past it.
type LSN uint64

// InvalidLSN marks "no record": the stamp of a never-written page and the
// PrevLSN of a transaction's first update.
const InvalidLSN LSN = 0
