package types

import "errors"

// Error kinds shared across the engine. Wrap with fmt.Errorf("...: %w", err)
// at the call site so errors.Is keeps working through layers.
var (
	// page codec
	ErrCorruptPage   = errors.New("corrupt page: header and contents disagree")
	ErrKeyTooLarge   = errors.New("key exceeds largest size class")
	ErrValueTooLarge = errors.New("value exceeds largest size class")

	// heap store
	ErrPageNotFound = errors.New("page not found")

	// wal
	ErrChecksumMismatch = errors.New("checksum does not match")

	// bufferpool
	ErrOutOfMemory = errors.New("size class region exhausted: all frames pinned")

	// transactions
	ErrTxnAborted  = errors.New("transaction aborted")
	ErrTxnFinished = errors.New("transaction already committed or aborted")

	// engine
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("engine is closed")
)
