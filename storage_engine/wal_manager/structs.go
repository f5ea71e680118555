package wal_manager

import (
	"os"

	"go.uber.org/zap"

	"EmberDB/types"
)

const (
	// RecordHeaderSize frames every record: LSN (8), LEN (4), CRC (4).
	RecordHeaderSize = 16

	// SegmentSize caps one segment file before rolling to the next.
	SegmentSize = 16 * 1024 * 1024
)

// WALManager owns the append-only log store: a directory of segment
// files, a monotonic sequence counter, and the durability boundary
// (Force). Appends do not sync; Commit-time Force does.
type WALManager struct {
	Directory   string
	CurrSegment *WALSegment
	CurrentLSN  types.LSN
	Segments    map[uint64]*WALSegment

	// lastForced is the highest LSN known durable; the buffer pool
	// refuses to flush a page whose stamp is above it.
	lastForced types.LSN

	log *zap.Logger
}

// FlushedLSN reports the highest durably persisted sequence number.
func (w *WALManager) FlushedLSN() types.LSN {
	return w.lastForced
}

// WALSegment is one append-only segment file.
type WALSegment struct {
	SegmentId uint64
	FilePath  string
	File      *os.File
	Size      int64
}

// WALRecord is the framed form of a record on disk: the header fields
// plus the serialized payload. The CRC covers LSN and payload, so a
// torn or damaged tail is always detectable.
type WALRecord struct {
	LSN  types.LSN
	Data []byte
	CRC  uint32
}
