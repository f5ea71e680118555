package wal_manager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"EmberDB/types"
)

/*

WAL Segment File
────────────────────────────────────
| Record | Record | Record | ...   |
────────────────────────────────────

Each Record:
────────────────────────────────────────────
| LSN (8) | LEN (4) | CRC (4) | DATA (LEN) |
────────────────────────────────────────────

DATA is the tagged Update/Commit payload (record.go). Appends never
sync on their own; Force is the single durability boundary, called on
transaction commit. A record whose frame is cut short or whose CRC
fails is a torn tail from an interrupted append: it is truncated away
on open and replay stops at the last verifiable record.

*/

func OpenWAL(directory string, log *zap.Logger) (*WALManager, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	wal := &WALManager{
		Directory: directory,
		Segments:  make(map[uint64]*WALSegment),
		log:       log,
	}

	if err := wal.recoverWALEntries(); err != nil {
		return nil, err
	}

	if wal.CurrSegment == nil {
		if err := wal.createNewSegment(); err != nil {
			return nil, err
		}
	}

	return wal, nil
}

// recoverWALEntries opens the existing segments, restores the sequence
// counter from the largest verifiable record, and drops any torn tail
// so that future appends continue from a clean boundary.
func (w *WALManager) recoverWALEntries() error {
	files, err := filepath.Glob(filepath.Join(w.Directory, "wal_*.log"))
	if err != nil {
		return err
	}

	var segmentIDs []uint64
	for _, file := range files {
		name := filepath.Base(file)
		if !strings.HasPrefix(name, "wal_") || !strings.HasSuffix(name, ".log") {
			continue
		}

		hexPart := strings.TrimSuffix(
			strings.TrimPrefix(name, "wal_"),
			".log",
		)
		segmentID, err := strconv.ParseUint(hexPart, 16, 64)
		if err != nil {
			continue
		}

		segmentIDs = append(segmentIDs, segmentID)
	}

	if len(segmentIDs) == 0 {
		return nil
	}

	slices.Sort(segmentIDs)

	maxLSN := types.LSN(0)
	for _, segmentID := range segmentIDs {
		segment := InitializeWALSegment(segmentID, w.Directory)
		if err := segment.Open(); err != nil {
			return err
		}
		w.Segments[segmentID] = segment

		lsn, validSize, err := w.scanSegment(segment, nil)
		if err != nil {
			return err
		}
		if lsn > maxLSN {
			maxLSN = lsn
		}

		if validSize < segment.Size {
			w.log.Warn("dropping torn WAL tail",
				zap.Uint64("segment", segmentID),
				zap.Int64("valid", validSize),
				zap.Int64("size", segment.Size))
			if err := segment.Truncate(validSize); err != nil {
				return err
			}
		}
	}

	lastSegmentID := segmentIDs[len(segmentIDs)-1]
	w.CurrSegment = w.Segments[lastSegmentID]
	w.CurrentLSN = maxLSN
	// Records read back from disk are already durable.
	w.lastForced = maxLSN

	w.log.Debug("recovered WAL",
		zap.Int("segments", len(segmentIDs)),
		zap.Uint64("lsn", uint64(maxLSN)))
	return nil
}

func (w *WALManager) createNewSegment() error {
	segmentID := uint64(len(w.Segments))
	segment := InitializeWALSegment(segmentID, w.Directory)

	if err := segment.Open(); err != nil {
		return err
	}

	w.Segments[segmentID] = segment
	w.CurrSegment = segment
	return nil
}

// Append assigns the next sequence number, frames and appends the
// record. The record is not durable until the next Force.
func (w *WALManager) Append(lr *LogRecord) (types.LSN, error) {
	w.CurrentLSN++
	lr.LSN = w.CurrentLSN

	data := lr.EncodePayload()
	record := &WALRecord{
		LSN:  lr.LSN,
		Data: data,
		CRC:  calculateCRC(uint64(lr.LSN), data),
	}

	if w.CurrSegment.IsFull() {
		// Seal the old segment before moving on, so that replay order
		// never depends on an unsynced earlier segment.
		if err := w.CurrSegment.Sync(); err != nil {
			return 0, err
		}
		if err := w.createNewSegment(); err != nil {
			return 0, err
		}
	}

	if _, err := w.CurrSegment.Append(record.Encode()); err != nil {
		return 0, err
	}

	return lr.LSN, nil
}

// Force syncs the log to durable storage. This is the engine's sole
// durability boundary: a commit is an Append followed by a Force.
func (w *WALManager) Force() error {
	if err := w.CurrSegment.Sync(); err != nil {
		return err
	}
	w.lastForced = w.CurrentLSN
	return nil
}

// Scan replays every verifiable record from the beginning of the log in
// sequence order. A torn or checksum-failing record ends the scan
// without error; corruption of the log tail is an expected crash
// artifact, not a failure.
func (w *WALManager) Scan(apply func(*LogRecord) error) error {
	var segmentIDs []uint64
	for id := range w.Segments {
		segmentIDs = append(segmentIDs, id)
	}
	slices.Sort(segmentIDs)

	for _, segmentID := range segmentIDs {
		_, _, err := w.scanSegment(w.Segments[segmentID], apply)
		if err != nil {
			return fmt.Errorf("failed to replay segment %d: %w", segmentID, err)
		}
	}

	return nil
}

// scanSegment walks one segment, returning the largest LSN seen and the
// byte offset of the end of the last verifiable record. apply may be
// nil when only the scan positions are wanted. Errors from apply abort
// the scan; torn or corrupt records merely end it.
func (w *WALManager) scanSegment(segment *WALSegment, apply func(*LogRecord) error) (types.LSN, int64, error) {
	file, err := os.Open(segment.FilePath)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	maxLSN := types.LSN(0)
	validSize := int64(0)
	header := make([]byte, RecordHeaderSize)

	for {
		_, err := io.ReadFull(file, header)
		if err == io.EOF {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			break // torn frame header
		}
		if err != nil {
			return 0, 0, err
		}

		lsn := binary.BigEndian.Uint64(header[0:8])
		dataLen := binary.BigEndian.Uint32(header[8:12])
		crc := binary.BigEndian.Uint32(header[12:16])

		if int64(dataLen) > SegmentSize {
			break // garbage header from a torn write
		}

		data := make([]byte, dataLen)
		if _, err := io.ReadFull(file, data); err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				break // torn payload
			}
			return 0, 0, err
		}

		if calculateCRC(lsn, data) != crc {
			w.log.Warn("WAL checksum mismatch, stopping scan",
				zap.Uint64("lsn", lsn),
				zap.Uint64("segment", segment.SegmentId))
			break
		}

		if apply != nil {
			lr := &LogRecord{}
			if err := lr.DecodePayload(data); err != nil {
				w.log.Warn("undecodable WAL payload, stopping scan",
					zap.Uint64("lsn", lsn), zap.Error(err))
				break
			}
			lr.LSN = types.LSN(lsn)
			if err := apply(lr); err != nil {
				return 0, 0, fmt.Errorf("failed to apply record at LSN %d: %w", lsn, err)
			}
		}

		if types.LSN(lsn) > maxLSN {
			maxLSN = types.LSN(lsn)
		}
		validSize += int64(RecordHeaderSize) + int64(dataLen)
	}

	return maxLSN, validSize, nil
}

func (w *WALManager) Close() error {
	for _, seg := range w.Segments {
		if seg.File != nil {
			if err := seg.Sync(); err != nil {
				return err
			}
			if err := seg.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
