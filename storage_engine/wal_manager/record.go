package wal_manager

import (
	"encoding/binary"
	"fmt"

	"EmberDB/types"
)

/*
Record payloads are a binary tagged union:

  Update: type(1) txID(8) pageID(8) prevLSN(8) redo undo
  Commit: type(1) txID(8) lastLSN(8)

where a page update is kind(1) keyLen(4) key valLen(4) value, all
little-endian. Image payloads put the whole page image in the value
field; Free payloads carry nothing.
*/

// RecordType tags the union.
type RecordType byte

const (
	RecordUpdate RecordType = 1
	RecordCommit RecordType = 2
)

// PageUpdateKind tags one redo or undo payload.
type PageUpdateKind byte

const (
	// PageSet inserts or replaces one entry in place.
	PageSet PageUpdateKind = 1
	// PageDel removes one entry in place.
	PageDel PageUpdateKind = 2
	// PageImage replaces the whole page image; structural changes
	// (splits, merges, allocations, meta updates) are logged this way.
	PageImage PageUpdateKind = 3
	// PageFree deallocates the page.
	PageFree PageUpdateKind = 4
)

// PageUpdate is a redo or undo payload against a single page.
type PageUpdate struct {
	Kind  PageUpdateKind
	Key   []byte
	Value []byte // entry value for Set, page image for Image
}

// SetUpdate, DelUpdate, ImageUpdate, FreeUpdate are payload shorthands.
func SetUpdate(key, value []byte) PageUpdate { return PageUpdate{Kind: PageSet, Key: key, Value: value} }
func DelUpdate(key []byte) PageUpdate        { return PageUpdate{Kind: PageDel, Key: key} }
func ImageUpdate(image []byte) PageUpdate    { return PageUpdate{Kind: PageImage, Value: image} }
func FreeUpdate() PageUpdate                 { return PageUpdate{Kind: PageFree} }

// LogRecord is the decoded form of one log entry.
type LogRecord struct {
	LSN  types.LSN
	Type RecordType

	// Update fields.
	TxID    types.TxID
	PageID  types.PageID
	PrevLSN types.LSN // previous record of the same transaction
	Redo    PageUpdate
	Undo    PageUpdate

	// Commit fields (TxID shared with Update).
	LastLSN types.LSN
}

// UpdateRecord builds an Update entry; the LSN is assigned on Append.
func UpdateRecord(tx types.TxID, pid types.PageID, prevLSN types.LSN, redo, undo PageUpdate) *LogRecord {
	return &LogRecord{Type: RecordUpdate, TxID: tx, PageID: pid, PrevLSN: prevLSN, Redo: redo, Undo: undo}
}

// CommitRecord builds a Commit entry for a transaction whose final
// update got lastLSN.
func CommitRecord(tx types.TxID, lastLSN types.LSN) *LogRecord {
	return &LogRecord{Type: RecordCommit, TxID: tx, LastLSN: lastLSN}
}

// EncodePayload serializes the record body (everything the frame CRC
// covers besides the LSN).
func (lr *LogRecord) EncodePayload() []byte {
	switch lr.Type {
	case RecordCommit:
		buf := make([]byte, 1+8+8)
		buf[0] = byte(RecordCommit)
		binary.LittleEndian.PutUint64(buf[1:9], uint64(lr.TxID))
		binary.LittleEndian.PutUint64(buf[9:17], uint64(lr.LastLSN))
		return buf
	default:
		buf := make([]byte, 0, 1+8+8+8+updateSize(&lr.Redo)+updateSize(&lr.Undo))
		buf = append(buf, byte(RecordUpdate))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(lr.TxID))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(lr.PageID))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(lr.PrevLSN))
		buf = appendUpdate(buf, &lr.Redo)
		buf = appendUpdate(buf, &lr.Undo)
		return buf
	}
}

// DecodePayload parses a record body back into lr.
func (lr *LogRecord) DecodePayload(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("%w: empty log payload", types.ErrChecksumMismatch)
	}
	switch RecordType(data[0]) {
	case RecordCommit:
		if len(data) != 17 {
			return fmt.Errorf("%w: commit payload is %d bytes", types.ErrChecksumMismatch, len(data))
		}
		lr.Type = RecordCommit
		lr.TxID = types.TxID(binary.LittleEndian.Uint64(data[1:9]))
		lr.LastLSN = types.LSN(binary.LittleEndian.Uint64(data[9:17]))
		return nil
	case RecordUpdate:
		if len(data) < 25 {
			return fmt.Errorf("%w: update payload is %d bytes", types.ErrChecksumMismatch, len(data))
		}
		lr.Type = RecordUpdate
		lr.TxID = types.TxID(binary.LittleEndian.Uint64(data[1:9]))
		lr.PageID = types.PageID(binary.LittleEndian.Uint64(data[9:17]))
		lr.PrevLSN = types.LSN(binary.LittleEndian.Uint64(data[17:25]))
		rest, err := readUpdate(data[25:], &lr.Redo)
		if err != nil {
			return err
		}
		rest, err = readUpdate(rest, &lr.Undo)
		if err != nil {
			return err
		}
		if len(rest) != 0 {
			return fmt.Errorf("%w: %d stray bytes after update payload", types.ErrChecksumMismatch, len(rest))
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown record type %d", types.ErrChecksumMismatch, data[0])
	}
}

func updateSize(u *PageUpdate) int {
	return 1 + 4 + len(u.Key) + 4 + len(u.Value)
}

func appendUpdate(buf []byte, u *PageUpdate) []byte {
	buf = append(buf, byte(u.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(u.Key)))
	buf = append(buf, u.Key...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(u.Value)))
	buf = append(buf, u.Value...)
	return buf
}

func readUpdate(data []byte, u *PageUpdate) (rest []byte, err error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: truncated page update", types.ErrChecksumMismatch)
	}
	u.Kind = PageUpdateKind(data[0])
	keyLen := int(binary.LittleEndian.Uint32(data[1:5]))
	data = data[5:]
	if len(data) < keyLen+4 {
		return nil, fmt.Errorf("%w: truncated page update key", types.ErrChecksumMismatch)
	}
	u.Key = data[:keyLen]
	data = data[keyLen:]
	valLen := int(binary.LittleEndian.Uint32(data[0:4]))
	data = data[4:]
	if len(data) < valLen {
		return nil, fmt.Errorf("%w: truncated page update value", types.ErrChecksumMismatch)
	}
	u.Value = data[:valLen]
	return data[valLen:], nil
}
