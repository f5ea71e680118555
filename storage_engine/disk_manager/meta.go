package diskmanager

import (
	"encoding/binary"
	"errors"
	"fmt"

	"EmberDB/types"
)

/*
Slot 0 holds the store meta block instead of a tree page. It travels
through the same stamp + WritePage path as every other page, so logged
meta updates (root changes) replay with the same machinery.
*/

const (
	metaMagic   = 0x456D6272 // "Embr"
	metaVersion = 1

	// MetaSize: magic(4) version(4) pageSize(4) sizeClasses(4) root(8)
	MetaSize = 24
)

// Meta is the decoded store meta block.
type Meta struct {
	PageSize    int
	SizeClasses int
	Root        types.PageID
}

// EncodeMeta serializes a meta block for slot 0.
func EncodeMeta(m *Meta) []byte {
	buf := make([]byte, MetaSize)
	binary.LittleEndian.PutUint32(buf[0:4], metaMagic)
	binary.LittleEndian.PutUint32(buf[4:8], metaVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.PageSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(m.SizeClasses))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.Root))
	return buf
}

// DecodeMeta parses slot 0 contents, rejecting foreign or damaged files.
func DecodeMeta(buf []byte) (*Meta, error) {
	if len(buf) < MetaSize {
		return nil, fmt.Errorf("%w: meta block is %d bytes", types.ErrCorruptPage, len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != metaMagic {
		return nil, fmt.Errorf("%w: bad magic, not an EmberDB heap store", types.ErrCorruptPage)
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != metaVersion {
		return nil, fmt.Errorf("%w: meta version %d unsupported", types.ErrCorruptPage, v)
	}
	return &Meta{
		PageSize:    int(binary.LittleEndian.Uint32(buf[8:12])),
		SizeClasses: int(binary.LittleEndian.Uint32(buf[12:16])),
		Root:        types.PageID(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}

// ReadMeta loads and validates the meta block. A store that has never
// been bootstrapped reports ErrPageNotFound.
func (dm *DiskManager) ReadMeta() (*Meta, error) {
	data, _, err := dm.ReadPage(types.InvalidPageID)
	if err != nil {
		if errors.Is(err, types.ErrPageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read meta slot: %w", err)
	}
	return DecodeMeta(data)
}

// WriteMeta stores the meta block with the given stamp.
func (dm *DiskManager) WriteMeta(m *Meta, lsn types.LSN) error {
	return dm.WritePage(types.InvalidPageID, EncodeMeta(m), lsn)
}
