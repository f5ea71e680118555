package diskmanager

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"EmberDB/storage_engine/page"
	"EmberDB/types"
)

/*
This is the main file for the disk manager.
It owns:
  - the heap store file descriptor (os.File)
  - reading/writing page images at slot offsets (ReadAt, WriteAt)
  - page allocation: the nextPage counter and the free list

Addressing is deterministic: offset = PageID * slotSize. The counter is
recovered on open from the file size, and the free list is rebuilt from
the per-slot stamps, so no allocation state needs its own persistence.

Slot 0 is the meta slot (see meta.go); AllocatePage never hands it out.
*/

// NewDiskManager opens (creating if absent) the heap store in dir.
// pageSize is the base size class; each heap slot is sized for the
// largest class on top of it.
func NewDiskManager(dir string, pageSize int, log *zap.Logger) (*DiskManager, error) {
	filePath := filepath.Join(dir, HeapFileName)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open heap store %s: %w", filePath, err)
	}

	dm := &DiskManager{
		file:     file,
		filePath: filePath,
		pageSize: pageSize,
		slotSize: int64(SlotHeaderSize + pageSize<<(page.SizeClasses-1)),
		log:      log,
	}

	if err := dm.recoverAllocations(); err != nil {
		file.Close()
		return nil, err
	}

	log.Debug("heap store opened",
		zap.String("path", filePath),
		zap.Uint64("pages", uint64(dm.nextPage)),
		zap.Int("free", len(dm.freePages)))
	return dm, nil
}

// recoverAllocations derives nextPage from the file size and rebuilds
// the free list from the slot stamps.
func (dm *DiskManager) recoverAllocations() error {
	stat, err := dm.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat heap store: %w", err)
	}

	slots := (stat.Size() + dm.slotSize - 1) / dm.slotSize
	dm.nextPage = types.PageID(slots)
	if dm.nextPage == 0 {
		dm.nextPage = 1 // slot 0 is always the meta slot
	}

	header := make([]byte, SlotHeaderSize)
	for pid := types.PageID(1); pid < dm.nextPage; pid++ {
		if _, err := dm.file.ReadAt(header, int64(pid)*dm.slotSize); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return fmt.Errorf("failed to read slot %d stamp: %w", pid, err)
		}
		if header[12]&slotFlagAllocated == 0 {
			dm.freePages = append(dm.freePages, pid)
		}
	}
	return nil
}

// ReadPage returns the encoded page image and its stamp LSN.
func (dm *DiskManager) ReadPage(pid types.PageID) ([]byte, types.LSN, error) {
	if pid >= dm.nextPage {
		return nil, 0, fmt.Errorf("%w: page %d past heap end %d", types.ErrPageNotFound, pid, dm.nextPage)
	}

	offset := int64(pid) * dm.slotSize
	header := make([]byte, SlotHeaderSize)
	if _, err := dm.file.ReadAt(header, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, fmt.Errorf("%w: page %d never written", types.ErrPageNotFound, pid)
		}
		return nil, 0, fmt.Errorf("failed to read page %d stamp: %w", pid, err)
	}

	lsn := types.LSN(binary.LittleEndian.Uint64(header[0:8]))
	length := int(binary.LittleEndian.Uint32(header[8:12]))
	if header[12]&slotFlagAllocated == 0 {
		return nil, 0, fmt.Errorf("%w: page %d is freed", types.ErrPageNotFound, pid)
	}
	if length > dm.PageCapacity() {
		return nil, 0, fmt.Errorf("%w: page %d declares %d bytes", types.ErrCorruptPage, pid, length)
	}

	data := make([]byte, length)
	if _, err := dm.file.ReadAt(data, offset+SlotHeaderSize); err != nil {
		return nil, 0, fmt.Errorf("failed to read page %d: %w", pid, err)
	}
	return data, lsn, nil
}

// PageLSN reads just the stamp of a slot. Unwritten and freed slots
// report InvalidLSN, letting replay treat them as blank.
func (dm *DiskManager) PageLSN(pid types.PageID) types.LSN {
	if pid >= dm.nextPage {
		return types.InvalidLSN
	}
	header := make([]byte, SlotHeaderSize)
	if _, err := dm.file.ReadAt(header, int64(pid)*dm.slotSize); err != nil {
		return types.InvalidLSN
	}
	if header[12]&slotFlagAllocated == 0 {
		return types.InvalidLSN
	}
	return types.LSN(binary.LittleEndian.Uint64(header[0:8]))
}

// WritePage stamps and writes a page image. lsn is the sequence number
// of the last log record reflected in data; replay relies on it for
// idempotency, so callers must never write a page with a stale stamp.
func (dm *DiskManager) WritePage(pid types.PageID, data []byte, lsn types.LSN) error {
	if len(data) > dm.PageCapacity() {
		return fmt.Errorf("%w: %d bytes into a %d byte slot", types.ErrValueTooLarge, len(data), dm.PageCapacity())
	}

	buf := make([]byte, SlotHeaderSize+len(data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(lsn))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(data)))
	buf[12] = slotFlagAllocated
	copy(buf[SlotHeaderSize:], data)

	if _, err := dm.file.WriteAt(buf, int64(pid)*dm.slotSize); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pid, err)
	}
	if pid >= dm.nextPage {
		dm.nextPage = pid + 1
	}
	return nil
}

// AllocatePage hands out a page identifier: the most recently freed
// slot when one exists, otherwise a fresh slot at the end of the file.
// The slot holds no image until the first WritePage.
func (dm *DiskManager) AllocatePage() types.PageID {
	if n := len(dm.freePages); n > 0 {
		pid := dm.freePages[n-1]
		dm.freePages = dm.freePages[:n-1]
		return pid
	}
	pid := dm.nextPage
	dm.nextPage++
	return pid
}

// FreePage returns a slot to the free list and clears its stamp.
// Freeing an already-free slot is a no-op, so log replay can repeat it.
func (dm *DiskManager) FreePage(pid types.PageID) error {
	for _, p := range dm.freePages {
		if p == pid {
			return nil
		}
	}
	header := make([]byte, SlotHeaderSize)
	if _, err := dm.file.WriteAt(header, int64(pid)*dm.slotSize); err != nil {
		return fmt.Errorf("failed to clear page %d stamp: %w", pid, err)
	}
	dm.freePages = append(dm.freePages, pid)
	return nil
}

// Reclaim pulls a slot off the free list after its image has been
// restored by undo or replay, so allocation cannot hand out a live page.
func (dm *DiskManager) Reclaim(pid types.PageID) {
	for i, p := range dm.freePages {
		if p == pid {
			dm.freePages = append(dm.freePages[:i], dm.freePages[i+1:]...)
			return
		}
	}
}

// Sync forces the heap store to durable storage.
func (dm *DiskManager) Sync() error {
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync heap store: %w", err)
	}
	return nil
}

func (dm *DiskManager) Close() error {
	if dm.file == nil {
		return nil
	}
	err := dm.file.Close()
	dm.file = nil
	return err
}
