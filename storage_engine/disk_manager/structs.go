package diskmanager

import (
	"os"

	"go.uber.org/zap"

	"EmberDB/types"
)

const (
	// SlotHeaderSize is the per-slot stamp written ahead of every page
	// image: LSN (8), encoded length (4), flags (1), reserved (3).
	// The stamp is heap-store metadata; the page encoding itself starts
	// after it and never sees it.
	SlotHeaderSize = 16

	slotFlagAllocated = 0x01

	// HeapFileName is the heap store file inside the engine directory.
	HeapFileName = "heap.db"
)

// DiskManager owns the heap store: a single slot-addressed file where
// slot i holds page i. Slots are sized for the largest size class, so a
// page never moves when it grows; unwritten tails stay sparse.
type DiskManager struct {
	file     *os.File
	filePath string

	pageSize int
	slotSize int64 // SlotHeaderSize + largest size class capacity

	nextPage  types.PageID
	freePages []types.PageID // LIFO: most-recently-freed reused first

	log *zap.Logger
}

// NumPages returns the number of slots the heap store has ever had,
// including freed ones and the meta slot.
func (dm *DiskManager) NumPages() types.PageID {
	return dm.nextPage
}

// PageCapacity is the most encoded bytes one slot can hold.
func (dm *DiskManager) PageCapacity() int {
	return int(dm.slotSize) - SlotHeaderSize
}
