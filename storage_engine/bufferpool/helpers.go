package bufferpool

import "EmberDB/types"

/*
This file holds helper functions for the bufferpool
*/

// GetStats returns current buffer pool statistics
func (bp *BufferPool) GetStats() BufferPoolStats {
	stats := BufferPoolStats{
		ResidentPages: len(bp.pages),
	}
	for _, f := range bp.pages {
		if f.pin > 0 {
			stats.PinnedPages++
		}
		if f.dirty {
			stats.DirtyPages++
		}
	}
	for _, cp := range bp.classes {
		stats.Classes = append(stats.Classes, ClassStats{
			SlotSize:  cp.region.slotSize,
			Slots:     cp.region.slots(),
			FreeSlots: len(cp.region.free),
		})
	}
	return stats
}

// Size returns the current number of resident pages
func (bp *BufferPool) Size() int {
	return len(bp.pages)
}

// IsDirty reports whether a resident page has unflushed changes. Pages
// not in the pool report false.
func (bp *BufferPool) IsDirty(pid types.PageID) bool {
	f, ok := bp.pages[pid]
	return ok && f.dirty
}
