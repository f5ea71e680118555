package bufferpool

import (
	"container/list"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	diskmanager "EmberDB/storage_engine/disk_manager"
	"EmberDB/types"
)

// ############################################# BUFFER POOL #############################################

// BufferPool caches encoded page images in per-size-class memory regions
// and owns the translation between durable page identifiers and in-memory
// slots. Callers only ever see PageRef handles; raw slot addresses never
// leave the pool and are never written into a page.
type BufferPool struct {
	pageSize int
	classes  []*classPool
	pages    map[types.PageID]*frame

	diskManager *diskmanager.DiskManager
	walManager  WALDurability

	// sketch drives the admission test when a newcomer has to displace
	// a protected frame.
	sketch *freqSketch

	// victims holds the images of clean evicted pages so a rapid
	// re-fetch skips the heap store.
	victims *ristretto.Cache[uint64, []byte]

	log *zap.Logger
}

// classPool is one size class: a fixed memory region carved into equal
// slots plus the two recency segments over its resident frames.
type classPool struct {
	region    *arena
	probation *list.List // front = most recently used
	protected *list.List
}

type segment uint8

const (
	segProbation segment = iota
	segProtected
)

// frame is one resident page. Everything needed to evict it lives here:
// where its bytes are, whether they differ from the heap store, and the
// sequence number of the last log record they reflect.
type frame struct {
	pid    types.PageID
	class  int
	slot   int
	length int

	pin   int
	dirty bool
	lsn   types.LSN

	seg  segment
	elem *list.Element
}

// PageRef is a swizzled reference: a pinned page's in-memory identity.
// It is valid only until the matching Unpin; the only form that may
// outlive the pin scope or be persisted is PageID().
type PageRef struct {
	pool *BufferPool
	f    *frame
}

// PageID returns the durable identifier of the referenced page.
func (r *PageRef) PageID() types.PageID { return r.f.pid }

// Bytes returns the resident page image. The slice aliases the size-class
// region and must not be retained past the pin scope.
func (r *PageRef) Bytes() []byte {
	return r.pool.classes[r.f.class].region.bytes(r.f.slot, r.f.length)
}

// LSN returns the sequence number of the last log record applied to the
// resident image.
func (r *PageRef) LSN() types.LSN { return r.f.lsn }

// Stats returns buffer pool statistics
type BufferPoolStats struct {
	ResidentPages int
	PinnedPages   int
	DirtyPages    int
	Classes       []ClassStats
}

// ClassStats describes one size class region.
type ClassStats struct {
	SlotSize  int
	Slots     int
	FreeSlots int
}

// small interface so bufferpool doesn't import the whole wal package
type WALDurability interface {
	FlushedLSN() types.LSN
	Force() error
}
