package bufferpool

import (
	"container/list"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	diskmanager "EmberDB/storage_engine/disk_manager"
	"EmberDB/storage_engine/page"
	"EmberDB/types"
)

/*
This file is the main file of the bufferpool.

The pool holds one memory region per size class and caches encoded page
images in them, keyed by PageID. Residency is tracked in two segments:
a newly loaded page sits in probation, and a second touch promotes it to
protected. Eviction takes the probation tail first; a protected frame is
displaced only for a newcomer the frequency sketch rates at least as hot.

Dirty frames obey the write-ahead rule: a frame whose stamp is above the
last forced log sequence number forces the log before its image may reach
the heap store. Clean evicted images are parked in a second-chance cache
so a quick re-fetch skips the heap store entirely.
*/

// NewBufferPool builds the size-class regions for the given cache budget
// and wires the pool to the heap store.
func NewBufferPool(pageSize, cacheSize int, diskManager *diskmanager.DiskManager, log *zap.Logger) (*BufferPool, error) {
	classes := make([]*classPool, page.SizeClasses)
	for c := range classes {
		region, err := newArena(pageSize<<c, cacheSize)
		if err != nil {
			for _, cp := range classes[:c] {
				cp.region.unmap()
			}
			return nil, err
		}
		classes[c] = &classPool{
			region:    region,
			probation: list.New(),
			protected: list.New(),
		}
	}

	victims, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: int64(cacheSize/pageSize)*10 + 256,
		MaxCost:     int64(cacheSize),
		BufferItems: 64,
	})
	if err != nil {
		for _, cp := range classes {
			cp.region.unmap()
		}
		return nil, fmt.Errorf("failed to build victim cache: %w", err)
	}

	bp := &BufferPool{
		pageSize:    pageSize,
		classes:     classes,
		pages:       make(map[types.PageID]*frame),
		diskManager: diskManager,
		sketch:      newFreqSketch(classes[0].region.slots() * 8),
		victims:     victims,
		log:         log,
	}

	log.Debug("buffer pool built",
		zap.Int("pageSize", pageSize),
		zap.Int("classSlots", classes[0].region.slots()))
	return bp, nil
}

func (bp *BufferPool) SetWALManager(wal WALDurability) {
	bp.walManager = wal
}

// FetchPage returns a pinned reference to the page, loading it from the
// victim cache or the heap store if it is not resident.
func (bp *BufferPool) FetchPage(pid types.PageID) (*PageRef, error) {
	bp.sketch.Touch(uint64(pid))

	if f, ok := bp.pages[pid]; ok {
		bp.touch(f)
		f.pin++
		return &PageRef{pool: bp, f: f}, nil
	}

	if img, ok := bp.victims.Get(uint64(pid)); ok {
		// Parked images are clean, so the slot stamp is still accurate.
		return bp.admit(pid, img, bp.diskManager.PageLSN(pid), false)
	}

	data, lsn, err := bp.diskManager.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	return bp.admit(pid, data, lsn, false)
}

// NewPage allocates a heap slot for initial and returns it resident,
// dirty, and pinned. lsn is the record that logged the allocation.
func (bp *BufferPool) NewPage(initial []byte, lsn types.LSN) (types.PageID, *PageRef, error) {
	pid := bp.diskManager.AllocatePage()
	ref, err := bp.AdmitNew(pid, initial, lsn)
	if err != nil {
		return types.InvalidPageID, nil, err
	}
	return pid, ref, nil
}

// AdmitNew places an already-allocated page into the pool, dirty and
// pinned. Callers that must log a page's creation before materializing
// it allocate the identifier first and admit here after the append.
func (bp *BufferPool) AdmitNew(pid types.PageID, initial []byte, lsn types.LSN) (*PageRef, error) {
	bp.sketch.Touch(uint64(pid))
	return bp.admit(pid, initial, lsn, true)
}

// WritePinned replaces the referenced page's resident image. The frame
// moves to another size class when the new encoding needs one; the
// PageID never changes, so no reference held elsewhere goes stale.
func (bp *BufferPool) WritePinned(ref *PageRef, data []byte, lsn types.LSN) error {
	f := ref.f
	if f.pin == 0 {
		return fmt.Errorf("page %d written outside a pin scope", f.pid)
	}

	class := bp.classFor(len(data))
	if class < 0 {
		return fmt.Errorf("%w: %d byte page exceeds the largest size class", types.ErrValueTooLarge, len(data))
	}

	if class != f.class {
		slot, err := bp.slotFor(class, f.pid)
		if err != nil {
			return err
		}
		bp.classes[f.class].region.release(f.slot)
		bp.detach(f)
		f.class, f.slot = class, slot
		f.elem = bp.segmentList(f).PushFront(f)
	}

	bp.classes[f.class].region.store(f.slot, data)
	f.length = len(data)
	f.lsn = lsn
	f.dirty = true
	bp.victims.Del(uint64(f.pid))
	return nil
}

// Unpin ends a pin scope. The PageRef must not be used afterwards.
func (bp *BufferPool) Unpin(ref *PageRef, dirty bool) error {
	f := ref.f
	if f.pin == 0 {
		return fmt.Errorf("page %d is not pinned", f.pid)
	}
	f.pin--
	if dirty {
		f.dirty = true
		bp.victims.Del(uint64(f.pid))
	}
	return nil
}

// FreePage drops a page from the pool and returns its heap slot to the
// free list.
func (bp *BufferPool) FreePage(pid types.PageID) error {
	if f, ok := bp.pages[pid]; ok {
		if f.pin > 0 {
			return fmt.Errorf("cannot free pinned page %d", pid)
		}
		bp.detach(f)
		bp.classes[f.class].region.release(f.slot)
		delete(bp.pages, pid)
	}
	bp.victims.Del(uint64(pid))
	return bp.diskManager.FreePage(pid)
}

// FlushAll writes every dirty resident page to the heap store, forcing
// the log first wherever the write-ahead rule demands it.
func (bp *BufferPool) FlushAll() error {
	for _, f := range bp.pages {
		if !f.dirty {
			continue
		}
		if err := bp.flushFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes dirty pages and releases the size-class regions. A
// region that fails to unmap is reported and skipped so the rest are
// still released.
func (bp *BufferPool) Close() error {
	err := bp.FlushAll()

	bp.victims.Close()
	for c, cp := range bp.classes {
		if unmapErr := cp.region.unmap(); unmapErr != nil {
			bp.log.Warn("failed to release size class region",
				zap.Int("class", c), zap.Error(unmapErr))
		}
	}
	bp.pages = make(map[types.PageID]*frame)
	return err
}

// admit copies a page image into a slot of the right size class and pins
// the new frame in the probationary segment.
func (bp *BufferPool) admit(pid types.PageID, data []byte, lsn types.LSN, dirty bool) (*PageRef, error) {
	class := bp.classFor(len(data))
	if class < 0 {
		return nil, fmt.Errorf("%w: %d byte page exceeds the largest size class", types.ErrCorruptPage, len(data))
	}

	slot, err := bp.slotFor(class, pid)
	if err != nil {
		return nil, err
	}

	cp := bp.classes[class]
	cp.region.store(slot, data)
	f := &frame{
		pid:    pid,
		class:  class,
		slot:   slot,
		length: len(data),
		pin:    1,
		dirty:  dirty,
		lsn:    lsn,
		seg:    segProbation,
	}
	f.elem = cp.probation.PushFront(f)
	bp.pages[pid] = f
	return &PageRef{pool: bp, f: f}, nil
}

// slotFor finds a free slot in the class, evicting if it must. The
// probation tail goes first; only when probation holds nothing evictable
// does a protected frame get displaced, and then the coldest one.
func (bp *BufferPool) slotFor(class int, newcomer types.PageID) (int, error) {
	cp := bp.classes[class]
	if slot, ok := cp.region.acquire(); ok {
		return slot, nil
	}

	if victim := unpinnedTail(cp.probation); victim != nil {
		return bp.displace(victim)
	}

	victim := bp.coldestProtected(cp)
	if victim == nil {
		return 0, fmt.Errorf("%w: every page in class %d is pinned", types.ErrOutOfMemory, class)
	}
	if bp.sketch.Estimate(uint64(newcomer)) < bp.sketch.Estimate(uint64(victim.pid)) {
		// The newcomer loses the admission test, but it still has to be
		// resident while pinned, so the coldest frame goes regardless.
		bp.log.Debug("admission override",
			zap.Uint64("newcomer", uint64(newcomer)),
			zap.Uint64("victim", uint64(victim.pid)))
	}
	return bp.displace(victim)
}

// displace evicts a frame and hands its slot to the caller.
func (bp *BufferPool) displace(f *frame) (int, error) {
	slot := f.slot
	if err := bp.evict(f); err != nil {
		return 0, err
	}
	// evict released the slot; take it straight back.
	bp.classes[f.class].region.acquire()
	return slot, nil
}

// evict writes a dirty frame back (log first), parks the clean image in
// the victim cache, and releases the slot.
func (bp *BufferPool) evict(f *frame) error {
	cp := bp.classes[f.class]
	img := cp.region.bytes(f.slot, f.length)

	if f.dirty {
		if err := bp.flushFrame(f); err != nil {
			return err
		}
	}

	park := make([]byte, len(img))
	copy(park, img)
	bp.victims.Set(uint64(f.pid), park, int64(len(park)))

	bp.detach(f)
	delete(bp.pages, f.pid)
	cp.region.release(f.slot)
	return nil
}

// flushFrame writes one dirty frame to the heap store, honoring the
// write-ahead rule.
func (bp *BufferPool) flushFrame(f *frame) error {
	if bp.walManager != nil && f.lsn > bp.walManager.FlushedLSN() {
		if err := bp.walManager.Force(); err != nil {
			return fmt.Errorf("failed to force log before flushing page %d: %w", f.pid, err)
		}
	}
	img := bp.classes[f.class].region.bytes(f.slot, f.length)
	if err := bp.diskManager.WritePage(f.pid, img, f.lsn); err != nil {
		return fmt.Errorf("failed to flush page %d: %w", f.pid, err)
	}
	f.dirty = false
	return nil
}

// touch records a hit on a resident frame: probation frames are promoted
// to protected, protected frames move to the front.
func (bp *BufferPool) touch(f *frame) {
	cp := bp.classes[f.class]
	if f.seg == segProtected {
		cp.protected.MoveToFront(f.elem)
		return
	}

	cp.probation.Remove(f.elem)
	f.seg = segProtected
	f.elem = cp.protected.PushFront(f)

	// Cap the protected segment so probation keeps eviction candidates.
	if max := protectedCap(cp); cp.protected.Len() > max {
		demoted := cp.protected.Back().Value.(*frame)
		cp.protected.Remove(demoted.elem)
		demoted.seg = segProbation
		demoted.elem = cp.probation.PushFront(demoted)
	}
}

func (bp *BufferPool) detach(f *frame) {
	bp.segmentList(f).Remove(f.elem)
	f.elem = nil
}

func (bp *BufferPool) segmentList(f *frame) *list.List {
	cp := bp.classes[f.class]
	if f.seg == segProtected {
		return cp.protected
	}
	return cp.probation
}

// coldestProtected returns the unpinned protected frame with the lowest
// sketch estimate, scanning from the recency tail.
func (bp *BufferPool) coldestProtected(cp *classPool) *frame {
	var victim *frame
	var victimEst uint8
	for e := cp.protected.Back(); e != nil; e = e.Prev() {
		f := e.Value.(*frame)
		if f.pin > 0 {
			continue
		}
		est := bp.sketch.Estimate(uint64(f.pid))
		if victim == nil || est < victimEst {
			victim, victimEst = f, est
		}
	}
	return victim
}

func unpinnedTail(l *list.List) *frame {
	for e := l.Back(); e != nil; e = e.Prev() {
		f := e.Value.(*frame)
		if f.pin == 0 {
			return f
		}
	}
	return nil
}

func (bp *BufferPool) classFor(n int) int {
	for class := 0; class < page.SizeClasses; class++ {
		if n <= bp.pageSize<<class {
			return class
		}
	}
	return -1
}

func protectedCap(cp *classPool) int {
	max := cp.region.slots() * 4 / 5
	if max < 1 {
		max = 1
	}
	return max
}
