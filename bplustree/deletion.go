package bplus

import (
	"fmt"

	"go.uber.org/zap"

	"EmberDB/storage_engine/bufferpool"
	"EmberDB/storage_engine/page"
	txn "EmberDB/storage_engine/transaction_manager"
	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

// Delete removes key under the transaction. An underfull leaf merges
// with its left sibling when the pair fits one page, otherwise entries
// are redistributed; separators propagate out of the parents, and a
// root left with a single child is replaced by it.
func (t *BPlusTree) Delete(tx *txn.Transaction, key []byte) error {
	ref, v, path, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	oldVal, _, found := page.Traverse(v, key)
	if !found {
		t.cache.Unpin(ref, false)
		return fmt.Errorf("%w: %q", types.ErrKeyNotFound, key)
	}
	undo := walmanager.SetUpdate(key, append([]byte(nil), oldVal...))

	newBytes, needsMerge, _ := t.codec.Remove(v, key)
	lsn, err := t.logUpdate(tx, ref.PageID(), walmanager.DelUpdate(key), undo)
	if err != nil {
		t.cache.Unpin(ref, false)
		return err
	}
	if err := t.cache.WritePinned(ref, newBytes, lsn); err != nil {
		t.cache.Unpin(ref, false)
		return err
	}
	pid := ref.PageID()
	if err := t.cache.Unpin(ref, true); err != nil {
		return err
	}

	// The root leaf may run arbitrarily empty; only pages with siblings
	// rebalance.
	if !needsMerge || len(path) == 0 {
		return nil
	}
	return t.rebalance(tx, pid, path)
}

// rebalance fixes the underfull child at path's tail: merge with the
// adjacent sibling when the pair fits one page, redistribute otherwise.
// The left sibling is preferred; the leftmost child leans on its right
// neighbour.
func (t *BPlusTree) rebalance(tx *txn.Transaction, pid types.PageID, path []pathEntry) error {
	parent := path[len(path)-1]
	pref, err := t.cache.FetchPage(parent.pid)
	if err != nil {
		return err
	}
	pv, err := page.Decode(pref.Bytes())
	if err != nil {
		t.cache.Unpin(pref, false)
		return err
	}
	if len(pv.Vals) < 2 {
		// No sibling to lean on.
		return t.cache.Unpin(pref, false)
	}

	// j is the left page of the adjacent pair being rebalanced.
	i := parent.idx
	j := i - 1
	if i == 0 {
		j = 0
	}

	lref, err := t.cache.FetchPage(page.DecodeChildRef(pv.Vals[j]))
	if err != nil {
		t.cache.Unpin(pref, false)
		return err
	}
	rref, err := t.cache.FetchPage(page.DecodeChildRef(pv.Vals[j+1]))
	if err != nil {
		t.cache.Unpin(lref, false)
		t.cache.Unpin(pref, false)
		return err
	}
	lv, lerr := page.Decode(lref.Bytes())
	rv, rerr := page.Decode(rref.Bytes())
	if lerr != nil || rerr != nil {
		t.cache.Unpin(rref, false)
		t.cache.Unpin(lref, false)
		t.cache.Unpin(pref, false)
		if lerr != nil {
			return lerr
		}
		return rerr
	}

	if merged, err := page.Merge(lv, rv); err == nil && page.EncodedSize(merged) <= t.codec.PageSize {
		return t.mergeChildren(tx, path, pref, pv, j, lref, rref, merged)
	}
	return t.redistribute(tx, parent.pid, pref, pv, j, lref, rref, lv, rv, i == 0)
}

// mergeChildren folds the right page of the pair into the left one,
// frees the right page, and drops its separator from the parent.
func (t *BPlusTree) mergeChildren(tx *txn.Transaction, path []pathEntry,
	pref *bufferpool.PageRef, pv *page.View, j int,
	lref, rref *bufferpool.PageRef, merged *page.View) error {

	mergedBytes := page.Encode(merged)
	rightPid := rref.PageID()

	lsn, err := t.logUpdate(tx, lref.PageID(),
		walmanager.ImageUpdate(mergedBytes), walmanager.ImageUpdate(snapshot(lref)))
	if err == nil {
		err = t.cache.WritePinned(lref, mergedBytes, lsn)
	}
	t.cache.Unpin(lref, err == nil)
	if err != nil {
		t.cache.Unpin(rref, false)
		t.cache.Unpin(pref, false)
		return err
	}

	rightOld := snapshot(rref)
	if err := t.cache.Unpin(rref, false); err != nil {
		t.cache.Unpin(pref, false)
		return err
	}
	if _, err := t.logUpdate(tx, rightPid,
		walmanager.FreeUpdate(), walmanager.ImageUpdate(rightOld)); err != nil {
		t.cache.Unpin(pref, false)
		return err
	}
	if err := t.cache.FreePage(rightPid); err != nil {
		t.cache.Unpin(pref, false)
		return err
	}

	// Drop the merged-away child's separator.
	sep := append([]byte(nil), pv.Keys[j+1]...)
	pNew, pNeedsMerge, _ := t.codec.Remove(pv, sep)
	lsn, err = t.logUpdate(tx, pref.PageID(),
		walmanager.DelUpdate(sep), walmanager.SetUpdate(sep, page.EncodeChildRef(rightPid)))
	if err == nil {
		err = t.cache.WritePinned(pref, pNew, lsn)
	}
	if err != nil {
		t.cache.Unpin(pref, false)
		return err
	}

	if len(path) == 1 {
		return t.collapseRoot(tx, pref, pNew)
	}

	parentPid := pref.PageID()
	if err := t.cache.Unpin(pref, true); err != nil {
		return err
	}
	if pNeedsMerge {
		return t.rebalance(tx, parentPid, path[:len(path)-1])
	}
	return nil
}

// collapseRoot replaces an index root holding a single child by that
// child, shrinking the tree by one level. pref is the pinned root.
func (t *BPlusTree) collapseRoot(tx *txn.Transaction, pref *bufferpool.PageRef, rootBytes []byte) error {
	rootPid := pref.PageID()
	rootView, err := page.Decode(rootBytes)
	if err != nil {
		t.cache.Unpin(pref, false)
		return err
	}
	if rootView.IsLeaf || len(rootView.Keys) != 1 {
		return t.cache.Unpin(pref, true)
	}

	childPid := page.DecodeChildRef(rootView.Vals[0])
	if err := t.cache.Unpin(pref, true); err != nil {
		return err
	}
	if err := t.saveRoot(tx, childPid); err != nil {
		return err
	}

	if _, err := t.logUpdate(tx, rootPid,
		walmanager.FreeUpdate(), walmanager.ImageUpdate(rootBytes)); err != nil {
		return err
	}
	if err := t.cache.FreePage(rootPid); err != nil {
		return err
	}
	t.log.Debug("collapsed root",
		zap.Uint64("old", uint64(rootPid)), zap.Uint64("new", uint64(childPid)))
	return nil
}

// redistribute shifts entries between the adjacent pair so the underfull
// side climbs back above the merge threshold, and rewrites the parent's
// separator. Nothing structural changes, so no rebalance propagates.
func (t *BPlusTree) redistribute(tx *txn.Transaction, parentPid types.PageID,
	pref *bufferpool.PageRef, pv *page.View, j int,
	lref, rref *bufferpool.PageRef, lv, rv *page.View, fromRight bool) error {

	donor := lv
	if fromRight {
		donor = rv
	}
	maxMove := len(donor.Keys) - 1
	if maxMove < 1 {
		// Donor cannot spare anything; leave the page underfull.
		t.cache.Unpin(rref, false)
		t.cache.Unpin(lref, false)
		return t.cache.Unpin(pref, false)
	}

	threshold := t.codec.MergeThreshold()
	k := 1
	for k < maxMove {
		lCand, rCand, _ := shiftEntries(lv, rv, k, fromRight)
		recv := rCand
		if fromRight {
			recv = lCand
		}
		if page.EncodedSize(recv) >= threshold {
			break
		}
		lNext, rNext, _ := shiftEntries(lv, rv, k+1, fromRight)
		rest := lNext
		if fromRight {
			rest = rNext
		}
		if page.EncodedSize(rest) < threshold {
			break
		}
		k++
	}

	lNew, rNew, sep := shiftEntries(lv, rv, k, fromRight)
	lBytes, rBytes := page.Encode(lNew), page.Encode(rNew)

	// Parent keeps the same children; only the separator moves.
	pKeys := make([][]byte, len(pv.Keys))
	copy(pKeys, pv.Keys)
	pKeys[j+1] = sep
	pBytes := page.Encode(&page.View{IsLeaf: false, Lo: pv.Lo, Hi: pv.Hi, Keys: pKeys, Vals: pv.Vals})

	apply := func(ref *bufferpool.PageRef, newBytes []byte) error {
		lsn, err := t.logUpdate(tx, ref.PageID(),
			walmanager.ImageUpdate(newBytes), walmanager.ImageUpdate(snapshot(ref)))
		if err != nil {
			return err
		}
		return t.cache.WritePinned(ref, newBytes, lsn)
	}

	err := apply(lref, lBytes)
	if err == nil {
		err = apply(rref, rBytes)
	}
	if err == nil {
		err = apply(pref, pBytes)
	}
	t.cache.Unpin(rref, err == nil)
	t.cache.Unpin(lref, err == nil)
	if uerr := t.cache.Unpin(pref, err == nil); err == nil {
		err = uerr
	}
	return err
}

// shiftEntries moves k entries across the boundary of an adjacent pair
// and returns the new views plus the separator between them. Leaf
// separators are suffix-truncated; index separators stay verbatim for
// the same reason as in SplitAt.
func shiftEntries(lv, rv *page.View, k int, fromRight bool) (left, right *page.View, sep []byte) {
	var lKeys, lVals, rKeys, rVals [][]byte
	if fromRight {
		lKeys = append(append([][]byte{}, lv.Keys...), rv.Keys[:k]...)
		lVals = append(append([][]byte{}, lv.Vals...), rv.Vals[:k]...)
		rKeys = rv.Keys[k:]
		rVals = rv.Vals[k:]
		if lv.IsLeaf {
			sep = page.ShortestSeparator(rv.Keys[k-1], rv.Keys[k])
		} else {
			sep = rv.Keys[k]
		}
	} else {
		n := len(lv.Keys)
		lKeys = lv.Keys[:n-k]
		lVals = lv.Vals[:n-k]
		rKeys = append(append([][]byte{}, lv.Keys[n-k:]...), rv.Keys...)
		rVals = append(append([][]byte{}, lv.Vals[n-k:]...), rv.Vals...)
		if lv.IsLeaf {
			sep = page.ShortestSeparator(lv.Keys[n-k-1], lv.Keys[n-k])
		} else {
			sep = lv.Keys[n-k]
		}
	}

	left = &page.View{IsLeaf: lv.IsLeaf, Lo: lv.Lo, Hi: sep, Keys: lKeys, Vals: lVals}
	right = &page.View{IsLeaf: rv.IsLeaf, Lo: sep, Hi: rv.Hi, Keys: rKeys, Vals: rVals}
	return left, right, sep
}
