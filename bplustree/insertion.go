package bplus

import (
	"EmberDB/storage_engine/bufferpool"
	"EmberDB/storage_engine/page"
	txn "EmberDB/storage_engine/transaction_manager"
	walmanager "EmberDB/storage_engine/wal_manager"
	"EmberDB/types"
)

// Insert places (key, value) under the transaction, replacing any
// existing entry for the same key. Each mutation is logged before the
// page it touches changes.
func (t *BPlusTree) Insert(tx *txn.Transaction, key, value []byte) error {
	ref, v, path, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	oldImg := snapshot(ref)
	oldVal, _, existed := page.Traverse(v, key)
	undo := walmanager.DelUpdate(key)
	if existed {
		undo = walmanager.SetUpdate(key, append([]byte(nil), oldVal...))
	}

	newBytes, needsSplit, err := t.codec.Insert(v, key, value)
	if err != nil {
		t.cache.Unpin(ref, false)
		return err
	}

	if needsSplit {
		return t.splitAndPropagate(tx, ref, oldImg, newBytes, path)
	}

	lsn, err := t.logUpdate(tx, ref.PageID(), walmanager.SetUpdate(key, value), undo)
	if err != nil {
		t.cache.Unpin(ref, false)
		return err
	}
	if err := t.cache.WritePinned(ref, newBytes, lsn); err != nil {
		t.cache.Unpin(ref, false)
		return err
	}
	return t.cache.Unpin(ref, true)
}

// splitAndPropagate divides an overflowing page (ref, still pinned,
// holding oldImg) whose post-insert encoding is overBytes, and pushes
// the separator into the parent. Structural changes are logged as whole
// page images so replay and undo need no tree knowledge.
func (t *BPlusTree) splitAndPropagate(tx *txn.Transaction, ref *bufferpool.PageRef,
	oldImg, overBytes []byte, path []pathEntry) error {

	v, err := page.Decode(overBytes)
	if err != nil {
		t.cache.Unpin(ref, false)
		return err
	}
	left, right, sep, err := page.Split(v)
	if err != nil {
		t.cache.Unpin(ref, false)
		return err
	}

	leftBytes := page.Encode(left)
	rightBytes := page.Encode(right)
	leftPid := ref.PageID()
	rightPid := t.disk.AllocatePage()

	lsn, err := t.logUpdate(tx, leftPid,
		walmanager.ImageUpdate(leftBytes), walmanager.ImageUpdate(oldImg))
	if err != nil {
		t.cache.Unpin(ref, false)
		return err
	}
	if err := t.cache.WritePinned(ref, leftBytes, lsn); err != nil {
		t.cache.Unpin(ref, false)
		return err
	}
	if err := t.cache.Unpin(ref, true); err != nil {
		return err
	}

	lsn, err = t.logUpdate(tx, rightPid,
		walmanager.ImageUpdate(rightBytes), walmanager.FreeUpdate())
	if err != nil {
		return err
	}
	rref, err := t.cache.AdmitNew(rightPid, rightBytes, lsn)
	if err != nil {
		return err
	}
	if err := t.cache.Unpin(rref, true); err != nil {
		return err
	}

	return t.insertIntoParent(tx, path, left.Lo, leftPid, sep, rightPid)
}

// insertIntoParent records the new sibling in the parent index page,
// splitting it in turn if it overflows. An empty path means the split
// page was the root, so a new root is created above it.
func (t *BPlusTree) insertIntoParent(tx *txn.Transaction, path []pathEntry,
	leftLo []byte, leftPid types.PageID, sep []byte, rightPid types.PageID) error {

	if len(path) == 0 {
		rootView := page.NewIndex(nil, nil,
			[][]byte{leftLo, sep}, []types.PageID{leftPid, rightPid})
		rootBytes := page.Encode(rootView)
		rootPid := t.disk.AllocatePage()

		lsn, err := t.logUpdate(tx, rootPid,
			walmanager.ImageUpdate(rootBytes), walmanager.FreeUpdate())
		if err != nil {
			return err
		}
		rref, err := t.cache.AdmitNew(rootPid, rootBytes, lsn)
		if err != nil {
			return err
		}
		if err := t.cache.Unpin(rref, true); err != nil {
			return err
		}
		return t.saveRoot(tx, rootPid)
	}

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

	oldImg := snapshot(pref)
	childRef := page.EncodeChildRef(rightPid)
	newBytes, needsSplit, err := t.codec.Insert(pv, sep, childRef)
	if err != nil {
		t.cache.Unpin(pref, false)
		return err
	}
	if needsSplit {
		return t.splitAndPropagate(tx, pref, oldImg, newBytes, path[:len(path)-1])
	}

	lsn, err := t.logUpdate(tx, parent.pid,
		walmanager.SetUpdate(sep, childRef), walmanager.DelUpdate(sep))
	if err != nil {
		t.cache.Unpin(pref, false)
		return err
	}
	if err := t.cache.WritePinned(pref, newBytes, lsn); err != nil {
		t.cache.Unpin(pref, false)
		return err
	}
	return t.cache.Unpin(pref, true)
}
