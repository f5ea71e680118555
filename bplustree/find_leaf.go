package bplus

import (
	"bytes"
	"fmt"
	"sort"

	"EmberDB/storage_engine/bufferpool"
	"EmberDB/storage_engine/page"
	"EmberDB/types"
)

// findLeaf descends from the root to the leaf owning key, recording the
// index pages crossed on the way. The returned reference is pinned; the
// caller must Unpin it. Path entries are not pinned, splits and merges
// re-fetch them on the way back up.
func (t *BPlusTree) findLeaf(key []byte) (*bufferpool.PageRef, *page.View, []pathEntry, error) {
	if t.root == types.InvalidPageID {
		return nil, nil, nil, fmt.Errorf("%w: tree has no root", types.ErrPageNotFound)
	}

	pid := t.root
	var path []pathEntry
	for {
		ref, err := t.cache.FetchPage(pid)
		if err != nil {
			return nil, nil, nil, err
		}
		v, err := page.Decode(ref.Bytes())
		if err != nil {
			t.cache.Unpin(ref, false)
			return nil, nil, nil, err
		}
		if v.IsLeaf {
			return ref, v, path, nil
		}

		// Last child whose low boundary is <= key.
		i := sort.Search(len(v.Keys), func(i int) bool {
			return bytes.Compare(v.Keys[i], key) > 0
		}) - 1
		if i < 0 {
			t.cache.Unpin(ref, false)
			return nil, nil, nil, fmt.Errorf("%w: key below page %d low boundary", types.ErrCorruptPage, pid)
		}
		child := page.DecodeChildRef(v.Vals[i])
		path = append(path, pathEntry{pid: pid, idx: i})
		t.cache.Unpin(ref, false)
		pid = child
	}
}
