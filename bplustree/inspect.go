package bplus

import (
	"EmberDB/storage_engine/page"
	"EmberDB/types"
)

/*
Read-only tree walks used by the CLI and by tests.
*/

// Height returns the number of levels from the root down to the leaves.
// An empty tree has height zero.
func (t *BPlusTree) Height() (int, error) {
	if t.root == types.InvalidPageID {
		return 0, nil
	}

	height := 0
	pid := t.root
	for {
		ref, err := t.cache.FetchPage(pid)
		if err != nil {
			return 0, err
		}
		v, err := page.Decode(ref.Bytes())
		if err != nil {
			t.cache.Unpin(ref, false)
			return 0, err
		}
		height++
		if v.IsLeaf {
			t.cache.Unpin(ref, false)
			return height, nil
		}
		child := page.DecodeChildRef(v.Vals[0])
		t.cache.Unpin(ref, false)
		pid = child
	}
}

// Count returns the number of entries stored in the leaves.
func (t *BPlusTree) Count() (int, error) {
	if t.root == types.InvalidPageID {
		return 0, nil
	}
	return t.countPage(t.root)
}

func (t *BPlusTree) countPage(pid types.PageID) (int, error) {
	ref, err := t.cache.FetchPage(pid)
	if err != nil {
		return 0, err
	}
	v, err := page.Decode(ref.Bytes())
	if err != nil {
		t.cache.Unpin(ref, false)
		return 0, err
	}

	if v.IsLeaf {
		n := len(v.Keys)
		t.cache.Unpin(ref, false)
		return n, nil
	}

	children := make([]types.PageID, len(v.Vals))
	for i, cref := range v.Vals {
		children[i] = page.DecodeChildRef(cref)
	}
	t.cache.Unpin(ref, false)

	total := 0
	for _, child := range children {
		n, err := t.countPage(child)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
