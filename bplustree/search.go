package bplus

import (
	"fmt"

	"EmberDB/storage_engine/page"
	"EmberDB/types"
)

// Search returns the value stored under key, or ErrKeyNotFound.
func (t *BPlusTree) Search(key []byte) ([]byte, error) {
	ref, v, _, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}

	value, _, found := page.Traverse(v, key)
	// The view borrows the pinned buffer; copy before the pin ends.
	out := append([]byte(nil), value...)
	t.cache.Unpin(ref, false)

	if !found {
		return nil, fmt.Errorf("%w: %q", types.ErrKeyNotFound, key)
	}
	return out, nil
}
