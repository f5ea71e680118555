package page

import (
	"bytes"
	"fmt"
	"sort"

	"EmberDB/types"
)

// Traverse binary-searches a page for key. On a leaf it returns the
// associated value (found=false when absent). On an index page it
// returns the PageID of the child to descend into; index key i is the
// low boundary of child i, so the target is the last child whose
// boundary is <= key.
func Traverse(v *View, key []byte) (value []byte, child types.PageID, found bool) {
	if v.IsLeaf {
		i := sort.Search(len(v.Keys), func(i int) bool {
			return bytes.Compare(v.Keys[i], key) >= 0
		})
		if i < len(v.Keys) && bytes.Equal(v.Keys[i], key) {
			return v.Vals[i], 0, true
		}
		return nil, 0, false
	}

	// First child whose low boundary is > key, minus one.
	i := sort.Search(len(v.Keys), func(i int) bool {
		return bytes.Compare(v.Keys[i], key) > 0
	})
	if i == 0 {
		// key < every child boundary: outside [lo, hi) of this page.
		return nil, 0, false
	}
	return nil, DecodeChildRef(v.Vals[i-1]), true
}

// Insert returns new page bytes with (key, value) placed in sorted
// position, replacing an existing entry for the same key. NeedsSplit is
// signaled when the result exceeds the base page size and holds more
// than one entry; a single entry too large for any size class is an
// error, not a split.
func (c *Codec) Insert(v *View, key, value []byte) (newBytes []byte, needsSplit bool, err error) {
	i := sort.Search(len(v.Keys), func(i int) bool {
		return bytes.Compare(v.Keys[i], key) >= 0
	})
	replace := i < len(v.Keys) && bytes.Equal(v.Keys[i], key)

	out := &View{IsLeaf: v.IsLeaf, Lo: v.Lo, Hi: v.Hi}
	out.Keys = spliceAt(v.Keys, i, key, replace)
	out.Vals = spliceAt(v.Vals, i, value, replace)

	size := EncodedSize(out)
	if size > c.MaxEncoded() && len(out.Keys) == 1 {
		if len(key) > len(value) {
			return nil, false, fmt.Errorf("%w: %d bytes", types.ErrKeyTooLarge, len(key))
		}
		return nil, false, fmt.Errorf("%w: %d bytes", types.ErrValueTooLarge, len(value))
	}

	return Encode(out), size > c.PageSize && len(out.Keys) > 1, nil
}

// Remove returns new page bytes without key's entry. NeedsMerge is
// signaled when occupancy drops below the merge threshold. Removing an
// absent key returns the page unchanged.
func (c *Codec) Remove(v *View, key []byte) (newBytes []byte, needsMerge bool, removed bool) {
	i := sort.Search(len(v.Keys), func(i int) bool {
		return bytes.Compare(v.Keys[i], key) >= 0
	})
	if i >= len(v.Keys) || !bytes.Equal(v.Keys[i], key) {
		return Encode(v), EncodedSize(v) < c.MergeThreshold(), false
	}

	out := &View{IsLeaf: v.IsLeaf, Lo: v.Lo, Hi: v.Hi}
	out.Keys = dropAt(v.Keys, i)
	out.Vals = dropAt(v.Vals, i)

	return Encode(out), EncodedSize(out) < c.MergeThreshold(), true
}

// spliceAt inserts (or replaces, when replace is set) elem at position i
// without disturbing the source slice.
func spliceAt(src [][]byte, i int, elem []byte, replace bool) [][]byte {
	extra := 1
	if replace {
		extra = 0
	}
	out := make([][]byte, 0, len(src)+extra)
	out = append(out, src[:i]...)
	out = append(out, elem)
	if replace {
		out = append(out, src[i+1:]...)
	} else {
		out = append(out, src[i:]...)
	}
	return out
}

func dropAt(src [][]byte, i int) [][]byte {
	out := make([][]byte, 0, len(src)-1)
	out = append(out, src[:i]...)
	out = append(out, src[i+1:]...)
	return out
}
