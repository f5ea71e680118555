package page

import (
	"bytes"
	"fmt"

	"EmberDB/types"
)

// Split divides a page at the median. The duplicate-median rule pushes
// the median entry into the right sibling, whose low boundary it becomes.
// Postconditions: left.Hi == right.Lo == separator, every left key <
// separator, every right key >= separator.
func Split(v *View) (left, right *View, separator []byte, err error) {
	if len(v.Keys) < 2 {
		return nil, nil, nil, fmt.Errorf("%w: split of a page with %d entries", types.ErrCorruptPage, len(v.Keys))
	}
	return SplitAt(v, len(v.Keys)/2)
}

// SplitAt splits before entry mid. On a leaf the separator is
// suffix-truncated: the shortest prefix of the right half's first key
// that still orders strictly above everything left. On an index page the
// separator must be that first boundary key verbatim, because it is the
// exact point where the left half's last child stops covering the key
// space.
func SplitAt(v *View, mid int) (left, right *View, separator []byte, err error) {
	if mid < 1 || mid >= len(v.Keys) {
		return nil, nil, nil, fmt.Errorf("%w: split point %d outside (0,%d)", types.ErrCorruptPage, mid, len(v.Keys))
	}

	if v.IsLeaf {
		separator = ShortestSeparator(v.Keys[mid-1], v.Keys[mid])
	} else {
		separator = v.Keys[mid]
	}

	left = &View{
		IsLeaf: v.IsLeaf,
		Lo:     v.Lo,
		Hi:     separator,
		Keys:   v.Keys[:mid],
		Vals:   v.Vals[:mid],
	}
	right = &View{
		IsLeaf: v.IsLeaf,
		Lo:     separator,
		Hi:     v.Hi,
		Keys:   v.Keys[mid:],
		Vals:   v.Vals[mid:],
	}
	return left, right, separator, nil
}

// Merge concatenates two adjacent siblings. The pages must actually be
// adjacent: left.Hi == right.Lo. Merging and re-splitting at the same
// point reproduces the original pair, up to separator re-truncation.
func Merge(left, right *View) (*View, error) {
	if left.IsLeaf != right.IsLeaf {
		return nil, fmt.Errorf("%w: merging a leaf with an index page", types.ErrCorruptPage)
	}
	if !bytes.Equal(left.Hi, right.Lo) {
		return nil, fmt.Errorf("%w: merging non-adjacent pages (hi=%q lo=%q)",
			types.ErrCorruptPage, left.Hi, right.Lo)
	}

	out := &View{
		IsLeaf: left.IsLeaf,
		Lo:     left.Lo,
		Hi:     right.Hi,
		Keys:   make([][]byte, 0, len(left.Keys)+len(right.Keys)),
		Vals:   make([][]byte, 0, len(left.Vals)+len(right.Vals)),
	}
	out.Keys = append(append(out.Keys, left.Keys...), right.Keys...)
	out.Vals = append(append(out.Vals, left.Vals...), right.Vals...)
	return out, nil
}

// ShortestSeparator returns the shortest prefix of b that orders
// strictly above a, for a < b. Because a prefix never orders above the
// full key, the result also satisfies separator <= b, which makes it a
// valid boundary between a page ending at a and one starting at b.
func ShortestSeparator(a, b []byte) []byte {
	for i := 1; i < len(b); i++ {
		if bytes.Compare(b[:i], a) > 0 {
			return b[:i:i]
		}
	}
	return b
}
