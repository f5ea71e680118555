package page

import "EmberDB/types"

/*
Binary page layout (identical for leaf and index pages):

  ┌─────────────────────┬──────────────────┬────────────────────────────┬
  │ flags+count (4, LE) │ key len sum (4)  │ (childCount+2) × keyLen(8) │
  ├─────────────────────┴──────────────────┴────────────────────────────┤
  │ childCount × valLen(8) │ key bytes (lo, hi, k0..kn) │ value bytes   │
  └─────────────────────────────────────────────────────────────────────┘

  flags+count: bit 0 = leaf flag, bits 1..31 = child count.
  The first two key-length entries belong to the lo/hi boundary keys.
  Leaf values are user payloads; index "values" are 8-byte child PageIDs.

Every contained key k satisfies lo <= k < hi. An empty hi means +infinity,
an empty lo means -infinity (only the root and the leftmost spine have
an empty lo). On an index page, key i is the low boundary of child i.
*/

const (
	// SizeClasses is the number of page size classes. Class c holds
	// encoded pages of up to PageSize<<c bytes.
	SizeClasses = 6

	// HeaderSize covers the flags+count word and the key-length sum.
	HeaderSize = 8

	// LenEntrySize is the width of one key- or value-length table entry.
	LenEntrySize = 8

	// ChildRefSize is the encoded width of a child PageID on index pages.
	ChildRefSize = 8
)

// View is the decoded form of a page. Keys and values borrow the
// underlying buffer: a View obtained from a pinned page is valid only
// within that pin scope and must never be retained past it.
type View struct {
	IsLeaf bool
	Lo     []byte
	Hi     []byte
	Keys   [][]byte // sorted, one per child
	Vals   [][]byte // leaf payloads, or 8-byte child refs on index pages
}

// ChildCount returns the number of entries on the page.
func (v *View) ChildCount() int { return len(v.Keys) }

// Codec encodes and decodes pages for a store with the given base page
// size. The base size is the split threshold; encoded pages may exceed
// it (up to MaxEncoded) only when a single entry is that large.
type Codec struct {
	PageSize int
}

func NewCodec(pageSize int) *Codec {
	return &Codec{PageSize: pageSize}
}

// MaxEncoded is the capacity of the largest size class; nothing bigger
// ever reaches the heap store.
func (c *Codec) MaxEncoded() int {
	return c.PageSize << (SizeClasses - 1)
}

// MergeThreshold is the occupancy below which Remove signals NeedsMerge.
func (c *Codec) MergeThreshold() int {
	return c.PageSize / 2
}

// ClassFor returns the smallest size class whose capacity holds n
// encoded bytes, or -1 when n exceeds the largest class.
func (c *Codec) ClassFor(n int) int {
	for class := 0; class < SizeClasses; class++ {
		if n <= c.PageSize<<class {
			return class
		}
	}
	return -1
}

// EncodedSize returns the exact byte length Encode would produce.
func EncodedSize(v *View) int {
	n := len(v.Keys)
	size := HeaderSize + (n+2)*LenEntrySize + n*LenEntrySize
	size += len(v.Lo) + len(v.Hi)
	for i := 0; i < n; i++ {
		size += len(v.Keys[i]) + len(v.Vals[i])
	}
	return size
}

// NewLeaf returns an empty leaf view with the given boundary keys.
func NewLeaf(lo, hi []byte) *View {
	return &View{IsLeaf: true, Lo: lo, Hi: hi}
}

// NewIndex returns an index view over the given children. keys[i] is the
// low boundary of children[i].
func NewIndex(lo, hi []byte, keys [][]byte, children []types.PageID) *View {
	vals := make([][]byte, len(children))
	for i, pid := range children {
		vals[i] = EncodeChildRef(pid)
	}
	return &View{IsLeaf: false, Lo: lo, Hi: hi, Keys: keys, Vals: vals}
}
