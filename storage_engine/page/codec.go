package page

import (
	"encoding/binary"
	"fmt"

	"EmberDB/types"
)

// Encode serializes a view into the binary page layout.
// The layout is a stable on-disk contract; see page.go.
func Encode(v *View) []byte {
	n := len(v.Keys)
	buf := make([]byte, EncodedSize(v))

	header := uint32(n) << 1
	if v.IsLeaf {
		header |= 1
	}
	binary.LittleEndian.PutUint32(buf[0:4], header)

	keySum := len(v.Lo) + len(v.Hi)
	for i := 0; i < n; i++ {
		keySum += len(v.Keys[i])
	}
	binary.LittleEndian.PutUint32(buf[4:8], uint32(keySum))

	// Length tables: lo, hi, then the contained keys, then the values.
	offset := HeaderSize
	binary.LittleEndian.PutUint64(buf[offset:], uint64(len(v.Lo)))
	offset += LenEntrySize
	binary.LittleEndian.PutUint64(buf[offset:], uint64(len(v.Hi)))
	offset += LenEntrySize
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[offset:], uint64(len(v.Keys[i])))
		offset += LenEntrySize
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[offset:], uint64(len(v.Vals[i])))
		offset += LenEntrySize
	}

	// Payloads.
	offset += copy(buf[offset:], v.Lo)
	offset += copy(buf[offset:], v.Hi)
	for i := 0; i < n; i++ {
		offset += copy(buf[offset:], v.Keys[i])
	}
	for i := 0; i < n; i++ {
		offset += copy(buf[offset:], v.Vals[i])
	}

	return buf
}

// Decode parses an encoded page. The returned view borrows buf; it is
// only valid while buf is. Any length that runs past the buffer, and any
// disagreement between the key-length table and the declared sum, is
// reported as ErrCorruptPage.
func Decode(buf []byte) (*View, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is below the header size", types.ErrCorruptPage, len(buf))
	}

	header := binary.LittleEndian.Uint32(buf[0:4])
	isLeaf := header&1 != 0
	n := int(header >> 1)
	declaredSum := int(binary.LittleEndian.Uint32(buf[4:8]))

	tableEnd := HeaderSize + (n+2)*LenEntrySize + n*LenEntrySize
	if tableEnd > len(buf) {
		return nil, fmt.Errorf("%w: %d children do not fit in %d bytes", types.ErrCorruptPage, n, len(buf))
	}

	keyLens := make([]int, n+2)
	offset := HeaderSize
	keySum := 0
	for i := range keyLens {
		l := binary.LittleEndian.Uint64(buf[offset:])
		if l > uint64(len(buf)) {
			return nil, fmt.Errorf("%w: key length %d exceeds page", types.ErrCorruptPage, l)
		}
		keyLens[i] = int(l)
		keySum += int(l)
		offset += LenEntrySize
	}
	if keySum != declaredSum {
		return nil, fmt.Errorf("%w: key lengths sum to %d, header declares %d",
			types.ErrCorruptPage, keySum, declaredSum)
	}

	valLens := make([]int, n)
	valSum := 0
	for i := range valLens {
		l := binary.LittleEndian.Uint64(buf[offset:])
		if l > uint64(len(buf)) {
			return nil, fmt.Errorf("%w: value length %d exceeds page", types.ErrCorruptPage, l)
		}
		valLens[i] = int(l)
		valSum += int(l)
		offset += LenEntrySize
	}

	if tableEnd+keySum+valSum > len(buf) {
		return nil, fmt.Errorf("%w: payloads run past the page end", types.ErrCorruptPage)
	}

	v := &View{IsLeaf: isLeaf}
	v.Lo = buf[offset : offset+keyLens[0]]
	offset += keyLens[0]
	v.Hi = buf[offset : offset+keyLens[1]]
	offset += keyLens[1]

	v.Keys = make([][]byte, n)
	for i := 0; i < n; i++ {
		v.Keys[i] = buf[offset : offset+keyLens[i+2]]
		offset += keyLens[i+2]
	}
	v.Vals = make([][]byte, n)
	for i := 0; i < n; i++ {
		if !isLeaf && valLens[i] != ChildRefSize {
			return nil, fmt.Errorf("%w: index child ref %d has length %d",
				types.ErrCorruptPage, i, valLens[i])
		}
		v.Vals[i] = buf[offset : offset+valLens[i]]
		offset += valLens[i]
	}

	return v, nil
}

// EncodeChildRef serializes a child PageID for an index page entry.
func EncodeChildRef(pid types.PageID) []byte {
	ref := make([]byte, ChildRefSize)
	binary.LittleEndian.PutUint64(ref, uint64(pid))
	return ref
}

// DecodeChildRef reads a child PageID back out of an index page entry.
func DecodeChildRef(ref []byte) types.PageID {
	return types.PageID(binary.LittleEndian.Uint64(ref))
}
