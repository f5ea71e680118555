package page

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"EmberDB/types"
)

func leafView(pairs ...string) *View {
	if len(pairs)%2 != 0 {
		panic("pairs must come in key/value couples")
	}
	v := NewLeaf(nil, nil)
	for i := 0; i < len(pairs); i += 2 {
		v.Keys = append(v.Keys, []byte(pairs[i]))
		v.Vals = append(v.Vals, []byte(pairs[i+1]))
	}
	return v
}

// TestEncodeDecodeRoundTrip checks that a decoded page reproduces the
// keys, values and boundaries that were encoded, and that the length
// tables agree with the header sums.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := leafView("apple", "red", "banana", "yellow", "cherry", "dark")
	v.Lo = []byte("a")
	v.Hi = []byte("d")

	buf := Encode(v)
	if len(buf) != EncodedSize(v) {
		t.Fatalf("Encode produced %d bytes, EncodedSize says %d", len(buf), EncodedSize(v))
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !got.IsLeaf {
		t.Errorf("leaf flag lost in round trip")
	}
	if !bytes.Equal(got.Lo, v.Lo) || !bytes.Equal(got.Hi, v.Hi) {
		t.Errorf("boundary keys mismatch: lo=%q hi=%q", got.Lo, got.Hi)
	}
	if len(got.Keys) != len(v.Keys) {
		t.Fatalf("child count mismatch: expected %d, got %d", len(v.Keys), len(got.Keys))
	}
	for i := range v.Keys {
		if !bytes.Equal(got.Keys[i], v.Keys[i]) || !bytes.Equal(got.Vals[i], v.Vals[i]) {
			t.Errorf("entry %d mismatch: %q=%q", i, got.Keys[i], got.Vals[i])
		}
	}

	// Declared key-length sum must equal the table entries' sum.
	declared := int(binary.LittleEndian.Uint32(buf[4:8]))
	sum := len(v.Lo) + len(v.Hi)
	for _, k := range v.Keys {
		sum += len(k)
	}
	if declared != sum {
		t.Errorf("header declares key sum %d, entries sum to %d", declared, sum)
	}
}

// TestDecodeIndexPage checks the child-reference form of a page.
func TestDecodeIndexPage(t *testing.T) {
	v := NewIndex(nil, nil,
		[][]byte{nil, []byte("m")},
		[]types.PageID{3, 7})

	got, err := Decode(Encode(v))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.IsLeaf {
		t.Fatalf("index page decoded as leaf")
	}
	if DecodeChildRef(got.Vals[0]) != 3 || DecodeChildRef(got.Vals[1]) != 7 {
		t.Errorf("child refs mismatch: %d, %d",
			DecodeChildRef(got.Vals[0]), DecodeChildRef(got.Vals[1]))
	}
}

func TestDecodeCorruption(t *testing.T) {
	v := leafView("key", "value")
	good := Encode(v)

	// Key-length sum that disagrees with the table.
	bad := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(bad[4:8], 9999)
	if _, err := Decode(bad); !errors.Is(err, types.ErrCorruptPage) {
		t.Errorf("expected ErrCorruptPage for sum mismatch, got %v", err)
	}

	// Declared child count that overruns the buffer.
	bad = append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(bad[0:4], 1000<<1|1)
	if _, err := Decode(bad); !errors.Is(err, types.ErrCorruptPage) {
		t.Errorf("expected ErrCorruptPage for count overrun, got %v", err)
	}

	// Truncated buffer.
	if _, err := Decode(good[:len(good)-3]); !errors.Is(err, types.ErrCorruptPage) {
		t.Errorf("expected ErrCorruptPage for truncation, got %v", err)
	}
	if _, err := Decode(good[:4]); !errors.Is(err, types.ErrCorruptPage) {
		t.Errorf("expected ErrCorruptPage for header truncation, got %v", err)
	}
}

func TestTraverseLeaf(t *testing.T) {
	v := leafView("a", "1", "c", "3", "e", "5")

	val, _, found := Traverse(v, []byte("c"))
	if !found || !bytes.Equal(val, []byte("3")) {
		t.Errorf("Traverse(c) = %q, %v", val, found)
	}

	if _, _, found := Traverse(v, []byte("b")); found {
		t.Errorf("Traverse found a key that is not on the page")
	}
}

func TestTraverseIndex(t *testing.T) {
	// Children: [_, "h") -> 10, ["h", "p") -> 20, ["p", _) -> 30.
	v := NewIndex(nil, nil,
		[][]byte{nil, []byte("h"), []byte("p")},
		[]types.PageID{10, 20, 30})

	cases := []struct {
		key  string
		want types.PageID
	}{
		{"a", 10}, {"h", 20}, {"m", 20}, {"p", 30}, {"z", 30},
	}
	for _, c := range cases {
		_, child, ok := Traverse(v, []byte(c.key))
		if !ok || child != c.want {
			t.Errorf("Traverse(%q) = %d, expected %d", c.key, child, c.want)
		}
	}
}

func TestInsertSortedAndReplace(t *testing.T) {
	c := NewCodec(4096)
	v := leafView("b", "2", "d", "4")

	buf, split, err := c.Insert(v, []byte("c"), []byte("3"))
	if err != nil || split {
		t.Fatalf("Insert failed: split=%v err=%v", split, err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []string{"b", "c", "d"}
	for i, k := range want {
		if !bytes.Equal(got.Keys[i], []byte(k)) {
			t.Errorf("key %d = %q, expected %q", i, got.Keys[i], k)
		}
	}

	// Same key again replaces in place.
	buf, _, err = c.Insert(got, []byte("c"), []byte("three"))
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	got, _ = Decode(buf)
	if len(got.Keys) != 3 {
		t.Fatalf("replace duplicated the entry: %d keys", len(got.Keys))
	}
	if val, _, _ := Traverse(got, []byte("c")); !bytes.Equal(val, []byte("three")) {
		t.Errorf("replaced value = %q", val)
	}
}

// TestInsertSignalsSplit fills a page past its base size class and
// expects the NeedsSplit signal rather than an error.
func TestInsertSignalsSplit(t *testing.T) {
	c := NewCodec(512)
	v := NewLeaf(nil, nil)

	split := false
	for i := 0; i < 64 && !split; i++ {
		key := []byte(fmt.Sprintf("key%04d", i))
		var buf []byte
		var err error
		buf, split, err = c.Insert(v, key, bytes.Repeat([]byte("v"), 16))
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		if v, err = Decode(buf); err != nil {
			t.Fatalf("Decode %d failed: %v", i, err)
		}
	}
	if !split {
		t.Fatalf("page never signaled NeedsSplit")
	}
}

// TestInsertOversizedSingleEntry: one entry above the base size lives in
// a bigger size class instead of splitting; one above the largest class
// is rejected.
func TestInsertOversizedSingleEntry(t *testing.T) {
	c := NewCodec(512)

	big := bytes.Repeat([]byte("x"), 2000)
	buf, split, err := c.Insert(NewLeaf(nil, nil), []byte("k"), big)
	if err != nil || split {
		t.Fatalf("oversized single entry: split=%v err=%v", split, err)
	}
	if class := c.ClassFor(len(buf)); class <= 0 {
		t.Errorf("expected a higher size class, got %d", class)
	}

	tooBig := bytes.Repeat([]byte("x"), c.MaxEncoded()+1)
	_, _, err = c.Insert(NewLeaf(nil, nil), []byte("k"), tooBig)
	if !errors.Is(err, types.ErrValueTooLarge) {
		t.Errorf("expected ErrValueTooLarge, got %v", err)
	}
}

func TestRemoveSignalsMerge(t *testing.T) {
	c := NewCodec(512)

	// Build a page above the merge threshold.
	v := NewLeaf(nil, nil)
	for i := 0; i < 8; i++ {
		key := []byte(fmt.Sprintf("key%04d", i))
		buf, _, err := c.Insert(v, key, bytes.Repeat([]byte("v"), 24))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		v, _ = Decode(buf)
	}
	if EncodedSize(v) < c.MergeThreshold() {
		t.Fatalf("fixture page already below merge threshold")
	}

	merge := false
	for i := 0; i < 8 && !merge; i++ {
		key := []byte(fmt.Sprintf("key%04d", i))
		var buf []byte
		var removed bool
		buf, merge, removed = c.Remove(v, key)
		if !removed {
			t.Fatalf("Remove(%q) did not remove", key)
		}
		v, _ = Decode(buf)
	}
	if !merge {
		t.Fatalf("page never signaled NeedsMerge")
	}

	// Removing an absent key leaves the page untouched.
	before := len(v.Keys)
	buf, _, removed := c.Remove(v, []byte("nope"))
	if removed {
		t.Errorf("Remove reported success for an absent key")
	}
	v, _ = Decode(buf)
	if len(v.Keys) != before {
		t.Errorf("absent-key Remove changed the page")
	}
}
