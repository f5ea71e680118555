package page

import (
	"bytes"
	"fmt"
	"testing"

	"EmberDB/types"
)

// TestSplitBoundaries verifies the split postconditions: the shared
// boundary equals the separator, keys below it land left, keys at or
// above it land right.
func TestSplitBoundaries(t *testing.T) {
	v := leafView("ant", "1", "bee", "2", "cat", "3", "dog", "4", "eel", "5")

	left, right, sep, err := Split(v)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if !bytes.Equal(left.Hi, sep) || !bytes.Equal(right.Lo, sep) {
		t.Errorf("boundaries: left.Hi=%q right.Lo=%q sep=%q", left.Hi, right.Lo, sep)
	}
	for _, k := range left.Keys {
		if bytes.Compare(k, sep) >= 0 {
			t.Errorf("left key %q not below separator %q", k, sep)
		}
	}
	for _, k := range right.Keys {
		if bytes.Compare(k, sep) < 0 {
			t.Errorf("right key %q below separator %q", k, sep)
		}
	}

	// Median of five entries goes right: 2 left, 3 right.
	if len(left.Keys) != 2 || len(right.Keys) != 3 {
		t.Errorf("median went the wrong way: %d/%d", len(left.Keys), len(right.Keys))
	}
}

// TestSplitSeparatorTruncation: a leaf separator is the shortest prefix
// of the right half's first key that clears the left half.
func TestSplitSeparatorTruncation(t *testing.T) {
	v := leafView("apple", "1", "apricot", "2", "banana", "3", "blueberry", "4")

	_, _, sep, err := Split(v)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	// Left ends at "apricot", right starts at "banana": "b" suffices.
	if !bytes.Equal(sep, []byte("b")) {
		t.Errorf("separator = %q, expected %q", sep, "b")
	}
}

// TestSplitIndexKeepsExactBoundary: truncating an index separator would
// detach part of a child's key range, so the boundary key is kept whole.
func TestSplitIndexKeepsExactBoundary(t *testing.T) {
	v := NewIndex(nil, nil,
		[][]byte{nil, []byte("carrot"), []byte("potato"), []byte("turnip")},
		[]types.PageID{1, 2, 3, 4})

	_, right, sep, err := Split(v)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if !bytes.Equal(sep, []byte("potato")) {
		t.Errorf("index separator = %q, expected the exact boundary", sep)
	}
	if !bytes.Equal(right.Keys[0], sep) {
		t.Errorf("right index page must start at its own low boundary")
	}
}

// TestMergeSplitRoundTrip: merging adjacent siblings and re-splitting at
// the original point reproduces the original two pages.
func TestMergeSplitRoundTrip(t *testing.T) {
	v := NewLeaf(nil, nil)
	c := NewCodec(4096)
	for i := 0; i < 10; i++ {
		buf, _, err := c.Insert(v, []byte(fmt.Sprintf("key%02d", i)), []byte("v"))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		v, _ = Decode(buf)
	}

	left, right, _, err := Split(v)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	merged, err := Merge(left, right)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	left2, right2, _, err := SplitAt(merged, len(left.Keys))
	if err != nil {
		t.Fatalf("re-split failed: %v", err)
	}

	if !bytes.Equal(Encode(left), Encode(left2)) {
		t.Errorf("left page not reproduced by merge/re-split")
	}
	if !bytes.Equal(Encode(right), Encode(right2)) {
		t.Errorf("right page not reproduced by merge/re-split")
	}
}

func TestMergeRejectsNonAdjacent(t *testing.T) {
	a := NewLeaf(nil, []byte("g"))
	b := NewLeaf([]byte("m"), nil)
	if _, err := Merge(a, b); err == nil {
		t.Fatalf("Merge accepted non-adjacent pages")
	}
}

func TestShortestSeparator(t *testing.T) {
	cases := []struct{ a, b, want string }{
		{"apricot", "banana", "b"},
		{"abc", "abd", "abd"},
		{"abc", "abcd", "abcd"},
		{"cart", "cast", "cas"},
		{"a", "c", "c"},
	}
	for _, c := range cases {
		got := ShortestSeparator([]byte(c.a), []byte(c.b))
		if !bytes.Equal(got, []byte(c.want)) {
			t.Errorf("ShortestSeparator(%q, %q) = %q, expected %q", c.a, c.b, got, c.want)
		}
		if bytes.Compare(got, []byte(c.a)) <= 0 || bytes.Compare(got, []byte(c.b)) > 0 {
			t.Errorf("separator %q outside (%q, %q]", got, c.a, c.b)
		}
	}
}
