package bufferpool

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

/*
This file holds the access-frequency sketch behind the admission test.

A count-min sketch over page identifiers approximates how often each page
has been touched without keeping a counter per page. When a newly fetched
page needs a slot and only protected frames remain, the pool compares
sketch estimates: the newcomer displaces a protected frame only if it has
been touched at least as often. Counters are halved periodically so stale
popularity decays instead of pinning old pages in the protected segment
forever.
*/

const (
	sketchRows = 4

	// resetAfter bounds how long a burst of popularity lingers: once
	// this many touches accumulate, every counter is halved.
	resetAfter = 10_000
)

type freqSketch struct {
	rows    [sketchRows][]uint8
	mask    uint64
	touches int
}

// newFreqSketch sizes the sketch for roughly the given number of tracked
// pages. width is rounded up to a power of two for cheap masking.
func newFreqSketch(counters int) *freqSketch {
	if counters < 256 {
		counters = 256
	}
	width := nextPow2(counters)

	s := &freqSketch{mask: uint64(width - 1)}
	for i := range s.rows {
		s.rows[i] = make([]uint8, width)
	}
	return s
}

// rowIndex derives per-row positions from a single xxhash via double
// hashing.
func (s *freqSketch) rowIndex(key uint64, row int) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	h := xxhash.Sum64(buf[:])
	return (h + uint64(row+1)*(h>>32|1)) & s.mask
}

// Touch records one access, saturating at the counter ceiling.
func (s *freqSketch) Touch(key uint64) {
	for row := 0; row < sketchRows; row++ {
		i := s.rowIndex(key, row)
		if s.rows[row][i] < ^uint8(0) {
			s.rows[row][i]++
		}
	}
	s.touches++
	if s.touches >= resetAfter {
		s.reset()
	}
}

// Estimate returns the minimum counter across rows, an upper bound on
// the true access count.
func (s *freqSketch) Estimate(key uint64) uint8 {
	est := ^uint8(0)
	for row := 0; row < sketchRows; row++ {
		if c := s.rows[row][s.rowIndex(key, row)]; c < est {
			est = c
		}
	}
	return est
}

func (s *freqSketch) reset() {
	for row := range s.rows {
		for i := range s.rows[row] {
			s.rows[row][i] >>= 1
		}
	}
	s.touches = 0
}
