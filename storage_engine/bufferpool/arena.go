package bufferpool

import (
	"fmt"

	"golang.org/x/sys/unix"
)

/*
This file holds the memory region backing one size class.

Each region is a single anonymous mapping carved into equal slots; a slot
holds exactly one encoded page image. The region never grows: when it is
full the pool evicts. Mapping outside the Go heap keeps the cache budget
a hard ceiling instead of a suggestion to the garbage collector.
*/

const minRegionSize = 64 * 1024

type arena struct {
	data     []byte
	slotSize int
	free     []int
}

// newArena maps an anonymous region of at least capacity bytes, rounded
// up to a power of two, and carves it into slotSize slots.
func newArena(slotSize, capacity int) (*arena, error) {
	if capacity < minRegionSize {
		capacity = minRegionSize
	}
	if capacity < slotSize {
		capacity = slotSize
	}
	capacity = nextPow2(capacity)

	data, err := unix.Mmap(-1, 0, capacity,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to map %d byte region: %w", capacity, err)
	}

	a := &arena{data: data, slotSize: slotSize}
	slots := capacity / slotSize
	// LIFO free list: slot 0 comes off last.
	a.free = make([]int, 0, slots)
	for slot := slots - 1; slot >= 0; slot-- {
		a.free = append(a.free, slot)
	}
	return a, nil
}

func (a *arena) slots() int { return len(a.data) / a.slotSize }

// acquire pops a free slot, or reports false when the region is full.
func (a *arena) acquire() (int, bool) {
	n := len(a.free)
	if n == 0 {
		return 0, false
	}
	slot := a.free[n-1]
	a.free = a.free[:n-1]
	return slot, true
}

func (a *arena) release(slot int) {
	a.free = append(a.free, slot)
}

// bytes returns the occupied prefix of a slot.
func (a *arena) bytes(slot, length int) []byte {
	off := slot * a.slotSize
	return a.data[off : off+length]
}

// store copies a page image into a slot.
func (a *arena) store(slot int, data []byte) {
	copy(a.data[slot*a.slotSize:], data)
}

// unmap releases the region back to the OS.
func (a *arena) unmap() error {
	if a.data == nil {
		return nil
	}
	err := unix.Munmap(a.data)
	a.data = nil
	return err
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
