/*
NAME
  arena.go

DESCRIPTION
  arena.go implements a rolling-arena allocator: a sequence of growing
  backing buffers serving FIFO-biased allocations in O(1) amortised time,
  tuned for the per-frame allocation pattern of the decode pipeline
  rather than for general-purpose use.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package memory provides the decoder's allocator abstractions: a
// generic Allocator interface and a RollingArena implementation tuned
// for allocations whose lifetimes are correlated (freed in roughly the
// order they were allocated).
package memory

import (
	"sync"

	"github.com/pkg/errors"
)

// MinAlignment is the minimum alignment the arena guarantees for every
// allocation, regardless of the caller's requested alignment.
const MinAlignment = 64

const maxBuffers = 16
const initialSlots = 64

// ErrOutOfMemory is returned when the parent allocator cannot supply a
// new backing buffer.
var ErrOutOfMemory = errors.New("memory: out of memory")

// Allocation is an opaque handle to a live arena allocation. Reallocation
// may move the backing bytes; callers must re-read Bytes after calling
// Reallocate.
type Allocation struct {
	arena *RollingArena
	index uint64 // monotonic allocation index, used to locate the owning slot.
}

type backingBuffer struct {
	data        []byte
	front, back int
	allocCount  int
}

type slot struct {
	begin, end  int
	bufferIndex int
	used        bool
}

// RollingArena is a sequence of backing buffers; only the newest is
// active for new allocations. A power-of-two ring of slots tracks the
// byte range and owning buffer of every live allocation.
type RollingArena struct {
	mu sync.Mutex

	buffers []*backingBuffer // buffers[len-1] is active.

	slots     []slot
	slotsMask int
	slotFront int // next slot index to write.
	slotBack  int // oldest live slot index.

	oldestAllocationIndex uint64
	nextAllocationIndex   uint64
}

// NewRollingArena returns an empty arena that will grow its first backing
// buffer to at least initialSize bytes on first use.
func NewRollingArena(initialSize int) *RollingArena {
	if initialSize < MinAlignment {
		initialSize = MinAlignment
	}
	a := &RollingArena{
		slots:     make([]slot, initialSlots),
		slotsMask: initialSlots - 1,
	}
	a.addBuffer(initialSize)
	return a
}

func (a *RollingArena) addBuffer(size int) {
	a.buffers = append(a.buffers, &backingBuffer{data: make([]byte, size)})
}

func alignUp(n, alignment int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Allocate returns a new Allocation of at least size bytes, aligned to at
// least MinAlignment.
func (a *RollingArena) Allocate(size, alignment int) (*Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if alignment < MinAlignment {
		alignment = MinAlignment
	}
	aligned := alignUp(size, alignment)

	active := a.buffers[len(a.buffers)-1]
	begin := -1
	switch {
	case len(active.data)-active.front >= aligned:
		begin = active.front
	case active.back >= aligned:
		begin = 0
	default:
		newSize := len(active.data) * 2
		need := aligned + (len(active.data) - active.front)
		if need > newSize {
			newSize = need
		}
		if len(a.buffers) >= maxBuffers {
			return nil, ErrOutOfMemory
		}
		a.addBuffer(newSize)
		active = a.buffers[len(a.buffers)-1]
		begin = 0
	}

	end := begin + aligned
	active.front = end
	active.allocCount++

	if (a.slotFront+1)&a.slotsMask == a.slotBack {
		a.doubleSlots()
	}
	idx := a.nextAllocationIndex
	a.nextAllocationIndex++
	a.slots[a.slotFront] = slot{begin: begin, end: end, bufferIndex: len(a.buffers) - 1, used: true}
	a.slotFront = (a.slotFront + 1) & a.slotsMask

	return &Allocation{arena: a, index: idx}, nil
}

func (a *RollingArena) doubleSlots() {
	newCap := (a.slotsMask + 1) * 2
	newSlots := make([]slot, newCap)
	n := a.slotsMask + 1
	for i := 0; i < n; i++ {
		newSlots[i] = a.slots[(a.slotBack+i)&a.slotsMask]
	}
	a.slots = newSlots
	a.slotsMask = newCap - 1
	a.slotBack = 0
	a.slotFront = n - 1 // the ring was full with n-1 live slots.
}

func (a *RollingArena) slotIndex(allocIndex uint64) int {
	return int((allocIndex-a.oldestAllocationIndex+uint64(a.slotBack))) & a.slotsMask
}

// Free releases alloc. It is a programming error to free the same
// Allocation twice.
func (a *RollingArena) Free(alloc *Allocation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free(alloc.index)
}

func (a *RollingArena) free(allocIndex uint64) {
	si := a.slotIndex(allocIndex)
	s := &a.slots[si]
	s.used = false

	buf := a.buffers[s.bufferIndex]
	buf.allocCount--

	// Advance bufferBack over a contiguous run of freed slots belonging to
	// the oldest buffer, then advance slotBack/oldestAllocationIndex over
	// those same slots.
	for a.slotBack != a.slotFront && !a.slots[a.slotBack].used {
		freed := a.slots[a.slotBack]
		fb := a.buffers[freed.bufferIndex]
		if freed.bufferIndex == 0 || fb == a.buffers[len(a.buffers)-1] {
			fb.back = freed.end
		}
		a.slotBack = (a.slotBack + 1) & a.slotsMask
		a.oldestAllocationIndex++
	}

	if buf.allocCount == 0 && buf != a.buffers[len(a.buffers)-1] {
		a.releaseBuffer(s.bufferIndex)
	}
}

// releaseBuffer drops an emptied, non-active buffer and fixes up the
// bufferIndex recorded in any remaining slots.
func (a *RollingArena) releaseBuffer(idx int) {
	a.buffers = append(a.buffers[:idx], a.buffers[idx+1:]...)
	for i := range a.slots {
		if a.slots[i].bufferIndex > idx {
			a.slots[i].bufferIndex--
		}
	}
}

// Reallocate grows or shrinks alloc in place when the current slot's
// region can accommodate the new size, otherwise it allocates a fresh
// block, copies min(old,new) bytes across, and frees the original.
func (a *RollingArena) Reallocate(alloc *Allocation, size int) (*Allocation, error) {
	a.mu.Lock()
	si := a.slotIndex(alloc.index)
	s := &a.slots[si]
	buf := a.buffers[s.bufferIndex]
	oldLen := s.end - s.begin
	aligned := alignUp(size, MinAlignment)

	isActiveFront := buf == a.buffers[len(a.buffers)-1] && buf.front == s.end
	if isActiveFront && s.begin+aligned <= len(buf.data) {
		s.end = s.begin + aligned
		buf.front = s.end
		a.mu.Unlock()
		return alloc, nil
	}
	a.mu.Unlock()

	newAlloc, err := a.Allocate(size, MinAlignment)
	if err != nil {
		return nil, err
	}
	n := oldLen
	if size < n {
		n = size
	}
	copy(a.Bytes(newAlloc), a.Bytes(alloc)[:n])
	a.Free(alloc)
	return newAlloc, nil
}

// Bytes returns the backing bytes for alloc.
func (a *RollingArena) Bytes(alloc *Allocation) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	si := a.slotIndex(alloc.index)
	s := a.slots[si]
	return a.buffers[s.bufferIndex].data[s.begin:s.end]
}

// LiveSlots returns the number of currently allocated (unfreed) slots,
// for testing the allocCount==live-slot-count invariant.
func (a *RollingArena) LiveSlots() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for i := a.slotBack; i != a.slotFront; i = (i + 1) & a.slotsMask {
		if a.slots[i].used {
			n++
		}
	}
	return n
}

// BufferCount returns the number of backing buffers currently held.
func (a *RollingArena) BufferCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}
