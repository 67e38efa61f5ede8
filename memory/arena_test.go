/*
NAME
  arena_test.go

DESCRIPTION
  arena_test.go exercises the rolling arena's allocate/free invariants
  and a randomised stress scenario.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package memory

import (
	"math/rand"
	"testing"
)

func TestAllocateFreeRoundTrip(t *testing.T) {
	a := NewRollingArena(1024)
	alloc, err := a.Allocate(128, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got := len(a.Bytes(alloc)); got != 128 {
		t.Fatalf("got %d bytes, want 128", got)
	}
	if a.LiveSlots() != 1 {
		t.Fatalf("got %d live slots, want 1", a.LiveSlots())
	}
	a.Free(alloc)
	if a.LiveSlots() != 0 {
		t.Fatalf("got %d live slots after free, want 0", a.LiveSlots())
	}
}

func TestAllocateGrowsBufferOnOverflow(t *testing.T) {
	a := NewRollingArena(128)
	var allocs []*Allocation
	for i := 0; i < 10; i++ {
		alloc, err := a.Allocate(64, 0)
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		allocs = append(allocs, alloc)
	}
	if a.BufferCount() < 2 {
		t.Fatalf("expected arena to have grown past one buffer, got %d", a.BufferCount())
	}
	for _, alloc := range allocs {
		a.Free(alloc)
	}
	if a.LiveSlots() != 0 {
		t.Fatalf("got %d live slots, want 0", a.LiveSlots())
	}
	if a.BufferCount() != 1 {
		t.Fatalf("expected only the active buffer to remain, got %d", a.BufferCount())
	}
}

func TestReallocateGrowInPlace(t *testing.T) {
	a := NewRollingArena(4096)
	alloc, _ := a.Allocate(64, 0)
	copy(a.Bytes(alloc), []byte("hello"))

	grown, err := a.Reallocate(alloc, 256)
	if err != nil {
		t.Fatalf("Reallocate: %v", err)
	}
	got := a.Bytes(grown)
	if len(got) != 256 {
		t.Fatalf("got %d bytes, want 256", len(got))
	}
	if string(got[:5]) != "hello" {
		t.Fatalf("got %q, want leading %q", got[:5], "hello")
	}
}

func TestFreeInArbitraryOrderDrainsToEmpty(t *testing.T) {
	a := NewRollingArena(1024)
	var allocs []*Allocation
	for i := 0; i < 20; i++ {
		alloc, err := a.Allocate(1+i%37, 0)
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		allocs = append(allocs, alloc)
	}
	rand.New(rand.NewSource(1)).Shuffle(len(allocs), func(i, j int) {
		allocs[i], allocs[j] = allocs[j], allocs[i]
	})
	for _, alloc := range allocs {
		a.Free(alloc)
	}
	if a.LiveSlots() != 0 {
		t.Fatalf("got %d live slots, want 0", a.LiveSlots())
	}
	if a.BufferCount() != 1 {
		t.Fatalf("expected arena to have collapsed to one buffer, got %d", a.BufferCount())
	}
}

// TestRandomisedInterleavedAllocateFree allocates and frees a pool of
// randomly sized blocks in a random order many times over, checking the
// allocCount==live-slot-count invariant after every step and that the
// arena returns to a single buffer once everything is freed.
func TestRandomisedInterleavedAllocateFree(t *testing.T) {
	a := NewRollingArena(4096)
	rng := rand.New(rand.NewSource(42))

	type live struct {
		alloc *Allocation
		size  int
	}
	var outstanding []live

	const ops = 10000
	for i := 0; i < ops; i++ {
		if len(outstanding) == 0 || rng.Intn(2) == 0 {
			size := 1 + rng.Intn(4000)
			alloc, err := a.Allocate(size, 0)
			if err != nil {
				t.Fatalf("op %d: Allocate(%d): %v", i, size, err)
			}
			outstanding = append(outstanding, live{alloc, size})
		} else {
			idx := rng.Intn(len(outstanding))
			a.Free(outstanding[idx].alloc)
			outstanding[idx] = outstanding[len(outstanding)-1]
			outstanding = outstanding[:len(outstanding)-1]
		}
		if got, want := a.LiveSlots(), len(outstanding); got != want {
			t.Fatalf("op %d: got %d live slots, want %d", i, got, want)
		}
	}
	for _, l := range outstanding {
		a.Free(l.alloc)
	}
	if a.LiveSlots() != 0 {
		t.Fatalf("got %d live slots after final drain, want 0", a.LiveSlots())
	}
	if a.BufferCount() != 1 {
		t.Fatalf("expected arena to have collapsed to one buffer, got %d", a.BufferCount())
	}
}
