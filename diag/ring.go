/*
NAME
  ring.go

DESCRIPTION
  ring.go implements a lock-based single-consumer, multi-producer ring
  buffer of fixed-size diagnostic records with a companion byte ring for
  variable-length payloads, so that emitting a diagnostic never touches
  the heap on the hot path.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package diag implements the decoder's internal diagnostics ring: an
// multi-producer queue of typed records, drained by a single out-of-band consumer,
// decoupled from the synchronous logging.Logger used for operational
// messages.
package diag

import (
	"sync"
)

// Severity is the level of a diagnostic record.
type Severity uint8

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// Record is a fixed-size diagnostic record: a reference to its call site,
// a timestamp, and either an inline value or an offset into the variable
// data ring.
type Record struct {
	Site      string // source-location identifier, interned by the caller.
	Severity  Severity
	Nanotime  int64
	ThreadID  uint64
	Value     uint64 // inline typed value, valid when Size == 0.
	varOffset uint64 // offset into varData, valid when Size > 0.
	Size      uint32 // length of the variable payload, 0 if none.
}

// Ring is the diagnostics ring buffer described above. capacity and
// varCapacity must both be powers of two.
type Ring struct {
	mu sync.Mutex

	notEmpty *sync.Cond
	notFull  *sync.Cond

	records    []Record
	ringMask   uint32
	front      uint32
	back       uint32

	varData     []byte
	varMask     uint64
	varNext     uint64
}

// New returns an initialised Ring. capacity and varCapacity must be
// non-zero powers of two.
func New(capacity, varCapacity uint32) *Ring {
	if capacity&(capacity-1) != 0 || varCapacity&(uint32(varCapacity)-1) != 0 {
		panic("diag: capacity and varCapacity must be powers of two")
	}
	r := &Ring{
		records:  make([]Record, capacity),
		ringMask: capacity - 1,
		varData:  make([]byte, varCapacity),
		varMask:  uint64(varCapacity) - 1,
	}
	r.notEmpty = sync.NewCond(&r.mu)
	r.notFull = sync.NewCond(&r.mu)
	return r
}

// Capacity returns the number of record slots.
func (r *Ring) Capacity() uint32 { return r.ringMask + 1 }

// Size returns the current number of buffered records.
func (r *Ring) Size() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (r.ringMask + 1 + r.front - r.back) & r.ringMask
}

// IsEmpty reports whether the ring currently holds no records.
func (r *Ring) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.front == r.back
}

// IsFull reports whether the next Push would block.
func (r *Ring) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (r.front+1)&r.ringMask == r.back
}

// Push copies rec and the optional payload into the ring, blocking while
// the record ring is full.
func (r *Ring) Push(rec Record, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for (r.front+1)&r.ringMask == r.back {
		r.notFull.Wait()
	}
	wasEmpty := r.front == r.back

	rec.Size = uint32(len(payload))
	if len(payload) > 0 && uint64(len(payload)) <= r.varMask+1 {
		if r.varMask+1-(r.varNext&r.varMask) < uint64(len(payload)) {
			r.varNext = (r.varNext + r.varMask) &^ r.varMask
		}
		rec.varOffset = r.varNext
		copy(r.varData[rec.varOffset&r.varMask:], payload)
		r.varNext += uint64(len(payload))
	}

	r.records[r.front] = rec
	r.front = (r.front + 1) & r.ringMask

	if wasEmpty {
		r.notEmpty.Signal()
	}
}

// Pop blocks until a record is available, then removes and returns it
// along with its variable payload (copied into a fresh slice, nil if the
// payload has been overwritten by faster producers or there was none).
func (r *Ring) Pop() (rec Record, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.front == r.back {
		r.notEmpty.Wait()
	}

	rec = r.records[r.back]
	r.back = (r.back + 1) & r.ringMask

	if rec.Size > 0 {
		overrunOffset := rec.varOffset + r.varMask + 1
		if compareOffsets(r.varNext, overrunOffset) <= 0 {
			payload = make([]byte, rec.Size)
			copy(payload, r.varData[rec.varOffset&r.varMask:])
		} else {
			rec.Size = 0
		}
	}

	r.notFull.Signal()
	return rec, payload
}

// compareOffsets compares two ring offsets that may wrap, using signed
// 64-bit arithmetic so a wrapped delta still resolves to the right sign.
func compareOffsets(lhs, rhs uint64) int {
	delta := int64(lhs - rhs)
	switch {
	case delta < 0:
		return -1
	case delta > 0:
		return 1
	default:
		return 0
	}
}

// PushBegin reserves a slot and its variable-data region without copying
// a payload, returning a pointer to the record so the caller can write
// typed fields directly before calling PushEnd. It blocks while the ring
// is full, exactly like Push.
func (r *Ring) PushBegin(varSize uint32) *Record {
	r.mu.Lock()

	for (r.front+1)&r.ringMask == r.back {
		r.notFull.Wait()
	}
	wasEmpty := r.front == r.back

	dest := &r.records[r.front]
	r.front = (r.front + 1) & r.ringMask

	if varSize > 0 {
		if r.varMask+1-(r.varNext&r.varMask) < uint64(varSize) {
			r.varNext = (r.varNext + r.varMask) &^ r.varMask
		}
		dest.varOffset = r.varNext
		dest.Size = varSize
		r.varNext += uint64(varSize)
	} else {
		dest.Size = 0
	}

	if wasEmpty {
		r.notEmpty.Signal()
	}
	return dest
}

// VarData returns the backing slice for rec's variable payload, valid
// for writing exactly varSize bytes passed to the preceding PushBegin.
func (r *Ring) VarData(rec *Record) []byte {
	return r.varData[rec.varOffset&r.varMask:]
}

// PushEnd releases the lock taken by PushBegin.
func (r *Ring) PushEnd() {
	r.mu.Unlock()
}
