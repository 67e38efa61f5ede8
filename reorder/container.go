/*
NAME
  container.go

DESCRIPTION
  container.go implements a presentation-order reorder container: buffers
  are inserted keyed by timestamp and released in ascending order, with a
  Predictor learning the steady-state frame spacing so that emission can
  proceed without explicit decode-order hints.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package reorder

import "time"

// Timestamp is a 64-bit unsigned presentation-order key, opaque to the
// container beyond equality and unsigned ordering.
type Timestamp uint64

// Invalid denotes "unknown" when a Timestamp needs a sentinel.
const Invalid Timestamp = 1<<64 - 1

// Buffer owns a byte payload keyed by timestamp, forming a node in the
// container's sorted doubly-linked list.
type Buffer struct {
	Timestamp Timestamp
	Data      []byte
	Arrival   time.Time

	next, prev *Buffer
}

// Container buffers enhancement payloads keyed by presentation timestamp
// and releases them in ascending order.
type Container struct {
	head, tail *Buffer
	size       int
	capacity   int // 0 means unbounded.

	predictor *Predictor
}

// NewContainer returns an empty Container. capacity == 0 means unbounded.
func NewContainer(capacity int) *Container {
	return &Container{capacity: capacity, predictor: NewPredictor(0)}
}

// Size returns the number of buffers currently held.
func (c *Container) Size() int { return c.size }

// Capacity returns the configured capacity (0 == unbounded).
func (c *Container) Capacity() int { return c.capacity }

// SetMaxNumReorderFrames resets the predictor and, if the container is
// non-empty, re-hints it with the current head timestamp.
func (c *Container) SetMaxNumReorderFrames(n int) {
	c.predictor.SetMaxNumReorderFrames(n)
	if c.head != nil {
		c.predictor.Hint(c.head.Timestamp)
	}
}

// insert links buf into the sorted list; it returns false (rejecting the
// insert) on a duplicate timestamp, matching the original's "the old
// buffer is retained" behaviour — callers must not assume the new buffer
// replaces it.
func (c *Container) insert(buf *Buffer) bool {
	if c.capacity != 0 && c.size >= c.capacity {
		return false
	}
	if c.head == nil {
		c.head, c.tail = buf, buf
		c.size++
		return true
	}
	for n := c.tail; n != nil; n = n.prev {
		switch {
		case buf.Timestamp == n.Timestamp:
			return false
		case buf.Timestamp > n.Timestamp:
			buf.prev = n
			buf.next = n.next
			if n.next != nil {
				n.next.prev = buf
			} else {
				c.tail = buf
			}
			n.next = buf
			c.size++
			return true
		}
	}
	buf.next = c.head
	c.head.prev = buf
	c.head = buf
	c.size++
	return true
}

// Insert copies data into a new Buffer keyed by ts and inserts it,
// hinting and feeding the predictor as the original does: hint with the
// current head (presentation order) before the structural change, then
// feed with the inserted timestamp (decode order).
func (c *Container) Insert(ts Timestamp, data []byte) bool {
	cp := make([]byte, len(data))
	copy(cp, data)
	return c.insertCommon(ts, cp)
}

// InsertNoCopy is like Insert but takes ownership of data without
// copying it.
func (c *Container) InsertNoCopy(ts Timestamp, data []byte) bool {
	return c.insertCommon(ts, data)
}

// insertCommon feeds the predictor with the inserted (decode-order)
// timestamp; the predictor only learns about presentation-order progress
// when the caller later drives ExtractNextInOrder, which hints with the
// head before checking readiness.
func (c *Container) insertCommon(ts Timestamp, data []byte) bool {
	c.predictor.Feed(ts)
	return c.insert(&Buffer{Timestamp: ts, Data: data, Arrival: time.Now()})
}

func (c *Container) unlink(n *Buffer) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.next, n.prev = nil, nil
	c.size--
}

func (c *Container) find(ts Timestamp) *Buffer {
	for n := c.head; n != nil; n = n.next {
		if n.Timestamp == ts {
			return n
		}
		if n.Timestamp > ts {
			return nil
		}
	}
	return nil
}

// Exists reports whether ts is present, and whether it is currently at
// the head of the container.
func (c *Container) Exists(ts Timestamp) (found, isAtHead bool) {
	n := c.find(ts)
	if n == nil {
		return false, false
	}
	return true, n == c.head
}

// Clear removes every buffer without releasing them in any particular
// order.
func (c *Container) Clear() {
	c.head, c.tail = nil, nil
	c.size = 0
}

// Flush removes and discards every buffer with Timestamp < ts, without
// requiring ts itself to be present. It differs from Extract, which also
// returns the matching buffer.
func (c *Container) Flush(ts Timestamp) {
	for c.head != nil && c.head.Timestamp < ts {
		c.unlink(c.head)
	}
}

// Extract removes and releases every buffer with Timestamp < ts; if ts
// itself is present it is removed and returned, otherwise the overshoot
// entry (if any) is left in place and nil is returned. isAtHead reports
// whether the container is now empty.
func (c *Container) Extract(ts Timestamp) (buf *Buffer, isAtHead bool) {
	for c.head != nil && c.head.Timestamp < ts {
		c.unlink(c.head)
	}
	if c.head != nil && c.head.Timestamp == ts {
		n := c.head
		c.unlink(n)
		return n, c.size == 0
	}
	return nil, c.size == 0
}

// ExtractNextInOrder returns the head buffer if it is ready to emit: the
// predictor must consider it "next" in sequence, unless force is true, in
// which case it is returned unconditionally (used for flush-on-close).
// The head is always hinted to the predictor before the readiness check,
// matching the original's eager-hint behaviour.
func (c *Container) ExtractNextInOrder(force bool) (buf *Buffer, queueSizeBefore int) {
	queueSizeBefore = c.size
	if c.head == nil {
		return nil, queueSizeBefore
	}
	c.predictor.Hint(c.head.Timestamp)
	if !force && !c.predictor.IsNext(c.head.Timestamp) {
		return nil, queueSizeBefore
	}
	n := c.head
	c.unlink(n)
	return n, queueSizeBefore
}
