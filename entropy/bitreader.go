/*
NAME
  bitreader.go

DESCRIPTION
  bitreader.go implements a big-endian, MSB-first bit reader over a byte
  slice, the primitive every entropy stream decodes its Huffman tables
  and symbols through.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package entropy decodes the three-stream (LSB/MSB/run-length)
// canonical Huffman coding used to pack per-coefficient residual data.
package entropy

import "github.com/pkg/errors"

// ErrShortStream is returned when a read runs past the end of the
// underlying buffer.
var ErrShortStream = errors.New("entropy: short stream")

// BitReader reads bits MSB-first from an underlying byte slice.
type BitReader struct {
	data    []byte
	bitPos  int // absolute bit position of the next unread bit.
	bitSize int
}

// NewBitReader wraps data for bit-at-a-time reading.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data, bitSize: len(data) * 8}
}

// BitsRead returns the number of bits consumed so far.
func (r *BitReader) BitsRead() int { return r.bitPos }

// ReadBits reads n (0..32) bits and returns them right-aligned.
func (r *BitReader) ReadBits(n int) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	if r.bitPos+n > r.bitSize {
		return 0, ErrShortStream
	}
	var v uint32
	for i := 0; i < n; i++ {
		byteIdx := r.bitPos >> 3
		bitIdx := 7 - uint(r.bitPos&7)
		bit := (r.data[byteIdx] >> bitIdx) & 1
		v = (v << 1) | uint32(bit)
		r.bitPos++
	}
	return v, nil
}

// PeekBits reads n bits without advancing the stream, returning what
// bits remain as zero-padded if fewer than n bits are left.
func (r *BitReader) PeekBits(n int) uint32 {
	save := r.bitPos
	var v uint32
	for i := 0; i < n; i++ {
		if r.bitPos >= r.bitSize {
			v <<= 1
			continue
		}
		byteIdx := r.bitPos >> 3
		bitIdx := 7 - uint(r.bitPos&7)
		bit := (r.data[byteIdx] >> bitIdx) & 1
		v = (v << 1) | uint32(bit)
		r.bitPos++
	}
	r.bitPos = save
	return v
}

// Advance consumes n bits without returning their value.
func (r *BitReader) Advance(n int) { r.bitPos += n }
