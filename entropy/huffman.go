/*
NAME
  huffman.go

DESCRIPTION
  huffman.go implements canonical Huffman table construction and decode
  for a single symbol stream: a code-length table is read from the
  bitstream, canonical codes are assigned by ascending length (ties
  broken by descending symbol value), and decode proceeds by extending
  the peeked bit window one bit at a time and binary-searching the
  codes of that length.

  This omits the fused big-table/small-table lookahead acceleration of
  the reference decoder (a pure performance optimisation over the same
  canonical codes) in favour of the simpler binary-search walk.

  The code-length field width is looked up from a fixed table indexed
  by bitstream version rather than derived, since only the newest
  bitstream version's row actually reduces to a closed-form formula.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package entropy

import (
	"sort"

	"github.com/pkg/errors"
)

const maxNumSymbols = 256
const maxCodeLength = 31

// Bitstream versions that affect how the Huffman code-length field
// width is looked up: versions below bitstreamVersionNewCodeLengths
// index the table with an extra +1 offset (they predate the
// code-length-table rework), and every version from
// bitstreamVersionTableRows onward shares that row.
const (
	BitstreamVersion0             uint8 = 0
	BitstreamVersion1             uint8 = 1
	BitstreamVersion2             uint8 = 2
	bitstreamVersionNewCodeLengths      = BitstreamVersion2
	bitstreamVersionTableRows           = BitstreamVersion2
)

// codeLengthWidthTable gives the number of bits needed to encode a
// code-length delta in [0, x], one row per bitstream version (rows
// beyond bitstreamVersionTableRows reuse the last row). Each of the
// first versions introduced its own row; only the last row actually
// reduces to ceil(log2(x+1)) — the others do not, so the table is kept
// literal rather than derived.
var codeLengthWidthTable = [bitstreamVersionTableRows + 1][32]int8{
	{
		1, 1, 2, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 5, 5, 5,
		5, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	},
	{
		1, 1, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4,
		5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	},
	{
		0, 1, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4,
		5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	},
}

// ErrInvalidTable is returned when a Huffman table's encoded min/max
// code lengths are inconsistent.
var ErrInvalidTable = errors.New("entropy: invalid huffman table")

// ErrUnknownCode is returned when no canonical code matches the bits
// read from the stream.
var ErrUnknownCode = errors.New("entropy: unknown huffman code")

type listEntry struct {
	symbol byte
	bits   uint8
	code   uint32
}

// Table is a canonical Huffman decode table for one symbol stream.
type Table struct {
	minCodeLength, maxCodeLength uint8
	singleSymbol                 byte
	single                       bool
	list                         []listEntry
	idxOfBitSize                 [maxCodeLength + 2]int
}

// bitWidth looks up the number of bits needed to encode a code-length
// delta in [0, x], from the row for bitstreamVersion. Versions older
// than bitstreamVersionNewCodeLengths index the table one column to
// the right of x, matching the offset their wire format used before
// the code-length table was reworked.
func bitWidth(x uint8, bitstreamVersion uint8) int {
	if bitstreamVersion < bitstreamVersionNewCodeLengths {
		x++
	}
	if x > 31 {
		// Unreachable in practice: x is derived from two 5-bit fields,
		// so this only fires on a malformed table.
		return -1
	}
	row := bitstreamVersion
	if row > bitstreamVersionTableRows {
		row = bitstreamVersionTableRows
	}
	return int(codeLengthWidthTable[row][x])
}

// ReadTable decodes a canonical Huffman table from r, using
// bitstreamVersion to pick the code-length field width table.
func ReadTable(r *BitReader, bitstreamVersion uint8) (*Table, error) {
	t := &Table{}

	minLen, err := r.ReadBits(5)
	if err != nil {
		return nil, err
	}
	maxLen, err := r.ReadBits(5)
	if err != nil {
		return nil, err
	}
	t.minCodeLength, t.maxCodeLength = uint8(minLen), uint8(maxLen)
	if t.maxCodeLength < t.minCodeLength {
		return nil, errors.Wrapf(ErrInvalidTable, "max length %d < min length %d", t.maxCodeLength, t.minCodeLength)
	}

	if t.minCodeLength == maxCodeLength && t.maxCodeLength == maxCodeLength {
		return t, nil // empty table.
	}
	if t.minCodeLength == 0 && t.maxCodeLength == 0 {
		sym, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		t.singleSymbol = byte(sym)
		t.single = true
		return t, nil
	}

	lengthBits := bitWidth(t.maxCodeLength-t.minCodeLength, bitstreamVersion)
	if lengthBits < 0 {
		return nil, errors.Wrap(ErrInvalidTable, "code length delta out of range")
	}

	usesPresenceBitmap, err := r.ReadBits(1)
	if err != nil {
		return nil, err
	}

	var entries []listEntry
	if usesPresenceBitmap != 0 {
		for sym := 0; sym < maxNumSymbols; sym++ {
			present, err := r.ReadBits(1)
			if err != nil {
				return nil, err
			}
			if present == 0 {
				continue
			}
			delta, err := r.ReadBits(lengthBits)
			if err != nil {
				return nil, err
			}
			entries = append(entries, listEntry{symbol: byte(sym), bits: uint8(delta) + t.minCodeLength})
		}
	} else {
		count, err := r.ReadBits(5)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, errors.Wrap(ErrInvalidTable, "zero symbol count")
		}
		for i := uint32(0); i < count; i++ {
			sym, err := r.ReadBits(8)
			if err != nil {
				return nil, err
			}
			delta, err := r.ReadBits(lengthBits)
			if err != nil {
				return nil, err
			}
			entries = append(entries, listEntry{symbol: byte(sym), bits: uint8(delta) + t.minCodeLength})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].bits != entries[j].bits {
			return entries[i].bits < entries[j].bits
		}
		return entries[i].symbol > entries[j].symbol
	})

	assignCodes(entries, t.maxCodeLength)
	t.list = entries
	indexByBitSize(t)
	return t, nil
}

// assignCodes assigns canonical codes to entries, already sorted by
// ascending length then descending symbol, walking from the longest
// code to the shortest.
func assignCodes(entries []listEntry, maxLen uint8) {
	currLength := maxLen
	var currCode uint32
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].bits < currLength {
			currCode >>= uint(currLength - entries[i].bits)
			currLength = entries[i].bits
		}
		entries[i].code = currCode
		currCode++
	}
}

// indexByBitSize records, for each code length, the first list index
// whose code is of strictly greater length (an exclusive upper bound
// for the binary search window of that length).
func indexByBitSize(t *Table) {
	if len(t.list) == 0 {
		return
	}
	bitSize := t.list[0].bits
	for idx, e := range t.list {
		if e.bits > bitSize {
			t.idxOfBitSize[bitSize] = idx
			bitSize = e.bits
		}
	}
	t.idxOfBitSize[bitSize] = len(t.list)
}

// SingleSymbol returns the table's sole symbol when it was encoded as a
// single-code special case.
func (t *Table) SingleSymbol() (byte, bool) { return t.singleSymbol, t.single }

// Decode reads one symbol from r using t.
func (t *Table) Decode(r *BitReader) (byte, error) {
	if t.single {
		return t.singleSymbol, nil
	}
	if len(t.list) == 0 {
		return 0, ErrUnknownCode
	}

	bits := int(t.list[0].bits)
	code := r.PeekBits(bits)

	for idx := 0; idx < len(t.list); idx = t.idxOfBitSize[bits] {
		for int(t.list[idx].bits) > bits {
			bits++
			code = r.PeekBits(bits)
		}

		// assignCodes gives codes of one length in descending order of
		// list index, so a larger code lies towards the start of the window.
		lo, hi := idx, t.idxOfBitSize[bits]-1
		for lo <= hi {
			mid := (lo + hi) / 2
			switch {
			case code == t.list[mid].code:
				r.Advance(bits)
				return t.list[mid].symbol, nil
			case code > t.list[mid].code:
				hi = mid - 1
			default:
				lo = mid + 1
			}
		}
	}
	return 0, ErrUnknownCode
}
