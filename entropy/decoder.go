/*
NAME
  decoder.go

DESCRIPTION
  decoder.go wires bitreader.go, huffman.go and triple.go together into
  the chunk-level entropy decoder: one type selects whether a chunk's
  payload is read as the three-stream LSB/MSB/RL coefficient layout,
  the single-bit temporal run-length layout, or one of the two size
  layouts, and whether entropy coding is enabled at all or the chunk
  fell back to raw RLE bytes.

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

import "github.com/pkg/errors"

// Type selects which sub-stream layout a Decoder parses.
type Type int

const (
	// TypeDefault is the three-stream LSB/MSB/RL coefficient layout.
	TypeDefault Type = iota
	// TypeTemporal is the single-bit-per-TU temporal layout.
	TypeTemporal
	// TypeSizeUnsigned is the two-stream unsigned length layout.
	TypeSizeUnsigned
	// TypeSizeSigned is the two-stream signed length layout.
	TypeSizeSigned
)

// ErrNoData is returned, not as a failure but as a normal end-of-chunk
// signal, when entropy coding is disabled for a chunk or a read runs
// past the raw RLE data supplied at construction. Callers treat it the
// way they treat io.EOF: the decode produced no value this call.
var ErrNoData = errors.New("entropy: no data")

// ErrWrongType is returned when a Decode method is called on a
// Decoder constructed with an incompatible Type.
var ErrWrongType = errors.New("entropy: method does not match decoder type")

// nextTemporalContext maps (current context, symbol's continuation
// bit) to the next context: a fixed two-state transition table.
var nextTemporalContext = [2][2]uint8{
	{1, 0},
	{0, 1},
}

// Decoder decodes one chunk's entropy-coded sub-streams. Construct one
// per chunk with NewDecoder; it is not safe for concurrent use.
type Decoder struct {
	typ     Type
	enabled bool
	rleOnly bool
	rleData []byte

	stream *BitReader
	triple *TripleDecoder // set when typ == TypeDefault and !rleOnly
	huff   [2]*Table       // set when typ != TypeDefault and !rleOnly

	rawOffset int
	currHuff  uint8
}

// NewDecoder initialises a Decoder for one chunk. chunkData is the
// chunk payload after any container-level header has been stripped;
// entropyEnabled and rleOnly come from the chunk's descriptor flags.
// bitstreamVersion selects the Huffman code-length table row for any
// tables read from chunkData.
func NewDecoder(chunkData []byte, typ Type, entropyEnabled, rleOnly bool, bitstreamVersion uint8) (*Decoder, error) {
	d := &Decoder{typ: typ, enabled: entropyEnabled}
	if !entropyEnabled {
		return d, nil
	}
	if rleOnly {
		d.rleOnly = true
		d.rleData = chunkData
		return d, nil
	}
	if len(chunkData) == 0 {
		return d, nil
	}

	d.stream = NewBitReader(chunkData)
	if typ == TypeDefault {
		triple, err := NewTripleDecoder(d.stream, bitstreamVersion)
		if err != nil {
			return nil, err
		}
		d.triple = triple
		return d, nil
	}

	for i := range d.huff {
		table, err := ReadTable(d.stream, bitstreamVersion)
		if err != nil {
			return nil, err
		}
		d.huff[i] = table
	}
	return d, nil
}

// nextRLESymbol reads the next raw byte from the chunk's RLE-only
// data, reporting ErrNoData once it is exhausted.
func (d *Decoder) nextRLESymbol() (byte, error) {
	if d.rawOffset >= len(d.rleData) {
		return 0, ErrNoData
	}
	sym := d.rleData[d.rawOffset]
	d.rawOffset++
	return sym, nil
}

// toggleTemporalState updates the decoder's current Huffman context
// for the temporal stream: the very first symbol read sets the
// initial state directly, every symbol after that transitions via
// nextTemporalContext keyed by the symbol's top bit.
func (d *Decoder) toggleTemporalState(symbol byte) {
	if d.rawOffset == 1 {
		d.currHuff = symbol & 0x01
	} else {
		d.currHuff = nextTemporalContext[d.currHuff][(symbol&0x80)>>7]
	}
}

func (d *Decoder) nextTemporalRLESymbol() (byte, error) {
	sym, err := d.nextRLESymbol()
	if err != nil {
		return 0, err
	}
	d.toggleTemporalState(sym)
	return sym, nil
}

func (d *Decoder) nextTemporalHuffmanSymbol() (byte, error) {
	var symbol byte
	if d.rawOffset == 0 {
		bits, err := d.stream.ReadBits(8)
		if err != nil {
			return 0, ErrNoData
		}
		symbol = byte(bits)
	} else {
		sym, err := d.huff[d.currHuff].Decode(d.stream)
		if err != nil {
			return 0, ErrNoData
		}
		symbol = sym
	}
	d.rawOffset++
	d.toggleTemporalState(symbol)
	return symbol, nil
}

// decodeRLESequence reads an LSB symbol (and, if it chains, an MSB
// symbol) via next to produce a signed coefficient value, then keeps
// reading 7-bit run-length chunks via next while the last symbol read
// chains into another one.
func decodeRLESequence(next func() (byte, error)) (value int16, runLength int32, err error) {
	symbol, err := next()
	if err != nil {
		return 0, 0, err
	}

	if symbolChainsMSB(symbol) {
		lo := int32(symbol &^ markerMSB)
		msb, err := next()
		if err != nil {
			return 0, 0, err
		}
		exp := int32(msb&0x7f)<<8 | lo
		value = int16(exp - 0x4000)
		symbol = msb
	} else {
		value = int16((int32(symbol) & 0x7e) - 0x40)
	}
	value >>= 1

	var zeros int32
	for symbolChainsRL(symbol) {
		symbol, err = next()
		if err != nil {
			return 0, 0, err
		}
		zeros = (zeros << 7) | int32(symbol&0x7f)
	}
	return value, zeros, nil
}

// decodeTemporalSequence reads, via next, the raw seed symbol (on the
// very first call) or the current symbol, then a variable-length
// 7-bit run count terminated by a clear top bit.
func decodeTemporalSequence(d *Decoder, next func() (byte, error)) (value uint8, runLength int32, err error) {
	value = d.currHuff
	if d.rawOffset == 0 {
		symbol, err := next()
		if err != nil {
			return 0, 0, err
		}
		value = symbol & 0x01
	}

	var count int32
	for {
		symbol, err := next()
		if err != nil {
			return 0, 0, err
		}
		count = count<<7 | int32(symbol&0x7f)
		if symbol&0x80 == 0 {
			break
		}
	}
	return value, count, nil
}

// Decode reads the next (value, runLength) pair from a TypeDefault
// decoder.
func (d *Decoder) Decode() (value int16, runLength int32, err error) {
	if d.typ != TypeDefault {
		return 0, 0, ErrWrongType
	}
	if !d.enabled {
		return 0, 0, ErrNoData
	}
	if d.rleOnly {
		return decodeRLESequence(d.nextRLESymbol)
	}
	return d.triple.Decode(d.stream)
}

// DecodeTemporal reads the next (context value, run length) pair from
// a TypeTemporal decoder.
func (d *Decoder) DecodeTemporal() (value uint8, runLength int32, err error) {
	if d.typ != TypeTemporal {
		return 0, 0, ErrWrongType
	}
	if !d.enabled {
		return 0, 0, ErrNoData
	}
	next := d.nextTemporalRLESymbol
	if !d.rleOnly {
		next = d.nextTemporalHuffmanSymbol
	}
	return decodeTemporalSequence(d, next)
}

// DecodeSize reads the next length value from a TypeSizeUnsigned or
// TypeSizeSigned decoder.
func (d *Decoder) DecodeSize() (int16, error) {
	if d.typ != TypeSizeUnsigned && d.typ != TypeSizeSigned {
		return 0, ErrWrongType
	}
	if !d.enabled {
		return 0, ErrNoData
	}
	if d.rleOnly {
		return 0, errors.New("entropy: DecodeSize does not support rle-only chunks")
	}

	lsb, err := d.huff[0].Decode(d.stream)
	if err != nil {
		return 0, err
	}

	if lsb&0x01 != 0 {
		msb, err := d.huff[1].Decode(d.stream)
		if err != nil {
			return 0, err
		}
		val := uint16(msb)<<7 | uint16(lsb>>1)
		if d.typ == TypeSizeSigned {
			return int16((val&0x4000)<<1 | val), nil
		}
		return int16(val), nil
	}

	val := lsb >> 1
	if d.typ == TypeSizeSigned {
		return int16(int8((val&0x40)<<1 | val)), nil
	}
	return int16(val), nil
}

// ConsumedBytes returns the number of chunk bytes read so far, rounded
// up to the next whole byte for a Huffman-backed decoder.
func (d *Decoder) ConsumedBytes() uint32 {
	if d.stream == nil {
		return uint32(d.rawOffset)
	}
	return uint32((d.stream.BitsRead() + 7) / 8)
}
