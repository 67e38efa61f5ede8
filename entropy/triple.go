/*
NAME
  triple.go

DESCRIPTION
  triple.go composes three canonical Huffman streams (least-significant
  bits, most-significant bits, and run-length) into a single decoded
  residual value plus an accompanying run of zero-value coefficients, as
  used by the per-coefficient entropy coding of the enhancement layer.

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

// Sentinel bits within an LSB/MSB/RL symbol signal that decoding must
// continue into a following stream: bit 7 marks "more run-length
// follows", bit 0 marks "an MSB extension follows" — the same bit 0
// convention the size decoder uses for its own "MSB present" flag.
const (
	markerRL  = 0x80
	markerMSB = 0x01
)

func symbolChainsRL(sym byte) bool  { return sym&markerRL != 0 }
func symbolChainsMSB(sym byte) bool { return sym&markerMSB != 0 }

// TripleDecoder decodes a stream of (value, runLength) pairs using
// three independently-coded Huffman tables.
type TripleDecoder struct {
	lsb, msb, rl *Table
}

// NewTripleDecoder builds a decoder from tables read for the LSB, MSB
// and RL streams, in that order, from r, using bitstreamVersion to
// pick each table's code-length field width.
func NewTripleDecoder(r *BitReader, bitstreamVersion uint8) (*TripleDecoder, error) {
	lsb, err := ReadTable(r, bitstreamVersion)
	if err != nil {
		return nil, err
	}
	msb, err := ReadTable(r, bitstreamVersion)
	if err != nil {
		return nil, err
	}
	rl, err := ReadTable(r, bitstreamVersion)
	if err != nil {
		return nil, err
	}
	return &TripleDecoder{lsb: lsb, msb: msb, rl: rl}, nil
}

// Decode reads the next (value, runLength) pair from r.
func (d *TripleDecoder) Decode(r *BitReader) (value int16, runLength int32, err error) {
	lsbSym, err := d.lsb.Decode(r)
	if err != nil {
		return 0, 0, err
	}

	seekRL := symbolChainsRL(lsbSym)
	value = int16(lsbSym)

	if symbolChainsMSB(lsbSym) {
		msbSym, err := d.msb.Decode(r)
		if err != nil {
			return 0, 0, err
		}
		seekRL = symbolChainsRL(msbSym)
		value &^= 0x01
		exp := int32(msbSym&0x7f)<<8 | int32(value)
		value = int16(exp - 0x4000)
	} else {
		value = int16((value & 0x7e) - 0x40)
	}
	value >>= 1

	var zeros int32
	for seekRL {
		sym, err := d.rl.Decode(r)
		if err != nil {
			return 0, 0, err
		}
		zeros = (zeros << 7) | int32(sym&0x7f)
		seekRL = symbolChainsRL(sym)
	}

	return value, zeros, nil
}
