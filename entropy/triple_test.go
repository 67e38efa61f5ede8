/*
NAME
  triple_test.go

DESCRIPTION
  triple_test.go checks the LSB/MSB/run-length composition arithmetic
  using single-symbol tables so the expected output can be computed by
  hand.

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
	"fmt"
	"testing"
)

func singleSymbolTableBits(symbol byte) string {
	return "00000" + "00000" + fmt.Sprintf("%08b", symbol)
}

func TestTripleDecodeNoChaining(t *testing.T) {
	// lsb symbol 0x10 has neither the RL nor MSB chain bit set, so the
	// whole value comes from the LSB stream alone.
	bits := singleSymbolTableBits(0x10) + singleSymbolTableBits(0) + singleSymbolTableBits(0)
	r := NewBitReader(packBits(bits))

	dec, err := NewTripleDecoder(r, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewTripleDecoder: %v", err)
	}

	value, runLength, err := dec.Decode(r)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantValue := int16(((int16(0x10) & 0x7e) - 0x40) >> 1)
	if value != wantValue {
		t.Fatalf("got value %d, want %d", value, wantValue)
	}
	if runLength != 0 {
		t.Fatalf("got runLength %d, want 0", runLength)
	}
}

func TestTripleDecodeRunLengthChain(t *testing.T) {
	// lsb symbol markerRL|0x02 chains into a single RL symbol that does
	// not itself chain further.
	lsbSym := byte(markerRL | 0x02)
	rlSym := byte(0x05)
	bits := singleSymbolTableBits(lsbSym) + singleSymbolTableBits(0) + singleSymbolTableBits(rlSym)
	r := NewBitReader(packBits(bits))

	dec, err := NewTripleDecoder(r, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewTripleDecoder: %v", err)
	}

	_, runLength, err := dec.Decode(r)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if runLength != int32(rlSym&0x7f) {
		t.Fatalf("got runLength %d, want %d", runLength, rlSym&0x7f)
	}
}

func TestTripleDecodeMSBChain(t *testing.T) {
	// lsb symbol markerMSB (bit 0 set) chains into a single MSB symbol
	// that does not itself chain into RL.
	lsbSym := byte(markerMSB | 0x10)
	msbSym := byte(0x05)
	bits := singleSymbolTableBits(lsbSym) + singleSymbolTableBits(msbSym) + singleSymbolTableBits(0)
	r := NewBitReader(packBits(bits))

	dec, err := NewTripleDecoder(r, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewTripleDecoder: %v", err)
	}

	value, runLength, err := dec.Decode(r)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	lo := int32(lsbSym &^ 0x01)
	exp := int32(msbSym&0x7f)<<8 | lo
	wantValue := int16(int32(exp-0x4000)) >> 1
	if value != wantValue {
		t.Fatalf("got value %d, want %d", value, wantValue)
	}
	if runLength != 0 {
		t.Fatalf("got runLength %d, want 0", runLength)
	}
}
