/*
NAME
  decoder_test.go

DESCRIPTION
  decoder_test.go exercises the chunk-level Decoder: disabled/rle-only
  short-circuits, the default three-stream decode through the rle-only
  path, temporal context tracking through both the rle-only and
  Huffman-backed getters, and both size-decoder branches.

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

import "testing"

func TestDecoderDecodeDisabledReturnsNoData(t *testing.T) {
	d, err := NewDecoder(nil, TypeDefault, false, false, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if _, _, err := d.Decode(); err != ErrNoData {
		t.Fatalf("got %v, want ErrNoData", err)
	}
}

func TestDecoderDecodeWrongTypeRejected(t *testing.T) {
	d, err := NewDecoder(nil, TypeDefault, false, false, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if _, _, err := d.DecodeTemporal(); err != ErrWrongType {
		t.Fatalf("got %v, want ErrWrongType", err)
	}
	if _, err := d.DecodeSize(); err != ErrWrongType {
		t.Fatalf("got %v, want ErrWrongType", err)
	}
}

func TestDecoderDecodeDefaultRLEOnly(t *testing.T) {
	rleData := []byte{0x10}
	d, err := NewDecoder(rleData, TypeDefault, true, true, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	value, runLength, err := d.Decode()
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

	if _, _, err := d.Decode(); err != ErrNoData {
		t.Fatalf("got %v, want ErrNoData once the rle-only data is exhausted", err)
	}
}

func TestDecoderDecodeTemporalRLEOnly(t *testing.T) {
	// First byte seeds the context (bit 0); second byte's top bit is
	// clear so the run-length loop reads exactly one more byte.
	d, err := NewDecoder([]byte{0x01, 0x05}, TypeTemporal, true, true, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	value, runLength, err := d.DecodeTemporal()
	if err != nil {
		t.Fatalf("DecodeTemporal: %v", err)
	}
	if value != 1 {
		t.Fatalf("got value %d, want 1", value)
	}
	if runLength != 5 {
		t.Fatalf("got runLength %d, want 5", runLength)
	}
}

func TestDecoderDecodeTemporalHuffman(t *testing.T) {
	// huff[0] is never selected in this scenario; huff[1] is a
	// single-symbol table so the run-length read consumes zero stream
	// bits and always returns 0x05 (top bit clear, ending the loop
	// after one iteration).
	bits := singleSymbolTableBits(0xAA) + singleSymbolTableBits(0x05) + "00000001"
	chunk := packBits(bits)

	d, err := NewDecoder(chunk, TypeTemporal, true, false, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	value, runLength, err := d.DecodeTemporal()
	if err != nil {
		t.Fatalf("DecodeTemporal: %v", err)
	}
	if value != 1 {
		t.Fatalf("got value %d, want 1", value)
	}
	if runLength != 5 {
		t.Fatalf("got runLength %d, want 5", runLength)
	}
}

func TestDecoderDecodeSizeUnsignedNoMSB(t *testing.T) {
	bits := singleSymbolTableBits(0x10) + singleSymbolTableBits(0x00)
	chunk := packBits(bits)

	d, err := NewDecoder(chunk, TypeSizeUnsigned, true, false, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	got, err := d.DecodeSize()
	if err != nil {
		t.Fatalf("DecodeSize: %v", err)
	}
	if got != 8 {
		t.Fatalf("got %d, want 8", got)
	}
}

func TestDecoderDecodeSizeUnsignedWithMSB(t *testing.T) {
	lsb, msb := byte(0x03), byte(0x02)
	bits := singleSymbolTableBits(lsb) + singleSymbolTableBits(msb)
	chunk := packBits(bits)

	d, err := NewDecoder(chunk, TypeSizeUnsigned, true, false, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	got, err := d.DecodeSize()
	if err != nil {
		t.Fatalf("DecodeSize: %v", err)
	}
	want := int16(uint16(msb)<<7 | uint16(lsb>>1))
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestDecoderDecodeSizeSignedNoMSBSignExtends(t *testing.T) {
	bits := singleSymbolTableBits(0x80) + singleSymbolTableBits(0x00)
	chunk := packBits(bits)

	d, err := NewDecoder(chunk, TypeSizeSigned, true, false, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	got, err := d.DecodeSize()
	if err != nil {
		t.Fatalf("DecodeSize: %v", err)
	}
	if got != -64 {
		t.Fatalf("got %d, want -64", got)
	}
}

func TestDecoderConsumedBytesRLEOnly(t *testing.T) {
	d, err := NewDecoder([]byte{0x10, 0x00}, TypeDefault, true, true, BitstreamVersion2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if _, _, err := d.Decode(); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := d.ConsumedBytes(); got != 1 {
		t.Fatalf("got ConsumedBytes %d, want 1", got)
	}
}
