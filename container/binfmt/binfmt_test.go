/*
NAME
  binfmt_test.go

DESCRIPTION
  binfmt_test.go round-trips a small BIN container through Writer and
  Reader and checks header/error handling on malformed input.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package binfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	units := []AccessUnit{
		{DecodeIndex: 0, PresentationIndex: 0, Opaque: []byte("first")},
		{DecodeIndex: 1, PresentationIndex: 3, Opaque: []byte("second")},
	}
	for _, au := range units {
		if err := w.WriteAccessUnit(au); err != nil {
			t.Fatalf("WriteAccessUnit: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	for i, want := range units {
		block, err := r.ReadBlock()
		if err != nil {
			t.Fatalf("ReadBlock %d: %v", i, err)
		}
		if block.Type != BlockAccessUnit {
			t.Fatalf("block %d: got type %d, want %d", i, block.Type, BlockAccessUnit)
		}
		got, err := DecodeAccessUnit(block)
		if err != nil {
			t.Fatalf("DecodeAccessUnit %d: %v", i, err)
		}
		if got.DecodeIndex != want.DecodeIndex || got.PresentationIndex != want.PresentationIndex {
			t.Fatalf("block %d: got indices %d/%d, want %d/%d", i, got.DecodeIndex, got.PresentationIndex, want.DecodeIndex, want.PresentationIndex)
		}
		if !bytes.Equal(got.Opaque, want.Opaque) {
			t.Fatalf("block %d: got opaque %q, want %q", i, got.Opaque, want.Opaque)
		}
	}
	if _, err := r.ReadBlock(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestNewReaderRejectsBadMagic(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("notlcevc")))
	if err != ErrBadMagic {
		t.Fatalf("got %v, want ErrBadMagic", err)
	}
}

func TestNewReaderRejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	buf.Write([]byte{0, 0, 0, 99})
	_, err := NewReader(&buf)
	if err != ErrUnsupportedVersion {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeAccessUnitRejectsShortPayload(t *testing.T) {
	_, err := DecodeAccessUnit(Block{Type: BlockAccessUnit, Payload: []byte{1, 2, 3}})
	if err != ErrShortAccessUnit {
		t.Fatalf("got %v, want ErrShortAccessUnit", err)
	}
}
