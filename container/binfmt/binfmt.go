/*
NAME
  binfmt.go

DESCRIPTION
  binfmt.go reads and writes the BIN container format: a magic-prefixed
  sequence of typed, length-prefixed blocks used to archive extracted
  enhancement access units alongside their decode/presentation indices.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package binfmt reads and writes the BIN container: a simple
// concatenated sequence of typed blocks used to store extracted LCEVC
// access units on disk.
package binfmt

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic is the eight-byte file signature every BIN container starts
// with.
const Magic = "lcevcbin"

// Version is the only container version this package writes.
const Version uint32 = 1

// BlockAccessUnit blocks carry a decode/presentation index pair
// alongside opaque payload bytes.
const BlockAccessUnit uint16 = 0

// ErrBadMagic is returned when a stream does not begin with Magic.
var ErrBadMagic = errors.New("binfmt: bad magic")

// ErrUnsupportedVersion is returned for a container version this
// package does not understand.
var ErrUnsupportedVersion = errors.New("binfmt: unsupported version")

// Block is one typed, length-delimited record in a BIN container.
type Block struct {
	Type    uint16
	Payload []byte
}

// AccessUnit is the decoded payload of a BlockAccessUnit block.
type AccessUnit struct {
	DecodeIndex       int64
	PresentationIndex int64
	Opaque            []byte
}

// Writer appends blocks to a BIN container, writing the header on the
// first call.
type Writer struct {
	w           *bufio.Writer
	wroteHeader bool
}

// NewWriter wraps w for writing a new BIN container.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (bw *Writer) writeHeader() error {
	if bw.wroteHeader {
		return nil
	}
	if _, err := bw.w.WriteString(Magic); err != nil {
		return errors.Wrap(err, "binfmt: write magic")
	}
	if err := binary.Write(bw.w, binary.BigEndian, Version); err != nil {
		return errors.Wrap(err, "binfmt: write version")
	}
	bw.wroteHeader = true
	return nil
}

// WriteBlock appends one raw block.
func (bw *Writer) WriteBlock(blockType uint16, payload []byte) error {
	if err := bw.writeHeader(); err != nil {
		return err
	}
	if err := binary.Write(bw.w, binary.BigEndian, blockType); err != nil {
		return errors.Wrap(err, "binfmt: write block type")
	}
	if err := binary.Write(bw.w, binary.BigEndian, uint32(len(payload))); err != nil {
		return errors.Wrap(err, "binfmt: write block size")
	}
	if _, err := bw.w.Write(payload); err != nil {
		return errors.Wrap(err, "binfmt: write block payload")
	}
	return nil
}

// WriteAccessUnit appends au as a BlockAccessUnit block.
func (bw *Writer) WriteAccessUnit(au AccessUnit) error {
	payload := make([]byte, 16+len(au.Opaque))
	binary.BigEndian.PutUint64(payload[0:8], uint64(au.DecodeIndex))
	binary.BigEndian.PutUint64(payload[8:16], uint64(au.PresentationIndex))
	copy(payload[16:], au.Opaque)
	return bw.WriteBlock(BlockAccessUnit, payload)
}

// Flush flushes any buffered output, writing an empty-container header
// if no blocks were ever appended.
func (bw *Writer) Flush() error {
	if err := bw.writeHeader(); err != nil {
		return err
	}
	return bw.w.Flush()
}

// Reader reads blocks sequentially from a BIN container.
type Reader struct {
	r *bufio.Reader
}

// NewReader validates the container header and returns a Reader
// positioned at the first block.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, errors.Wrap(err, "binfmt: read magic")
	}
	if string(magic) != Magic {
		return nil, ErrBadMagic
	}
	var version uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return nil, errors.Wrap(err, "binfmt: read version")
	}
	if version != Version {
		return nil, ErrUnsupportedVersion
	}
	return &Reader{r: br}, nil
}

// ReadBlock returns the next block, or io.EOF when the container is
// exhausted.
func (br *Reader) ReadBlock() (Block, error) {
	var blockType uint16
	if err := binary.Read(br.r, binary.BigEndian, &blockType); err != nil {
		if err == io.EOF {
			return Block{}, io.EOF
		}
		return Block{}, errors.Wrap(err, "binfmt: read block type")
	}
	var size uint32
	if err := binary.Read(br.r, binary.BigEndian, &size); err != nil {
		return Block{}, errors.Wrap(err, "binfmt: read block size")
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(br.r, payload); err != nil {
		return Block{}, errors.Wrap(err, "binfmt: read block payload")
	}
	return Block{Type: blockType, Payload: payload}, nil
}

// ErrShortAccessUnit is returned when a BlockAccessUnit's payload is
// too small to hold its index pair.
var ErrShortAccessUnit = errors.New("binfmt: access unit block too short")

// DecodeAccessUnit parses an AccessUnit out of a BlockAccessUnit
// block's payload.
func DecodeAccessUnit(b Block) (AccessUnit, error) {
	if len(b.Payload) < 16 {
		return AccessUnit{}, ErrShortAccessUnit
	}
	return AccessUnit{
		DecodeIndex:       int64(binary.BigEndian.Uint64(b.Payload[0:8])),
		PresentationIndex: int64(binary.BigEndian.Uint64(b.Payload[8:16])),
		Opaque:            b.Payload[16:],
	}, nil
}
