/*
NAME
  demux.go

DESCRIPTION
  demux.go implements a thin, streaming MPEG-TS demultiplexer that
  reassembles the PES-carried access units of one elementary stream PID
  and hands each complete access unit's payload to the NAL extractor.
  It reuses container/mts's own packet-field accessors (PID, Payload)
  the same way container/mts.Extract does, adapted to a
  single-packet-at-a-time io.Reader loop instead of a whole-clip []byte
  pass, and parses each access unit's PES header with the same
  gots/pes package Extract does.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package tsenhancement demultiplexes an MPEG-TS stream carrying a
// base+enhancement access unit pair, feeding each reassembled access
// unit to the caller for NAL extraction.
package tsenhancement

import (
	"io"

	"github.com/Comcast/gots/pes"
	"github.com/pkg/errors"

	"github.com/ausocean/lcevc/container/mts"
	"github.com/ausocean/utils/logging"
)

// ErrShortRead is returned when the input ends mid-packet.
var ErrShortRead = errors.New("tsenhancement: short read")

// payloadUnitStartIndicator reports the packet's PUSI flag, per the bit
// layout mts.Packet documents and mts.GetPTS checks inline.
func payloadUnitStartIndicator(pkt []byte) bool {
	return pkt[1]&0x40 != 0
}

// AccessUnit is one reassembled elementary-stream access unit, still
// carrying any LCEVC enhancement payload the base codec's NAL
// structure embeds.
type AccessUnit struct {
	PID  uint16
	PTS  uint64
	Data []byte
}

// Demuxer reassembles PES packets for a single PID out of a raw
// MPEG-TS byte stream.
type Demuxer struct {
	r      io.Reader
	pid    uint16
	log    logging.Logger
	buf    []byte
	pesPTS uint64
}

// NewDemuxer returns a Demuxer that reassembles access units carried on
// pid, read from r.
func NewDemuxer(r io.Reader, pid uint16, log logging.Logger) *Demuxer {
	return &Demuxer{r: r, pid: pid, log: log}
}

// Next reads MPEG-TS packets until one complete access unit for the
// demuxer's PID has been reassembled, or returns io.EOF once the
// stream is exhausted with no partial access unit pending.
func (d *Demuxer) Next() (AccessUnit, error) {
	pkt := make([]byte, mts.PacketSize)
	for {
		if _, err := io.ReadFull(d.r, pkt); err != nil {
			if err == io.ErrUnexpectedEOF {
				// The stream ended mid-packet: whatever access unit was
				// accumulating is incomplete and not worth returning.
				return AccessUnit{}, ErrShortRead
			}
			if err == io.EOF {
				if len(d.buf) > 0 {
					au := AccessUnit{PID: d.pid, PTS: d.pesPTS, Data: d.buf}
					d.buf = nil
					return au, nil
				}
				return AccessUnit{}, io.EOF
			}
			return AccessUnit{}, errors.Wrap(err, "tsenhancement: read TS packet")
		}

		gotPID, err := mts.PID(pkt)
		if err != nil {
			return AccessUnit{}, errors.Wrap(err, "tsenhancement: packet PID")
		}
		if gotPID != d.pid {
			continue
		}

		payload, err := mts.Payload(pkt)
		if err != nil {
			return AccessUnit{}, errors.Wrap(err, "tsenhancement: packet payload")
		}

		if payloadUnitStartIndicator(pkt) {
			var flushed AccessUnit
			haveFlushed := len(d.buf) > 0
			if haveFlushed {
				flushed = AccessUnit{PID: d.pid, PTS: d.pesPTS, Data: d.buf}
			}

			header, err := pes.NewPESHeader(payload)
			if err != nil {
				return AccessUnit{}, errors.Wrap(err, "tsenhancement: parse PES header")
			}
			d.pesPTS = header.PTS()
			d.buf = append([]byte(nil), header.Data()...)
			d.log.Debug("tsenhancement: new access unit", "pid", d.pid, "pts", d.pesPTS)

			if haveFlushed {
				return flushed, nil
			}
			continue
		}

		d.buf = append(d.buf, payload...)
	}
}
