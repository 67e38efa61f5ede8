/*
NAME
  extract.go

DESCRIPTION
  extract.go scans Annex-B or length-prefixed base-codec bitstreams for an
  LCEVC enhancement payload, either carried as SEI user-data or as a
  dedicated NAL type, and copies it out (optionally stripping it from the
  base stream in the process).

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package nal

import "encoding/binary"

// Result is the outcome of a single extraction scan.
type Result struct {
	Count int    // 0 or 1: whether an LCEVC payload was found.
	Out   []byte // the extracted payload, valid only when Count == 1; aliases dst.
}

// unit describes one NAL unit's payload span (after the start code or
// length field, and including the NAL header bytes).
type unit struct {
	start, end int
}

// nextUnit finds the next NAL unit in buf starting the search at from,
// returning the unit and the offset at which to continue searching.
func nextUnit(buf []byte, from int, format Format) (u unit, next int, ok bool) {
	switch format {
	case AnnexB:
		return nextUnitAnnexB(buf, from)
	case LengthPrefix:
		return nextUnitLengthPrefix(buf, from)
	default:
		return unit{}, 0, false
	}
}

// nextUnitAnnexB scans for the next 00 00 01 / 00 00 00 01 start code at or
// after from, and returns the span up to (but not including) the following
// start code or end of buffer.
func nextUnitAnnexB(buf []byte, from int) (unit, int, bool) {
	start, ok := findStartCode(buf, from)
	if !ok {
		return unit{}, 0, false
	}
	end, found := findStartCode(buf, start+3)
	if !found {
		end = len(buf)
	} else {
		// findStartCode returns the offset just past the 0x01; back up over
		// the start code and the leading zeros that belong to the *next*
		// unit.
		end = trimTrailingZeros(buf, start, end)
	}
	return unit{start: start, end: end}, end, true
}

// findStartCode returns the offset of the byte following a 00 00 01 start
// code (2 or 3 leading zero bytes then 0x01), searching from offset from.
func findStartCode(buf []byte, from int) (int, bool) {
	zeros := 0
	for i := from; i < len(buf); i++ {
		switch buf[i] {
		case 0x00:
			if zeros < 2 {
				zeros++
			}
		case 0x01:
			if zeros >= 2 {
				return i + 1, true
			}
			zeros = 0
		default:
			zeros = 0
		}
	}
	return 0, false
}

// trimTrailingZeros backs end up over the zero bytes that are actually the
// prefix of the next start code rather than content of this unit.
func trimTrailingZeros(buf []byte, start, startCodeEnd int) int {
	end := startCodeEnd - 3
	for end > start && buf[end-1] == 0x00 {
		end--
	}
	if end < start {
		end = start
	}
	return end
}

// nextUnitLengthPrefix reads a big-endian 32-bit length field at from and
// returns the span of the NAL unit that follows it.
func nextUnitLengthPrefix(buf []byte, from int) (unit, int, bool) {
	if from+lengthPrefixSize > len(buf) {
		return unit{}, 0, false
	}
	size := int(binary.BigEndian.Uint32(buf[from:]))
	start := from + lengthPrefixSize
	end := start + size
	if size < 0 || end > len(buf) {
		return unit{}, 0, false
	}
	return unit{start: start, end: end}, end, true
}

// unescape copies src to dst collapsing start-code emulation prevention
// sequences (00 00 03 -> 00 00), implemented as a streaming state machine
// rather than a substring search, matching the input-dependent nature of
// the escape.
func unescape(dst, src []byte) []byte {
	zeros := 0
	for _, b := range src {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		dst = append(dst, b)
		if b == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return dst
}

// readSEIVarint reads the SEI payloadType/payloadSize encoding: a run of
// 0xFF bytes each contributing 255, terminated by a final byte that is
// added to the accumulated total.
func readSEIVarint(b []byte, off int) (value, next int, ok bool) {
	for {
		if off >= len(b) {
			return 0, 0, false
		}
		value += int(b[off])
		last := b[off] != 0xff
		off++
		if last {
			return value, off, true
		}
	}
}

// scan walks the NAL units in src looking for the first LCEVC payload,
// calling onMatch with the unit and the offset within it at which the
// payload (post-header, post SEI-type/size fields) begins. onMatch returns
// the payload's byte length within the unit.
func scan(src []byte, format Format, codec Codec, onMatch func(u unit, payloadOff int) (payloadLen int)) (u unit, payloadOff, payloadLen int, found bool) {
	hdrSize := headerSize(codec)
	off := 0
	for {
		nu, next, ok := nextUnit(src, off, format)
		if !ok {
			return unit{}, 0, 0, false
		}
		off = next
		if nu.end-nu.start < hdrSize {
			continue
		}
		hdr := src[nu.start : nu.start+hdrSize]
		nalType := nalUnitType(codec, hdr)

		if isEnhancement(codec, nalType) {
			pLen := onMatch(nu, nu.start+hdrSize)
			if pLen >= 0 {
				return nu, nu.start + hdrSize, pLen, true
			}
			continue
		}

		if !isSEI(codec, nalType) {
			continue
		}

		p := nu.start + hdrSize
		for p < nu.end {
			payloadType, next1, ok1 := readSEIVarint(src, p)
			if !ok1 {
				break
			}
			payloadSize, next2, ok2 := readSEIVarint(src, next1)
			if !ok2 {
				break
			}
			payloadStart := next2
			payloadEnd := payloadStart + payloadSize
			if payloadEnd > nu.end {
				break
			}
			if payloadType == seiPayloadTypeUserDataITUT35 && payloadSize >= len(ituCode) &&
				bytesEqual(src[payloadStart:payloadStart+len(ituCode)], ituCode[:]) {
				itu := payloadStart + len(ituCode)
				pLen := onMatch(unit{start: itu, end: payloadEnd}, itu)
				if pLen >= 0 {
					return unit{start: itu, end: payloadEnd}, itu, pLen, true
				}
			}
			p = payloadEnd
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Extract copies the first LCEVC enhancement payload found in src into
// dst, without modifying src. codec and format must not be Unknown /
// unspecified. It returns ErrOverflow if dst is too small. Structurally
// inconsistent input (a truncated length field, a unit running past the
// end of src) ends the scan and is reported as Count == 0; ErrMalformed
// is not returned.
func Extract(src []byte, format Format, codec Codec, dst []byte) (Result, error) {
	if codec == Unknown {
		return Result{}, ErrUnknownCodec
	}
	var overflow bool
	u, payloadOff, _, found := scan(src, format, codec, func(u unit, payloadOff int) int {
		n := u.end - payloadOff
		if n > cap(dst) {
			overflow = true
			return -1
		}
		return n
	})
	if overflow {
		return Result{}, ErrOverflow
	}
	if !found {
		return Result{Count: 0}, nil
	}
	return finishExtract(src, u, payloadOff, dst)
}

func finishExtract(src []byte, u unit, payloadOff int, dst []byte) (Result, error) {
	dst = dst[:0]
	if payloadOff != u.start {
		// Dedicated NAL type: the whole unit, header included, is copied
		// out behind an Annex-B start code.
		if len(annexBStartCode)+u.end-u.start > cap(dst) {
			return Result{}, ErrOverflow
		}
		dst = append(dst, annexBStartCode...)
		payloadOff = u.start
	}
	dst = unescape(dst, src[payloadOff:u.end])
	return Result{Count: 1, Out: dst}, nil
}

// ExtractAndRemove behaves like Extract but also excises the matched NAL
// unit (or SEI message) from src, returning the resulting shortened slice.
// When the removed span sits at the front of src the tail is left in
// place and a reslice is returned (no copy); otherwise the tail is moved
// down over the gap.
func ExtractAndRemove(src []byte, format Format, codec Codec, dst []byte) (Result, []byte, error) {
	if codec == Unknown {
		return Result{}, src, ErrUnknownCodec
	}
	var overflow bool
	matchedUnit, payloadOff, _, found := scan(src, format, codec, func(u unit, payloadOff int) int {
		n := u.end - payloadOff
		if n > cap(dst) {
			overflow = true
			return -1
		}
		return n
	})
	if overflow {
		return Result{}, src, ErrOverflow
	}
	if !found {
		return Result{Count: 0}, src, nil
	}
	res, err := finishExtract(src, matchedUnit, payloadOff, dst)
	if err != nil {
		return res, src, err
	}
	remaining := removeSpan(src, stripSpan(format, matchedUnit))
	return res, remaining, nil
}

// stripSpan widens the matched payload span to cover the framing bytes
// (start code or length prefix) that belong to it, so removal doesn't
// leave an orphaned header behind.
func stripSpan(format Format, u unit) unit {
	switch format {
	case LengthPrefix:
		return unit{start: u.start - lengthPrefixSize, end: u.end}
	default:
		return u
	}
}

// removeSpan excises [u.start,u.end) from buf.
func removeSpan(buf []byte, u unit) []byte {
	if u.start <= 0 {
		return buf[u.end:]
	}
	n := copy(buf[u.start:], buf[u.end:])
	return buf[:u.start+n]
}

// ExtractIfKeyframe extracts only if the access unit contains a
// codec-specific IDR/CRA/GDR NAL unit; otherwise it returns Count == 0
// without scanning for LCEVC payloads.
func ExtractIfKeyframe(src []byte, format Format, codec Codec, dst []byte) (Result, error) {
	if !SearchForKeyframe(src, format, codec) {
		return Result{Count: 0}, nil
	}
	return Extract(src, format, codec, dst)
}

// ExtractAndRemoveIfKeyframe is the AndRemove counterpart of
// ExtractIfKeyframe.
func ExtractAndRemoveIfKeyframe(src []byte, format Format, codec Codec, dst []byte) (Result, []byte, error) {
	if !SearchForKeyframe(src, format, codec) {
		return Result{Count: 0}, src, nil
	}
	return ExtractAndRemove(src, format, codec, dst)
}

// SearchForKeyframe reports whether the access unit in src contains a
// codec-specific keyframe NAL unit (IDR for H.264, IDR/CRA for H.265,
// IDR/CRA/GDR for H.266).
func SearchForKeyframe(src []byte, format Format, codec Codec) bool {
	hdrSize := headerSize(codec)
	off := 0
	for {
		u, next, ok := nextUnit(src, off, format)
		if !ok {
			return false
		}
		off = next
		if u.end-u.start < hdrSize {
			continue
		}
		hdr := src[u.start : u.start+hdrSize]
		if isKeyframe(codec, nalUnitType(codec, hdr)) {
			return true
		}
	}
}
