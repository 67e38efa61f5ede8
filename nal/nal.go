/*
NAME
  nal.go

DESCRIPTION
  nal.go defines the NAL unit types, formats and codec identifiers used
  by the enhancement extractor.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package nal locates and extracts LCEVC enhancement payloads that are
// carried inside base-codec NAL units, either as SEI user-data or as a
// dedicated NAL type, and optionally strips them from the base stream.
package nal

import "github.com/pkg/errors"

// Format is the NAL unit delimiting convention used by the input stream.
type Format int

const (
	// AnnexB delimits NAL units with 00 00 01 / 00 00 00 01 start codes.
	AnnexB Format = iota
	// LengthPrefix delimits NAL units with a big-endian 32-bit length.
	LengthPrefix
)

// Codec identifies the host codec whose NAL unit headers we must parse.
type Codec int

const (
	Unknown Codec = iota
	H264
	H265
	H266
)

// nal unit type numbers, one table per codec, sufficient to classify SEI,
// dedicated enhancement payloads, and IDR/CRA keyframe access units.
const (
	h264TypeSEI           = 6
	h264TypeIDR           = 5
	h264TypeEnhancement   = 30 // unspecified range, used to carry LCEVC directly.
	h265TypeSEIPrefix     = 39
	h265TypeSEISuffix     = 40
	h265TypeIDRWRADL      = 19
	h265TypeIDRNLP        = 20
	h265TypeCRA           = 21
	h265TypeEnhancement   = 62 // unspecified range.
	h266TypeSEIPrefix     = 23
	h266TypeSEISuffix     = 24
	h266TypeIDRWRADL      = 7
	h266TypeIDRNLP        = 8
	h266TypeCRA           = 9
	h266TypeGDR           = 10
	h266TypeEnhancement   = 30 // unspecified range.
	seiPayloadTypeUserDataITUT35 = 0x04
)

// ituCode identifies an LCEVC payload inside a T.35 user-data SEI message.
var ituCode = [4]byte{0xb4, 0x00, 0x50, 0x00}

const lengthPrefixSize = 4

// annexBStartCode is the canonical long start code rewritten onto extracted
// dedicated-NAL-type payloads so that downstream consumers always see the
// same delimiter, regardless of the input's own convention.
var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

var (
	// ErrMalformed describes inconsistent input (truncated length field,
	// a NAL unit that runs past the end of the buffer). The extract
	// functions do not return it; they report such input as Count == 0.
	ErrMalformed = errors.New("nal: malformed input")
	// ErrOverflow is returned when outBuf is too small to hold the
	// extracted payload.
	ErrOverflow = errors.New("nal: output buffer overflow")
	// ErrUnknownCodec is returned for codecType == Unknown.
	ErrUnknownCodec = errors.New("nal: unknown codec type")
)

func headerSize(codec Codec) int {
	switch codec {
	case H264:
		return 1
	case H265, H266:
		return 2
	default:
		return 0
	}
}

// nalUnitType extracts the type field from a NAL unit's header bytes. hdr
// must be at least headerSize(codec) bytes long.
func nalUnitType(codec Codec, hdr []byte) int {
	switch codec {
	case H264:
		return int(hdr[0] & 0x1f)
	case H265:
		return int((hdr[0] >> 1) & 0x3f)
	case H266:
		return int((hdr[1] >> 3) & 0x1f)
	default:
		return -1
	}
}

func isSEI(codec Codec, nalType int) bool {
	switch codec {
	case H264:
		return nalType == h264TypeSEI
	case H265:
		return nalType == h265TypeSEIPrefix || nalType == h265TypeSEISuffix
	case H266:
		return nalType == h266TypeSEIPrefix || nalType == h266TypeSEISuffix
	default:
		return false
	}
}

func isEnhancement(codec Codec, nalType int) bool {
	switch codec {
	case H264:
		return nalType == h264TypeEnhancement
	case H265:
		return nalType == h265TypeEnhancement
	case H266:
		return nalType == h266TypeEnhancement
	default:
		return false
	}
}

func isKeyframe(codec Codec, nalType int) bool {
	switch codec {
	case H264:
		return nalType == h264TypeIDR
	case H265:
		return nalType == h265TypeIDRWRADL || nalType == h265TypeIDRNLP || nalType == h265TypeCRA
	case H266:
		return nalType == h266TypeIDRWRADL || nalType == h266TypeIDRNLP || nalType == h266TypeCRA || nalType == h266TypeGDR
	default:
		return false
	}
}
