/*
NAME
  tu.go

DESCRIPTION
  tu.go implements transform-unit coordinate traversal over a plane:
  mapping a linear TU index to pixel coordinates in either simple raster
  order or block-raster order (TUs visited in temporal-block-sized
  chunks, matching the order entropy-coded residuals arrive in), plus
  the index conversions needed to cross between the two orderings.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package tu implements transform-unit coordinate traversal for the
// enhancement layer's residual surfaces.
package tu

import "github.com/pkg/errors"

// BSTemporal is the size, in pixels, of a temporal coding block.
const BSTemporal = 32
const bsTemporalShift = 5

// Result reports whether a coordinate lookup produced a usable TU, hit
// the end of the surface, or was given an out-of-range index.
type Result int

const (
	More Result = iota
	Complete
	errResult
)

// ErrIndexOutOfRange is returned by coordinate lookups given a TU index
// beyond the surface.
var ErrIndexOutOfRange = errors.New("tu: index out of range")

// block holds the precomputed block-raster traversal parameters.
type block struct {
	tuPerBlockDimsShift    uint32
	tuPerBlockDims         uint32
	tuPerBlockShift        uint32
	tuPerBlock             uint32
	tuPerBlockRowRightEdge uint32
	tuPerBlockColBottomEdge uint32
	tuPerBlockBottomEdge   uint32
	tuPerRow               uint32
	wholeBlocksPerRow      uint32
	wholeBlocksPerCol      uint32
	maxWholeBlockTu        uint32
	blocksPerRow           uint32
	blocksPerCol           uint32
}

type blockAligned struct {
	tuPerRow      uint32
	maxWholeBlockY uint32
}

// State describes a plane's transform-unit grid, precomputed once from
// the plane dimensions and the TU size.
type State struct {
	tuWidthShift uint32
	numAcross    uint32
	tuTotal      uint32
	xOffset      uint32
	yOffset      uint32

	block        block
	blockAligned blockAligned
}

// NewState builds a State for a width x height plane offset at
// (xOffset, yOffset), with TUs of size 1<<tuWidthShift. It returns an
// error if width or height is not a multiple of the TU size.
func NewState(width, height, xOffset, yOffset, tuWidthShift uint32) (*State, error) {
	tuSize := uint32(1) << tuWidthShift
	if width&(tuSize-1) != 0 || height&(tuSize-1) != 0 {
		return nil, errors.Errorf("tu: %dx%d is not a multiple of TU size %d", width, height, tuSize)
	}

	s := &State{
		tuWidthShift: tuWidthShift,
		numAcross:    width >> tuWidthShift,
		xOffset:      xOffset,
		yOffset:      yOffset,
	}
	s.tuTotal = s.numAcross * (height >> tuWidthShift)

	b := &s.block
	if tuWidthShift == 1 {
		b.tuPerBlockDimsShift = 4
	} else {
		b.tuPerBlockDimsShift = 3
	}
	b.tuPerBlockDims = 1 << b.tuPerBlockDimsShift
	b.tuPerBlockShift = b.tuPerBlockDimsShift << 1
	b.tuPerBlock = 1 << b.tuPerBlockShift
	b.tuPerBlockRowRightEdge = (width & (BSTemporal - 1)) >> tuWidthShift
	b.tuPerBlockColBottomEdge = (height & (BSTemporal - 1)) >> tuWidthShift
	b.tuPerBlockBottomEdge = b.tuPerBlockColBottomEdge << b.tuPerBlockDimsShift
	b.tuPerRow = s.numAcross << b.tuPerBlockDimsShift
	b.wholeBlocksPerRow = width >> bsTemporalShift
	b.wholeBlocksPerCol = height >> bsTemporalShift
	b.maxWholeBlockTu = (height >> bsTemporalShift) * b.tuPerRow
	b.blocksPerRow = (width + BSTemporal - 1) >> bsTemporalShift
	b.blocksPerCol = (height + BSTemporal - 1) >> bsTemporalShift

	blockAlignedWidth := (width + (BSTemporal - 1)) &^ (BSTemporal - 1)
	s.blockAligned.tuPerRow = (blockAlignedWidth >> tuWidthShift) << b.tuPerBlockDimsShift
	s.blockAligned.maxWholeBlockY = b.wholeBlocksPerCol << bsTemporalShift

	return s, nil
}

// Total returns the number of transform units covering the plane.
func (s *State) Total() uint32 { return s.tuTotal }

// CoordsSurfaceRaster maps tuIndex to pixel coordinates in simple
// row-major order.
func (s *State) CoordsSurfaceRaster(tuIndex uint32) (x, y uint32, result Result, err error) {
	if tuIndex > s.tuTotal {
		return 0, 0, errResult, ErrIndexOutOfRange
	}
	if tuIndex == s.tuTotal {
		return 0, 0, Complete, nil
	}
	x = ((tuIndex % s.numAcross) << s.tuWidthShift) + s.xOffset
	y = ((tuIndex / s.numAcross) << s.tuWidthShift) + s.yOffset
	return x, y, More, nil
}

// CoordsBlockRaster maps tuIndex to pixel coordinates visited in
// temporal-block order: every TU of one block before moving to the
// next block in the row, with undersized edge blocks handled
// separately.
func (s *State) CoordsBlockRaster(tuIndex uint32) (x, y uint32, result Result, err error) {
	if tuIndex > s.tuTotal {
		return 0, 0, errResult, ErrIndexOutOfRange
	}
	if tuIndex == s.tuTotal {
		return 0, 0, Complete, nil
	}
	b := &s.block

	blockRowIndex := tuIndex / b.tuPerRow
	rowTUIndex := tuIndex - blockRowIndex*b.tuPerRow

	var blockColIndex, blockTUIndex uint32
	if blockRowIndex >= b.wholeBlocksPerCol {
		blockColIndex = rowTUIndex / b.tuPerBlockBottomEdge
		blockTUIndex = rowTUIndex % b.tuPerBlockBottomEdge
	} else {
		blockColIndex = rowTUIndex >> b.tuPerBlockShift
		blockTUIndex = rowTUIndex - (blockColIndex << b.tuPerBlockShift)
	}

	var tuX, tuY uint32
	if blockColIndex >= b.wholeBlocksPerRow {
		tuY = blockTUIndex / b.tuPerBlockRowRightEdge
		tuX = blockTUIndex % b.tuPerBlockRowRightEdge
	} else {
		tuY = blockTUIndex >> b.tuPerBlockDimsShift
		tuX = blockTUIndex - (tuY << b.tuPerBlockDimsShift)
	}

	tuX += blockColIndex << b.tuPerBlockDimsShift
	tuY += blockRowIndex << b.tuPerBlockDimsShift

	x = (tuX << s.tuWidthShift) + s.xOffset
	y = (tuY << s.tuWidthShift) + s.yOffset
	return x, y, More, nil
}

// CoordsBlockAlignedRaster maps tuIndex (in the padded block-aligned
// index space) to pixel coordinates, without the edge-block special
// casing of CoordsBlockRaster.
func (s *State) CoordsBlockAlignedRaster(tuIndex uint32) (x, y uint32) {
	b := &s.block

	blockRowIndex := tuIndex / s.blockAligned.tuPerRow
	rowTUIndex := tuIndex - blockRowIndex*s.blockAligned.tuPerRow

	blockColIndex := rowTUIndex >> b.tuPerBlockShift
	blockTUIndex := rowTUIndex - (blockColIndex << b.tuPerBlockShift)
	tuY := blockTUIndex >> b.tuPerBlockDimsShift
	tuX := blockTUIndex - (tuY << b.tuPerBlockDimsShift)

	tuX += blockColIndex << b.tuPerBlockDimsShift
	tuY += blockRowIndex << b.tuPerBlockDimsShift

	x = (tuX << s.tuWidthShift) + s.xOffset
	y = (tuY << s.tuWidthShift) + s.yOffset
	return x, y
}

// CoordsSurfaceIndex converts pixel coordinates to a surface-raster TU
// index.
func (s *State) CoordsSurfaceIndex(x, y uint32) uint32 {
	return (y>>s.tuWidthShift)*s.numAcross + (x >> s.tuWidthShift)
}

// CoordsBlockAlignedIndex converts pixel coordinates (relative to the
// surface origin) to an index in the padded block-aligned index space.
func (s *State) CoordsBlockAlignedIndex(x, y uint32) uint32 {
	b := &s.block
	x -= s.xOffset
	y -= s.yOffset
	blockIndexX := x >> bsTemporalShift
	blockIndexY := y >> bsTemporalShift

	res := blockIndexY*s.blockAligned.tuPerRow + (blockIndexX << b.tuPerBlockShift)
	res += ((y - blockIndexY*BSTemporal) >> s.tuWidthShift) << b.tuPerBlockDimsShift
	res += (x - blockIndexX*BSTemporal) >> s.tuWidthShift
	return res
}

// BlockTuCount returns the number of TUs in the block containing
// tuIndex (fewer than a full block's worth at the right/bottom edges).
func (s *State) BlockTuCount(tuIndex uint32) uint32 {
	b := &s.block
	rightLimit := b.wholeBlocksPerRow << b.tuPerBlockShift

	tuWide := b.tuPerBlockDims
	if (tuIndex % b.tuPerRow) >= rightLimit {
		tuWide = b.tuPerBlockRowRightEdge
	}
	tuHigh := b.tuPerBlockDims
	if tuIndex >= b.maxWholeBlockTu {
		tuHigh = b.tuPerBlockColBottomEdge
	}
	return tuWide * tuHigh
}

// IsBlockStart reports whether tuIndex is the first TU of its block.
func (s *State) IsBlockStart(tuIndex uint32) bool {
	b := &s.block
	if tuIndex >= b.maxWholeBlockTu {
		return (tuIndex-b.maxWholeBlockTu)%b.tuPerBlockBottomEdge == 0
	}
	return (tuIndex%b.tuPerRow)%b.tuPerBlock == 0
}
