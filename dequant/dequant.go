/*
NAME
  dequant.go

DESCRIPTION
  dequant.go computes the per-layer step widths and dead-zone offsets
  used to scale decoded residual coefficients back from their quantised
  fixed-point representation, following the step-width and offset
  formulas of the enhancement layer's dequantisation stage.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package dequant implements fixed-point dequantisation of enhancement
// layer residuals: per-layer step widths derived from a quantisation
// matrix and a master step width, and the dead-zone offsets applied
// alongside them.
package dequant

import "math"

// TransformType selects the residual transform, which determines how
// many coefficient layers a plane/LOQ has.
type TransformType int

const (
	TransformDD TransformType = iota
	TransformDDS
)

// LayerCount returns the number of coefficient layers for t.
func (t TransformType) LayerCount() int {
	if t == TransformDDS {
		return layerCountDDS
	}
	return layerCountDD
}

// ScalingMode selects between one- and two-dimensional default
// quantisation matrices.
type ScalingMode int

const (
	Scale1D ScalingMode = iota
	Scale2D
)

// LOQIndex selects between the base and enhancement levels of quality.
type LOQIndex int

const (
	LOQ0 LOQIndex = iota
	LOQ1
	loqCount
)

// Temporal selects between intra-coded and inter-coded (temporally
// predicted) step widths.
type Temporal int

const (
	TSIntra Temporal = iota
	TSInter
	temporalCount
)

// OffsetMode selects how the dequant offset constant is scaled before
// being folded into the step-width and dead-zone formulas.
type OffsetMode int

const (
	OffsetModeDefault OffsetMode = iota
	OffsetModeConstOffset
)

const (
	layerCountDD  = 4
	layerCountDDS = 16

	minStepWidth = 1
	maxStepWidth = 32767 // int16 max: layerSW is stored as int16.
)

// Fixed-point constants for the step-width/offset formulas, each a
// decimal constant scaled by 1<<16.
const (
	kA                  = 39     // 0.0006
	kB                  = 126484 // 1.9300
	kC                  = 5242   // 0.0800
	kD                  = 99614  // 1.5200
	kSWDivisor          = 32768  // 1<<15
	kSWDivisorNoDQOff   = 1 << 31
	kQMScaleMax         = 196608 // 3<<16
	kDeadzoneSWLimit    = 12249
	kFixedPointOver255  = 257 // floor((1/255)*(1<<16))
)

// QuantMatrix holds the per-LOQ, per-layer quantisation scale values.
type QuantMatrix struct {
	Values [loqCount][]uint8
}

var quantMatrixDefaultDD1D = [loqCount][layerCountDD]uint8{
	{0, 2, 0, 0},
	{0, 3, 0, 32},
}
var quantMatrixDefaultDD2D = [loqCount][layerCountDD]uint8{
	{32, 3, 0, 32},
	{0, 3, 0, 32},
}
var quantMatrixDefaultDDS1D = [loqCount][layerCountDDS]uint8{
	{13, 26, 19, 32, 52, 1, 78, 9, 13, 26, 19, 32, 150, 91, 91, 19},
	{0, 0, 0, 2, 52, 1, 78, 9, 26, 72, 0, 3, 150, 91, 91, 19},
}
var quantMatrixDefaultDDS2D = [loqCount][layerCountDDS]uint8{
	{13, 26, 19, 32, 52, 1, 78, 9, 26, 72, 0, 3, 150, 91, 91, 19},
	{0, 0, 0, 2, 52, 1, 78, 9, 26, 72, 0, 3, 150, 91, 91, 19},
}

func quantMatrixDefault(scaling ScalingMode, transform TransformType, loq LOQIndex) []uint8 {
	if scaling == Scale1D {
		if transform == TransformDDS {
			return quantMatrixDefaultDDS1D[loq][:]
		}
		return quantMatrixDefaultDD1D[loq][:]
	}
	if transform == TransformDDS {
		return quantMatrixDefaultDDS2D[loq][:]
	}
	return quantMatrixDefaultDD2D[loq][:]
}

// SetDefault populates m.Values[loq] with the standard default matrix
// for the given scaling mode and transform.
func (m *QuantMatrix) SetDefault(loq0Scaling ScalingMode, transform TransformType, loq LOQIndex) {
	def := quantMatrixDefault(loq0Scaling, transform, loq)
	values := make([]uint8, len(def))
	copy(values, def)
	m.Values[loq] = values
}

// DuplicateLOQs copies LOQ0's matrix into LOQ1, used when the bitstream
// does not send a distinct enhancement-level matrix.
func (m *QuantMatrix) DuplicateLOQs() {
	values := make([]uint8, len(m.Values[LOQ0]))
	copy(values, m.Values[LOQ0])
	m.Values[LOQ1] = values
}

// Args bundles every parameter needed to compute per-layer step widths.
type Args struct {
	PlaneCount                int
	LayerCount                int
	Transform                 TransformType
	DequantOffsetMode         OffsetMode
	DequantOffset             int32 // -1 means "no offset".
	TemporalEnabled           bool
	TemporalRefresh           bool
	TemporalStepWidthModifier uint32
	StepWidth                 [loqCount]int32
	ChromaStepWidthMultiplier uint8
	QuantMatrix               *QuantMatrix
}

// PlaneLOQ holds the computed step widths and offsets for one plane at
// one level of quality, indexed by [temporal][layer].
type PlaneLOQ struct {
	StepWidth [temporalCount][]int16
	Offset    [temporalCount][]int16
}

// Params holds the full set of computed PlaneLOQ results, indexed by
// [loq][plane].
type Params struct {
	Values [loqCount][]PlaneLOQ
}

func clampS32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampS64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fixedPointU12_4Ln returns ln(stepWidth) with U12.4 fixed-point
// precision: an integer part of up to 4 bits and a 1/4096-resolution
// fractional part.
func fixedPointU12_4Ln(stepWidth int32) float64 {
	lnSW := math.Log(float64(stepWidth))
	integerLogSW := math.Floor(lnSW)
	fractionalLogSW := math.Floor((lnSW-integerLogSW)*4096) / 4096
	return integerLogSW + fractionalLogSW
}

func clampU16(v int32, lo, hi uint16) uint16 {
	if v < int32(lo) {
		return lo
	}
	if v > int32(hi) {
		return hi
	}
	return uint16(v)
}

// ScaleTemporalStepWidth derives the inter-frame step width by scaling
// the intra step width down according to a [0, 0.5]-ranged modifier
// encoded as a U8 fraction of 1/255ths.
func ScaleTemporalStepWidth(modifier uint32, unmodified int16) int16 {
	stepWidthModifier := clampU16(int32(modifier)*kFixedPointOver255, 0, 1<<15)
	stepWidthMultiplier := uint32(1<<16) - uint32(stepWidthModifier)
	floored := (stepWidthMultiplier * uint32(uint16(unmodified))) >> 16
	return int16(clampU16(int32(floored), minStepWidth, maxStepWidth))
}

func dequantOffsetActual(layerSW, masterSW, offset int32, mode OffsetMode) int32 {
	if offset == -1 || offset == 0 {
		return 0
	}
	logLayerSW := int32(-kC * fixedPointU12_4Ln(layerSW))
	logMasterSW := int32(kC * fixedPointU12_4Ln(masterSW))

	var actual int64
	switch mode {
	case OffsetModeDefault:
		actual = int64(offset) << 11
	case OffsetModeConstOffset:
		actual = int64(offset) << 9
	}
	actual = (int64(logLayerSW) + actual + int64(logMasterSW)) * int64(layerSW)
	return int32(actual >> 16)
}

func stepWidthModifier(layerSW, offsetActual, offset int32, mode OffsetMode) int32 {
	if offset == -1 {
		logByLayerSW := int64(kD) - int64(float64(kC)*fixedPointU12_4Ln(layerSW))
		pow := logByLayerSW * int64(layerSW) * int64(layerSW)
		return int32(pow / kSWDivisorNoDQOff)
	}
	if mode == OffsetModeDefault {
		return int32((int64(offsetActual) * int64(layerSW)) / kSWDivisor)
	}
	return 0
}

func deadzoneWidth(masterSW, layerSW int32) int32 {
	if masterSW <= 16 {
		return masterSW >> 1
	}
	if layerSW > kDeadzoneSWLimit {
		return math.MaxInt32
	}
	return ((int32(1<<16) - (((kA * layerSW) + kB) >> 1)) * layerSW) >> 16
}

func appliedDequantOffset(offsetActual, deadzone, offset int32, mode OffsetMode) int16 {
	if offset == -1 || mode == OffsetModeDefault {
		return int16(-deadzone)
	}
	if mode == OffsetModeConstOffset {
		return int16(offsetActual - deadzone)
	}
	return 0
}

// ScaleChromaStepWidth pre-scales a luma LOQ0 step width for a chroma
// plane by multiplier/64.
func ScaleChromaStepWidth(stepWidth int32, multiplier uint8) int32 {
	return clampS32((stepWidth*int32(multiplier))>>6, minStepWidth, maxStepWidth)
}

func loqStepWidth(args *Args, planeIdx int, loq LOQIndex) int32 {
	if planeIdx > 0 && loq == LOQ0 {
		return ScaleChromaStepWidth(args.StepWidth[loq], args.ChromaStepWidthMultiplier)
	}
	return args.StepWidth[loq]
}

func calculatePlaneLOQ(args *Args, planeIdx int, loq LOQIndex) PlaneLOQ {
	quantMatrix := args.QuantMatrix.Values[loq]
	loqSW := loqStepWidth(args, planeIdx, loq)

	var out PlaneLOQ
	for temporal := Temporal(0); temporal < temporalCount; temporal++ {
		temporalSW := loqSW
		if temporal == TSInter && loq == LOQ0 && args.TemporalEnabled && !args.TemporalRefresh {
			temporalSW = int32(ScaleTemporalStepWidth(args.TemporalStepWidthModifier, int16(temporalSW)))
		}

		out.StepWidth[temporal] = make([]int16, args.LayerCount)
		out.Offset[temporal] = make([]int16, args.LayerCount)

		for layer := 0; layer < args.LayerCount; layer++ {
			layerQM := int64(quantMatrix[layer])
			layerQM *= int64(temporalSW)
			layerQM += 1 << 16
			layerQM = clampS64(layerQM, 0, kQMScaleMax)
			layerQM *= int64(temporalSW)
			layerQM >>= 16

			layerSW := int32(clampS64(layerQM, minStepWidth, maxStepWidth))

			offsetActual := dequantOffsetActual(layerSW, temporalSW, args.DequantOffset, args.DequantOffsetMode)
			modifier := stepWidthModifier(layerSW, offsetActual, args.DequantOffset, args.DequantOffsetMode)

			layerSW = clampS32(layerSW+modifier, minStepWidth, maxStepWidth)
			out.StepWidth[temporal][layer] = int16(layerSW)

			dz := deadzoneWidth(temporalSW, layerSW)
			out.Offset[temporal][layer] = appliedDequantOffset(offsetActual, dz, args.DequantOffset, args.DequantOffsetMode)
		}
	}
	return out
}

// Calculate computes step widths and offsets for every plane and LOQ
// described by args.
func Calculate(args *Args) *Params {
	var params Params
	for loq := LOQIndex(0); loq < loqCount; loq++ {
		params.Values[loq] = make([]PlaneLOQ, args.PlaneCount)
		for plane := 0; plane < args.PlaneCount; plane++ {
			params.Values[loq][plane] = calculatePlaneLOQ(args, plane, loq)
		}
	}
	return &params
}
