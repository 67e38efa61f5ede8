/*
NAME
  dequant_test.go

DESCRIPTION
  dequant_test.go exercises quantisation-matrix defaults, the temporal
  step-width scaling formula, and the shape of a full Calculate pass.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package dequant

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestQuantMatrixSetDefaultAndDuplicate(t *testing.T) {
	var m QuantMatrix
	m.SetDefault(Scale1D, TransformDD, LOQ0)
	if len(m.Values[LOQ0]) != layerCountDD {
		t.Fatalf("got %d layers, want %d", len(m.Values[LOQ0]), layerCountDD)
	}
	want := quantMatrixDefaultDD1D[LOQ0]
	for i, v := range want {
		if m.Values[LOQ0][i] != v {
			t.Fatalf("layer %d: got %d, want %d", i, m.Values[LOQ0][i], v)
		}
	}

	m.DuplicateLOQs()
	if len(m.Values[LOQ1]) != len(m.Values[LOQ0]) {
		t.Fatalf("DuplicateLOQs: got %d layers, want %d", len(m.Values[LOQ1]), len(m.Values[LOQ0]))
	}
	for i := range m.Values[LOQ0] {
		if m.Values[LOQ1][i] != m.Values[LOQ0][i] {
			t.Fatalf("layer %d: LOQ1 %d != LOQ0 %d", i, m.Values[LOQ1][i], m.Values[LOQ0][i])
		}
	}
}

func TestScaleTemporalStepWidthAtZeroModifierIsUnchanged(t *testing.T) {
	got := ScaleTemporalStepWidth(0, 1000)
	if got != 1000 {
		t.Fatalf("got %d, want 1000 (zero modifier should not scale the step width)", got)
	}
}

func TestScaleTemporalStepWidthClampsToStepWidthRange(t *testing.T) {
	got := ScaleTemporalStepWidth(255, 0)
	if got < minStepWidth || got > maxStepWidth {
		t.Fatalf("got %d, want value within [%d, %d]", got, minStepWidth, maxStepWidth)
	}
}

func TestCalculateProducesExpectedShape(t *testing.T) {
	var qm QuantMatrix
	qm.SetDefault(Scale1D, TransformDD, LOQ0)
	qm.SetDefault(Scale1D, TransformDD, LOQ1)

	args := &Args{
		PlaneCount:        3,
		LayerCount:        layerCountDD,
		Transform:         TransformDD,
		DequantOffsetMode: OffsetModeDefault,
		DequantOffset:     -1,
		StepWidth:         [loqCount]int32{100, 400},
		QuantMatrix:       &qm,
	}

	params := Calculate(args)
	for loq := LOQIndex(0); loq < loqCount; loq++ {
		if len(params.Values[loq]) != args.PlaneCount {
			t.Fatalf("loq %d: got %d planes, want %d", loq, len(params.Values[loq]), args.PlaneCount)
		}
		for _, plane := range params.Values[loq] {
			for temporal := Temporal(0); temporal < temporalCount; temporal++ {
				if len(plane.StepWidth[temporal]) != args.LayerCount {
					t.Fatalf("got %d step widths, want %d", len(plane.StepWidth[temporal]), args.LayerCount)
				}
				for _, sw := range plane.StepWidth[temporal] {
					if sw < minStepWidth || sw > maxStepWidth {
						t.Fatalf("step width %d out of range [%d, %d]", sw, minStepWidth, maxStepWidth)
					}
				}
			}
		}
	}
}

func TestChromaStepWidthMultiplierScalesNonLumaLOQ0(t *testing.T) {
	full := ScaleChromaStepWidth(1000, 64) // 64/64 == 1.0
	if full != 1000 {
		t.Fatalf("multiplier of 64 (1.0) should be a no-op, got %d", full)
	}
	half := ScaleChromaStepWidth(1000, 32) // 32/64 == 0.5
	if half != 500 {
		t.Fatalf("multiplier of 32 (0.5) should halve, got %d", half)
	}
}

// TestFixedPointLnTracksFloatReference cross-checks the U12.4 fixed-point
// ln approximation against math.Log across the full step-width range,
// using stat.Mean to keep the assertion to a single average-error bound
// rather than a per-sample one.
func TestFixedPointLnTracksFloatReference(t *testing.T) {
	var relErr []float64
	for sw := int32(minStepWidth) + 1; sw <= maxStepWidth; sw += 37 {
		got := fixedPointU12_4Ln(sw)
		want := math.Log(float64(sw))
		relErr = append(relErr, math.Abs(got-want)/want)
	}

	meanRelErr := stat.Mean(relErr, nil)
	const tolerance = 1e-3 // U12.4 has 1/4096 fractional resolution.
	if meanRelErr > tolerance {
		t.Fatalf("mean relative error %v exceeds tolerance %v", meanRelErr, tolerance)
	}
}
