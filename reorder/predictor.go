/*
NAME
  predictor.go

DESCRIPTION
  predictor.go implements a timestamp-delta predictor that learns the
  steady-state spacing between presentation timestamps so the reorder
  container can decide when the next-in-order buffer is ready to emit
  without explicit decode-order metadata.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package reorder buffers enhancement payloads keyed by presentation
// timestamp and emits them in ascending order, using a learned
// timestamp-delta predictor rather than requiring decode-order metadata.
package reorder

const (
	deltaJumpCoefficient = 32
	percentError         = 25
	defaultMaxReorder    = 16
)

// Predictor learns the inter-frame timestamp delta from both insertion
// (decode) order and extraction (presentation) order, and answers
// whether a candidate timestamp is the expected next one.
type Predictor struct {
	lastFed, lastHinted Timestamp
	fed, hinted         bool

	lo, hi uint64 // current accepted delta window.

	repeatCount int // counts down to 0 as the delta stabilises.
	maxReorder  int
}

// NewPredictor returns a Predictor configured with the given
// maxNumReorderFrames; 0 maps to the default of 16.
func NewPredictor(maxReorder int) *Predictor {
	p := &Predictor{}
	p.SetMaxNumReorderFrames(maxReorder)
	return p
}

// SetMaxNumReorderFrames resets the predictor and changes the stability
// threshold used when it restarts. 0 is mapped to the default of 16.
func (p *Predictor) SetMaxNumReorderFrames(n int) {
	if n == 0 {
		n = defaultMaxReorder
	}
	p.maxReorder = n
	p.reset()
}

func (p *Predictor) reset() {
	p.lo, p.hi = 0, 0
	p.repeatCount = p.maxReorder / 2
	p.fed = false
	p.hinted = false
}

// absDelta computes |a-b| without relying on signed overflow.
func absDelta(a, b Timestamp) uint64 {
	if a >= b {
		return uint64(a - b)
	}
	return uint64(b - a)
}

// updateDelta tightens the window only when a smaller delta is observed;
// an equal or larger delta instead counts down the stabilisation counter.
func (p *Predictor) updateDelta(delta uint64) {
	virgin := p.lo == 0 && p.hi == 0
	if virgin || delta < p.lo {
		margin := delta * percentError / 100
		p.lo = delta - margin
		p.hi = delta + margin
		return
	}
	if p.repeatCount > 0 {
		p.repeatCount--
	}
}

// Feed records an inserted (decode-order) timestamp.
func (p *Predictor) Feed(ts Timestamp) {
	if !p.fed {
		p.lastFed = ts
		p.fed = true
		if !p.hinted {
			p.lastHinted = ts
			p.hinted = true
		}
		return
	}
	delta := absDelta(ts, p.lastFed)
	if p.hi != 0 && delta > uint64(deltaJumpCoefficient)*p.hi {
		p.reset()
		p.fed = true
		p.lastFed = ts
		return
	}
	p.updateDelta(delta)
	p.lastFed = ts
}

// Hint records a timestamp at the head of the container (presentation
// order), used to judge whether the next extraction is "next" in
// sequence.
func (p *Predictor) Hint(ts Timestamp) {
	if !p.hinted {
		p.lastHinted = ts
		p.hinted = true
		return
	}
	if ts < p.lastHinted {
		p.reset()
		p.lastHinted = ts
		p.hinted = true
		return
	}
	delta := uint64(ts - p.lastHinted)
	p.updateDelta(delta)
	p.lastHinted = ts
}

// IsNext reports whether ts is expected to be the next timestamp to
// emit in presentation order.
func (p *Predictor) IsNext(ts Timestamp) bool {
	if p.repeatCount > 0 {
		return false
	}
	if !p.hinted {
		return true
	}
	if ts == p.lastHinted {
		return true
	}
	if ts < p.lastHinted {
		return false
	}
	delta := uint64(ts - p.lastHinted)
	return p.lo <= delta && delta <= p.hi
}
