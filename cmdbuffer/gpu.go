/*
NAME
  gpu.go

DESCRIPTION
  gpu.go implements the GPU command buffer: a fixed-size-record
  encoding optimised for shader consumption rather than compact byte
  packing, where each command addresses a whole block by index and
  carries a presence bitmask of which transform units within that block
  it applies to.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package cmdbuffer

import "github.com/pkg/errors"

// blockIndexBits bounds the block index field; builders reject indices
// that don't fit.
const blockIndexBits = 18

// ErrBlockIndexOverflow is returned when a block index exceeds the
// 18-bit field width.
var ErrBlockIndexOverflow = errors.New("cmdbuffer: block index overflow")

// opFamily selects which of the three residual sub-arrays an opcode's
// data belongs in.
type opFamily int

const (
	familyAdd opFamily = iota
	familySet
	familyClearAndSet
	familyCount
)

func (c Cmd) family() (opFamily, bool) {
	switch c {
	case CmdAdd:
		return familyAdd, true
	case CmdSet:
		return familySet, true
	case CmdClearAndSet:
		return familyClearAndSet, true
	default:
		return 0, false
	}
}

// GPUCommand is one fixed-size record: a block index, a per-TU presence
// bitmask for that block, an opcode, a TU count, and an offset into the
// opcode's residual sub-array (valid once Build has run).
type GPUCommand struct {
	BlockIndex uint32
	Presence   [4]uint64 // one word for 16-layer DDS blocks; all four for 4-layer DD blocks.
	Op         Cmd
	Count      uint32
	DataOffset uint32
}

// GPU accumulates fixed-size commands and per-family residual arrays
// for one transform pass. Appends to the same block index merge into
// one command per opcode family; ClearAndSet is sticky, so once it
// opens for a block, later Set/SetZero appends to that block redirect
// into the open ClearAndSet command instead of starting their own.
type GPU struct {
	transformSize int

	commands []GPUCommand
	// openSlot[family] indexes the in-progress command of that family
	// for the current block, or -1 if none is open. Index setZeroSlot
	// is a pseudo-family slot for merging consecutive SetZero commands,
	// which carry no residuals of their own.
	openSlot    [openSlotCount]int
	currentBlk  uint32
	haveBlock   bool
	stickyClear bool

	residuals [familyCount][]int16
}

// NewGPU allocates an empty GPU command buffer for the given transform
// size (ddLayers or ddsLayers).
func NewGPU(transformSize int) *GPU {
	g := &GPU{transformSize: transformSize}
	g.resetOpenSlots()
	return g
}

func (g *GPU) resetOpenSlots() {
	for i := range g.openSlot {
		g.openSlot[i] = -1
	}
}

// Reset clears the buffer for reuse, optionally resizing for a new
// transform size.
func (g *GPU) Reset(transformSize int) {
	g.transformSize = transformSize
	g.commands = g.commands[:0]
	for i := range g.residuals {
		g.residuals[i] = g.residuals[i][:0]
	}
	g.resetOpenSlots()
	g.haveBlock = false
	g.stickyClear = false
}

func (g *GPU) startBlock(blockIndex uint32) {
	if g.haveBlock && blockIndex == g.currentBlk {
		return
	}
	g.resetOpenSlots()
	g.stickyClear = false
	g.currentBlk = blockIndex
	g.haveBlock = true
}

// Append records command at blockIndex for the TU marked by bit tuBit
// within the block (0..63 per presence word; DDS blocks use one word,
// DD blocks use up to four). Add/Set/ClearAndSet each carry transformSize
// per-layer residual coefficients in values; SetZero carries none.
func (g *GPU) Append(blockIndex uint32, tuBit uint, command Cmd, values []int16) error {
	if blockIndex >= 1<<blockIndexBits {
		return ErrBlockIndexOverflow
	}
	g.startBlock(blockIndex)

	effective := command
	if g.stickyClear && (command == CmdSet || command == CmdSetZero) {
		effective = CmdClearAndSet
	}
	if effective == CmdClearAndSet {
		g.stickyClear = true
	}

	word, bit := tuBit/64, tuBit%64

	if effective == CmdSetZero {
		idx := g.openSlot[setZeroSlot]
		if idx < 0 {
			g.commands = append(g.commands, GPUCommand{BlockIndex: blockIndex, Op: CmdSetZero})
			idx = len(g.commands) - 1
			g.openSlot[setZeroSlot] = idx
		}
		g.commands[idx].Presence[word] |= 1 << bit
		g.commands[idx].Count++
		return nil
	}

	family, _ := effective.family()
	idx := g.openSlot[family]
	if idx < 0 {
		g.commands = append(g.commands, GPUCommand{BlockIndex: blockIndex, Op: effective})
		idx = len(g.commands) - 1
		g.openSlot[family] = idx
	}
	g.commands[idx].Presence[word] |= 1 << bit
	g.commands[idx].Count++
	if command == CmdSetZero {
		// A SetZero redirected into a sticky ClearAndSet contributes zero
		// residuals, keeping Count*transformSize entries per command.
		g.residuals[family] = append(g.residuals[family], make([]int16, g.transformSize)...)
		return nil
	}
	g.residuals[family] = append(g.residuals[family], values[:g.transformSize]...)
	return nil
}

// openSlotCount covers the three residual-carrying opcode families plus
// setZeroSlot, a pseudo-family slot for merging consecutive SetZero
// commands to the same block (SetZero carries no residuals).
const (
	openSlotCount = int(familyCount) + 1
	setZeroSlot   = int(familyCount)
)

// Commands returns the fixed-size command records built so far, in
// append order.
func (g *GPU) Commands() []GPUCommand { return g.commands }

// Build concatenates the three residual sub-arrays (Add, Set,
// ClearAndSet, in that order) into one buffer and fixes up each
// command's DataOffset to index into it. The TU-raster alternative
// path (opcode families kept as separate dispatches) is exposed
// directly via Residuals and does not require Build.
func (g *GPU) Build() []int16 {
	var offsets [familyCount]uint32
	total := 0
	for f := opFamily(0); f < familyCount; f++ {
		offsets[f] = uint32(total)
		total += len(g.residuals[f])
	}

	out := make([]int16, 0, total)
	out = append(out, g.residuals[familyAdd]...)
	out = append(out, g.residuals[familySet]...)
	out = append(out, g.residuals[familyClearAndSet]...)

	cursor := offsets
	for i := range g.commands {
		family, ok := g.commands[i].Op.family()
		if !ok {
			continue
		}
		g.commands[i].DataOffset = cursor[family]
		cursor[family] += uint32(g.commands[i].Count) * uint32(g.transformSize)
	}
	return out
}

// Residuals returns the per-family residual arrays unconcatenated, for
// the TU-raster dispatch path.
func (g *GPU) Residuals() [familyCount][]int16 { return g.residuals }
