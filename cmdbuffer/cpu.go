/*
NAME
  cpu.go

DESCRIPTION
  cpu.go implements the CPU command buffer: a compact byte-packed
  encoding of per-transform-unit "skip/clear/set/add residual" commands
  that lets the apply stage walk a block of transform units without
  needing one entry per TU, plus Split, which partitions a finished
  buffer into worker-sized chunks at entry points aligned to block
  boundaries.

  The 6-bit jump field has exactly one sentinel value, 63
  (BigJumpSignal); jump counts of 62 and below are inline, unescaped. A
  jump of 63 or more is always followed by a little-endian 16-bit word
  whose top bit is ExtraBit, not part of the jump value itself: when
  ExtraBit is clear the remaining 15 bits are the whole jump; when set,
  one further byte extends it to 23 usable bits. There is no second
  sentinel value packed into the jump field.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package cmdbuffer implements the CPU and GPU residual command buffer
// encodings used to apply dequantised transform-unit residuals onto a
// plane without a fixed per-TU record.
package cmdbuffer

import "github.com/pkg/errors"

// Cmd is the two-bit operation selector packed into the top of each
// command byte. Add and Set carry a following block of per-layer
// residual coefficients; SetZero and ClearAndSet do not.
type Cmd uint8

const (
	CmdAdd         Cmd = 0x00
	CmdSet         Cmd = 0x40
	CmdSetZero     Cmd = 0x80
	CmdClearAndSet Cmd = 0xC0
)

const (
	jumpMask      = 0x3F
	bigJumpSignal = 63 // the only sentinel value the 6-bit jump field ever carries.

	// jumpExtraBit is the top bit of the little-endian 16-bit word that
	// follows a BigJumpSignal command byte. It is a flag, not part of
	// the jump magnitude: clear, the other 15 bits are the whole jump;
	// set, a further byte extends the jump to 23 usable bits.
	jumpExtraBit  = 1 << 15
	maxShortJump  = jumpExtraBit - 1 // largest jump fitting in the 15-bit word alone.
	maxExtraBigJump = 1<<23 - 1      // largest jump fitting in 15 bits + one extra byte.

	growFactor      = 2
	initialCapacity = 32768
	maxEntryPoints  = 16
	ddLayers        = 4
	ddsLayers       = 16
	ddLayerSize     = ddLayers * 2  // bytes, int16 residuals.
	ddsLayerSize    = ddsLayers * 2 // bytes, int16 residuals.
)

// ErrTooManyEntryPoints is returned when more entry points are
// requested than the buffer supports.
var ErrTooManyEntryPoints = errors.New("cmdbuffer: too many entry points")

// ErrJumpOverflow is returned when a jump distance exceeds the 23-bit
// encoding range (15 bits plus one extension byte).
var ErrJumpOverflow = errors.New("cmdbuffer: jump distance overflow")

// EntryPoint marks a worker-sized slice of a split command buffer.
type EntryPoint struct {
	InitialJump    uint32
	CommandOffset  int
	DataOffset     int
	Count          uint32
}

// CPU is a single command buffer: a forward-growing stream of packed
// commands and a backward-growing stream of residual values sharing one
// backing slice.
type CPU struct {
	data          []byte
	commandEnd    int // exclusive end of the command region, growing forward from 0.
	residualStart int // inclusive start of the residual region, shrinking backward from len(data).

	transformSize int // ddLayers or ddsLayers; 0 before first Reset.
	count         uint32

	EntryPoints []EntryPoint
}

// NewCPU allocates a CPU command buffer with room for numEntryPoints
// split targets.
func NewCPU(numEntryPoints int) (*CPU, error) {
	if numEntryPoints > maxEntryPoints {
		return nil, ErrTooManyEntryPoints
	}
	b := &CPU{data: make([]byte, initialCapacity)}
	b.residualStart = len(b.data)
	if numEntryPoints > 0 {
		b.EntryPoints = make([]EntryPoint, numEntryPoints)
	}
	return b, nil
}

func (b *CPU) resize(capacity int) {
	if capacity == len(b.data) {
		return
	}
	dataLen := len(b.data) - b.residualStart
	newData := make([]byte, capacity)
	copy(newData, b.data[:b.commandEnd])
	copy(newData[capacity-dataLen:], b.data[b.residualStart:])
	b.data = newData
	b.residualStart = capacity - dataLen
}

// Reset rewinds the buffer for reuse and records the transform size
// (and therefore per-entry residual width). The backing storage keeps
// its current capacity; Append grows it as needed.
func (b *CPU) Reset(transformSize int) {
	b.commandEnd = 0
	b.residualStart = len(b.data)
	b.count = 0
	b.transformSize = transformSize
}

func (b *CPU) layerSize() int {
	if b.transformSize == ddsLayers {
		return ddsLayerSize
	}
	return ddLayerSize
}

// Append packs one command with its jump distance and, for Set/Add,
// copies its residual values (reordered for the DDS transform layout
// into the order the apply stage expects).
func (b *CPU) Append(command Cmd, values []int16, jump uint32) error {
	switch {
	case jump < bigJumpSignal:
		b.data[b.commandEnd] = byte(command) | byte(jump)
		b.commandEnd++
	case jump <= maxShortJump:
		b.data[b.commandEnd] = byte(command) | bigJumpSignal
		b.data[b.commandEnd+1] = byte(jump)
		b.data[b.commandEnd+2] = byte(jump >> 8) // ExtraBit (bit 7) stays clear.
		b.commandEnd += 3
	default:
		if jump > maxExtraBigJump {
			return ErrJumpOverflow
		}
		b.data[b.commandEnd] = byte(command) | bigJumpSignal
		b.data[b.commandEnd+1] = byte(jump)
		b.data[b.commandEnd+2] = byte((jump>>8)&0x7F) | 0x80 // ExtraBit set: one more byte follows.
		b.data[b.commandEnd+3] = byte(jump >> 15)
		b.commandEnd += 4
	}

	layerSize := b.layerSize()
	if command == CmdAdd || command == CmdSet { // SetZero/ClearAndSet carry no residual block.
		b.residualStart -= layerSize
		dst := b.data[b.residualStart : b.residualStart+layerSize]
		if b.transformSize == ddsLayers {
			writeDDSReordered(dst, values)
		} else {
			for i := 0; i < ddLayers; i++ {
				dst[2*i] = byte(values[i])
				dst[2*i+1] = byte(uint16(values[i]) >> 8)
			}
		}
	}
	b.count++

	if b.residualStart-b.commandEnd < layerSize+5 {
		b.resize(len(b.data) * growFactor)
	}
	return nil
}

// writeDDSReordered copies the 16 DDS layer values into dst in the
// interleaved order the apply stage expects, swapping the two middle
// pairs of each half relative to decode order.
func writeDDSReordered(dst []byte, values []int16) {
	order := [ddsLayers]int{0, 1, 4, 5, 2, 3, 6, 7, 8, 9, 12, 13, 10, 11, 14, 15}
	for i, srcIdx := range order {
		v := values[srcIdx]
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(uint16(v) >> 8)
	}
}

// Commands returns the packed command bytes written so far.
func (b *CPU) Commands() []byte { return b.data[:b.commandEnd] }

// Count returns the number of commands appended since the last Reset.
func (b *CPU) Count() uint32 { return b.count }

// Split partitions the buffer's commands across its entry points,
// choosing split boundaries at block edges near evenly-sized groups so
// worker threads can each start at a whole-block command offset.
func (b *CPU) Split() {
	n := len(b.EntryPoints)
	if n == 0 {
		return
	}
	groupSize := b.count / uint32(n)
	blockShift := uint(8)
	if b.transformSize == ddsLayers {
		blockShift = 6
	}

	for i := range b.EntryPoints {
		b.EntryPoints[i] = EntryPoint{}
	}

	splitPoint := groupSize
	var dataOffset, cmdOffset int
	var tuIndex uint32
	var bufferIndex int
	lastCmdBlock := int32(-1)
	var lastBufferCount uint32

	var cmdCount uint32
	for ; cmdCount < b.count; cmdCount++ {
		commandByte := b.data[cmdOffset]
		command := Cmd(commandByte & 0xC0)
		jumpSignal := commandByte & jumpMask

		var jump uint32
		var cmdIncrement int
		if jumpSignal < bigJumpSignal {
			jump = uint32(jumpSignal)
			cmdIncrement = 1
		} else {
			hi := b.data[cmdOffset+2]
			jump = uint32(b.data[cmdOffset+1]) | uint32(hi&0x7F)<<8
			if hi&0x80 == 0 {
				cmdIncrement = 3
			} else {
				jump |= uint32(b.data[cmdOffset+3]) << 15
				cmdIncrement = 4
			}
		}

		currentBlock := int32((tuIndex + jump) >> blockShift)
		if cmdCount > splitPoint && bufferIndex < n-1 && currentBlock != lastCmdBlock {
			b.EntryPoints[bufferIndex].Count = cmdCount - lastBufferCount
			bufferIndex++
			b.EntryPoints[bufferIndex].InitialJump = tuIndex
			b.EntryPoints[bufferIndex].CommandOffset = cmdOffset
			b.EntryPoints[bufferIndex].DataOffset = dataOffset * b.transformSize * 2
			splitPoint += groupSize
			lastBufferCount = cmdCount
		}
		lastCmdBlock = currentBlock

		cmdOffset += cmdIncrement
		tuIndex += jump
		if command == CmdSet || command == CmdAdd {
			dataOffset++
		}
	}
	b.EntryPoints[bufferIndex].Count = cmdCount - lastBufferCount
}
