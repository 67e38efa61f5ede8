/*
NAME
  cpu_test.go

DESCRIPTION
  cpu_test.go hand-verifies the variable-length jump encoding boundaries
  and the DD/DDS residual layer layouts written by Append.

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

import "testing"

func TestAppendShortJumpPacksSingleByte(t *testing.T) {
	b, err := NewCPU(0)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)

	if err := b.Append(CmdSetZero, nil, 5); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cmds := b.Commands()
	if len(cmds) != 1 {
		t.Fatalf("got %d command bytes, want 1", len(cmds))
	}
	if cmds[0] != 0x05 {
		t.Fatalf("got %#x, want 0x05", cmds[0])
	}
}

func TestAppendExactSentinelJumpPacksThreeBytes(t *testing.T) {
	// A literal jump of 63 is itself the sentinel value that can never
	// appear inline; it must always escape to the 16-bit form rather
	// than being treated as a second 6-bit sentinel.
	b, err := NewCPU(0)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)

	if err := b.Append(CmdSetZero, nil, bigJumpSignal); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cmds := b.Commands()
	if len(cmds) != 3 {
		t.Fatalf("got %d command bytes, want 3", len(cmds))
	}
	if cmds[0] != byte(CmdSetZero)|bigJumpSignal {
		t.Fatalf("got %#x, want %#x", cmds[0], byte(CmdSetZero)|bigJumpSignal)
	}
	if cmds[1] != bigJumpSignal || cmds[2] != 0 {
		t.Fatalf("got jump bytes %d,%d, want %d,0", cmds[1], cmds[2], bigJumpSignal)
	}
}

func TestAppendMidJumpPacksThreeBytes(t *testing.T) {
	b, err := NewCPU(0)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)

	if err := b.Append(CmdSet, []int16{1, 2, 3, 4}, 100); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cmds := b.Commands()
	if len(cmds) != 3 {
		t.Fatalf("got %d command bytes, want 3", len(cmds))
	}
	if cmds[0] != byte(CmdSet)|bigJumpSignal {
		t.Fatalf("got %#x, want %#x", cmds[0], byte(CmdSet)|bigJumpSignal)
	}
	if cmds[1] != 100 || cmds[2] != 0 {
		t.Fatalf("got jump bytes %d,%d, want 100,0", cmds[1], cmds[2])
	}
}

func TestAppendLongJumpSetsExtraBitAndPacksFourBytes(t *testing.T) {
	b, err := NewCPU(0)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)

	if err := b.Append(CmdAdd, []int16{1, 2, 3, 4}, 70000); err != nil {
		t.Fatalf("Append: %v", err)
	}
	cmds := b.Commands()
	if len(cmds) != 4 {
		t.Fatalf("got %d command bytes, want 4", len(cmds))
	}
	if cmds[0] != byte(CmdAdd)|bigJumpSignal {
		t.Fatalf("got %#x, want %#x", cmds[0], byte(CmdAdd)|bigJumpSignal)
	}
	// 70000 = (17<<8 | 112) | (2<<15); ExtraBit (0x80) set on the second jump byte.
	if cmds[1] != 112 || cmds[2] != 17|0x80 || cmds[3] != 2 {
		t.Fatalf("got jump bytes %d,%d,%d, want 112,%d,2", cmds[1], cmds[2], cmds[3], 17|0x80)
	}
}

func TestAppendRejectsJumpBeyond23Bits(t *testing.T) {
	b, err := NewCPU(0)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)
	if err := b.Append(CmdSetZero, nil, maxExtraBigJump+1); err != ErrJumpOverflow {
		t.Fatalf("got %v, want ErrJumpOverflow", err)
	}
}

func TestAppendStoresDDResidualsInOrder(t *testing.T) {
	b, err := NewCPU(0)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)
	if err := b.Append(CmdSet, []int16{10, 20, 30, 40}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}

	residual := b.data[b.residualStart:]
	want := []int16{10, 20, 30, 40}
	for i, v := range want {
		got := int16(uint16(residual[2*i]) | uint16(residual[2*i+1])<<8)
		if got != v {
			t.Fatalf("layer %d: got %d, want %d", i, got, v)
		}
	}
}

func TestAppendReordersDDSResiduals(t *testing.T) {
	b, err := NewCPU(0)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddsLayers)

	values := make([]int16, ddsLayers)
	for i := range values {
		values[i] = int16(i)
	}
	if err := b.Append(CmdSet, values, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}

	residual := b.data[b.residualStart:]
	order := [ddsLayers]int{0, 1, 4, 5, 2, 3, 6, 7, 8, 9, 12, 13, 10, 11, 14, 15}
	for i, srcIdx := range order {
		got := int16(uint16(residual[2*i]) | uint16(residual[2*i+1])<<8)
		if got != values[srcIdx] {
			t.Fatalf("slot %d: got %d, want %d (source layer %d)", i, got, values[srcIdx], srcIdx)
		}
	}
}

func TestSplitDividesCommandsAcrossEntryPoints(t *testing.T) {
	b, err := NewCPU(2)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)

	// 8 skip commands, each jumping by the temporal block size so every
	// command starts a new block and the split can land cleanly between
	// command 4 and 5.
	for i := 0; i < 8; i++ {
		if err := b.Append(CmdSetZero, nil, 256); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	b.Split()

	var total uint32
	for _, ep := range b.EntryPoints {
		total += ep.Count
	}
	if total != b.Count() {
		t.Fatalf("entry point counts sum to %d, want %d", total, b.Count())
	}
	if b.EntryPoints[0].CommandOffset != 0 {
		t.Fatalf("first entry point should start at offset 0, got %d", b.EntryPoints[0].CommandOffset)
	}
}

func TestSplitRoundTripsRunsOfExactlySentinelMinusOne(t *testing.T) {
	// A run of inline jumps at 62 (one below the sentinel) must decode
	// back to the same total TU advance rather than being mistaken for
	// a second escape value.
	b, err := NewCPU(1)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)

	const runs = 5
	for i := 0; i < runs; i++ {
		if err := b.Append(CmdSetZero, nil, bigJumpSignal-1); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	cmds := b.Commands()
	if len(cmds) != runs {
		t.Fatalf("got %d command bytes, want %d (each jump of 62 must stay inline)", len(cmds), runs)
	}

	b.Split()
	if b.EntryPoints[0].Count != runs {
		t.Fatalf("got entry point count %d, want %d", b.EntryPoints[0].Count, runs)
	}
}

func TestSplitRoundTripsLongJumpWithExtraBit(t *testing.T) {
	b, err := NewCPU(1)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	b.Reset(ddLayers)

	if err := b.Append(CmdSetZero, nil, 70000); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Append(CmdSetZero, nil, 1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	b.Split()
	if b.EntryPoints[0].Count != 2 {
		t.Fatalf("got entry point count %d, want 2", b.EntryPoints[0].Count)
	}
}
