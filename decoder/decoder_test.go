/*
NAME
  decoder_test.go

DESCRIPTION
  decoder_test.go exercises a full file-ingest pass: a single Annex-B
  access unit carrying one dedicated-NAL-type enhancement payload is
  extracted, reordered, and scheduled onto a recording ChunkDecoder.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package decoder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ausocean/lcevc/lcevccfg"
	"github.com/ausocean/lcevc/memory"
	"github.com/ausocean/lcevc/reorder"
)

type discardLogger struct{}

func (discardLogger) SetLevel(int8)                     {}
func (discardLogger) Log(int8, string, ...interface{})  {}
func (discardLogger) Debug(string, ...interface{})      {}
func (discardLogger) Info(string, ...interface{})       {}
func (discardLogger) Warning(string, ...interface{})    {}
func (discardLogger) Error(string, ...interface{})      {}
func (discardLogger) Fatal(string, ...interface{})      {}

func buildAnnexBEnhancementUnit(payload []byte) []byte {
	const h264TypeEnhancement = 0x1E // nal_ref_idc=0, nal_unit_type=30.
	out := []byte{0x00, 0x00, 0x01, h264TypeEnhancement}
	return append(out, payload...)
}

func TestIngestExtractsAndSchedulesOnePayload(t *testing.T) {
	payload := []byte("enhancement-payload")
	inputPath := filepath.Join(t.TempDir(), "input.264")
	if err := os.WriteFile(inputPath, buildAnnexBEnhancementUnit(payload), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := &lcevccfg.Config{
		InputPath:   inputPath,
		PoolWorkers: 1,
		Logger:      discardLogger{},
	}

	var mu sync.Mutex
	var got []byte
	decode := func(ctx context.Context, arena *memory.RollingArena, ts reorder.Timestamp, p []byte) error {
		mu.Lock()
		got = append([]byte(nil), p...)
		mu.Unlock()
		return nil
	}

	d, err := New(cfg, decode)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Ingest(context.Background()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != string(payload) {
		t.Fatalf("got payload %q, want %q", got, payload)
	}
}
