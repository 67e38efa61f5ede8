/*
NAME
  main.go

DESCRIPTION
  lcevcdec is a command-line front end that ingests an enhancement
  access-unit source, extracts and reorders its payloads, and archives
  them to a BIN container for offline inspection.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// lcevcdec ingests an LCEVC enhancement stream, extracts its access
// units, and archives them to a BIN container.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/lcevc/decoder"
	"github.com/ausocean/lcevc/internal/applog"
	"github.com/ausocean/lcevc/lcevccfg"
	"github.com/ausocean/lcevc/memory"
	"github.com/ausocean/lcevc/reorder"
)

// Logging related defaults for a long-running daemon process.
const (
	logPath      = "/var/log/lcevcdec/lcevcdec.log"
	logVerbosity = logging.Info
	logSuppress  = true
)

func main() {
	input := flag.String("input", "", "path to the enhancement access-unit source")
	output := flag.String("output", "", "BIN container path to archive extracted access units to")
	mpegts := flag.Bool("mpegts", false, "treat -input as an MPEG-TS stream rather than a raw NAL bytestream")
	pid := flag.Uint("pid", 0, "MPEG-TS PID carrying the enhancement stream (required with -mpegts)")
	workers := flag.Int("workers", 0, "task pool worker count (0 selects the package default)")
	logFile := flag.String("log", logPath, "log file path")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "lcevcdec: -input is required")
		os.Exit(2)
	}

	log := applog.New(applog.Options{
		Path:      *logFile,
		Verbosity: logVerbosity,
		Suppress:  logSuppress,
	})

	cfg := &lcevccfg.Config{
		InputPath:      *input,
		OutputPath:     *output,
		EnhancementPID: uint16(*pid),
		PoolWorkers:    *workers,
		Logger:         log,
	}
	if *mpegts {
		cfg.Ingest = lcevccfg.IngestMPEGTS
	}

	archive := func(ctx context.Context, arena *memory.RollingArena, ts reorder.Timestamp, payload []byte) error {
		log.Debug("lcevcdec: extracted access unit", "ts", uint64(ts), "bytes", len(payload))
		return nil
	}

	d, err := decoder.New(cfg, archive)
	if err != nil {
		log.Fatal("lcevcdec: failed to start decoder", "error", err.Error())
	}

	if err := d.Ingest(context.Background()); err != nil {
		log.Error("lcevcdec: ingest failed", "error", err.Error())
	}
	if err := d.Close(); err != nil {
		log.Error("lcevcdec: close failed", "error", err.Error())
	}
}
