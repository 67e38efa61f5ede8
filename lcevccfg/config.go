/*
NAME
  config.go

DESCRIPTION
  config.go defines the decoder daemon's configuration: knobs for the
  ingest container, the rolling arena and task pool sizing, and the
  logging sink, together with defaulting/validation that fills in sane
  values for unset fields rather than failing outright.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package lcevccfg holds configuration for a running LCEVC decoder
// daemon: ingest selection, resource sizing, and logging.
package lcevccfg

import (
	"time"

	"github.com/ausocean/utils/logging"
)

// Ingest selects how enhancement access units are obtained.
const (
	IngestFile uint8 = iota
	IngestMPEGTS
)

// Config holds everything needed to start a decoder. Construct via a
// zero value, set fields, then call Validate.
type Config struct {
	// Ingest selects the source of enhancement access units.
	Ingest uint8

	// InputPath is the path of the source file: a raw bytestream
	// (IngestFile) or an MPEG-TS stream (IngestMPEGTS). The decoder
	// opens it as a local file; URLs are not supported.
	InputPath string

	// EnhancementPID is the MPEG-TS PID carrying the enhancement
	// access units, when Ingest is IngestMPEGTS.
	EnhancementPID uint16

	// OutputPath is the BIN container path extracted access units are
	// archived to. Empty disables archiving.
	OutputPath string

	// ArenaInitialSize is the rolling arena's first backing buffer
	// size in bytes.
	ArenaInitialSize int

	// PoolWorkers is the number of task pool worker goroutines.
	// Validate replaces zero or a negative value with a fixed default
	// of 4.
	PoolWorkers int

	// DiagnosticsCapacity is the number of records the diagnostics
	// ring can hold before producers block.
	DiagnosticsCapacity int

	// LogPath is the rotating log file path.
	LogPath string

	// LogLevel is one of logging.Debug, Info, Warning, Error, Fatal.
	LogLevel int8

	// LogSuppress disables stderr mirroring of log output.
	LogSuppress bool

	// WatchInterval is a debounce interval for config watching.
	// Validate defaults it; Watcher.Watch does not read it and reloads
	// on every write or create event.
	WatchInterval time.Duration

	// Logger receives validation warnings and is threaded through to
	// every component that accepts one. If it is nil, Validate applies
	// its defaults without logging them.
	Logger logging.Logger
}

const (
	defaultArenaInitialSize    = 1 << 20
	defaultPoolWorkers         = 4
	defaultDiagnosticsCapacity = 1024
	defaultWatchInterval       = 500 * time.Millisecond
)

// Validate defaults unset fields, logging a warning for each one
// through c.Logger, rather than failing outright.
func (c *Config) Validate() error {
	if c.ArenaInitialSize <= 0 {
		c.logDefault("ArenaInitialSize", defaultArenaInitialSize)
		c.ArenaInitialSize = defaultArenaInitialSize
	}
	if c.PoolWorkers <= 0 {
		c.logDefault("PoolWorkers", defaultPoolWorkers)
		c.PoolWorkers = defaultPoolWorkers
	}
	if c.DiagnosticsCapacity <= 0 {
		c.logDefault("DiagnosticsCapacity", defaultDiagnosticsCapacity)
		c.DiagnosticsCapacity = defaultDiagnosticsCapacity
	}
	if c.WatchInterval <= 0 {
		c.logDefault("WatchInterval", defaultWatchInterval)
		c.WatchInterval = defaultWatchInterval
	}
	if c.Ingest == IngestMPEGTS && c.EnhancementPID == 0 {
		return errInvalidEnhancementPID
	}
	if c.InputPath == "" {
		return errMissingInputPath
	}
	return nil
}

func (c *Config) logDefault(name string, def interface{}) {
	if c.Logger == nil {
		return
	}
	c.Logger.Warning(name+" bad or unset, defaulting", name, def)
}
