/*
NAME
  applog.go

DESCRIPTION
  applog.go wires a rotating file sink into the shared logging.Logger
  interface every package in this module takes, for long-running
  decoder daemon processes that need bounded log disk usage.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package applog builds the decoder daemon's logging.Logger, backed by
// a size- and age-rotated file sink.
package applog

import (
	"io"

	"github.com/ausocean/utils/logging"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Defaults for the rotating log file.
const (
	DefaultMaxSizeMB  = 500
	DefaultMaxBackups = 10
	DefaultMaxAgeDays = 30
)

// Options configures New.
type Options struct {
	// Path is the log file path. Required.
	Path string
	// MaxSizeMB, MaxBackups, and MaxAgeDays override the defaults above
	// when non-zero.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Verbosity is one of logging.Debug, Info, Warning, Error, Fatal.
	Verbosity int8
	// Suppress disables stderr mirroring of log output.
	Suppress bool
	// Extra, if set, additionally receives every log line (e.g. a
	// network logger for centralised collection).
	Extra io.Writer
}

// New builds a logging.Logger that writes to a rotating file at
// opts.Path, optionally tee'd to opts.Extra.
func New(opts Options) logging.Logger {
	maxSize := opts.MaxSizeMB
	if maxSize == 0 {
		maxSize = DefaultMaxSizeMB
	}
	maxBackups := opts.MaxBackups
	if maxBackups == 0 {
		maxBackups = DefaultMaxBackups
	}
	maxAge := opts.MaxAgeDays
	if maxAge == 0 {
		maxAge = DefaultMaxAgeDays
	}

	fileLog := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}

	var w io.Writer = fileLog
	if opts.Extra != nil {
		w = io.MultiWriter(fileLog, opts.Extra)
	}

	return logging.New(opts.Verbosity, w, opts.Suppress)
}
