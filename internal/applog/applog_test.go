/*
NAME
  applog_test.go

DESCRIPTION
  applog_test.go checks that New produces a usable logger that writes
  to the configured rotating file path.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package applog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ausocean/utils/logging"
)

func TestNewWritesToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decoder.log")
	log := New(Options{Path: path, Verbosity: logging.Info, Suppress: true})

	log.Info("decoder starting", "version", "test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain output")
	}
}
