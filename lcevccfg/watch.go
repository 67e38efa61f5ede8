/*
NAME
  watch.go

DESCRIPTION
  watch.go hot-reloads a JSON-encoded Config from disk on every fsnotify
  write or create event, so a long-running decoder daemon can pick up
  configuration changes without a restart. Bursts of events are not
  debounced; each one triggers its own reload.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package lcevccfg

import (
	"context"
	"encoding/json"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher reloads a Config from a JSON file whenever it changes on
// disk, notifying a callback with each successfully validated
// revision.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching path for changes. The caller must call
// Close when done.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "lcevccfg: create fsnotify watcher")
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, errors.Wrap(err, "lcevccfg: watch config file")
	}
	return &Watcher{path: path, watcher: fw}, nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Load reads and parses the config file once, without watching. It does
// not call Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "lcevccfg: read config file")
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "lcevccfg: parse config file")
	}
	return &c, nil
}

// Watch blocks, calling onChange with each newly loaded and validated
// Config revision, until ctx is done or the fsnotify channels close; it
// always returns nil. Every write or create event triggers a reload:
// events are not debounced and WatchInterval is not read. fsnotify
// errors and read/parse/validate errors for a single revision are
// reported via onError and do not stop the watch.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config), onError func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				onError(err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				onError(err)
				continue
			}
			onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			onError(errors.Wrap(err, "lcevccfg: fsnotify error"))
		}
	}
}
