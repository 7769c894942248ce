package meshapi

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mark3labs/meshwiz/internal/wizard"
)

const debounceInterval = 100 * time.Millisecond

// WatchInputsFile calls onChange with the reloaded inputs every time the
// file at path is written, until ctx is done. Bursts of events are
// debounced. A file that fails to load is logged and skipped.
func WatchInputsFile(ctx context.Context, path string, onChange func(wizard.Inputs)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Editors often replace the file, so watch its directory.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	log.Debug("watching inputs file %s", abs)

	timer := time.NewTimer(debounceInterval)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			// Only care about Create, Write, Rename
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounceInterval)

		case <-timer.C:
			in, err := LoadInputsFile(abs)
			if err != nil {
				log.Warn("ignoring change to %s: %v", abs, err)
				continue
			}
			onChange(in)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("inputs watcher error: %v", err)
		}
	}
}
