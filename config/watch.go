package config

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"herhealth/logging"
)

// Watch reloads path whenever it changes and passes the new config to
// onChange. Invalid edits are logged and skipped. The directory is watched
// rather than the file so editors that replace the file are handled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	log := logging.ComponentLogger("config")
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(abs)
				if err != nil {
					log.Warnw("ignoring config change", logging.FieldError, err)
					continue
				}
				log.Infow("config reloaded", "file", abs)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnw("config watcher error", logging.FieldError, err)
			}
		}
	}()
	return nil
}
