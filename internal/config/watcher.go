package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"rallypoint/server/internal/telemetry"
)

// debounceWindow coalesces editor write bursts into one reload.
const debounceWindow = 250 * time.Millisecond

// Watch reloads the config file whenever it changes on disk and delivers the
// result to onChange. It blocks until stop closes; callers run it in its own
// goroutine. Decode failures keep the previous configuration.
func Watch(path string, logger telemetry.Logger, stop <-chan struct{}, onChange func(Config)) error {
	if path == "" || onChange == nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file wholesale,
	// which drops a watch registered on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var pending <-chan time.Time
	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(debounceWindow)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Printf("config watcher error: %v", err)
			}
		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				if logger != nil {
					logger.Printf("config reload failed: %v", err)
				}
				continue
			}
			if logger != nil {
				logger.Printf("config reloaded from %s", path)
			}
			onChange(cfg)
		}
	}
}
