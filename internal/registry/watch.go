package registry

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of filesystem events (editors typically
// fire several per save) into one reload.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the manifest directory whenever a manifest changes, until
// the context is cancelled. A failing reload logs and keeps the last good
// set; the watcher stays active.
func (r *Registry) Watch(ctx context.Context) error {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if err := r.LoadDir(dir); err != nil {
				r.logger.Warn("sheet manifest reload failed, keeping previous set", "error", err)
			} else {
				r.logger.Info("sheet manifests reloaded", "sheets", r.Count())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("manifest watcher error", "error", err)
		}
	}
}
