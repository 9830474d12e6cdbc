package client

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ericghara/no-doze/internal/condition"
	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/logger"
)

// reloadDebounce absorbs the event bursts editors produce when saving
const reloadDebounce = 250 * time.Millisecond

// WatchConfig reloads the condition set when the configuration file changes.
// The watch covers the containing directory because most editors replace the
// file on save. Connection settings are not reloaded; they take effect on
// restart.
func (a *Aggregator) WatchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					a.reload(path)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Config watch error")
			}
		}
	}()

	logger.WithField("path", path).Info("Watching configuration for changes")
	return nil
}

// reload swaps the condition set for the one in the updated configuration.
// A file that fails to parse leaves the running set untouched.
func (a *Aggregator) reload(path string) {
	cfg, err := config.LoadClientConfig(path)
	if err != nil {
		logger.WithError(err).Error("Ignoring invalid configuration update")
		return
	}
	if err := a.Reconfigure(cfg); err != nil {
		logger.WithError(err).Error("Ignoring invalid configuration update")
		return
	}
	logger.Info("Configuration reloaded")
}

// Reconfigure rebuilds the condition set from cfg. Scheduling and failure
// state of existing conditions is discarded; every condition starts fresh
// with an immediate check.
func (a *Aggregator) Reconfigure(cfg *config.ClientConfig) error {
	conditions, err := condition.FromConfig(cfg)
	if err != nil {
		return err
	}

	for name := range a.snapshotRunners() {
		a.sched.Remove(name)
	}
	a.state.Reset()
	a.notify()

	a.mu.Lock()
	a.cfg.Processes = cfg.Processes
	a.cfg.SSH = cfg.SSH
	a.cfg.Plex = cfg.Plex
	a.cfg.Qbittorrent = cfg.Qbittorrent
	a.mu.Unlock()

	a.setConditions(conditions)
	a.scheduleAll(time.Now())
	return nil
}
