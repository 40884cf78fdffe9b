package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches the config file and surfaces newly listed accounts.
// Only additions matter at runtime: the pool sequence is append-only, so
// edits and removals of existing accounts are ignored until restart.
type Watcher struct {
	loader   *Loader
	onReload func(*Config)
	logger   zerolog.Logger
	debounce time.Duration
}

// NewWatcher creates a config file watcher. onReload is invoked with the
// freshly loaded config after every change to the file.
func NewWatcher(loader *Loader, onReload func(*Config), logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader:   loader,
		onReload: onReload,
		logger:   logger,
		debounce: 500 * time.Millisecond,
	}
}

// Run watches until the context is cancelled. A missing config file is
// not an error: the watcher just has nothing to do.
func (w *Watcher) Run(ctx context.Context) error {
	path, err := w.loader.Path()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save
	// and the watch would die with the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	w.logger.Info().Str("path", path).Msg("Watching config for account changes")

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Debounce: editors fire several events per save
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := w.loader.Load()
			if err != nil {
				w.logger.Warn().Err(err).Msg("Config reload failed, keeping previous accounts")
				continue
			}
			w.logger.Info().Int("accounts", len(cfg.Accounts)).Msg("Config reloaded")
			w.onReload(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}
