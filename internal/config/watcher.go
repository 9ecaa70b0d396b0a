// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/manifest"
)

const defaultDebounce = 500 * time.Millisecond

// ManifestWatcher reloads the manifest file when it changes and hands every
// valid version to OnChange. A changed manifest is a new deployment.
type ManifestWatcher struct {
	path     string
	onChange func(context.Context, *manifest.Manifest)
	debounce time.Duration
	logger   zerolog.Logger
}

// NewManifestWatcher creates a watcher for path.
func NewManifestWatcher(path string, onChange func(context.Context, *manifest.Manifest)) *ManifestWatcher {
	return &ManifestWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   log.WithComponent("config"),
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are noticed.
func (w *ManifestWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch manifest dir: %w", err)
	}
	w.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str(log.FieldPath, w.path).
		Msg("watching manifest for changes")

	// Debounce: rapid writes collapse into one reload.
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("manifest watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("manifest watcher closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug().
				Str(log.FieldEvent, "config.manifest_changed").
				Str("op", event.Op.String()).
				Msg("manifest file changed")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("manifest watcher closed")
			}
			w.logger.Error().Err(err).Str(log.FieldEvent, "config.watcher_error").Msg("manifest watcher error")
		}
	}
}

func (w *ManifestWatcher) reload(ctx context.Context) {
	m, err := manifest.Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).
			Str(log.FieldEvent, "config.manifest_reload_failed").
			Msg("manifest reload failed, keeping current generation")
		return
	}
	w.logger.Info().
		Str(log.FieldEvent, "config.manifest_reloaded").
		Str("build", m.Build()).
		Int("assets", m.Len()).
		Msg("manifest reloaded")
	w.onChange(ctx, m)
}
