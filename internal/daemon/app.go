// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/offlinekit/internal/appstate"
	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/config"
	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/manifest"
	"github.com/ManuGH/offlinekit/internal/platform/httpx"
)

// App owns the long-lived runtime lifecycle (manifest watcher, connectivity
// probe, lifecycle event consumers) and delegates the server to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	rt           *Runtime
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, rt *Runtime) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		rt:           rt,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	cfg := a.rt.Config

	g, ctx := errgroup.WithContext(ctx)

	// Lifecycle events feed the client-facing state.
	stateEvents, unsubscribeState := a.rt.Cache.Subscribe()
	defer unsubscribeState()
	g.Go(func() error {
		a.rt.State.Follow(ctx, stateEvents)
		return nil
	})

	// Every activation may ship a new question bank.
	progressEvents, unsubscribeProgress := a.rt.Cache.Subscribe()
	defer unsubscribeProgress()
	g.Go(func() error {
		a.followActivations(ctx, progressEvents, cfg.Probe.Interval)
		return nil
	})

	// Manifest watcher is best-effort: a broken watcher must not stop serving.
	if cfg.Manifest != "" {
		watcher := config.NewManifestWatcher(cfg.Manifest, a.rt.Install)
		g.Go(func() error {
			if err := watcher.Run(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("manifest watcher stopped")
			}
			return nil
		})
	}

	// SIGHUP reinstalls the manifest by hand.
	if cfg.Manifest != "" && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reinstalling manifest")
					man, err := manifest.Load(cfg.Manifest)
					if err != nil {
						a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("manifest reload failed")
						continue
					}
					a.rt.Install(ctx, man)
				}
			}
		})
	}

	prober := &appstate.Prober{
		Client:   httpx.NewClient(cfg.Probe.Timeout),
		URL:      cfg.Origin + cfg.Probe.Path,
		Interval: cfg.Probe.Interval,
		Timeout:  cfg.Probe.Timeout,
	}
	g.Go(func() error {
		return prober.Run(ctx, a.rt.State)
	})

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// followActivations reattaches progress after each activation and retries
// every interval while no session is attached.
func (a *App) followActivations(ctx context.Context, events <-chan cachemgr.Event, retry time.Duration) {
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != cachemgr.EventActivated {
				continue
			}
			if err := a.rt.AttachProgress(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.progress_reload_failed").Msg("progress not reloaded after activation")
			}
		case <-ticker.C:
			if a.rt.Progress() != nil {
				continue
			}
			if err := a.rt.AttachProgress(ctx); err != nil {
				a.logger.Debug().Err(err).Msg("progress still unavailable")
			}
		}
	}
}
