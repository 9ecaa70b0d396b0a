// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/urfave/cli/v3"

	"github.com/ManuGH/offlinekit/internal/daemon"
	"github.com/ManuGH/offlinekit/internal/log"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the cache front, control API and progress store",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := log.WithComponent("daemon")
			logger.Info().
				Str("event", "config.loaded").
				Str("listen", cfg.Listen).
				Str("origin", maskURL(cfg.Origin)).
				Str("cache_backend", cfg.Cache.Backend).
				Str("progress_backend", cfg.Progress.Backend).
				Str("version", cfg.Version).
				Msg("starting offlinekit")

			rt, err := daemon.Bootstrap(ctx, cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer func() {
				if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Warn().Err(err).Msg("close runtime")
				}
			}()

			mgr, err := daemon.NewManager(
				daemon.DefaultServerConfig(cfg.Listen, cfg.API.ShutdownTimeout),
				daemon.Deps{Logger: log.Base(), Handler: rt.API.Handler()},
			)
			if err != nil {
				return err
			}
			return daemon.NewApp(logger, mgr, rt).Run(ctx)
		},
	}
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}
