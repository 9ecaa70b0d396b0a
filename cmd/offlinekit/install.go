// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/config"
	"github.com/ManuGH/offlinekit/internal/daemon"
	"github.com/ManuGH/offlinekit/internal/manifest"
)

func installCommand() *cli.Command {
	return &cli.Command{
		Name:      "install",
		Usage:     "precache a manifest into a new generation",
		UsageText: "offlinekit install [--activate] [MANIFEST]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "activate",
				Usage: "activate the new generation immediately (skip waiting)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cmd.Args().First()
			if path == "" {
				path = cfg.Manifest
			}
			if path == "" {
				return errors.New("no manifest given and none configured")
			}
			man, err := manifest.Load(path)
			if err != nil {
				return err
			}

			return withManager(ctx, cfg, cmd.Bool("activate"), func(m *cachemgr.Manager) error {
				if _, err := m.Restore(ctx); err != nil {
					return err
				}
				if err := m.Install(ctx, man); err != nil {
					return err
				}
				st := m.Status()
				w := out(cmd)
				switch {
				case st.Pending != "":
					_, err = fmt.Fprintf(w, "installed %s (%d assets), waiting; active is %s\n", st.Pending, man.Len(), st.Active)
				default:
					_, err = fmt.Fprintf(w, "installed and activated %s (%d assets)\n", st.Active, st.Assets)
				}
				return err
			})
		},
	}
}

// withManager opens the configured cache store behind a manager for one
// command and closes both afterwards.
func withManager(ctx context.Context, cfg config.Config, skipWaiting bool, fn func(*cachemgr.Manager) error) (err error) {
	store, err := daemon.OpenCacheStore(cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, store.Close()) }()

	m, err := daemon.NewCacheManager(cfg, store, skipWaiting)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, m.Close()) }()
	return fn(m)
}
