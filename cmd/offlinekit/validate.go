// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/ManuGH/offlinekit/internal/content"
	"github.com/ManuGH/offlinekit/internal/manifest"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "check configuration, manifest or content files",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "load and validate the configuration",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out(cmd), "config ok: origin %s, cache %s, progress %s\n",
						maskURL(cfg.Origin), cfg.Cache.Backend, cfg.Progress.Backend)
					return err
				},
			},
			{
				Name:      "manifest",
				Usage:     "parse an asset manifest",
				UsageText: "offlinekit validate manifest FILE",
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := cmd.Args().First()
					if path == "" {
						return errors.New("manifest file required")
					}
					man, err := manifest.Load(path)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out(cmd), "manifest ok: build %s stamped %s, %d assets\n",
						man.Build(), humanize.Time(man.Stamp()), man.Len())
					return err
				},
			},
			{
				Name:      "content",
				Usage:     "parse a question bank",
				UsageText: "offlinekit validate content FILE",
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := cmd.Args().First()
					if path == "" {
						return errors.New("content file required")
					}
					bank, err := content.LoadFile(path)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out(cmd), "content ok: %s questions\n", humanize.Comma(int64(bank.Len())))
					return err
				},
			},
		},
	}
}
