// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/ManuGH/offlinekit/internal/persistence/sqlite"
)

// Databases under the data dir that verify checks when no path is given.
var sqliteFiles = []string{"cache.sqlite", "progress.db"}

var errCorrupt = errors.New("integrity check failed")

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "check SQLite databases for corruption",
		UsageText: "offlinekit verify [--mode quick|full] [DB...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "quick or full",
				Value: string(sqlite.VerifyQuick),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			mode, err := sqlite.ParseVerifyMode(cmd.String("mode"))
			if err != nil {
				return err
			}
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				for _, name := range sqliteFiles {
					p := filepath.Join(cfg.DataDir, name)
					if _, err := os.Stat(p); err == nil {
						paths = append(paths, p)
					}
				}
				if len(paths) == 0 {
					return fmt.Errorf("no databases in %s (expected one of %v)", cfg.DataDir, sqliteFiles)
				}
			}

			var failed error
			for _, p := range paths {
				if err := verifyOne(ctx, cmd, p, mode); err != nil {
					failed = errors.Join(failed, fmt.Errorf("%s: %w", p, err))
				}
			}
			return failed
		},
	}
}

func verifyOne(ctx context.Context, cmd *cli.Command, path string, mode sqlite.VerifyMode) error {
	w := out(cmd)
	size := "?"
	if fi, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	issues, err := sqlite.VerifyIntegrity(ctx, path, mode)
	if err != nil {
		return err
	}
	if issues != nil {
		fmt.Fprintf(w, "%s (%s): CORRUPT\n", path, size)
		for _, issue := range issues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
		return errCorrupt
	}
	_, err = fmt.Fprintf(w, "%s (%s): ok (%s)\n", path, size, mode)
	return err
}
