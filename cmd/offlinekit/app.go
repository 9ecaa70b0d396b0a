// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ManuGH/offlinekit/internal/config"
	"github.com/ManuGH/offlinekit/internal/log"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "offlinekit",
		Usage:   "offline-first cache front and progress store",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (YAML)",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			installCommand(),
			progressCommand(),
			validateCommand(),
			verifyCommand(),
			healthcheckCommand(),
			versionCommand(),
		},
	}
}

// loadConfig loads the configuration and points the logger at stderr so
// command output stays parseable.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.NewLoader(cmd.String("config"), version).Load()
	if err != nil {
		return cfg, err
	}
	log.Reconfigure(log.Config{
		Level:   cfg.Log.Level,
		Output:  errWriter(cmd),
		Service: "offlinekit",
		Version: version,
	})
	return cfg, nil
}

func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print version and build info",
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(out(cmd), "%s (commit: %s, built: %s)\n", version, commit, buildDate)
			return err
		},
	}
}
