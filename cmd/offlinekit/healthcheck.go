// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ManuGH/offlinekit/internal/platform/httpx"
)

func healthcheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "healthcheck",
		Usage: "probe a running daemon (for container health checks)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mode",
				Usage: "ready or live",
				Value: "ready",
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "daemon base URL; defaults to the configured listen address",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "check timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := "/readyz"
			switch mode := cmd.String("mode"); mode {
			case "ready":
			case "live":
				path = "/healthz"
			default:
				return fmt.Errorf("unknown mode %q (want ready or live)", mode)
			}

			base := cmd.String("url")
			if base == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				base = localURL(cfg.Listen)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+path, nil)
			if err != nil {
				return err
			}
			resp, err := httpx.NewClient(cmd.Duration("timeout")).Do(req)
			if err != nil {
				return fmt.Errorf("healthcheck failed (network): %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck failed (status): %s", resp.Status)
			}
			_, err = fmt.Fprintf(out(cmd), "healthcheck ok (%s)\n", cmd.String("mode"))
			return err
		},
	}
}

// localURL turns a listen address like ":8780" into a loopback URL.
func localURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
