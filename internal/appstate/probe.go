// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package appstate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Prober checks origin reachability. Any HTTP response counts as online;
// only transport failures mean offline.
type Prober struct {
	Client   *http.Client
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// Check performs one probe.
func (p *Prober) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

// Run probes immediately and then every Interval, feeding s, until ctx is
// cancelled.
func (p *Prober) Run(ctx context.Context, s *State) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		err := p.Check(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if s.SetOnline(err == nil) && err != nil {
			s.logger.Warn().Err(err).Str("url", p.URL).Msg("origin unreachable")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
