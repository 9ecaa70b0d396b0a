// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/offlinekit/internal/config"
	"github.com/ManuGH/offlinekit/internal/log"
)

// PerformStartupChecks validates the environment before the daemon opens
// its stores.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	if cfg.Manifest != "" {
		if err := checkFileReadable(cfg.Manifest); err != nil {
			return fmt.Errorf("manifest not readable: %w", err)
		}
		logger.Debug().Str(log.FieldEvent, "startup.manifest_ok").Str(log.FieldPath, cfg.Manifest).Msg("manifest is readable")
	} else {
		logger.Warn().Msg("no manifest configured; serving only a previously installed generation")
	}

	warnVolatile(logger, cfg)

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("directory does not exist: %s", path)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("path is not a directory: %s", path)
	}

	probe, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	logger.Debug().Str(log.FieldEvent, "startup.data_dir_ok").Str(log.FieldPath, path).Msg("data directory is writable")
	return nil
}

// warnVolatile flags setups that lose the offline cache or progress on
// restart.
func warnVolatile(logger zerolog.Logger, cfg config.Config) {
	if strings.EqualFold(cfg.Cache.Backend, "memory") {
		logger.Warn().
			Str("cache_backend", cfg.Cache.Backend).
			Msg("cache uses in-memory store; generations are lost on restart")
	}
	if strings.EqualFold(cfg.Progress.Backend, "memory") {
		logger.Warn().
			Str("progress_backend", cfg.Progress.Backend).
			Msg("progress uses in-memory records; learner state is lost on restart")
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; cached data and progress may be lost on reboot")
	}
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config; verifying readability is expected
	if err != nil {
		return err
	}
	return f.Close()
}
