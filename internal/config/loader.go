// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/offlinekit/internal/validate"
)

// Loader applies defaults, then the YAML file, then the environment.
type Loader struct {
	configPath string
	version    string
	// environ overrides os.Environ, for tests.
	environ map[string]string
}

// NewLoader creates a loader. An empty configPath skips the file layer.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load returns the validated configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(&cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if l.environ != nil {
		opts.Environment = l.environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DataDir != "" {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}
	}
	cfg.Origin = strings.TrimRight(cfg.Origin, "/")
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg. Unknown fields are fatal.
func (l *Loader) loadFile(cfg *Config) error {
	path := filepath.Clean(l.configPath)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// Validate checks the configuration and reports every problem.
func Validate(cfg Config) error {
	v := validate.New()

	v.ListenAddr("Listen", cfg.Listen)
	v.URL("Origin", cfg.Origin, "http", "https")
	v.Directory("DataDir", cfg.DataDir, false)
	v.File("Manifest", cfg.Manifest)

	v.OneOf("Cache.Backend", cfg.Cache.Backend, "sqlite", "badger", "redis", "memory")
	if cfg.Cache.Backend == "redis" {
		v.NotEmpty("Cache.Redis.Addr", cfg.Cache.Redis.Addr)
		v.Range("Cache.Redis.DB", cfg.Cache.Redis.DB, 0, 15)
	}
	v.NotEmpty("Cache.Prefix", cfg.Cache.Prefix)
	v.Range("Cache.InstallConcurrency", cfg.Cache.InstallConcurrency, 1, 64)
	v.MinDuration("Cache.FetchTimeout", cfg.Cache.FetchTimeout, 100*time.Millisecond)
	v.Positive("Cache.MaxBodyBytes", cfg.Cache.MaxBodyBytes)
	if cfg.Cache.RevalidateRate <= 0 {
		v.AddError("Cache.RevalidateRate", "must be positive", cfg.Cache.RevalidateRate)
	}

	v.OneOf("Progress.Backend", cfg.Progress.Backend, "sqlite", "file", "memory")
	v.NotEmpty("Progress.Collection", cfg.Progress.Collection)
	if !strings.HasPrefix(cfg.Progress.ContentPath, "/") {
		v.AddError("Progress.ContentPath", "must be an absolute path", cfg.Progress.ContentPath)
	}

	v.MinDuration("Probe.Interval", cfg.Probe.Interval, time.Second)
	v.MinDuration("Probe.Timeout", cfg.Probe.Timeout, 100*time.Millisecond)

	v.Range("API.ControlRateLimit", cfg.API.ControlRateLimit, 1, 10000)
	v.MinDuration("API.ShutdownTimeout", cfg.API.ShutdownTimeout, 0)

	v.OneOf("Log.Level", strings.ToLower(cfg.Log.Level), "trace", "debug", "info", "warn", "error")

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, "grpc", "http")
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
