// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the daemon configuration with precedence
// ENV > YAML file > defaults, and watches the asset manifest for new
// deployments.
package config

import (
	"time"
)

// EnvPrefix prefixes every environment variable, e.g. OFFLINEKIT_ORIGIN.
const EnvPrefix = "OFFLINEKIT_"

// Config is the complete daemon configuration.
type Config struct {
	// Listen is the address the cache front and API bind to.
	Listen string `yaml:"listen" env:"LISTEN"`
	// Origin is the upstream the cache manager fronts.
	Origin string `yaml:"origin" env:"ORIGIN"`
	// DataDir holds the SQLite/badger databases and record files.
	DataDir string `yaml:"dataDir" env:"DATA_DIR"`
	// Manifest is the asset manifest file (YAML or JSON).
	Manifest string `yaml:"manifest" env:"MANIFEST"`

	Cache     CacheConfig     `yaml:"cache" envPrefix:"CACHE_"`
	Progress  ProgressConfig  `yaml:"progress" envPrefix:"PROGRESS_"`
	Probe     ProbeConfig     `yaml:"probe" envPrefix:"PROBE_"`
	API       APIConfig       `yaml:"api" envPrefix:"API_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`

	// Version is set from the binary, never from file or env.
	Version string `yaml:"-"`
}

// CacheConfig configures the cache store and manager.
type CacheConfig struct {
	// Backend is sqlite, badger, redis or memory.
	Backend            string        `yaml:"backend" env:"BACKEND"`
	Prefix             string        `yaml:"prefix" env:"PREFIX"`
	SkipWaiting        bool          `yaml:"skipWaiting" env:"SKIP_WAITING"`
	InstallConcurrency int           `yaml:"installConcurrency" env:"INSTALL_CONCURRENCY"`
	FetchTimeout       time.Duration `yaml:"fetchTimeout" env:"FETCH_TIMEOUT"`
	MaxBodyBytes       int64         `yaml:"maxBodyBytes" env:"MAX_BODY_BYTES"`
	// RevalidateRate caps background refreshes per second.
	RevalidateRate float64 `yaml:"revalidateRate" env:"REVALIDATE_RATE"`
	Redis              RedisConfig   `yaml:"redis" envPrefix:"REDIS_"`
}

// RedisConfig is used when Cache.Backend is redis.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// ProgressConfig configures the progress store.
type ProgressConfig struct {
	// Backend is sqlite, file or memory.
	Backend    string `yaml:"backend" env:"BACKEND"`
	Collection string `yaml:"collection" env:"COLLECTION"`
	// ContentPath is the question bank path on the origin.
	ContentPath string `yaml:"contentPath" env:"CONTENT_PATH"`
}

// ProbeConfig configures the connectivity probe.
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	Path     string        `yaml:"path" env:"PATH"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	// ControlRateLimit caps skip-waiting requests per minute per client.
	ControlRateLimit int `yaml:"controlRateLimit" env:"CONTROL_RATE_LIMIT"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	Exporter     string  `yaml:"exporter" env:"EXPORTER"`
	Endpoint     string  `yaml:"endpoint" env:"ENDPOINT"`
	SamplingRate float64 `yaml:"samplingRate" env:"SAMPLING_RATE"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:  ":8780",
		DataDir: "data",
		Cache: CacheConfig{
			Backend:            "sqlite",
			Prefix:             "offlinekit-cache",
			InstallConcurrency: 4,
			FetchTimeout:       10 * time.Second,
			MaxBodyBytes:       32 << 20,
			RevalidateRate:     20,
			Redis:              RedisConfig{Namespace: "offlinekit"},
		},
		Progress: ProgressConfig{
			Backend:     "sqlite",
			Collection:  "qbank",
			ContentPath: "/data/qbank.json",
		},
		Probe: ProbeConfig{
			Interval: 30 * time.Second,
			Path:     "/",
			Timeout:  3 * time.Second,
		},
		API: APIConfig{
			ControlRateLimit: 10,
			ShutdownTimeout:  10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
