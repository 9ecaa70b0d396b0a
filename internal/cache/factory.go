// SPDX-License-Identifier: MIT

package cache

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend string // sqlite (default), memory, redis, badger
	Dir     string // data directory for sqlite and badger; empty keeps them in memory
	Redis   RedisConfig
	Logger  zerolog.Logger
}

// NewStore creates a cache store for the configured backend.
func NewStore(opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		if opts.Dir == "" {
			return NewMemoryStore(), nil
		}
		return NewSqliteStore(filepath.Join(opts.Dir, "cache.sqlite"))
	case "memory":
		return NewMemoryStore(), nil
	case "badger":
		if opts.Dir == "" {
			return OpenBadgerStore("")
		}
		return OpenBadgerStore(filepath.Join(opts.Dir, "cache.badger"))
	case "redis":
		if opts.Redis.Addr == "" {
			return nil, fmt.Errorf("redis cache store requires an address")
		}
		return NewRedisStore(opts.Redis, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown cache store backend: %s (supported: sqlite, memory, badger, redis)", backend)
	}
}
