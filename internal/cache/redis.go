// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/offlinekit/internal/manifest"
)

// RedisStore is a Redis-backed implementation of Store.
//
// Layout under Namespace:
//
//	<ns>:generations       SET of generation names
//	<ns>:gen:<generation>  HASH request key -> JSON entry
//	<ns>:active            STRING controlling generation
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    zerolog.Logger
	stats     counters
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string // Redis server address (host:port)
	Password  string // Redis password (optional)
	DB        int    // Redis database number
	Namespace string // key prefix, defaults to "offlinekit"
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", config.Addr).
		Int("db", config.DB).
		Msg("connected to Redis cache store")

	return newRedisStore(client, config.Namespace, logger), nil
}

func newRedisStore(client *redis.Client, namespace string, logger zerolog.Logger) *RedisStore {
	if namespace == "" {
		namespace = "offlinekit"
	}
	return &RedisStore{client: client, namespace: namespace, logger: logger}
}

func (s *RedisStore) generationsKey() string { return s.namespace + ":generations" }
func (s *RedisStore) activeKey() string      { return s.namespace + ":active" }
func (s *RedisStore) genKey(gen manifest.Generation) string {
	return s.namespace + ":gen:" + string(gen)
}

func (s *RedisStore) Get(ctx context.Context, gen manifest.Generation, key string) (*Entry, error) {
	val, err := s.client.HGet(ctx, s.genKey(gen), key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.stats.observe(false)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		// A corrupt entry is a miss; the next successful fetch overwrites it.
		s.logger.Warn().Err(err).Str("key", key).Msg("cache entry unmarshal failed")
		s.stats.observe(false)
		return nil, nil
	}
	s.stats.observe(true)
	return &e, nil
}

func (s *RedisStore) Put(ctx context.Context, gen manifest.Generation, e *Entry) error {
	return s.PutAll(ctx, gen, []*Entry{e})
}

func (s *RedisStore) PutAll(ctx context.Context, gen manifest.Generation, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	fields := make([]any, 0, len(entries)*2)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", e.Key, err)
		}
		fields = append(fields, e.Key, data)
	}

	// MULTI/EXEC: the generation and its entries appear together.
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.genKey(gen), fields...)
		pipe.SAdd(ctx, s.generationsKey(), string(gen))
		return nil
	})
	if err != nil {
		return err
	}
	s.stats.sets.Add(int64(len(entries)))
	return nil
}

func (s *RedisStore) Generations(ctx context.Context) ([]manifest.Generation, error) {
	members, err := s.client.SMembers(ctx, s.generationsKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	out := make([]manifest.Generation, 0, len(members))
	for _, m := range members {
		out = append(out, manifest.Generation(m))
	}
	return out, nil
}

func (s *RedisStore) DeleteGeneration(ctx context.Context, gen manifest.Generation) error {
	active, err := s.Active(ctx)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.genKey(gen))
		pipe.SRem(ctx, s.generationsKey(), string(gen))
		if active == gen {
			pipe.Del(ctx, s.activeKey())
		}
		return nil
	})
	return err
}

func (s *RedisStore) Active(ctx context.Context) (manifest.Generation, error) {
	v, err := s.client.Get(ctx, s.activeKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return manifest.Generation(strings.TrimSpace(v)), nil
}

func (s *RedisStore) SetActive(ctx context.Context, gen manifest.Generation) error {
	return s.client.Set(ctx, s.activeKey(), string(gen), 0).Err()
}

func (s *RedisStore) Stats() Stats { return s.stats.snapshot() }

// HealthCheck checks if Redis is available.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
