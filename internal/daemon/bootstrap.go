// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/offlinekit/internal/api"
	"github.com/ManuGH/offlinekit/internal/appstate"
	"github.com/ManuGH/offlinekit/internal/cache"
	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/config"
	"github.com/ManuGH/offlinekit/internal/content"
	"github.com/ManuGH/offlinekit/internal/health"
	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/manifest"
	"github.com/ManuGH/offlinekit/internal/platform/httpx"
	"github.com/ManuGH/offlinekit/internal/progress"
	"github.com/ManuGH/offlinekit/internal/progress/records"
	"github.com/ManuGH/offlinekit/internal/telemetry"
)

const serviceName = "offlinekit"

// Runtime is the wired daemon: stores, cache manager, state, and API.
type Runtime struct {
	Config    config.Config
	Telemetry *telemetry.Provider
	Store     cache.Store
	Cache     *cachemgr.Manager
	State     *appstate.State
	Health    *health.Manager
	Records   records.Backend
	API       *api.Server

	progress atomic.Pointer[progress.Session]
	attachMu sync.Mutex
	logger   zerolog.Logger
}

// Bootstrap wires every component. A previously activated generation is
// restored first, then the configured manifest is installed. Startup fails
// only when neither leaves a generation to serve.
func Bootstrap(ctx context.Context, cfg config.Config) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg, logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, err
	}

	rt.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	rt.Store, err = OpenCacheStore(cfg)
	if err != nil {
		return nil, err
	}

	rt.Cache, err = NewCacheManager(cfg, rt.Store, cfg.Cache.SkipWaiting)
	if err != nil {
		return nil, err
	}

	if err := rt.prepareGeneration(ctx); err != nil {
		return nil, err
	}

	rt.Records, err = records.Open(records.Options{Backend: cfg.Progress.Backend, Dir: cfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("open progress records: %w", err)
	}

	rt.State = appstate.New(rt.Cache.Generation())
	rt.Health = health.NewManager(cfg.Version)
	rt.Health.RegisterChecker(health.NewGenerationChecker(rt.Cache.Status))
	rt.Health.RegisterChecker(health.NewPingChecker("cache_store", pinger(rt.Store)))
	rt.Health.RegisterChecker(health.NewPingChecker("progress_store", pinger(rt.Records)))
	rt.Health.RegisterChecker(health.NewConnectivityChecker(rt.State.Online))

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = serviceName
	}
	rt.API, err = api.New(api.Deps{
		Cache:            rt.Cache,
		State:            rt.State,
		Health:           rt.Health,
		ControlRateLimit: cfg.API.ControlRateLimit,
		TracingService:   tracing,
		Version:          cfg.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("init api: %w", err)
	}

	if err := rt.AttachProgress(ctx); err != nil {
		rt.logger.Warn().Err(err).
			Str(log.FieldEvent, "daemon.progress_deferred").
			Msg("progress unavailable until content can be loaded")
	}
	return rt, nil
}

// NewCacheManager builds a cache manager over store for the configured
// origin. skipWaiting overrides cfg.Cache.SkipWaiting.
func NewCacheManager(cfg config.Config, store cache.Store, skipWaiting bool) (*cachemgr.Manager, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	m, err := cachemgr.New(cachemgr.Options{
		Store:              store,
		Origin:             origin,
		Client:             httpx.NewClient(cfg.Cache.FetchTimeout, httpx.WithTracing(), httpx.WithUserAgent(serviceName+"/"+cfg.Version)),
		Prefix:             cfg.Cache.Prefix,
		SkipWaiting:        skipWaiting,
		InstallConcurrency: cfg.Cache.InstallConcurrency,
		FetchTimeout:       cfg.Cache.FetchTimeout,
		MaxBodyBytes:       cfg.Cache.MaxBodyBytes,
		RevalidateRate:     rate.Limit(cfg.Cache.RevalidateRate),
	})
	if err != nil {
		return nil, fmt.Errorf("init cache manager: %w", err)
	}
	return m, nil
}

// OpenCacheStore opens the configured cache backend under the data dir.
func OpenCacheStore(cfg config.Config) (cache.Store, error) {
	store, err := cache.NewStore(cache.Options{
		Backend: cfg.Cache.Backend,
		Dir:     cfg.DataDir,
		Redis: cache.RedisConfig{
			Addr:      cfg.Cache.Redis.Addr,
			Password:  cfg.Cache.Redis.Password,
			DB:        cfg.Cache.Redis.DB,
			Namespace: cfg.Cache.Redis.Namespace,
		},
		Logger: log.WithComponent("cache"),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return store, nil
}

// prepareGeneration restores the persisted generation and installs the
// configured manifest on top of it.
func (rt *Runtime) prepareGeneration(ctx context.Context) error {
	restored, err := rt.Cache.Restore(ctx)
	if err != nil {
		rt.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.restore_failed").Msg("could not restore generation")
	}
	if restored {
		rt.logger.Info().
			Str(log.FieldEvent, "daemon.restored").
			Str(log.FieldGeneration, string(rt.Cache.Generation())).
			Msg("restored active generation")
	}

	if rt.Config.Manifest == "" {
		if !restored {
			return fmt.Errorf("%w: no manifest configured and nothing installed", ErrNothingToServe)
		}
		return nil
	}

	man, err := manifest.Load(rt.Config.Manifest)
	if err == nil {
		err = rt.Cache.Install(ctx, man)
	}
	switch {
	case err == nil:
		return nil
	case rt.Cache.Generation() != "":
		rt.logger.Warn().Err(err).
			Str(log.FieldEvent, "daemon.install_deferred").
			Msg("install failed, serving restored generation")
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrNothingToServe, err)
	}
}

// Install installs a new manifest; failures keep the current generation.
func (rt *Runtime) Install(ctx context.Context, man *manifest.Manifest) {
	if err := rt.Cache.Install(ctx, man); err != nil {
		rt.logger.Error().Err(err).
			Str(log.FieldEvent, "daemon.install_failed").
			Str("build", man.Build()).
			Msg("install failed, keeping current generation")
	}
}

// AttachProgress loads the question bank through the cache and attaches the
// session to it. The first call opens the session; later calls, one per
// activation, reload the same session so transitions stay serialized
// against the repair.
func (rt *Runtime) AttachProgress(ctx context.Context) error {
	bank, err := content.Fetch(ctx, rt.Cache, rt.Config.Progress.ContentPath)
	if err != nil {
		return err
	}

	rt.attachMu.Lock()
	defer rt.attachMu.Unlock()

	sess := rt.progress.Load()
	if sess != nil {
		if err := sess.Reload(ctx, bank); err != nil {
			return fmt.Errorf("reload progress: %w", err)
		}
	} else {
		sess, err = progress.Open(ctx, progress.Options{
			Backend:    rt.Records,
			Collection: rt.Config.Progress.Collection,
			Items:      bank,
		})
		if err != nil {
			return fmt.Errorf("open progress: %w", err)
		}
		rt.progress.Store(sess)
		rt.API.SetProgress(sess)
	}
	rt.logger.Info().
		Str(log.FieldEvent, "daemon.progress_attached").
		Str(log.FieldCollection, sess.Collection()).
		Int("items", bank.Len()).
		Msg("progress session ready")
	return nil
}

// Progress returns the attached session, or nil.
func (rt *Runtime) Progress() *progress.Session {
	return rt.progress.Load()
}

// Close releases everything Bootstrap opened.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Cache != nil {
		errs = append(errs, rt.Cache.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	if rt.Records != nil {
		errs = append(errs, rt.Records.Close())
	}
	if rt.Telemetry != nil {
		errs = append(errs, rt.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func pinger(v any) func(context.Context) error {
	if hc, ok := v.(healthChecker); ok {
		return hc.HealthCheck
	}
	return nil
}
