// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/offlinekit/internal/log"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	// shutdownSlack lets hooks finish after the server drained.
	shutdownSlack = 5 * time.Second
)

// ShutdownHook performs cleanup during graceful shutdown.
type ShutdownHook func(ctx context.Context) error

// Manager owns the HTTP listener that serves the cache front and the
// control API.
type Manager interface {
	// Start binds, serves and blocks until ctx ends or the server fails.
	// A manager starts once.
	Start(ctx context.Context) error
	// Shutdown drains the server, then runs hooks in reverse registration
	// order.
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
	// Addr returns the bound address once listening, else "".
	Addr() string
}

type lifecycle int

const (
	stateNew lifecycle = iota
	stateServing
	stateStopping
)

type namedHook struct {
	name string
	fn   ShutdownHook
}

type manager struct {
	cfg    ServerConfig
	deps   Deps
	logger zerolog.Logger

	mu       sync.Mutex
	state    lifecycle
	server   *http.Server
	listener net.Listener
	hooks    []namedHook
}

// NewManager validates deps and returns a manager ready to Start.
func NewManager(cfg ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &manager{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str(log.FieldComponent, "manager").Logger(),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	srv, ln, err := m.listen(ctx)
	if err != nil {
		return err
	}
	m.logger.Info().
		Str(log.FieldEvent, "daemon.listening").
		Str("addr", ln.Addr().String()).
		Dur("shutdown_timeout", m.shutdownTimeout()).
		Msg("serving")

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		m.logger.Error().Err(err).Str(log.FieldEvent, "daemon.serve_failed").Msg("HTTP server failed")
		return errors.Join(fmt.Errorf("HTTP server: %w", err), m.shutdownDetached(ctx))
	case <-ctx.Done():
		m.logger.Info().Str(log.FieldEvent, "daemon.stop_requested").Msg("shutdown signal received")
		return m.shutdownDetached(ctx)
	}
}

func (m *manager) listen(ctx context.Context) (*http.Server, net.Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateNew {
		return nil, nil, errors.New("manager already started")
	}
	m.state = stateServing

	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", m.cfg.ListenAddr, err)
	}
	m.listener = ln
	m.server = &http.Server{
		Handler:           m.deps.Handler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
		MaxHeaderBytes:    m.cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	return m.server, ln, nil
}

// shutdownDetached outlives a cancelled parent but stays bounded.
func (m *manager) shutdownDetached(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.shutdownTimeout()+shutdownSlack)
	defer cancel()
	return m.Shutdown(sctx)
}

func (m *manager) shutdownTimeout() time.Duration {
	if m.cfg.ShutdownTimeout > 0 {
		return m.cfg.ShutdownTimeout
	}
	return defaultShutdownTimeout
}

func (m *manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case stateNew:
		m.mu.Unlock()
		return ErrManagerNotStarted
	case stateStopping:
		m.mu.Unlock()
		return nil
	}
	m.state = stateStopping
	srv := m.server
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.shutdownTimeout())
	defer cancel()

	var errs []error
	if err := srv.Shutdown(sctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		err := h.fn(sctx)
		ev := m.logger.Debug()
		if err != nil {
			ev = m.logger.Error().Err(err)
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
		ev.Str(log.FieldEvent, "daemon.hook_ran").
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook")
	}

	if err := errors.Join(errs...); err != nil {
		m.logger.Error().Int("error_count", len(errs)).Str(log.FieldEvent, "daemon.stopped").Msg("stopped with errors")
		return fmt.Errorf("shutdown: %w", err)
	}
	m.logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("stopped cleanly")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: hook})
}
