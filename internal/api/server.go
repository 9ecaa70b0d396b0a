// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the daemon over HTTP: the control endpoints under
// /_offlinekit, probes, metrics, and the cache manager for everything else.
package api

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/ManuGH/offlinekit/internal/appstate"
	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/health"
	"github.com/ManuGH/offlinekit/internal/progress"
)

// ControlPrefix is reserved for the daemon and never forwarded to the origin.
const ControlPrefix = "/_offlinekit"

// Deps are the collaborators the server routes to.
type Deps struct {
	Cache  *cachemgr.Manager
	State  *appstate.State
	Health *health.Manager
	// ControlRateLimit caps skip-waiting calls per minute per client.
	ControlRateLimit int
	// TracingService enables server spans when set.
	TracingService string
	Version        string
}

// Server is the HTTP surface. The progress session is attached once content
// is available, which may be after the server started.
type Server struct {
	deps     Deps
	progress atomic.Pointer[progress.Session]
	handler  http.Handler
}

// New builds the server and its routes.
func New(deps Deps) (*Server, error) {
	if deps.Cache == nil || deps.State == nil || deps.Health == nil {
		return nil, errors.New("api: cache, state and health are required")
	}
	if deps.ControlRateLimit <= 0 {
		deps.ControlRateLimit = 10
	}
	s := &Server{deps: deps}
	s.handler = s.routes()
	return s, nil
}

// SetProgress attaches the progress session.
func (s *Server) SetProgress(sess *progress.Session) {
	s.progress.Store(sess)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
