// SPDX-License-Identifier: MIT

// Package middleware provides the HTTP ingress stack shared by the control
// API and the cache front.
package middleware

import (
	"github.com/go-chi/chi/v5"
)

// StackConfig selects the optional layers of the ingress stack.
type StackConfig struct {
	EnableMetrics bool
	// TracingService names server spans; empty disables tracing.
	TracingService string
	EnableLogging  bool
}

// NewRouter returns a chi router with the stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs, outermost first: panic recovery, request IDs,
// tracing, metrics, then access logging, so the log line sees the final
// status and the request ID of every request.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer, RequestID)
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.EnableLogging {
		r.Use(AccessLog())
	}
}
