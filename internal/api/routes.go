// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/offlinekit/internal/api/middleware"
)

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.deps.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(ControlPrefix, func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.With(middleware.ControlRateLimit(s.deps.ControlRateLimit)).
			Post("/skip-waiting", s.handleSkipWaiting)

		r.Route("/progress", func(r chi.Router) {
			r.Use(s.tagCollection)
			r.Get("/", s.handleProgress)
			r.Post("/answer", s.handleAnswer)
			r.Post("/next", s.handleAdvance(1))
			r.Post("/prev", s.handleAdvance(-1))
			r.Post("/shuffle", s.handleShuffle)
			r.Post("/reset", s.handleReset)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeProblem(w, r, http.StatusNotFound, "not_found", "")
		})
	})

	// Everything else is the offline-first front.
	r.Handle("/*", s.deps.Cache)
	return r
}
