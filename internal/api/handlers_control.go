// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/ManuGH/offlinekit/internal/appstate"
	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/log"
)

// StatusResponse is returned by GET /_offlinekit/status.
type StatusResponse struct {
	Version  string            `json:"version"`
	Cache    cachemgr.Status   `json:"cache"`
	App      appstate.Snapshot `json:"app"`
	Progress *ProgressStatus   `json:"progress,omitempty"`
}

// ProgressStatus summarizes the attached session.
type ProgressStatus struct {
	Collection string `json:"collection"`
	Phase      string `json:"phase"`
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		Version: s.deps.Version,
		Cache:   s.deps.Cache.Status(),
		App:     s.deps.State.Snapshot(),
	}
	if sess := s.progress.Load(); sess != nil {
		resp.Progress = &ProgressStatus{Collection: sess.Collection(), Phase: sess.Phase().String()}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// SkipWaitingResponse reports whether a waiting generation was activated.
type SkipWaitingResponse struct {
	Activated bool            `json:"activated"`
	Cache     cachemgr.Status `json:"cache"`
}

func (s *Server) handleSkipWaiting(w http.ResponseWriter, r *http.Request) {
	before := s.deps.Cache.Status()
	if err := s.deps.Cache.SkipWaiting(r.Context()); err != nil {
		writeInternal(w, r, "api.skip_waiting_failed", err)
		return
	}
	after := s.deps.Cache.Status()

	activated := before.Pending != "" && after.Active == before.Pending
	if activated {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str(log.FieldEvent, "api.skip_waiting").
			Str(log.FieldGeneration, string(after.Active)).
			Msg("waiting generation activated on request")
	}
	writeJSON(w, http.StatusOK, SkipWaitingResponse{Activated: activated, Cache: after})
}
