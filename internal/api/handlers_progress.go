// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/progress"
)

const maxBodyBytes = 4 << 10

// ProgressResponse carries the state after a read or transition.
type ProgressResponse struct {
	Collection string         `json:"collection"`
	State      progress.State `json:"state"`
	View       progress.View  `json:"view"`
	Label      string         `json:"label"`
	Summary    string         `json:"summary"`
	// Accepted is set by answer: false when the answer was ignored.
	Accepted *bool `json:"accepted,omitempty"`
}

func newProgressResponse(sess *progress.Session, st progress.State) ProgressResponse {
	view := progress.ViewOf(st)
	return ProgressResponse{
		Collection: sess.Collection(),
		State:      st,
		View:       view,
		Label:      view.Label(),
		Summary:    view.Summary(),
	}
}

// tagCollection adds the attached collection to the request's log context.
func (s *Server) tagCollection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess := s.progress.Load(); sess != nil {
			r = r.WithContext(log.ContextWithCollection(r.Context(), sess.Collection()))
		}
		next.ServeHTTP(w, r)
	})
}

// session returns the attached session or answers 503.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*progress.Session, bool) {
	sess := s.progress.Load()
	if sess == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "progress_unavailable", "content has not been loaded yet")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newProgressResponse(sess, sess.State()))
}

type answerRequest struct {
	Choice *int `json:"choice"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req answerRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if req.Choice == nil {
		writeBadRequest(w, r, "choice is required")
		return
	}

	st, accepted, err := sess.Answer(r.Context(), *req.Choice)
	if err != nil {
		writeInternal(w, r, "api.progress_persist_failed", err)
		return
	}
	resp := newProgressResponse(sess, st)
	resp.Accepted = &accepted
	writeJSON(w, http.StatusOK, resp)
}

// handleAdvance moves by sign*n where n comes from ?n= and defaults to 1.
func (s *Server) handleAdvance(sign int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		n := 1
		if raw := r.URL.Query().Get("n"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				writeBadRequest(w, r, "n must be a positive integer")
				return
			}
			n = v
		}
		st, err := sess.Advance(r.Context(), sign*n)
		if err != nil {
			writeInternal(w, r, "api.progress_persist_failed", err)
			return
		}
		writeJSON(w, http.StatusOK, newProgressResponse(sess, st))
	}
}

func (s *Server) handleShuffle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st, err := sess.Shuffle(r.Context())
	if err != nil {
		writeInternal(w, r, "api.progress_persist_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, newProgressResponse(sess, st))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st, err := sess.Reset(r.Context())
	if err != nil {
		writeInternal(w, r, "api.progress_persist_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, newProgressResponse(sess, st))
}
