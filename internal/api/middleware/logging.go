// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/ManuGH/offlinekit/internal/log"
)

// AccessLog logs one line per request after it completed.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			logger := log.WithComponentFromContext(r.Context(), "http")
			ev := logger.Debug()
			if sw.status >= http.StatusInternalServerError {
				ev = logger.Warn()
			}
			ev.Str(log.FieldEvent, "http.request").
				Str("method", r.Method).
				Str(log.FieldPath, r.URL.Path).
				Int(log.FieldStatus, sw.status).
				Int("bytes", sw.bytes).
				Str(log.FieldSource, sw.Header().Get("X-Cache-Source")).
				Dur("duration", time.Since(start)).
				Msg("request served")
		})
	}
}
