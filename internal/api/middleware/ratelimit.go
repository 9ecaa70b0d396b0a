// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ManuGH/offlinekit/internal/log"
)

// RateLimit allows limit requests per window for each key, using a sliding
// window counter. Keys default to the client IP. Rejected requests get a
// JSON 429 with Retry-After.
func RateLimit(limit int, window time.Duration, keys ...httprate.KeyFunc) func(http.Handler) http.Handler {
	if len(keys) == 0 {
		keys = []httprate.KeyFunc{httprate.KeyByIP}
	}
	retryAfter := strconv.Itoa(max(1, int(window.Seconds())))

	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(keys...),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":     "rate_limit_exceeded",
				"detail":    "too many requests, retry later",
				"requestId": log.RequestIDFromContext(r.Context()),
			})
		}),
	)
}

// ControlRateLimit limits lifecycle control messages per client IP.
func ControlRateLimit(perMinute int) func(http.Handler) http.Handler {
	return RateLimit(perMinute, time.Minute)
}
