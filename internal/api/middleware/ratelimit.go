// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	xglog "github.com/ManuGH/jfplay/internal/log"
)

// RateLimitConfig bounds how fast one remote can drive the controller.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
	// KeyFunc groups requests. Defaults to the client IP.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit rejects requests over the limit with 429 and a Retry-After
// of one window.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowSize.Seconds())))
	logger := xglog.WithComponent("api")

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			reqID := xglog.RequestIDFromContext(r.Context())
			reqLogger := xglog.WithContext(r.Context(), logger)
			reqLogger.Debug().
				Str(xglog.FieldPath, r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("request rate limited")
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", reqID)
		}),
	)
}
