// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"unicode/utf8"

	xglog "github.com/ManuGH/jfplay/internal/log"
)

// Recoverer turns a handler panic into a logged 500 instead of a crash.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			buf := make([]byte, 8192)
			n := runtime.Stack(buf, false)

			reqID := xglog.RequestIDFromContext(r.Context())
			path := r.URL.Path
			if !utf8.ValidString(path) {
				path = strings.ToValidUTF8(path, "")
			}

			logger := xglog.WithContext(r.Context(), xglog.WithComponent("api"))
			logger.Error().
				Str(xglog.FieldEvent, "panic.recovered").
				Str("method", r.Method).
				Str(xglog.FieldPath, path).
				Interface("panic_value", rec).
				Str("stack_trace", string(buf[:n])).
				Msg("panic recovered in HTTP handler")

			writeError(w, http.StatusInternalServerError, "internal_error", reqID)
		}()
		next.ServeHTTP(w, r)
	})
}

// writeError answers with the control API's error envelope.
func writeError(w http.ResponseWriter, status int, slug, requestID string) {
	body := map[string]string{"error": slug}
	if requestID != "" {
		body["requestId"] = requestID
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
