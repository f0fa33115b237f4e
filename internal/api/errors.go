// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/playback"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

var errBadRequest = errors.New("bad request")

// classify maps err to a status and a stable error slug.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, playback.ErrNotPlaying):
		return http.StatusConflict, "not_playing"
	case errors.Is(err, playback.ErrUnknownStream):
		return http.StatusUnprocessableEntity, "unknown_stream"
	case errors.Is(err, playback.ErrUnknownSegment):
		return http.StatusNotFound, "unknown_segment"
	case errors.Is(err, playback.ErrClosed):
		return http.StatusServiceUnavailable, "closed"
	case errors.Is(err, playback.ErrUnsupportedItem):
		return http.StatusUnprocessableEntity, "unsupported_item"
	case errors.Is(err, playback.ErrNoPlayableSource), errors.Is(err, playback.ErrNoMediaURL):
		return http.StatusUnprocessableEntity, "not_playable"
	case errors.Is(err, jellyfin.ErrNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, jellyfin.ErrUnauthorized):
		return http.StatusBadGateway, "server_unauthorized"
	case errors.Is(err, playback.ErrPlaybackInfo),
		errors.Is(err, jellyfin.ErrUpstreamUnavailable),
		errors.Is(err, jellyfin.ErrUpstreamError):
		return http.StatusBadGateway, "server_error"
	case errors.Is(err, playback.ErrPlayerFailed):
		return http.StatusInternalServerError, "player_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, slug := classify(err)
	resp := errorResponse{
		Error:     slug,
		Detail:    err.Error(),
		RequestID: xglog.RequestIDFromContext(r.Context()),
	}
	var le *playback.LoadError
	if errors.As(err, &le) {
		resp.Code = le.Code
	}

	logger := xglog.WithContext(r.Context(), s.logger)
	ev := logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = logger.Warn()
	}
	ev.Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, status, resp)
}
