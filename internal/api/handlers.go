// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/playback"
)

const maxBodyBytes = 64 << 10

type streamView struct {
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Codec    string `json:"codec,omitempty"`
	Title    string `json:"title,omitempty"`
	Default  bool   `json:"default,omitempty"`
	Forced   bool   `json:"forced,omitempty"`
	External bool   `json:"external,omitempty"`
}

type trackView struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	External bool   `json:"external,omitempty"`
	Selected bool   `json:"selected,omitempty"`
}

type playbackView struct {
	State           string       `json:"state"`
	ItemID          string       `json:"itemId,omitempty"`
	ItemName        string       `json:"itemName,omitempty"`
	ItemType        string       `json:"itemType,omitempty"`
	PlayMethod      string       `json:"playMethod,omitempty"`
	Backend         string       `json:"backend,omitempty"`
	SourceID        string       `json:"sourceId,omitempty"`
	PlaySessionID   string       `json:"playSessionId,omitempty"`
	AudioIndex      *int         `json:"audioIndex,omitempty"`
	Subtitle        string       `json:"subtitle"`
	SubtitleDelayMs int64        `json:"subtitleDelayMs"`
	Paused          bool         `json:"paused"`
	Demoted         bool         `json:"demoted,omitempty"`
	LastError       string       `json:"lastError,omitempty"`
	Streams         []streamView `json:"streams,omitempty"`
	Tracks          []trackView  `json:"tracks,omitempty"`
}

func newPlaybackView(cp playback.CurrentPlayback) playbackView {
	v := playbackView{
		State:           string(cp.State),
		ItemID:          cp.ItemID,
		ItemName:        cp.ItemName,
		ItemType:        string(cp.ItemType),
		PlayMethod:      string(cp.PlayMethod),
		Backend:         string(cp.Backend),
		SourceID:        cp.MediaSource.ID,
		PlaySessionID:   cp.PlaySessionID,
		AudioIndex:      cp.AudioIndex,
		Subtitle:        cp.Subtitle.String(),
		SubtitleDelayMs: cp.SubtitleDelay.Milliseconds(),
		Paused:          cp.Paused,
		Demoted:         cp.Demoted,
		LastError:       cp.LastError,
	}
	for _, st := range cp.MediaSource.MediaStreams {
		title := st.DisplayTitle
		if title == "" {
			title = st.Title
		}
		v.Streams = append(v.Streams, streamView{
			Index:    st.Index,
			Type:     string(st.Type),
			Language: st.Language,
			Codec:    st.Codec,
			Title:    title,
			Default:  st.IsDefault,
			Forced:   st.IsForced,
			External: st.DeliveredExternally(),
		})
	}
	for _, t := range cp.Tracks {
		v.Tracks = append(v.Tracks, trackView{
			ID:       t.ID,
			Type:     string(t.Type),
			Language: t.Language,
			External: t.External,
			Selected: t.Selected,
		})
	}
	return v
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, w http.ResponseWriter, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPlayback(w http.ResponseWriter, _ *http.Request) {
	cp, _ := s.playback.Current()
	writeJSON(w, http.StatusOK, newPlaybackView(cp))
}

// writeCurrent answers a successful command with the resulting state.
func (s *Server) writeCurrent(w http.ResponseWriter) {
	cp, _ := s.playback.Current()
	writeJSON(w, http.StatusOK, newPlaybackView(cp))
}

type playRequest struct {
	ItemID     string `json:"itemId"`
	PositionMs int64  `json:"positionMs"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ItemID == "" || req.PositionMs < 0 {
		s.writeError(w, r, fmt.Errorf("%w: itemId is required and positionMs must not be negative", errBadRequest))
		return
	}
	if err := s.playback.Play(r.Context(), req.ItemID, time.Duration(req.PositionMs)*time.Millisecond); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCurrent(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.playback.Stop(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCurrent(w)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.playback.Pause(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCurrent(w)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.playback.Resume(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCurrent(w)
}

type seekRequest struct {
	PositionMs int64 `json:"positionMs"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PositionMs < 0 {
		s.writeError(w, r, fmt.Errorf("%w: positionMs must not be negative", errBadRequest))
		return
	}
	if err := s.playback.Seek(r.Context(), time.Duration(req.PositionMs)*time.Millisecond); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamsRequest changes streams. A missing audioIndex keeps the current
// audio; subtitle accepts a stream index, "disabled", "only_forced" or
// "unset" (keep current).
type streamsRequest struct {
	AudioIndex *int   `json:"audioIndex"`
	Subtitle   string `json:"subtitle"`
}

func (s *Server) handleChangeStreams(w http.ResponseWriter, r *http.Request) {
	var req streamsRequest
	if err := decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	subtitle, err := model.ParseSubtitleChoice(req.Subtitle)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := s.playback.ChangeStreams(r.Context(), req.AudioIndex, subtitle, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCurrent(w)
}

func (s *Server) handleClearStreams(w http.ResponseWriter, r *http.Request) {
	if err := s.playback.ClearChosenStreams(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subtitleDelayRequest struct {
	DelayMs int64 `json:"delayMs"`
}

func (s *Server) handleSubtitleDelay(w http.ResponseWriter, r *http.Request) {
	var req subtitleDelayRequest
	if err := decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.playback.SetSubtitleDelay(r.Context(), time.Duration(req.DelayMs)*time.Millisecond); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCurrent(w)
}

func (s *Server) handleSkipSegment(w http.ResponseWriter, r *http.Request) {
	if err := s.playback.SkipSegment(r.Context(), chi.URLParam(r, "segmentID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelNextUp(w http.ResponseWriter, _ *http.Request) {
	s.playback.CancelNextUp()
	s.writeCurrent(w)
}
