// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus collectors for the playback core.
package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	playStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_play_starts_total",
		Help: "Playback starts by negotiated play method and backend",
	}, []string{"method", "backend"})

	streamChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_stream_changes_total",
		Help: "Stream change requests by resolution path (in_place, renegotiate, failed)",
	}, []string{"path"})

	trackSelectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_track_selection_total",
		Help: "Server index to native track resolutions by type, backend and outcome",
	}, []string{"type", "backend", "resolved"})

	transcodeFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_transcode_fallback_total",
		Help: "Automatic demotions to transcoding after a player error, by original method",
	}, []string{"from"})

	playbackErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_playback_errors_total",
		Help: "Fatal playback errors by reason",
	}, []string{"reason"})

	refreshRateSwitchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_refresh_rate_switch_total",
		Help: "Display mode switch outcomes (skipped, confirmed, timed_out, cancelled, failed)",
	}, []string{"outcome"})

	segmentActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_segment_actions_total",
		Help: "Media segment actions by segment type and action",
	}, []string{"type", "action"})

	processSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jfplay_process_signals_total",
		Help: "Signals sent to helper process groups by signal and result",
	}, []string{"signal", "result"})
)

// RecordPlayStart counts a successful playback start.
func RecordPlayStart(method, backend string) {
	playStartsTotal.WithLabelValues(normalizeMethod(method), normalizeBackend(backend)).Inc()
}

// RecordStreamChange counts a stream change by the path that handled it.
func RecordStreamChange(path string) {
	switch path {
	case "in_place", "renegotiate", "failed":
	default:
		path = "unknown"
	}
	streamChangesTotal.WithLabelValues(path).Inc()
}

// RecordTrackSelection counts one track resolution attempt.
func RecordTrackSelection(trackType, backend string, resolved bool) {
	trackSelectionTotal.WithLabelValues(strings.ToLower(trackType), normalizeBackend(backend), strconv.FormatBool(resolved)).Inc()
}

// RecordTranscodeFallback counts a demotion to transcoding.
func RecordTranscodeFallback(from string) {
	transcodeFallbackTotal.WithLabelValues(normalizeMethod(from)).Inc()
}

// RecordPlaybackError counts a fatal playback error.
func RecordPlaybackError(reason string) {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown"
	}
	playbackErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordRefreshRateSwitch counts a display mode switch outcome.
func RecordRefreshRateSwitch(outcome string) {
	refreshRateSwitchTotal.WithLabelValues(outcome).Inc()
}

// RecordSegmentAction counts a segment prompt or skip.
func RecordSegmentAction(segmentType, action string) {
	segmentActionsTotal.WithLabelValues(strings.ToLower(segmentType), action).Inc()
}

// RecordProcessSignal counts a signal sent to a helper process group.
func RecordProcessSignal(signal, result string) {
	processSignalsTotal.WithLabelValues(signal, result).Inc()
}

func normalizeMethod(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "directplay":
		return "direct_play"
	case "directstream":
		return "direct_stream"
	case "transcode":
		return "transcode"
	default:
		return "unknown"
	}
}

func normalizeBackend(backend string) string {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "mpv", "media3":
		return strings.ToLower(strings.TrimSpace(backend))
	default:
		return "other"
	}
}
