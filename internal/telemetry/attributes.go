// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Playback attributes
	PlaybackItemKey        = "playback.item_id"
	PlaybackSourceKey      = "playback.source_id"
	PlaybackMethodKey      = "playback.method"
	PlaybackBackendKey     = "playback.backend"
	PlaybackAudioIndexKey  = "playback.audio_index"
	PlaybackSubtitleKey    = "playback.subtitle"
	PlaybackSessionKey     = "playback.play_session_id"
	PlaybackPositionMSKey  = "playback.position_ms"
	PlaybackForceTranscode = "playback.force_transcode"

	// DeviceNameKey is the client device name reported to the server.
	DeviceNameKey = "jfplay.device_name"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PlaybackAttributes describes a negotiation attempt. Empty values are omitted.
func PlaybackAttributes(itemID, sourceID, method, backend string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if itemID != "" {
		attrs = append(attrs, attribute.String(PlaybackItemKey, itemID))
	}
	if sourceID != "" {
		attrs = append(attrs, attribute.String(PlaybackSourceKey, sourceID))
	}
	if method != "" {
		attrs = append(attrs, attribute.String(PlaybackMethodKey, method))
	}
	if backend != "" {
		attrs = append(attrs, attribute.String(PlaybackBackendKey, backend))
	}
	return attrs
}

// StreamAttributes describes the negotiated streams of a load.
func StreamAttributes(playSessionID string, audioIndex *int, subtitle string, position time.Duration, forceTranscode bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(PlaybackSubtitleKey, subtitle),
		attribute.Int64(PlaybackPositionMSKey, position.Milliseconds()),
		attribute.Bool(PlaybackForceTranscode, forceTranscode),
	}
	if playSessionID != "" {
		attrs = append(attrs, attribute.String(PlaybackSessionKey, playSessionID))
	}
	if audioIndex != nil {
		attrs = append(attrs, attribute.Int(PlaybackAudioIndexKey, *audioIndex))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
