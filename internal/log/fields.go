// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldPlaySessionID = "play_session_id"
	FieldItemID        = "item_id"
	FieldSeriesID      = "series_id"
	FieldUserID        = "user_id"
	FieldSourceID      = "source_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldBackend   = "backend"

	// Media / stream fields
	FieldCodec         = "codec"
	FieldResolution    = "resolution"
	FieldFPS           = "fps"
	FieldPlayMethod    = "play_method"
	FieldAudioIndex    = "audio_index"
	FieldSubtitleIndex = "subtitle_index"
	FieldTrackType     = "track_type"
	FieldNativeIndex   = "native_index"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
