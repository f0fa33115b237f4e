// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package trackselect maps server stream indices onto native player tracks
// and builds the resulting selection override.
package trackselect

import (
	"strconv"
	"strings"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/metrics"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/rs/zerolog"
)

// Result is the outcome of expressing an (audio, subtitle) pair natively.
type Result struct {
	Selection        player.Selection
	AudioSelected    bool
	SubtitleSelected bool
}

// BothSelected reports whether the pair can be applied in place.
func (r Result) BothSelected() bool {
	return r.AudioSelected && r.SubtitleSelected
}

// Request describes the desired streams.
type Request struct {
	Backend            player.Backend
	SupportsDirectPlay bool
	// AudioIndex is nil when audio should stay as is.
	AudioIndex *int
	Subtitle   model.SubtitleChoice
	Source     *jellyfin.MediaSource
}

// ParseNativeIndex extracts the trailing number of a native track id:
// "3", "1:3" and "1:e:3" all give 3. Unparseable ids give false.
func ParseNativeIndex(id string) (int, bool) {
	if i := strings.LastIndexByte(id, ':'); i >= 0 {
		id = id[i+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return 0, false
	}
	return n, true
}

// isExternalID reports whether id names the side-loaded subtitle serverIndex.
func isExternalID(id string, serverIndex int) bool {
	want := player.ExternalSubtitleID(serverIndex)
	return id == want || strings.HasSuffix(id, ":"+want)
}

// CreateTrackSelections builds on params the overrides needed for req.
func CreateTrackSelections(params player.Selection, tracks []player.Track, req Request) Result {
	return createTrackSelections(xglog.WithComponent("trackselect"), params, tracks, req)
}

func createTrackSelections(logger zerolog.Logger, params player.Selection, tracks []player.Track, req Request) Result {
	layout := NewLayout(req.Source, tracks)
	translator := TranslatorFor(req.Backend)
	res := Result{Selection: params}

	res.SubtitleSelected = selectSubtitle(logger, &res, tracks, req, translator, layout)
	res.AudioSelected = selectAudio(logger, &res, tracks, req, translator, layout)
	return res
}

func selectSubtitle(logger zerolog.Logger, res *Result, tracks []player.Track, req Request, tr IndexTranslator, layout Layout) bool {
	index, enabled := req.Subtitle.Index()
	if !enabled {
		res.Selection = res.Selection.Disable(player.TrackText)
		return true
	}

	stream, known := req.Source.Stream(index)
	external := known && stream.DeliveredExternally()
	if !external && !req.SupportsDirectPlay {
		logger.Debug().Int(xglog.FieldSubtitleIndex, index).Msg("embedded subtitle needs direct play")
		metrics.RecordTrackSelection(string(player.TrackText), string(req.Backend), false)
		return false
	}

	var match *player.Track
	if external {
		match = findTrack(tracks, func(t player.Track) bool {
			return t.Type == player.TrackText && isExternalID(t.ID, index)
		})
		if match == nil && tr.Backend() == player.BackendMPV {
			native := tr.NativeIndex(index, player.TrackText, true, layout)
			match = findNumeric(tracks, player.TrackText, true, native)
		}
	} else {
		native := tr.NativeIndex(index, player.TrackText, false, layout)
		match = findNumeric(tracks, player.TrackText, false, native)
	}

	resolved := match != nil
	metrics.RecordTrackSelection(string(player.TrackText), string(req.Backend), resolved)
	ev := logger.Debug().
		Int(xglog.FieldSubtitleIndex, index).
		Bool("external", external).
		Bool("resolved", resolved)
	if !resolved {
		ev.Msg("subtitle has no native track")
		return false
	}
	ev.Str(xglog.FieldNativeIndex, match.ID).Msg("subtitle resolved")
	res.Selection = res.Selection.Override(player.TrackText, match.ID)
	return true
}

func selectAudio(logger zerolog.Logger, res *Result, tracks []player.Track, req Request, tr IndexTranslator, layout Layout) bool {
	if req.AudioIndex == nil {
		return true
	}
	index := *req.AudioIndex
	if !req.SupportsDirectPlay {
		metrics.RecordTrackSelection(string(player.TrackAudio), string(req.Backend), false)
		return false
	}

	native := tr.NativeIndex(index, player.TrackAudio, false, layout)
	match := findNumeric(tracks, player.TrackAudio, false, native)
	resolved := match != nil
	metrics.RecordTrackSelection(string(player.TrackAudio), string(req.Backend), resolved)
	if !resolved {
		logger.Debug().Int(xglog.FieldAudioIndex, index).Int("native", native).Msg("audio has no native track")
		return false
	}
	logger.Debug().Int(xglog.FieldAudioIndex, index).Str(xglog.FieldNativeIndex, match.ID).Msg("audio resolved")
	res.Selection = res.Selection.Override(player.TrackAudio, match.ID)
	return true
}

func findNumeric(tracks []player.Track, t player.TrackType, external bool, native int) *player.Track {
	return findTrack(tracks, func(tr player.Track) bool {
		if tr.Type != t || tr.External != external {
			return false
		}
		n, ok := ParseNativeIndex(tr.ID)
		return ok && n == native
	})
}

func findTrack(tracks []player.Track, pred func(player.Track) bool) *player.Track {
	for i := range tracks {
		if pred(tracks[i]) {
			return &tracks[i]
		}
	}
	return nil
}
