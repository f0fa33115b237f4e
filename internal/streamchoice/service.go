// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package streamchoice decides which media source, audio stream and subtitle
// stream become active for an item. Every decision is deterministic and a
// miss yields nil, never an error.
package streamchoice

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/rs/zerolog"
)

var forcedTitle = regexp.MustCompile(`(?i)forced|signs|songs`)

// Service implements the stream selection policy.
type Service struct {
	logger zerolog.Logger
}

// New returns a Service logging under the streamchoice component.
func New() *Service {
	return &Service{logger: xglog.WithComponent("streamchoice")}
}

// NewWithLogger returns a Service using logger.
func NewWithLogger(logger zerolog.Logger) *Service {
	return &Service{logger: logger}
}

// ChooseSource picks the pinned source when present, otherwise the source
// with the largest video frame. Ties keep list order.
func (s *Service) ChooseSource(sources []jellyfin.MediaSource, playback *model.ItemPlayback) *jellyfin.MediaSource {
	if len(sources) == 0 {
		return nil
	}
	if playback != nil && playback.SourceID != "" {
		for i := range sources {
			if sources[i].ID == playback.SourceID {
				return &sources[i]
			}
		}
		s.logger.Debug().Str(xglog.FieldSourceID, playback.SourceID).Msg("pinned source no longer offered")
	}

	best := 0
	bestArea := -1
	for i := range sources {
		area := videoArea(&sources[i])
		if area > bestArea {
			best, bestArea = i, area
		}
	}
	return &sources[best]
}

func videoArea(src *jellyfin.MediaSource) int {
	for _, st := range src.MediaStreams {
		if st.Type == jellyfin.StreamVideo {
			return st.Width * st.Height
		}
	}
	return 0
}

// ChooseAudioStream selects an audio stream from candidates.
func (s *Service) ChooseAudioStream(
	candidates []jellyfin.MediaStream,
	playback *model.ItemPlayback,
	series *model.PlaybackLanguageChoice,
	prefs preferences.UserPreferences,
) *jellyfin.MediaStream {
	if playback.AudioIndexEnabled() {
		return findIndex(candidates, *playback.AudioIndex)
	}
	if len(candidates) == 0 {
		return nil
	}

	lang := audioLanguagePreference(series, prefs)
	if lang == "" {
		if st := firstWhere(candidates, func(st jellyfin.MediaStream) bool { return st.IsDefault }); st != nil {
			return st
		}
		return &candidates[0]
	}

	sorted := append([]jellyfin.MediaStream(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := strings.ToLower(sorted[i].Language), strings.ToLower(sorted[j].Language)
		if li != lj {
			return li < lj
		}
		return sorted[i].Channels > sorted[j].Channels
	})

	matches := func(st jellyfin.MediaStream) bool { return SameLanguage(st.Language, lang) }
	if st := firstWhere(sorted, func(st jellyfin.MediaStream) bool { return matches(st) && st.IsDefault }); st != nil {
		return st
	}
	if st := firstWhere(sorted, matches); st != nil {
		return st
	}
	if st := firstWhere(sorted, func(st jellyfin.MediaStream) bool { return st.IsDefault }); st != nil {
		return st
	}
	return &sorted[0]
}

// ChooseSubtitleStream selects a subtitle stream or nil for no subtitles.
// audioLanguage is the language of the audio stream that will play.
func (s *Service) ChooseSubtitleStream(
	audioLanguage string,
	candidates []jellyfin.MediaStream,
	playback *model.ItemPlayback,
	series *model.PlaybackLanguageChoice,
	prefs preferences.UserPreferences,
) *jellyfin.MediaStream {
	subtitleLanguage := subtitleLanguagePreference(series, prefs)

	if playback != nil {
		switch playback.Subtitle.Kind() {
		case model.SubtitleDisabled:
			return nil
		case model.SubtitleOnlyForced:
			return s.FindForcedTrack(candidates, subtitleLanguage, audioLanguage)
		case model.SubtitleTrack:
			idx, _ := playback.Subtitle.Index()
			return findIndex(candidates, idx)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	mode := subtitleMode(series, prefs)
	sorted := sortSubtitles(candidates, subtitleLanguage)

	langMatch := func(st jellyfin.MediaStream) bool { return SameLanguage(st.Language, subtitleLanguage) }
	unknown := func(st jellyfin.MediaStream) bool { return IsUnknownLanguage(st.Language) }

	var chosen *jellyfin.MediaStream
	switch mode {
	case preferences.SubtitleModeAlways:
		chosen = firstWhere(sorted, func(st jellyfin.MediaStream) bool { return langMatch(st) || unknown(st) })
		if chosen == nil {
			chosen = &sorted[0]
		}
	case preferences.SubtitleModeOnlyForced:
		chosen = firstForced(sorted, langMatch, unknown)
	case preferences.SubtitleModeSmart:
		chosen = s.smart(sorted, audioLanguage, subtitleLanguage, audioLanguagePreference(series, prefs))
	case preferences.SubtitleModeNone:
		chosen = nil
	default:
		chosen = firstWhere(sorted, func(st jellyfin.MediaStream) bool { return langMatch(st) && (st.IsDefault || st.IsForced) })
		if chosen == nil {
			chosen = firstWhere(sorted, func(st jellyfin.MediaStream) bool { return st.IsDefault || st.IsForced })
		}
	}

	ev := s.logger.Debug().Str("mode", string(mode)).Str("subtitle_language", subtitleLanguage)
	if chosen != nil {
		ev = ev.Int(xglog.FieldSubtitleIndex, chosen.Index)
	}
	ev.Msg("subtitle policy applied")
	return chosen
}

// smart shows full subtitles only when the audio is not in the language the
// user reads; otherwise only forced tracks.
func (s *Service) smart(sorted []jellyfin.MediaStream, audioLanguage, subtitleLanguage, audioPreference string) *jellyfin.MediaStream {
	if subtitleLanguage == "" {
		return firstWhere(sorted, func(st jellyfin.MediaStream) bool { return st.IsDefault })
	}

	var showSubtitles bool
	if audioPreference != "" && audioLanguage != "" && !SameLanguage(audioPreference, audioLanguage) {
		// Preferred audio is unavailable; the preference still decides.
		s.logger.Debug().
			Str(xglog.FieldEvent, "subtitle.smart_audio_mismatch").
			Str("audio_preference", audioPreference).
			Str("audio_language", audioLanguage).
			Msg("smart subtitles: playing audio differs from preference")
	}
	if audioPreference != "" {
		showSubtitles = !SameLanguage(audioPreference, subtitleLanguage)
	} else {
		showSubtitles = !SameLanguage(audioLanguage, subtitleLanguage)
	}

	inLanguage := func(st jellyfin.MediaStream) bool {
		return SameLanguage(st.Language, subtitleLanguage) || IsUnknownLanguage(st.Language)
	}
	if showSubtitles {
		return firstWhere(sorted, inLanguage)
	}
	return firstWhere(sorted, func(st jellyfin.MediaStream) bool { return isForcedLike(st) && inLanguage(st) })
}

// FindForcedTrack looks for a forced track in the preferred subtitle
// language, then in the audio language, then among unknown-language tracks.
func (s *Service) FindForcedTrack(candidates []jellyfin.MediaStream, subtitleLanguage, audioLanguage string) *jellyfin.MediaStream {
	forced := make([]jellyfin.MediaStream, 0, len(candidates))
	for _, st := range candidates {
		if isForcedLike(st) {
			forced = append(forced, st)
		}
	}
	if len(forced) == 0 {
		return nil
	}
	if subtitleLanguage != "" {
		if st := firstWhere(forced, func(st jellyfin.MediaStream) bool { return SameLanguage(st.Language, subtitleLanguage) }); st != nil {
			return st
		}
	}
	if audioLanguage != "" {
		if st := firstWhere(forced, func(st jellyfin.MediaStream) bool { return SameLanguage(st.Language, audioLanguage) }); st != nil {
			return st
		}
	}
	return firstWhere(forced, func(st jellyfin.MediaStream) bool { return IsUnknownLanguage(st.Language) })
}

// ResolveSubtitleIndex turns OnlyForced into a concrete choice. Every other
// variant passes through unchanged.
func (s *Service) ResolveSubtitleIndex(
	audioLanguage string,
	candidates []jellyfin.MediaStream,
	choice model.SubtitleChoice,
	series *model.PlaybackLanguageChoice,
	prefs preferences.UserPreferences,
) model.SubtitleChoice {
	if choice.Kind() != model.SubtitleOnlyForced {
		return choice
	}
	scratch := &model.ItemPlayback{Subtitle: model.SubtitlesOnlyForced()}
	if st := s.ChooseSubtitleStream(audioLanguage, candidates, scratch, series, prefs); st != nil {
		return model.SubtitleIndex(st.Index)
	}
	return model.SubtitlesDisabled()
}

func isForcedLike(st jellyfin.MediaStream) bool {
	if st.IsForced {
		return true
	}
	return forcedTitle.MatchString(st.Title) || forcedTitle.MatchString(st.DisplayTitle)
}

func audioLanguagePreference(series *model.PlaybackLanguageChoice, prefs preferences.UserPreferences) string {
	if series != nil && strings.TrimSpace(series.AudioLanguage) != "" {
		return strings.TrimSpace(series.AudioLanguage)
	}
	return strings.TrimSpace(prefs.AudioLanguage)
}

func subtitleLanguagePreference(series *model.PlaybackLanguageChoice, prefs preferences.UserPreferences) string {
	if series != nil && strings.TrimSpace(series.SubtitleLanguage) != "" {
		return strings.TrimSpace(series.SubtitleLanguage)
	}
	return strings.TrimSpace(prefs.SubtitleLanguage)
}

func subtitleMode(series *model.PlaybackLanguageChoice, prefs preferences.UserPreferences) preferences.SubtitleMode {
	if series != nil {
		if series.SubtitlesDisabled {
			return preferences.SubtitleModeNone
		}
		if strings.TrimSpace(series.SubtitleLanguage) != "" {
			return preferences.SubtitleModeAlways
		}
	}
	if prefs.SubtitleMode == "" {
		return preferences.SubtitleModeDefault
	}
	return prefs.SubtitleMode
}

// sortSubtitles orders candidates external first, then default, then
// in-language regular, in-language forced, unknown-language forced, forced.
func sortSubtitles(candidates []jellyfin.MediaStream, subtitleLanguage string) []jellyfin.MediaStream {
	sorted := append([]jellyfin.MediaStream(nil), candidates...)
	keys := func(st jellyfin.MediaStream) [6]bool {
		match := SameLanguage(st.Language, subtitleLanguage)
		return [6]bool{
			st.DeliveredExternally(),
			st.IsDefault,
			!st.IsForced && match,
			st.IsForced && match,
			st.IsForced && IsUnknownLanguage(st.Language),
			st.IsForced,
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := keys(sorted[i]), keys(sorted[j])
		for k := range ki {
			if ki[k] != kj[k] {
				return ki[k]
			}
		}
		return false
	})
	return sorted
}

func firstForced(sorted []jellyfin.MediaStream, langMatch, unknown func(jellyfin.MediaStream) bool) *jellyfin.MediaStream {
	if st := firstWhere(sorted, func(st jellyfin.MediaStream) bool { return st.IsForced && langMatch(st) }); st != nil {
		return st
	}
	if st := firstWhere(sorted, func(st jellyfin.MediaStream) bool { return st.IsForced && unknown(st) }); st != nil {
		return st
	}
	return firstWhere(sorted, func(st jellyfin.MediaStream) bool { return st.IsForced })
}

func findIndex(candidates []jellyfin.MediaStream, index int) *jellyfin.MediaStream {
	return firstWhere(candidates, func(st jellyfin.MediaStream) bool { return st.Index == index })
}

func firstWhere(streams []jellyfin.MediaStream, pred func(jellyfin.MediaStream) bool) *jellyfin.MediaStream {
	for i := range streams {
		if pred(streams[i]) {
			return &streams[i]
		}
	}
	return nil
}
