// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trackselect

import (
	"testing"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// source numbers two external subtitles first, then video, two audio and
// two embedded subtitles.
func source() *jellyfin.MediaSource {
	return &jellyfin.MediaSource{
		ID:                 "src",
		SupportsDirectPlay: true,
		MediaStreams: []jellyfin.MediaStream{
			{Type: jellyfin.StreamSubtitle, Index: 0, IsExternal: true, DeliveryMethod: jellyfin.DeliveryExternal, Language: "eng"},
			{Type: jellyfin.StreamSubtitle, Index: 1, IsExternal: true, DeliveryMethod: jellyfin.DeliveryExternal, Language: "ger"},
			{Type: jellyfin.StreamVideo, Index: 2},
			{Type: jellyfin.StreamAudio, Index: 3, Language: "jpn"},
			{Type: jellyfin.StreamAudio, Index: 4, Language: "eng"},
			{Type: jellyfin.StreamSubtitle, Index: 5, Language: "eng"},
			{Type: jellyfin.StreamSubtitle, Index: 6, Language: "ger"},
		},
	}
}

func media3Tracks() []player.Track {
	return []player.Track{
		{ID: "1", Type: player.TrackVideo},
		{ID: "2", Type: player.TrackAudio},
		{ID: "3", Type: player.TrackAudio},
		{ID: "4", Type: player.TrackText},
		{ID: "5", Type: player.TrackText},
		{ID: "1:e:0", Type: player.TrackText, External: true},
		{ID: "2:e:1", Type: player.TrackText, External: true},
	}
}

func mpvTracks() []player.Track {
	return []player.Track{
		{ID: "1", Type: player.TrackVideo},
		{ID: "1", Type: player.TrackAudio},
		{ID: "2", Type: player.TrackAudio},
		{ID: "1", Type: player.TrackText},
		{ID: "2", Type: player.TrackText},
		{ID: "3", Type: player.TrackText, External: true},
		{ID: "4", Type: player.TrackText, External: true},
	}
}

func TestParseNativeIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want int
		ok   bool
	}{
		{"3", 3, true},
		{"1:3", 3, true},
		{"1:e:7", 7, true},
		{"", 0, false},
		{"audio", 0, false},
		{"1:x", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNativeIndex(tt.id)
		assert.Equal(t, tt.ok, ok, tt.id)
		assert.Equal(t, tt.want, got, tt.id)
	}
}

func TestMedia3TranslatorIsUniform(t *testing.T) {
	t.Parallel()
	layout := NewLayout(source(), media3Tracks())
	require.Equal(t, 2, layout.ExternalSubtitles)

	for _, tt := range []player.TrackType{player.TrackVideo, player.TrackAudio, player.TrackText} {
		for server := 2; server < 7; server++ {
			got := CalculateIndexToFind(server, tt, player.BackendMedia3, false, layout)
			assert.Equal(t, server-layout.ExternalSubtitles+1, got)
		}
	}
}

func TestMPVTranslator(t *testing.T) {
	t.Parallel()
	layout := NewLayout(source(), mpvTracks())
	assert.Equal(t, 1, layout.VideoBeforeAudio)
	assert.Equal(t, 2, layout.EmbeddedSubtitles)
	assert.Equal(t, 2, layout.NativeEmbeddedSubtitles)

	assert.Equal(t, 1, CalculateIndexToFind(2, player.TrackVideo, player.BackendMPV, false, layout))
	assert.Equal(t, 1, CalculateIndexToFind(3, player.TrackAudio, player.BackendMPV, false, layout))
	assert.Equal(t, 2, CalculateIndexToFind(4, player.TrackAudio, player.BackendMPV, false, layout))
	assert.Equal(t, 1, CalculateIndexToFind(5, player.TrackText, player.BackendMPV, false, layout))
	assert.Equal(t, 2, CalculateIndexToFind(6, player.TrackText, player.BackendMPV, false, layout))
	assert.Equal(t, 3, CalculateIndexToFind(0, player.TrackText, player.BackendMPV, true, layout))
	assert.Equal(t, 4, CalculateIndexToFind(1, player.TrackText, player.BackendMPV, true, layout))
}

func TestMPVTranslatorGuardsHiddenEmbeddedSubtitles(t *testing.T) {
	t.Parallel()

	// the server hides the embedded subtitles but mpv still exposes them
	src := &jellyfin.MediaSource{MediaStreams: []jellyfin.MediaStream{
		{Type: jellyfin.StreamSubtitle, Index: 0, IsExternal: true},
		{Type: jellyfin.StreamVideo, Index: 1},
		{Type: jellyfin.StreamAudio, Index: 2},
	}}
	tracks := []player.Track{
		{ID: "1", Type: player.TrackText},
		{ID: "2", Type: player.TrackText},
		{ID: "3", Type: player.TrackText, External: true},
	}
	layout := NewLayout(src, tracks)
	assert.Equal(t, 0, layout.EmbeddedSubtitles)
	assert.Equal(t, 3, CalculateIndexToFind(0, player.TrackText, player.BackendMPV, true, layout))
}

func TestCalculateIndexToFindIsPure(t *testing.T) {
	t.Parallel()
	layout := NewLayout(source(), mpvTracks())
	a := CalculateIndexToFind(4, player.TrackAudio, player.BackendMPV, false, layout)
	b := CalculateIndexToFind(4, player.TrackAudio, player.BackendMPV, false, layout)
	assert.Equal(t, a, b)
	assert.IsType(t, Media3Translator{}, TranslatorFor("other"))
}

func create(tracks []player.Track, req Request) Result {
	return createTrackSelections(zerolog.Nop(), player.Selection{}, tracks, req)
}

func TestCreateTrackSelections_Media3(t *testing.T) {
	t.Parallel()

	res := create(media3Tracks(), Request{
		Backend: player.BackendMedia3, SupportsDirectPlay: true,
		AudioIndex: model.Int(4), Subtitle: model.SubtitleIndex(6), Source: source(),
	})
	require.True(t, res.BothSelected())
	id, _ := res.Selection.TrackID(player.TrackAudio)
	assert.Equal(t, "3", id)
	id, _ = res.Selection.TrackID(player.TrackText)
	assert.Equal(t, "5", id)

	res = create(media3Tracks(), Request{
		Backend: player.BackendMedia3, SupportsDirectPlay: true,
		Subtitle: model.SubtitleIndex(1), Source: source(),
	})
	require.True(t, res.BothSelected())
	id, _ = res.Selection.TrackID(player.TrackText)
	assert.Equal(t, "2:e:1", id)
	_, hasAudio := res.Selection.TrackID(player.TrackAudio)
	assert.False(t, hasAudio, "nil audio leaves audio untouched")
}

func TestCreateTrackSelections_MPV(t *testing.T) {
	t.Parallel()

	res := create(mpvTracks(), Request{
		Backend: player.BackendMPV, SupportsDirectPlay: true,
		AudioIndex: model.Int(3), Subtitle: model.SubtitleIndex(0), Source: source(),
	})
	require.True(t, res.BothSelected())
	id, _ := res.Selection.TrackID(player.TrackAudio)
	assert.Equal(t, "1", id)
	id, _ = res.Selection.TrackID(player.TrackText)
	assert.Equal(t, "3", id, "external subtitle found by mpv numbering")
}

func TestCreateTrackSelections_DisableSubtitles(t *testing.T) {
	t.Parallel()

	for _, choice := range []model.SubtitleChoice{model.SubtitlesDisabled(), model.NoSubtitleChoice()} {
		res := create(media3Tracks(), Request{Backend: player.BackendMedia3, Subtitle: choice, Source: source()})
		assert.True(t, res.SubtitleSelected)
		assert.True(t, res.AudioSelected)
		assert.True(t, res.Selection.Disabled(player.TrackText))
	}
}

func TestCreateTrackSelections_EmbeddedSubtitleNeedsDirectPlay(t *testing.T) {
	t.Parallel()

	res := create(media3Tracks(), Request{
		Backend: player.BackendMedia3, SupportsDirectPlay: false,
		Subtitle: model.SubtitleIndex(5), Source: source(),
	})
	assert.False(t, res.SubtitleSelected)
	assert.False(t, res.BothSelected())

	res = create(media3Tracks(), Request{
		Backend: player.BackendMedia3, SupportsDirectPlay: false,
		Subtitle: model.SubtitleIndex(0), Source: source(),
	})
	assert.True(t, res.SubtitleSelected, "external subtitles work without direct play")
}

func TestCreateTrackSelections_AudioNeedsDirectPlay(t *testing.T) {
	t.Parallel()

	res := create(media3Tracks(), Request{
		Backend: player.BackendMedia3, SupportsDirectPlay: false,
		AudioIndex: model.Int(3), Subtitle: model.SubtitlesDisabled(), Source: source(),
	})
	assert.False(t, res.AudioSelected)
	assert.True(t, res.SubtitleSelected)
}

func TestCreateTrackSelections_Misses(t *testing.T) {
	t.Parallel()

	tracks := []player.Track{
		{ID: "garbage", Type: player.TrackAudio},
		{ID: "1", Type: player.TrackText},
	}
	res := create(tracks, Request{
		Backend: player.BackendMedia3, SupportsDirectPlay: true,
		AudioIndex: model.Int(3), Subtitle: model.SubtitleIndex(6), Source: source(),
	})
	assert.False(t, res.AudioSelected, "unparseable ids never match")
	assert.False(t, res.SubtitleSelected)
	_, ok := res.Selection.TrackID(player.TrackText)
	assert.False(t, ok)

	// side-loaded subtitle not yet reported by the player
	res = create(media3Tracks()[:5], Request{
		Backend: player.BackendMedia3, SupportsDirectPlay: true,
		Subtitle: model.SubtitleIndex(1), Source: source(),
	})
	assert.False(t, res.SubtitleSelected)
}

func TestCreateTrackSelectionsKeepsParams(t *testing.T) {
	t.Parallel()

	params := player.Selection{}.Override(player.TrackVideo, "1")
	res := CreateTrackSelections(params, media3Tracks(), Request{
		Backend: player.BackendMedia3, SupportsDirectPlay: true,
		AudioIndex: model.Int(3), Subtitle: model.SubtitlesDisabled(), Source: source(),
	})
	id, ok := res.Selection.TrackID(player.TrackVideo)
	require.True(t, ok)
	assert.Equal(t, "1", id)
	_, ok = params.TrackID(player.TrackAudio)
	assert.False(t, ok, "input params untouched")
}
