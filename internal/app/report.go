// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package app

import (
	"context"
	"fmt"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/ManuGH/jfplay/internal/store"
	"github.com/ManuGH/jfplay/internal/streamchoice"
)

// ItemReader fetches items. *jellyfin.Client satisfies it.
type ItemReader interface {
	UserID() string
	GetItem(ctx context.Context, itemID string) (*jellyfin.Item, error)
}

// StreamReport is what Play would pick for an item, without playing it.
type StreamReport struct {
	Item     *jellyfin.Item
	Source   *jellyfin.MediaSource
	Audio    *jellyfin.MediaStream
	Subtitle model.SubtitleChoice
	// Stored is the remembered per-item choice, if any.
	Stored *model.ItemPlayback
	// Series is the remembered per-series language choice, if any.
	Series *model.PlaybackLanguageChoice
}

// DescribeStreams runs the stream choice policy for itemID against the
// stored choices.
func DescribeStreams(
	ctx context.Context,
	server ItemReader,
	repo store.Store,
	chooser *streamchoice.Service,
	prefs preferences.UserPreferences,
	itemID string,
) (*StreamReport, error) {
	item, err := server.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	r := &StreamReport{Item: item, Subtitle: model.SubtitlesDisabled()}

	userID := server.UserID()
	if r.Stored, err = repo.GetItemPlayback(ctx, userID, item.ID); err != nil {
		return nil, fmt.Errorf("read item playback: %w", err)
	}
	if item.SeriesID != "" {
		if r.Series, err = repo.GetLanguageChoice(ctx, userID, item.SeriesID); err != nil {
			return nil, fmt.Errorf("read series choice: %w", err)
		}
	}

	r.Source = chooser.ChooseSource(item.MediaSources, r.Stored)
	if r.Source == nil {
		return r, nil
	}
	r.Audio = chooser.ChooseAudioStream(r.Source.Streams(jellyfin.StreamAudio), r.Stored, r.Series, prefs)
	audioLanguage := ""
	if r.Audio != nil {
		audioLanguage = r.Audio.Language
	}
	if st := chooser.ChooseSubtitleStream(audioLanguage, r.Source.Streams(jellyfin.StreamSubtitle), r.Stored, r.Series, prefs); st != nil {
		r.Subtitle = model.SubtitleIndex(st.Index)
	}
	return r, nil
}
