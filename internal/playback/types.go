// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"time"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/ManuGH/jfplay/internal/refreshrate"
	"github.com/ManuGH/jfplay/internal/store"
	"github.com/ManuGH/jfplay/internal/streamchoice"
)

// Server is the part of the Jellyfin API a session needs.
// *jellyfin.Client satisfies it.
type Server interface {
	UserID() string
	GetItem(ctx context.Context, itemID string) (*jellyfin.Item, error)
	GetPlaybackInfo(ctx context.Context, itemID string, req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error)
	GetItemSegments(ctx context.Context, itemID string) ([]jellyfin.MediaSegment, error)
	ReportPlaybackStart(ctx context.Context, report jellyfin.PlayingReport) error
	ReportPlaybackProgress(ctx context.Context, report jellyfin.PlayingReport) error
	ReportPlaybackStopped(ctx context.Context, report jellyfin.PlayingReport) error
	ResolveURL(path string) string
	StreamURL(itemID, sourceID, container, playSessionID string) string
	SubtitleURL(itemID, sourceID string, stream jellyfin.MediaStream) string
}

// Repository persists per-item and per-series choices.
type Repository interface {
	store.ItemPlaybackRepository
	store.LanguageChoiceStore
}

// Playlist answers what plays after an item. ok is false at the end.
type Playlist interface {
	Next(ctx context.Context, itemID string) (next string, ok bool, err error)
}

// RefreshRateSwitcher adapts the display to the content before loading.
type RefreshRateSwitcher interface {
	ChangeRefreshRate(ctx context.Context, video refreshrate.VideoInfo) refreshrate.Outcome
}

// Observer receives user-facing session events. Calls must not block.
type Observer interface {
	OnPlaybackChanged(current CurrentPlayback)
	OnSegmentPrompt(segment jellyfin.MediaSegment)
	OnNextUp(itemID string, countdown time.Duration)
	OnError(err error, fatal bool)
}

// NopObserver ignores everything. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnPlaybackChanged(CurrentPlayback)    {}
func (NopObserver) OnSegmentPrompt(jellyfin.MediaSegment) {}
func (NopObserver) OnNextUp(string, time.Duration)        {}
func (NopObserver) OnError(error, bool)                   {}

// CurrentPlayback describes what is playing right now.
type CurrentPlayback struct {
	State         State
	ItemID        string
	ItemName      string
	ItemType      jellyfin.ItemKind
	SeriesID      string
	PlayMethod    model.PlayMethod
	Backend       player.Backend
	MediaSource   jellyfin.MediaSource
	PlaySessionID string
	MediaURL      string
	AudioIndex    *int
	Subtitle      model.SubtitleChoice
	SubtitleDelay time.Duration
	Paused        bool
	Tracks        []player.Track
	// Demoted is set once a direct session fell back to transcoding.
	Demoted   bool
	LastError string
}

func (c CurrentPlayback) clone() CurrentPlayback {
	out := c
	if c.AudioIndex != nil {
		out.AudioIndex = model.Int(*c.AudioIndex)
	}
	out.Tracks = append([]player.Track(nil), c.Tracks...)
	out.MediaSource.MediaStreams = append([]jellyfin.MediaStream(nil), c.MediaSource.MediaStreams...)
	return out
}

// Options wires a Controller.
type Options struct {
	Server      Server
	Repository  Repository
	Preferences preferences.Provider
	Players     *player.Handle
	// PlayerConfig is read for every new session so reloads apply.
	PlayerConfig func() player.Config

	Chooser     *streamchoice.Service
	RefreshRate RefreshRateSwitcher
	Playlist    Playlist
	Observer    Observer

	ProgressInterval  time.Duration
	SegmentInterval   time.Duration
	SubtitleDelaySave time.Duration
}

const (
	DefaultProgressInterval  = 10 * time.Second
	DefaultSegmentInterval   = 250 * time.Millisecond
	DefaultSubtitleDelaySave = 1500 * time.Millisecond
)

func normalizeOptions(opts Options) Options {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.SegmentInterval <= 0 {
		opts.SegmentInterval = DefaultSegmentInterval
	}
	if opts.SubtitleDelaySave <= 0 {
		opts.SubtitleDelaySave = DefaultSubtitleDelaySave
	}
	if opts.Chooser == nil {
		opts.Chooser = streamchoice.New()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Preferences == nil {
		opts.Preferences = preferences.NewStatic(preferences.Defaults())
	}
	return opts
}
