// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/playback"
)

// logObserver is the headless UI: every session event becomes a log line.
type logObserver struct {
	logger zerolog.Logger
}

func newLogObserver() logObserver {
	return logObserver{logger: xglog.WithComponent("session")}
}

func (o logObserver) OnPlaybackChanged(cp playback.CurrentPlayback) {
	o.logger.Info().
		Str(xglog.FieldNewState, string(cp.State)).
		Str(xglog.FieldItemID, cp.ItemID).
		Str(xglog.FieldPlayMethod, string(cp.PlayMethod)).
		Str(xglog.FieldPlaySessionID, cp.PlaySessionID).
		Str(xglog.FieldSubtitleIndex, cp.Subtitle.String()).
		Bool("paused", cp.Paused).
		Msg(cp.ItemName)
}

func (o logObserver) OnSegmentPrompt(seg jellyfin.MediaSegment) {
	o.logger.Info().
		Str(xglog.FieldEvent, "segment.prompt").
		Str("segment_id", seg.ID).
		Str("segment_type", string(seg.Type)).
		Msg("skip available: POST /v1/playback/segments/" + seg.ID + "/skip")
}

func (o logObserver) OnNextUp(itemID string, countdown time.Duration) {
	o.logger.Info().
		Str(xglog.FieldEvent, "next_up").
		Str(xglog.FieldItemID, itemID).
		Dur("countdown", countdown).
		Msg("next item queued")
}

func (o logObserver) OnError(err error, fatal bool) {
	ev := o.logger.Warn()
	if fatal {
		ev = o.logger.Error()
	}
	ev.Err(err).Bool("fatal", fatal).Msg("playback error")
}

// multiObserver fans events out in order.
type multiObserver []playback.Observer

func (m multiObserver) OnPlaybackChanged(cp playback.CurrentPlayback) {
	for _, o := range m {
		o.OnPlaybackChanged(cp)
	}
}

func (m multiObserver) OnSegmentPrompt(seg jellyfin.MediaSegment) {
	for _, o := range m {
		o.OnSegmentPrompt(seg)
	}
}

func (m multiObserver) OnNextUp(itemID string, countdown time.Duration) {
	for _, o := range m {
		o.OnNextUp(itemID, countdown)
	}
}

func (m multiObserver) OnError(err error, fatal bool) {
	for _, o := range m {
		o.OnError(err, fatal)
	}
}

// logNotifier shows display notices in the log.
type logNotifier struct {
	logger zerolog.Logger
}

func (n logNotifier) Notify(msg string) {
	n.logger.Warn().Str(xglog.FieldEvent, "display.notice").Msg(msg)
}
