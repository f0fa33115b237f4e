// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/metrics"
	"github.com/ManuGH/jfplay/internal/trackselect"
)

// ChangeStreams switches the audio and subtitle of the current item. A nil
// audioIndex keeps the current audio and an unset subtitle keeps the
// current subtitle. Direct play sessions are switched in place when the
// player exposes both tracks; everything else renegotiates with the server
// at the current position.
func (c *Controller) ChangeStreams(ctx context.Context, audioIndex *int, subtitle model.SubtitleChoice, userInitiated bool) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	s, err := c.active()
	if err != nil {
		return err
	}
	if c.state.State() != StatePlaying {
		return ErrNotPlaying
	}

	c.mu.Lock()
	cur := s.current.clone()
	series := s.series
	carry := s.itemPlayback.Clone()
	c.mu.Unlock()
	src := &cur.MediaSource

	audio := cur.AudioIndex
	if audioIndex != nil {
		if !hasStream(src, jellyfin.StreamAudio, *audioIndex) {
			return fmt.Errorf("%w: audio %d", ErrUnknownStream, *audioIndex)
		}
		audio = model.Int(*audioIndex)
	}
	requested := subtitle
	if !requested.IsSet() {
		requested = cur.Subtitle
	}
	if idx, ok := requested.Index(); ok && !hasStream(src, jellyfin.StreamSubtitle, idx) {
		return fmt.Errorf("%w: subtitle %d", ErrUnknownStream, idx)
	}
	target := c.opts.Chooser.ResolveSubtitleIndex(streamLanguage(src, audio), src.Streams(jellyfin.StreamSubtitle), requested, series, s.prefs)

	if err := c.fire(EventChangeStreams); err != nil {
		return err
	}
	log := c.logger.With().
		Str(xglog.FieldItemID, cur.ItemID).
		Str(xglog.FieldPlayMethod, string(cur.PlayMethod)).
		Str(xglog.FieldSubtitleIndex, target.String()).
		Logger()

	if cur.PlayMethod == model.PlayMethodDirectPlay && c.changeStreamsDirectPlay(ctx, s, audio, target) {
		metrics.RecordStreamChange("in_place")
		log.Info().Msg("streams changed in place")
		if err := c.fire(EventStreamsReady); err != nil {
			return err
		}
		if userInitiated {
			c.persistChoice(s, audio, requested)
		}
		c.notify()
		return nil
	}

	position, err := s.player.Position(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("position unavailable, restarting from the beginning")
		position = 0
	}
	c.endSession(ctx, false)
	delay := cur.SubtitleDelay
	err = c.load(ctx, playRequest{
		itemID:         cur.ItemID,
		position:       position,
		audio:          audio,
		subtitle:       target,
		forceTranscode: cur.Demoted,
		demoted:        cur.Demoted,
		carry:          carry,
		delay:          &delay,
	}, EventStreamsReady)
	if err != nil {
		metrics.RecordStreamChange("failed")
		return err
	}
	metrics.RecordStreamChange("renegotiate")
	log.Info().Dur("position", position).Msg("streams renegotiated")

	if userInitiated {
		if ns, err := c.active(); err == nil {
			c.persistChoice(ns, audio, requested)
		}
	}
	return nil
}

// changeStreamsDirectPlay maps the streams onto the live player's tracks.
// It reports false when either track is missing natively.
func (c *Controller) changeStreamsDirectPlay(ctx context.Context, s *session, audio *int, subtitle model.SubtitleChoice) bool {
	p := s.player
	c.mu.Lock()
	src := s.current.MediaSource
	c.mu.Unlock()

	res := trackselect.CreateTrackSelections(p.Selection(), p.Tracks(), trackselect.Request{
		Backend:            p.Backend(),
		SupportsDirectPlay: true,
		AudioIndex:         audio,
		Subtitle:           subtitle,
		Source:             &src,
	})
	if !res.BothSelected() {
		c.logger.Debug().
			Bool("audio_selected", res.AudioSelected).
			Bool("subtitle_selected", res.SubtitleSelected).
			Msg("in-place change not possible, renegotiating")
		return false
	}
	if err := p.ApplySelection(ctx, res.Selection); err != nil {
		c.logger.Warn().Err(err).Msg("in-place track selection failed, renegotiating")
		return false
	}

	c.mu.Lock()
	s.current.AudioIndex = audio
	s.current.Subtitle = subtitle
	s.pending = nil
	c.mu.Unlock()
	return true
}

func hasStream(src *jellyfin.MediaSource, t jellyfin.StreamType, index int) bool {
	st, ok := src.Stream(index)
	return ok && st.Type == t
}

// persistChoice records a user's stream choice for the item and, for
// episodes, the series language preference.
func (c *Controller) persistChoice(s *session, audio *int, subtitle model.SubtitleChoice) {
	c.mu.Lock()
	ip := c.ensureItemPlayback(s)
	if audio != nil {
		ip.AudioIndex = model.Int(*audio)
	}
	ip.Subtitle = subtitle
	ip.UpdatedAt = time.Now()

	var choice *model.PlaybackLanguageChoice
	if s.item.SeriesID != "" {
		choice = languageChoice(s, audio, subtitle)
		s.series = choice
	}
	c.mu.Unlock()

	c.chosenJob.Go(c.base, func(ctx context.Context) {
		c.saveItemPlayback(ctx, s)
		if choice == nil {
			return
		}
		if err := c.opts.Repository.SaveLanguageChoice(ctx, choice); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Str(xglog.FieldSeriesID, choice.SeriesID).Msg("failed to save series language choice")
		}
	})
}

// ensureItemPlayback returns the session's ItemPlayback, creating it on
// the first explicit choice. Caller holds mu.
func (c *Controller) ensureItemPlayback(s *session) *model.ItemPlayback {
	if s.itemPlayback == nil {
		s.itemPlayback = &model.ItemPlayback{
			UserID:   s.userID,
			ItemID:   s.item.ID,
			SourceID: s.current.MediaSource.ID,
		}
	}
	s.itemPlayback.SourceID = s.current.MediaSource.ID
	return s.itemPlayback
}

func languageChoice(s *session, audio *int, subtitle model.SubtitleChoice) *model.PlaybackLanguageChoice {
	choice := &model.PlaybackLanguageChoice{
		UserID:   s.userID,
		SeriesID: s.item.SeriesID,
	}
	if s.series != nil {
		*choice = *s.series
	}
	src := &s.current.MediaSource
	if lang := streamLanguage(src, audio); lang != "" {
		choice.AudioLanguage = lang
	}
	switch subtitle.Kind() {
	case model.SubtitleDisabled:
		choice.SubtitlesDisabled = true
	case model.SubtitleTrack:
		idx, _ := subtitle.Index()
		choice.SubtitlesDisabled = false
		if lang := streamLanguage(src, &idx); lang != "" {
			choice.SubtitleLanguage = lang
		}
	case model.SubtitleOnlyForced:
		choice.SubtitlesDisabled = false
	}
	return choice
}

// saveItemPlayback writes the session's ItemPlayback as it is now.
func (c *Controller) saveItemPlayback(ctx context.Context, s *session) {
	c.mu.Lock()
	ip := s.itemPlayback.Clone()
	c.mu.Unlock()
	if ip == nil {
		return
	}
	if err := c.opts.Repository.SaveItemPlayback(ctx, ip); err != nil && ctx.Err() == nil {
		c.logger.Warn().Err(err).Str(xglog.FieldItemID, ip.ItemID).Msg("failed to save item playback")
	}
}

// SetSubtitleDelay applies d immediately and saves it once changes settle.
func (c *Controller) SetSubtitleDelay(ctx context.Context, d time.Duration) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	if err := s.player.SetSubtitleDelay(ctx, d); err != nil {
		return err
	}

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return nil
	}
	s.current.SubtitleDelay = d
	ip := c.ensureItemPlayback(s)
	ip.SubtitleDelay = d
	ip.UpdatedAt = time.Now()
	s.delayDirty = true
	c.mu.Unlock()

	c.delayJob.Debounce(c.base, c.opts.SubtitleDelaySave, func(ctx context.Context) (struct{}, error) {
		c.mu.Lock()
		s.delayDirty = false
		c.mu.Unlock()
		c.saveItemPlayback(ctx, s)
		return struct{}{}, nil
	})
	c.notify()
	return nil
}

// flushDelay writes a pending subtitle delay now instead of losing it with
// the session. Caller holds sem.
func (c *Controller) flushDelay(ctx context.Context) {
	c.mu.Lock()
	s := c.session
	dirty := s != nil && s.delayDirty
	if dirty {
		s.delayDirty = false
	}
	c.mu.Unlock()
	if !dirty {
		return
	}
	c.delayJob.Cancel()
	c.saveItemPlayback(context.WithoutCancel(ctx), s)
}

// ClearChosenStreams forgets the stored choices of the current item.
func (c *Controller) ClearChosenStreams(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	s, err := c.active()
	if err != nil {
		return err
	}
	c.delayJob.Cancel()
	c.mu.Lock()
	s.itemPlayback = nil
	s.delayDirty = false
	userID, itemID := s.userID, s.item.ID
	c.mu.Unlock()

	task := c.chosenJob.Start(c.base, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.opts.Repository.DeleteItemPlayback(ctx, userID, itemID)
	})
	if _, err := task.Wait(ctx); err != nil {
		return fmt.Errorf("clear chosen streams: %w", err)
	}
	c.logger.Info().Str(xglog.FieldItemID, itemID).Msg("chosen streams cleared")
	return nil
}
