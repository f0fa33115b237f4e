// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/metrics"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/ManuGH/jfplay/internal/trackselect"
)

// listener forwards backend events to task slots. Callbacks run on the
// backend's event goroutine, so nothing here touches the player directly.
func (c *Controller) listener(s *session) player.Listener {
	return player.ListenerFuncs{
		TracksChanged: func(tracks []player.Track) {
			tracks = append([]player.Track(nil), tracks...)
			c.tracksJob.Go(c.base, func(ctx context.Context) { c.onTracks(ctx, s, tracks) })
		},
		StateChanged: func(state player.State) {
			if state == player.StateEnded {
				c.nextUpJob.Go(c.base, func(ctx context.Context) { c.onEnded(ctx, s) })
			}
		},
		Error: func(err error) {
			c.recoveryJob.Go(c.base, func(ctx context.Context) { c.onPlayerError(ctx, s, err) })
		},
	}
}

func (c *Controller) onTracks(ctx context.Context, s *session, tracks []player.Track) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	s.current.Tracks = tracks
	pending := s.pending != nil
	c.mu.Unlock()

	if pending {
		c.applyPending(ctx, s, tracks)
	}
	c.notify()
}

// applyPending applies the session's deferred selection. It runs under sem
// so a concurrent in-place change cannot be overwritten by a stale one.
func (c *Controller) applyPending(ctx context.Context, s *session, tracks []player.Track) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	pending := s.pending
	if c.session != s || pending == nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	res := trackselect.CreateTrackSelections(s.player.Selection(), tracks, *pending)
	if len(res.Selection.Types()) > 0 {
		if err := s.player.ApplySelection(ctx, res.Selection); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("failed to apply initial track selection")
			}
			return
		}
	}
	c.logger.Debug().
		Bool("audio_selected", res.AudioSelected).
		Bool("subtitle_selected", res.SubtitleSelected).
		Msg("initial track selection applied")

	if res.BothSelected() {
		c.mu.Lock()
		if s.pending == pending {
			s.pending = nil
		}
		c.mu.Unlock()
	}
}

// onEnded offers the next item and plays it after the countdown.
func (c *Controller) onEnded(ctx context.Context, s *session) {
	if !c.isCurrent(s) {
		return
	}
	if c.opts.Playlist == nil {
		c.notify()
		return
	}
	next, ok, err := c.opts.Playlist.Next(ctx, s.item.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldItemID, s.item.ID).Msg("next up lookup failed")
		return
	}
	if !ok || !c.enterNextUp(ctx, s) {
		return
	}

	countdown := s.prefs.NextUpDelay
	c.logger.Info().Str(xglog.FieldItemID, next).Dur("countdown", countdown).Msg("next up pending")
	c.opts.Observer.OnNextUp(next, countdown)
	c.notify()

	timer := time.NewTimer(countdown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer c.sem.Release(1)
	if c.state.State() != StateNextUpPending {
		return
	}
	c.flushDelay(ctx)
	c.endSession(ctx, false)
	if err := c.fire(EventLoad); err != nil {
		return
	}
	_ = c.load(ctx, playRequest{itemID: next, switchDisplay: true}, EventStarted)
}

// enterNextUp starts the countdown for s. It waits behind a running stream
// change so the end of the item is not rejected as an invalid transition.
func (c *Controller) enterNextUp(ctx context.Context, s *session) bool {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer c.sem.Release(1)
	if !c.isCurrent(s) {
		return false
	}
	return c.fire(EventEnded) == nil
}

// CancelNextUp aborts a pending next-up countdown.
func (c *Controller) CancelNextUp() {
	c.nextUpJob.Cancel()
	if c.state.Can(EventCancelNextUp) {
		_ = c.fire(EventCancelNextUp)
		c.notify()
	}
}

// onPlayerError demotes direct sessions to transcoding once. Errors while
// transcoding are terminal.
func (c *Controller) onPlayerError(ctx context.Context, s *session, perr error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	s.current.LastError = perr.Error()
	snap := s.current.clone()
	carry := s.itemPlayback.Clone()
	c.mu.Unlock()

	log := c.logger.With().
		Str(xglog.FieldItemID, snap.ItemID).
		Str(xglog.FieldPlayMethod, string(snap.PlayMethod)).
		Logger()

	if snap.PlayMethod == model.PlayMethodTranscode {
		c.fail(ctx, snap.ItemID, &LoadError{ItemID: snap.ItemID, Err: fmt.Errorf("%w: %w", ErrPlayerFailed, perr)})
		return
	}
	if err := c.fire(EventChangeStreams); err != nil {
		// Nothing to recover into, e.g. while next up is counting down.
		log.Warn().Err(perr).Str("state", string(c.state.State())).Msg("player error outside active playback")
		c.opts.Observer.OnError(perr, false)
		c.notify()
		return
	}

	log.Warn().Err(perr).Msg("player error, falling back to transcoding")
	metrics.RecordTranscodeFallback(string(snap.PlayMethod))
	c.opts.Observer.OnError(perr, false)

	position, err := s.player.Position(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("position unavailable, restarting from the beginning")
		position = 0
	}
	c.endSession(ctx, false)
	delay := snap.SubtitleDelay
	_ = c.load(ctx, playRequest{
		itemID:         snap.ItemID,
		position:       position,
		audio:          snap.AudioIndex,
		subtitle:       snap.Subtitle,
		forceTranscode: true,
		demoted:        true,
		carry:          carry,
		delay:          &delay,
	}, EventStreamsReady)
}

func (c *Controller) progressLoop(ctx context.Context, s *session) {
	ticker := time.NewTicker(c.opts.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := c.report(ctx, s)
			if err != nil {
				if errors.Is(err, player.ErrReleased) {
					return
				}
				continue
			}
			if err := c.opts.Server.ReportPlaybackProgress(ctx, report); err != nil && ctx.Err() == nil {
				c.logger.Debug().Err(err).Msg("progress report failed")
			}
		}
	}
}

func (c *Controller) report(ctx context.Context, s *session) (jellyfin.PlayingReport, error) {
	position, err := s.player.Position(ctx)
	if err != nil {
		return jellyfin.PlayingReport{}, err
	}
	return c.reportAt(s, position), nil
}

func (c *Controller) reportAt(s *session, position time.Duration) jellyfin.PlayingReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := s.current
	r := jellyfin.PlayingReport{
		ItemID:              cur.ItemID,
		MediaSourceID:       cur.MediaSource.ID,
		PlaySessionID:       cur.PlaySessionID,
		PositionTicks:       jellyfin.DurationToTicks(position),
		IsPaused:            cur.Paused,
		PlayMethod:          string(cur.PlayMethod),
		CanSeek:             true,
		SubtitleStreamIndex: model.Int(-1),
	}
	if cur.AudioIndex != nil {
		r.AudioStreamIndex = model.Int(*cur.AudioIndex)
	}
	if idx, ok := cur.Subtitle.Index(); ok {
		r.SubtitleStreamIndex = model.Int(idx)
	}
	return r
}

func (c *Controller) reportStart(ctx context.Context, s *session, position time.Duration) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := c.opts.Server.ReportPlaybackStart(rctx, c.reportAt(s, position)); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldItemID, s.item.ID).Msg("start report failed")
	}
	c.mu.Lock()
	s.started = true
	c.mu.Unlock()
}

func (c *Controller) reportStopped(ctx context.Context, s *session) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	report, err := c.report(rctx, s)
	if err != nil {
		report = c.reportAt(s, 0)
	}
	if err := c.opts.Server.ReportPlaybackStopped(rctx, report); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldItemID, s.item.ID).Msg("stopped report failed")
	}
}

// segmentLoop fetches the item's segments once and acts on them while
// playback passes through.
func (c *Controller) segmentLoop(ctx context.Context, s *session) {
	segments, err := c.opts.Server.GetItemSegments(ctx, s.item.ID)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug().Err(err).Str(xglog.FieldItemID, s.item.ID).Msg("no media segments")
		}
		return
	}
	c.mu.Lock()
	s.segments = segments
	c.mu.Unlock()
	if len(segments) == 0 {
		return
	}

	ticker := time.NewTicker(c.opts.SegmentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			position, err := s.player.Position(ctx)
			if err != nil {
				if errors.Is(err, player.ErrReleased) {
					return
				}
				continue
			}
			c.checkSegments(ctx, s, segments, position)
		}
	}
}

func (c *Controller) checkSegments(ctx context.Context, s *session, segments []jellyfin.MediaSegment, position time.Duration) {
	for _, seg := range segments {
		if !seg.Contains(position) {
			continue
		}
		key := segmentKey(seg)
		c.mu.Lock()
		seen := s.handled[key]
		c.mu.Unlock()
		if seen {
			continue
		}

		// A segment counts as handled only once its action went through;
		// a failed skip is retried on the next tick.
		action := s.prefs.SegmentAction(string(seg.Type))
		switch action {
		case preferences.SegmentAutoSkip:
			if err := s.player.SeekTo(ctx, seg.End()); err != nil {
				if ctx.Err() == nil {
					c.logger.Warn().Err(err).Str("segment", string(seg.Type)).Msg("segment skip failed")
				}
				continue
			}
			c.logger.Info().Str("segment", string(seg.Type)).Dur("to", seg.End()).Msg("segment skipped")
		case preferences.SegmentAsk:
			c.opts.Observer.OnSegmentPrompt(seg)
		}
		c.mu.Lock()
		s.handled[key] = true
		c.mu.Unlock()
		if action != preferences.SegmentIgnore {
			metrics.RecordSegmentAction(string(seg.Type), string(action))
		}
	}
}

func segmentKey(seg jellyfin.MediaSegment) string {
	if seg.ID != "" {
		return seg.ID
	}
	return fmt.Sprintf("%s:%d:%d", seg.Type, seg.StartTicks, seg.EndTicks)
}

// SkipSegment seeks past a segment of the current item, typically after
// an OnSegmentPrompt.
func (c *Controller) SkipSegment(ctx context.Context, segmentID string) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	c.mu.Lock()
	var target *jellyfin.MediaSegment
	for i := range s.segments {
		if s.segments[i].ID == segmentID {
			seg := s.segments[i]
			target = &seg
			break
		}
	}
	c.mu.Unlock()
	if target == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSegment, segmentID)
	}
	if err := s.player.SeekTo(ctx, target.End()); err != nil {
		return err
	}
	metrics.RecordSegmentAction(string(target.Type), "skip")
	return nil
}
