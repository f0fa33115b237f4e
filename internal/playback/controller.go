// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback orchestrates a playback session: stream choice, server
// negotiation, player lifecycle, in-place track changes, transcode
// demotion, segment skipping, progress reporting and next up.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/fsm"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/metrics"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/ManuGH/jfplay/internal/refreshrate"
	"github.com/ManuGH/jfplay/internal/taskslot"
	"github.com/ManuGH/jfplay/internal/telemetry"
	"github.com/ManuGH/jfplay/internal/trackselect"
)

const reportTimeout = 5 * time.Second

// Controller runs one playback session at a time. Play, ChangeStreams,
// Stop and error recovery are serialised; background work lives in
// cancel-and-replace task slots.
type Controller struct {
	opts   Options
	logger zerolog.Logger
	sem    *semaphore.Weighted
	state  *fsm.Machine[State, Event]

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	session *session
	last    *CurrentPlayback
	closed  bool

	progressJob taskslot.Slot[struct{}]
	segmentJob  taskslot.Slot[struct{}]
	tracksJob   taskslot.Slot[struct{}]
	chosenJob   taskslot.Slot[struct{}]
	delayJob    taskslot.Slot[struct{}]
	nextUpJob   taskslot.Slot[struct{}]
	recoveryJob taskslot.Slot[struct{}]
}

// session is the state of one loaded item. Fields are guarded by
// Controller.mu unless noted.
type session struct {
	item   *jellyfin.Item
	userID string
	prefs  preferences.UserPreferences
	player player.Player
	detach func()

	current      CurrentPlayback
	itemPlayback *model.ItemPlayback
	series       *model.PlaybackLanguageChoice
	// pending is applied once the new pipeline reports its tracks.
	pending    *trackselect.Request
	segments   []jellyfin.MediaSegment
	handled    map[string]bool
	delayDirty bool
	started    bool
}

type playRequest struct {
	itemID   string
	position time.Duration
	// audio nil and subtitle unset let the policy decide.
	audio          *int
	subtitle       model.SubtitleChoice
	forceTranscode bool
	demoted        bool
	switchDisplay  bool
	// carry replaces the stored ItemPlayback when re-loading the same item.
	carry *model.ItemPlayback
	delay *time.Duration
}

// New validates opts and returns an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Server == nil {
		return nil, errors.New("playback: server is required")
	}
	if opts.Repository == nil {
		return nil, errors.New("playback: repository is required")
	}
	if opts.Players == nil || opts.PlayerConfig == nil {
		return nil, errors.New("playback: player handle and config are required")
	}
	opts = normalizeOptions(opts)

	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:   opts,
		logger: xglog.WithComponent("playback"),
		sem:    semaphore.NewWeighted(1),
		state:  newMachine(),
		base:   base,
		cancel: cancel,
	}
	c.state.OnTransition(func(from, to State, ev Event) {
		c.logger.Debug().
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(to)).
			Str(xglog.FieldEvent, string(ev)).
			Msg("session state changed")
	})
	return c, nil
}

// State returns the session state.
func (c *Controller) State() State { return c.state.State() }

// Current returns a snapshot of the session. ok is false before anything
// was played.
func (c *Controller) Current() (CurrentPlayback, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cp CurrentPlayback
	switch {
	case c.session != nil:
		cp = c.session.current.clone()
	case c.last != nil:
		cp = c.last.clone()
	default:
		return CurrentPlayback{State: c.state.State()}, false
	}
	cp.State = c.state.State()
	return cp, true
}

// Play starts itemID at position, replacing whatever is playing.
func (c *Controller) Play(ctx context.Context, itemID string, position time.Duration) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.nextUpJob.Cancel()
	c.recoveryJob.Cancel()
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.endSession(ctx, false)
	if err := c.fire(EventLoad); err != nil {
		return err
	}
	return c.load(ctx, playRequest{itemID: itemID, position: position, switchDisplay: true}, EventStarted)
}

// Stop ends the session, reports it stopped and releases the player.
func (c *Controller) Stop(ctx context.Context) error {
	c.nextUpJob.Cancel()
	c.recoveryJob.Cancel()
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	if c.state.State() == StateReleased {
		return nil
	}
	c.flushDelay(ctx)
	c.endSession(ctx, true)
	err := c.fire(EventRelease)
	c.notify()
	return err
}

// Close stops playback and waits for background work.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.Stop(context.Background())
	for _, slot := range []*taskslot.Slot[struct{}]{
		&c.nextUpJob, &c.recoveryJob, &c.progressJob, &c.segmentJob,
		&c.tracksJob, &c.delayJob, &c.chosenJob,
	} {
		slot.Close()
	}
	c.cancel()
	return err
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) fire(ev Event) error {
	if _, err := c.state.Fire(ev); err != nil {
		c.logger.Warn().Err(err).Msg("rejected session transition")
		return err
	}
	return nil
}

// load negotiates and starts req. On success the machine takes success.
// Caller holds sem.
func (c *Controller) load(ctx context.Context, req playRequest, success Event) error {
	ctx, span := telemetry.Tracer("jfplay.playback").Start(ctx, "jfplay.playback.load",
		trace.WithAttributes(telemetry.PlaybackAttributes(req.itemID, "", "", "")...))
	defer span.End()

	s, err := c.prepare(ctx, req)
	if err == nil {
		err = c.launch(ctx, s, req)
	}

	var perr *player.Error
	if err != nil && s != nil && errors.As(err, &perr) &&
		s.current.PlayMethod != model.PlayMethodTranscode && !req.forceTranscode {
		c.logger.Warn().Err(err).
			Str(xglog.FieldItemID, req.itemID).
			Str(xglog.FieldPlayMethod, string(s.current.PlayMethod)).
			Msg("direct playback failed to load, retrying with transcoding")
		metrics.RecordTranscodeFallback(string(s.current.PlayMethod))
		c.endSession(ctx, false)
		return c.load(ctx, demote(req, s), success)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, reason(err))
		c.fail(ctx, req.itemID, err)
		return err
	}

	span.SetAttributes(telemetry.PlaybackAttributes(req.itemID, s.current.MediaSource.ID,
		string(s.current.PlayMethod), string(s.current.Backend))...)
	span.SetAttributes(telemetry.StreamAttributes(s.current.PlaySessionID, s.current.AudioIndex,
		s.current.Subtitle.String(), req.position, req.forceTranscode)...)

	if err := c.fire(success); err != nil {
		return err
	}
	c.reportStart(ctx, s, req.position)
	metrics.RecordPlayStart(string(s.current.PlayMethod), string(s.current.Backend))

	c.progressJob.Go(c.base, func(ctx context.Context) { c.progressLoop(ctx, s) })
	c.segmentJob.Go(c.base, func(ctx context.Context) { c.segmentLoop(ctx, s) })

	c.logger.Info().
		Str(xglog.FieldItemID, s.item.ID).
		Str(xglog.FieldSourceID, s.current.MediaSource.ID).
		Str(xglog.FieldPlayMethod, string(s.current.PlayMethod)).
		Str(xglog.FieldBackend, string(s.current.Backend)).
		Dur("position", req.position).
		Msg("playback started")
	c.notify()
	return nil
}

func demote(req playRequest, s *session) playRequest {
	next := req
	next.audio = s.current.AudioIndex
	next.subtitle = s.current.Subtitle
	next.forceTranscode = true
	next.demoted = true
	next.switchDisplay = false
	next.carry = s.itemPlayback.Clone()
	delay := s.current.SubtitleDelay
	next.delay = &delay
	return next
}

// prepare resolves the item, the streams and the server's delivery decision.
func (c *Controller) prepare(ctx context.Context, req playRequest) (*session, error) {
	server := c.opts.Server
	item, err := server.GetItem(ctx, req.itemID)
	if err != nil {
		return nil, &LoadError{ItemID: req.itemID, Err: err}
	}
	if !item.Type.Playable() {
		return nil, &LoadError{ItemID: req.itemID, Err: fmt.Errorf("%w: %s", ErrUnsupportedItem, item.Type)}
	}

	s := &session{
		item:    item,
		userID:  server.UserID(),
		prefs:   c.opts.Preferences.Snapshot(),
		handled: make(map[string]bool),
	}
	s.itemPlayback, s.series = c.loadChoices(ctx, s.userID, item)
	if req.carry != nil {
		s.itemPlayback = req.carry.Clone()
	}

	chooser := c.opts.Chooser
	source := chooser.ChooseSource(item.MediaSources, s.itemPlayback)
	if source == nil {
		return nil, &LoadError{ItemID: item.ID, Err: ErrNoPlayableSource}
	}

	audio := req.audio
	if audio == nil {
		if st := chooser.ChooseAudioStream(source.Streams(jellyfin.StreamAudio), s.itemPlayback, s.series, s.prefs); st != nil {
			audio = model.Int(st.Index)
		}
	}
	audioLanguage := streamLanguage(source, audio)

	subtitles := source.Streams(jellyfin.StreamSubtitle)
	subtitle := req.subtitle
	if subtitle.IsSet() {
		subtitle = chooser.ResolveSubtitleIndex(audioLanguage, subtitles, subtitle, s.series, s.prefs)
	} else {
		subtitle = model.SubtitlesDisabled()
		if st := chooser.ChooseSubtitleStream(audioLanguage, subtitles, s.itemPlayback, s.series, s.prefs); st != nil {
			subtitle = model.SubtitleIndex(st.Index)
		}
	}

	infoReq := c.playbackInfoRequest(s, source, req, audio, subtitle)
	info, err := server.GetPlaybackInfo(ctx, item.ID, infoReq)
	if err != nil {
		return nil, &LoadError{ItemID: item.ID, Err: fmt.Errorf("%w: %w", ErrPlaybackInfo, err)}
	}
	if info.ErrorCode != "" {
		return nil, &LoadError{ItemID: item.ID, Code: info.ErrorCode, Err: ErrPlaybackInfo}
	}

	negotiated := pickSource(info.MediaSources, source)
	if negotiated == nil {
		return nil, &LoadError{ItemID: item.ID, Err: ErrNoPlayableSource}
	}
	method, uri := negotiate(server, item.ID, info.PlaySessionID, negotiated, infoReq)
	if uri == "" {
		return nil, &LoadError{ItemID: item.ID, Err: ErrNoMediaURL}
	}

	s.current = CurrentPlayback{
		ItemID:        item.ID,
		ItemName:      item.Name,
		ItemType:      item.Type,
		SeriesID:      item.SeriesID,
		PlayMethod:    method,
		MediaSource:   *negotiated,
		PlaySessionID: info.PlaySessionID,
		MediaURL:      uri,
		AudioIndex:    audio,
		Subtitle:      subtitle,
		Demoted:       req.demoted,
	}
	switch {
	case req.delay != nil:
		s.current.SubtitleDelay = *req.delay
	case s.itemPlayback != nil:
		s.current.SubtitleDelay = s.itemPlayback.SubtitleDelay
	}
	return s, nil
}

func (c *Controller) playbackInfoRequest(s *session, source *jellyfin.MediaSource, req playRequest, audio *int, subtitle model.SubtitleChoice) jellyfin.PlaybackInfoRequest {
	direct := !req.forceTranscode
	start := jellyfin.DurationToTicks(req.position)
	out := jellyfin.PlaybackInfoRequest{
		UserID:               s.userID,
		StartTimeTicks:       &start,
		AudioStreamIndex:     audio,
		MediaSourceID:        source.ID,
		EnableDirectPlay:     direct && s.prefs.DirectPlayEnabled,
		EnableDirectStream:   direct,
		EnableTranscoding:    true,
		AllowVideoStreamCopy: direct,
		AllowAudioStreamCopy: direct,
		AutoOpenLiveStream:   true,
		DeviceProfile:        DeviceProfile(c.opts.PlayerConfig().Backend, s.prefs.MaxBitrate),
	}
	if idx, ok := subtitle.Index(); ok {
		out.SubtitleStreamIndex = model.Int(idx)
	} else {
		out.SubtitleStreamIndex = model.Int(-1)
	}
	if s.prefs.MaxBitrate > 0 {
		out.MaxStreamingBitrate = model.Int(s.prefs.MaxBitrate)
	}
	if s.prefs.MaxAudioChannels > 0 {
		out.MaxAudioChannels = model.Int(s.prefs.MaxAudioChannels)
	}
	return out
}

// pickSource finds the requested source in the server's answer. Streams
// are taken from the item when the answer omits them.
func pickSource(sources []jellyfin.MediaSource, requested *jellyfin.MediaSource) *jellyfin.MediaSource {
	if len(sources) == 0 {
		return nil
	}
	picked := sources[0]
	for i := range sources {
		if sources[i].ID == requested.ID {
			picked = sources[i]
			break
		}
	}
	if len(picked.MediaStreams) == 0 && picked.ID == requested.ID {
		picked.MediaStreams = requested.MediaStreams
	}
	return &picked
}

func streamLanguage(src *jellyfin.MediaSource, index *int) string {
	if index == nil {
		return ""
	}
	if st, ok := src.Stream(*index); ok {
		return st.Language
	}
	return ""
}

func (c *Controller) loadChoices(ctx context.Context, userID string, item *jellyfin.Item) (*model.ItemPlayback, *model.PlaybackLanguageChoice) {
	repo := c.opts.Repository
	ip, err := repo.GetItemPlayback(ctx, userID, item.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldItemID, item.ID).Msg("failed to read item playback, using policy")
		ip = nil
	}
	if item.SeriesID == "" {
		return ip, nil
	}
	series, err := repo.GetLanguageChoice(ctx, userID, item.SeriesID)
	if err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldSeriesID, item.SeriesID).Msg("failed to read series language choice")
		series = nil
	}
	return ip, series
}

// launch (re)uses the player, installs the listener and loads media.
func (c *Controller) launch(ctx context.Context, s *session, req playRequest) error {
	p, created, err := c.opts.Players.Ensure(ctx, c.opts.PlayerConfig())
	if err != nil {
		return &LoadError{ItemID: s.item.ID, Err: fmt.Errorf("%w: %w", ErrPlayerFailed, err)}
	}
	s.player = p
	s.current.Backend = p.Backend()
	s.pending = initialSelection(s)
	if created {
		c.logger.Debug().Str(xglog.FieldBackend, string(p.Backend())).Msg("player created for session")
	}

	if req.switchDisplay {
		c.switchDisplay(ctx, s)
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	// Tracks are reported asynchronously, so listen before loading.
	s.detach = p.AddListener(c.listener(s))

	media := buildMediaItem(c.opts.Server, s.item.ID, &s.current.MediaSource, s.current.PlayMethod, s.current.MediaURL, s.current.Subtitle)
	if err := p.Load(ctx, media, req.position); err != nil {
		return &LoadError{ItemID: s.item.ID, Err: err}
	}
	if d := s.current.SubtitleDelay; d != 0 {
		if err := p.SetSubtitleDelay(ctx, d); err != nil {
			c.logger.Warn().Err(err).Dur("delay", d).Msg("failed to restore subtitle delay")
		}
	}
	if err := p.Play(ctx); err != nil {
		return &LoadError{ItemID: s.item.ID, Err: err}
	}
	return nil
}

// initialSelection is what the new pipeline must select once its tracks
// are known. Only direct play maps audio and embedded subtitles natively;
// otherwise the server already picked audio and only a side-loaded
// subtitle can be selected.
func initialSelection(s *session) *trackselect.Request {
	cur := &s.current
	req := &trackselect.Request{
		Backend:            cur.Backend,
		SupportsDirectPlay: cur.PlayMethod == model.PlayMethodDirectPlay,
		Subtitle:           cur.Subtitle,
		Source:             &cur.MediaSource,
	}
	if req.SupportsDirectPlay {
		req.AudioIndex = cur.AudioIndex
		return req
	}
	if idx, ok := cur.Subtitle.Index(); ok {
		if st, found := cur.MediaSource.Stream(idx); !found || !st.DeliveredExternally() {
			req.Subtitle = model.SubtitlesDisabled()
		}
	}
	return req
}

func (c *Controller) switchDisplay(ctx context.Context, s *session) {
	if c.opts.RefreshRate == nil || (!s.prefs.RefreshRateSwitch && !s.prefs.ResolutionSwitch) {
		return
	}
	for _, st := range s.current.MediaSource.MediaStreams {
		if st.Type != jellyfin.StreamVideo {
			continue
		}
		outcome := c.opts.RefreshRate.ChangeRefreshRate(ctx, refreshrate.VideoInfo{
			Width:     st.Width,
			Height:    st.Height,
			FrameRate: st.FrameRate(),
		})
		c.logger.Debug().Str("outcome", string(outcome)).Msg("display mode negotiated")
		return
	}
}

// endSession detaches the current session, reports it stopped and
// optionally releases the player. Caller holds sem.
func (c *Controller) endSession(ctx context.Context, release bool) {
	c.progressJob.Cancel()
	c.segmentJob.Cancel()
	c.tracksJob.Cancel()

	c.mu.Lock()
	s := c.session
	c.session = nil
	started := false
	if s != nil {
		last := s.current.clone()
		c.last = &last
		started = s.started
	}
	c.mu.Unlock()

	if s != nil {
		if s.detach != nil {
			s.detach()
		}
		if started {
			c.reportStopped(ctx, s)
		}
	}
	if release {
		if err := c.opts.Players.Release(); err != nil {
			c.logger.Warn().Err(err).Msg("player release failed")
		}
	}
}

// fail moves the session to FAILED and surfaces err. Caller holds sem.
func (c *Controller) fail(ctx context.Context, itemID string, err error) {
	cancelled := errors.Is(err, context.Canceled)
	if cancelled {
		c.logger.Debug().Err(err).Str(xglog.FieldItemID, itemID).Msg("load cancelled")
	} else {
		c.logger.Error().Err(err).Str(xglog.FieldItemID, itemID).Str("reason", reason(err)).Msg("playback failed")
		metrics.RecordPlaybackError(reason(err))
	}

	c.endSession(ctx, true)
	c.mu.Lock()
	if c.last == nil || c.last.ItemID != itemID {
		c.last = &CurrentPlayback{ItemID: itemID}
	}
	c.last.LastError = err.Error()
	c.mu.Unlock()

	_ = c.fire(EventFail)
	if !cancelled {
		c.opts.Observer.OnError(err, true)
	}
	c.notify()
}

func (c *Controller) notify() {
	if cp, ok := c.Current(); ok {
		c.opts.Observer.OnPlaybackChanged(cp)
	}
}

// active returns the live session or ErrNotPlaying.
func (c *Controller) active() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, ErrNotPlaying
	}
	return c.session, nil
}

func (c *Controller) isCurrent(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == s
}

// Pause pauses the player.
func (c *Controller) Pause(ctx context.Context) error {
	return c.setPaused(ctx, true)
}

// Resume resumes the player.
func (c *Controller) Resume(ctx context.Context) error {
	return c.setPaused(ctx, false)
}

func (c *Controller) setPaused(ctx context.Context, paused bool) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	if paused {
		err = s.player.Pause(ctx)
	} else {
		err = s.player.Play(ctx)
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	s.current.Paused = paused
	c.mu.Unlock()
	c.notify()
	return nil
}

// Seek moves the playhead.
func (c *Controller) Seek(ctx context.Context, position time.Duration) error {
	s, err := c.active()
	if err != nil {
		return err
	}
	return s.player.SeekTo(ctx, position)
}
