// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/player/playertest"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/ManuGH/jfplay/internal/refreshrate"
	"github.com/ManuGH/jfplay/internal/store"
)

type fakeServer struct {
	mu       sync.Mutex
	items    map[string]*jellyfin.Item
	segments map[string][]jellyfin.MediaSegment
	// respond overrides the default playback info answer.
	respond  func(item *jellyfin.Item, req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error)
	requests []jellyfin.PlaybackInfoRequest
	starts   []jellyfin.PlayingReport
	progress []jellyfin.PlayingReport
	stops    []jellyfin.PlayingReport
	sessions int
}

func newFakeServer(items ...*jellyfin.Item) *fakeServer {
	s := &fakeServer{
		items:    make(map[string]*jellyfin.Item),
		segments: make(map[string][]jellyfin.MediaSegment),
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *fakeServer) UserID() string { return "u1" }

func (s *fakeServer) GetItem(_ context.Context, itemID string) (*jellyfin.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return nil, &jellyfin.APIError{Sentinel: jellyfin.ErrNotFound, Operation: "item", Status: 404}
	}
	cp := *it
	return &cp, nil
}

func (s *fakeServer) item(itemID string) *jellyfin.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[itemID]
}

func (s *fakeServer) GetPlaybackInfo(_ context.Context, itemID string, req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.sessions++
	session := fmt.Sprintf("ps-%d", s.sessions)
	item := s.items[itemID]
	respond := s.respond
	s.mu.Unlock()

	if respond != nil {
		return respond(item, req)
	}
	sources := make([]jellyfin.MediaSource, len(item.MediaSources))
	for i, src := range item.MediaSources {
		src.TranscodingURL = "/videos/" + itemID + "/master.m3u8"
		src.TranscodingSubProtocol = "hls"
		src.TranscodingContainer = "ts"
		sources[i] = src
	}
	return &jellyfin.PlaybackInfoResponse{MediaSources: sources, PlaySessionID: session}, nil
}

func (s *fakeServer) GetItemSegments(_ context.Context, itemID string) ([]jellyfin.MediaSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segments[itemID], nil
}

func (s *fakeServer) ReportPlaybackStart(_ context.Context, r jellyfin.PlayingReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, r)
	return nil
}

func (s *fakeServer) ReportPlaybackProgress(_ context.Context, r jellyfin.PlayingReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, r)
	return nil
}

func (s *fakeServer) ReportPlaybackStopped(_ context.Context, r jellyfin.PlayingReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, r)
	return nil
}

func (s *fakeServer) ResolveURL(path string) string { return "http://jf" + path }

func (s *fakeServer) StreamURL(itemID, sourceID, container, playSessionID string) string {
	return fmt.Sprintf("http://jf/stream/%s/%s.%s?ps=%s", itemID, sourceID, container, playSessionID)
}

func (s *fakeServer) SubtitleURL(itemID, sourceID string, stream jellyfin.MediaStream) string {
	return fmt.Sprintf("http://jf/subs/%s/%s/%d", itemID, sourceID, stream.Index)
}

func (s *fakeServer) infoRequests() []jellyfin.PlaybackInfoRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jellyfin.PlaybackInfoRequest(nil), s.requests...)
}

func (s *fakeServer) counts() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts), len(s.stops)
}

type countingRepo struct {
	*store.MemoryStore
	saves atomic.Int32
}

func (r *countingRepo) SaveItemPlayback(ctx context.Context, p *model.ItemPlayback) error {
	r.saves.Add(1)
	return r.MemoryStore.SaveItemPlayback(ctx, p)
}

type recorder struct {
	NopObserver
	mu      sync.Mutex
	prompts []jellyfin.MediaSegment
	nextUp  []string
	fatal   []error
	soft    []error
}

func (r *recorder) OnSegmentPrompt(seg jellyfin.MediaSegment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, seg)
}

func (r *recorder) OnNextUp(itemID string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextUp = append(r.nextUp, itemID)
}

func (r *recorder) OnError(err error, fatal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fatal {
		r.fatal = append(r.fatal, err)
	} else {
		r.soft = append(r.soft, err)
	}
}

func (r *recorder) promptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

func (r *recorder) fatalErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.fatal...)
}

func (r *recorder) softErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.soft...)
}

type staticPlaylist map[string]string

func (p staticPlaylist) Next(_ context.Context, itemID string) (string, bool, error) {
	next, ok := p[itemID]
	return next, ok, nil
}

type fakeSwitcher struct {
	mu    sync.Mutex
	calls []refreshrate.VideoInfo
}

func (f *fakeSwitcher) ChangeRefreshRate(_ context.Context, v refreshrate.VideoInfo) refreshrate.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, v)
	return refreshrate.OutcomeConfirmed
}

// media3Tracks numbers embedded streams the way a Media3 style backend
// does and appends side-loaded subtitles.
func media3Tracks(src *jellyfin.MediaSource, subs []player.SubtitleConfiguration) []player.Track {
	external := 0
	for _, st := range src.MediaStreams {
		if st.Type == jellyfin.StreamSubtitle && st.DeliveredExternally() {
			external++
		}
	}
	var out []player.Track
	for _, st := range src.MediaStreams {
		if st.Type == jellyfin.StreamSubtitle && st.DeliveredExternally() {
			continue
		}
		t := player.TrackVideo
		switch st.Type {
		case jellyfin.StreamAudio:
			t = player.TrackAudio
		case jellyfin.StreamSubtitle:
			t = player.TrackText
		}
		out = append(out, player.Track{
			ID:        strconv.Itoa(st.Index - external + 1),
			Type:      t,
			Language:  st.Language,
			Supported: true,
		})
	}
	for _, sc := range subs {
		out = append(out, player.Track{ID: sc.ID, Type: player.TrackText, Language: sc.Language, External: true, Supported: true})
	}
	return out
}

func episodeStreams() []jellyfin.MediaStream {
	return []jellyfin.MediaStream{
		{Type: jellyfin.StreamVideo, Index: 0, Codec: "hevc", Width: 1920, Height: 1080, RealFrameRate: 23.976},
		{Type: jellyfin.StreamAudio, Index: 1, Language: "eng", Channels: 6, IsDefault: true},
		{Type: jellyfin.StreamAudio, Index: 2, Language: "jpn", Channels: 2},
		{Type: jellyfin.StreamSubtitle, Index: 3, Language: "eng", Codec: "subrip"},
		{Type: jellyfin.StreamSubtitle, Index: 4, Language: "eng", Codec: "subrip", IsForced: true},
	}
}

func episode(id string) *jellyfin.Item {
	return &jellyfin.Item{
		ID:       id,
		Name:     "Episode " + id,
		Type:     jellyfin.KindEpisode,
		SeriesID: "series1",
		MediaSources: []jellyfin.MediaSource{{
			ID:                   "src-" + id,
			Container:            "mkv",
			SupportsDirectPlay:   true,
			SupportsDirectStream: true,
			SupportsTranscoding:  true,
			MediaStreams:         episodeStreams(),
		}},
	}
}

type harness struct {
	ctrl   *Controller
	server *fakeServer
	repo   *countingRepo
	fake   *playertest.Fake
	obs    *recorder
	prefs  *preferences.Static
}

func newHarness(t *testing.T, prefs preferences.UserPreferences, configure func(*Options), items ...*jellyfin.Item) *harness {
	t.Helper()
	if len(items) == 0 {
		items = []*jellyfin.Item{episode("ep1")}
	}
	h := &harness{
		server: newFakeServer(items...),
		repo:   &countingRepo{MemoryStore: store.NewMemoryStore()},
		obs:    &recorder{},
		prefs:  preferences.NewStatic(prefs),
	}
	h.fake = playertest.New(player.BackendMedia3, func(mi player.MediaItem) []player.Track {
		it := h.server.item(mi.ID)
		return media3Tracks(&it.MediaSources[0], mi.Subtitles)
	})

	factory := player.NewFactory()
	factory.Register(player.BackendMedia3, playertest.Constructor(h.fake))
	opts := Options{
		Server:            h.server,
		Repository:        h.repo,
		Preferences:       h.prefs,
		Players:           player.NewHandle(factory),
		PlayerConfig:      func() player.Config { return player.Config{Backend: player.BackendMedia3} },
		Observer:          h.obs,
		ProgressInterval:  time.Hour,
		SegmentInterval:   5 * time.Millisecond,
		SubtitleDelaySave: 30 * time.Millisecond,
	}
	if configure != nil {
		configure(&opts)
	}
	ctrl, err := New(opts)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) close() {
	_ = h.ctrl.Close()
	h.fake.Wait()
}

func (h *harness) current(t *testing.T) CurrentPlayback {
	t.Helper()
	cp, ok := h.ctrl.Current()
	require.True(t, ok)
	return cp
}
