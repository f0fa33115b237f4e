// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	"github.com/ManuGH/jfplay/internal/playback"
)

type call struct {
	name     string
	itemID   string
	position time.Duration
	audio    *int
	subtitle model.SubtitleChoice
	delay    time.Duration
	segment  string
}

type fakePlayback struct {
	mu      sync.Mutex
	current playback.CurrentPlayback
	playing bool
	err     error
	calls   []call
}

func (f *fakePlayback) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakePlayback) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakePlayback) Current() (playback.CurrentPlayback, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.playing
}

func (f *fakePlayback) Play(_ context.Context, itemID string, position time.Duration) error {
	return f.record(call{name: "play", itemID: itemID, position: position})
}

func (f *fakePlayback) Stop(context.Context) error   { return f.record(call{name: "stop"}) }
func (f *fakePlayback) Pause(context.Context) error  { return f.record(call{name: "pause"}) }
func (f *fakePlayback) Resume(context.Context) error { return f.record(call{name: "resume"}) }

func (f *fakePlayback) Seek(_ context.Context, position time.Duration) error {
	return f.record(call{name: "seek", position: position})
}

func (f *fakePlayback) ChangeStreams(_ context.Context, audio *int, subtitle model.SubtitleChoice, _ bool) error {
	return f.record(call{name: "streams", audio: audio, subtitle: subtitle})
}

func (f *fakePlayback) SetSubtitleDelay(_ context.Context, d time.Duration) error {
	return f.record(call{name: "delay", delay: d})
}

func (f *fakePlayback) ClearChosenStreams(context.Context) error {
	return f.record(call{name: "clear"})
}

func (f *fakePlayback) SkipSegment(_ context.Context, id string) error {
	return f.record(call{name: "skip", segment: id})
}

func (f *fakePlayback) CancelNextUp() { _ = f.record(call{name: "cancel_next_up"}) }

func newTestServer(pb *fakePlayback) http.Handler {
	return New(Config{MetricsHandler: promhttp.Handler()}, pb).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func playingFake() *fakePlayback {
	return &fakePlayback{
		playing: true,
		current: playback.CurrentPlayback{
			State:      playback.StatePlaying,
			ItemID:     "ep1",
			PlayMethod: model.PlayMethodDirectPlay,
			AudioIndex: model.Int(1),
			Subtitle:   model.SubtitleIndex(3),
			MediaSource: jellyfin.MediaSource{
				ID: "src1",
				MediaStreams: []jellyfin.MediaStream{
					{Type: jellyfin.StreamAudio, Index: 1, Language: "eng", IsDefault: true},
					{Type: jellyfin.StreamSubtitle, Index: 3, Language: "ger", IsExternal: true, DisplayTitle: "Deutsch"},
				},
			},
			SubtitleDelay: 250 * time.Millisecond,
		},
	}
}

func TestGetPlayback(t *testing.T) {
	h := newTestServer(playingFake())
	rec := do(t, h, http.MethodGet, "/v1/playback/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var v playbackView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	assert.Equal(t, "PLAYING", v.State)
	assert.Equal(t, "ep1", v.ItemID)
	assert.Equal(t, "DirectPlay", v.PlayMethod)
	assert.Equal(t, "3", v.Subtitle)
	assert.Equal(t, int64(250), v.SubtitleDelayMs)
	require.Len(t, v.Streams, 2)
	assert.True(t, v.Streams[1].External)
	assert.Equal(t, "Deutsch", v.Streams[1].Title)
}

func TestChangeStreams(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		wantAudio *int
		wantSub   model.SubtitleChoice
	}{
		{"audio and track", `{"audioIndex":2,"subtitle":"3"}`, model.Int(2), model.SubtitleIndex(3)},
		{"disable subtitles", `{"subtitle":"disabled"}`, nil, model.SubtitlesDisabled()},
		{"only forced", `{"subtitle":"only_forced"}`, nil, model.SubtitlesOnlyForced()},
		{"keep subtitle", `{"audioIndex":1}`, model.Int(1), model.NoSubtitleChoice()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pb := playingFake()
			rec := do(t, newTestServer(pb), http.MethodPost, "/v1/playback/streams", tc.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			got := pb.last()
			assert.Equal(t, "streams", got.name)
			assert.Equal(t, tc.wantAudio, got.audio)
			assert.Equal(t, tc.wantSub, got.subtitle)
		})
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(playingFake())
	for _, tc := range []struct{ path, body string }{
		{"/v1/playback/streams", `{"subtitle":"sometimes"}`},
		{"/v1/playback/streams", `{"audio":1}`},
		{"/v1/playback/play", `{"positionMs":10}`},
		{"/v1/playback/seek", `{"positionMs":-1}`},
		{"/v1/playback/subtitle-delay", `not json`},
	} {
		rec := do(t, h, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%s %s", tc.path, tc.body)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		slug   string
		code   string
	}{
		{playback.ErrNotPlaying, http.StatusConflict, "not_playing", ""},
		{fmt.Errorf("%w: audio 9", playback.ErrUnknownStream), http.StatusUnprocessableEntity, "unknown_stream", ""},
		{&playback.LoadError{ItemID: "ep1", Code: "NoCompatibleStream", Err: playback.ErrPlaybackInfo}, http.StatusBadGateway, "server_error", "NoCompatibleStream"},
		{&playback.LoadError{ItemID: "x", Err: &jellyfin.APIError{Sentinel: jellyfin.ErrNotFound, Status: 404}}, http.StatusNotFound, "item_not_found", ""},
		{playback.ErrClosed, http.StatusServiceUnavailable, "closed", ""},
	}
	for _, tc := range cases {
		t.Run(tc.slug, func(t *testing.T) {
			pb := playingFake()
			pb.err = tc.err
			rec := do(t, newTestServer(pb), http.MethodPost, "/v1/playback/play", `{"itemId":"ep1"}`)
			require.Equal(t, tc.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.slug, body.Error)
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestCommandsReachController(t *testing.T) {
	pb := playingFake()
	h := newTestServer(pb)

	rec := do(t, h, http.MethodPost, "/v1/playback/play", `{"itemId":"ep2","positionMs":1500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, call{name: "play", itemID: "ep2", position: 1500 * time.Millisecond}, pb.last())

	rec = do(t, h, http.MethodPost, "/v1/playback/subtitle-delay", `{"delayMs":-200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -200*time.Millisecond, pb.last().delay)

	rec = do(t, h, http.MethodDelete, "/v1/playback/streams", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "clear", pb.last().name)

	rec = do(t, h, http.MethodPost, "/v1/playback/segments/intro-1/skip", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "intro-1", pb.last().segment)

	rec = do(t, h, http.MethodPost, "/v1/playback/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stop", pb.last().name)

	rec = do(t, h, http.MethodPost, "/v1/playback/next-up/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancel_next_up", pb.last().name)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(&fakePlayback{})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	_ = do(t, h, http.MethodGet, "/v1/playback/", "")
	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jfplay_http_request_duration_seconds")
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := New(Config{ShutdownGrace: time.Second}, &fakePlayback{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
