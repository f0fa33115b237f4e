// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/jfplay/internal/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeMPV answers IPC commands on one end of a pipe.
type fakeMPV struct {
	t    *testing.T
	conn net.Conn

	writeMu  sync.Mutex
	mu       sync.Mutex
	commands [][]any
	// onCommand may return extra events to emit after the reply.
	onCommand func(cmd []any) (data any, events []map[string]any)
	done      chan struct{}
}

func newFakeMPV(t *testing.T) (*fakeMPV, net.Conn) {
	server, client := net.Pipe()
	f := &fakeMPV{t: t, conn: server, done: make(chan struct{})}
	go f.serve()
	return f, client
}

func (f *fakeMPV) serve() {
	defer close(f.done)
	sc := bufio.NewScanner(f.conn)
	for sc.Scan() {
		var req struct {
			Command   []any `json:"command"`
			RequestID int64 `json:"request_id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.commands = append(f.commands, req.Command)
		handler := f.onCommand
		f.mu.Unlock()

		var (
			data   any
			events []map[string]any
		)
		if handler != nil {
			data, events = handler(req.Command)
		}
		if err := f.send(map[string]any{"request_id": req.RequestID, "error": "success", "data": data}); err != nil {
			return
		}
		for _, ev := range events {
			if err := f.send(ev); err != nil {
				return
			}
		}
		if len(req.Command) > 0 && req.Command[0] == "quit" {
			_ = f.conn.Close()
			return
		}
	}
}

func (f *fakeMPV) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, err = f.conn.Write(append(b, '\n'))
	return err
}

func (f *fakeMPV) sent(name string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]any
	for _, c := range f.commands {
		if len(c) > 0 && c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeMPV) handle(fn func(cmd []any) (any, []map[string]any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCommand = fn
}

func trackList(tracks ...map[string]any) map[string]any {
	return map[string]any{"event": "property-change", "id": trackListObserver, "name": "track-list", "data": tracks}
}

func TestLoadSideLoadsSubtitlesAndMapsIDs(t *testing.T) {
	srv, conn := newFakeMPV(t)
	srv.handle(func(cmd []any) (any, []map[string]any) {
		switch cmd[0] {
		case "loadfile":
			return nil, []map[string]any{{"event": "start-file"}, {"event": "file-loaded"}}
		case "sub-add":
			return nil, []map[string]any{trackList(
				map[string]any{"id": 1, "type": "video"},
				map[string]any{"id": 1, "type": "audio", "lang": "eng", "selected": true},
				map[string]any{"id": 1, "type": "sub", "lang": "eng"},
				map[string]any{"id": 2, "type": "sub", "lang": "ger", "external": true, "external-filename": "http://jf/sub.srt"},
			)}
		}
		return nil, nil
	})

	p, err := NewWithConn(context.Background(), conn)
	require.NoError(t, err)

	changed := make(chan []player.Track, 4)
	remove := p.AddListener(player.ListenerFuncs{TracksChanged: func(tr []player.Track) { changed <- tr }})
	defer remove()

	item := player.MediaItem{
		URI: "http://jf/video.mkv",
		Subtitles: []player.SubtitleConfiguration{
			{ID: player.ExternalSubtitleID(0), URI: "http://jf/sub.srt", Language: "ger", Label: "German"},
		},
	}
	require.NoError(t, p.Load(context.Background(), item, 90*time.Second))

	var tracks []player.Track
	select {
	case tracks = <-changed:
	case <-time.After(time.Second):
		t.Fatal("no track-list update")
	}
	require.Len(t, tracks, 4)
	assert.Equal(t, "e:0", tracks[3].ID)
	assert.True(t, tracks[3].External)
	assert.Equal(t, player.TrackText, tracks[3].Type)

	starts := srv.sent("set_property")
	require.NotEmpty(t, starts)
	assert.Equal(t, []any{"set_property", "start", "90.000"}, starts[0])
	assert.Len(t, srv.sent("sub-add"), 1)

	sel := player.Selection{}.Override(player.TrackText, "e:0").Override(player.TrackAudio, "1")
	require.NoError(t, p.ApplySelection(context.Background(), sel))
	assert.Contains(t, srv.sent("set_property"), []any{"set_property", "sid", float64(2)})
	assert.Contains(t, srv.sent("set_property"), []any{"set_property", "aid", float64(1)})
	got, ok := p.Selection().TrackID(player.TrackText)
	assert.True(t, ok)
	assert.Equal(t, "e:0", got)

	require.NoError(t, p.ApplySelection(context.Background(), player.Selection{}.Disable(player.TrackText)))
	assert.Contains(t, srv.sent("set_property"), []any{"set_property", "sid", "no"})

	require.NoError(t, p.Release())
	<-srv.done
}

func TestLoadFailsOnEndFileError(t *testing.T) {
	srv, conn := newFakeMPV(t)
	srv.handle(func(cmd []any) (any, []map[string]any) {
		if cmd[0] == "loadfile" {
			return nil, []map[string]any{{"event": "end-file", "reason": "error", "file_error": "unrecognized file format"}}
		}
		return nil, nil
	})
	p, err := NewWithConn(context.Background(), conn)
	require.NoError(t, err)

	err = p.Load(context.Background(), player.MediaItem{URI: "http://jf/bad"}, 0)
	var perr *player.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, player.BackendMPV, perr.Backend)

	require.NoError(t, p.Release())
	<-srv.done
}

func TestPlaybackEventsReachListeners(t *testing.T) {
	srv, conn := newFakeMPV(t)
	p, err := NewWithConn(context.Background(), conn)
	require.NoError(t, err)

	states := make(chan player.State, 4)
	errs := make(chan error, 1)
	p.AddListener(player.ListenerFuncs{
		StateChanged: func(s player.State) { states <- s },
		Error:        func(err error) { errs <- err },
	})

	require.NoError(t, srv.send(map[string]any{"event": "playback-restart"}))
	require.NoError(t, srv.send(map[string]any{"event": "end-file", "reason": "eof"}))
	require.NoError(t, srv.send(map[string]any{"event": "end-file", "reason": "error", "file_error": "loading failed"}))

	assert.Equal(t, player.StateReady, <-states)
	assert.Equal(t, player.StateEnded, <-states)
	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "loading failed")
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}

	require.NoError(t, p.Release())
	<-srv.done
}

func TestPositionAndReleasedCalls(t *testing.T) {
	srv, conn := newFakeMPV(t)
	srv.handle(func(cmd []any) (any, []map[string]any) {
		if cmd[0] == "get_property" && cmd[1] == "time-pos" {
			return 12.5, nil
		}
		return nil, nil
	})
	p, err := NewWithConn(context.Background(), conn)
	require.NoError(t, err)

	pos, err := p.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, pos)

	require.NoError(t, p.SetSubtitleDelay(context.Background(), -250*time.Millisecond))
	assert.Contains(t, srv.sent("set_property"), []any{"set_property", "sub-delay", -0.25})

	require.NoError(t, p.Release())
	require.NoError(t, p.Release())
	<-srv.done

	assert.True(t, errors.Is(p.Play(context.Background()), player.ErrReleased))
	assert.ErrorIs(t, p.Load(context.Background(), player.MediaItem{}, 0), player.ErrReleased)
}

func TestArgs(t *testing.T) {
	args := Args(player.Config{
		CacheBytes:       1 << 20,
		MinBuffer:        10 * time.Second,
		MaxBuffer:        40 * time.Second,
		HardwareDecoding: true,
		DecoderMode:      player.DecoderExtensionOff,
		AudioDevice:      "alsa/hdmi",
		ExtraArgs:        []string{"--fs"},
	}, "/tmp/sock")

	assert.Contains(t, args, "--input-ipc-server=/tmp/sock")
	assert.Contains(t, args, "--demuxer-max-bytes=1048576")
	assert.Contains(t, args, "--hwdec=auto-safe")
	assert.Contains(t, args, "--vd-lavc-software-fallback=no")
	assert.Contains(t, args, "--audio-device=alsa/hdmi")
	assert.Equal(t, "--fs", args[len(args)-1])
}
