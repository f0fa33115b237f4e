// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mpv implements player.Player on top of an mpv process driven
// through its JSON IPC socket.
package mpv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/rs/zerolog"
)

const trackListObserver = 1

// Register installs the mpv backend into f.
func Register(f *player.Factory) {
	f.Register(player.BackendMPV, New)
}

type mpvTrack struct {
	ID               int    `json:"id"`
	Type             string `json:"type"`
	Lang             string `json:"lang"`
	Title            string `json:"title"`
	Codec            string `json:"codec"`
	External         bool   `json:"external"`
	ExternalFilename string `json:"external-filename"`
	Selected         bool   `json:"selected"`
}

var trackTypes = map[string]player.TrackType{
	"video": player.TrackVideo,
	"audio": player.TrackAudio,
	"sub":   player.TrackText,
}

var selectProperty = map[player.TrackType]string{
	player.TrackVideo: "vid",
	player.TrackAudio: "aid",
	player.TrackText:  "sid",
}

// Player is an mpv-backed player.
type Player struct {
	ipc    *ipc
	proc   *process
	logger zerolog.Logger

	mu        sync.Mutex
	listeners map[int]player.Listener
	nextID    int
	tracks    []player.Track
	native    map[string]int
	external  map[string]string
	selection player.Selection
	loading   chan error
	released  bool

	dispatchDone chan struct{}
	releaseOnce  sync.Once
	releaseErr   error
}

// NewWithConn drives an already running mpv through conn.
func NewWithConn(ctx context.Context, conn io.ReadWriteCloser) (*Player, error) {
	return attach(ctx, conn, nil)
}

func attach(ctx context.Context, conn io.ReadWriteCloser, proc *process) (*Player, error) {
	p := &Player{
		ipc:          newIPC(conn),
		proc:         proc,
		logger:       xglog.WithComponent("player").With().Str(xglog.FieldBackend, string(player.BackendMPV)).Logger(),
		listeners:    make(map[int]player.Listener),
		native:       make(map[string]int),
		external:     make(map[string]string),
		dispatchDone: make(chan struct{}),
	}
	go p.dispatch()

	if _, err := p.ipc.command(ctx, "observe_property", trackListObserver, "track-list"); err != nil {
		_ = p.Release()
		return nil, fmt.Errorf("mpv: observe track-list: %w", err)
	}
	return p, nil
}

func (p *Player) Backend() player.Backend { return player.BackendMPV }

// Load replaces the current file and blocks until mpv has opened it, then
// side-loads the item's external subtitles.
func (p *Player) Load(ctx context.Context, item player.MediaItem, position time.Duration) error {
	loading := make(chan error, 1)

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return player.ErrReleased
	}
	p.selection = player.Selection{}
	p.external = make(map[string]string, len(item.Subtitles))
	for _, sub := range item.Subtitles {
		p.external[sub.URI] = sub.ID
	}
	p.loading = loading
	p.mu.Unlock()

	start := strconv.FormatFloat(position.Seconds(), 'f', 3, 64)
	if _, err := p.ipc.command(ctx, "set_property", "start", start); err != nil {
		return p.loadFailed(err)
	}
	if _, err := p.ipc.command(ctx, "loadfile", item.URI, "replace"); err != nil {
		return p.loadFailed(err)
	}

	select {
	case err := <-loading:
		if err != nil {
			return p.loadFailed(err)
		}
	case <-p.ipc.done:
		return p.loadFailed(ErrClosed)
	case <-ctx.Done():
		return p.loadFailed(ctx.Err())
	}

	for _, sub := range item.Subtitles {
		if _, err := p.ipc.command(ctx, "sub-add", sub.URI, "auto", sub.Label, sub.Language); err != nil {
			p.logger.Warn().Err(err).Str("subtitle", sub.ID).Msg("failed to add external subtitle")
		}
	}
	return nil
}

func (p *Player) loadFailed(err error) error {
	p.mu.Lock()
	p.loading = nil
	p.mu.Unlock()
	return fmt.Errorf("mpv: load: %w", err)
}

func (p *Player) Play(ctx context.Context) error  { return p.set(ctx, "pause", false) }
func (p *Player) Pause(ctx context.Context) error { return p.set(ctx, "pause", true) }

func (p *Player) SeekTo(ctx context.Context, position time.Duration) error {
	if p.isReleased() {
		return player.ErrReleased
	}
	_, err := p.ipc.command(ctx, "seek", position.Seconds(), "absolute")
	return err
}

func (p *Player) Position(ctx context.Context) (time.Duration, error) {
	if p.isReleased() {
		return 0, player.ErrReleased
	}
	data, err := p.ipc.command(ctx, "get_property", "time-pos")
	if err != nil {
		return 0, err
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return 0, fmt.Errorf("mpv: decode time-pos: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (p *Player) Tracks() []player.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]player.Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

func (p *Player) Selection() player.Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selection
}

// ApplySelection maps each override to mpv's vid/aid/sid properties.
func (p *Player) ApplySelection(ctx context.Context, sel player.Selection) error {
	for _, t := range sel.Types() {
		prop, ok := selectProperty[t]
		if !ok {
			continue
		}
		var value any = "no"
		if !sel.Disabled(t) {
			id, _ := sel.TrackID(t)
			native, err := p.nativeID(t, id)
			if err != nil {
				return err
			}
			value = native
		}
		if err := p.set(ctx, prop, value); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.selection = sel
	p.mu.Unlock()
	return nil
}

func nativeKey(t player.TrackType, id string) string {
	return string(t) + "/" + id
}

func (p *Player) nativeID(t player.TrackType, id string) (int, error) {
	p.mu.Lock()
	native, ok := p.native[nativeKey(t, id)]
	p.mu.Unlock()
	if ok {
		return native, nil
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, fmt.Errorf("mpv: unknown track %q", id)
	}
	return n, nil
}

func (p *Player) SetSubtitleDelay(ctx context.Context, delay time.Duration) error {
	return p.set(ctx, "sub-delay", delay.Seconds())
}

func (p *Player) AddListener(l player.Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Release quits mpv and waits for the event goroutine. It is idempotent.
func (p *Player) Release() error {
	p.releaseOnce.Do(func() {
		p.mu.Lock()
		p.released = true
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		if _, err := p.ipc.command(ctx, "quit"); err != nil && !errors.Is(err, ErrClosed) {
			p.logger.Debug().Err(err).Msg("quit command failed")
		}
		cancel()

		_ = p.ipc.close()
		<-p.dispatchDone
		if p.proc != nil {
			p.releaseErr = p.proc.stop()
		}
	})
	return p.releaseErr
}

func (p *Player) isReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *Player) set(ctx context.Context, prop string, value any) error {
	if p.isReleased() {
		return player.ErrReleased
	}
	_, err := p.ipc.command(ctx, "set_property", prop, value)
	return err
}

func (p *Player) dispatch() {
	defer close(p.dispatchDone)
	for {
		batch, ok := p.ipc.events()
		if !ok {
			return
		}
		for _, msg := range batch {
			p.handle(msg)
		}
	}
}

func (p *Player) handle(msg message) {
	switch msg.Event {
	case "property-change":
		if msg.ID == trackListObserver && msg.Name == "track-list" {
			p.updateTracks(msg.Data)
		}
	case "start-file", "seek":
		p.emitState(player.StateBuffering)
	case "file-loaded":
		p.finishLoad(nil)
	case "playback-restart":
		p.emitState(player.StateReady)
	case "end-file":
		switch msg.Reason {
		case "eof":
			p.emitState(player.StateEnded)
		case "error":
			err := &player.Error{Backend: player.BackendMPV, Code: "end-file", Err: errors.New(msg.FileError)}
			if !p.finishLoad(err) {
				p.emitError(err)
			}
		}
	}
}

// finishLoad hands the result to a pending Load and reports whether one
// was waiting.
func (p *Player) finishLoad(err error) bool {
	p.mu.Lock()
	ch := p.loading
	p.loading = nil
	p.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- err
	return true
}

func (p *Player) updateTracks(data json.RawMessage) {
	var raw []mpvTrack
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &raw); err != nil {
			p.logger.Warn().Err(err).Msg("failed to decode track-list")
			return
		}
	}

	p.mu.Lock()
	tracks := make([]player.Track, 0, len(raw))
	native := make(map[string]int, len(raw))
	for _, t := range raw {
		typ, ok := trackTypes[t.Type]
		if !ok {
			continue
		}
		id := strconv.Itoa(t.ID)
		if t.External {
			if ext, ok := p.external[t.ExternalFilename]; ok && typ == player.TrackText {
				id = ext
			}
		}
		native[nativeKey(typ, id)] = t.ID
		tracks = append(tracks, player.Track{
			ID:        id,
			Type:      typ,
			Language:  t.Lang,
			Label:     t.Title,
			Codec:     t.Codec,
			External:  t.External,
			Selected:  t.Selected,
			Supported: true,
		})
	}
	p.tracks = tracks
	p.native = native
	listeners := p.listenersLocked()
	p.mu.Unlock()

	for _, l := range listeners {
		l.OnTracksChanged(tracks)
	}
}

func (p *Player) emitState(s player.State) {
	p.mu.Lock()
	listeners := p.listenersLocked()
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnStateChanged(s)
	}
}

func (p *Player) emitError(err error) {
	p.mu.Lock()
	listeners := p.listenersLocked()
	p.mu.Unlock()
	p.logger.Warn().Err(err).Msg("playback error")
	for _, l := range listeners {
		l.OnError(err)
	}
}

func (p *Player) listenersLocked() []player.Listener {
	out := make([]player.Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		out = append(out, l)
	}
	return out
}

var _ player.Player = (*Player)(nil)
