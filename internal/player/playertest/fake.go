// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playertest provides an in-memory player backend for tests.
package playertest

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/jfplay/internal/player"
)

// Fake is a scriptable player. Track events are delivered asynchronously,
// the way real backends report them after media has loaded.
type Fake struct {
	BackendName player.Backend
	// TracksFor returns the native tracks exposed after loading item.
	TracksFor func(item player.MediaItem) []player.Track

	mu         sync.Mutex
	listeners  map[int]player.Listener
	nextID     int
	loads      []Load
	selections []player.Selection
	selection  player.Selection
	tracks     []player.Track
	position   time.Duration
	delay      time.Duration
	playing    bool
	released   bool
	seekErr    error
	seekFails  int
	wg         sync.WaitGroup
}

// Load records one Load call.
type Load struct {
	Item     player.MediaItem
	Position time.Duration
}

// New returns a fake for backend.
func New(backend player.Backend, tracksFor func(player.MediaItem) []player.Track) *Fake {
	return &Fake{BackendName: backend, TracksFor: tracksFor, listeners: make(map[int]player.Listener)}
}

// Constructor returns a player.Constructor that always hands out f.
func Constructor(f *Fake) player.Constructor {
	return func(context.Context, player.Config) (player.Player, error) { return f, nil }
}

func (f *Fake) Backend() player.Backend { return f.BackendName }

func (f *Fake) Load(_ context.Context, item player.MediaItem, position time.Duration) error {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return player.ErrReleased
	}
	f.loads = append(f.loads, Load{Item: item, Position: position})
	f.position = position
	f.selection = player.Selection{}
	var tracks []player.Track
	if f.TracksFor != nil {
		tracks = f.TracksFor(item)
	}
	f.tracks = tracks
	f.mu.Unlock()

	f.dispatch(func(l player.Listener) {
		l.OnStateChanged(player.StateReady)
		l.OnTracksChanged(tracks)
	})
	return nil
}

func (f *Fake) Play(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	return nil
}

func (f *Fake) Pause(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	return nil
}

func (f *Fake) SeekTo(_ context.Context, position time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seekFails > 0 {
		f.seekFails--
		return f.seekErr
	}
	f.position = position
	return nil
}

// FailSeeks makes the next n seeks return err without moving the playhead.
func (f *Fake) FailSeeks(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekFails = n
	f.seekErr = err
}

func (f *Fake) Position(context.Context) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, nil
}

// SetPosition moves the playhead as if playback progressed.
func (f *Fake) SetPosition(p time.Duration) {
	f.mu.Lock()
	f.position = p
	f.mu.Unlock()
}

func (f *Fake) Tracks() []player.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]player.Track(nil), f.tracks...)
}

func (f *Fake) Selection() player.Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selection
}

func (f *Fake) ApplySelection(_ context.Context, sel player.Selection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selection = sel
	f.selections = append(f.selections, sel)
	return nil
}

func (f *Fake) SetSubtitleDelay(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return nil
}

func (f *Fake) AddListener(l player.Listener) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *Fake) Release() error {
	f.mu.Lock()
	f.released = true
	f.listeners = make(map[int]player.Listener)
	f.mu.Unlock()
	return nil
}

// Reuse clears the released flag so the same fake can be handed out again.
func (f *Fake) Reuse() {
	f.mu.Lock()
	f.released = false
	f.mu.Unlock()
}

// EmitError reports a pipeline error to listeners.
func (f *Fake) EmitError(err error) {
	f.dispatch(func(l player.Listener) { l.OnError(err) })
}

// EmitState reports a state change to listeners.
func (f *Fake) EmitState(s player.State) {
	f.dispatch(func(l player.Listener) { l.OnStateChanged(s) })
}

// Wait blocks until every dispatched event has been delivered.
func (f *Fake) Wait() { f.wg.Wait() }

// Loads returns every recorded Load call.
func (f *Fake) Loads() []Load {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Load(nil), f.loads...)
}

// Selections returns every applied selection.
func (f *Fake) Selections() []player.Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]player.Selection(nil), f.selections...)
}

// SubtitleDelay returns the last applied delay.
func (f *Fake) SubtitleDelay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delay
}

// Released reports whether Release was called.
func (f *Fake) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *Fake) dispatch(fn func(player.Listener)) {
	f.mu.Lock()
	ls := make([]player.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		for _, l := range ls {
			fn(l)
		}
	}()
}
