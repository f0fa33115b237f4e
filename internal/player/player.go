// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player defines the capability set shared by all player backends.
package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names a native player implementation.
type Backend string

const (
	// BackendMedia3 numbers external subtitles in their own track group.
	BackendMedia3 Backend = "media3"
	// BackendMPV numbers every track of a type contiguously.
	BackendMPV Backend = "mpv"
)

// ParseBackend accepts "media3" (alias "exoplayer") and "mpv".
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "media3", "exoplayer", "exo":
		return BackendMedia3, nil
	case "mpv", "libmpv":
		return BackendMPV, nil
	}
	return "", fmt.Errorf("unknown player backend %q", s)
}

// TrackType is the native track category.
type TrackType string

const (
	TrackVideo TrackType = "video"
	TrackAudio TrackType = "audio"
	TrackText  TrackType = "text"
)

// Track is one native track as reported by the backend.
type Track struct {
	// ID is the backend's identifier. Embedded tracks carry a number,
	// optionally prefixed ("1:3"); external subtitles end in "e:<server index>".
	ID        string
	Type      TrackType
	Language  string
	Label     string
	Codec     string
	External  bool
	Selected  bool
	Supported bool
}

// State is the coarse playback state reported by a backend.
type State string

const (
	StateIdle      State = "idle"
	StateBuffering State = "buffering"
	StateReady     State = "ready"
	StateEnded     State = "ended"
)

// SubtitleConfiguration side-loads an external subtitle file.
type SubtitleConfiguration struct {
	// ID must be "e:<server index>" so the track can be found again.
	ID       string
	URI      string
	MimeType string
	Language string
	Label    string
}

// ExternalSubtitleID builds the id used for a side-loaded subtitle.
func ExternalSubtitleID(serverIndex int) string {
	return fmt.Sprintf("e:%d", serverIndex)
}

// MediaItem is what gets loaded into a player.
type MediaItem struct {
	ID        string
	URI       string
	MimeType  string
	Subtitles []SubtitleConfiguration
}

// ErrReleased is returned by calls on a released player.
var ErrReleased = errors.New("player: released")

// Error is a playback pipeline failure reported by a backend.
type Error struct {
	Backend Backend
	Code    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s player error %s: %v", e.Backend, e.Code, e.Err)
	}
	return fmt.Sprintf("%s player error %s", e.Backend, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Listener receives backend events. Callbacks run on the backend's event
// goroutine and must not block.
type Listener interface {
	OnTracksChanged(tracks []Track)
	OnStateChanged(state State)
	OnError(err error)
}

// ListenerFuncs adapts optional funcs to Listener.
type ListenerFuncs struct {
	TracksChanged func([]Track)
	StateChanged  func(State)
	Error         func(error)
}

func (l ListenerFuncs) OnTracksChanged(tracks []Track) {
	if l.TracksChanged != nil {
		l.TracksChanged(tracks)
	}
}

func (l ListenerFuncs) OnStateChanged(state State) {
	if l.StateChanged != nil {
		l.StateChanged(state)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}

// Player is the capability set the playback core is written against.
type Player interface {
	Backend() Backend
	Load(ctx context.Context, item MediaItem, position time.Duration) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, position time.Duration) error
	Position(ctx context.Context) (time.Duration, error)
	Tracks() []Track
	Selection() Selection
	ApplySelection(ctx context.Context, sel Selection) error
	SetSubtitleDelay(ctx context.Context, delay time.Duration) error
	// AddListener registers l and returns a func removing it.
	AddListener(l Listener) (remove func())
	Release() error
}
