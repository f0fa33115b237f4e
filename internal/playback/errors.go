// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"errors"
	"fmt"

	"github.com/ManuGH/jfplay/internal/player"
)

// Fatal loading errors. They end the current attempt and reach the observer.
var (
	ErrPlaybackInfo     = errors.New("playback info request failed")
	ErrNoMediaURL       = errors.New("no media url for the negotiated source")
	ErrNoPlayableSource = errors.New("no playable media source")
	ErrUnsupportedItem  = errors.New("unsupported item type")
	ErrPlayerFailed     = errors.New("player failed")
)

// Caller errors.
var (
	ErrNotPlaying     = errors.New("nothing is playing")
	ErrUnknownStream  = errors.New("unknown stream index")
	ErrUnknownSegment = errors.New("unknown media segment")
	ErrClosed         = errors.New("playback controller closed")
)

// LoadError wraps a fatal error with the item it happened on.
type LoadError struct {
	ItemID string
	// Code is the server error code, if the server supplied one.
	Code string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("load %s: %v (%s)", e.ItemID, e.Err, e.Code)
	}
	return fmt.Sprintf("load %s: %v", e.ItemID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// reason maps an error onto a metrics label.
func reason(err error) string {
	var perr *player.Error
	switch {
	case errors.Is(err, ErrPlaybackInfo):
		return "playback_info"
	case errors.Is(err, ErrNoMediaURL):
		return "no_media_url"
	case errors.Is(err, ErrNoPlayableSource):
		return "no_source"
	case errors.Is(err, ErrUnsupportedItem):
		return "unsupported_item"
	case errors.As(err, &perr), errors.Is(err, ErrPlayerFailed):
		return "player"
	default:
		return "server"
	}
}
