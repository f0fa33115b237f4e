// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model holds the persisted playback choices of a user.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// SubtitleKind discriminates the SubtitleChoice union.
type SubtitleKind uint8

const (
	// SubtitleUnset means no explicit choice was made; policy decides.
	SubtitleUnset SubtitleKind = iota
	// SubtitleDisabled hard-disables subtitles for the item.
	SubtitleDisabled
	// SubtitleOnlyForced shows forced subtitles only.
	SubtitleOnlyForced
	// SubtitleTrack pins a concrete server stream index.
	SubtitleTrack
)

// Storage encoding of the non-track subtitle choices.
const (
	storedDisabled   = -1
	storedOnlyForced = -2
)

// SubtitleChoice is the per-item subtitle decision.
// The zero value is SubtitleUnset.
type SubtitleChoice struct {
	kind  SubtitleKind
	index int
}

// NoSubtitleChoice returns the unset choice.
func NoSubtitleChoice() SubtitleChoice { return SubtitleChoice{} }

// SubtitlesDisabled returns the disabled choice.
func SubtitlesDisabled() SubtitleChoice { return SubtitleChoice{kind: SubtitleDisabled} }

// SubtitlesOnlyForced returns the only-forced choice.
func SubtitlesOnlyForced() SubtitleChoice { return SubtitleChoice{kind: SubtitleOnlyForced} }

// SubtitleIndex pins a server stream index. Negative indices are not tracks
// and map to SubtitlesDisabled.
func SubtitleIndex(index int) SubtitleChoice {
	if index < 0 {
		return SubtitlesDisabled()
	}
	return SubtitleChoice{kind: SubtitleTrack, index: index}
}

// Kind reports which variant is held.
func (c SubtitleChoice) Kind() SubtitleKind { return c.kind }

// Index returns the pinned stream index and whether the choice is a track.
func (c SubtitleChoice) Index() (int, bool) {
	if c.kind != SubtitleTrack {
		return 0, false
	}
	return c.index, true
}

// Enabled reports whether a concrete track is pinned.
func (c SubtitleChoice) Enabled() bool { return c.kind == SubtitleTrack }

// IsSet reports whether any explicit choice was made.
func (c SubtitleChoice) IsSet() bool { return c.kind != SubtitleUnset }

func (c SubtitleChoice) String() string {
	switch c.kind {
	case SubtitleDisabled:
		return "disabled"
	case SubtitleOnlyForced:
		return "only_forced"
	case SubtitleTrack:
		return strconv.Itoa(c.index)
	default:
		return "unset"
	}
}

// Stored encodes the choice for persistence. Unset has no stored form.
func (c SubtitleChoice) Stored() (int, bool) {
	switch c.kind {
	case SubtitleDisabled:
		return storedDisabled, true
	case SubtitleOnlyForced:
		return storedOnlyForced, true
	case SubtitleTrack:
		return c.index, true
	default:
		return 0, false
	}
}

// SubtitleFromStored decodes a persisted value.
func SubtitleFromStored(v int) (SubtitleChoice, error) {
	switch {
	case v == storedDisabled:
		return SubtitlesDisabled(), nil
	case v == storedOnlyForced:
		return SubtitlesOnlyForced(), nil
	case v >= 0:
		return SubtitleIndex(v), nil
	default:
		return SubtitleChoice{}, fmt.Errorf("invalid stored subtitle value %d", v)
	}
}

// ParseSubtitleChoice accepts "disabled", "only_forced", "unset"/"" or a stream index.
func ParseSubtitleChoice(s string) (SubtitleChoice, error) {
	switch s {
	case "", "unset":
		return NoSubtitleChoice(), nil
	case "disabled", "off", "none":
		return SubtitlesDisabled(), nil
	case "only_forced", "forced":
		return SubtitlesOnlyForced(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return SubtitleChoice{}, fmt.Errorf("invalid subtitle choice %q", s)
	}
	return SubtitleIndex(n), nil
}

// ItemPlayback is the persisted per user+item stream choice.
type ItemPlayback struct {
	UserID   string
	ItemID   string
	SourceID string
	// AudioIndex is nil until the user picks an audio stream.
	AudioIndex    *int
	Subtitle      SubtitleChoice
	SubtitleDelay time.Duration
	UpdatedAt     time.Time
}

// AudioIndexEnabled reports whether an explicit audio stream is pinned.
func (p *ItemPlayback) AudioIndexEnabled() bool {
	return p != nil && p.AudioIndex != nil && *p.AudioIndex >= 0
}

// Clone returns a deep copy.
func (p *ItemPlayback) Clone() *ItemPlayback {
	if p == nil {
		return nil
	}
	cp := *p
	if p.AudioIndex != nil {
		v := *p.AudioIndex
		cp.AudioIndex = &v
	}
	return &cp
}

// PlaybackLanguageChoice overrides language preferences for a whole series.
type PlaybackLanguageChoice struct {
	UserID            string
	SeriesID          string
	AudioLanguage     string
	SubtitleLanguage  string
	SubtitlesDisabled bool
}

// PlayMethod is the negotiated delivery mode.
type PlayMethod string

const (
	PlayMethodDirectPlay   PlayMethod = "DirectPlay"
	PlayMethodDirectStream PlayMethod = "DirectStream"
	PlayMethodTranscode    PlayMethod = "Transcode"
)

// Int returns a pointer to v.
func Int(v int) *int { return &v }
