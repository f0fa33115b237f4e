// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package preferences defines the read-only user preference snapshot
// consumed by a playback session.
package preferences

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// SubtitleMode is the global subtitle policy.
type SubtitleMode string

const (
	SubtitleModeDefault    SubtitleMode = "default"
	SubtitleModeAlways     SubtitleMode = "always"
	SubtitleModeOnlyForced SubtitleMode = "only_forced"
	SubtitleModeSmart      SubtitleMode = "smart"
	SubtitleModeNone       SubtitleMode = "none"
)

// ParseSubtitleMode accepts the lowercase names above.
func ParseSubtitleMode(s string) (SubtitleMode, error) {
	m := SubtitleMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case SubtitleModeDefault, SubtitleModeAlways, SubtitleModeOnlyForced, SubtitleModeSmart, SubtitleModeNone:
		return m, nil
	case "":
		return SubtitleModeDefault, nil
	}
	return "", fmt.Errorf("unknown subtitle mode %q", s)
}

// SegmentAction is what happens when playback enters a media segment.
type SegmentAction string

const (
	SegmentIgnore   SegmentAction = "ignore"
	SegmentAsk      SegmentAction = "ask"
	SegmentAutoSkip SegmentAction = "auto_skip"
)

// ParseSegmentAction accepts ignore, ask and auto_skip.
func ParseSegmentAction(s string) (SegmentAction, error) {
	a := SegmentAction(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case SegmentIgnore, SegmentAsk, SegmentAutoSkip:
		return a, nil
	case "":
		return SegmentIgnore, nil
	}
	return "", fmt.Errorf("unknown segment action %q", s)
}

// UserPreferences is a point-in-time snapshot. Treat as immutable.
type UserPreferences struct {
	AudioLanguage    string
	SubtitleLanguage string
	SubtitleMode     SubtitleMode

	// MaxBitrate caps the streaming bitrate in bits per second; 0 means unlimited.
	MaxBitrate        int
	MaxAudioChannels  int
	DirectPlayEnabled bool
	// SegmentActions maps a server segment type (Intro, Outro, ...) to an action.
	SegmentActions map[string]SegmentAction

	RefreshRateSwitch bool
	ResolutionSwitch  bool
	NextUpDelay       time.Duration
	ResumeRewind      time.Duration
}

// SegmentAction returns the configured action for a segment type.
func (p UserPreferences) SegmentAction(segmentType string) SegmentAction {
	if a, ok := p.SegmentActions[segmentType]; ok {
		return a
	}
	return SegmentIgnore
}

// Defaults returns the preferences used when nothing is configured.
func Defaults() UserPreferences {
	return UserPreferences{
		SubtitleMode:      SubtitleModeDefault,
		DirectPlayEnabled: true,
		SegmentActions: map[string]SegmentAction{
			"Intro":      SegmentAsk,
			"Outro":      SegmentAsk,
			"Recap":      SegmentIgnore,
			"Preview":    SegmentIgnore,
			"Commercial": SegmentAutoSkip,
		},
		NextUpDelay: 10 * time.Second,
	}
}

// Provider hands out snapshots.
type Provider interface {
	Snapshot() UserPreferences
}

// Static is a Provider holding a fixed snapshot that can be swapped atomically.
type Static struct {
	v atomic.Pointer[UserPreferences]
}

// NewStatic creates a provider holding p.
func NewStatic(p UserPreferences) *Static {
	s := &Static{}
	s.Set(p)
	return s
}

// Snapshot returns the current preferences.
func (s *Static) Snapshot() UserPreferences {
	if p := s.v.Load(); p != nil {
		return *p
	}
	return Defaults()
}

// Set replaces the held snapshot.
func (s *Static) Set(p UserPreferences) {
	actions := make(map[string]SegmentAction, len(p.SegmentActions))
	for k, v := range p.SegmentActions {
		actions[k] = v
	}
	p.SegmentActions = actions
	s.v.Store(&p)
}
