// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import "sort"

// Selection is an immutable set of per-type track overrides. Builders
// return modified copies.
type Selection struct {
	overrides map[TrackType]string
	disabled  map[TrackType]bool
}

// Override returns a copy selecting trackID for its type and re-enabling the type.
func (s Selection) Override(t TrackType, trackID string) Selection {
	out := s.clone()
	out.overrides[t] = trackID
	delete(out.disabled, t)
	return out
}

// Disable returns a copy with track type t switched off.
func (s Selection) Disable(t TrackType) Selection {
	out := s.clone()
	out.disabled[t] = true
	delete(out.overrides, t)
	return out
}

// Enable returns a copy with track type t switched back on.
func (s Selection) Enable(t TrackType) Selection {
	out := s.clone()
	delete(out.disabled, t)
	return out
}

// TrackID returns the override for t.
func (s Selection) TrackID(t TrackType) (string, bool) {
	id, ok := s.overrides[t]
	return id, ok
}

// Disabled reports whether t is switched off.
func (s Selection) Disabled(t TrackType) bool {
	return s.disabled[t]
}

// Types lists every type with an override or a disable flag, sorted.
func (s Selection) Types() []TrackType {
	seen := make(map[TrackType]struct{}, len(s.overrides)+len(s.disabled))
	for t := range s.overrides {
		seen[t] = struct{}{}
	}
	for t := range s.disabled {
		seen[t] = struct{}{}
	}
	out := make([]TrackType, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s Selection) clone() Selection {
	out := Selection{
		overrides: make(map[TrackType]string, len(s.overrides)+1),
		disabled:  make(map[TrackType]bool, len(s.disabled)+1),
	}
	for k, v := range s.overrides {
		out.overrides[k] = v
	}
	for k, v := range s.disabled {
		out.disabled[k] = v
	}
	return out
}
