// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package refreshrate

import (
	"fmt"
	"math"
	"sort"
)

// Mode is one physical display mode.
type Mode struct {
	ID          int
	Width       int
	Height      int
	RefreshRate float64
	// AlternativeRefreshRates lists rates the panel can switch to without
	// a mode set (seamless switches).
	AlternativeRefreshRates []float64
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%.3f", m.Width, m.Height, m.RefreshRate)
}

// RoundedRate returns the refresh rate in millihertz.
func (m Mode) RoundedRate() int { return RoundRate(m.RefreshRate) }

// RoundRate converts a rate in Hz (or fps) to an integer in milli-units.
func RoundRate(rate float64) int {
	return int(math.Round(rate * 1000))
}

// SortModes returns a copy of modes ordered by resolution descending, then
// rounded refresh rate ascending.
func SortModes(modes []Mode) []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Width != b.Width {
			return a.Width > b.Width
		}
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.RoundedRate() < b.RoundedRate()
	})
	return out
}

// compatibleRate reports whether a display at displayRate can show content
// at streamRate without judder: an exact multiple, or the 2.5x telecine case.
func compatibleRate(displayRate, streamRate int) bool {
	if streamRate <= 0 || displayRate <= 0 {
		return false
	}
	if displayRate%streamRate == 0 {
		return true
	}
	return displayRate*2 == streamRate*5
}

// FindDisplayMode picks the best display mode for a stream. candidates must
// already be ordered with SortModes. The returned mode is never smaller than
// the stream in either dimension.
func FindDisplayMode(candidates []Mode, width, height int, frameRate float64, refreshRateSwitch, resolutionSwitch bool) (Mode, bool) {
	target := RoundRate(frameRate)

	filtered := make([]Mode, 0, len(candidates))
	for _, m := range candidates {
		if m.Width < width || m.Height < height {
			continue
		}
		if refreshRateSwitch && !compatibleRate(m.RoundedRate(), target) {
			continue
		}
		filtered = append(filtered, m)
	}
	if len(filtered) == 0 {
		return Mode{}, false
	}
	if !resolutionSwitch {
		return filtered[0], true
	}

	for _, m := range filtered {
		if m.Width == width && m.Height == height && m.RoundedRate() == target {
			return m, true
		}
	}

	var (
		cropped Mode
		found   bool
	)
	for _, m := range filtered {
		if m.Width == width && m.Height >= height && m.RoundedRate() == target {
			// Ordered by height descending; keep the tightest fit.
			cropped, found = m, true
		}
	}
	if found {
		return cropped, true
	}

	// Only modes at the stream's own rate are eligible here; a mode that is
	// merely a compatible multiple does not count as a resolution match.
	for _, m := range filtered {
		if m.RoundedRate() == target {
			return m, true
		}
	}
	return Mode{}, false
}

// Seamless reports whether switching from current to target avoids a full
// mode set: same resolution and a rate the panel already lists as an
// alternative, or an even multiple of one.
func Seamless(current, target Mode) bool {
	if current.Width != target.Width || current.Height != target.Height {
		return false
	}
	to := target.RoundedRate()
	rates := append([]float64{current.RefreshRate}, current.AlternativeRefreshRates...)
	for _, r := range rates {
		from := RoundRate(r)
		if from == to {
			return true
		}
		if from > 0 && to > 0 && (from%to == 0 || to%from == 0) {
			return true
		}
	}
	return false
}
