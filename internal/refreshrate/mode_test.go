// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package refreshrate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortModes(t *testing.T) {
	in := []Mode{
		{ID: 1, Width: 1920, Height: 1080, RefreshRate: 60},
		{ID: 2, Width: 3840, Height: 2160, RefreshRate: 60},
		{ID: 3, Width: 1920, Height: 1080, RefreshRate: 23.976},
		{ID: 4, Width: 3840, Height: 2160, RefreshRate: 24},
	}
	got := SortModes(in)

	ids := make([]int, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]int{4, 2, 3, 1}, ids); diff != "" {
		t.Errorf("sort order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, in[0].ID, "input must not be reordered")
}

func TestFindDisplayModeTelecine(t *testing.T) {
	modes := SortModes([]Mode{
		{ID: 1, Width: 1920, Height: 1080, RefreshRate: 50},
		{ID: 2, Width: 1920, Height: 1080, RefreshRate: 60},
	})

	got, ok := FindDisplayMode(modes, 1920, 1080, 24, true, false)
	require.True(t, ok)
	assert.Equal(t, 2, got.ID)

	_, ok = FindDisplayMode(modes[:1], 1920, 1080, 24, true, false)
	assert.False(t, ok, "50Hz is not compatible with 24fps")
}

func TestFindDisplayModeNeverSmallerThanStream(t *testing.T) {
	modes := SortModes([]Mode{
		{ID: 1, Width: 3840, Height: 1600, RefreshRate: 24},
		{ID: 2, Width: 1920, Height: 1080, RefreshRate: 24},
		{ID: 3, Width: 1280, Height: 720, RefreshRate: 24},
	})
	for _, flags := range [][2]bool{{true, true}, {true, false}, {false, true}, {false, false}} {
		got, ok := FindDisplayMode(modes, 1920, 1080, 24, flags[0], flags[1])
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, got.Width, 1920)
		assert.GreaterOrEqual(t, got.Height, 1080)
	}

	_, ok := FindDisplayMode(modes, 4096, 2160, 24, true, true)
	assert.False(t, ok)
}

func TestFindDisplayModeResolutionSwitch(t *testing.T) {
	modes := SortModes([]Mode{
		{ID: 1, Width: 3840, Height: 2160, RefreshRate: 23.976},
		{ID: 2, Width: 3840, Height: 2160, RefreshRate: 60},
		{ID: 3, Width: 1920, Height: 1080, RefreshRate: 23.976},
		{ID: 4, Width: 1920, Height: 1080, RefreshRate: 60},
		{ID: 5, Width: 1920, Height: 1200, RefreshRate: 23.976},
	})

	tests := []struct {
		name          string
		width, height int
		rate          float64
		refresh       bool
		want          int
	}{
		{name: "exact match", width: 1920, height: 1080, rate: 23.976, refresh: true, want: 3},
		{name: "letterboxed width match", width: 1920, height: 800, rate: 23.976, refresh: true, want: 3},
		{name: "highest at exact rate", width: 2560, height: 1440, rate: 23.976, refresh: true, want: 1},
		{name: "resolution only keeps rate", width: 1920, height: 1080, rate: 60, refresh: false, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindDisplayMode(modes, tt.width, tt.height, tt.rate, tt.refresh, true)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestFindDisplayModeResolutionSwitchNeedsExactRate(t *testing.T) {
	modes := SortModes([]Mode{
		{ID: 1, Width: 3840, Height: 2160, RefreshRate: 60},
		{ID: 2, Width: 1920, Height: 1080, RefreshRate: 120},
	})
	_, ok := FindDisplayMode(modes, 1920, 1080, 30, true, true)
	assert.False(t, ok, "compatible multiples are not a resolution match")

	got, ok := FindDisplayMode(modes, 1920, 1080, 30, true, false)
	require.True(t, ok, "refresh-only switching still accepts a multiple")
	assert.Equal(t, 1, got.ID)
}

func TestSeamless(t *testing.T) {
	current := Mode{Width: 1920, Height: 1080, RefreshRate: 60, AlternativeRefreshRates: []float64{50}}

	assert.True(t, Seamless(current, Mode{Width: 1920, Height: 1080, RefreshRate: 60}))
	assert.True(t, Seamless(current, Mode{Width: 1920, Height: 1080, RefreshRate: 50}))
	assert.True(t, Seamless(current, Mode{Width: 1920, Height: 1080, RefreshRate: 30}))
	assert.False(t, Seamless(current, Mode{Width: 1920, Height: 1080, RefreshRate: 23.976}))
	assert.False(t, Seamless(current, Mode{Width: 3840, Height: 2160, RefreshRate: 60}))
}
