// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubtitleChoiceVariants(t *testing.T) {
	t.Parallel()

	assert.False(t, NoSubtitleChoice().IsSet())
	assert.False(t, SubtitlesDisabled().Enabled())
	assert.False(t, SubtitlesOnlyForced().Enabled())

	c := SubtitleIndex(3)
	idx, ok := c.Index()
	require.True(t, ok)
	assert.Equal(t, 3, idx)
	assert.True(t, c.Enabled())

	assert.Equal(t, SubtitleDisabled, SubtitleIndex(-4).Kind())
}

func TestSubtitleChoiceStorage(t *testing.T) {
	t.Parallel()

	for _, c := range []SubtitleChoice{SubtitlesDisabled(), SubtitlesOnlyForced(), SubtitleIndex(0), SubtitleIndex(12)} {
		v, ok := c.Stored()
		require.True(t, ok)
		back, err := SubtitleFromStored(v)
		require.NoError(t, err)
		assert.Equal(t, c, back)
	}

	_, ok := NoSubtitleChoice().Stored()
	assert.False(t, ok)

	_, err := SubtitleFromStored(-7)
	assert.Error(t, err)
}

func TestParseSubtitleChoice(t *testing.T) {
	t.Parallel()

	cases := map[string]SubtitleChoice{
		"":            NoSubtitleChoice(),
		"disabled":    SubtitlesDisabled(),
		"only_forced": SubtitlesOnlyForced(),
		"7":           SubtitleIndex(7),
	}
	for in, want := range cases {
		got, err := ParseSubtitleChoice(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSubtitleChoice("-3")
	assert.Error(t, err)
	_, err = ParseSubtitleChoice("eng")
	assert.Error(t, err)
}

func TestItemPlaybackClone(t *testing.T) {
	t.Parallel()

	orig := &ItemPlayback{ItemID: "a", AudioIndex: Int(2)}
	cp := orig.Clone()
	*cp.AudioIndex = 5
	assert.Equal(t, 2, *orig.AudioIndex)
	assert.True(t, orig.AudioIndexEnabled())

	var nilPlayback *ItemPlayback
	assert.False(t, nilPlayback.AudioIndexEnabled())
	assert.Nil(t, nilPlayback.Clone())
}
