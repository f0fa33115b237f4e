// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/player/playertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionBuildersAreImmutable(t *testing.T) {
	base := player.Selection{}
	withAudio := base.Override(player.TrackAudio, "1:2")
	noText := withAudio.Disable(player.TrackText)

	_, ok := base.TrackID(player.TrackAudio)
	assert.False(t, ok)

	id, ok := noText.TrackID(player.TrackAudio)
	require.True(t, ok)
	assert.Equal(t, "1:2", id)
	assert.True(t, noText.Disabled(player.TrackText))
	assert.False(t, withAudio.Disabled(player.TrackText))

	reenabled := noText.Override(player.TrackText, "e:4")
	assert.False(t, reenabled.Disabled(player.TrackText))
	assert.Equal(t, []player.TrackType{player.TrackAudio, player.TrackText}, reenabled.Types())
	assert.False(t, noText.Enable(player.TrackText).Disabled(player.TrackText))
}

func TestParseBackend(t *testing.T) {
	b, err := player.ParseBackend("ExoPlayer")
	require.NoError(t, err)
	assert.Equal(t, player.BackendMedia3, b)

	b, err = player.ParseBackend("mpv")
	require.NoError(t, err)
	assert.Equal(t, player.BackendMPV, b)

	_, err = player.ParseBackend("vlc")
	assert.Error(t, err)
}

func TestFactoryNormalizesConfig(t *testing.T) {
	var got player.Config
	f := player.NewFactory()
	f.Register(player.BackendMPV, func(_ context.Context, cfg player.Config) (player.Player, error) {
		got = cfg
		return playertest.New(player.BackendMPV, nil), nil
	})

	_, err := f.New(context.Background(), player.Config{Backend: player.BackendMPV, MinBuffer: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, got.MaxBuffer)
	assert.Equal(t, int64(150<<20), got.CacheBytes)
	assert.Equal(t, player.DecoderExtensionPrefer, got.DecoderMode)

	assert.True(t, f.Supports(player.BackendMPV))
	assert.False(t, f.Supports(player.BackendMedia3))
	_, err = f.New(context.Background(), player.Config{Backend: player.BackendMedia3})
	assert.Error(t, err)
}

func TestHandleReleasesBeforeReplacing(t *testing.T) {
	var order []string
	first := playertest.New(player.BackendMedia3, nil)
	second := playertest.New(player.BackendMPV, nil)

	f := player.NewFactory()
	f.Register(player.BackendMedia3, func(context.Context, player.Config) (player.Player, error) {
		order = append(order, "new-media3")
		return first, nil
	})
	f.Register(player.BackendMPV, func(context.Context, player.Config) (player.Player, error) {
		order = append(order, "new-mpv")
		assert.True(t, first.Released(), "previous player released first")
		return second, nil
	})

	h := player.NewHandle(f)
	p, created, err := h.Ensure(context.Background(), player.Config{Backend: player.BackendMedia3})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Same(t, first, p)

	p, created, err = h.Ensure(context.Background(), player.Config{Backend: player.BackendMedia3})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, p)

	p, created, err = h.Ensure(context.Background(), player.Config{Backend: player.BackendMPV})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Same(t, second, p)
	assert.Equal(t, []string{"new-media3", "new-mpv"}, order)

	require.NoError(t, h.Release())
	assert.True(t, second.Released())
	assert.Nil(t, h.Get())
	require.NoError(t, h.Release())
}

func TestHandleReplaceFailureLeavesEmpty(t *testing.T) {
	f := player.NewFactory()
	f.Register(player.BackendMPV, func(context.Context, player.Config) (player.Player, error) {
		return nil, errors.New("spawn failed")
	})
	h := player.NewHandle(f)
	_, err := h.Replace(context.Background(), player.Config{Backend: player.BackendMPV})
	assert.Error(t, err)
	assert.Nil(t, h.Get())
}

func TestPlayerErrorUnwraps(t *testing.T) {
	cause := errors.New("decoder init failed")
	err := &player.Error{Backend: player.BackendMPV, Code: "loading failed", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "mpv player error loading failed")
	assert.Equal(t, "e:7", player.ExternalSubtitleID(7))
}
