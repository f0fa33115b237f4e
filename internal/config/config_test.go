// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/ManuGH/jfplay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	l := NewLoader("")
	l.lookup = envFrom(nil)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeYAML(t, `
server:
  url: http://jellyfin.local:8096
  token: secret
player:
  backend: media3
playback:
  audioLanguage: jpn
  subtitleMode: smart
  segments:
    Intro: auto_skip
`)
	l := NewLoader(path)
	l.lookup = envFrom(map[string]string{
		"JFPLAY_AUDIO_LANGUAGE": "ger",
		"JFPLAY_DIRECT_PLAY":    "false",
		"JFPLAY_NEXT_UP_DELAY":  "5s",
	})

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://jellyfin.local:8096", cfg.Server.URL)
	assert.Equal(t, "media3", cfg.Player.Backend)
	assert.Equal(t, "ger", cfg.Playback.AudioLanguage, "env wins over file")
	assert.False(t, cfg.Playback.DirectPlay)
	assert.Equal(t, 5*time.Second, cfg.Playback.NextUpDelay)

	prefs := cfg.Preferences()
	assert.Equal(t, preferences.SubtitleModeSmart, prefs.SubtitleMode)
	assert.Equal(t, preferences.SegmentAutoSkip, prefs.SegmentAction("Intro"))
	assert.Equal(t, preferences.SegmentAutoSkip, prefs.SegmentAction("Commercial"), "defaults merge with file entries")

	assert.Equal(t, player.BackendMedia3, cfg.PlayerConfig().Backend)
	assert.Equal(t, int64(150<<20), cfg.PlayerConfig().CacheBytes)
	assert.NotContains(t, cfg.String(), "secret")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeYAML(t, "server:\n  urll: http://x\n")
	l := NewLoader(path)
	l.lookup = envFrom(nil)
	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeYAML(t, "log:\n  level: debug\n---\nlog:\n  level: info\n")
	l := NewLoader(path)
	l.lookup = envFrom(nil)
	_, err := l.Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonYAML(t *testing.T) {
	_, err := NewLoader("/etc/jfplay.json").Load()
	assert.ErrorContains(t, err, "only YAML supported")
}

func TestInvalidEnvValuesAreReported(t *testing.T) {
	l := NewLoader("")
	l.lookup = envFrom(map[string]string{
		"JFPLAY_MAX_BITRATE":   "fast",
		"JFPLAY_DIRECT_PLAY":   "maybe",
		"JFPLAY_NEXT_UP_DELAY": "soon",
	})
	_, err := l.Load()
	require.Error(t, err)
	for _, key := range []string{"JFPLAY_MAX_BITRATE", "JFPLAY_DIRECT_PLAY", "JFPLAY_NEXT_UP_DELAY"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"relative url", func(c *Config) { c.Server.URL = "jellyfin.local" }, "server.url"},
		{"backend", func(c *Config) { c.Player.Backend = "vlc" }, "player.backend"},
		{"decoder", func(c *Config) { c.Player.DecoderMode = "maybe" }, "player.decoderMode"},
		{"subtitle mode", func(c *Config) { c.Playback.SubtitleMode = "loud" }, "playback.subtitleMode"},
		{"segment action", func(c *Config) { c.Playback.Segments["Intro"] = "jump" }, "playback.segments.Intro"},
		{"redis store addr", func(c *Config) { c.Store.Backend = "redis" }, "store.redis.addr"},
		{"badger dir", func(c *Config) { c.Store.Backend = "badger" }, "store.dataDir"},
		{"listen", func(c *Config) { c.API.Listen = "8097" }, "api.listen"},
		{"display", func(c *Config) { c.Display.Manager = "wayland" }, "display.manager"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.edit(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.NoError(t, Validate(Defaults()))
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Defaults()
	cfg.Server.URL = "https://jf.example.org"
	require.True(t, EnsureDeviceID(&cfg))
	require.False(t, EnsureDeviceID(&cfg))

	require.NoError(t, WriteFile(path, cfg, false))
	assert.ErrorIs(t, WriteFile(path, cfg, false), ErrExists)
	require.NoError(t, WriteFile(path, cfg, true))

	l := NewLoader(path)
	l.lookup = envFrom(nil)
	loaded, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestStoreConfigConversion(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Backend = "redis"
	cfg.Store.Redis.Addr = "localhost:6379"
	sc := cfg.StoreConfig()
	assert.Equal(t, store.BackendRedis, sc.Backend)
	assert.Equal(t, "localhost:6379", sc.Redis.Addr)
}

func TestHolderReloadsOnFileChange(t *testing.T) {
	path := writeYAML(t, "playback:\n  audioLanguage: eng\n")
	l := NewLoader(path)
	l.lookup = envFrom(nil)
	initial, err := l.Load()
	require.NoError(t, err)

	h := NewHolder(initial, l)
	assert.Equal(t, "eng", h.Preferences().Snapshot().AudioLanguage)

	updates := make(chan Config, 1)
	h.RegisterListener(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("playback:\n  audioLanguage: fra\n"), 0o600))

	select {
	case got := <-updates:
		assert.Equal(t, "fra", got.Playback.AudioLanguage)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.Equal(t, "fra", h.Get().Playback.AudioLanguage)
	assert.Equal(t, "fra", h.Preferences().Snapshot().AudioLanguage)
}

func TestHolderKeepsConfigOnInvalidReload(t *testing.T) {
	path := writeYAML(t, "playback:\n  subtitleMode: always\n")
	l := NewLoader(path)
	l.lookup = envFrom(nil)
	initial, err := l.Load()
	require.NoError(t, err)
	h := NewHolder(initial, l)

	require.NoError(t, os.WriteFile(path, []byte("playback:\n  subtitleMode: loud\n"), 0o600))
	assert.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "always", h.Get().Playback.SubtitleMode)
}
