// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/jfplay/internal/cache"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/ManuGH/jfplay/internal/refreshrate"
	"github.com/ManuGH/jfplay/internal/store"
	"github.com/ManuGH/jfplay/internal/telemetry"
	"golang.org/x/time/rate"
)

// Preferences builds the user preference snapshot. cfg must be valid.
func (c Config) Preferences() preferences.UserPreferences {
	mode, _ := preferences.ParseSubtitleMode(c.Playback.SubtitleMode)
	actions := make(map[string]preferences.SegmentAction, len(c.Playback.Segments))
	for segment, raw := range c.Playback.Segments {
		a, _ := preferences.ParseSegmentAction(raw)
		actions[segment] = a
	}
	return preferences.UserPreferences{
		AudioLanguage:     c.Playback.AudioLanguage,
		SubtitleLanguage:  c.Playback.SubtitleLanguage,
		SubtitleMode:      mode,
		MaxBitrate:        c.Playback.MaxBitrate,
		MaxAudioChannels:  c.Playback.MaxAudioChannels,
		DirectPlayEnabled: c.Playback.DirectPlay,
		SegmentActions:    actions,
		RefreshRateSwitch: c.Playback.RefreshRateSwitch,
		ResolutionSwitch:  c.Playback.ResolutionSwitch,
		NextUpDelay:       c.Playback.NextUpDelay,
		ResumeRewind:      c.Playback.ResumeRewind,
	}
}

// PlayerConfig builds the player factory configuration.
func (c Config) PlayerConfig() player.Config {
	backend, _ := player.ParseBackend(c.Player.Backend)
	return player.Config{
		Backend:          backend,
		Binary:           c.Player.Binary,
		MinBuffer:        c.Player.MinBuffer,
		MaxBuffer:        c.Player.MaxBuffer,
		CacheBytes:       int64(c.Player.CacheMB) << 20,
		DecoderMode:      player.DecoderMode(c.Player.DecoderMode),
		HardwareDecoding: c.Player.HardwareDecoding,
		AudioDevice:      c.Player.AudioDevice,
		ExtraArgs:        append([]string(nil), c.Player.ExtraArgs...),
	}
}

// ClientOptions builds the Jellyfin client options.
func (c Config) ClientOptions(version string, segments cache.Cache) jellyfin.Options {
	return jellyfin.Options{
		Token:          c.Server.Token,
		UserID:         c.Server.UserID,
		DeviceID:       c.Server.DeviceID,
		DeviceName:     c.Server.DeviceName,
		ClientName:     "jfplay",
		Version:        version,
		Timeout:        c.Server.Timeout,
		MaxRetries:     c.Server.MaxRetries,
		RateLimit:      rate.Limit(c.Server.RateLimit),
		RateLimitBurst: c.Server.RateLimitBurst,
		Cache:          segments,
		SegmentTTL:     c.Cache.SegmentTTL,
	}
}

// StoreConfig builds the choice store configuration.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Backend: store.Backend(c.Store.Backend),
		Dir:     c.Store.DataDir,
		Redis: store.RedisConfig{
			Addr:     c.Store.Redis.Addr,
			Password: c.Store.Redis.Password,
			DB:       c.Store.Redis.DB,
		},
	}
}

// CacheRedisConfig builds the redis segment cache configuration.
func (c Config) CacheRedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.Cache.Redis.Addr,
		Password: c.Cache.Redis.Password,
		DB:       c.Cache.Redis.DB,
	}
}

// RefreshRateOptions builds the display switching options.
func (c Config) RefreshRateOptions() refreshrate.Options {
	return refreshrate.Options{
		DisplayID:         c.Display.DisplayID,
		RefreshRateSwitch: c.Playback.RefreshRateSwitch,
		ResolutionSwitch:  c.Playback.ResolutionSwitch,
		ConfirmTimeout:    c.Display.ConfirmTimeout,
		SettleDelay:       c.Display.SettleDelay,
	}
}

// LogConfig builds the logger configuration.
func (c Config) LogConfig(version string) xglog.Config {
	return xglog.Config{
		Level:      c.Log.Level,
		Service:    "jfplay",
		Version:    version,
		Console:    c.Log.Console,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// TelemetryConfig builds the tracer provider configuration.
func (c Config) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    "jfplay",
		ServiceVersion: version,
		DeviceName:     c.Server.DeviceName,
		DeviceID:       c.Server.DeviceID,
		ExporterType:   c.Tracing.Exporter,
		Endpoint:       c.Tracing.Endpoint,
		SamplingRate:   c.Tracing.SamplingRate,
	}
}
