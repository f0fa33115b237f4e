// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/preferences"
)

// ValidationError reports one invalid field.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Reason, e.Value)
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg Config) error {
	var errs []error
	add := func(field string, value any, reason string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Reason: reason})
	}

	if cfg.Server.URL != "" {
		u, err := url.Parse(cfg.Server.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("server.url", cfg.Server.URL, "must be an absolute http(s) URL")
		}
	}
	if cfg.Server.Timeout <= 0 {
		add("server.timeout", cfg.Server.Timeout, "must be positive")
	}
	if cfg.Server.MaxRetries < 0 {
		add("server.maxRetries", cfg.Server.MaxRetries, "must not be negative")
	}
	if cfg.Server.RateLimit < 0 {
		add("server.rateLimit", cfg.Server.RateLimit, "must not be negative")
	}

	if _, err := player.ParseBackend(cfg.Player.Backend); err != nil {
		add("player.backend", cfg.Player.Backend, "must be mpv or media3")
	}
	switch player.DecoderMode(cfg.Player.DecoderMode) {
	case player.DecoderExtensionOff, player.DecoderExtensionOn, player.DecoderExtensionPrefer:
	default:
		add("player.decoderMode", cfg.Player.DecoderMode, "must be off, on or prefer")
	}
	if cfg.Player.MaxBuffer > 0 && cfg.Player.MaxBuffer < cfg.Player.MinBuffer {
		add("player.maxBuffer", cfg.Player.MaxBuffer, "must not be below minBuffer")
	}
	if cfg.Player.CacheMB < 0 {
		add("player.cacheMB", cfg.Player.CacheMB, "must not be negative")
	}

	if _, err := preferences.ParseSubtitleMode(cfg.Playback.SubtitleMode); err != nil {
		add("playback.subtitleMode", cfg.Playback.SubtitleMode, "must be default, always, only_forced, smart or none")
	}
	for segment, action := range cfg.Playback.Segments {
		if _, err := preferences.ParseSegmentAction(action); err != nil {
			add("playback.segments."+segment, action, "must be ignore, ask or auto_skip")
		}
	}
	if cfg.Playback.MaxBitrate < 0 {
		add("playback.maxBitrate", cfg.Playback.MaxBitrate, "must not be negative")
	}
	if cfg.Playback.NextUpDelay < 0 {
		add("playback.nextUpDelay", cfg.Playback.NextUpDelay, "must not be negative")
	}

	switch cfg.Display.Manager {
	case "", "none", "xrandr":
	default:
		add("display.manager", cfg.Display.Manager, "must be none or xrandr")
	}

	switch cfg.Store.Backend {
	case "", "memory", "sqlite", "badger":
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			add("store.redis.addr", "", "required for the redis backend")
		}
	default:
		add("store.backend", cfg.Store.Backend, "must be memory, sqlite, badger or redis")
	}
	if cfg.Store.Backend == "badger" && cfg.Store.DataDir == "" {
		add("store.dataDir", "", "required for the badger backend")
	}

	switch cfg.Cache.Backend {
	case "", "none", "memory":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			add("cache.redis.addr", "", "required for the redis cache")
		}
	default:
		add("cache.backend", cfg.Cache.Backend, "must be none, memory or redis")
	}

	if cfg.API.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			add("api.listen", cfg.API.Listen, "must be host:port")
		}
	}
	if cfg.API.RateLimit < 0 {
		add("api.rateLimit", cfg.API.RateLimit, "must not be negative")
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Exporter {
		case "grpc", "http":
		default:
			add("tracing.exporter", cfg.Tracing.Exporter, "must be grpc or http")
		}
		if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
			add("tracing.samplingRate", cfg.Tracing.SamplingRate, "must be between 0 and 1")
		}
	}

	return errors.Join(errs...)
}
