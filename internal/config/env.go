// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	xglog "github.com/ManuGH/jfplay/internal/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "JFPLAY_"

type envBinding struct {
	key   string
	apply func(cfg *Config, value string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*dst(cfg) = n
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", v)
		}
		*dst(cfg) = f
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			*dst(cfg) = true
		case "false", "0", "no":
			*dst(cfg) = false
		default:
			return fmt.Errorf("invalid boolean %q", v)
		}
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		*dst(cfg) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"SERVER_URL", str(func(c *Config) *string { return &c.Server.URL })},
	{"TOKEN", str(func(c *Config) *string { return &c.Server.Token })},
	{"USER_ID", str(func(c *Config) *string { return &c.Server.UserID })},
	{"DEVICE_ID", str(func(c *Config) *string { return &c.Server.DeviceID })},
	{"DEVICE_NAME", str(func(c *Config) *string { return &c.Server.DeviceName })},
	{"SERVER_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Server.Timeout })},
	{"SERVER_MAX_RETRIES", integer(func(c *Config) *int { return &c.Server.MaxRetries })},
	{"SERVER_RATE_LIMIT", float(func(c *Config) *float64 { return &c.Server.RateLimit })},

	{"PLAYER_BACKEND", str(func(c *Config) *string { return &c.Player.Backend })},
	{"MPV_BINARY", str(func(c *Config) *string { return &c.Player.Binary })},
	{"HARDWARE_DECODING", boolean(func(c *Config) *bool { return &c.Player.HardwareDecoding })},
	{"DECODER_MODE", str(func(c *Config) *string { return &c.Player.DecoderMode })},
	{"AUDIO_DEVICE", str(func(c *Config) *string { return &c.Player.AudioDevice })},

	{"AUDIO_LANGUAGE", str(func(c *Config) *string { return &c.Playback.AudioLanguage })},
	{"SUBTITLE_LANGUAGE", str(func(c *Config) *string { return &c.Playback.SubtitleLanguage })},
	{"SUBTITLE_MODE", str(func(c *Config) *string { return &c.Playback.SubtitleMode })},
	{"MAX_BITRATE", integer(func(c *Config) *int { return &c.Playback.MaxBitrate })},
	{"MAX_AUDIO_CHANNELS", integer(func(c *Config) *int { return &c.Playback.MaxAudioChannels })},
	{"DIRECT_PLAY", boolean(func(c *Config) *bool { return &c.Playback.DirectPlay })},
	{"REFRESH_RATE_SWITCH", boolean(func(c *Config) *bool { return &c.Playback.RefreshRateSwitch })},
	{"RESOLUTION_SWITCH", boolean(func(c *Config) *bool { return &c.Playback.ResolutionSwitch })},
	{"NEXT_UP_DELAY", duration(func(c *Config) *time.Duration { return &c.Playback.NextUpDelay })},

	{"DISPLAY_MANAGER", str(func(c *Config) *string { return &c.Display.Manager })},
	{"DISPLAY_ID", integer(func(c *Config) *int { return &c.Display.DisplayID })},

	{"STORE_BACKEND", str(func(c *Config) *string { return &c.Store.Backend })},
	{"DATA_DIR", str(func(c *Config) *string { return &c.Store.DataDir })},
	{"STORE_REDIS_ADDR", str(func(c *Config) *string { return &c.Store.Redis.Addr })},
	{"CACHE_BACKEND", str(func(c *Config) *string { return &c.Cache.Backend })},
	{"CACHE_REDIS_ADDR", str(func(c *Config) *string { return &c.Cache.Redis.Addr })},

	{"API_LISTEN", str(func(c *Config) *string { return &c.API.Listen })},
	{"API_RATE_LIMIT", integer(func(c *Config) *int { return &c.API.RateLimit })},

	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FILE", str(func(c *Config) *string { return &c.Log.File })},
	{"LOG_CONSOLE", boolean(func(c *Config) *bool { return &c.Log.Console })},

	{"TRACING_ENABLED", boolean(func(c *Config) *bool { return &c.Tracing.Enabled })},
	{"TRACING_EXPORTER", str(func(c *Config) *string { return &c.Tracing.Exporter })},
	{"OTLP_ENDPOINT", str(func(c *Config) *string { return &c.Tracing.Endpoint })},
}

// EnvKeys lists every supported environment variable.
func EnvKeys() []string {
	keys := make([]string, 0, len(envBindings))
	for _, b := range envBindings {
		keys = append(keys, EnvPrefix+b.key)
	}
	return keys
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	logger := xglog.WithComponent("config")
	var errs []error
	for _, b := range envBindings {
		key := EnvPrefix + b.key
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		ev := logger.Debug().Str("key", key).Str("source", "environment")
		if sensitive(key) {
			ev = ev.Bool("sensitive", true)
		} else {
			ev = ev.Str("value", v)
		}
		ev.Msg("using environment variable")
	}
	return errors.Join(errs...)
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password")
}
