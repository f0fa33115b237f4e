// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads jfplay configuration with precedence
// defaults < YAML file < JFPLAY_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete, validated configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Player   PlayerConfig   `yaml:"player"`
	Playback PlaybackConfig `yaml:"playback"`
	Display  DisplayConfig  `yaml:"display"`
	Store    StoreConfig    `yaml:"store"`
	Cache    CacheConfig    `yaml:"cache"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig describes the Jellyfin server and this client's identity.
type ServerConfig struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	UserID         string        `yaml:"userId"`
	DeviceID       string        `yaml:"deviceId"`
	DeviceName     string        `yaml:"deviceName"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	RateLimit      float64       `yaml:"rateLimit"`
	RateLimitBurst int           `yaml:"rateLimitBurst"`
}

// PlayerConfig selects and tunes the player backend.
type PlayerConfig struct {
	Backend          string        `yaml:"backend"`
	Binary           string        `yaml:"binary"`
	MinBuffer        time.Duration `yaml:"minBuffer"`
	MaxBuffer        time.Duration `yaml:"maxBuffer"`
	CacheMB          int           `yaml:"cacheMB"`
	DecoderMode      string        `yaml:"decoderMode"`
	HardwareDecoding bool          `yaml:"hardwareDecoding"`
	AudioDevice      string        `yaml:"audioDevice"`
	ExtraArgs        []string      `yaml:"extraArgs,omitempty"`
}

// PlaybackConfig holds the user preferences snapshot source.
type PlaybackConfig struct {
	AudioLanguage     string            `yaml:"audioLanguage"`
	SubtitleLanguage  string            `yaml:"subtitleLanguage"`
	SubtitleMode      string            `yaml:"subtitleMode"`
	MaxBitrate        int               `yaml:"maxBitrate"`
	MaxAudioChannels  int               `yaml:"maxAudioChannels"`
	DirectPlay        bool              `yaml:"directPlay"`
	RefreshRateSwitch bool              `yaml:"refreshRateSwitch"`
	ResolutionSwitch  bool              `yaml:"resolutionSwitch"`
	NextUpDelay       time.Duration     `yaml:"nextUpDelay"`
	ResumeRewind      time.Duration     `yaml:"resumeRewind"`
	Segments          map[string]string `yaml:"segments,omitempty"`
}

// DisplayConfig selects the display manager used for mode switching.
type DisplayConfig struct {
	Manager        string        `yaml:"manager"` // none or xrandr
	DisplayID      int           `yaml:"displayId"`
	Binary         string        `yaml:"binary"`
	ConfirmTimeout time.Duration `yaml:"confirmTimeout"`
	SettleDelay    time.Duration `yaml:"settleDelay"`
}

// RedisConfig is shared by the store and cache sections.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StoreConfig selects the choice store backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	DataDir string      `yaml:"dataDir"`
	Redis   RedisConfig `yaml:"redis"`
}

// CacheConfig selects the segment cache.
type CacheConfig struct {
	Backend    string        `yaml:"backend"` // memory, redis or none
	SegmentTTL time.Duration `yaml:"segmentTTL"`
	Redis      RedisConfig   `yaml:"redis"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	Listen    string `yaml:"listen"`
	RateLimit int    `yaml:"rateLimit"` // requests per minute per client, 0 disables
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			DeviceName:     "jfplay",
			Timeout:        10 * time.Second,
			MaxRetries:     2,
			RateLimit:      10,
			RateLimitBurst: 20,
		},
		Player: PlayerConfig{
			Backend:          "mpv",
			Binary:           "mpv",
			MinBuffer:        15 * time.Second,
			MaxBuffer:        60 * time.Second,
			CacheMB:          150,
			DecoderMode:      "prefer",
			HardwareDecoding: true,
		},
		Playback: PlaybackConfig{
			SubtitleMode: "default",
			DirectPlay:   true,
			NextUpDelay:  10 * time.Second,
			Segments: map[string]string{
				"Intro":      "ask",
				"Outro":      "ask",
				"Recap":      "ignore",
				"Preview":    "ignore",
				"Commercial": "auto_skip",
			},
		},
		Display: DisplayConfig{
			Manager:        "none",
			ConfirmTimeout: 5 * time.Second,
			SettleDelay:    2 * time.Second,
		},
		Store: StoreConfig{Backend: "sqlite"},
		Cache: CacheConfig{Backend: "memory", SegmentTTL: 30 * time.Minute},
		API:   APIConfig{Listen: "127.0.0.1:8097", RateLimit: 120},
		Log:   LogConfig{Level: "info", MaxSizeMB: 20, MaxBackups: 3, MaxAgeDays: 14},
		Tracing: TracingConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// Loader loads configuration from an optional file and the environment.
type Loader struct {
	path   string
	lookup func(string) (string, bool)
}

// NewLoader creates a loader. An empty path means environment only.
func NewLoader(path string) *Loader {
	return &Loader{path: path, lookup: os.LookupEnv}
}

// Path returns the configuration file path.
func (l *Loader) Path() string { return l.path }

// Load applies defaults, the file (strict) and the environment, then validates.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.path != "" {
		data, err := readFile(l.path)
		if err != nil {
			return cfg, err
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", l.path, err)
		}
	}

	if err := applyEnv(&cfg, l.lookup); err != nil {
		return cfg, err
	}
	if cfg.Store.DataDir != "" {
		if abs, err := filepath.Abs(cfg.Store.DataDir); err == nil {
			cfg.Store.DataDir = abs
		}
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func readFile(path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	// #nosec G304 -- the path is provided by the operator
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return data, nil
}

// decodeStrict decodes one YAML document over cfg, rejecting unknown keys.
func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// String renders cfg as YAML with secrets masked.
func (c Config) String() string {
	masked := c
	masked.Server.Token = mask(c.Server.Token)
	masked.Store.Redis.Password = mask(c.Store.Redis.Password)
	masked.Cache.Redis.Password = mask(c.Cache.Redis.Password)
	out, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
