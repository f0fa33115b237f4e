// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DecoderMode controls use of extension (software) decoders.
type DecoderMode string

const (
	DecoderExtensionOff    DecoderMode = "off"
	DecoderExtensionOn     DecoderMode = "on"
	DecoderExtensionPrefer DecoderMode = "prefer"
)

// Config is the player-relevant slice of user preferences.
type Config struct {
	Backend Backend
	// Binary is the mpv executable; ignored by other backends.
	Binary           string
	MinBuffer        time.Duration
	MaxBuffer        time.Duration
	CacheBytes       int64
	DecoderMode      DecoderMode
	HardwareDecoding bool
	AudioDevice      string
	ExtraArgs        []string
}

// Constructor builds a player for a backend.
type Constructor func(ctx context.Context, cfg Config) (Player, error)

// Factory builds players by backend.
type Factory struct {
	mu           sync.RWMutex
	constructors map[Backend]Constructor
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[Backend]Constructor)}
}

// Register installs the constructor for a backend, replacing any previous one.
func (f *Factory) Register(backend Backend, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[backend] = ctor
}

// Supports reports whether backend has a constructor.
func (f *Factory) Supports(backend Backend) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[backend]
	return ok
}

// New builds a player for cfg.Backend.
func (f *Factory) New(ctx context.Context, cfg Config) (Player, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[cfg.Backend]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("player backend %q is not available", cfg.Backend)
	}
	return ctor(ctx, normalizeConfig(cfg))
}

func normalizeConfig(cfg Config) Config {
	if cfg.MinBuffer <= 0 {
		cfg.MinBuffer = 15 * time.Second
	}
	if cfg.MaxBuffer < cfg.MinBuffer {
		cfg.MaxBuffer = 4 * cfg.MinBuffer
	}
	if cfg.CacheBytes <= 0 {
		cfg.CacheBytes = 150 << 20
	}
	if cfg.DecoderMode == "" {
		cfg.DecoderMode = DecoderExtensionPrefer
	}
	return cfg
}
