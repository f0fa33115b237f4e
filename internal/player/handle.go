// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"sync"

	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/rs/zerolog"
)

// Handle owns at most one live player. Replacing it always releases the
// previous player before the new one is constructed.
type Handle struct {
	mu      sync.Mutex
	factory *Factory
	current Player
	config  Config
	logger  zerolog.Logger
}

// NewHandle returns an empty handle.
func NewHandle(factory *Factory) *Handle {
	return &Handle{factory: factory, logger: xglog.WithComponent("player")}
}

// Get returns the owned player or nil.
func (h *Handle) Get() Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Ensure returns the owned player when it was built from an identical
// backend, otherwise it replaces it.
func (h *Handle) Ensure(ctx context.Context, cfg Config) (Player, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil && h.config.Backend == cfg.Backend {
		return h.current, false, nil
	}
	p, err := h.replaceLocked(ctx, cfg)
	return p, true, err
}

// Replace releases the owned player and builds a new one.
func (h *Handle) Replace(ctx context.Context, cfg Config) (Player, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.replaceLocked(ctx, cfg)
}

func (h *Handle) replaceLocked(ctx context.Context, cfg Config) (Player, error) {
	if h.current != nil {
		old := h.current.Backend()
		if err := h.current.Release(); err != nil {
			h.logger.Warn().Err(err).Str(xglog.FieldBackend, string(old)).Msg("release of previous player failed")
		}
		h.current = nil
	}
	p, err := h.factory.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	h.current = p
	h.config = cfg
	h.logger.Debug().Str(xglog.FieldBackend, string(cfg.Backend)).Msg("player created")
	return p, nil
}

// Release releases the owned player, if any.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil
	}
	err := h.current.Release()
	h.current = nil
	return err
}
