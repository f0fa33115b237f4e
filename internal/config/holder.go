// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/preferences"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// Holder holds the live configuration and reloads it when the file changes.
// Successful reloads refresh the preference snapshot handed to playback.
type Holder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader
	prefs   *preferences.Static
	logger  zerolog.Logger

	listenMu  sync.Mutex
	listeners []chan<- Config

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewHolder wraps an already loaded configuration.
func NewHolder(initial Config, loader *Loader) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		prefs:   preferences.NewStatic(initial.Preferences()),
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Preferences returns the provider kept in sync with reloads.
func (h *Holder) Preferences() preferences.Provider { return h.prefs }

// Reload loads and validates the file; on failure the old config stays.
func (h *Holder) Reload(_ context.Context) error {
	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("configuration reload failed")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()
	h.prefs.Set(next.Preferences())

	if prev.Player.Backend != next.Player.Backend {
		h.logger.Info().Str("old", prev.Player.Backend).Str("new", next.Player.Backend).Msg("player backend changed")
	}
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_success").Msg("configuration reloaded")

	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- next:
		default:
			h.logger.Warn().Str(xglog.FieldEvent, "config.listener_skip").Msg("skipped notifying listener (channel full)")
		}
	}
	return nil
}

// RegisterListener receives every successfully reloaded config (non-blocking sends).
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

// StartWatcher watches the config file until ctx ends or Stop is called.
// It is a no-op without a config file.
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory so atomic replace (rename over) is seen.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = w
	h.done = make(chan struct{})
	go h.watchLoop(ctx, filepath.Clean(path))
	h.logger.Info().Str(xglog.FieldPath, path).Msg("watching config file for changes")
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, path string) {
	defer close(h.done)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			_ = h.watcher.Close()
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			_ = h.Reload(ctx)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Stop closes the watcher and waits for its goroutine.
func (h *Holder) Stop() {
	if h.watcher == nil {
		return
	}
	_ = h.watcher.Close()
	<-h.done
}
