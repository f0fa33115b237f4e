// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package app is the composition root: it turns a configuration file into
// a running playback controller with its control API.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/jfplay/internal/api"
	"github.com/ManuGH/jfplay/internal/cache"
	"github.com/ManuGH/jfplay/internal/config"
	"github.com/ManuGH/jfplay/internal/jellyfin"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/playback"
	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/player/mpv"
	"github.com/ManuGH/jfplay/internal/refreshrate"
	"github.com/ManuGH/jfplay/internal/refreshrate/xrandr"
	"github.com/ManuGH/jfplay/internal/store"
	"github.com/ManuGH/jfplay/internal/telemetry"
)

// ErrNoServer is returned when no Jellyfin server URL is configured.
var ErrNoServer = errors.New("server.url is not configured")

// Options controls Wire.
type Options struct {
	// ConfigPath is the YAML file. Empty means JFPLAY_CONFIG, then
	// defaults and environment only.
	ConfigPath string
	Version    string
	// RegisterPlayers adds host backends next to the built-in mpv one.
	RegisterPlayers func(*player.Factory)
	// Observer receives session events in addition to the log.
	Observer playback.Observer
}

// App is the wired dependency graph.
type App struct {
	Holder     *config.Holder
	Client     *jellyfin.Client
	Store      store.Store
	Segments   cache.Cache
	Players    *player.Handle
	Queue      *Queue
	Controller *playback.Controller
	Server     *api.Server
	Logger     zerolog.Logger

	version   string
	telemetry *telemetry.Provider
	reloads   chan config.Config
	closeOnce sync.Once
	closeErr  error
}

// Wire loads the configuration and builds every component. Nothing runs
// in the background until Run.
func Wire(ctx context.Context, opts Options) (_ *App, err error) {
	if ctx == nil {
		return nil, fmt.Errorf("wire context is nil")
	}
	xglog.Configure(xglog.Config{Level: "info", Service: "jfplay", Version: opts.Version})
	logger := xglog.WithComponent("app")

	path, err := ResolveConfigPath(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Server.URL == "" {
		return nil, ErrNoServer
	}

	xglog.Reconfigure(cfg.LogConfig(opts.Version))
	logger = xglog.WithComponent("app")
	if path != "" {
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str(xglog.FieldPath, path).Msg("loaded configuration from file")
	} else {
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Msg("loaded configuration from environment and defaults")
	}

	a := &App{
		Holder:  config.NewHolder(cfg, loader),
		Queue:   NewQueue(),
		Logger:  logger,
		version: opts.Version,
		reloads: make(chan config.Config, 1),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.telemetry, err = telemetry.NewProvider(ctx, cfg.TelemetryConfig(opts.Version))
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.Segments, err = openSegmentCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Client = jellyfin.NewClient(cfg.Server.URL, cfg.ClientOptions(opts.Version, a.Segments))

	a.Store, err = store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	factory := player.NewFactory()
	mpv.Register(factory)
	if opts.RegisterPlayers != nil {
		opts.RegisterPlayers(factory)
	}
	if backend := cfg.PlayerConfig().Backend; !factory.Supports(backend) {
		return nil, fmt.Errorf("player backend %q is not available in this build", backend)
	}
	a.Players = player.NewHandle(factory)

	observers := multiObserver{newLogObserver()}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}

	holder := a.Holder
	ctrlOpts := playback.Options{
		Server:       a.Client,
		Repository:   a.Store,
		Preferences:  holder.Preferences(),
		Players:      a.Players,
		PlayerConfig: func() player.Config { return holder.Get().PlayerConfig() },
		Playlist:     a.Queue,
		Observer:     observers,
	}
	if rr := newRefreshRate(cfg); rr != nil {
		ctrlOpts.RefreshRate = rr
	}
	a.Controller, err = playback.New(ctrlOpts)
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}

	a.Server = api.New(api.Config{
		ListenAddr:     cfg.API.Listen,
		RateLimit:      cfg.API.RateLimit,
		TracingService: tracingService(cfg),
		MetricsHandler: promhttp.Handler(),
	}, a.Controller)

	logger.Info().
		Str(xglog.FieldBaseURL, cfg.Server.URL).
		Str(xglog.FieldBackend, cfg.Player.Backend).
		Str("store", cfg.Store.Backend).
		Str("cache", cfg.Cache.Backend).
		Str("display", cfg.Display.Manager).
		Msg("services wired")
	return a, nil
}

func openSegmentCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "none":
		return cache.NewNoOpCache(), nil
	case "redis":
		c, err := cache.NewRedisCache(ctx, cfg.CacheRedisConfig(), xglog.WithComponent("cache"))
		if err != nil {
			return nil, fmt.Errorf("connect segment cache: %w", err)
		}
		return c, nil
	default:
		return cache.NewMemoryCache(time.Minute), nil
	}
}

// newRefreshRate returns nil when no display manager is configured so the
// controller sees a nil interface.
func newRefreshRate(cfg config.Config) *refreshrate.Service {
	if cfg.Display.Manager != "xrandr" {
		return nil
	}
	opts := cfg.RefreshRateOptions()
	opts.Notifier = logNotifier{logger: xglog.WithComponent("display")}
	return refreshrate.NewService(xrandr.New(xrandr.ExecRunner{}, cfg.Display.Binary), opts)
}

func tracingService(cfg config.Config) string {
	if !cfg.Tracing.Enabled {
		return ""
	}
	return "jfplay"
}

// Run serves the control API and plays items in order, if any, until ctx
// ends. start applies to the first item only.
func (a *App) Run(ctx context.Context, items []string, start time.Duration) error {
	if err := a.Holder.StartWatcher(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("config hot reload disabled")
	}
	a.Holder.RegisterListener(a.reloads)
	go a.applyReloads(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Server.ListenAndServe(ctx) }()

	if len(items) > 0 {
		a.Queue.Set(items)
		if err := a.Controller.Play(ctx, items[0], start); err != nil {
			a.Logger.Error().Err(err).Str(xglog.FieldItemID, items[0]).Msg("initial playback failed")
		}
	}

	var err error
	select {
	case err = <-serveErr:
	case <-ctx.Done():
		err = <-serveErr
	}
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

// applyReloads follows config changes that can be applied live.
func (a *App) applyReloads(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-a.reloads:
			xglog.Reconfigure(cfg.LogConfig(a.version))
			a.Logger.Info().Str(xglog.FieldEvent, "config.applied").Msg("applied reloaded configuration")
		}
	}
}

// Close tears the graph down in reverse order. It is safe to call twice.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.Controller != nil {
			errs = append(errs, a.Controller.Close())
		}
		if a.Players != nil {
			errs = append(errs, a.Players.Release())
		}
		if a.Holder != nil {
			a.Holder.Stop()
		}
		if a.Store != nil {
			errs = append(errs, a.Store.Close())
		}
		if a.Segments != nil {
			errs = append(errs, a.Segments.Close())
		}
		if a.telemetry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			errs = append(errs, a.telemetry.Shutdown(ctx))
			cancel()
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// ResolveConfigPath prefers an explicit path, then JFPLAY_CONFIG, then
// config.yaml in the user config directory if it exists.
func ResolveConfigPath(explicit string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("JFPLAY_CONFIG"))
	}
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return "", fmt.Errorf("resolve config path %q: %w", explicit, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("config file not found %q: %w", abs, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("config path %q is a directory", abs)
		}
		return abs, nil
	}
	if p := DefaultConfigPath(); p != "" {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

// DefaultConfigPath is where `config init` writes and Wire looks last.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "jfplay", "config.yaml")
}
