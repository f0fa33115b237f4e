// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the playback controller over a small local HTTP API.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/jfplay/internal/api/middleware"
	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/playback"
)

// Playback is the part of the controller the API drives.
type Playback interface {
	Current() (playback.CurrentPlayback, bool)
	Play(ctx context.Context, itemID string, position time.Duration) error
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	ChangeStreams(ctx context.Context, audioIndex *int, subtitle model.SubtitleChoice, userInitiated bool) error
	SetSubtitleDelay(ctx context.Context, d time.Duration) error
	ClearChosenStreams(ctx context.Context) error
	SkipSegment(ctx context.Context, segmentID string) error
	CancelNextUp()
}

// Config configures the API server.
type Config struct {
	ListenAddr string
	// RateLimit is requests per minute per client; 0 disables limiting.
	RateLimit      int
	TracingService string
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	ShutdownGrace  time.Duration
}

// Server owns the router and the listening socket.
type Server struct {
	cfg      Config
	playback Playback
	router   chi.Router
	logger   zerolog.Logger
}

// New builds the router.
func New(cfg Config, pb Playback) *Server {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		playback: pb,
		logger:   xglog.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
		RateLimit:      s.cfg.RateLimit,
	})

	r.Get("/healthz", s.handleHealth)
	if s.cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.MetricsHandler)
	}

	r.Route("/v1/playback", func(r chi.Router) {
		r.Get("/", s.handleGetPlayback)
		r.Post("/play", s.handlePlay)
		r.Post("/stop", s.handleStop)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Post("/seek", s.handleSeek)
		r.Post("/streams", s.handleChangeStreams)
		r.Delete("/streams", s.handleClearStreams)
		r.Post("/subtitle-delay", s.handleSubtitleDelay)
		r.Post("/segments/{segmentID}/skip", s.handleSkipSegment)
		r.Post("/next-up/cancel", s.handleCancelNextUp)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("control API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("control API shutdown incomplete")
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
