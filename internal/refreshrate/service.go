// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package refreshrate matches the display mode to the content being played.
package refreshrate

import (
	"context"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultConfirmTimeout = 5 * time.Second
	DefaultSettleDelay    = 2 * time.Second
)

// State of the switch negotiation.
type State int32

const (
	StateIdle State = iota
	StateRequested
	StateConfirmed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	case StateConfirmed:
		return "confirmed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome of one ChangeRefreshRate call.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// DisplayManager is the platform display surface.
type DisplayManager interface {
	Modes(ctx context.Context, displayID int) ([]Mode, error)
	ActiveMode(ctx context.Context, displayID int) (Mode, error)
	RequestMode(ctx context.Context, displayID, modeID int) error
	// RegisterListener registers fn for display change callbacks and returns
	// a function that unregisters it.
	RegisterListener(fn func(displayID int)) (unregister func())
}

// Notifier shows short user-facing messages.
type Notifier interface {
	Notify(message string)
}

// VideoInfo describes the stream that should drive the display.
type VideoInfo struct {
	Width     int
	Height    int
	FrameRate float64
}

// Options configure a Service.
type Options struct {
	DisplayID         int
	RefreshRateSwitch bool
	ResolutionSwitch  bool
	ConfirmTimeout    time.Duration
	SettleDelay       time.Duration
	Notifier          Notifier
}

// Service negotiates display modes with a DisplayManager.
type Service struct {
	dm     DisplayManager
	opts   Options
	state  atomic.Int32
	logger zerolog.Logger
}

// NewService creates a Service. Zero timeouts fall back to the defaults.
func NewService(dm DisplayManager, opts Options) *Service {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	return &Service{
		dm:     dm,
		opts:   opts,
		logger: xglog.WithComponent("refreshrate"),
	}
}

// State returns the current negotiation state.
func (s *Service) State() State { return State(s.state.Load()) }

func (s *Service) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.Debug().
			Str(xglog.FieldOldState, prev.String()).
			Str(xglog.FieldNewState, next.String()).
			Msg("display switch state")
	}
}

// ChangeRefreshRate switches the display to the best mode for video and
// waits for the platform to confirm. It never fails playback: errors and
// timeouts are logged and reported through the returned Outcome.
func (s *Service) ChangeRefreshRate(ctx context.Context, video VideoInfo) Outcome {
	outcome := s.change(ctx, video)
	s.setState(StateIdle)
	metrics.RecordRefreshRateSwitch(string(outcome))
	return outcome
}

func (s *Service) change(ctx context.Context, video VideoInfo) Outcome {
	if !s.opts.RefreshRateSwitch && !s.opts.ResolutionSwitch {
		return OutcomeSkipped
	}
	if s.opts.RefreshRateSwitch && video.FrameRate <= 0 {
		s.logger.Debug().Msg("stream has no frame rate, keeping display mode")
		return OutcomeSkipped
	}

	id := s.opts.DisplayID
	modes, err := s.dm.Modes(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read display modes")
		return OutcomeFailed
	}
	active, err := s.dm.ActiveMode(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read active display mode")
		return OutcomeFailed
	}

	rate := video.FrameRate
	if !s.opts.RefreshRateSwitch {
		rate = active.RefreshRate
	}
	target, ok := FindDisplayMode(SortModes(modes), video.Width, video.Height, rate, s.opts.RefreshRateSwitch, s.opts.ResolutionSwitch)
	if !ok || target.ID == active.ID {
		return OutcomeSkipped
	}

	log := s.logger.With().
		Str(xglog.FieldResolution, target.String()).
		Float64(xglog.FieldFPS, video.FrameRate).
		Logger()

	confirmed := make(chan struct{}, 1)
	unregister := s.dm.RegisterListener(func(changed int) {
		if changed != id {
			return
		}
		select {
		case confirmed <- struct{}{}:
		default:
		}
	})
	defer unregister()

	s.setState(StateRequested)
	log.Info().Str("from", active.String()).Msg("requesting display mode")
	if err := s.dm.RequestMode(ctx, id, target.ID); err != nil {
		log.Warn().Err(err).Msg("display mode request failed")
		return OutcomeFailed
	}

	timer := time.NewTimer(s.opts.ConfirmTimeout)
	defer timer.Stop()

	outcome := OutcomeConfirmed
	select {
	case <-confirmed:
		s.setState(StateConfirmed)
	case <-timer.C:
		s.setState(StateTimedOut)
		outcome = OutcomeTimedOut
		log.Warn().Dur("timeout", s.opts.ConfirmTimeout).Msg("display mode change not confirmed")
		if s.opts.Notifier != nil {
			s.opts.Notifier.Notify("Display mode change timed out")
		}
	case <-ctx.Done():
		return OutcomeCancelled
	}

	if !Seamless(active, target) {
		settle := time.NewTimer(s.opts.SettleDelay)
		defer settle.Stop()
		select {
		case <-settle.C:
		case <-ctx.Done():
			return OutcomeCancelled
		}
	}
	return outcome
}
