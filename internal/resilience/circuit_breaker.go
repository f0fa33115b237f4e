// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience guards calls to the media server.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/jfplay/internal/metrics"
)

// State is the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned without calling the guarded function.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Options tune a Breaker. Zero values take the defaults.
type Options struct {
	// Threshold consecutive failures open the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before one trial is let through.
	Cooldown time.Duration
	// IsFailure decides which errors count. Context cancellation never does
	// by default: a user skipping to another item is not a server fault.
	IsFailure func(error) bool
	// OnStateChange runs under the breaker lock and must not call back into it.
	OnStateChange func(from, to State)
	// Now replaces the wall clock.
	Now func() time.Time
}

// Breaker trips after repeated upstream failures so a dead server fails
// playback fast instead of stacking retries.
type Breaker struct {
	name string
	opts Options

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker. name labels its metrics.
func New(name string, opts Options) *Breaker {
	if opts.Threshold <= 0 {
		opts.Threshold = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.IsFailure == nil {
		opts.IsFailure = func(err error) bool { return err != nil && !errors.Is(err, context.Canceled) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := &Breaker{name: name, opts: opts, state: StateClosed}
	metrics.SetBreakerState(name, string(StateClosed))
	return b
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	trial, ok := b.acquire()
	if !ok {
		metrics.RecordBreakerRejection(b.name)
		return ErrCircuitOpen
	}
	err := fn(ctx)
	b.settle(err, trial)
	return err
}

// acquire admits a call. While half-open only one trial is in flight.
func (b *Breaker) acquire() (trial, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.opts.Now().Sub(b.openedAt) < b.opts.Cooldown {
			return false, false
		}
		b.moveTo(StateHalfOpen)
	case StateHalfOpen:
		if b.probing {
			return false, false
		}
	default:
		return false, true
	}
	b.probing = true
	return true, true
}

// settle records the outcome of an admitted call. Only the trial decides
// a half-open breaker; stragglers admitted while closed do not.
func (b *Breaker) settle(err error, trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.probing = false
	}

	switch {
	case b.opts.IsFailure(err):
		b.failures++
		if trial && b.state == StateHalfOpen {
			metrics.RecordBreakerTrip(b.name, "trial_failed")
			b.moveTo(StateOpen)
		} else if b.state == StateClosed && b.failures >= b.opts.Threshold {
			metrics.RecordBreakerTrip(b.name, "threshold")
			b.moveTo(StateOpen)
		}
	case err != nil:
		// Neutral outcome; a cancelled trial leaves the breaker half-open.
	default:
		b.failures = 0
		if trial && b.state == StateHalfOpen {
			b.moveTo(StateClosed)
		}
	}
}

// moveTo switches state. Caller holds mu.
func (b *Breaker) moveTo(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	if next == StateOpen {
		b.openedAt = b.opts.Now()
	}
	if next == StateClosed {
		b.failures = 0
	}
	metrics.SetBreakerState(b.name, string(next))
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(prev, next)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
