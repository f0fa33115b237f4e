// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package taskslot provides cancel-and-replace task slots: starting a task
// cancels whatever previously occupied the slot.
package taskslot

import (
	"context"
	"sync"
	"time"
)

// Task is one run of a slot.
type Task[T any] struct {
	done   chan struct{}
	result T
	err    error
	cancel context.CancelFunc
}

// Done is closed when the task function has returned.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel cancels only this task.
func (t *Task[T]) Cancel() { t.cancel() }

// Slot holds at most one running task. The zero value is ready to use.
type Slot[T any] struct {
	mu      sync.Mutex
	current *Task[T]
	wg      sync.WaitGroup
	closed  bool
}

// Start cancels the current occupant and runs fn in a new goroutine with a
// context derived from parent. After Close, Start returns an already
// cancelled task without running fn.
func (s *Slot[T]) Start(parent context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(parent)
	task := &Task[T]{done: make(chan struct{}), cancel: cancel}

	s.mu.Lock()
	if s.current != nil {
		s.current.cancel()
	}
	if s.closed {
		s.mu.Unlock()
		cancel()
		task.err = context.Canceled
		close(task.done)
		return task
	}
	s.current = task
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		task.result, task.err = fn(ctx)
		close(task.done)

		s.mu.Lock()
		if s.current == task {
			s.current = nil
		}
		s.mu.Unlock()
	}()
	return task
}

// Go is Start for functions without a result.
func (s *Slot[T]) Go(parent context.Context, fn func(ctx context.Context)) *Task[T] {
	return s.Start(parent, func(ctx context.Context) (T, error) {
		fn(ctx)
		var zero T
		return zero, ctx.Err()
	})
}

// Debounce replaces the occupant with a task that waits delay and then
// runs fn, unless superseded first.
func (s *Slot[T]) Debounce(parent context.Context, delay time.Duration, fn func(ctx context.Context) (T, error)) *Task[T] {
	return s.Start(parent, func(ctx context.Context) (T, error) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		return fn(ctx)
	})
}

// Cancel cancels the current occupant, if any.
func (s *Slot[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.cancel()
	}
}

// Running reports whether a task currently occupies the slot.
func (s *Slot[T]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Close cancels the occupant, rejects further tasks and waits for every
// started goroutine to return.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	s.closed = true
	if s.current != nil {
		s.current.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
