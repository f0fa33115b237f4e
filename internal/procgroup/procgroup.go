// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts helper processes (mpv, xrandr) in their own
// process group so they can be torn down together with their children.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/jfplay/internal/metrics"
)

// Set configures cmd to start in a new process group.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate stops the process group of cmd: SIGTERM, then SIGKILL after
// grace. waitCh must deliver the result of cmd.Wait; it is always drained.
// Nil commands are a no-op.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	metrics.RecordProcessSignal("SIGTERM", signalResult(kill(cmd, syscall.SIGTERM)))

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		return err
	case <-timer.C:
	}

	metrics.RecordProcessSignal("SIGKILL", signalResult(kill(cmd, syscall.SIGKILL)))
	return <-waitCh
}

func signalResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, syscall.ESRCH), errors.Is(err, errProcessDone):
		return "gone"
	default:
		return "error"
	}
}
