// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ManuGH/jfplay/internal/player"
	"github.com/ManuGH/jfplay/internal/procgroup"
	"github.com/google/uuid"
)

const (
	dialTimeout   = 5 * time.Second
	dialInterval  = 50 * time.Millisecond
	shutdownGrace = 2 * time.Second
)

type process struct {
	cmd    *exec.Cmd
	waitCh chan error
	socket string
}

// New starts mpv in idle mode and connects to its IPC socket.
func New(ctx context.Context, cfg player.Config) (player.Player, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = "mpv"
	}
	socket := filepath.Join(os.TempDir(), "jfplay-mpv-"+uuid.NewString()+".sock")

	cmd := exec.Command(binary, Args(cfg, socket)...)
	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mpv: start %s: %w", binary, err)
	}
	proc := &process{cmd: cmd, waitCh: make(chan error, 1), socket: socket}
	go func() { proc.waitCh <- cmd.Wait() }()

	conn, err := dialSocket(ctx, socket)
	if err != nil {
		_ = proc.stop()
		return nil, err
	}
	p, err := attach(ctx, conn, proc)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Args builds the mpv command line for cfg.
func Args(cfg player.Config, socket string) []string {
	args := []string{
		"--idle=yes",
		"--no-terminal",
		"--force-window=yes",
		"--keep-open=no",
		"--input-ipc-server=" + socket,
		"--cache=yes",
		"--demuxer-max-bytes=" + strconv.FormatInt(cfg.CacheBytes, 10),
		"--demuxer-readahead-secs=" + strconv.Itoa(int(cfg.MinBuffer.Seconds())),
		"--cache-secs=" + strconv.Itoa(int(cfg.MaxBuffer.Seconds())),
	}
	if cfg.HardwareDecoding {
		args = append(args, "--hwdec=auto-safe")
	} else {
		args = append(args, "--hwdec=no")
	}
	switch cfg.DecoderMode {
	case player.DecoderExtensionOff:
		args = append(args, "--vd-lavc-software-fallback=no")
	case player.DecoderExtensionPrefer:
		args = append(args, "--vd-lavc-software-fallback=1")
	}
	if cfg.AudioDevice != "" {
		args = append(args, "--audio-device="+cfg.AudioDevice)
	}
	return append(args, cfg.ExtraArgs...)
}

func dialSocket(ctx context.Context, socket string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var d net.Dialer
	ticker := time.NewTicker(dialInterval)
	defer ticker.Stop()
	for {
		conn, err := d.DialContext(ctx, "unix", socket)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("mpv: connect ipc socket %s: %w", socket, err)
		case <-ticker.C:
		}
	}
}

func (p *process) stop() error {
	err := procgroup.Terminate(p.cmd, p.waitCh, shutdownGrace)
	_ = os.Remove(p.socket)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// mpv exits non-zero on signals; that is the expected outcome here.
		return nil
	}
	return err
}
