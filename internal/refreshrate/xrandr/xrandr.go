// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package xrandr implements refreshrate.DisplayManager on X11 hosts by
// shelling out to xrandr.
package xrandr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/ManuGH/jfplay/internal/refreshrate"
)

// ErrNoDisplay is returned when the display id does not name a connected output.
var ErrNoDisplay = errors.New("xrandr: no such display")

// CommandRunner executes commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner executes commands using os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Output is one connected xrandr output.
type Output struct {
	Name   string
	Modes  []refreshrate.Mode
	Active int // mode id, -1 if the output is off
}

// Manager drives xrandr. Display ids index the connected outputs in the
// order xrandr lists them.
type Manager struct {
	runner CommandRunner
	binary string

	mu        sync.Mutex
	listeners map[int]func(int)
	nextID    int
}

// New returns a Manager. An empty binary means "xrandr" from PATH.
func New(runner CommandRunner, binary string) *Manager {
	if runner == nil {
		runner = ExecRunner{}
	}
	if binary == "" {
		binary = "xrandr"
	}
	return &Manager{runner: runner, binary: binary, listeners: map[int]func(int){}}
}

func (m *Manager) query(ctx context.Context) ([]Output, error) {
	out, err := m.runner.Run(ctx, m.binary, "--query")
	if err != nil {
		return nil, fmt.Errorf("xrandr query: %w", err)
	}
	return Parse(string(out)), nil
}

func (m *Manager) output(ctx context.Context, displayID int) (Output, error) {
	outputs, err := m.query(ctx)
	if err != nil {
		return Output{}, err
	}
	if displayID < 0 || displayID >= len(outputs) {
		return Output{}, fmt.Errorf("%w: %d", ErrNoDisplay, displayID)
	}
	return outputs[displayID], nil
}

func (m *Manager) Modes(ctx context.Context, displayID int) ([]refreshrate.Mode, error) {
	o, err := m.output(ctx, displayID)
	if err != nil {
		return nil, err
	}
	return o.Modes, nil
}

func (m *Manager) ActiveMode(ctx context.Context, displayID int) (refreshrate.Mode, error) {
	o, err := m.output(ctx, displayID)
	if err != nil {
		return refreshrate.Mode{}, err
	}
	for _, mode := range o.Modes {
		if mode.ID == o.Active {
			return mode, nil
		}
	}
	return refreshrate.Mode{}, fmt.Errorf("%w: output %s is off", ErrNoDisplay, o.Name)
}

// RequestMode sets the mode and, once xrandr reports it active, notifies
// registered listeners.
func (m *Manager) RequestMode(ctx context.Context, displayID, modeID int) error {
	o, err := m.output(ctx, displayID)
	if err != nil {
		return err
	}
	var target *refreshrate.Mode
	for i := range o.Modes {
		if o.Modes[i].ID == modeID {
			target = &o.Modes[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("xrandr: output %s has no mode %d", o.Name, modeID)
	}

	if _, err := m.runner.Run(ctx, m.binary,
		"--output", o.Name,
		"--mode", fmt.Sprintf("%dx%d", target.Width, target.Height),
		"--rate", strconv.FormatFloat(target.RefreshRate, 'f', 2, 64),
	); err != nil {
		return fmt.Errorf("xrandr set mode: %w", err)
	}

	after, err := m.output(ctx, displayID)
	if err != nil || after.Active != modeID {
		// Leave confirmation to the caller's timeout.
		return nil
	}
	m.notify(displayID)
	return nil
}

func (m *Manager) RegisterListener(fn func(int)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) notify(displayID int) {
	m.mu.Lock()
	fns := make([]func(int), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(displayID)
	}
}

// Parse reads `xrandr --query` output. Mode ids are assigned per output in
// listing order, one per (resolution, rate) pair. The rates listed on the
// same resolution line become each other's alternatives.
func Parse(text string) []Output {
	var (
		outputs []Output
		cur     *Output
	)
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") {
			if cur != nil {
				outputs = append(outputs, *cur)
				cur = nil
			}
			fields := strings.Fields(line)
			if len(fields) >= 2 && fields[1] == "connected" {
				cur = &Output{Name: fields[0], Active: -1}
			}
			continue
		}
		if cur == nil {
			continue
		}
		parseModeLine(cur, strings.Fields(line))
	}
	if cur != nil {
		outputs = append(outputs, *cur)
	}
	return outputs
}

func parseModeLine(o *Output, fields []string) {
	if len(fields) < 2 {
		return
	}
	w, h, ok := parseResolution(fields[0])
	if !ok {
		return
	}

	type rate struct {
		hz     float64
		active bool
	}
	var rates []rate
	for _, f := range fields[1:] {
		if f == "+" {
			continue
		}
		active := strings.Contains(f, "*")
		f = strings.TrimRight(f, "*+")
		hz, err := strconv.ParseFloat(f, 64)
		if err != nil || hz <= 0 {
			continue
		}
		rates = append(rates, rate{hz: hz, active: active})
	}

	for i, r := range rates {
		alts := make([]float64, 0, len(rates)-1)
		for j, other := range rates {
			if j != i {
				alts = append(alts, other.hz)
			}
		}
		id := len(o.Modes)
		o.Modes = append(o.Modes, refreshrate.Mode{
			ID:                      id,
			Width:                   w,
			Height:                  h,
			RefreshRate:             r.hz,
			AlternativeRefreshRates: alts,
		})
		if r.active {
			o.Active = id
		}
	}
}

func parseResolution(s string) (int, int, bool) {
	// Interlaced modes carry an "i" suffix; skip them.
	if strings.HasSuffix(s, "i") {
		return 0, 0, false
	}
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, false
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}

var _ refreshrate.DisplayManager = (*Manager)(nil)
