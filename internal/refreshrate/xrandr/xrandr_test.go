// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xrandr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `Screen 0: minimum 8 x 8, current 1920 x 1080, maximum 32767 x 32767
HDMI-1 connected primary 1920x1080+0+0 (normal left inverted right x axis y axis) 509mm x 286mm
   3840x2160     30.00 +  24.00    23.98
   1920x1080     60.00*   50.00    23.98
   1920x1080i    60.00
DP-1 disconnected (normal left inverted right x axis y axis)
HDMI-2 connected 1280x720+1920+0 (normal left inverted right x axis y axis) 0mm x 0mm
   1280x720      60.00*+
`

func TestParse(t *testing.T) {
	outputs := Parse(sample)
	require.Len(t, outputs, 2)

	hdmi := outputs[0]
	assert.Equal(t, "HDMI-1", hdmi.Name)
	require.Len(t, hdmi.Modes, 6)
	assert.Equal(t, 3, hdmi.Active)
	assert.Equal(t, 1920, hdmi.Modes[3].Width)
	assert.InDelta(t, 60.0, hdmi.Modes[3].RefreshRate, 0.001)
	assert.ElementsMatch(t, []float64{50, 23.98}, hdmi.Modes[3].AlternativeRefreshRates)

	assert.Equal(t, "HDMI-2", outputs[1].Name)
	assert.Equal(t, 0, outputs[1].Active)
}

type scriptedRunner struct {
	calls  [][]string
	query  []string
	setErr error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if len(args) > 0 && args[0] == "--query" {
		out := r.query[0]
		if len(r.query) > 1 {
			r.query = r.query[1:]
		}
		return []byte(out), nil
	}
	return nil, r.setErr
}

func TestManagerRequestModeNotifiesOnSuccess(t *testing.T) {
	switched := strings.Replace(strings.Replace(sample, "60.00*", "60.00 ", 1), "23.98\n   1920x1080i", "23.98*\n   1920x1080i", 1)
	runner := &scriptedRunner{query: []string{sample, switched}}
	m := New(runner, "")

	var notified []int
	unregister := m.RegisterListener(func(id int) { notified = append(notified, id) })
	defer unregister()

	require.NoError(t, m.RequestMode(context.Background(), 0, 5))
	assert.Equal(t, []int{0}, notified)
	assert.Equal(t, []string{"xrandr", "--output", "HDMI-1", "--mode", "1920x1080", "--rate", "23.98"}, runner.calls[1])
}

func TestManagerRequestModeErrors(t *testing.T) {
	runner := &scriptedRunner{query: []string{sample}, setErr: errors.New("exit status 1")}
	m := New(runner, "xrandr")

	_, err := m.Modes(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNoDisplay)

	assert.Error(t, m.RequestMode(context.Background(), 0, 99))
	assert.Error(t, m.RequestMode(context.Background(), 0, 1))
}

func TestManagerActiveMode(t *testing.T) {
	m := New(&scriptedRunner{query: []string{sample}}, "")
	mode, err := m.ActiveMode(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1280, mode.Width)
}
