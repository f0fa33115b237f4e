// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/jfplay/internal/fsm"
)

func TestSessionLifecycle(t *testing.T) {
	m := newMachine()
	steps := []struct {
		ev   Event
		want State
	}{
		{EventLoad, StateInit},
		{EventStarted, StatePlaying},
		{EventChangeStreams, StateChangingStreams},
		{EventStreamsReady, StatePlaying},
		{EventEnded, StateNextUpPending},
		{EventLoad, StateNextUpPending},
		{EventStarted, StatePlaying},
		{EventRelease, StateReleased},
		{EventLoad, StateInit},
		{EventFail, StateFailed},
		{EventLoad, StateInit},
	}
	for _, step := range steps {
		got, err := m.Fire(step.ev)
		require.NoError(t, err, "event %s", step.ev)
		assert.Equal(t, step.want, got, "event %s", step.ev)
	}
}

func TestIllegalTransitionsRejected(t *testing.T) {
	cases := []struct {
		name  string
		setup []Event
		ev    Event
	}{
		{"change before start", nil, EventChangeStreams},
		{"load while changing streams", []Event{EventStarted, EventChangeStreams}, EventLoad},
		{"ended while changing streams", []Event{EventStarted, EventChangeStreams}, EventEnded},
		{"release twice", []Event{EventRelease}, EventRelease},
		{"start after failure", []Event{EventFail}, EventStarted},
		{"cancel next up while playing", []Event{EventStarted}, EventCancelNextUp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine()
			for _, ev := range tc.setup {
				_, err := m.Fire(ev)
				require.NoError(t, err)
			}
			before := m.State()
			_, err := m.Fire(tc.ev)
			require.ErrorIs(t, err, fsm.ErrInvalidTransition)
			assert.Equal(t, before, m.State())
		})
	}
}
