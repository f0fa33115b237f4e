// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import "github.com/ManuGH/jfplay/internal/fsm"

// State is the session lifecycle state.
type State string

const (
	StateInit            State = "INIT"
	StatePlaying         State = "PLAYING"
	StateChangingStreams State = "CHANGING_STREAMS"
	StateNextUpPending   State = "NEXT_UP_PENDING"
	StateReleased        State = "RELEASED"
	StateFailed          State = "FAILED"
)

// Event drives State.
type Event string

const (
	EventLoad          Event = "load"
	EventStarted       Event = "started"
	EventChangeStreams Event = "change_streams"
	EventStreamsReady  Event = "streams_ready"
	EventEnded         Event = "ended"
	EventCancelNextUp  Event = "cancel_next_up"
	EventFail          Event = "fail"
	EventRelease       Event = "release"
)

// A new session may start from any state except mid stream change.
// Loading from NEXT_UP_PENDING stays there so the next item goes
// straight to PLAYING.
var transitions = []fsm.Transition[State, Event]{
	{From: StateInit, Event: EventLoad, To: StateInit},
	{From: StatePlaying, Event: EventLoad, To: StateInit},
	{From: StateFailed, Event: EventLoad, To: StateInit},
	{From: StateReleased, Event: EventLoad, To: StateInit},
	{From: StateNextUpPending, Event: EventLoad, To: StateNextUpPending},

	{From: StateInit, Event: EventStarted, To: StatePlaying},
	{From: StateNextUpPending, Event: EventStarted, To: StatePlaying},

	{From: StatePlaying, Event: EventChangeStreams, To: StateChangingStreams},
	{From: StateChangingStreams, Event: EventStreamsReady, To: StatePlaying},

	{From: StatePlaying, Event: EventEnded, To: StateNextUpPending},
	{From: StateNextUpPending, Event: EventCancelNextUp, To: StatePlaying},

	{From: StateInit, Event: EventFail, To: StateFailed},
	{From: StatePlaying, Event: EventFail, To: StateFailed},
	{From: StateChangingStreams, Event: EventFail, To: StateFailed},
	{From: StateNextUpPending, Event: EventFail, To: StateFailed},

	{From: StateInit, Event: EventRelease, To: StateReleased},
	{From: StatePlaying, Event: EventRelease, To: StateReleased},
	{From: StateChangingStreams, Event: EventRelease, To: StateReleased},
	{From: StateNextUpPending, Event: EventRelease, To: StateReleased},
	{From: StateFailed, Event: EventRelease, To: StateReleased},
}

func newMachine() *fsm.Machine[State, Event] {
	return fsm.MustNew(StateInit, transitions)
}
