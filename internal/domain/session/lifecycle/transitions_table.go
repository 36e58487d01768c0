// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/looplab/fsm"
)

// EventKind names an input to the session state machine.
type EventKind string

const (
	EvCreate    EventKind = "create"    // start request accepted
	EvCreated   EventKind = "created"   // remote stream exists, pipeline running
	EvActivated EventKind = "activated" // remote stream reported active
	EvWentLive  EventKind = "went_live" // broadcast confirmed live
	EvEnd       EventKind = "end"       // stop, disconnect or fatal error
	EvReset     EventKind = "reset"     // teardown finished
)

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From  []model.SessionState
	To    model.SessionState
	Event EventKind
}

var transitionsTable = []Transition{
	{From: []model.SessionState{model.StateIdle}, To: model.StateCreating, Event: EvCreate},
	{From: []model.SessionState{model.StateCreating}, To: model.StateAwaitingActivation, Event: EvCreated},
	{From: []model.SessionState{model.StateAwaitingActivation}, To: model.StateTesting, Event: EvActivated},
	{From: []model.SessionState{model.StateTesting}, To: model.StateLive, Event: EvWentLive},

	// Any non-idle state may end.
	{From: []model.SessionState{
		model.StateCreating,
		model.StateAwaitingActivation,
		model.StateTesting,
		model.StateLive,
	}, To: model.StateEnding, Event: EvEnd},

	{From: []model.SessionState{model.StateEnding}, To: model.StateIdle, Event: EvReset},
}

func fsmEvents() fsm.Events {
	events := make(fsm.Events, 0, len(transitionsTable))
	for _, t := range transitionsTable {
		src := make([]string, 0, len(t.From))
		for _, s := range t.From {
			src = append(src, string(s))
		}
		events = append(events, fsm.EventDesc{Name: string(t.Event), Src: src, Dst: string(t.To)})
	}
	return events
}
