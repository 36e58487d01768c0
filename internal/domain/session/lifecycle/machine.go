// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package lifecycle drives the per-session state machine
// idle → creating → awaiting_activation → testing → live → ending → idle.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/metrics"
	"github.com/looplab/fsm"
)

// ErrIllegalTransition is returned when an event is not valid in the current state.
var ErrIllegalTransition = errors.New("illegal session transition")

// Machine wraps one looplab/fsm instance. It is not safe for concurrent use;
// the owning session's mutex serializes access.
type Machine struct {
	sessionID string
	fsm       *fsm.FSM

	reachedTesting bool
	reachedLive    bool
}

// New returns a machine in the idle state.
func New(sessionID string) *Machine {
	m := &Machine{sessionID: sessionID}
	m.fsm = fsm.NewFSM(
		string(model.StateIdle),
		fsmEvents(),
		fsm.Callbacks{
			"enter_" + string(model.StateTesting): func(_ context.Context, _ *fsm.Event) {
				m.reachedTesting = true
			},
			"enter_" + string(model.StateLive): func(_ context.Context, _ *fsm.Event) {
				m.reachedLive = true
			},
			"enter_" + string(model.StateIdle): func(_ context.Context, _ *fsm.Event) {
				m.reachedTesting = false
				m.reachedLive = false
			},
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				m.onTransition(ctx, e)
			},
		},
	)
	return m
}

// State returns the current state.
func (m *Machine) State() model.SessionState {
	return model.SessionState(m.fsm.Current())
}

// Can reports whether ev is valid in the current state.
func (m *Machine) Can(ev EventKind) bool {
	return m.fsm.Can(string(ev))
}

// Fire applies ev. Events that are not valid in the current state return
// ErrIllegalTransition and leave the state unchanged.
func (m *Machine) Fire(ctx context.Context, ev EventKind) error {
	if err := m.fsm.Event(ctx, string(ev)); err != nil {
		var invalid fsm.InvalidEventError
		var noTransition fsm.NoTransitionError
		if errors.As(err, &invalid) || errors.As(err, &noTransition) {
			return fmt.Errorf("%w: %s in state %s", ErrIllegalTransition, ev, m.State())
		}
		return err
	}
	return nil
}

// ReachedRemote reports whether the remote broadcast was transitioned at least
// to testing during the current run.
func (m *Machine) ReachedRemote() bool { return m.reachedTesting }

// ReachedLive reports whether the current run was confirmed live.
func (m *Machine) ReachedLive() bool { return m.reachedLive }

func (m *Machine) onTransition(ctx context.Context, e *fsm.Event) {
	metrics.RecordTransition(e.Src, e.Dst)
	logger := log.WithContext(ctx, log.WithComponent("lifecycle"))
	logger.Info().
		Str(log.FieldEvent, "session.transition").
		Str(log.FieldSessionID, m.sessionID).
		Str("trigger", e.Event).
		Str(log.FieldOldState, e.Src).
		Str(log.FieldNewState, e.Dst).
		Msg("session state changed")
}
