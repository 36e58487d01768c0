// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testkit holds in-memory stand-ins for the coordinator's ports.
package testkit

import (
	"context"
	"sync"

	"github.com/ManuGH/liverelay/internal/domain/session/ports"
)

// Platform is a scriptable ports.BroadcastPlatform.
type Platform struct {
	mu sync.Mutex

	Info      ports.BroadcastInfo
	CreateErr error
	// CreateGate, when set, blocks CreateStream until closed or ctx ends.
	CreateGate chan struct{}
	// ActivationGate, when set, blocks WaitForStreamActive until closed or ctx ends.
	ActivationGate chan struct{}
	ActivationErr  error
	// ActiveOnAttempt makes the stream report active on that poll attempt;
	// zero means the first. Attempts beyond MaxAttempts time out.
	ActiveOnAttempt int
	MaxAttempts     int
	TransitionErrs  map[ports.BroadcastLifecycle]error
	WatchBase       string

	creates            int
	attempts           int
	activationCanceled bool
	transitions        []ports.BroadcastLifecycle
}

// NewPlatform returns a platform that hands out broadcast b1 / stream s1.
func NewPlatform() *Platform {
	return &Platform{
		Info: ports.BroadcastInfo{
			BroadcastID: "b1",
			StreamID:    "s1",
			IngestURL:   "rtmp://a.rtmp.youtube.com/live2",
			StreamKey:   "key-123",
		},
		TransitionErrs: map[ports.BroadcastLifecycle]error{},
		WatchBase:      "https://www.youtube.com/watch?v=",
		MaxAttempts:    60,
	}
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Platform) CreateStream(ctx context.Context, _ ports.StreamRequest) (ports.BroadcastInfo, error) {
	p.mu.Lock()
	p.creates++
	gate, info, err := p.CreateGate, p.Info, p.CreateErr
	p.mu.Unlock()

	if werr := wait(ctx, gate); werr != nil {
		return ports.BroadcastInfo{}, werr
	}
	if err != nil {
		return ports.BroadcastInfo{}, err
	}
	return info, nil
}

func (p *Platform) WaitForStreamActive(ctx context.Context, _ string) error {
	p.mu.Lock()
	gate, err := p.ActivationGate, p.ActivationErr
	p.mu.Unlock()
	if werr := wait(ctx, gate); werr != nil {
		p.mu.Lock()
		p.activationCanceled = true
		p.mu.Unlock()
		return werr
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	target := max(p.ActiveOnAttempt, 1)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		p.attempts = attempt
		if attempt == target {
			return nil
		}
	}
	return ports.ErrActivationTimeout
}

// ActivationCanceled reports whether an activation wait ended because its
// context was cancelled.
func (p *Platform) ActivationCanceled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activationCanceled
}

// Attempts returns the poll attempt on which the last activation wait stopped.
func (p *Platform) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *Platform) TransitionBroadcast(_ context.Context, _ string, target ports.BroadcastLifecycle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, target)
	return p.TransitionErrs[target]
}

func (p *Platform) WaitForBroadcastInState(ctx context.Context, _ string, _ ports.BroadcastLifecycle) error {
	return ctx.Err()
}

func (p *Platform) WatchURL(_ context.Context, broadcastID string) (string, error) {
	return p.WatchBase + broadcastID, nil
}

// Creates returns the number of CreateStream calls.
func (p *Platform) Creates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates
}

// Transitions returns every requested lifecycle target in order.
func (p *Platform) Transitions() []ports.BroadcastLifecycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.BroadcastLifecycle(nil), p.transitions...)
}
