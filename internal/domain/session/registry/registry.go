// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package registry tracks the in-memory state of every live session.
//
// Lock order: Registry.mu before Session.mu. Callers must not hold a
// session lock while calling into the registry.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/metrics"
)

// Live holds the resources of a running broadcast. A session either has all
// of them or none, so they travel together behind one pointer.
type Live struct {
	Buffer      ports.MediaBuffer
	Pipeline    ports.PipelineHandle
	BroadcastID string
	StreamID    string
	StartedAt   time.Time
}

// Session is one lecture's relay state. Fields below the embedded mutex are
// guarded by it.
type Session struct {
	ID        string
	LectureID string

	sync.Mutex
	Publisher string
	Machine   *lifecycle.Machine
	Live      *Live
	WatchURL  string
	Cancel    context.CancelFunc
	// Announced is set once session-started went out for the current run.
	Announced bool
	// Generation is bumped each time the session leaves idle, so workers of a
	// finished run can tell they are stale.
	Generation uint64

	// WriteMu orders PushMedia calls without blocking teardown on a slow write.
	WriteMu sync.Mutex
}

func newSession(id string) *Session {
	lectureID, _ := model.LectureIDFromSession(id)
	return &Session{
		ID:        id,
		LectureID: lectureID,
		Machine:   lifecycle.New(id),
	}
}

// Info is a point-in-time view of a session for diagnostics.
type Info struct {
	SessionID   string             `json:"session_id"`
	LectureID   string             `json:"lecture_id"`
	State       model.SessionState `json:"state"`
	Publisher   string             `json:"publisher"`
	BroadcastID string             `json:"broadcast_id,omitempty"`
	WatchURL    string             `json:"watch_url,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
}

// Registry maps session ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating an idle one if needed.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(id)
}

func (r *Registry) getOrCreateLocked(id string) *Session {
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := newSession(id)
	r.sessions[id] = s
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	return s
}

// Get returns the session for id, if registered.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// AssignPublisher claims the publisher slot of session id for identity.
// The slot is held until the session is torn down; a different identity
// gets ErrAlreadyPublishing. Re-assigning the current holder is a no-op.
func (r *Registry) AssignPublisher(id, identity string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreateLocked(id)
	s.Lock()
	defer s.Unlock()
	if s.Publisher != "" && s.Publisher != identity {
		return nil, ports.ErrAlreadyPublishing
	}
	s.Publisher = identity
	return s, nil
}

// Remove drops s from the registry if it is still the registered session for
// its id and has been fully reset (no publisher, no live resources). It
// reports whether the entry was removed.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.ID]; !ok || cur != s {
		return false
	}
	s.Lock()
	idle := s.Publisher == "" && s.Live == nil
	s.Unlock()
	if !idle {
		return false
	}
	delete(r.sessions, s.ID)
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	return true
}

// SessionsPublishedBy returns every session whose publisher slot is held by identity.
func (r *Registry) SessionsPublishedBy(identity string) []*Session {
	var out []*Session
	for _, s := range r.all() {
		s.Lock()
		match := identity != "" && s.Publisher == identity
		s.Unlock()
		if match {
			out = append(out, s)
		}
	}
	return out
}

// All returns every registered session.
func (r *Registry) All() []*Session {
	return r.all()
}

func (r *Registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns diagnostics for all sessions, ordered by session id.
func (r *Registry) Snapshot() []Info {
	sessions := r.all()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Info returns a diagnostics view of s.
func (s *Session) Info() Info {
	s.Lock()
	defer s.Unlock()
	info := Info{
		SessionID: s.ID,
		LectureID: s.LectureID,
		State:     s.Machine.State(),
		Publisher: s.Publisher,
		WatchURL:  s.WatchURL,
	}
	if s.Live != nil {
		started := s.Live.StartedAt
		info.BroadcastID = s.Live.BroadcastID
		info.StartedAt = &started
	}
	return info
}
