// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
)

// MemoryStore keeps lectures in a map. Used for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	lectures map[string]model.Lecture
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lectures: make(map[string]model.Lecture),
		now:      time.Now,
	}
}

func (m *MemoryStore) FindLecture(_ context.Context, id string) (model.Lecture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lectures[id]
	if !ok {
		return model.Lecture{}, ports.ErrLectureNotFound
	}
	return l, nil
}

func (m *MemoryStore) PutLecture(_ context.Context, l model.Lecture) error {
	if l.Status == "" {
		l.Status = model.LectureScheduled
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = m.now()
	}
	m.mu.Lock()
	m.lectures[l.ID] = l
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SetLectureStatus(_ context.Context, id string, status model.LectureStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lectures[id]
	if !ok {
		return ports.ErrLectureNotFound
	}
	if err := checkAdvance(l.Status, status); err != nil {
		return err
	}
	l.Status = status
	l.UpdatedAt = m.now()
	m.lectures[id] = l
	return nil
}

func (m *MemoryStore) SetLectureWatchURL(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lectures[id]
	if !ok {
		return ports.ErrLectureNotFound
	}
	l.LiveBroadcastURL = url
	l.UpdatedAt = m.now()
	m.lectures[id] = l
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
