// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store holds LectureStore implementations backed by memory, SQLite or Redis.
package store

import (
	"context"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
)

// LectureStore is a ports.LectureStore that can also be seeded with records.
// The classroom backend normally owns the records; PutLecture exists for
// seeding and tests.
type LectureStore interface {
	ports.LectureStore
	PutLecture(ctx context.Context, l model.Lecture) error
}

func checkAdvance(from, to model.LectureStatus) error {
	if !model.CanAdvance(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// TransitionError reports a rejected status regression.
type TransitionError struct {
	From, To model.LectureStatus
}

func (e *TransitionError) Error() string {
	return "lecture status " + string(e.From) + " -> " + string(e.To) + " not allowed"
}

func (e *TransitionError) Unwrap() error { return ports.ErrInvalidStatusTransition }
