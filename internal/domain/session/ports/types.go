// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
)

// LectureStore is the persisted lecture record owned by the classroom backend.
// Every method fails with ErrLectureNotFound when the lecture does not exist.
type LectureStore interface {
	FindLecture(ctx context.Context, id string) (model.Lecture, error)
	SetLectureStatus(ctx context.Context, id string, status model.LectureStatus) error
	SetLectureWatchURL(ctx context.Context, id string, url string) error
	Ping(ctx context.Context) error
	Close() error
}

// Authorizer decides whether an identity may publish for a lecture.
type Authorizer interface {
	AuthorizePublisher(ctx context.Context, lecture model.Lecture, identity string) error
}

// TeacherAuthorizer allows only the lecture's owning teacher to publish.
type TeacherAuthorizer struct{}

func (TeacherAuthorizer) AuthorizePublisher(_ context.Context, lecture model.Lecture, identity string) error {
	if identity == "" || identity != lecture.TeacherID {
		return ErrAuthorization
	}
	return nil
}

// Notifier delivers events over the real-time channel.
type Notifier interface {
	BroadcastToRoom(sessionID, event string, payload any)
	SendToUser(identity, event string, payload any)
}
