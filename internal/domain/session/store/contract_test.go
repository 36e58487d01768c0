// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sync"
	"testing"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runLectureStoreContract exercises the behaviour every backend must share.
func runLectureStoreContract(t *testing.T, s LectureStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.PutLecture(ctx, model.Lecture{
		ID:          "42",
		TeacherID:   "teacher-1",
		ClassroomID: "class-9",
		Title:       "Thermodynamics",
	}))

	t.Run("find", func(t *testing.T) {
		l, err := s.FindLecture(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, "teacher-1", l.TeacherID)
		assert.Equal(t, "class-9", l.ClassroomID)
		assert.Equal(t, "Thermodynamics", l.Title)
		assert.Equal(t, model.LectureScheduled, l.Status)
		assert.Empty(t, l.LiveBroadcastURL)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.FindLecture(ctx, "nope")
		assert.ErrorIs(t, err, ports.ErrLectureNotFound)
		assert.ErrorIs(t, s.SetLectureStatus(ctx, "nope", model.LectureInProgress), ports.ErrLectureNotFound)
		assert.ErrorIs(t, s.SetLectureWatchURL(ctx, "nope", "https://x"), ports.ErrLectureNotFound)
	})

	t.Run("monotonic status", func(t *testing.T) {
		require.NoError(t, s.SetLectureStatus(ctx, "42", model.LectureInProgress))
		require.NoError(t, s.SetLectureStatus(ctx, "42", model.LectureInProgress), "re-applying is allowed")

		err := s.SetLectureStatus(ctx, "42", model.LectureScheduled)
		assert.ErrorIs(t, err, ports.ErrInvalidStatusTransition)

		require.NoError(t, s.SetLectureStatus(ctx, "42", model.LectureCompleted))
		assert.ErrorIs(t, s.SetLectureStatus(ctx, "42", model.LectureInProgress), ports.ErrInvalidStatusTransition)

		l, err := s.FindLecture(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, model.LectureCompleted, l.Status)
	})

	t.Run("watch url", func(t *testing.T) {
		require.NoError(t, s.SetLectureWatchURL(ctx, "42", "https://www.youtube.com/watch?v=b1"))
		l, err := s.FindLecture(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, "https://www.youtube.com/watch?v=b1", l.LiveBroadcastURL)
	})

	t.Run("concurrent advance never regresses", func(t *testing.T) {
		require.NoError(t, s.PutLecture(ctx, model.Lecture{ID: "race", TeacherID: "t"}))
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = s.SetLectureStatus(ctx, "race", model.LectureInProgress)
			}()
			go func() {
				defer wg.Done()
				_ = s.SetLectureStatus(ctx, "race", model.LectureCompleted)
			}()
		}
		wg.Wait()
		l, err := s.FindLecture(ctx, "race")
		require.NoError(t, err)
		assert.Equal(t, model.LectureCompleted, l.Status)
	})

	require.NoError(t, s.Ping(ctx))
}
