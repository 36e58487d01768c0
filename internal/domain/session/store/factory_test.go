// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLectureStore_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := OpenLectureStore(ctx, Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = OpenLectureStore(ctx, Options{SQLitePath: filepath.Join(t.TempDir(), "l.db")})
	require.NoError(t, err)
	assert.IsType(t, &SqliteStore{}, s, "sqlite is the default")
	require.NoError(t, s.Close())

	_, err = OpenLectureStore(ctx, Options{Backend: "bolt"})
	assert.Error(t, err)
}

func TestOpenLectureStore_Seed(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "lectures.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
lectures:
  - id: "42"
    teacher_id: teacher-1
    classroom_id: class-9
    title: Thermodynamics
  - id: "43"
    teacher_id: teacher-2
    status: InProgress
`), 0o600))

	s, err := OpenLectureStore(context.Background(), Options{Backend: "memory", SeedFile: seed})
	require.NoError(t, err)

	l, err := s.FindLecture(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", l.TeacherID)
	assert.Equal(t, model.LectureScheduled, l.Status)

	l, err = s.FindLecture(context.Background(), "43")
	require.NoError(t, err)
	assert.Equal(t, model.LectureInProgress, l.Status)
}

func TestSeed_RejectsBadRecords(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("lectures:\n  - id: \"../etc\"\n"), 0o600))
	_, err := Seed(context.Background(), NewMemoryStore(), bad)
	assert.Error(t, err)

	badStatus := filepath.Join(dir, "status.yaml")
	require.NoError(t, os.WriteFile(badStatus, []byte("lectures:\n  - id: a\n    status: Paused\n"), 0o600))
	_, err = Seed(context.Background(), NewMemoryStore(), badStatus)
	assert.Error(t, err)
}
