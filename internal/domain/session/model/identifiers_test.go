// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIDRoundTrip(t *testing.T) {
	sid := SessionIDForLecture("42")
	assert.Equal(t, "lecture-42", sid)

	id, err := LectureIDFromSession(sid)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestLectureIDFromSession_Rejects(t *testing.T) {
	for _, sid := range []string{"", "42", "lecture-", "lecture-../x", "room-42"} {
		_, err := LectureIDFromSession(sid)
		assert.Error(t, err, sid)
	}
}

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		from, to LectureStatus
		want     bool
	}{
		{LectureScheduled, LectureInProgress, true},
		{LectureInProgress, LectureCompleted, true},
		{LectureScheduled, LectureCompleted, true},
		{LectureInProgress, LectureInProgress, true},
		{LectureInProgress, LectureScheduled, false},
		{LectureCompleted, LectureInProgress, false},
		{LectureStatus("bogus"), LectureCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanAdvance(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
