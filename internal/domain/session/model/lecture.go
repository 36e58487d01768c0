// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// LectureStatus is the persisted status of a lecture record.
type LectureStatus string

const (
	LectureScheduled  LectureStatus = "Scheduled"
	LectureInProgress LectureStatus = "InProgress"
	LectureCompleted  LectureStatus = "Completed"
)

// Rank orders statuses along Scheduled → InProgress → Completed; unknown is 0.
func (s LectureStatus) Rank() int {
	switch s {
	case LectureScheduled:
		return 1
	case LectureInProgress:
		return 2
	case LectureCompleted:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s LectureStatus) Valid() bool {
	return s.Rank() > 0
}

// CanAdvance reports whether a lecture may move from one status to another.
// Statuses only move forward; re-applying the current status is allowed.
func CanAdvance(from, to LectureStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.Rank() >= from.Rank()
}

// Lecture is the subset of the lecture record the relay reads and writes.
type Lecture struct {
	ID               string        `json:"id"`
	TeacherID        string        `json:"teacherId"`
	ClassroomID      string        `json:"classroomId"`
	Title            string        `json:"title"`
	Status           LectureStatus `json:"status"`
	LiveBroadcastURL string        `json:"liveBroadcastUrl,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
