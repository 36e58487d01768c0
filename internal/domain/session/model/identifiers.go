// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"regexp"
	"strings"
)

// SessionPrefix is prepended to a lecture ID to build its session ID.
const SessionPrefix = "lecture-"

var lectureIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// IsSafeLectureID returns true if the ID is safe to embed in keys, URLs and log lines.
func IsSafeLectureID(id string) bool {
	return lectureIDRe.MatchString(id)
}

// SessionIDForLecture derives the stable session ID for a lecture.
func SessionIDForLecture(lectureID string) string {
	return SessionPrefix + lectureID
}

// LectureIDFromSession extracts the lecture ID from a session ID.
func LectureIDFromSession(sessionID string) (string, error) {
	id, ok := strings.CutPrefix(sessionID, SessionPrefix)
	if !ok || !IsSafeLectureID(id) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return id, nil
}
