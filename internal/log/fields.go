// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID   = "session_id"
	FieldLectureID   = "lecture_id"
	FieldPublisherID = "publisher_id"
	FieldRequestID   = "request_id"
	FieldConnID      = "conn_id"

	// Remote broadcast fields
	FieldBroadcastID = "broadcast_id"
	FieldStreamID    = "stream_id"
	FieldOperation   = "operation"
	FieldAttempt     = "attempt"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldReason    = "reason"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath = "path"
	FieldURL  = "url"
)
