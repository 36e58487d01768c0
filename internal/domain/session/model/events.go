// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Real-time channel event names.
const (
	// Inbound
	EventStartStreaming = "start-streaming"
	EventStreamingData  = "streaming-data"
	EventStopStreaming  = "stop-streaming"
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"

	// Outbound
	EventSessionStarted   = "session-started"
	EventSessionEnded     = "session-ended"
	EventStreamingStarted = "streaming-started"
	EventStreamingStopped = "streaming-stopped"
	EventStreamingError   = "streaming-error"
	EventSessionStatus    = "session-status"
)

// SessionStartedPayload is broadcast to the room once the pipeline is running.
type SessionStartedPayload struct {
	SessionID string `json:"sessionId"`
	LectureID string `json:"lectureId"`
}

// SessionEndedPayload is broadcast to the room on any teardown.
type SessionEndedPayload struct {
	SessionID string `json:"sessionId"`
	LectureID string `json:"lectureId"`
}

// StreamingStartedPayload is sent to the publisher once the broadcast is live.
type StreamingStartedPayload struct {
	SessionID string `json:"sessionId"`
	WatchURL  string `json:"watchUrl"`
}

// StreamingErrorPayload is sent to the publisher only.
type StreamingErrorPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// SessionStatusPayload answers a viewer joining a room.
type SessionStatusPayload struct {
	SessionID string       `json:"sessionId"`
	State     SessionState `json:"state"`
	WatchURL  string       `json:"watchUrl,omitempty"`
}
