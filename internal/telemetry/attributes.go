// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by relay spans.
const (
	SessionIDKey    = "relay.session_id"
	LectureIDKey    = "relay.lecture_id"
	SessionStateKey = "relay.session_state"

	RemoteOperationKey   = "youtube.operation"
	RemoteBroadcastIDKey = "youtube.broadcast_id"
	RemoteStreamIDKey    = "youtube.stream_id"
	RemoteTargetKey      = "youtube.target_status"
	PollAttemptKey       = "youtube.poll_attempt"

	PipelinePIDKey = "pipeline.pid"

	ErrorTypeKey = "error.type"
)

// SessionAttributes identifies the session a span belongs to.
func SessionAttributes(sessionID, lectureID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if lectureID != "" {
		attrs = append(attrs, attribute.String(LectureIDKey, lectureID))
	}
	return attrs
}

// RemoteAttributes describes a broadcast platform call. Empty ids are omitted.
func RemoteAttributes(operation, broadcastID, streamID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(RemoteOperationKey, operation)}
	if broadcastID != "" {
		attrs = append(attrs, attribute.String(RemoteBroadcastIDKey, broadcastID))
	}
	if streamID != "" {
		attrs = append(attrs, attribute.String(RemoteStreamIDKey, streamID))
	}
	return attrs
}

// ErrorAttributes tags a span with the taxonomy code of a failure.
func ErrorAttributes(code string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(ErrorTypeKey, code)}
}
