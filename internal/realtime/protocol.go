// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package realtime

import (
	"encoding/json"
	"errors"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
)

// Error codes that only exist on the wire.
const (
	CodeBadMessage  = "bad-message"
	CodeRateLimited = "rate-limited"
	// CodeNotReady reports media sent before session-started. It is sent
	// once per run; the chunks are not queued.
	CodeNotReady = "not-ready"
)

// Envelope is the JSON shape of every text frame in both directions.
// Binary frames carry raw media for the connection's publishing session.
// Publishers must wait for session-started before sending media; earlier
// chunks are dropped and answered with a single not-ready streaming-error.
type Envelope struct {
	Event     string          `json:"event"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

func decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errors.New("missing event")
	}
	return env, nil
}

// mediaPayload decodes a text streaming-data frame whose data is base64.
func mediaPayload(env Envelope) ([]byte, error) {
	var chunk []byte
	if err := json.Unmarshal(env.Data, &chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

func errorPayload(sessionID string, err error) model.StreamingErrorPayload {
	return model.StreamingErrorPayload{
		SessionID: sessionID,
		Code:      ports.Classify(err),
		Message:   err.Error(),
	}
}

// endedSession returns the session a server event ends, if any.
func endedSession(event string, payload any) (string, bool) {
	switch p := payload.(type) {
	case model.SessionEndedPayload:
		if event == model.EventSessionEnded || event == model.EventStreamingStopped {
			return p.SessionID, p.SessionID != ""
		}
	case model.StreamingErrorPayload:
		if event == model.EventStreamingError {
			return p.SessionID, p.SessionID != ""
		}
	}
	return "", false
}
