// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// SessionState is the lifecycle state of one live session.
type SessionState string

const (
	StateIdle               SessionState = "idle"
	StateCreating           SessionState = "creating"
	StateAwaitingActivation SessionState = "awaiting_activation"
	StateTesting            SessionState = "testing"
	StateLive               SessionState = "live"
	StateEnding             SessionState = "ending"
)

// IsRunning reports whether the session owns a buffer, a pipeline and remote identifiers.
func (s SessionState) IsRunning() bool {
	switch s {
	case StateAwaitingActivation, StateTesting, StateLive:
		return true
	default:
		return false
	}
}

// ReasonCode explains why a session was torn down.
type ReasonCode string

const (
	RNone              ReasonCode = ""
	RClientStop        ReasonCode = "client_stop"
	RDisconnect        ReasonCode = "publisher_disconnect"
	RShutdown          ReasonCode = "shutdown"
	RPipelineError     ReasonCode = "pipeline_error"
	RActivationTimeout ReasonCode = "activation_timeout"
	RBroadcastNotFound ReasonCode = "broadcast_not_found"
	RRemoteError       ReasonCode = "remote_error"
	RStoreError        ReasonCode = "store_error"
)

// IsUserInitiated reports whether the teardown was requested by the publisher
// (or the process) rather than caused by a failure.
func (r ReasonCode) IsUserInitiated() bool {
	switch r {
	case RClientStop, RDisconnect, RShutdown:
		return true
	default:
		return false
	}
}
