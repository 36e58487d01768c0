// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "context"

// BroadcastLifecycle is a remote broadcast lifecycle status.
type BroadcastLifecycle string

const (
	BroadcastCreated  BroadcastLifecycle = "created"
	BroadcastReady    BroadcastLifecycle = "ready"
	BroadcastTesting  BroadcastLifecycle = "testing"
	BroadcastLive     BroadcastLifecycle = "live"
	BroadcastComplete BroadcastLifecycle = "complete"
)

// StreamRequest describes the broadcast to create.
type StreamRequest struct {
	Title       string
	Description string
}

// BroadcastInfo is returned by CreateStream.
type BroadcastInfo struct {
	BroadcastID string
	StreamID    string
	IngestURL   string
	StreamKey   string
}

// SinkURL joins the ingest address and the stream key.
func (b BroadcastInfo) SinkURL() string {
	if b.IngestURL == "" {
		return ""
	}
	u := b.IngestURL
	if u[len(u)-1] != '/' {
		u += "/"
	}
	return u + b.StreamKey
}

// BroadcastPlatform is the remote live-broadcast API.
type BroadcastPlatform interface {
	CreateStream(ctx context.Context, req StreamRequest) (BroadcastInfo, error)
	WaitForStreamActive(ctx context.Context, streamID string) error
	TransitionBroadcast(ctx context.Context, broadcastID string, target BroadcastLifecycle) error
	WaitForBroadcastInState(ctx context.Context, broadcastID string, state BroadcastLifecycle) error
	WatchURL(ctx context.Context, broadcastID string) (string, error)
}
