// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"io"
	"time"
)

// PipelineEventType identifies a transcode lifecycle signal.
type PipelineEventType string

const (
	PipelineStarted  PipelineEventType = "started"
	PipelineProgress PipelineEventType = "progress"
	PipelineError    PipelineEventType = "error"
	PipelineEnded    PipelineEventType = "ended"
)

// PipelineEvent is emitted by a running pipeline. Error and Ended are terminal.
type PipelineEvent struct {
	Type PipelineEventType
	At   time.Time
	Line string // progress line, or stderr tail on error
	Err  error
}

// PipelineHandle controls one running transcode process.
type PipelineHandle interface {
	// Events is closed after the terminal event.
	Events() <-chan PipelineEvent
	// Kill terminates the process; safe to call repeatedly and after exit.
	Kill(ctx context.Context) error
	PID() int
}

// TranscodePipeline starts transcode processes reading from source and pushing to sinkURL.
type TranscodePipeline interface {
	Start(ctx context.Context, source io.Reader, sinkURL string) (PipelineHandle, error)
}

// MediaBuffer is the per-session ingest sink read by the pipeline.
type MediaBuffer interface {
	io.Reader
	Write(ctx context.Context, chunk []byte) error
	End()
	Fail(err error)
}
