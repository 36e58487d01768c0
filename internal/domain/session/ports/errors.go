// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"errors"
)

// Error taxonomy shared by the coordinator and its adapters.
var (
	ErrAuthorization         = errors.New("publisher is not authorized for this lecture")
	ErrAlreadyPublishing     = errors.New("another publisher already holds this session")
	ErrBroadcastCreateFailed = errors.New("remote broadcast creation failed")
	ErrActivationTimeout     = errors.New("remote stream did not become active in time")
	ErrBroadcastNotFound     = errors.New("remote broadcast not found")
	ErrPipeline              = errors.New("transcode pipeline failed")
	ErrStreamClosed          = errors.New("ingest stream closed")
	ErrWriteTimeout          = errors.New("ingest write timed out")

	ErrLectureNotFound         = errors.New("lecture not found")
	ErrInvalidStatusTransition = errors.New("invalid lecture status transition")
	ErrNoSession               = errors.New("no live session")
	ErrSessionAborted          = errors.New("session aborted")
)

// Error codes sent to the publisher in streaming-error events.
const (
	CodeAuthorization   = "authorization-error"
	CodeAlreadyPublish  = "already-publishing"
	CodeCreateFailed    = "broadcast-create-failed"
	CodeActivation      = "activation-timeout"
	CodeNotFound        = "broadcast-not-found"
	CodePipeline        = "pipeline-error"
	CodeStreamClosed    = "stream-closed"
	CodeLectureNotFound = "lecture-not-found"
	CodeInvalidLecture  = "lecture-not-startable"
	CodeNoSession       = "no-session"
	CodeAborted         = "session-aborted"
	CodeInternal        = "internal-error"
)

// Classify maps an error onto the code reported to the publisher.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthorization):
		return CodeAuthorization
	case errors.Is(err, ErrAlreadyPublishing):
		return CodeAlreadyPublish
	case errors.Is(err, ErrBroadcastCreateFailed):
		return CodeCreateFailed
	case errors.Is(err, ErrActivationTimeout):
		return CodeActivation
	case errors.Is(err, ErrBroadcastNotFound):
		return CodeNotFound
	case errors.Is(err, ErrPipeline):
		return CodePipeline
	case errors.Is(err, ErrStreamClosed), errors.Is(err, ErrWriteTimeout):
		return CodeStreamClosed
	case errors.Is(err, ErrLectureNotFound):
		return CodeLectureNotFound
	case errors.Is(err, ErrInvalidStatusTransition):
		return CodeInvalidLecture
	case errors.Is(err, ErrNoSession):
		return CodeNoSession
	case errors.Is(err, ErrSessionAborted), errors.Is(err, context.Canceled):
		return CodeAborted
	default:
		return CodeInternal
	}
}
