// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/resilience"
	"google.golang.org/api/googleapi"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrForbidden   = errors.New("youtube: access forbidden or quota exceeded")
	ErrUnavailable = errors.New("youtube: API unreachable or returned 5xx")
	ErrBadRequest  = errors.New("youtube: request rejected")
	ErrTimeout     = errors.New("youtube: request timed out")
	ErrNoToken     = errors.New("youtube: no OAuth token, complete the consent flow first")
)

// APIError wraps a sentinel with the failing operation and HTTP context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Reason    string // first googleapi error reason, e.g. "redundantTransition"
	Err       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("youtube: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// classify turns a raw client error into an *APIError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	apiErr := &APIError{Operation: op, Err: err}

	var gErr *googleapi.Error
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("youtube: %s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		apiErr.Sentinel = ErrTimeout
	case errors.Is(err, resilience.ErrCircuitOpen):
		apiErr.Sentinel = ErrUnavailable
	case errors.Is(err, ErrNoToken):
		apiErr.Sentinel = ErrNoToken
	case errors.As(err, &gErr):
		apiErr.Status = gErr.Code
		if len(gErr.Errors) > 0 {
			apiErr.Reason = gErr.Errors[0].Reason
		}
		switch {
		case gErr.Code == http.StatusNotFound:
			apiErr.Sentinel = ports.ErrBroadcastNotFound
		case gErr.Code == http.StatusUnauthorized, gErr.Code == http.StatusForbidden:
			apiErr.Sentinel = ErrForbidden
		case gErr.Code >= 500:
			apiErr.Sentinel = ErrUnavailable
		default:
			apiErr.Sentinel = ErrBadRequest
		}
	default:
		apiErr.Sentinel = ErrUnavailable
	}
	return apiErr
}

// isBreakerFailure reports whether err says the platform itself is unhealthy.
// Client-side rejections (4xx) and cancellations do not count.
func isBreakerFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNoToken) {
		return false
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code >= 500 || gErr.Code == http.StatusTooManyRequests
	}
	return true
}

func isRedundantTransition(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Reason == "redundantTransition"
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ports.ErrBroadcastNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrBadRequest):
		return "rejected"
	default:
		return "unavailable"
	}
}
