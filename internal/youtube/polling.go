// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package youtube

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/metrics"
)

// poll calls check immediately and then once per PollInterval until it
// reports done, returns a terminal error, ctx ends, or PollAttempts checks
// have been made. Transient errors use up an attempt and polling continues.
func (c *Client) poll(ctx context.Context, target string, check func(ctx context.Context) (bool, error)) error {
	logger := log.WithContext(ctx, log.WithComponent("youtube"))
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.PollAttempts; attempt++ {
		done, err := check(ctx)
		switch {
		case ctx.Err() != nil:
			metrics.PollAttempts.WithLabelValues(target, "canceled").Inc()
			return ctx.Err()
		case err == nil && done:
			metrics.PollAttempts.WithLabelValues(target, "done").Inc()
			logger.Debug().Str("target", target).Int(log.FieldAttempt, attempt).Msg("poll condition met")
			return nil
		case err != nil && IsTerminal(err):
			metrics.PollAttempts.WithLabelValues(target, "terminal").Inc()
			return err
		case err != nil:
			metrics.PollAttempts.WithLabelValues(target, "error").Inc()
			logger.Warn().Err(err).Str("target", target).Int(log.FieldAttempt, attempt).Msg("poll attempt failed, retrying")
		default:
			metrics.PollAttempts.WithLabelValues(target, "pending").Inc()
		}

		if attempt == c.cfg.PollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			metrics.PollAttempts.WithLabelValues(target, "canceled").Inc()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return fmt.Errorf("%w: %s not reached after %d attempts", ports.ErrActivationTimeout, target, c.cfg.PollAttempts)
}
