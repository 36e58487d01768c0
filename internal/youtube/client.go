// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package youtube drives YouTube Live broadcasts through the Data API v3:
// create and bind a broadcast and RTMP stream, poll activation, and walk the
// broadcast lifecycle.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/metrics"
	"github.com/ManuGH/liverelay/internal/resilience"
	"github.com/ManuGH/liverelay/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

const (
	DefaultWatchURLBase = "https://www.youtube.com/watch?v="
	DefaultPollInterval = 5 * time.Second
	DefaultPollAttempts = 60
	DefaultCallTimeout  = 20 * time.Second
)

// Config tunes the client. Zero values fall back to the defaults above.
type Config struct {
	// Endpoint overrides the API base URL (tests point it at an httptest server).
	Endpoint      string
	PrivacyStatus string // public, unlisted or private
	WatchURLBase  string
	PollInterval  time.Duration
	PollAttempts  int
	CallTimeout   time.Duration

	BreakerThreshold int
	BreakerReset     time.Duration
}

func (c *Config) applyDefaults() {
	if c.PrivacyStatus == "" {
		c.PrivacyStatus = "unlisted"
	}
	if c.WatchURLBase == "" {
		c.WatchURLBase = DefaultWatchURLBase
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = DefaultPollAttempts
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
}

// Client implements ports.BroadcastPlatform.
type Client struct {
	svc     *yt.Service
	cfg     Config
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
	now     func() time.Time
}

var _ ports.BroadcastPlatform = (*Client)(nil)

// New builds a client on top of httpClient, which must already carry OAuth
// credentials (see TokenStore.HTTPClient).
func New(ctx context.Context, httpClient *http.Client, cfg Config) (*Client, error) {
	cfg.applyDefaults()

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}

	return &Client{
		svc: svc,
		cfg: cfg,
		breaker: resilience.NewCircuitBreaker("youtube", cfg.BreakerThreshold, cfg.BreakerReset,
			resilience.WithFailurePredicate(isBreakerFailure)),
		tracer: telemetry.Tracer("liverelay/youtube"),
		now:    time.Now,
	}, nil
}

// call runs one API request under the per-call timeout and the breaker.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	ctx, span := c.tracer.Start(ctx, "youtube."+op, trace.WithAttributes(telemetry.RemoteAttributes(op, "", "")...))
	defer func() { telemetry.EndSpan(span, err) }()

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	err = classify(op, c.breaker.Execute(callCtx, fn))
	metrics.RecordRemoteCall(op, resultLabel(err), time.Since(start))
	return err
}

// CreateStream inserts a broadcast and an RTMP stream and binds them.
func (c *Client) CreateStream(ctx context.Context, req ports.StreamRequest) (ports.BroadcastInfo, error) {
	logger := log.WithContext(ctx, log.WithComponent("youtube"))
	title := req.Title
	if title == "" {
		title = "Live lecture"
	}

	var broadcast *yt.LiveBroadcast
	err := c.call(ctx, "insert_broadcast", func(ctx context.Context) error {
		var err error
		broadcast, err = c.svc.LiveBroadcasts.Insert([]string{"snippet", "status", "contentDetails"}, &yt.LiveBroadcast{
			Snippet: &yt.LiveBroadcastSnippet{
				Title:              title,
				Description:        req.Description,
				ScheduledStartTime: c.now().UTC().Format(time.RFC3339),
			},
			Status: &yt.LiveBroadcastStatus{
				PrivacyStatus:           c.cfg.PrivacyStatus,
				SelfDeclaredMadeForKids: false,
			},
			ContentDetails: &yt.LiveBroadcastContentDetails{
				EnableAutoStart:   false,
				EnableAutoStop:    false,
				LatencyPreference: "low",
			},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return ports.BroadcastInfo{}, fmt.Errorf("%w: %w", ports.ErrBroadcastCreateFailed, err)
	}
	if broadcast == nil || broadcast.Id == "" {
		return ports.BroadcastInfo{}, fmt.Errorf("%w: broadcast insert returned no id", ports.ErrBroadcastCreateFailed)
	}

	var stream *yt.LiveStream
	err = c.call(ctx, "insert_stream", func(ctx context.Context) error {
		var err error
		stream, err = c.svc.LiveStreams.Insert([]string{"snippet", "cdn", "contentDetails"}, &yt.LiveStream{
			Snippet: &yt.LiveStreamSnippet{Title: title},
			Cdn: &yt.CdnSettings{
				IngestionType: "rtmp",
				FrameRate:     "variable",
				Resolution:    "variable",
			},
			ContentDetails: &yt.LiveStreamContentDetails{IsReusable: false},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		c.discard(ctx, broadcast.Id, "")
		return ports.BroadcastInfo{}, fmt.Errorf("%w: %w", ports.ErrBroadcastCreateFailed, err)
	}
	if stream == nil || stream.Id == "" || stream.Cdn == nil || stream.Cdn.IngestionInfo == nil ||
		stream.Cdn.IngestionInfo.IngestionAddress == "" || stream.Cdn.IngestionInfo.StreamName == "" {
		streamID := ""
		if stream != nil {
			streamID = stream.Id
		}
		c.discard(ctx, broadcast.Id, streamID)
		return ports.BroadcastInfo{}, fmt.Errorf("%w: stream insert returned no ingestion info", ports.ErrBroadcastCreateFailed)
	}

	err = c.call(ctx, "bind", func(ctx context.Context) error {
		_, err := c.svc.LiveBroadcasts.Bind(broadcast.Id, []string{"id", "contentDetails"}).
			StreamId(stream.Id).Context(ctx).Do()
		return err
	})
	if err != nil {
		c.discard(ctx, broadcast.Id, stream.Id)
		return ports.BroadcastInfo{}, fmt.Errorf("%w: %w", ports.ErrBroadcastCreateFailed, err)
	}

	info := ports.BroadcastInfo{
		BroadcastID: broadcast.Id,
		StreamID:    stream.Id,
		IngestURL:   strings.TrimSuffix(stream.Cdn.IngestionInfo.IngestionAddress, "/"),
		StreamKey:   stream.Cdn.IngestionInfo.StreamName,
	}
	logger.Info().
		Str(log.FieldBroadcastID, info.BroadcastID).
		Str(log.FieldStreamID, info.StreamID).
		Msg("broadcast created and bound")
	return info, nil
}

// discard deletes the resources of a half-created broadcast. Failures are
// logged only; the caller already reports the create error.
func (c *Client) discard(ctx context.Context, broadcastID, streamID string) {
	logger := log.WithContext(ctx, log.WithComponent("youtube"))
	ctx = context.WithoutCancel(ctx)

	if streamID != "" {
		err := c.call(ctx, "delete_stream", func(ctx context.Context) error {
			return c.svc.LiveStreams.Delete(streamID).Context(ctx).Do()
		})
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldStreamID, streamID).Msg("delete orphaned stream failed")
		}
	}
	err := c.call(ctx, "delete_broadcast", func(ctx context.Context) error {
		return c.svc.LiveBroadcasts.Delete(broadcastID).Context(ctx).Do()
	})
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldBroadcastID, broadcastID).Msg("delete orphaned broadcast failed")
		return
	}
	logger.Info().Str(log.FieldBroadcastID, broadcastID).Msg("orphaned broadcast deleted")
}

// WaitForStreamActive polls the stream until YouTube reports it active.
func (c *Client) WaitForStreamActive(ctx context.Context, streamID string) error {
	return c.poll(ctx, "stream_active", func(ctx context.Context) (bool, error) {
		var resp *yt.LiveStreamListResponse
		err := c.call(ctx, "get_stream", func(ctx context.Context) error {
			var err error
			resp, err = c.svc.LiveStreams.List([]string{"status"}).Id(streamID).Context(ctx).Do()
			return err
		})
		if err != nil {
			return false, err
		}
		if len(resp.Items) == 0 {
			return false, fmt.Errorf("stream %s: %w", streamID, ports.ErrBroadcastNotFound)
		}
		st := resp.Items[0].Status
		return st != nil && st.StreamStatus == "active", nil
	})
}

// TransitionBroadcast asks YouTube to move the broadcast to target. It does
// not wait; a transition to the state the broadcast is already in succeeds.
func (c *Client) TransitionBroadcast(ctx context.Context, broadcastID string, target ports.BroadcastLifecycle) error {
	err := c.call(ctx, "transition", func(ctx context.Context) error {
		_, err := c.svc.LiveBroadcasts.Transition(string(target), broadcastID, []string{"status"}).Context(ctx).Do()
		return err
	})
	if isRedundantTransition(err) {
		return nil
	}
	return err
}

// WaitForBroadcastInState polls the broadcast's lifecycle status until it equals state.
func (c *Client) WaitForBroadcastInState(ctx context.Context, broadcastID string, state ports.BroadcastLifecycle) error {
	return c.poll(ctx, "broadcast_"+string(state), func(ctx context.Context) (bool, error) {
		b, err := c.getBroadcast(ctx, broadcastID, "status")
		if err != nil {
			return false, err
		}
		return b.Status != nil && b.Status.LifeCycleStatus == string(state), nil
	})
}

// WatchURL returns the public address of the broadcast.
func (c *Client) WatchURL(ctx context.Context, broadcastID string) (string, error) {
	b, err := c.getBroadcast(ctx, broadcastID, "id")
	if err != nil {
		return "", err
	}
	return c.cfg.WatchURLBase + b.Id, nil
}

func (c *Client) getBroadcast(ctx context.Context, broadcastID string, parts ...string) (*yt.LiveBroadcast, error) {
	var resp *yt.LiveBroadcastListResponse
	err := c.call(ctx, "get_broadcast", func(ctx context.Context) error {
		var err error
		resp, err = c.svc.LiveBroadcasts.List(parts).Id(broadcastID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("broadcast %s: %w", broadcastID, ports.ErrBroadcastNotFound)
	}
	return resp.Items[0], nil
}

// IsTerminal reports whether a polling error should stop the session rather
// than be retried.
func IsTerminal(err error) bool {
	return errors.Is(err, ports.ErrBroadcastNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNoToken)
}
