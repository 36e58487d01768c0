// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager coordinates live sessions: it claims the publisher slot,
// creates the remote broadcast, runs the transcode pipeline over the ingest
// buffer, walks the broadcast to live and tears everything down again.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/lifecycle"
	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/domain/session/registry"
	"github.com/ManuGH/liverelay/internal/ingest"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config bounds the blocking work done on behalf of a session.
type Config struct {
	IngestCapacity  int
	WriteTimeout    time.Duration // one PushMedia call
	KillTimeout     time.Duration // pipeline termination during teardown
	CompleteTimeout time.Duration // best-effort remote complete during teardown
	StoreTimeout    time.Duration // lecture record writes during teardown
}

func (c *Config) applyDefaults() {
	if c.IngestCapacity <= 0 {
		c.IngestCapacity = ingest.DefaultCapacity
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = 10 * time.Second
	}
	if c.CompleteTimeout <= 0 {
		c.CompleteTimeout = 15 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
}

// Deps are the collaborators of the Manager. Authorizer defaults to
// ports.TeacherAuthorizer and NewBuffer to an ingest.Buffer.
type Deps struct {
	Registry   *registry.Registry
	Lectures   ports.LectureStore
	Authorizer ports.Authorizer
	Platform   ports.BroadcastPlatform
	Pipeline   ports.TranscodePipeline
	Notifier   ports.Notifier
	NewBuffer  func(sessionID string) ports.MediaBuffer
}

// Manager is the live session lifecycle coordinator.
type Manager struct {
	reg       *registry.Registry
	lectures  ports.LectureStore
	auth      ports.Authorizer
	platform  ports.BroadcastPlatform
	pipeline  ports.TranscodePipeline
	notifier  ports.Notifier
	newBuffer func(sessionID string) ports.MediaBuffer

	cfg     Config
	workers workerGroup
}

// New validates deps and returns a Manager.
func New(deps Deps, cfg Config) (*Manager, error) {
	switch {
	case deps.Lectures == nil:
		return nil, errors.New("manager: lecture store is required")
	case deps.Platform == nil:
		return nil, errors.New("manager: broadcast platform is required")
	case deps.Pipeline == nil:
		return nil, errors.New("manager: transcode pipeline is required")
	case deps.Notifier == nil:
		return nil, errors.New("manager: notifier is required")
	}
	cfg.applyDefaults()

	m := &Manager{
		reg:       deps.Registry,
		lectures:  deps.Lectures,
		auth:      deps.Authorizer,
		platform:  deps.Platform,
		pipeline:  deps.Pipeline,
		notifier:  deps.Notifier,
		newBuffer: deps.NewBuffer,
		cfg:       cfg,
	}
	if m.reg == nil {
		m.reg = registry.New()
	}
	if m.auth == nil {
		m.auth = ports.TeacherAuthorizer{}
	}
	if m.newBuffer == nil {
		capacity := cfg.IngestCapacity
		m.newBuffer = func(sessionID string) ports.MediaBuffer { return ingest.New(sessionID, capacity) }
	}
	return m, nil
}

// Registry exposes the session registry for diagnostics.
func (m *Manager) Registry() *registry.Registry { return m.reg }

func (m *Manager) logger(ctx context.Context) zerolog.Logger {
	return log.WithContext(ctx, log.WithComponent("manager"))
}

// StartSession claims sessionID for publisherID, creates the remote broadcast
// and starts the pipeline. It returns once the lecture is InProgress; the
// returned Activation resolves when the broadcast is live.
func (m *Manager) StartSession(ctx context.Context, sessionID, publisherID string) (*Activation, error) {
	lectureID, err := model.LectureIDFromSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrLectureNotFound, err)
	}
	ctx = log.ContextWithSessionID(ctx, sessionID)
	logger := m.logger(ctx).With().Str(log.FieldLectureID, lectureID).Str(log.FieldPublisherID, publisherID).Logger()

	lecture, err := m.lectures.FindLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	if err := m.auth.AuthorizePublisher(ctx, lecture, publisherID); err != nil {
		logger.Warn().Err(err).Msg("publisher rejected")
		return nil, err
	}
	if !model.CanAdvance(lecture.Status, model.LectureInProgress) {
		return nil, fmt.Errorf("%w: lecture %s is %s", ports.ErrInvalidStatusTransition, lectureID, lecture.Status)
	}

	s, err := m.reg.AssignPublisher(sessionID, publisherID)
	if err != nil {
		logger.Warn().Err(err).Msg("publisher slot taken")
		return nil, err
	}

	// The session outlives the request that started it.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.Lock()
	if !s.Machine.Can(lifecycle.EvCreate) {
		s.Unlock()
		cancel()
		return nil, ports.ErrAlreadyPublishing
	}
	if err := s.Machine.Fire(sessCtx, lifecycle.EvCreate); err != nil {
		s.Unlock()
		cancel()
		return nil, err
	}
	s.Generation++
	gen := s.Generation
	s.Cancel = cancel
	s.Unlock()

	began := time.Now()
	info, err := m.platform.CreateStream(sessCtx, ports.StreamRequest{Title: lecture.Title})
	if err != nil {
		logger.Error().Err(err).Msg("broadcast creation failed")
		m.teardown(ctx, s, gen, reasonFor(err), err, false)
		return nil, err
	}
	logger = logger.With().Str(log.FieldBroadcastID, info.BroadcastID).Str(log.FieldStreamID, info.StreamID).Logger()

	s.Lock()
	if s.Generation != gen || s.Machine.State() != model.StateCreating {
		s.Unlock()
		logger.Warn().Msg("session ended while the broadcast was being created")
		return nil, ports.ErrSessionAborted
	}
	buf := m.newBuffer(sessionID)
	handle, err := m.pipeline.Start(sessCtx, buf, info.SinkURL())
	if err != nil {
		s.Unlock()
		buf.Fail(err)
		logger.Error().Err(err).Msg("pipeline start failed")
		m.teardown(ctx, s, gen, model.RPipelineError, err, false)
		return nil, err
	}
	s.Live = &registry.Live{
		Buffer:      buf,
		Pipeline:    handle,
		BroadcastID: info.BroadcastID,
		StreamID:    info.StreamID,
		StartedAt:   began,
	}
	_ = s.Machine.Fire(sessCtx, lifecycle.EvCreated)
	s.Unlock()

	if err := m.lectures.SetLectureStatus(sessCtx, lectureID, model.LectureInProgress); err != nil {
		logger.Error().Err(err).Msg("mark lecture in progress failed")
		m.teardown(ctx, s, gen, model.RStoreError, err, false)
		return nil, err
	}

	s.Lock()
	if s.Generation != gen || s.Machine.State() != model.StateAwaitingActivation {
		s.Unlock()
		logger.Warn().Msg("session ended before it was announced")
		return nil, ports.ErrSessionAborted
	}
	// Announced under the lock so session-ended can never overtake it.
	s.Announced = true
	m.notifier.BroadcastToRoom(sessionID, model.EventSessionStarted, model.SessionStartedPayload{
		SessionID: sessionID,
		LectureID: lectureID,
	})
	s.Unlock()

	act := newActivation(sessionID)
	if !m.workers.Go(func() { m.watchPipeline(sessCtx, s, gen, handle) }) ||
		!m.workers.Go(func() { m.activate(sessCtx, s, gen, info, began, act) }) {
		m.teardown(ctx, s, gen, model.RShutdown, ports.ErrSessionAborted, false)
		return nil, ports.ErrSessionAborted
	}

	logger.Info().Str(log.FieldEvent, "session.started").Int(log.FieldPID, handle.PID()).Msg("session started, awaiting activation")
	return act, nil
}

// activate waits for the remote stream and walks the broadcast to live.
func (m *Manager) activate(ctx context.Context, s *registry.Session, gen uint64, info ports.BroadcastInfo, began time.Time, act *Activation) {
	logger := m.logger(ctx).With().Str(log.FieldBroadcastID, info.BroadcastID).Logger()

	fail := func(err error) {
		if ctx.Err() != nil {
			// Someone else is tearing the session down.
			act.reject(fmt.Errorf("%w: %w", ports.ErrSessionAborted, err))
			return
		}
		logger.Error().Err(err).Msg("activation failed")
		m.teardown(ctx, s, gen, reasonFor(err), err, true)
		act.reject(err)
	}

	if err := m.platform.WaitForStreamActive(ctx, info.StreamID); err != nil {
		fail(err)
		return
	}
	if !m.advance(ctx, s, gen, model.StateAwaitingActivation, lifecycle.EvActivated, nil) {
		act.reject(ports.ErrSessionAborted)
		return
	}

	for _, target := range []ports.BroadcastLifecycle{ports.BroadcastTesting, ports.BroadcastLive} {
		if err := m.platform.TransitionBroadcast(ctx, info.BroadcastID, target); err != nil {
			fail(err)
			return
		}
		if err := m.platform.WaitForBroadcastInState(ctx, info.BroadcastID, target); err != nil {
			fail(err)
			return
		}
	}

	url, err := m.platform.WatchURL(ctx, info.BroadcastID)
	if err != nil {
		fail(err)
		return
	}
	var publisher string
	if !m.advance(ctx, s, gen, model.StateTesting, lifecycle.EvWentLive, func() {
		s.WatchURL = url
		publisher = s.Publisher
	}) {
		act.reject(ports.ErrSessionAborted)
		return
	}
	metrics.ActivationDuration.Observe(time.Since(began).Seconds())

	if err := m.lectures.SetLectureWatchURL(ctx, s.LectureID, url); err != nil {
		logger.Error().Err(err).Msg("persist watch url failed")
	}
	m.notifier.SendToUser(publisher, model.EventStreamingStarted, model.StreamingStartedPayload{
		SessionID: s.ID,
		WatchURL:  url,
	})
	logger.Info().Str(log.FieldEvent, "session.live").Str(log.FieldURL, url).Msg("broadcast is live")
	act.resolve(url)
}

// advance fires ev if the session is still in run gen and state from. apply
// runs under the session lock after a successful transition.
func (m *Manager) advance(ctx context.Context, s *registry.Session, gen uint64, from model.SessionState, ev lifecycle.EventKind, apply func()) bool {
	s.Lock()
	defer s.Unlock()
	if s.Generation != gen || s.Machine.State() != from {
		return false
	}
	if err := s.Machine.Fire(ctx, ev); err != nil {
		return false
	}
	if apply != nil {
		apply()
	}
	return true
}

// watchPipeline tears the session down when the process fails or exits on
// its own. Exits caused by teardown find the run already ending.
func (m *Manager) watchPipeline(ctx context.Context, s *registry.Session, gen uint64, handle ports.PipelineHandle) {
	logger := m.logger(ctx).With().Int(log.FieldPID, handle.PID()).Logger()
	for ev := range handle.Events() {
		switch ev.Type {
		case ports.PipelineStarted:
			logger.Info().Msg("transcode pipeline running")
		case ports.PipelineProgress:
			logger.Trace().Str("stats", ev.Line).Msg("transcode progress")
		case ports.PipelineError:
			err := ev.Err
			if err == nil {
				err = ports.ErrPipeline
			}
			if m.teardown(ctx, s, gen, model.RPipelineError, err, true) {
				logger.Error().Err(err).Str("stderr", ev.Line).Msg("transcode pipeline failed")
			}
		case ports.PipelineEnded:
			if m.teardown(ctx, s, gen, model.RPipelineError, fmt.Errorf("%w: process exited", ports.ErrPipeline), true) {
				logger.Warn().Msg("transcode pipeline exited while the session was running")
			}
		}
	}
}

// PushMedia forwards one chunk from the publisher into the session's ingest
// buffer. Chunks from one publisher are written in call order.
func (m *Manager) PushMedia(ctx context.Context, sessionID, publisherID string, chunk []byte) error {
	s, ok := m.reg.Get(sessionID)
	if !ok {
		return ports.ErrNoSession
	}

	s.WriteMu.Lock()
	defer s.WriteMu.Unlock()

	s.Lock()
	if s.Publisher != publisherID {
		s.Unlock()
		return ports.ErrAuthorization
	}
	live := s.Live
	s.Unlock()
	if live == nil {
		return ports.ErrNoSession
	}

	wctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	return live.Buffer.Write(wctx, chunk)
}

// StopSession ends the publisher's session. Stopping a session that is not
// running (or already being torn down) is a no-op.
func (m *Manager) StopSession(ctx context.Context, sessionID, publisherID string) error {
	s, ok := m.reg.Get(sessionID)
	if !ok {
		return nil
	}
	s.Lock()
	if s.Publisher != "" && s.Publisher != publisherID {
		s.Unlock()
		return ports.ErrAuthorization
	}
	gen := s.Generation
	s.Unlock()

	m.teardown(log.ContextWithSessionID(ctx, sessionID), s, gen, model.RClientStop, nil, false)
	return nil
}

// HandleDisconnect tears down every session published by identity.
func (m *Manager) HandleDisconnect(ctx context.Context, identity string) {
	for _, s := range m.reg.SessionsPublishedBy(identity) {
		s.Lock()
		gen := s.Generation
		s.Unlock()
		m.teardown(log.ContextWithSessionID(ctx, s.ID), s, gen, model.RDisconnect, nil, false)
	}
}

// SessionStatus answers a viewer joining the room of sessionID.
func (m *Manager) SessionStatus(sessionID string) model.SessionStatusPayload {
	st := model.SessionStatusPayload{SessionID: sessionID, State: model.StateIdle}
	if s, ok := m.reg.Get(sessionID); ok {
		info := s.Info()
		st.State = info.State
		st.WatchURL = info.WatchURL
	}
	return st
}

// Shutdown tears down every session and waits for session workers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.workers.Close()

	var g errgroup.Group
	for _, s := range m.reg.All() {
		g.Go(func() error {
			s.Lock()
			gen := s.Generation
			s.Unlock()
			m.teardown(log.ContextWithSessionID(ctx, s.ID), s, gen, model.RShutdown, nil, false)
			return nil
		})
	}
	_ = g.Wait()
	return m.workers.CloseAndWait(ctx)
}

// teardown ends run gen of s. Only the first caller for a run does the work;
// it reports whether this call did. report sends the cause to the publisher;
// failures returned synchronously from StartSession are reported by its caller.
func (m *Manager) teardown(ctx context.Context, s *registry.Session, gen uint64, reason model.ReasonCode, cause error, report bool) bool {
	ctx = context.WithoutCancel(ctx)

	s.Lock()
	if s.Generation != gen || !s.Machine.Can(lifecycle.EvEnd) {
		s.Unlock()
		return false
	}
	_ = s.Machine.Fire(ctx, lifecycle.EvEnd)
	live := s.Live
	publisher := s.Publisher
	announced := s.Announced
	reachedRemote := s.Machine.ReachedRemote()
	reachedLive := s.Machine.ReachedLive()
	cancel := s.Cancel
	s.Unlock()

	logger := m.logger(ctx).With().
		Str(log.FieldReason, string(reason)).
		Str(log.FieldPublisherID, publisher).
		Logger()
	if cause != nil {
		logger = logger.With().AnErr("cause", cause).Logger()
	}

	if cancel != nil {
		cancel()
	}

	if live != nil {
		if cause != nil {
			live.Buffer.Fail(cause)
		} else {
			live.Buffer.End()
		}
		killCtx, killCancel := context.WithTimeout(ctx, m.cfg.KillTimeout)
		if err := live.Pipeline.Kill(killCtx); err != nil {
			logger.Warn().Err(err).Msg("pipeline kill failed")
		}
		killCancel()

		if reachedRemote {
			cctx, ccancel := context.WithTimeout(ctx, m.cfg.CompleteTimeout)
			if err := m.platform.TransitionBroadcast(cctx, live.BroadcastID, ports.BroadcastComplete); err != nil {
				logger.Warn().Err(err).Str(log.FieldBroadcastID, live.BroadcastID).Msg("remote complete failed")
			}
			ccancel()
		}
	}

	// A failed activation leaves the lecture InProgress.
	if live != nil && (reason.IsUserInitiated() || reachedLive) {
		sctx, scancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		if err := m.lectures.SetLectureStatus(sctx, s.LectureID, model.LectureCompleted); err != nil {
			logger.Error().Err(err).Msg("mark lecture completed failed")
		}
		scancel()
	}

	s.Lock()
	s.Live = nil
	s.Publisher = ""
	s.WatchURL = ""
	s.Cancel = nil
	s.Announced = false
	_ = s.Machine.Fire(ctx, lifecycle.EvReset)
	s.Unlock()
	m.reg.Remove(s)

	// Notify once idle so the publisher can start again right away.
	if announced {
		m.notifier.BroadcastToRoom(s.ID, model.EventSessionEnded, model.SessionEndedPayload{
			SessionID: s.ID,
			LectureID: s.LectureID,
		})
	}
	switch {
	case report && cause != nil:
		m.notifier.SendToUser(publisher, model.EventStreamingError, model.StreamingErrorPayload{
			SessionID: s.ID,
			Code:      ports.Classify(cause),
			Message:   cause.Error(),
		})
	case reason == model.RClientStop:
		m.notifier.SendToUser(publisher, model.EventStreamingStopped, model.SessionEndedPayload{
			SessionID: s.ID,
			LectureID: s.LectureID,
		})
	}

	metrics.SessionTeardowns.WithLabelValues(string(reason)).Inc()
	logger.Info().Str(log.FieldEvent, "session.ended").Bool("reached_live", reachedLive).Msg("session torn down")
	return true
}

func reasonFor(err error) model.ReasonCode {
	switch {
	case errors.Is(err, ports.ErrActivationTimeout):
		return model.RActivationTimeout
	case errors.Is(err, ports.ErrBroadcastNotFound):
		return model.RBroadcastNotFound
	case errors.Is(err, ports.ErrPipeline):
		return model.RPipelineError
	default:
		return model.RRemoteError
	}
}
