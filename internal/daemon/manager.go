// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs the HTTP server and background tasks and stops them
// in a fixed order.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ShutdownHook performs cleanup during graceful shutdown.
type ShutdownHook func(ctx context.Context) error

// Task is a background loop bound to the daemon's lifetime.
type Task func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

type namedTask struct {
	name string
	task Task
}

// Manager manages the daemon lifecycle. Shutdown runs drain hooks in
// registration order, then stops the HTTP server, then runs shutdown hooks
// in reverse registration order (LIFO).
type Manager struct {
	cfg    ServerConfig
	deps   Deps
	logger zerolog.Logger

	mu            sync.Mutex
	started       bool
	tasks         []namedTask
	drainHooks    []namedHook
	shutdownHooks []namedHook

	server *http.Server
	addr   net.Addr
	ready  chan struct{}
}

// NewManager creates a new daemon manager with the given configuration and dependencies.
func NewManager(cfg ServerConfig, deps Deps) (*Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "daemon").Logger(),
		ready:  make(chan struct{}),
	}, nil
}

// AddTask registers a background task. Its context is cancelled when
// shutdown begins; returning context.Canceled is not an error.
func (m *Manager) AddTask(name string, task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, namedTask{name: name, task: task})
}

// RegisterDrainHook registers work that must finish while the HTTP server is
// still serving, such as tearing down live sessions.
func (m *Manager) RegisterDrainHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainHooks = append(m.drainHooks, namedHook{name: name, hook: hook})
}

// RegisterShutdownHook registers cleanup that runs after the HTTP server stopped.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}

// Ready is closed once the listener is bound.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Addr returns the bound listen address. Valid after Ready.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addr == nil {
		return ""
	}
	return m.addr.String()
}

// Run serves until ctx is cancelled or the server or a task fails, then
// shuts everything down.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	tasks := append([]namedTask(nil), m.tasks...)
	m.mu.Unlock()

	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.cfg.ListenAddr, err)
	}
	m.server = &http.Server{
		Handler:           m.deps.APIHandler,
		ReadHeaderTimeout: m.cfg.ReadHeaderTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
	}
	m.mu.Lock()
	m.addr = ln.Addr()
	m.mu.Unlock()
	close(m.ready)

	g, gctx := errgroup.WithContext(ctx)
	taskCtx, cancelTasks := context.WithCancel(gctx)
	defer cancelTasks()

	for _, t := range tasks {
		g.Go(func() error {
			m.logger.Debug().Str("task", t.name).Msg("background task started")
			if err := t.task(taskCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("task %s: %w", t.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		m.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening (HTTP)")
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("event", "api.server.failed").Msg("API server failed")
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			m.logger.Info().Msg("Shutdown signal received")
		}
		cancelTasks()
		// Bounded and detached so shutdown completes even though ctx is done.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		return m.shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (m *Manager) shutdown(ctx context.Context) error {
	m.mu.Lock()
	drain := append([]namedHook(nil), m.drainHooks...)
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	m.logger.Info().Msg("Shutting down daemon manager")
	var errs []error

	for _, h := range drain {
		errs = append(errs, m.runHook("drain", h, ctx)...)
	}

	m.logger.Debug().Msg("Shutting down API server")
	if err := m.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		errs = append(errs, m.runHook("shutdown", hooks[i], ctx)...)
	}

	if len(errs) > 0 {
		m.logger.Error().Int("error_count", len(errs)).Msg("Shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("Daemon manager stopped cleanly")
	return nil
}

func (m *Manager) runHook(phase string, h namedHook, ctx context.Context) []error {
	start := time.Now()
	if err := h.hook(ctx); err != nil {
		m.logger.Error().
			Err(err).
			Str("phase", phase).
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("Shutdown hook failed")
		return []error{fmt.Errorf("hook %s: %w", h.name, err)}
	}
	m.logger.Debug().
		Str("phase", phase).
		Str("hook", h.name).
		Dur("duration", time.Since(start)).
		Msg("Shutdown hook completed")
	return nil
}
