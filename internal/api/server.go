// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api assembles the relay's HTTP surface: the WebSocket channel,
// the YouTube consent flow, diagnostics, probes and metrics.
package api

import (
	"net/http"

	"github.com/ManuGH/liverelay/internal/api/middleware"
	v1 "github.com/ManuGH/liverelay/internal/api/v1"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OAuthHandlers serves the consent redirect and its callback.
type OAuthHandlers interface {
	Start(w http.ResponseWriter, r *http.Request)
	Callback(w http.ResponseWriter, r *http.Request)
}

// Probes serves liveness and readiness.
type Probes interface {
	ServeHealth(w http.ResponseWriter, r *http.Request)
	ServeReady(w http.ResponseWriter, r *http.Request)
}

// Config holds per-client request limits (per minute) and the tracing name.
type Config struct {
	WSUpgradeRate  int
	OAuthRate      int
	APIRate        int
	TracingService string
}

// Deps are the handlers behind the routes.
type Deps struct {
	Realtime http.Handler
	OAuth    OAuthHandlers
	Sessions v1.SessionLister
	Probes   Probes
	Metrics  http.Handler // defaults to promhttp.Handler()
}

// NewRouter builds the chi router with the shared middleware stack.
func NewRouter(cfg Config, deps Deps) http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        cfg.TracingService,
		EnableLogging:         true,
	})

	r.Get("/healthz", deps.Probes.ServeHealth)
	r.Get("/readyz", deps.Probes.ServeReady)

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.With(middleware.PerMinute(cfg.WSUpgradeRate)).Method(http.MethodGet, "/ws", deps.Realtime)

	r.Route("/oauth/youtube", func(r chi.Router) {
		r.Use(middleware.PerMinute(cfg.OAuthRate))
		r.Get("/start", deps.OAuth.Start)
		r.Get("/callback", deps.OAuth.Callback)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PerMinute(cfg.APIRate))
		v1.NewHandler(deps.Sessions).Routes(r)
	})

	return r
}
