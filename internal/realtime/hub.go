// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package realtime is the WebSocket channel between browsers and the relay:
// publishers start, feed and stop sessions; viewers join session rooms.
package realtime

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/manager"
	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Controller is the part of the session manager the hub drives.
type Controller interface {
	StartSession(ctx context.Context, sessionID, publisherID string) (*manager.Activation, error)
	PushMedia(ctx context.Context, sessionID, publisherID string, chunk []byte) error
	StopSession(ctx context.Context, sessionID, publisherID string) error
	HandleDisconnect(ctx context.Context, identity string)
	SessionStatus(sessionID string) model.SessionStatusPayload
}

// IdentityFunc resolves the authenticated user of an upgrade request.
type IdentityFunc func(r *http.Request) (string, error)

// ErrNoIdentity is returned by HeaderIdentity when the request carries no user.
var ErrNoIdentity = errors.New("realtime: no user identity on request")

// HeaderIdentity trusts the X-User-ID header set by the upstream auth proxy,
// falling back to the user query parameter.
func HeaderIdentity(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("user"))
	}
	if id == "" {
		return "", ErrNoIdentity
	}
	return id, nil
}

// Config tunes connection handling. Zero values use the defaults.
type Config struct {
	ReadLimit      int64
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	ControlRate    float64 // control messages per second per connection
	ControlBurst   int
	AllowedOrigins []string // empty allows any origin
}

func (c *Config) applyDefaults() {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4 << 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.ControlRate <= 0 {
		c.ControlRate = 5
	}
	if c.ControlBurst <= 0 {
		c.ControlBurst = 10
	}
}

// Hub tracks connections by room and by user and implements ports.Notifier.
type Hub struct {
	cfg      Config
	identity IdentityFunc
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	ctrlMu sync.RWMutex
	ctrl   Controller

	mu    sync.RWMutex
	conns map[*conn]struct{}
	rooms map[string]map[*conn]struct{}
	users map[string]map[*conn]struct{}
}

var _ ports.Notifier = (*Hub)(nil)

// NewHub returns a hub. Bind must be called before serving connections.
func NewHub(cfg Config, identity IdentityFunc) *Hub {
	cfg.applyDefaults()
	if identity == nil {
		identity = HeaderIdentity
	}
	h := &Hub{
		cfg:      cfg,
		identity: identity,
		logger:   log.WithComponent("realtime"),
		conns:    make(map[*conn]struct{}),
		rooms:    make(map[string]map[*conn]struct{}),
		users:    make(map[string]map[*conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  16 << 10,
		WriteBufferSize: 16 << 10,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Bind attaches the session controller. The manager needs the hub as its
// notifier, so the two are wired in two steps.
func (h *Hub) Bind(ctrl Controller) {
	h.ctrlMu.Lock()
	h.ctrl = ctrl
	h.ctrlMu.Unlock()
}

func (h *Hub) controller() Controller {
	h.ctrlMu.RLock()
	defer h.ctrlMu.RUnlock()
	return h.ctrl
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller()
	if ctrl == nil {
		http.Error(w, "realtime channel not ready", http.StatusServiceUnavailable)
		return
	}
	identity, err := h.identity(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(h, ctrl, ws, identity)
	h.register(c)
	metrics.RealtimeConnections.Inc()
	defer metrics.RealtimeConnections.Dec()

	c.run(context.WithoutCancel(r.Context()))
	h.unregister(c)
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	addTo(h.users, c.identity, c)
	c.logger.Info().Msg("connection opened")
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	removeFrom(h.users, c.identity, c)
	for room := range c.rooms() {
		removeFrom(h.rooms, room, c)
	}
	c.logger.Info().Msg("connection closed")
}

func (h *Hub) join(room string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	addTo(h.rooms, room, c)
	c.addRoom(room)
}

func (h *Hub) leave(room string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removeFrom(h.rooms, room, c)
	c.removeRoom(room)
}

func addTo(m map[string]map[*conn]struct{}, key string, c *conn) {
	set, ok := m[key]
	if !ok {
		set = make(map[*conn]struct{})
		m[key] = set
	}
	set[c] = struct{}{}
}

func removeFrom(m map[string]map[*conn]struct{}, key string, c *conn) {
	if set, ok := m[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func (h *Hub) members(m map[string]map[*conn]struct{}, key string) []*conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*conn, 0, len(m[key]))
	for c := range m[key] {
		out = append(out, c)
	}
	return out
}

// BroadcastToRoom sends event to every connection that joined sessionID.
func (h *Hub) BroadcastToRoom(sessionID, event string, payload any) {
	targets := h.members(h.rooms, sessionID)
	release(targets, event, payload)
	h.deliver(targets, event, payload)
}

// SendToUser sends event to every connection of identity.
func (h *Hub) SendToUser(identity, event string, payload any) {
	targets := h.members(h.users, identity)
	release(targets, event, payload)
	h.deliver(targets, event, payload)
}

// release drops the publishing claim of targets when event reports that the
// server ended their session. It runs before delivery so that a publisher
// reacting to the event can start again.
func release(targets []*conn, event string, payload any) {
	sessionID, ok := endedSession(event, payload)
	if !ok {
		return
	}
	for _, c := range targets {
		c.clearPublishing(sessionID)
	}
}

func (h *Hub) deliver(targets []*conn, event string, payload any) {
	if len(targets) == 0 {
		return
	}
	msg, err := encode(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str(log.FieldEvent, event).Msg("encode outbound event failed")
		return
	}
	for _, c := range targets {
		c.enqueue(msg)
	}
}

// RoomSize returns the number of connections in sessionID's room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Close closes every connection. Their read loops then run the normal
// disconnect path.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.close()
	}
}
