// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// conn is one WebSocket client. The read loop runs on the ServeHTTP
// goroutine; writes go through send and a single write loop.
type conn struct {
	id       string
	identity string
	hub      *Hub
	ctrl     Controller
	ws       *websocket.Conn
	send     chan []byte
	limiter  *rate.Limiter
	logger   zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
	starts    sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	publishing string
	// dropReported is set once a not-ready error went out for the current
	// publishing claim.
	dropReported bool
	joined       map[string]struct{}
}

func newConn(h *Hub, ctrl Controller, ws *websocket.Conn, identity string) *conn {
	id := uuid.NewString()
	return &conn{
		id:       id,
		identity: identity,
		hub:      h,
		ctrl:     ctrl,
		ws:       ws,
		send:     make(chan []byte, h.cfg.SendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(h.cfg.ControlRate), h.cfg.ControlBurst),
		logger: h.logger.With().
			Str(log.FieldConnID, id).
			Str(log.FieldPublisherID, identity).
			Logger(),
		done:   make(chan struct{}),
		joined: make(map[string]struct{}),
	}
}

func (c *conn) run(ctx context.Context) {
	ctx = log.ContextWithConnID(ctx, c.id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop(ctx)
	c.close()
	<-writerDone

	c.mu.Lock()
	publishing := c.publishing
	c.mu.Unlock()
	if publishing != "" {
		c.ctrl.HandleDisconnect(ctx, c.identity)
	}
	c.starts.Wait()
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// enqueue queues msg for the write loop. A client that cannot keep up is
// disconnected rather than silently losing control events.
func (c *conn) enqueue(msg []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.logger.Warn().Msg("send buffer full, closing slow connection")
		c.close()
	}
}

func (c *conn) readLoop(ctx context.Context) {
	cfg := c.hub.cfg
	c.ws.SetReadLimit(cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))

		switch mt {
		case websocket.BinaryMessage:
			metrics.RealtimeMessages.WithLabelValues(model.EventStreamingData).Inc()
			c.handleMedia(ctx, "", data)
		case websocket.TextMessage:
			c.handleText(ctx, data)
		}
	}
}

func (c *conn) writeLoop() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	defer c.ws.Close()

	write := func(mt int, msg []byte) error {
		_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
		return c.ws.WriteMessage(mt, msg)
	}

	for {
		select {
		case msg := <-c.send:
			if err := write(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			// Flush what is already queued, then say goodbye.
			for {
				select {
				case msg := <-c.send:
					if write(websocket.TextMessage, msg) != nil {
						return
					}
					continue
				default:
				}
				break
			}
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.WriteWait))
			return
		}
	}
}

func (c *conn) emit(event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode event failed")
		return
	}
	c.enqueue(msg)
}

func (c *conn) fail(sessionID string, err error) {
	c.emit(model.EventStreamingError, errorPayload(sessionID, err))
}

func (c *conn) failCode(sessionID, code, msg string) {
	c.emit(model.EventStreamingError, model.StreamingErrorPayload{SessionID: sessionID, Code: code, Message: msg})
}

func (c *conn) handleText(ctx context.Context, raw []byte) {
	env, err := decode(raw)
	if err != nil {
		metrics.RealtimeMessages.WithLabelValues("invalid").Inc()
		c.failCode("", CodeBadMessage, err.Error())
		return
	}

	switch env.Event {
	case model.EventStartStreaming, model.EventStopStreaming, model.EventJoinRoom, model.EventLeaveRoom, model.EventStreamingData:
		metrics.RealtimeMessages.WithLabelValues(env.Event).Inc()
	default:
		metrics.RealtimeMessages.WithLabelValues("unknown").Inc()
		c.failCode(env.SessionID, CodeBadMessage, fmt.Sprintf("unknown event %q", env.Event))
		return
	}

	if env.Event != model.EventStreamingData && !c.limiter.Allow() {
		c.failCode(env.SessionID, CodeRateLimited, "too many control messages")
		return
	}

	switch env.Event {
	case model.EventStartStreaming:
		c.start(ctx, env.SessionID)
	case model.EventStreamingData:
		chunk, err := mediaPayload(env)
		if err != nil {
			c.failCode(env.SessionID, CodeBadMessage, "streaming-data must carry base64 data")
			return
		}
		c.handleMedia(ctx, env.SessionID, chunk)
	case model.EventStopStreaming:
		c.stop(ctx, env.SessionID)
	case model.EventJoinRoom:
		if !validSession(env.SessionID) {
			c.failCode(env.SessionID, CodeBadMessage, "invalid session id")
			return
		}
		c.hub.join(env.SessionID, c)
		c.emit(model.EventSessionStatus, c.ctrl.SessionStatus(env.SessionID))
	case model.EventLeaveRoom:
		c.hub.leave(env.SessionID, c)
	}
}

func validSession(sessionID string) bool {
	_, err := model.LectureIDFromSession(sessionID)
	return err == nil
}

// start runs StartSession off the read loop so that stop-streaming can still
// be read while the remote broadcast is being created.
func (c *conn) start(ctx context.Context, sessionID string) {
	if !validSession(sessionID) {
		c.failCode(sessionID, CodeBadMessage, "invalid session id")
		return
	}
	c.mu.Lock()
	if c.publishing != "" {
		c.mu.Unlock()
		c.fail(sessionID, ports.ErrAlreadyPublishing)
		return
	}
	c.publishing = sessionID
	c.dropReported = false
	c.mu.Unlock()

	c.hub.join(sessionID, c)
	c.starts.Add(1)
	go func() {
		defer c.starts.Done()
		if _, err := c.ctrl.StartSession(ctx, sessionID, c.identity); err != nil {
			c.clearPublishing(sessionID)
			c.logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("start streaming failed")
			c.fail(sessionID, err)
			return
		}
		if c.isClosed() {
			// The connection went away while the session was starting.
			_ = c.ctrl.StopSession(ctx, sessionID, c.identity)
		}
	}()
}

func (c *conn) clearPublishing(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishing == sessionID {
		c.publishing = ""
		c.dropReported = false
	}
}

func (c *conn) handleMedia(ctx context.Context, sessionID string, chunk []byte) {
	c.mu.Lock()
	publishing := c.publishing
	c.mu.Unlock()
	if sessionID == "" {
		sessionID = publishing
	}
	if sessionID == "" {
		if c.markDropReported("") {
			c.fail("", ports.ErrNoSession)
		}
		return
	}

	err := c.ctrl.PushMedia(ctx, sessionID, c.identity, chunk)
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrNoSession) && sessionID == publishing:
		// The session is still being created; publishers wait for session-started.
		c.logger.Debug().Str(log.FieldSessionID, sessionID).Msg("media chunk dropped, session not running")
		if c.markDropReported(sessionID) {
			c.failCode(sessionID, CodeNotReady, "media received before session-started was dropped")
		}
	default:
		c.fail(sessionID, err)
	}
}

// markDropReported reports whether this is the first dropped chunk of the
// current publishing claim on sessionID, or since the last claim ended when
// sessionID is empty.
func (c *conn) markDropReported(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishing != sessionID || c.dropReported {
		return false
	}
	c.dropReported = true
	return true
}

func (c *conn) stop(ctx context.Context, sessionID string) {
	if sessionID == "" {
		c.mu.Lock()
		sessionID = c.publishing
		c.mu.Unlock()
	}
	if sessionID == "" {
		return
	}
	if err := c.ctrl.StopSession(ctx, sessionID, c.identity); err != nil {
		c.fail(sessionID, err)
		return
	}
	c.clearPublishing(sessionID)
}

func (c *conn) addRoom(room string) {
	c.mu.Lock()
	c.joined[room] = struct{}{}
	c.mu.Unlock()
}

func (c *conn) removeRoom(room string) {
	c.mu.Lock()
	delete(c.joined, room)
	c.mu.Unlock()
}

func (c *conn) rooms() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]struct{}, len(c.joined))
	for r := range c.joined {
		out[r] = struct{}{}
	}
	return out
}
