// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeYouTube emulates the handful of Live endpoints the client touches.
type fakeYouTube struct {
	mu sync.Mutex

	streamActiveAfter int // stream list calls before status flips to active
	streamPolls       int
	lifecycle         string
	transitions       []string
	failures          map[string]apiFailure // keyed by "METHOD suffix"
	calls             []string
	missingBroadcast  bool
}

type apiFailure struct {
	status int
	reason string
}

func newFakeYouTube(t *testing.T) (*fakeYouTube, *httptest.Server) {
	t.Helper()
	f := &fakeYouTube{lifecycle: "created", failures: map[string]apiFailure{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeYouTube) fail(key string, status int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = apiFailure{status: status, reason: reason}
}

func (f *fakeYouTube) Transitions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transitions...)
}

func (f *fakeYouTube) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeYouTube) StreamPolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamPolls
}

func (f *fakeYouTube) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/youtube/v3/")
	key := r.Method + " " + path
	f.calls = append(f.calls, key)

	if fl, ok := f.failures[key]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fl.status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"code":    fl.status,
			"message": "injected",
			"errors":  []map[string]string{{"reason": fl.reason, "message": "injected"}},
		}})
		return
	}

	var body any
	switch key {
	case "POST liveBroadcasts":
		body = map[string]any{"id": "b1", "status": map[string]any{"lifeCycleStatus": "created"}}
	case "POST liveStreams":
		body = map[string]any{"id": "s1", "cdn": map[string]any{"ingestionInfo": map[string]any{
			"ingestionAddress": "rtmp://a.rtmp.youtube.com/live2",
			"streamName":       "key-123",
		}}}
	case "POST liveBroadcasts/bind":
		body = map[string]any{"id": "b1"}
	case "POST liveBroadcasts/transition":
		target := r.URL.Query().Get("broadcastStatus")
		f.transitions = append(f.transitions, target)
		f.lifecycle = target
		body = map[string]any{"id": "b1", "status": map[string]any{"lifeCycleStatus": target}}
	case "GET liveStreams":
		f.streamPolls++
		status := "ready"
		if f.streamPolls > f.streamActiveAfter {
			status = "active"
		}
		body = map[string]any{"items": []any{map[string]any{"id": "s1", "status": map[string]any{"streamStatus": status}}}}
	case "DELETE liveBroadcasts", "DELETE liveStreams":
		w.WriteHeader(http.StatusNoContent)
		return
	case "GET liveBroadcasts":
		if f.missingBroadcast {
			body = map[string]any{"items": []any{}}
			break
		}
		body = map[string]any{"items": []any{map[string]any{"id": "b1", "status": map[string]any{"lifeCycleStatus": f.lifecycle}}}}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(context.Background(), srv.Client(), Config{
		Endpoint:         srv.URL + "/",
		PollInterval:     5 * time.Millisecond,
		PollAttempts:     5,
		CallTimeout:      2 * time.Second,
		BreakerThreshold: 3,
		BreakerReset:     time.Minute,
	})
	require.NoError(t, err)
	return c
}
