// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/platform/httpx"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const stateTTL = 10 * time.Minute

// OAuthFlow serves the operator consent endpoints that populate the TokenStore.
type OAuthFlow struct {
	conf   *oauth2.Config
	store  *TokenStore
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	states map[string]time.Time
}

func NewOAuthFlow(conf *oauth2.Config, store *TokenStore) *OAuthFlow {
	return &OAuthFlow{
		conf:   conf,
		store:  store,
		client: httpx.NewClient(0),
		now:    time.Now,
		states: make(map[string]time.Time),
	}
}

// Start redirects the operator to the Google consent page.
func (f *OAuthFlow) Start(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	now := f.now()

	f.mu.Lock()
	for s, exp := range f.states {
		if now.After(exp) {
			delete(f.states, s)
		}
	}
	f.states[state] = now.Add(stateTTL)
	f.mu.Unlock()

	url := f.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, url, http.StatusFound)
}

func (f *OAuthFlow) consumeState(state string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.states[state]
	if !ok {
		return false
	}
	delete(f.states, state)
	return !f.now().After(exp)
}

// Callback exchanges the authorization code and persists the token.
func (f *OAuthFlow) Callback(w http.ResponseWriter, r *http.Request) {
	logger := log.WithContext(r.Context(), log.WithComponent("youtube.oauth"))
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		logger.Warn().Str(log.FieldReason, e).Msg("consent denied")
		writeJSONError(w, http.StatusBadRequest, "consent denied: "+e)
		return
	}
	if !f.consumeState(q.Get("state")) {
		writeJSONError(w, http.StatusBadRequest, "unknown or expired state")
		return
	}
	code := q.Get("code")
	if code == "" {
		writeJSONError(w, http.StatusBadRequest, "missing code")
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, f.client)
	tok, err := f.conf.Exchange(ctx, code)
	if err != nil {
		logger.Error().Err(err).Msg("token exchange failed")
		writeJSONError(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	if err := f.store.Save(tok); err != nil {
		logger.Error().Err(err).Msg("persist token failed")
		writeJSONError(w, http.StatusInternalServerError, "could not persist token")
		return
	}

	logger.Info().Str(log.FieldEvent, "oauth.authorized").Msg("youtube account authorized")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"authorized": true, "expiry": tok.Expiry})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
