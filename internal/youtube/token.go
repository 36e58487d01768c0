// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/platform/httpx"
	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes requested during consent.
var Scopes = []string{"https://www.googleapis.com/auth/youtube"}

// OAuthConfig builds the oauth2 configuration for the Google endpoint.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
}

// TokenStore keeps the OAuth token on disk and in memory. Writes are atomic;
// external edits to the file are picked up by Watch.
type TokenStore struct {
	path   string
	conf   *oauth2.Config
	logger zerolog.Logger

	mu  sync.RWMutex
	tok *oauth2.Token
}

// NewTokenStore loads path if it exists. A missing file is not an error; the
// store stays empty until the consent flow completes.
func NewTokenStore(path string, conf *oauth2.Config) (*TokenStore, error) {
	s := &TokenStore{path: path, conf: conf, logger: log.WithComponent("youtube.token")}
	if err := s.load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

func (s *TokenStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return fmt.Errorf("decode token %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.tok = &tok
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the stored token or ErrNoToken.
func (s *TokenStore) Current() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil {
		return nil, ErrNoToken
	}
	cp := *s.tok
	return &cp, nil
}

// Save persists tok atomically with owner-only permissions.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("save token: nil token")
	}
	// Keep the refresh token when a refresh response omits it.
	s.mu.Lock()
	if tok.RefreshToken == "" && s.tok != nil {
		cp := *tok
		cp.RefreshToken = s.tok.RefreshToken
		tok = &cp
	}
	s.tok = tok
	s.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", s.path, err)
	}
	return nil
}

// Watch reloads the token whenever the file is replaced or rewritten, until
// ctx ends. The directory is watched because atomic writers swap the inode.
func (s *TokenStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		_ = w.Close()
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := s.load(); err != nil {
					if !errors.Is(err, fs.ErrNotExist) {
						s.logger.Warn().Err(err).Str(log.FieldPath, s.path).Msg("token reload failed")
					}
					continue
				}
				s.logger.Info().Str(log.FieldEvent, "token.reloaded").Msg("oauth token reloaded from disk")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Error().Err(err).Msg("token watcher error")
			}
		}
	}()
	return nil
}

// TokenSource returns a refreshing source that writes refreshed tokens back
// to the store.
func (s *TokenStore) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &storeSource{ctx: ctx, store: s}
}

// HTTPClient returns an authorized, traced client for the YouTube API.
func (s *TokenStore) HTTPClient(ctx context.Context, timeout time.Duration) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpx.NewClient(timeout))
	base := httpx.NewClient(timeout)
	base.Transport = &oauth2.Transport{
		Source: s.TokenSource(ctx),
		Base:   httpx.Traced(base.Transport, "youtube"),
	}
	return base
}

type storeSource struct {
	ctx   context.Context
	store *TokenStore
}

func (ss *storeSource) Token() (*oauth2.Token, error) {
	cur, err := ss.store.Current()
	if err != nil {
		return nil, err
	}
	if cur.Valid() {
		return cur, nil
	}
	if ss.store.conf == nil || cur.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token expired and cannot be refreshed", ErrNoToken)
	}
	fresh, err := ss.store.conf.TokenSource(ss.ctx, cur).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if fresh.AccessToken != cur.AccessToken {
		if err := ss.store.Save(fresh); err != nil {
			ss.store.logger.Warn().Err(err).Msg("persist refreshed token failed")
		}
	}
	return fresh, nil
}
