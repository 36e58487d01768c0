// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/liverelay/internal/validate"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func requiredEnv(dataDir string) map[string]string {
	return map[string]string{
		"LIVERELAY_DATA_DIR":              dataDir,
		"LIVERELAY_YOUTUBE_CLIENT_ID":     "client-id",
		"LIVERELAY_YOUTUBE_CLIENT_SECRET": "client-secret",
		"LIVERELAY_YOUTUBE_REDIRECT_URL":  "https://relay.example/oauth/youtube/callback",
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewLoader("", "", "v1.0.0").WithLookup(envMap(requiredEnv(dir))).Load()
	require.NoError(t, err)

	want := Defaults()
	want.Version = "v1.0.0"
	want.DataDir = dir
	want.YouTube.ClientID = "client-id"
	want.YouTube.ClientSecret = "client-secret"
	want.YouTube.RedirectURL = "https://relay.example/oauth/youtube/callback"
	want.YouTube.TokenFile = filepath.Join(dir, "youtube-token.json")
	want.Store.SQLitePath = filepath.Join(dir, "lectures.db")

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "liverelay.yaml", `
listen_addr: ":9000"
youtube:
  client_id: from-file
  client_secret: file-secret
  redirect_url: https://file.example/cb
  poll_interval: 2s
transcode:
  video_bitrate_k: 4000
  audio_bitrate_k: 96
store:
  backend: memory
`)
	dotenv := writeFile(t, dir, ".env", `
LIVERELAY_LISTEN_ADDR=:9100
LIVERELAY_TRANSCODE_VIDEO_BITRATE_K=3000
LIVERELAY_YOUTUBE_CLIENT_ID=from-dotenv
`)
	env := map[string]string{
		"LIVERELAY_DATA_DIR":                  dir,
		"LIVERELAY_YOUTUBE_CLIENT_ID":         "from-env",
		"LIVERELAY_WS_ALLOWED_ORIGINS":        "https://a.example, https://b.example",
		"LIVERELAY_TRANSCODE_AUDIO_BITRATE_K": "",
	}

	loader := NewLoader(file, dotenv, "dev").WithLookup(envMap(env))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.YouTube.ClientID, "process env wins")
	assert.Equal(t, ":9100", cfg.ListenAddr, ".env beats the file")
	assert.Equal(t, 3000, cfg.Transcode.VideoBitrateK)
	assert.Equal(t, 96, cfg.Transcode.AudioBitrateK, "empty env value keeps the file value")
	assert.Equal(t, 2*time.Second, cfg.YouTube.PollInterval)
	assert.Equal(t, 60, cfg.YouTube.PollAttempts, "unset keys keep defaults")
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Realtime.AllowedOrigins)
	assert.Contains(t, loader.ConsumedEnvKeys, "LIVERELAY_YOUTUBE_CLIENT_ID")
}

func TestLoadMissingDotenvIsIgnored(t *testing.T) {
	dir := t.TempDir()
	_, err := NewLoader("", filepath.Join(dir, "absent.env"), "").WithLookup(envMap(requiredEnv(dir))).Load()
	require.NoError(t, err)
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "liverelay.yaml", "youtube:\n  client_idd: typo\n")
	_, err := NewLoader(file, "", "").WithLookup(envMap(requiredEnv(dir))).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsNonYAML(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "liverelay.json", "{}")
	_, err := NewLoader(file, "", "").WithLookup(envMap(requiredEnv(dir))).Load()
	require.Error(t, err)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	dir := t.TempDir()
	env := requiredEnv(dir)
	env["LIVERELAY_YOUTUBE_POLL_ATTEMPTS"] = "many"
	env["LIVERELAY_YOUTUBE_POLL_INTERVAL"] = "soon"
	env["LIVERELAY_TELEMETRY_ENABLED"] = "maybe"

	_, err := NewLoader("", "", "").WithLookup(envMap(env)).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIVERELAY_YOUTUBE_POLL_ATTEMPTS")
	assert.Contains(t, err.Error(), "LIVERELAY_YOUTUBE_POLL_INTERVAL")
	assert.Contains(t, err.Error(), "LIVERELAY_TELEMETRY_ENABLED")
}

func TestValidateRequiresYouTubeCredentials(t *testing.T) {
	dir := t.TempDir()
	_, err := NewLoader("", "", "").WithLookup(envMap(map[string]string{"LIVERELAY_DATA_DIR": dir})).Load()
	require.Error(t, err)

	var ve validate.ValidationError
	require.True(t, errors.As(err, &ve))
	fields := map[string]bool{}
	for _, e := range ve.Errors() {
		fields[e.Field] = true
	}
	assert.True(t, fields["youtube.client_id"])
	assert.True(t, fields["youtube.client_secret"])
	assert.True(t, fields["youtube.redirect_url"])
}

func TestValidateEncodeAndStore(t *testing.T) {
	cfg := Defaults()
	cfg.DataDir = t.TempDir()
	cfg.YouTube.ClientID = "id"
	cfg.YouTube.ClientSecret = "secret"
	cfg.YouTube.RedirectURL = "https://relay.example/cb"
	cfg.resolvePaths()
	require.NoError(t, Validate(cfg))

	bad := cfg
	bad.Transcode.KeyframeSeconds = 0
	bad.Transcode.VideoBitrateK = -1
	bad.Transcode.AudioCodec = ""
	bad.Store.Backend = "redis"
	bad.YouTube.PollAttempts = 0
	bad.Telemetry.Enabled = true
	bad.Telemetry.SamplingRate = 2

	err := Validate(bad)
	require.Error(t, err)
	for _, field := range []string{
		"transcode.keyframe_seconds",
		"transcode.video_bitrate_k",
		"transcode.audio_codec",
		"store.redis_addr",
		"youtube.poll_attempts",
		"telemetry.sampling_rate",
	} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.YouTube.ClientSecret = "hunter2"
	cfg.Store.RedisPassword = "pw"

	r := cfg.Redacted()
	assert.Equal(t, "***", r.YouTube.ClientSecret)
	assert.Equal(t, "***", r.Store.RedisPassword)
	assert.Equal(t, "hunter2", cfg.YouTube.ClientSecret, "original untouched")
}
