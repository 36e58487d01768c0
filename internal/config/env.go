// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/liverelay/internal/log"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "LIVERELAY_"

func (l *Loader) mergeEnv(cfg *Config) {
	l.envString("LISTEN_ADDR", &cfg.ListenAddr)
	l.envString("LOG_LEVEL", &cfg.LogLevel)
	l.envString("DATA_DIR", &cfg.DataDir)
	l.envDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	yt := &cfg.YouTube
	l.envString("YOUTUBE_CLIENT_ID", &yt.ClientID)
	l.envString("YOUTUBE_CLIENT_SECRET", &yt.ClientSecret)
	l.envString("YOUTUBE_REDIRECT_URL", &yt.RedirectURL)
	l.envString("YOUTUBE_TOKEN_FILE", &yt.TokenFile)
	l.envString("YOUTUBE_ENDPOINT", &yt.Endpoint)
	l.envString("YOUTUBE_PRIVACY_STATUS", &yt.PrivacyStatus)
	l.envString("YOUTUBE_WATCH_URL_BASE", &yt.WatchURLBase)
	l.envDuration("YOUTUBE_POLL_INTERVAL", &yt.PollInterval)
	l.envInt("YOUTUBE_POLL_ATTEMPTS", &yt.PollAttempts)
	l.envDuration("YOUTUBE_CALL_TIMEOUT", &yt.CallTimeout)
	l.envInt("YOUTUBE_BREAKER_THRESHOLD", &yt.BreakerThreshold)
	l.envDuration("YOUTUBE_BREAKER_RESET", &yt.BreakerReset)

	tc := &cfg.Transcode
	l.envString("FFMPEG_BIN", &tc.FFmpegBin)
	l.envString("TRANSCODE_VIDEO_CODEC", &tc.VideoCodec)
	l.envString("TRANSCODE_AUDIO_CODEC", &tc.AudioCodec)
	l.envInt("TRANSCODE_VIDEO_BITRATE_K", &tc.VideoBitrateK)
	l.envInt("TRANSCODE_AUDIO_BITRATE_K", &tc.AudioBitrateK)
	l.envInt("TRANSCODE_FRAME_RATE", &tc.FrameRate)
	l.envInt("TRANSCODE_KEYFRAME_SECONDS", &tc.KeyframeSeconds)
	l.envString("TRANSCODE_PRESET", &tc.Preset)
	l.envString("TRANSCODE_TUNE", &tc.Tune)
	l.envString("TRANSCODE_INPUT_FORMAT", &tc.InputFormat)
	l.envDuration("TRANSCODE_KILL_GRACE", &tc.KillGrace)

	l.envInt("INGEST_CAPACITY", &cfg.Ingest.Capacity)
	l.envDuration("INGEST_WRITE_TIMEOUT", &cfg.Ingest.WriteTimeout)

	l.envDuration("SESSION_KILL_TIMEOUT", &cfg.Session.KillTimeout)
	l.envDuration("SESSION_COMPLETE_TIMEOUT", &cfg.Session.CompleteTimeout)
	l.envDuration("SESSION_STORE_TIMEOUT", &cfg.Session.StoreTimeout)

	st := &cfg.Store
	l.envString("STORE_BACKEND", &st.Backend)
	l.envString("STORE_SQLITE_PATH", &st.SQLitePath)
	l.envString("STORE_REDIS_ADDR", &st.RedisAddr)
	l.envString("STORE_REDIS_PASSWORD", &st.RedisPassword)
	l.envInt("STORE_REDIS_DB", &st.RedisDB)
	l.envString("STORE_SEED_FILE", &st.SeedFile)

	rt := &cfg.Realtime
	l.envList("WS_ALLOWED_ORIGINS", &rt.AllowedOrigins)
	l.envFloat("WS_CONTROL_RATE", &rt.ControlRate)
	l.envInt("WS_CONTROL_BURST", &rt.ControlBurst)
	l.envInt64("WS_READ_LIMIT", &rt.ReadLimit)
	l.envInt("WS_SEND_BUFFER", &rt.SendBuffer)

	l.envInt("HTTP_WS_UPGRADE_RATE", &cfg.HTTP.WSUpgradeRate)
	l.envInt("HTTP_OAUTH_RATE", &cfg.HTTP.OAuthRate)
	l.envInt("HTTP_API_RATE", &cfg.HTTP.APIRate)

	tel := &cfg.Telemetry
	l.envBool("TELEMETRY_ENABLED", &tel.Enabled)
	l.envString("TELEMETRY_EXPORTER", &tel.Exporter)
	l.envString("TELEMETRY_ENDPOINT", &tel.Endpoint)
	l.envBool("TELEMETRY_INSECURE", &tel.Insecure)
	l.envFloat("TELEMETRY_SAMPLING_RATE", &tel.SamplingRate)
	l.envString("TELEMETRY_ENVIRONMENT", &tel.Environment)
}

// get resolves key from the process environment first, then the .env file.
// Empty values count as unset.
func (l *Loader) get(key string) (string, string, bool) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	if v, ok := l.lookup(key); ok && v != "" {
		return key, v, true
	}
	if v, ok := l.dotenv[key]; ok && v != "" {
		return key, v, true
	}
	return key, "", false
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "secret") || strings.Contains(lower, "password") || strings.Contains(lower, "token")
}

func (l *Loader) logSource(key, value string) {
	ev := log.WithComponent("config").Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", value)
	}
	ev.Msg("using environment variable")
}

func (l *Loader) invalid(key, value, kind string, err error) {
	l.errs = append(l.errs, fmt.Errorf("%s=%q: invalid %s: %w", key, value, kind, err))
}

func (l *Loader) envString(key string, dst *string) {
	if k, v, ok := l.get(key); ok {
		l.logSource(k, v)
		*dst = v
	}
}

func (l *Loader) envList(key string, dst *[]string) {
	k, v, ok := l.get(key)
	if !ok {
		return
	}
	l.logSource(k, v)
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (l *Loader) envInt(key string, dst *int) {
	k, v, ok := l.get(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		l.invalid(k, v, "integer", err)
		return
	}
	l.logSource(k, v)
	*dst = i
}

func (l *Loader) envInt64(key string, dst *int64) {
	k, v, ok := l.get(key)
	if !ok {
		return
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		l.invalid(k, v, "integer", err)
		return
	}
	l.logSource(k, v)
	*dst = i
}

func (l *Loader) envFloat(key string, dst *float64) {
	k, v, ok := l.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.invalid(k, v, "float", err)
		return
	}
	l.logSource(k, v)
	*dst = f
}

// envBool accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func (l *Loader) envBool(key string, dst *bool) {
	k, v, ok := l.get(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		l.invalid(k, v, "boolean", fmt.Errorf("want true/false/1/0/yes/no"))
		return
	}
	l.logSource(k, v)
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	k, v, ok := l.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.invalid(k, v, "duration", err)
		return
	}
	l.logSource(k, v)
	*dst = d
}
