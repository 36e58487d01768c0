// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"

	"github.com/ManuGH/liverelay/internal/validate"
)

// Validate validates a Config using the centralized validation package.
// A failure here is fatal at startup.
func Validate(cfg Config) error {
	v := validate.New()

	v.LogLevel("log_level", cfg.LogLevel)
	v.NotEmpty("listen_addr", cfg.ListenAddr)
	v.Directory("data_dir", cfg.DataDir, false)
	v.PositiveDuration("shutdown_timeout", cfg.ShutdownTimeout)

	yt := cfg.YouTube
	v.NotEmpty("youtube.client_id", yt.ClientID)
	v.NotEmpty("youtube.client_secret", yt.ClientSecret)
	v.URL("youtube.redirect_url", yt.RedirectURL, []string{"http", "https"})
	v.NotEmpty("youtube.token_file", yt.TokenFile)
	if strings.TrimSpace(yt.Endpoint) != "" {
		v.URL("youtube.endpoint", yt.Endpoint, []string{"http", "https"})
	}
	v.OneOf("youtube.privacy_status", yt.PrivacyStatus, []string{"public", "unlisted", "private"})
	v.NotEmpty("youtube.watch_url_base", yt.WatchURLBase)
	v.PositiveDuration("youtube.poll_interval", yt.PollInterval)
	v.Range("youtube.poll_attempts", yt.PollAttempts, 1, 10000)
	v.PositiveDuration("youtube.call_timeout", yt.CallTimeout)
	v.Positive("youtube.breaker_threshold", yt.BreakerThreshold)
	v.PositiveDuration("youtube.breaker_reset", yt.BreakerReset)

	tc := cfg.Transcode
	v.NotEmpty("transcode.ffmpeg_bin", tc.FFmpegBin)
	v.NotEmpty("transcode.video_codec", tc.VideoCodec)
	v.NotEmpty("transcode.audio_codec", tc.AudioCodec)
	v.Positive("transcode.video_bitrate_k", tc.VideoBitrateK)
	v.Positive("transcode.audio_bitrate_k", tc.AudioBitrateK)
	v.Range("transcode.frame_rate", tc.FrameRate, 1, 120)
	v.Positive("transcode.keyframe_seconds", tc.KeyframeSeconds)
	v.PositiveDuration("transcode.kill_grace", tc.KillGrace)

	v.Positive("ingest.capacity", cfg.Ingest.Capacity)
	v.PositiveDuration("ingest.write_timeout", cfg.Ingest.WriteTimeout)

	v.PositiveDuration("session.kill_timeout", cfg.Session.KillTimeout)
	v.PositiveDuration("session.complete_timeout", cfg.Session.CompleteTimeout)
	v.PositiveDuration("session.store_timeout", cfg.Session.StoreTimeout)

	st := cfg.Store
	v.OneOf("store.backend", st.Backend, []string{"memory", "sqlite", "redis"})
	switch st.Backend {
	case "sqlite":
		v.NotEmpty("store.sqlite_path", st.SQLitePath)
	case "redis":
		v.NotEmpty("store.redis_addr", st.RedisAddr)
		v.Range("store.redis_db", st.RedisDB, 0, 15)
	}

	rt := cfg.Realtime
	if rt.ControlRate <= 0 {
		v.AddError("realtime.control_rate", "value must be positive", rt.ControlRate)
	}
	v.Positive("realtime.control_burst", rt.ControlBurst)
	if rt.ReadLimit <= 0 {
		v.AddError("realtime.read_limit", "value must be positive", rt.ReadLimit)
	}
	v.Positive("realtime.send_buffer", rt.SendBuffer)
	for _, origin := range rt.AllowedOrigins {
		v.URL("realtime.allowed_origins", origin, []string{"http", "https"})
	}

	v.Positive("http.ws_upgrade_rate", cfg.HTTP.WSUpgradeRate)
	v.Positive("http.oauth_rate", cfg.HTTP.OAuthRate)
	v.Positive("http.api_rate", cfg.HTTP.APIRate)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("telemetry.sampling_rate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
