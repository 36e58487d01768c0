// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for liverelay.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, the .env
// file, the process environment (LIVERELAY_*).
package config

import (
	"path/filepath"
	"time"
)

// Config is the complete daemon configuration.
type Config struct {
	Version string `yaml:"-"`

	ListenAddr      string        `yaml:"listen_addr"`
	LogLevel        string        `yaml:"log_level"`
	DataDir         string        `yaml:"data_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	YouTube   YouTubeConfig   `yaml:"youtube"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// YouTubeConfig holds the OAuth client and Live Streaming API settings.
type YouTubeConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	// TokenFile defaults to <data_dir>/youtube-token.json.
	TokenFile string `yaml:"token_file"`

	Endpoint         string        `yaml:"endpoint"`
	PrivacyStatus    string        `yaml:"privacy_status"`
	WatchURLBase     string        `yaml:"watch_url_base"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollAttempts     int           `yaml:"poll_attempts"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// TranscodeConfig is the ffmpeg encode profile.
type TranscodeConfig struct {
	FFmpegBin       string        `yaml:"ffmpeg_bin"`
	VideoCodec      string        `yaml:"video_codec"`
	AudioCodec      string        `yaml:"audio_codec"`
	VideoBitrateK   int           `yaml:"video_bitrate_k"`
	AudioBitrateK   int           `yaml:"audio_bitrate_k"`
	FrameRate       int           `yaml:"frame_rate"`
	KeyframeSeconds int           `yaml:"keyframe_seconds"`
	Preset          string        `yaml:"preset"`
	Tune            string        `yaml:"tune"`
	InputFormat     string        `yaml:"input_format"`
	KillGrace       time.Duration `yaml:"kill_grace"`
}

// IngestConfig tunes the per-session media buffer.
type IngestConfig struct {
	Capacity     int           `yaml:"capacity"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SessionConfig bounds teardown steps.
type SessionConfig struct {
	KillTimeout     time.Duration `yaml:"kill_timeout"`
	CompleteTimeout time.Duration `yaml:"complete_timeout"`
	StoreTimeout    time.Duration `yaml:"store_timeout"`
}

// StoreConfig selects the lecture store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite or redis
	// SQLitePath defaults to <data_dir>/lectures.db.
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	SeedFile      string `yaml:"seed_file"`
}

// RealtimeConfig tunes WebSocket connections.
type RealtimeConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	ControlRate    float64  `yaml:"control_rate"`
	ControlBurst   int      `yaml:"control_burst"`
	ReadLimit      int64    `yaml:"read_limit"`
	SendBuffer     int      `yaml:"send_buffer"`
}

// HTTPConfig holds per-client request limits, in requests per minute.
type HTTPConfig struct {
	WSUpgradeRate int `yaml:"ws_upgrade_rate"`
	OAuthRate     int `yaml:"oauth_rate"`
	APIRate       int `yaml:"api_rate"`
}

// TelemetryConfig configures OTLP tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc or http
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:      ":8080",
		LogLevel:        "info",
		DataDir:         "data",
		ShutdownTimeout: 30 * time.Second,
		YouTube: YouTubeConfig{
			PrivacyStatus:    "unlisted",
			WatchURLBase:     "https://www.youtube.com/watch?v=",
			PollInterval:     5 * time.Second,
			PollAttempts:     60,
			CallTimeout:      20 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Transcode: TranscodeConfig{
			FFmpegBin:       "ffmpeg",
			VideoCodec:      "libx264",
			AudioCodec:      "aac",
			VideoBitrateK:   2500,
			AudioBitrateK:   128,
			FrameRate:       30,
			KeyframeSeconds: 2,
			Preset:          "ultrafast",
			Tune:            "zerolatency",
			KillGrace:       5 * time.Second,
		},
		Ingest: IngestConfig{
			Capacity:     256,
			WriteTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			KillTimeout:     10 * time.Second,
			CompleteTimeout: 15 * time.Second,
			StoreTimeout:    5 * time.Second,
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Realtime: RealtimeConfig{
			ControlRate:  5,
			ControlBurst: 10,
			ReadLimit:    4 << 20,
			SendBuffer:   64,
		},
		HTTP: HTTPConfig{
			WSUpgradeRate: 30,
			OAuthRate:     10,
			APIRate:       120,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

// resolvePaths fills paths derived from DataDir.
func (c *Config) resolvePaths() {
	if abs, err := filepath.Abs(c.DataDir); err == nil {
		c.DataDir = abs
	}
	if c.YouTube.TokenFile == "" {
		c.YouTube.TokenFile = filepath.Join(c.DataDir, "youtube-token.json")
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = filepath.Join(c.DataDir, "lectures.db")
	}
}

const redacted = "***"

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.YouTube.ClientSecret != "" {
		c.YouTube.ClientSecret = redacted
	}
	if c.Store.RedisPassword != "" {
		c.Store.RedisPassword = redacted
	}
	c.Realtime.AllowedOrigins = append([]string(nil), c.Realtime.AllowedOrigins...)
	return c
}
