// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"github.com/ManuGH/liverelay/internal/api"
	"github.com/ManuGH/liverelay/internal/config"
	"github.com/ManuGH/liverelay/internal/daemon"
	"github.com/ManuGH/liverelay/internal/domain/session/manager"
	"github.com/ManuGH/liverelay/internal/domain/session/store"
	"github.com/ManuGH/liverelay/internal/health"
	xglog "github.com/ManuGH/liverelay/internal/log"
	"github.com/ManuGH/liverelay/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/liverelay/internal/realtime"
	"github.com/ManuGH/liverelay/internal/telemetry"
	"github.com/ManuGH/liverelay/internal/youtube"
)

const serviceName = "liverelay"

// run wires the relay and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg config.Config) error {
	logger := xglog.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	lectures, err := store.OpenLectureStore(ctx, store.Options{
		Backend:    cfg.Store.Backend,
		SQLitePath: cfg.Store.SQLitePath,
		Redis: store.RedisConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		},
		SeedFile: cfg.Store.SeedFile,
	})
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("lecture store: %w", err)
	}

	oauthConf := youtube.OAuthConfig(cfg.YouTube.ClientID, cfg.YouTube.ClientSecret, cfg.YouTube.RedirectURL)
	tokens, err := youtube.NewTokenStore(cfg.YouTube.TokenFile, oauthConf)
	if err != nil {
		_ = lectures.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("token store: %w", err)
	}

	// Token refreshes happen during teardown too, after ctx is cancelled.
	ytHTTP := tokens.HTTPClient(context.WithoutCancel(ctx), cfg.YouTube.CallTimeout)
	platform, err := youtube.New(ctx, ytHTTP, youtube.Config{
		Endpoint:         cfg.YouTube.Endpoint,
		PrivacyStatus:    cfg.YouTube.PrivacyStatus,
		WatchURLBase:     cfg.YouTube.WatchURLBase,
		PollInterval:     cfg.YouTube.PollInterval,
		PollAttempts:     cfg.YouTube.PollAttempts,
		CallTimeout:      cfg.YouTube.CallTimeout,
		BreakerThreshold: cfg.YouTube.BreakerThreshold,
		BreakerReset:     cfg.YouTube.BreakerReset,
	})
	if err != nil {
		_ = lectures.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	runner := ffmpeg.NewRunner(cfg.Transcode.FFmpegBin, ffmpeg.Params{
		VideoCodec:      cfg.Transcode.VideoCodec,
		AudioCodec:      cfg.Transcode.AudioCodec,
		VideoBitrateK:   cfg.Transcode.VideoBitrateK,
		AudioBitrateK:   cfg.Transcode.AudioBitrateK,
		FrameRate:       cfg.Transcode.FrameRate,
		KeyframeSeconds: cfg.Transcode.KeyframeSeconds,
		Preset:          cfg.Transcode.Preset,
		Tune:            cfg.Transcode.Tune,
		InputFormat:     cfg.Transcode.InputFormat,
	}, cfg.Transcode.KillGrace)

	hub := realtime.NewHub(realtime.Config{
		ReadLimit:      cfg.Realtime.ReadLimit,
		SendBuffer:     cfg.Realtime.SendBuffer,
		ControlRate:    cfg.Realtime.ControlRate,
		ControlBurst:   cfg.Realtime.ControlBurst,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	}, realtime.HeaderIdentity)

	sessions, err := manager.New(manager.Deps{
		Lectures: lectures,
		Platform: platform,
		Pipeline: runner,
		Notifier: hub,
	}, manager.Config{
		IngestCapacity:  cfg.Ingest.Capacity,
		WriteTimeout:    cfg.Ingest.WriteTimeout,
		KillTimeout:     cfg.Session.KillTimeout,
		CompleteTimeout: cfg.Session.CompleteTimeout,
		StoreTimeout:    cfg.Session.StoreTimeout,
	})
	if err != nil {
		_ = lectures.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	hub.Bind(sessions)

	probes := health.NewManager(cfg.Version)
	probes.RegisterChecker(health.NewPingChecker("lecture_store", lectures.Ping))
	probes.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.Transcode.FFmpegBin))
	probes.RegisterChecker(health.NewFileChecker("youtube_token", cfg.YouTube.TokenFile,
		"no YouTube token; complete consent at /oauth/youtube/start"))

	handler := api.NewRouter(api.Config{
		WSUpgradeRate:  cfg.HTTP.WSUpgradeRate,
		OAuthRate:      cfg.HTTP.OAuthRate,
		APIRate:        cfg.HTTP.APIRate,
		TracingService: serviceName,
	}, api.Deps{
		Realtime: hub,
		OAuth:    youtube.NewOAuthFlow(oauthConf, tokens),
		Sessions: sessions.Registry(),
		Probes:   probes,
	})

	d, err := daemon.NewManager(daemon.ServerConfig{
		ListenAddr:      cfg.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, daemon.Deps{
		Logger:     xglog.Base(),
		APIHandler: handler,
	})
	if err != nil {
		_ = lectures.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	d.AddTask("youtube_token_watch", tokens.Watch)

	// Sessions are torn down while the server still answers, so publishers
	// receive their final session-status before connections close.
	d.RegisterDrainHook("sessions", sessions.Shutdown)
	d.RegisterDrainHook("realtime", func(context.Context) error {
		hub.Close()
		return nil
	})
	d.RegisterShutdownHook("telemetry", tp.Shutdown)
	d.RegisterShutdownHook("lecture_store", func(context.Context) error { return lectures.Close() })

	logger.Info().
		Str("event", "daemon.start").
		Str("listen", cfg.ListenAddr).
		Str("store", cfg.Store.Backend).
		Msg("starting live relay")
	return d.Run(ctx)
}
