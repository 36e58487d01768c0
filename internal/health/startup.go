// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ManuGH/liverelay/internal/config"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the server starts.
// A missing OAuth token is only a warning: the consent flow can create it.
func PerformStartupChecks(cfg config.Config) error {
	logger := log.WithComponent("startup-check")

	if err := checkWritableDir(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWritableDir(filepath.Dir(cfg.YouTube.TokenFile)); err != nil {
		return fmt.Errorf("token directory check failed: %w", err)
	}
	path, err := exec.LookPath(cfg.Transcode.FFmpegBin)
	if err != nil {
		return fmt.Errorf("ffmpeg binary %q: %w", cfg.Transcode.FFmpegBin, err)
	}
	logger.Info().Str(log.FieldPath, path).Msg("ffmpeg binary resolved")

	checkToken(logger, cfg.YouTube.TokenFile)
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func checkToken(logger zerolog.Logger, path string) {
	if _, err := os.Stat(path); err != nil {
		logger.Warn().
			Str(log.FieldPath, path).
			Msg("no YouTube token yet, authorize via /oauth/youtube/start before streaming")
	}
}
