// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	dotenvPath string
	version    string

	lookup LookupFunc
	dotenv map[string]string

	// ConsumedEnvKeys records every key the loader looked at.
	ConsumedEnvKeys map[string]struct{}
	errs            []error
}

// NewLoader creates a new configuration loader. An empty dotenvPath skips
// the .env step; a missing .env file is not an error.
func NewLoader(configPath, dotenvPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		dotenvPath:      dotenvPath,
		version:         version,
		lookup:          os.LookupEnv,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// WithLookup replaces the process environment, for tests.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	l.lookup = fn
	return l
}

// Load loads configuration: defaults, file, .env, environment, then Validate.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if l.dotenvPath != "" {
		values, err := godotenv.Read(l.dotenvPath)
		switch {
		case err == nil:
			l.dotenv = values
		case errors.Is(err, fs.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read %s: %w", l.dotenvPath, err)
		}
	}

	l.mergeEnv(&cfg)
	if len(l.errs) > 0 {
		return cfg, fmt.Errorf("environment: %w", errors.Join(l.errs...))
	}

	cfg.Version = l.version
	cfg.resolvePaths()

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields are fatal.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}
