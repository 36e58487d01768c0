// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"os"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/log"
	"gopkg.in/yaml.v3"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string // memory, sqlite or redis
	SQLitePath string
	Redis      RedisConfig
	SeedFile   string // optional YAML list of lectures loaded at startup
}

// OpenLectureStore creates a LectureStore based on the backend configuration.
func OpenLectureStore(ctx context.Context, opts Options) (LectureStore, error) {
	backend := opts.Backend
	if backend == "" {
		backend = "sqlite"
	}

	var (
		s   LectureStore
		err error
	)
	switch backend {
	case "memory":
		s = NewMemoryStore()
	case "sqlite":
		s, err = NewSqliteStore(opts.SQLitePath)
	case "redis":
		s, err = NewRedisStore(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.SeedFile != "" {
		n, err := Seed(ctx, s, opts.SeedFile)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		log.WithComponent("store").Info().Str("backend", backend).Int("lectures", n).Msg("seeded lecture store")
	}
	return s, nil
}

type seedLecture struct {
	ID          string `yaml:"id"`
	TeacherID   string `yaml:"teacher_id"`
	ClassroomID string `yaml:"classroom_id"`
	Title       string `yaml:"title"`
	Status      string `yaml:"status"`
}

// Seed upserts the lectures listed in a YAML file.
func Seed(ctx context.Context, s LectureStore, path string) (int, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var doc struct {
		Lectures []seedLecture `yaml:"lectures"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	for _, l := range doc.Lectures {
		if !model.IsSafeLectureID(l.ID) {
			return 0, fmt.Errorf("seed file: invalid lecture id %q", l.ID)
		}
		status := model.LectureStatus(l.Status)
		if l.Status != "" && !status.Valid() {
			return 0, fmt.Errorf("seed file: lecture %s: invalid status %q", l.ID, l.Status)
		}
		err := s.PutLecture(ctx, model.Lecture{
			ID:          l.ID,
			TeacherID:   l.TeacherID,
			ClassroomID: l.ClassroomID,
			Title:       l.Title,
			Status:      status,
		})
		if err != nil {
			return 0, err
		}
	}
	return len(doc.Lectures), nil
}
