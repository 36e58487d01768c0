// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements LectureStore using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the lecture database at dbPath. An
// existing file is integrity-checked first.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if _, err := os.Stat(dbPath); err == nil {
		issues, err := sqlite.VerifyIntegrity(dbPath, "quick")
		if err != nil {
			return nil, fmt.Errorf("lecture store: integrity check: %w", err)
		}
		if len(issues) > 0 {
			return nil, fmt.Errorf("lecture store: %s is damaged: %s", dbPath, strings.Join(issues, "; "))
		}
	}

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lecture store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS lectures (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL,
		classroom_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'Scheduled',
		live_broadcast_url TEXT NOT NULL DEFAULT '',
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lectures_classroom ON lectures(classroom_id);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) FindLecture(ctx context.Context, id string) (model.Lecture, error) {
	var (
		l         model.Lecture
		status    string
		updatedMs int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, teacher_id, classroom_id, title, status, live_broadcast_url, updated_at_ms
		FROM lectures WHERE id = ?`, id).
		Scan(&l.ID, &l.TeacherID, &l.ClassroomID, &l.Title, &status, &l.LiveBroadcastURL, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lecture{}, ports.ErrLectureNotFound
	}
	if err != nil {
		return model.Lecture{}, fmt.Errorf("find lecture %s: %w", id, err)
	}
	l.Status = model.LectureStatus(status)
	l.UpdatedAt = time.UnixMilli(updatedMs)
	return l, nil
}

func (s *SqliteStore) PutLecture(ctx context.Context, l model.Lecture) error {
	if l.Status == "" {
		l.Status = model.LectureScheduled
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO lectures (id, teacher_id, classroom_id, title, status, live_broadcast_url, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			teacher_id = excluded.teacher_id,
			classroom_id = excluded.classroom_id,
			title = excluded.title,
			status = excluded.status,
			live_broadcast_url = excluded.live_broadcast_url,
			updated_at_ms = excluded.updated_at_ms`,
		l.ID, l.TeacherID, l.ClassroomID, l.Title, string(l.Status), l.LiveBroadcastURL, l.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put lecture %s: %w", l.ID, err)
	}
	return nil
}

// SetLectureStatus advances the status in a single conditional UPDATE so
// concurrent writers cannot regress it.
func (s *SqliteStore) SetLectureStatus(ctx context.Context, id string, status model.LectureStatus) error {
	if !status.Valid() {
		return &TransitionError{To: status}
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE lectures SET status = ?, updated_at_ms = ?
		WHERE id = ? AND (CASE status
			WHEN 'Scheduled' THEN 1
			WHEN 'InProgress' THEN 2
			WHEN 'Completed' THEN 3
			ELSE 0 END) BETWEEN 1 AND ?`,
		string(status), time.Now().UnixMilli(), id, status.Rank())
	if err != nil {
		return fmt.Errorf("set lecture status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	cur, err := s.FindLecture(ctx, id)
	if err != nil {
		return err
	}
	return checkAdvance(cur.Status, status)
}

func (s *SqliteStore) SetLectureWatchURL(ctx context.Context, id, url string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE lectures SET live_broadcast_url = ?, updated_at_ms = ? WHERE id = ?`,
		url, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set lecture watch url %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrLectureNotFound
	}
	return nil
}
