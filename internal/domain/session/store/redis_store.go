// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuGH/liverelay/internal/domain/session/model"
	"github.com/ManuGH/liverelay/internal/domain/session/ports"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "lecture:"
	redisTxRetries = 5
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
}

// RedisStore keeps each lecture in a hash at lecture:<id>. Status changes use
// WATCH/MULTI so a concurrent writer cannot slip a regression in.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.WithComponent("store").Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis lecture store")
	return &RedisStore{client: client}, nil
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (r *RedisStore) FindLecture(ctx context.Context, id string) (model.Lecture, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(id)).Result()
	if err != nil {
		return model.Lecture{}, fmt.Errorf("find lecture %s: %w", id, err)
	}
	if len(fields) == 0 {
		return model.Lecture{}, ports.ErrLectureNotFound
	}
	ms, _ := strconv.ParseInt(fields["updated_at_ms"], 10, 64)
	return model.Lecture{
		ID:               id,
		TeacherID:        fields["teacher_id"],
		ClassroomID:      fields["classroom_id"],
		Title:            fields["title"],
		Status:           model.LectureStatus(fields["status"]),
		LiveBroadcastURL: fields["live_broadcast_url"],
		UpdatedAt:        time.UnixMilli(ms),
	}, nil
}

func (r *RedisStore) PutLecture(ctx context.Context, l model.Lecture) error {
	if l.Status == "" {
		l.Status = model.LectureScheduled
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now()
	}
	err := r.client.HSet(ctx, redisKey(l.ID),
		"teacher_id", l.TeacherID,
		"classroom_id", l.ClassroomID,
		"title", l.Title,
		"status", string(l.Status),
		"live_broadcast_url", l.LiveBroadcastURL,
		"updated_at_ms", l.UpdatedAt.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("put lecture %s: %w", l.ID, err)
	}
	return nil
}

func (r *RedisStore) SetLectureStatus(ctx context.Context, id string, status model.LectureStatus) error {
	key := redisKey(id)
	return r.update(ctx, key, func(tx *redis.Tx) ([]any, error) {
		cur, err := tx.HGet(ctx, key, "status").Result()
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrLectureNotFound
		}
		if err != nil {
			return nil, err
		}
		if err := checkAdvance(model.LectureStatus(cur), status); err != nil {
			return nil, err
		}
		return []any{"status", string(status), "updated_at_ms", time.Now().UnixMilli()}, nil
	})
}

func (r *RedisStore) SetLectureWatchURL(ctx context.Context, id, url string) error {
	key := redisKey(id)
	return r.update(ctx, key, func(tx *redis.Tx) ([]any, error) {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ports.ErrLectureNotFound
		}
		return []any{"live_broadcast_url", url, "updated_at_ms", time.Now().UnixMilli()}, nil
	})
}

// update runs check under WATCH and applies the returned field/value pairs in
// MULTI, retrying when another client touched the key in between.
func (r *RedisStore) update(ctx context.Context, key string, check func(tx *redis.Tx) ([]any, error)) error {
	txf := func(tx *redis.Tx) error {
		values, err := check(tx)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values...)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ports.ErrLectureNotFound) && !errors.Is(err, ports.ErrInvalidStatusTransition) {
			return fmt.Errorf("update %s: %w", key, err)
		}
		return err
	}
	return fmt.Errorf("update %s: %w", key, redis.TxFailedErr)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
