// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // defaults to "jfplay:store:"
}

// RedisStore keeps JSON records in Redis without expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: redis connection failed: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "jfplay:store:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) get(ctx context.Context, key string, out any) (bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: redis get: %w", err)
	}
	if err := json.Unmarshal(val, out); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) put(ctx context.Context, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, buf, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) GetItemPlayback(ctx context.Context, userID, itemID string) (*model.ItemPlayback, error) {
	var rec itemRecord
	found, err := s.get(ctx, itemKey(userID, itemID), &rec)
	if err != nil || !found {
		return nil, err
	}
	return rec.model()
}

func (s *RedisStore) SaveItemPlayback(ctx context.Context, p *model.ItemPlayback) error {
	if err := validateItem(p); err != nil {
		return err
	}
	return s.put(ctx, itemKey(p.UserID, p.ItemID), toItemRecord(p))
}

func (s *RedisStore) DeleteItemPlayback(ctx context.Context, userID, itemID string) error {
	return s.client.Del(ctx, s.prefix+itemKey(userID, itemID)).Err()
}

func (s *RedisStore) GetLanguageChoice(ctx context.Context, userID, seriesID string) (*model.PlaybackLanguageChoice, error) {
	var rec languageRecord
	found, err := s.get(ctx, seriesKey(userID, seriesID), &rec)
	if err != nil || !found {
		return nil, err
	}
	return rec.model(), nil
}

func (s *RedisStore) SaveLanguageChoice(ctx context.Context, c *model.PlaybackLanguageChoice) error {
	if err := validateChoice(c); err != nil {
		return err
	}
	return s.put(ctx, seriesKey(c.UserID, c.SeriesID), toLanguageRecord(c))
}

func (s *RedisStore) Close() error { return s.client.Close() }
