// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists per-item stream choices and per-series language
// choices. Every backend is a last-write-wins key-value store.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
)

// ErrUnknownBackend is returned by Open for unsupported backends.
var ErrUnknownBackend = errors.New("store: unknown backend")

// ItemPlaybackRepository stores ItemPlayback by user+item. Get returns
// nil, nil when nothing is stored.
type ItemPlaybackRepository interface {
	GetItemPlayback(ctx context.Context, userID, itemID string) (*model.ItemPlayback, error)
	SaveItemPlayback(ctx context.Context, playback *model.ItemPlayback) error
	DeleteItemPlayback(ctx context.Context, userID, itemID string) error
}

// LanguageChoiceStore stores PlaybackLanguageChoice by user+series.
type LanguageChoiceStore interface {
	GetLanguageChoice(ctx context.Context, userID, seriesID string) (*model.PlaybackLanguageChoice, error)
	SaveLanguageChoice(ctx context.Context, choice *model.PlaybackLanguageChoice) error
}

// Store is the full persistence surface.
type Store interface {
	ItemPlaybackRepository
	LanguageChoiceStore
	Close() error
}

// Backend names a store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
	BackendRedis  Backend = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	// Dir holds file-backed stores. Empty means memory for sqlite.
	Dir   string
	Redis RedisConfig
}

// Open builds the configured store. The default backend is sqlite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		if cfg.Dir == "" {
			return NewMemoryStore(), nil
		}
		return NewSQLiteStore(ctx, filepath.Join(cfg.Dir, "playback.sqlite"))
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("store: badger backend needs a directory")
		}
		return NewBadgerStore(filepath.Join(cfg.Dir, "badger"))
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %s (supported: sqlite, memory, badger, redis)", ErrUnknownBackend, cfg.Backend)
	}
}

// itemRecord is the serialized ItemPlayback.
type itemRecord struct {
	UserID          string    `json:"user_id"`
	ItemID          string    `json:"item_id"`
	SourceID        string    `json:"source_id,omitempty"`
	AudioIndex      *int      `json:"audio_index,omitempty"`
	SubtitleIndex   *int      `json:"subtitle_index,omitempty"`
	SubtitleDelayMs int64     `json:"subtitle_delay_ms,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toItemRecord(p *model.ItemPlayback) itemRecord {
	rec := itemRecord{
		UserID:          p.UserID,
		ItemID:          p.ItemID,
		SourceID:        p.SourceID,
		SubtitleDelayMs: p.SubtitleDelay.Milliseconds(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
	if p.AudioIndex != nil {
		rec.AudioIndex = model.Int(*p.AudioIndex)
	}
	if v, ok := p.Subtitle.Stored(); ok {
		rec.SubtitleIndex = model.Int(v)
	}
	return rec
}

func (r itemRecord) model() (*model.ItemPlayback, error) {
	p := &model.ItemPlayback{
		UserID:        r.UserID,
		ItemID:        r.ItemID,
		SourceID:      r.SourceID,
		SubtitleDelay: time.Duration(r.SubtitleDelayMs) * time.Millisecond,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.AudioIndex != nil {
		p.AudioIndex = model.Int(*r.AudioIndex)
	}
	if r.SubtitleIndex != nil {
		sub, err := model.SubtitleFromStored(*r.SubtitleIndex)
		if err != nil {
			return nil, err
		}
		p.Subtitle = sub
	}
	return p, nil
}

type languageRecord struct {
	UserID            string `json:"user_id"`
	SeriesID          string `json:"series_id"`
	AudioLanguage     string `json:"audio_language,omitempty"`
	SubtitleLanguage  string `json:"subtitle_language,omitempty"`
	SubtitlesDisabled bool   `json:"subtitles_disabled,omitempty"`
}

func toLanguageRecord(c *model.PlaybackLanguageChoice) languageRecord {
	return languageRecord(*c)
}

func (r languageRecord) model() *model.PlaybackLanguageChoice {
	c := model.PlaybackLanguageChoice(r)
	return &c
}

func itemKey(userID, itemID string) string {
	return "item:" + userID + ":" + itemID
}

func seriesKey(userID, seriesID string) string {
	return "series:" + userID + ":" + seriesID
}

func validateItem(p *model.ItemPlayback) error {
	if p == nil || p.UserID == "" || p.ItemID == "" {
		return fmt.Errorf("store: item playback needs user and item id")
	}
	return nil
}

func validateChoice(c *model.PlaybackLanguageChoice) error {
	if c == nil || c.UserID == "" || c.SeriesID == "" {
		return fmt.Errorf("store: language choice needs user and series id")
	}
	return nil
}
