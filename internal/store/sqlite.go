// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/ManuGH/jfplay/internal/persistence/sqlite"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS item_playback (
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		audio_index INTEGER,
		subtitle_index INTEGER,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, item_id)
	);
	CREATE TABLE IF NOT EXISTS language_choice (
		user_id TEXT NOT NULL,
		series_id TEXT NOT NULL,
		audio_language TEXT NOT NULL DEFAULT '',
		subtitle_language TEXT NOT NULL DEFAULT '',
		subtitles_disabled BOOLEAN NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, series_id)
	);`,
	`ALTER TABLE item_playback ADD COLUMN subtitle_delay_ms INTEGER NOT NULL DEFAULT 0;`,
}

// SQLiteStore persists choices in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath, checks it and applies pending migrations.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	issues, err := sqlite.VerifyIntegrity(ctx, db, false)
	if err == nil && len(issues) > 0 {
		err = fmt.Errorf("store: %s is damaged: %s", dbPath, strings.Join(issues, "; "))
	}
	if err == nil {
		err = sqlite.Migrate(ctx, db, sqliteMigrations)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetItemPlayback(ctx context.Context, userID, itemID string) (*model.ItemPlayback, error) {
	var (
		rec       = itemRecord{UserID: userID, ItemID: itemID}
		audio     sql.NullInt64
		subtitle  sql.NullInt64
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id, audio_index, subtitle_index, subtitle_delay_ms, updated_at
		 FROM item_playback WHERE user_id = ? AND item_id = ?`, userID, itemID,
	).Scan(&rec.SourceID, &audio, &subtitle, &rec.SubtitleDelayMs, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get item playback: %w", err)
	}
	if audio.Valid {
		rec.AudioIndex = model.Int(int(audio.Int64))
	}
	if subtitle.Valid {
		rec.SubtitleIndex = model.Int(int(subtitle.Int64))
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec.model()
}

func (s *SQLiteStore) SaveItemPlayback(ctx context.Context, p *model.ItemPlayback) error {
	if err := validateItem(p); err != nil {
		return err
	}
	rec := toItemRecord(p)
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO item_playback (user_id, item_id, source_id, audio_index, subtitle_index, subtitle_delay_ms, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, item_id) DO UPDATE SET
		source_id = excluded.source_id,
		audio_index = excluded.audio_index,
		subtitle_index = excluded.subtitle_index,
		subtitle_delay_ms = excluded.subtitle_delay_ms,
		updated_at = excluded.updated_at`,
		rec.UserID, rec.ItemID, rec.SourceID, nullInt(rec.AudioIndex), nullInt(rec.SubtitleIndex),
		rec.SubtitleDelayMs, rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: save item playback: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteItemPlayback(ctx context.Context, userID, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM item_playback WHERE user_id = ? AND item_id = ?`, userID, itemID)
	return err
}

func (s *SQLiteStore) GetLanguageChoice(ctx context.Context, userID, seriesID string) (*model.PlaybackLanguageChoice, error) {
	rec := languageRecord{UserID: userID, SeriesID: seriesID}
	err := s.db.QueryRowContext(ctx,
		`SELECT audio_language, subtitle_language, subtitles_disabled
		 FROM language_choice WHERE user_id = ? AND series_id = ?`, userID, seriesID,
	).Scan(&rec.AudioLanguage, &rec.SubtitleLanguage, &rec.SubtitlesDisabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get language choice: %w", err)
	}
	return rec.model(), nil
}

func (s *SQLiteStore) SaveLanguageChoice(ctx context.Context, c *model.PlaybackLanguageChoice) error {
	if err := validateChoice(c); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO language_choice (user_id, series_id, audio_language, subtitle_language, subtitles_disabled)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, series_id) DO UPDATE SET
		audio_language = excluded.audio_language,
		subtitle_language = excluded.subtitle_language,
		subtitles_disabled = excluded.subtitles_disabled`,
		c.UserID, c.SeriesID, c.AudioLanguage, c.SubtitleLanguage, c.SubtitlesDisabled,
	)
	if err != nil {
		return fmt.Errorf("store: save language choice: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
