// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sq, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "playback.sqlite"))
	require.NoError(t, err)

	bg, err := openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rd, err := NewRedisStore(ctx, RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)

	all := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
		"badger": bg,
		"redis":  rd,
	}
	t.Cleanup(func() {
		for _, s := range all {
			_ = s.Close()
		}
	})
	return all
}

func TestItemPlaybackRoundTrip(t *testing.T) {
	ctx := context.Background()
	updated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []*model.ItemPlayback{
		{UserID: "u1", ItemID: "i1", SourceID: "s1", AudioIndex: model.Int(2), Subtitle: model.SubtitleIndex(4), SubtitleDelay: -1500 * time.Millisecond, UpdatedAt: updated},
		{UserID: "u1", ItemID: "i2", Subtitle: model.SubtitlesDisabled(), UpdatedAt: updated},
		{UserID: "u1", ItemID: "i3", AudioIndex: model.Int(1), Subtitle: model.SubtitlesOnlyForced(), UpdatedAt: updated},
		{UserID: "u2", ItemID: "i1", UpdatedAt: updated},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, want := range cases {
				require.NoError(t, s.SaveItemPlayback(ctx, want))
				got, err := s.GetItemPlayback(ctx, want.UserID, want.ItemID)
				require.NoError(t, err)
				require.NotNil(t, got)
				if diff := cmp.Diff(want, got, cmp.AllowUnexported(model.SubtitleChoice{})); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			}

			missing, err := s.GetItemPlayback(ctx, "nobody", "i1")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestItemPlaybackLastWriteWinsAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveItemPlayback(ctx, &model.ItemPlayback{UserID: "u", ItemID: "i", AudioIndex: model.Int(1)}))
			require.NoError(t, s.SaveItemPlayback(ctx, &model.ItemPlayback{UserID: "u", ItemID: "i", AudioIndex: model.Int(3)}))

			got, err := s.GetItemPlayback(ctx, "u", "i")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 3, *got.AudioIndex)
			assert.False(t, got.Subtitle.IsSet())

			require.NoError(t, s.DeleteItemPlayback(ctx, "u", "i"))
			got, err = s.GetItemPlayback(ctx, "u", "i")
			require.NoError(t, err)
			assert.Nil(t, got)

			assert.Error(t, s.SaveItemPlayback(ctx, &model.ItemPlayback{ItemID: "i"}))
		})
	}
}

func TestLanguageChoiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	want := &model.PlaybackLanguageChoice{UserID: "u", SeriesID: "show", AudioLanguage: "jpn", SubtitleLanguage: "eng"}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveLanguageChoice(ctx, want))
			got, err := s.GetLanguageChoice(ctx, "u", "show")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			off := &model.PlaybackLanguageChoice{UserID: "u", SeriesID: "show", SubtitlesDisabled: true}
			require.NoError(t, s.SaveLanguageChoice(ctx, off))
			got, err = s.GetLanguageChoice(ctx, "u", "show")
			require.NoError(t, err)
			assert.Equal(t, off, got)

			none, err := s.GetLanguageChoice(ctx, "u", "other")
			require.NoError(t, err)
			assert.Nil(t, none)

			assert.Error(t, s.SaveLanguageChoice(ctx, &model.PlaybackLanguageChoice{UserID: "u"}))
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	dir := t.TempDir()
	s, err = Open(ctx, Config{Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Backend: BackendBadger, Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: BackendBadger})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Backend: "bolt"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "p.sqlite")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SaveItemPlayback(ctx, &model.ItemPlayback{UserID: "u", ItemID: "i", Subtitle: model.SubtitleIndex(0)}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetItemPlayback(ctx, "u", "i")
	require.NoError(t, err)
	require.NotNil(t, got)
	idx, ok := got.Subtitle.Index()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}
