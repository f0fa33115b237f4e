// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesPragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	issues, err := VerifyIntegrity(context.Background(), db, false)
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestMigrateIsIncremental(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "m.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	v1 := []string{`CREATE TABLE a (id INTEGER PRIMARY KEY)`}
	require.NoError(t, Migrate(ctx, db, v1))
	require.NoError(t, Migrate(ctx, db, v1), "re-running applied migrations is a no-op")

	v2 := append(v1, `ALTER TABLE a ADD COLUMN name TEXT`)
	require.NoError(t, Migrate(ctx, db, v2))

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 2, version)

	_, err = db.Exec(`INSERT INTO a (id, name) VALUES (1, 'x')`)
	assert.NoError(t, err)
}

func TestMigrateRollsBackFailure(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "bad.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	err = Migrate(ctx, db, []string{`CREATE TABLE ok (id INTEGER)`, `NOT SQL`})
	require.Error(t, err)

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)
}
