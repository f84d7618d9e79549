package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadline/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn))
	require.NoError(t, Migrate(conn))

	hist, err := History(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 1, hist[0].Version)
	assert.Equal(t, "0002_journal_indexes.sql", hist[1].Name)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_events_type'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestLoadMigrationsRejectsDuplicateVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0001_a.sql": {Data: []byte("SELECT 1;")},
		"sql/0001_b.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share version 1")
}

func TestLoadMigrationsSortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0010_late.sql":  {Data: []byte("SELECT 10;")},
		"sql/0002_early.sql": {Data: []byte("SELECT 2;")},
	}
	ms, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 2, ms[0].Version)
	assert.Equal(t, 10, ms[1].Version)
}

func TestFailedMigrationRollsBack(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	err = apply(context.Background(), conn, []Migration{
		{Version: 1, Name: "0001_ok.sql", UpSQL: "CREATE TABLE a(id INTEGER);"},
		{Version: 2, Name: "0002_bad.sql", UpSQL: "CREATE TABLE;"},
	})
	require.Error(t, err)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name IN ('a','schema_migrations')`).Scan(&n))
	assert.Equal(t, 0, n)
}
