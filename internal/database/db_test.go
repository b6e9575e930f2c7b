package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDBRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "savor.db")

	db, err := NewDB(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, table := range []string{"secrets", "draft_metrics"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err)
		require.Equal(t, table, name)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "savor.db")

	db, err := NewDB(path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.NoError(t, RunMigrations(path, nil))
}
