package keystore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcdickies/savor/internal/database"
)

func newSQLStore(t *testing.T, master string) (*SQLStore, *database.DB) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "keys.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db.SQL, master)
	require.NoError(t, err)
	return store, db
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "ai.gemini.apiKey")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "ai.gemini.apiKey", "first"))
	require.NoError(t, store.Set(ctx, "ai.gemini.apiKey", "second"))

	got, err := store.Get(ctx, "ai.gemini.apiKey")
	require.NoError(t, err)
	require.Equal(t, "second", got)

	require.NoError(t, store.Delete(ctx, "ai.gemini.apiKey"))
	require.NoError(t, store.Delete(ctx, "ai.gemini.apiKey"))

	_, err = store.Get(ctx, "ai.gemini.apiKey")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLStore(t *testing.T) {
	store, _ := newSQLStore(t, "correct horse")
	exerciseStore(t, store)
}

func TestSQLStoreEncryptsAtRest(t *testing.T) {
	store, db := newSQLStore(t, "correct horse")
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "ai.gemini.apiKey", "AIza-plaintext"))

	var sealed []byte
	require.NoError(t, db.SQL.QueryRow(`SELECT ciphertext FROM secrets WHERE name = ?`, "ai.gemini.apiKey").Scan(&sealed))
	require.NotContains(t, string(sealed), "AIza-plaintext")

	other, err := NewSQLStore(db.SQL, "wrong secret")
	require.NoError(t, err)
	_, err = other.Get(ctx, "ai.gemini.apiKey")
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestNewSQLStoreRequiresSecret(t *testing.T) {
	_, err := NewSQLStore(nil, "")
	require.ErrorIs(t, err, ErrNoSecret)
}
