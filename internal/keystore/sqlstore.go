package keystore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	keySalt  = "savor/keystore/v1"
	nonceLen = 24
)

var (
	// ErrNoSecret is returned when the store is opened without a master secret.
	ErrNoSecret = errors.New("keystore master secret is empty")
	// ErrCorrupt means a stored value could not be decrypted with the master secret.
	ErrCorrupt = errors.New("stored secret cannot be decrypted")
)

// SQLStore keeps secrets in the secrets table, sealed with a key derived from a
// master secret.
type SQLStore struct {
	db  *sql.DB
	key [32]byte
}

// NewSQLStore derives the sealing key from master and returns a store backed by db.
func NewSQLStore(db *sql.DB, master string) (*SQLStore, error) {
	if master == "" {
		return nil, ErrNoSecret
	}
	derived, err := scrypt.Key([]byte(master), []byte(keySalt), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keystore key: %w", err)
	}
	s := &SQLStore{db: db}
	copy(s.key[:], derived)
	return s, nil
}

func (s *SQLStore) Get(ctx context.Context, name string) (string, error) {
	var nonce, sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT nonce, ciphertext FROM secrets WHERE name = ?`, name).Scan(&nonce, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if len(nonce) != nonceLen {
		return "", ErrCorrupt
	}

	var n [nonceLen]byte
	copy(n[:], nonce)
	plain, ok := secretbox.Open(nil, sealed, &n, &s.key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(plain), nil
}

func (s *SQLStore) Set(ctx context.Context, name, value string) error {
	var n [nonceLen]byte
	if _, err := rand.Read(n[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nil, []byte(value), &n, &s.key)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (name, nonce, ciphertext, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			nonce = excluded.nonce,
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at`,
		name, n[:], sealed)
	if err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}
