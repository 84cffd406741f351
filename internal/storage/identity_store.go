package storage

import (
	"database/sql"
	"time"

	"github.com/animus-hq/animus/internal/core"
)

// IdentityStore persists the serialized key bundle. There is exactly one
// identity per database; the table enforces a singleton row.
type IdentityStore struct {
	db *DB
}

// NewIdentityStore creates an identity store
func NewIdentityStore(db *DB) *IdentityStore {
	return &IdentityStore{db: db}
}

// SaveBundle stores the serialized bundle as JSON. Fails if an identity
// already exists; key material is never silently replaced.
func (s *IdentityStore) SaveBundle(bundle string) error {
	_, err := s.db.conn.Exec(`
		INSERT INTO identity_keys (id, bundle, created_at) VALUES (1, ?, ?)
	`, bundle, time.Now().UTC())
	return err
}

// LoadBundle returns the stored bundle JSON.
func (s *IdentityStore) LoadBundle() (string, error) {
	var bundle string
	err := s.db.conn.QueryRow(`SELECT bundle FROM identity_keys WHERE id = 1`).Scan(&bundle)
	if err == sql.ErrNoRows {
		return "", core.ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}
	return bundle, nil
}

// Exists reports whether an identity has been created.
func (s *IdentityStore) Exists() (bool, error) {
	var count int
	if err := s.db.conn.QueryRow(`SELECT COUNT(*) FROM identity_keys`).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
