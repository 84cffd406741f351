package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/animus-hq/animus/internal/core"
)

// SettingsStore is a generic key-value store for runtime tunables: action
// costs, the allow-list, and transformation thresholds.
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a settings store
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Well-known setting keys.
const (
	KeyActionCosts         = "action_costs"
	KeyActionAllowList     = "action_allow_list"
	KeyTransformThresholds = "transformation_thresholds"
)

// Set stores a JSON-encoded value under a key.
func (s *SettingsStore) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}

	_, err = s.db.conn.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().UTC())
	return err
}

// Get decodes the value stored under a key into out.
func (s *SettingsStore) Get(key string, out interface{}) error {
	var value string
	err := s.db.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return core.ErrRecordNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), out)
}

// ActionCosts returns the per-action cost table.
func (s *SettingsStore) ActionCosts() (map[string]float64, error) {
	costs := make(map[string]float64)
	err := s.Get(KeyActionCosts, &costs)
	if err == core.ErrRecordNotFound {
		return costs, nil
	}
	return costs, err
}

// SetActionCost updates one action's cost.
func (s *SettingsStore) SetActionCost(action string, cost float64) error {
	costs, err := s.ActionCosts()
	if err != nil {
		return err
	}
	costs[action] = cost
	return s.Set(KeyActionCosts, costs)
}

// AllowList returns the set of permitted action names.
func (s *SettingsStore) AllowList() (map[string]bool, error) {
	var names []string
	err := s.Get(KeyActionAllowList, &names)
	if err == core.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	return allowed, nil
}

// SetAllowList replaces the allow-list.
func (s *SettingsStore) SetAllowList(names []string) error {
	return s.Set(KeyActionAllowList, names)
}
