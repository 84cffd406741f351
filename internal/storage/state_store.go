package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/animus-hq/animus/internal/core"
)

// StateStore persists the two singleton rows: heartbeat and maintenance state.
type StateStore struct {
	db *DB
}

// NewStateStore creates a state store
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// InitHeartbeat inserts the singleton row if it does not exist yet.
func (s *StateStore) InitHeartbeat(maxEnergy float64) error {
	now := time.Now().UTC()
	affect, _ := json.Marshal(core.DefaultAffect())

	_, err := s.db.conn.Exec(`
		INSERT INTO heartbeat_state (id, current_energy, max_energy, affect, init_stage, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, maxEnergy, maxEnergy, string(affect), core.InitStageUnconfigured, now)
	if err != nil {
		return fmt.Errorf("failed to init heartbeat state: %w", err)
	}

	_, err = s.db.conn.Exec(`
		INSERT INTO maintenance_state (id, updated_at) VALUES (1, ?)
		ON CONFLICT(id) DO NOTHING
	`, now)
	if err != nil {
		return fmt.Errorf("failed to init maintenance state: %w", err)
	}
	return nil
}

// LoadHeartbeat returns the singleton heartbeat state.
func (s *StateStore) LoadHeartbeat() (*core.HeartbeatState, error) {
	st := &core.HeartbeatState{}
	var lastRun, nextRun sql.NullTime
	var affect, actions, pendingCall sql.NullString
	var isPaused, terminated int

	err := s.db.conn.QueryRow(`
		SELECT current_energy, max_energy, heartbeat_count, last_run_at, next_run_at,
		       is_paused, terminated, affect, active_epoch_id, active_epoch_number,
		       active_actions, active_reasoning, next_index, pending_call,
		       init_stage, init_data, updated_at
		FROM heartbeat_state WHERE id = 1
	`).Scan(
		&st.CurrentEnergy, &st.MaxEnergy, &st.HeartbeatCount, &lastRun, &nextRun,
		&isPaused, &terminated, &affect, &st.ActiveEpochID, &st.ActiveEpochNumber,
		&actions, &st.ActiveReasoning, &st.NextIndex, &pendingCall,
		&st.InitStage, &st.InitData, &st.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	st.IsPaused = isPaused != 0
	st.Terminated = terminated != 0
	if lastRun.Valid {
		t := lastRun.Time
		st.LastRunAt = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		st.NextRunAt = &t
	}
	if affect.Valid && affect.String != "" {
		json.Unmarshal([]byte(affect.String), &st.Affect)
	}
	if actions.Valid && actions.String != "" {
		json.Unmarshal([]byte(actions.String), &st.ActiveActions)
	}
	if pendingCall.Valid && pendingCall.String != "" {
		var call core.ExternalCall
		if json.Unmarshal([]byte(pendingCall.String), &call) == nil && call.CallID != "" {
			st.PendingCall = &call
		}
	}
	st.Affect.Clamp()

	return st, nil
}

// SaveHeartbeat writes the full singleton heartbeat state back.
func (s *StateStore) SaveHeartbeat(st *core.HeartbeatState) error {
	st.UpdatedAt = time.Now().UTC()
	st.Affect.Clamp()

	affect, _ := json.Marshal(st.Affect)
	actions, _ := json.Marshal(st.ActiveActions)
	if st.ActiveActions == nil {
		actions = []byte("[]")
	}
	var pendingCall interface{}
	if st.PendingCall != nil {
		b, _ := json.Marshal(st.PendingCall)
		pendingCall = string(b)
	}

	var lastRun, nextRun interface{}
	if st.LastRunAt != nil {
		lastRun = *st.LastRunAt
	}
	if st.NextRunAt != nil {
		nextRun = *st.NextRunAt
	}

	_, err := s.db.conn.Exec(`
		UPDATE heartbeat_state SET
		    current_energy = ?, max_energy = ?, heartbeat_count = ?,
		    last_run_at = ?, next_run_at = ?, is_paused = ?, terminated = ?,
		    affect = ?, active_epoch_id = ?, active_epoch_number = ?,
		    active_actions = ?, active_reasoning = ?, next_index = ?,
		    pending_call = ?, init_stage = ?, init_data = ?, updated_at = ?
		WHERE id = 1
	`,
		st.CurrentEnergy, st.MaxEnergy, st.HeartbeatCount,
		lastRun, nextRun, boolToInt(st.IsPaused), boolToInt(st.Terminated),
		string(affect), st.ActiveEpochID, st.ActiveEpochNumber,
		string(actions), st.ActiveReasoning, st.NextIndex,
		pendingCall, st.InitStage, st.InitData, st.UpdatedAt,
	)
	return err
}

// LoadMaintenance returns the singleton maintenance state.
func (s *StateStore) LoadMaintenance() (*core.MaintenanceState, error) {
	st := &core.MaintenanceState{}
	var lastMaint, lastDecider sql.NullTime
	var isPaused int

	err := s.db.conn.QueryRow(`
		SELECT last_maintenance_at, last_decider_at, is_paused, updated_at
		FROM maintenance_state WHERE id = 1
	`).Scan(&lastMaint, &lastDecider, &isPaused, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	st.IsPaused = isPaused != 0
	if lastMaint.Valid {
		t := lastMaint.Time
		st.LastMaintenanceAt = &t
	}
	if lastDecider.Valid {
		t := lastDecider.Time
		st.LastDeciderAt = &t
	}
	return st, nil
}

// SaveMaintenance writes the singleton maintenance state back.
func (s *StateStore) SaveMaintenance(st *core.MaintenanceState) error {
	st.UpdatedAt = time.Now().UTC()

	var lastMaint, lastDecider interface{}
	if st.LastMaintenanceAt != nil {
		lastMaint = *st.LastMaintenanceAt
	}
	if st.LastDeciderAt != nil {
		lastDecider = *st.LastDeciderAt
	}

	_, err := s.db.conn.Exec(`
		UPDATE maintenance_state SET
		    last_maintenance_at = ?, last_decider_at = ?, is_paused = ?, updated_at = ?
		WHERE id = 1
	`, lastMaint, lastDecider, boolToInt(st.IsPaused), st.UpdatedAt)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
