package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/animus-hq/animus/internal/core"
)

// GoalStore persists the goal backlog.
type GoalStore struct {
	db *DB
}

// NewGoalStore creates a goal store
func NewGoalStore(db *DB) *GoalStore {
	return &GoalStore{db: db}
}

// Create inserts a new goal.
func (s *GoalStore) Create(g *core.Goal) error {
	now := time.Now().UTC()
	if g.ID == "" {
		g.ID = core.GoalID(uuid.New().String())
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	g.LastTouched = now

	progress, _ := json.Marshal(g.Progress)
	blockedBy, _ := json.Marshal(g.BlockedBy)
	if g.Progress == nil {
		progress = []byte("[]")
	}
	if g.BlockedBy == nil {
		blockedBy = []byte("[]")
	}

	var dueAt interface{}
	if g.DueAt != nil {
		dueAt = *g.DueAt
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO goals (
		    id, title, description, priority, source, due_at, progress,
		    blocked_by, parent_goal_id, last_touched, archived, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID, g.Title, g.Description, g.Priority, g.Source, dueAt,
		string(progress), string(blockedBy), g.ParentGoalID,
		g.LastTouched, boolToInt(g.Archived), g.CreatedAt, g.UpdatedAt,
	)
	return err
}

// GetByID returns a goal by ID
func (s *GoalStore) GetByID(id core.GoalID) (*core.Goal, error) {
	return s.scanGoal(s.db.conn.QueryRow(`
		SELECT id, title, description, priority, source, due_at, progress,
		       blocked_by, parent_goal_id, last_touched, archived, created_at, updated_at
		FROM goals WHERE id = ?
	`, id))
}

// Update writes a goal's mutable fields back.
func (s *GoalStore) Update(g *core.Goal) error {
	g.UpdatedAt = time.Now().UTC()

	progress, _ := json.Marshal(g.Progress)
	blockedBy, _ := json.Marshal(g.BlockedBy)
	if g.Progress == nil {
		progress = []byte("[]")
	}
	if g.BlockedBy == nil {
		blockedBy = []byte("[]")
	}

	var dueAt interface{}
	if g.DueAt != nil {
		dueAt = *g.DueAt
	}

	_, err := s.db.conn.Exec(`
		UPDATE goals SET
		    title = ?, description = ?, priority = ?, source = ?, due_at = ?,
		    progress = ?, blocked_by = ?, parent_goal_id = ?, last_touched = ?,
		    archived = ?, updated_at = ?
		WHERE id = ?
	`,
		g.Title, g.Description, g.Priority, g.Source, dueAt,
		string(progress), string(blockedBy), g.ParentGoalID, g.LastTouched,
		boolToInt(g.Archived), g.UpdatedAt, g.ID,
	)
	return err
}

// CountByPriority returns the number of unarchived goals in a lane.
func (s *GoalStore) CountByPriority(p core.GoalPriority) (int, error) {
	var count int
	err := s.db.conn.QueryRow(`
		SELECT COUNT(*) FROM goals WHERE priority = ? AND archived = 0
	`, p).Scan(&count)
	return count, err
}

// ListByPriority returns unarchived goals in a lane, most recently touched first.
func (s *GoalStore) ListByPriority(p core.GoalPriority, limit int) ([]*core.Goal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.Query(`
		SELECT id, title, description, priority, source, due_at, progress,
		       blocked_by, parent_goal_id, last_touched, archived, created_at, updated_at
		FROM goals
		WHERE priority = ? AND archived = 0
		ORDER BY last_touched DESC
		LIMIT ?
	`, p, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectGoals(rows)
}

// ListOpen returns all unarchived goals.
func (s *GoalStore) ListOpen() ([]*core.Goal, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, title, description, priority, source, due_at, progress,
		       blocked_by, parent_goal_id, last_touched, archived, created_at, updated_at
		FROM goals
		WHERE archived = 0
		ORDER BY last_touched DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectGoals(rows)
}

// PurgeAll deletes every goal. Used only by termination.
func (s *GoalStore) PurgeAll() error {
	_, err := s.db.conn.Exec(`DELETE FROM goals`)
	return err
}

func (s *GoalStore) collectGoals(rows *sql.Rows) ([]*core.Goal, error) {
	var goals []*core.Goal
	for rows.Next() {
		g, err := s.scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *GoalStore) scanGoal(row rowScanner) (*core.Goal, error) {
	g := &core.Goal{}
	var progress, blockedBy string
	var dueAt sql.NullTime
	var archived int

	err := row.Scan(
		&g.ID, &g.Title, &g.Description, &g.Priority, &g.Source, &dueAt,
		&progress, &blockedBy, &g.ParentGoalID, &g.LastTouched,
		&archived, &g.CreatedAt, &g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	g.Archived = archived != 0
	if dueAt.Valid {
		t := dueAt.Time
		g.DueAt = &t
	}
	json.Unmarshal([]byte(progress), &g.Progress)
	json.Unmarshal([]byte(blockedBy), &g.BlockedBy)

	return g, nil
}
