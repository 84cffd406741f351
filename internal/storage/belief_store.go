package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/animus-hq/animus/internal/core"
)

// BeliefStore persists identity, value, worldview and boundary beliefs.
type BeliefStore struct {
	db *DB
}

// NewBeliefStore creates a belief store
func NewBeliefStore(db *DB) *BeliefStore {
	return &BeliefStore{db: db}
}

// Create inserts a new belief.
func (s *BeliefStore) Create(b *core.Belief) error {
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = core.BeliefID(uuid.New().String())
	}
	b.CreatedAt = now
	b.UpdatedAt = now

	transformation, _ := json.Marshal(b.Transformation)
	history, _ := json.Marshal(b.ChangeHistory)
	patterns, _ := json.Marshal(b.TriggerPatterns)
	if b.ChangeHistory == nil {
		history = []byte("[]")
	}
	if b.TriggerPatterns == nil {
		patterns = []byte("[]")
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO beliefs (
		    id, content, category, subcategory, confidence, stability, importance,
		    change_requires, origin, transformation, change_history,
		    trigger_patterns, response_type, embedding_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.Content, b.Category, b.Subcategory, b.Confidence, b.Stability,
		b.Importance, b.ChangeRequires, b.Origin, string(transformation),
		string(history), string(patterns), b.ResponseType, b.EmbeddingID,
		b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// GetByID returns a belief by ID
func (s *BeliefStore) GetByID(id core.BeliefID) (*core.Belief, error) {
	return s.scanBelief(s.db.conn.QueryRow(selectBelief+` WHERE id = ?`, id))
}

// Update writes a belief's mutable fields back.
func (s *BeliefStore) Update(b *core.Belief) error {
	b.UpdatedAt = time.Now().UTC()

	transformation, _ := json.Marshal(b.Transformation)
	history, _ := json.Marshal(b.ChangeHistory)
	patterns, _ := json.Marshal(b.TriggerPatterns)
	if b.ChangeHistory == nil {
		history = []byte("[]")
	}
	if b.TriggerPatterns == nil {
		patterns = []byte("[]")
	}

	_, err := s.db.conn.Exec(`
		UPDATE beliefs SET
		    content = ?, category = ?, subcategory = ?, confidence = ?,
		    stability = ?, importance = ?, change_requires = ?, origin = ?,
		    transformation = ?, change_history = ?, trigger_patterns = ?,
		    response_type = ?, embedding_id = ?, updated_at = ?
		WHERE id = ?
	`,
		b.Content, b.Category, b.Subcategory, b.Confidence,
		b.Stability, b.Importance, b.ChangeRequires, b.Origin,
		string(transformation), string(history), string(patterns),
		b.ResponseType, b.EmbeddingID, b.UpdatedAt, b.ID,
	)
	return err
}

// ListByCategory returns beliefs in a category.
func (s *BeliefStore) ListByCategory(cat core.BeliefCategory) ([]*core.Belief, error) {
	rows, err := s.db.conn.Query(selectBelief+` WHERE category = ? ORDER BY importance DESC`, cat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectBeliefs(rows)
}

// ListExploring returns beliefs currently under active exploration.
func (s *BeliefStore) ListExploring() ([]*core.Belief, error) {
	rows, err := s.db.conn.Query(selectBelief + ` WHERE change_requires = 'deliberate_transformation'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := s.collectBeliefs(rows)
	if err != nil {
		return nil, err
	}

	// ActiveExploration lives inside the transformation JSON blob, so the
	// filter happens here rather than in SQL.
	var exploring []*core.Belief
	for _, b := range all {
		if b.Transformation.ActiveExploration {
			exploring = append(exploring, b)
		}
	}
	return exploring, nil
}

// PurgeExceptBoundaries deletes all non-boundary beliefs. Used by termination.
func (s *BeliefStore) PurgeExceptBoundaries() error {
	_, err := s.db.conn.Exec(`DELETE FROM beliefs WHERE category != ?`, core.BeliefBoundary)
	return err
}

const selectBelief = `
	SELECT id, content, category, subcategory, confidence, stability, importance,
	       change_requires, origin, transformation, change_history,
	       trigger_patterns, response_type, embedding_id, created_at, updated_at
	FROM beliefs`

func (s *BeliefStore) collectBeliefs(rows *sql.Rows) ([]*core.Belief, error) {
	var beliefs []*core.Belief
	for rows.Next() {
		b, err := s.scanBelief(rows)
		if err != nil {
			return nil, err
		}
		beliefs = append(beliefs, b)
	}
	return beliefs, rows.Err()
}

func (s *BeliefStore) scanBelief(row rowScanner) (*core.Belief, error) {
	b := &core.Belief{}
	var transformation, history, patterns string

	err := row.Scan(
		&b.ID, &b.Content, &b.Category, &b.Subcategory, &b.Confidence,
		&b.Stability, &b.Importance, &b.ChangeRequires, &b.Origin,
		&transformation, &history, &patterns, &b.ResponseType,
		&b.EmbeddingID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(transformation), &b.Transformation)
	json.Unmarshal([]byte(history), &b.ChangeHistory)
	json.Unmarshal([]byte(patterns), &b.TriggerPatterns)

	return b, nil
}
