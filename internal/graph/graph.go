// Package graph provides the property-graph relationship store.
// Edges are auxiliary indexes: callers treat writes as best-effort and never
// let a graph failure block a primary record.
package graph

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/storage"
)

// Store manages relationship edges over sqlite.
type Store struct {
	db *storage.DB
}

// NewStore creates a graph store
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Upsert creates an edge or updates its weight and props if the
// (kind, from, to, label) tuple already exists.
func (s *Store) Upsert(e *core.Edge) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Weight == 0 {
		e.Weight = 1.0
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	props, _ := json.Marshal(e.Props)
	if e.Props == nil {
		props = []byte("{}")
	}

	_, err := s.db.Conn().Exec(`
		INSERT INTO edges (id, kind, from_id, to_id, label, weight, props, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, from_id, to_id, label) DO UPDATE SET
		    weight = excluded.weight,
		    props = excluded.props,
		    updated_at = excluded.updated_at
	`, e.ID, e.Kind, e.FromID, e.ToID, e.Label, e.Weight, string(props), e.CreatedAt, e.UpdatedAt)
	return err
}

// Get returns one edge by tuple, or ErrRecordNotFound.
func (s *Store) Get(kind core.EdgeKind, fromID, toID, label string) (*core.Edge, error) {
	return s.scanEdge(s.db.Conn().QueryRow(selectEdge+`
		WHERE kind = ? AND from_id = ? AND to_id = ? AND label = ?
	`, kind, fromID, toID, label))
}

// Delete removes an edge by tuple. Deleting a missing edge is not an error.
func (s *Store) Delete(kind core.EdgeKind, fromID, toID, label string) error {
	_, err := s.db.Conn().Exec(`
		DELETE FROM edges WHERE kind = ? AND from_id = ? AND to_id = ? AND label = ?
	`, kind, fromID, toID, label)
	return err
}

// Neighbors returns edges touching the given node id, either direction.
func (s *Store) Neighbors(nodeID string, limit int) ([]*core.Edge, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().Query(selectEdge+`
		WHERE from_id = ? OR to_id = ?
		ORDER BY weight DESC
		LIMIT ?
	`, nodeID, nodeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectEdges(rows)
}

// ListByKind returns all edges of one kind.
func (s *Store) ListByKind(kind core.EdgeKind) ([]*core.Edge, error) {
	rows, err := s.db.Conn().Query(selectEdge+` WHERE kind = ? ORDER BY updated_at DESC`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectEdges(rows)
}

// PurgeAll deletes every edge. Used by termination.
func (s *Store) PurgeAll() error {
	_, err := s.db.Conn().Exec(`DELETE FROM edges`)
	return err
}

const selectEdge = `
	SELECT id, kind, from_id, to_id, label, weight, props, created_at, updated_at
	FROM edges`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanEdge(row rowScanner) (*core.Edge, error) {
	e := &core.Edge{}
	var props string

	err := row.Scan(
		&e.ID, &e.Kind, &e.FromID, &e.ToID, &e.Label, &e.Weight,
		&props, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(props), &e.Props)
	return e, nil
}

func (s *Store) collectEdges(rows *sql.Rows) ([]*core.Edge, error) {
	var edges []*core.Edge
	for rows.Next() {
		e, err := s.scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
