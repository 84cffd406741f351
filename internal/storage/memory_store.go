package storage

import (
	"database/sql"
	"time"

	"github.com/animus-hq/animus/internal/core"
)

// MemoryStore persists memory records.
type MemoryStore struct {
	db *DB
}

// NewMemoryStore creates a memory store
func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// Create inserts a new memory record.
func (s *MemoryStore) Create(m *core.Memory) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	var lastAccess interface{}
	if m.LastAccess != nil {
		lastAccess = *m.LastAccess
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO memories (
		    id, category, content, summary, episode_id, sequence_num,
		    importance, trust, emotional_valence, relevance, source,
		    access_count, last_access, embedding_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Category, m.Content, m.Summary, m.EpisodeID, m.SequenceNum,
		m.Importance, m.Trust, m.EmotionalValence, m.Relevance, m.Source,
		m.AccessCount, lastAccess, m.EmbeddingID, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

// GetByID returns a memory by ID
func (s *MemoryStore) GetByID(id core.MemoryID) (*core.Memory, error) {
	return s.scanMemory(s.db.conn.QueryRow(selectMemory+` WHERE id = ?`, id))
}

// GetRecent returns the most recent memories, newest first.
func (s *MemoryStore) GetRecent(limit int) ([]*core.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(selectMemory+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectMemories(rows)
}

// GetRecentBySource returns recent memories from one source.
func (s *MemoryStore) GetRecentBySource(source string, limit int) ([]*core.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		selectMemory+` WHERE source = ? ORDER BY created_at DESC LIMIT ?`, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectMemories(rows)
}

// LatestEpisode returns the most recently written episode id and its last
// sequence number, or empty if no episodic memory exists.
func (s *MemoryStore) LatestEpisode() (string, int, time.Time, error) {
	var episodeID string
	var seq int
	var createdAt time.Time

	err := s.db.conn.QueryRow(`
		SELECT episode_id, sequence_num, created_at FROM memories
		WHERE category = ? AND episode_id != ''
		ORDER BY created_at DESC, sequence_num DESC
		LIMIT 1
	`, core.MemoryEpisodic).Scan(&episodeID, &seq, &createdAt)
	if err == sql.ErrNoRows {
		return "", 0, time.Time{}, nil
	}
	if err != nil {
		return "", 0, time.Time{}, err
	}
	return episodeID, seq, createdAt, nil
}

// RecordAccess bumps access statistics for a retrieved memory and resets its
// relevance, countering decay.
func (s *MemoryStore) RecordAccess(id core.MemoryID) error {
	_, err := s.db.conn.Exec(`
		UPDATE memories SET
		    access_count = access_count + 1,
		    last_access = ?,
		    relevance = 1.0
		WHERE id = ?
	`, time.Now().UTC(), id)
	return err
}

// UpdateRelevance writes a decayed relevance score back.
func (s *MemoryStore) UpdateRelevance(id core.MemoryID, relevance float64) error {
	_, err := s.db.conn.Exec(`UPDATE memories SET relevance = ? WHERE id = ?`, relevance, id)
	return err
}

// ListForDecay returns ids, relevance and last-touch times for the decay pass.
func (s *MemoryStore) ListForDecay() ([]*core.Memory, error) {
	rows, err := s.db.conn.Query(selectMemory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectMemories(rows)
}

// ListEmbeddedIDs returns the ids of all memories that carry a vector.
func (s *MemoryStore) ListEmbeddedIDs() ([]core.MemoryID, error) {
	rows, err := s.db.conn.Query(`SELECT id FROM memories WHERE embedding_id != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []core.MemoryID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, core.MemoryID(id))
	}
	return ids, rows.Err()
}

// Count returns total memory count
func (s *MemoryStore) Count() (int, error) {
	var count int
	err := s.db.conn.QueryRow("SELECT COUNT(*) FROM memories").Scan(&count)
	return count, err
}

// PurgeExcept deletes every memory except the listed ids. Used by termination.
func (s *MemoryStore) PurgeExcept(keep []core.MemoryID) error {
	if len(keep) == 0 {
		_, err := s.db.conn.Exec(`DELETE FROM memories`)
		return err
	}
	return s.db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			CREATE TEMP TABLE IF NOT EXISTS _keep (id TEXT PRIMARY KEY)
		`); err != nil {
			return err
		}
		for _, id := range keep {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO _keep (id) VALUES (?)`, id); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`DELETE FROM memories WHERE id NOT IN (SELECT id FROM _keep)`); err != nil {
			return err
		}
		_, err := tx.Exec(`DROP TABLE _keep`)
		return err
	})
}

const selectMemory = `
	SELECT id, category, content, summary, episode_id, sequence_num,
	       importance, trust, emotional_valence, relevance, source,
	       access_count, last_access, embedding_id, created_at, updated_at
	FROM memories`

func (s *MemoryStore) collectMemories(rows *sql.Rows) ([]*core.Memory, error) {
	var memories []*core.Memory
	for rows.Next() {
		m, err := s.scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (s *MemoryStore) scanMemory(row rowScanner) (*core.Memory, error) {
	m := &core.Memory{}
	var lastAccess sql.NullTime

	err := row.Scan(
		&m.ID, &m.Category, &m.Content, &m.Summary, &m.EpisodeID, &m.SequenceNum,
		&m.Importance, &m.Trust, &m.EmotionalValence, &m.Relevance, &m.Source,
		&m.AccessCount, &lastAccess, &m.EmbeddingID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if lastAccess.Valid {
		t := lastAccess.Time
		m.LastAccess = &t
	}
	return m, nil
}
