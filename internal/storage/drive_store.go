package storage

import (
	"database/sql"
	"time"

	"github.com/animus-hq/animus/internal/core"
)

// DriveStore persists the five motivational drives.
type DriveStore struct {
	db *DB
}

// NewDriveStore creates a drive store
func NewDriveStore(db *DB) *DriveStore {
	return &DriveStore{db: db}
}

// Seed inserts the fixed drive set if missing. Existing rows are untouched.
func (s *DriveStore) Seed(defaults map[core.DriveName]core.Drive) error {
	for _, name := range core.DriveNames {
		d, ok := defaults[name]
		if !ok {
			d = core.Drive{
				Name:                 name,
				CurrentLevel:         0.3,
				Baseline:             0.3,
				AccumulationRate:     0.05,
				DecayRate:            0.1,
				SatisfactionCooldown: 2 * time.Hour,
				UrgencyThreshold:     0.75,
			}
		}
		d.Name = name
		d.UpdatedAt = time.Now().UTC()

		_, err := s.db.conn.Exec(`
			INSERT INTO drives (
			    name, current_level, baseline, accumulation_rate, decay_rate,
			    satisfaction_cooldown_ns, last_satisfied, urgency_threshold, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
			ON CONFLICT(name) DO NOTHING
		`,
			d.Name, d.CurrentLevel, d.Baseline, d.AccumulationRate, d.DecayRate,
			int64(d.SatisfactionCooldown), d.UrgencyThreshold, d.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get returns one drive by name.
func (s *DriveStore) Get(name core.DriveName) (*core.Drive, error) {
	return s.scanDrive(s.db.conn.QueryRow(`
		SELECT name, current_level, baseline, accumulation_rate, decay_rate,
		       satisfaction_cooldown_ns, last_satisfied, urgency_threshold, updated_at
		FROM drives WHERE name = ?
	`, name))
}

// List returns all drives in seed order.
func (s *DriveStore) List() ([]*core.Drive, error) {
	drives := make([]*core.Drive, 0, len(core.DriveNames))
	for _, name := range core.DriveNames {
		d, err := s.Get(name)
		if err == core.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		drives = append(drives, d)
	}
	return drives, nil
}

// Save writes a drive's mutable fields back.
func (s *DriveStore) Save(d *core.Drive) error {
	d.UpdatedAt = time.Now().UTC()

	var lastSatisfied interface{}
	if d.LastSatisfied != nil {
		lastSatisfied = *d.LastSatisfied
	}

	_, err := s.db.conn.Exec(`
		UPDATE drives SET
		    current_level = ?, baseline = ?, accumulation_rate = ?, decay_rate = ?,
		    satisfaction_cooldown_ns = ?, last_satisfied = ?, urgency_threshold = ?,
		    updated_at = ?
		WHERE name = ?
	`,
		d.CurrentLevel, d.Baseline, d.AccumulationRate, d.DecayRate,
		int64(d.SatisfactionCooldown), lastSatisfied, d.UrgencyThreshold,
		d.UpdatedAt, d.Name,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *DriveStore) scanDrive(row rowScanner) (*core.Drive, error) {
	d := &core.Drive{}
	var cooldownNS int64
	var lastSatisfied sql.NullTime

	err := row.Scan(
		&d.Name, &d.CurrentLevel, &d.Baseline, &d.AccumulationRate, &d.DecayRate,
		&cooldownNS, &lastSatisfied, &d.UrgencyThreshold, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	d.SatisfactionCooldown = time.Duration(cooldownNS)
	if lastSatisfied.Valid {
		t := lastSatisfied.Time
		d.LastSatisfied = &t
	}
	return d, nil
}
