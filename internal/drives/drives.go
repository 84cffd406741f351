// Package drives implements the drive engine: five fixed motivational
// pressures that build while unsatisfied and relax toward baseline during
// a post-satisfaction cooldown.
package drives

import (
	"time"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/storage"
)

// urgencyFraction of the threshold at which a drive is surfaced as urgent.
const urgencyFraction = 0.8

// Engine updates and queries the drive set.
type Engine struct {
	store  *storage.DriveStore
	logger *logging.Logger
	now    func() time.Time
}

// NewEngine creates a drive engine.
func NewEngine(store *storage.DriveStore) *Engine {
	return &Engine{
		store:  store,
		logger: logging.Component("drives"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Tick applies one accumulation/decay step to every drive.
// Within the cooldown window after satisfaction, levels relax one decay step
// toward baseline. Outside it, levels build by the accumulation rate toward
// 1.0.
func (e *Engine) Tick() error {
	all, err := e.store.List()
	if err != nil {
		return err
	}

	now := e.now()
	for _, d := range all {
		inCooldown := d.LastSatisfied != nil && now.Before(d.LastSatisfied.Add(d.SatisfactionCooldown))
		if inCooldown {
			d.CurrentLevel = stepToward(d.CurrentLevel, d.Baseline, d.DecayRate)
		} else {
			d.CurrentLevel = core.ClampRange(d.CurrentLevel+d.AccumulationRate, 0, 1)
		}
		if err := e.store.Save(d); err != nil {
			return err
		}
	}
	return nil
}

// stepToward moves level one step of at most rate toward target.
func stepToward(level, target, rate float64) float64 {
	switch {
	case level > target:
		next := level - rate
		if next < target {
			return target
		}
		return next
	case level < target:
		next := level + rate
		if next > target {
			return target
		}
		return next
	default:
		return level
	}
}

// Satisfy releases pressure on a drive and starts its cooldown.
// The level never drops below baseline.
func (e *Engine) Satisfy(name core.DriveName, amount float64) (*core.Drive, error) {
	d, err := e.store.Get(name)
	if err != nil {
		return nil, err
	}

	reduced := core.ClampRange(d.CurrentLevel-amount, 0, 1)
	if reduced < d.Baseline {
		reduced = d.Baseline
	}
	d.CurrentLevel = reduced

	now := e.now()
	d.LastSatisfied = &now

	if err := e.store.Save(d); err != nil {
		return nil, err
	}
	e.logger.Debug("drive %s satisfied by %.2f, level now %.2f", name, amount, d.CurrentLevel)
	return d, nil
}

// Urgent returns drives at or above the urgency fraction of their threshold.
// A soft signal for decision context only.
func (e *Engine) Urgent() ([]*core.Drive, error) {
	all, err := e.store.List()
	if err != nil {
		return nil, err
	}
	var urgent []*core.Drive
	for _, d := range all {
		if d.CurrentLevel >= urgencyFraction*d.UrgencyThreshold {
			urgent = append(urgent, d)
		}
	}
	return urgent, nil
}

// List returns all drives in seed order.
func (e *Engine) List() ([]*core.Drive, error) {
	return e.store.List()
}

// Get returns one drive by name.
func (e *Engine) Get(name core.DriveName) (*core.Drive, error) {
	return e.store.Get(name)
}
