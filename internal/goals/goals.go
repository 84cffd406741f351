// Package goals manages the agent's backlog: creation under an active-count
// cap, priority transitions, progress notes, and archival.
package goals

import (
	"time"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/storage"
)

// Engine owns goal lifecycle rules.
type Engine struct {
	store      *storage.GoalStore
	audit      *ledger.Store
	maxActive  int
	logger     *logging.Logger
}

// NewEngine creates a goal engine. maxActive caps the active lane.
func NewEngine(store *storage.GoalStore, audit *ledger.Store, maxActive int) *Engine {
	if maxActive <= 0 {
		maxActive = 3
	}
	return &Engine{
		store:     store,
		audit:     audit,
		maxActive: maxActive,
		logger:    logging.Component("goals"),
	}
}

// Create inserts a new goal. An active goal over the cap is silently
// downgraded to queued rather than rejected.
func (e *Engine) Create(g *core.Goal) (*core.Goal, error) {
	if g.Title == "" {
		return nil, core.ErrInvalidInput
	}
	if g.Priority == "" {
		g.Priority = core.GoalQueued
	}
	if g.Source == "" {
		g.Source = core.GoalFromDerived
	}

	if g.Priority == core.GoalActive {
		active, err := e.store.CountByPriority(core.GoalActive)
		if err != nil {
			return nil, err
		}
		if active >= e.maxActive {
			g.Priority = core.GoalQueued
			e.logger.Debug("active lane full, goal %q queued", g.Title)
		}
	}

	if err := e.store.Create(g); err != nil {
		return nil, err
	}
	e.audit.Append(ledger.ActionGoalCreated, ledger.ActorAgent, "goal", string(g.ID), map[string]interface{}{
		"title":    g.Title,
		"priority": string(g.Priority),
		"source":   string(g.Source),
	})
	return g, nil
}

// Reprioritize moves a goal to a new lane. Transitions are permissive;
// completed and abandoned archive the goal. A completion into a full
// active lane downgrades to queued like Create.
func (e *Engine) Reprioritize(id core.GoalID, to core.GoalPriority) (*core.Goal, error) {
	switch to {
	case core.GoalActive, core.GoalQueued, core.GoalBackburner, core.GoalCompleted, core.GoalAbandoned:
	default:
		return nil, core.ErrInvalidInput
	}

	g, err := e.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	from := g.Priority

	if to == core.GoalActive && from != core.GoalActive {
		active, err := e.store.CountByPriority(core.GoalActive)
		if err != nil {
			return nil, err
		}
		if active >= e.maxActive {
			to = core.GoalQueued
		}
	}

	g.Priority = to
	g.LastTouched = time.Now().UTC()
	if to == core.GoalCompleted || to == core.GoalAbandoned {
		g.Archived = true
	}

	if err := e.store.Update(g); err != nil {
		return nil, err
	}
	e.audit.Append(ledger.ActionGoalTransitioned, ledger.ActorAgent, "goal", string(g.ID), map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
	return g, nil
}

// Progress appends a note to the goal's progress log.
func (e *Engine) Progress(id core.GoalID, note string) (*core.Goal, error) {
	if note == "" {
		return nil, core.ErrInvalidInput
	}
	g, err := e.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	g.Progress = append(g.Progress, core.ProgressNote{
		Time: time.Now().UTC(),
		Note: note,
	})
	g.LastTouched = time.Now().UTC()
	if err := e.store.Update(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns one goal.
func (e *Engine) Get(id core.GoalID) (*core.Goal, error) {
	return e.store.GetByID(id)
}

// Open returns all non-archived goals.
func (e *Engine) Open() ([]*core.Goal, error) {
	return e.store.ListOpen()
}

// Active returns the active lane.
func (e *Engine) Active() ([]*core.Goal, error) {
	return e.store.ListByPriority(core.GoalActive, e.maxActive)
}

// PurgeAll drops the whole backlog. Used by termination.
func (e *Engine) PurgeAll() error {
	return e.store.PurgeAll()
}
