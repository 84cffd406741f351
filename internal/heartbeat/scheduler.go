// Package heartbeat drives the agent's autonomous loop: the interval
// scheduler that opens epochs, the continuation manager that executes
// decision batches across suspend/resume rounds, and the pause and
// termination controller.
package heartbeat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/animus-hq/animus/internal/beliefs"
	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/drives"
	"github.com/animus-hq/animus/internal/goals"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
)

// Config holds the loop's tunables.
type Config struct {
	Interval    time.Duration
	BaseRegen   float64
	TokenBudget int
}

// DefaultConfig returns the stock loop cadence.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Minute,
		BaseRegen:   5,
		TokenBudget: 4000,
	}
}

// Scheduler decides when an epoch is due and opens it. It never makes the
// decision itself; opening an epoch emits a heartbeat_decision call whose
// resolution arrives through the continuation manager.
type Scheduler struct {
	states   *storage.StateStore
	drives   *drives.Engine
	goalEng  *goals.Engine
	memories *memory.Service
	gate     *beliefs.Gate
	audit    *ledger.Store
	cfg      Config
	logger   *logging.Logger
	now      func() time.Time
}

// NewScheduler wires a scheduler.
func NewScheduler(
	states *storage.StateStore,
	driveEngine *drives.Engine,
	goalEngine *goals.Engine,
	memories *memory.Service,
	gate *beliefs.Gate,
	audit *ledger.Store,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		states:   states,
		drives:   driveEngine,
		goalEng:  goalEngine,
		memories: memories,
		gate:     gate,
		audit:    audit,
		cfg:      cfg,
		logger:   logging.Component("heartbeat"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ShouldRun reports whether an epoch is due right now.
func (s *Scheduler) ShouldRun() (bool, error) {
	st, err := s.states.LoadHeartbeat()
	if err != nil {
		return false, err
	}
	mt, err := s.states.LoadMaintenance()
	if err != nil {
		return false, err
	}

	switch {
	case st.Terminated:
		return false, nil
	case !st.Initialized():
		return false, nil
	case st.IsPaused || mt.IsPaused:
		return false, nil
	case st.LastRunAt == nil:
		return true, nil
	}
	return !s.now().Before(st.LastRunAt.Add(s.cfg.Interval)), nil
}

// Start opens a new epoch: regenerate energy, advance the drives one tick,
// and emit the decision call carrying a context snapshot. No action runs
// here; the caller resolves the call and submits the decision through
// Manager.ApplyDecision.
//
// A still-open epoch blocks a second Start. Two racing ticks would
// otherwise both open an epoch against the same singleton row.
func (s *Scheduler) Start(ctx context.Context) (*core.ExternalCall, error) {
	st, err := s.states.LoadHeartbeat()
	if err != nil {
		return nil, err
	}
	mt, err := s.states.LoadMaintenance()
	if err != nil {
		return nil, err
	}

	switch {
	case st.Terminated:
		return nil, core.ErrTerminated
	case !st.Initialized():
		return nil, core.ErrNotInitialized
	case st.IsPaused || mt.IsPaused:
		return nil, core.ErrPaused
	case st.ActiveEpochID != "":
		return nil, core.ErrEpochInFlight
	}

	now := s.now()
	st.CurrentEnergy = core.ClampRange(st.CurrentEnergy+s.cfg.BaseRegen, 0, st.MaxEnergy)
	st.HeartbeatCount++
	st.ActiveEpochID = core.EpochID(uuid.New().String())
	st.ActiveEpochNumber = st.HeartbeatCount
	st.ActiveActions = nil
	st.ActiveReasoning = ""
	st.NextIndex = 0
	st.PendingCall = nil
	st.LastRunAt = &now
	if err := s.states.SaveHeartbeat(st); err != nil {
		return nil, err
	}

	if err := s.drives.Tick(); err != nil {
		s.logger.Warn("drive tick failed: %v", err)
	}

	snapshot, err := s.contextSnapshot(st)
	if err != nil {
		s.logger.Warn("context snapshot incomplete: %v", err)
	}

	call := &core.ExternalCall{
		CallID:      core.CallID(uuid.New().String()),
		Kind:        core.CallHeartbeatDecision,
		EpochID:     st.ActiveEpochID,
		Input:       snapshot,
		TokenBudget: s.cfg.TokenBudget,
		CreatedAt:   now,
	}

	s.audit.Append(ledger.ActionEpochOpened, ledger.ActorAgent, "epoch", string(st.ActiveEpochID), map[string]interface{}{
		"heartbeat_count": st.HeartbeatCount,
		"energy":          st.CurrentEnergy,
	})
	s.logger.Info("epoch %s opened, heartbeat %d, energy %.1f", st.ActiveEpochID, st.HeartbeatCount, st.CurrentEnergy)
	return call, nil
}

// contextSnapshot gathers the decision context: vitals, drive pressure,
// open goals, recent memories, and which explored beliefs are ready to
// transform. Partial snapshots are acceptable; the first error is
// returned for logging but whatever was gathered ships.
func (s *Scheduler) contextSnapshot(st *core.HeartbeatState) (map[string]interface{}, error) {
	snap := map[string]interface{}{
		"epoch_id":        string(st.ActiveEpochID),
		"epoch_number":    st.ActiveEpochNumber,
		"energy":          st.CurrentEnergy,
		"max_energy":      st.MaxEnergy,
		"heartbeat_count": st.HeartbeatCount,
		"affect":          st.Affect,
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if list, err := s.drives.List(); err != nil {
		keep(err)
	} else {
		levels := make(map[string]float64, len(list))
		for _, d := range list {
			levels[string(d.Name)] = d.CurrentLevel
		}
		snap["drives"] = levels
	}
	if urgent, err := s.drives.Urgent(); err != nil {
		keep(err)
	} else {
		names := make([]string, 0, len(urgent))
		for _, d := range urgent {
			names = append(names, string(d.Name))
		}
		snap["urgent_drives"] = names
	}

	if open, err := s.goalEng.Open(); err != nil {
		keep(err)
	} else {
		summaries := make([]map[string]interface{}, 0, len(open))
		for _, g := range open {
			summaries = append(summaries, map[string]interface{}{
				"id":       string(g.ID),
				"title":    g.Title,
				"priority": string(g.Priority),
			})
		}
		snap["open_goals"] = summaries
	}

	if recent, err := s.memories.Recent(10); err != nil {
		keep(err)
	} else {
		snippets := make([]string, 0, len(recent))
		for _, m := range recent {
			snippets = append(snippets, m.Content)
		}
		snap["recent_memories"] = snippets
	}

	if report, err := s.gate.ReadinessScan(st.HeartbeatCount); err != nil {
		keep(err)
	} else {
		ready := make([]string, 0)
		for _, r := range report {
			if r.Ready {
				ready = append(ready, string(r.Belief.ID))
			}
		}
		snap["transformable_beliefs"] = ready
	}

	return snap, firstErr
}
