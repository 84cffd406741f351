package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/animus-hq/animus/internal/actions"
	"github.com/animus-hq/animus/internal/beliefs"
	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/emotion"
	"github.com/animus-hq/animus/internal/goals"
	"github.com/animus-hq/animus/internal/graph"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
)

// Halt reasons for a batch run. An empty reason means the whole batch
// completed. Action failures use the failure message itself.
const (
	HaltExternalCall = "external_call"
	HaltTerminated   = "terminated"
	HaltPaused       = "paused"
)

// PlannedAction is one entry of a decision's action batch.
type PlannedAction struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// GoalChange is a decision's requested goal transition.
type GoalChange struct {
	GoalID   string `json:"goal_id"`
	Priority string `json:"priority"`
	Note     string `json:"note,omitempty"`
}

// Decision is the resolved heartbeat_decision payload.
type Decision struct {
	Actions     []PlannedAction     `json:"actions"`
	GoalChanges []GoalChange        `json:"goal_changes,omitempty"`
	Reasoning   string              `json:"reasoning,omitempty"`
	Assessment  *emotion.Assessment `json:"emotional_assessment,omitempty"`
}

// RunResult reports a batch run: everything dispatched this round, where
// to resume, and why the run stopped.
type RunResult struct {
	ActionsTaken []core.ActionRecord  `json:"actions_taken"`
	NextIndex    int                  `json:"next_index"`
	PendingCall  *core.ExternalCall   `json:"pending_external_call,omitempty"`
	Outbox       []core.OutboxMessage `json:"outbox_messages,omitempty"`
	HaltReason   string               `json:"halt_reason,omitempty"`
}

// Manager executes decision batches as persisted continuations: the batch
// runs until it completes or suspends, and a suspension leaves next_index
// plus one pending call in HeartbeatState so any later caller can resume.
type Manager struct {
	states     *storage.StateStore
	dispatcher *actions.Dispatcher
	goalEng    *goals.Engine
	memories   *memory.Service
	graph      *graph.Store
	gate       *beliefs.Gate
	control    *Controller
	audit      *ledger.Store
	cfg        Config
	logger     *logging.Logger
	now        func() time.Time
}

// NewManager wires a continuation manager.
func NewManager(
	states *storage.StateStore,
	dispatcher *actions.Dispatcher,
	goalEngine *goals.Engine,
	memories *memory.Service,
	g *graph.Store,
	gate *beliefs.Gate,
	control *Controller,
	audit *ledger.Store,
	cfg Config,
) *Manager {
	return &Manager{
		states:     states,
		dispatcher: dispatcher,
		goalEng:    goalEngine,
		memories:   memories,
		graph:      g,
		gate:       gate,
		control:    control,
		audit:      audit,
		cfg:        cfg,
		logger:     logging.Component("continuation"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run dispatches the batch from startIndex, or from the persisted resume
// point if that is further along. Each completed action is appended to the
// epoch's accumulator before the next one runs, so a halt at any point
// still preserves everything dispatched so far.
//
// A suspending action does not enter the accumulator; its record is
// appended when its call resolves, so one action never appears twice.
func (m *Manager) Run(ctx context.Context, epochID core.EpochID, batch []PlannedAction, startIndex int) (*RunResult, error) {
	st, err := m.states.LoadHeartbeat()
	if err != nil {
		return nil, err
	}
	if st.ActiveEpochID == "" {
		return nil, core.ErrNoActiveEpoch
	}
	if st.ActiveEpochID != epochID {
		return nil, core.ErrEpochMismatch
	}
	// A retried submission must not re-run the suspended action: the
	// outstanding call has to be resolved first, or its id would be
	// orphaned and the action charged twice.
	if st.PendingCall != nil {
		return nil, core.ErrCallOutstanding
	}

	idx := startIndex
	if st.NextIndex > idx {
		idx = st.NextIndex
	}

	out := &RunResult{NextIndex: idx}
	for ; idx < len(batch); idx++ {
		planned := batch[idx]
		res, err := m.dispatcher.Execute(ctx, epochID, planned.Name, planned.Params)
		if err != nil && !actions.IsRejection(err) {
			return nil, err
		}

		rec := res.Record(planned.Params)
		out.Outbox = append(out.Outbox, res.Outbox...)

		// Reload: the dispatcher persisted energy and any pause or
		// termination flag the handler set.
		st, err = m.states.LoadHeartbeat()
		if err != nil {
			return nil, err
		}

		if res.Success && len(res.Calls) > 0 {
			call := res.Calls[0]
			st.PendingCall = &call
			st.NextIndex = idx
			if err := m.states.SaveHeartbeat(st); err != nil {
				return nil, err
			}
			out.NextIndex = idx
			out.PendingCall = &call
			out.HaltReason = HaltExternalCall
			return out, nil
		}

		st.ActiveActions = append(st.ActiveActions, rec)
		st.NextIndex = idx + 1
		if err := m.states.SaveHeartbeat(st); err != nil {
			return nil, err
		}
		out.ActionsTaken = append(out.ActionsTaken, rec)
		out.NextIndex = idx + 1

		if !res.Success {
			out.HaltReason = rec.Error
			if out.HaltReason == "" {
				out.HaltReason = fmt.Sprintf("action %s failed", planned.Name)
			}
			return out, nil
		}
		if st.Terminated {
			out.HaltReason = HaltTerminated
			return out, nil
		}
		if planned.Name == "pause_heartbeat" && st.IsPaused {
			out.HaltReason = HaltPaused
			return out, nil
		}
	}
	return out, nil
}

// ApplyDecision runs the decision's batch and, unless the epoch suspended
// or terminated, finalizes it: goal changes, emotional blend, one
// narrative record, and the next run timestamp.
func (m *Manager) ApplyDecision(ctx context.Context, epochID core.EpochID, decision *Decision, startIndex int) (*RunResult, error) {
	if decision.Reasoning != "" {
		st, err := m.states.LoadHeartbeat()
		if err != nil {
			return nil, err
		}
		if st.ActiveEpochID == epochID {
			st.ActiveReasoning = decision.Reasoning
			if err := m.states.SaveHeartbeat(st); err != nil {
				return nil, err
			}
		}
	}

	run, err := m.Run(ctx, epochID, decision.Actions, startIndex)
	if err != nil {
		return nil, err
	}
	if run.HaltReason == HaltExternalCall {
		return run, nil
	}
	if run.HaltReason == HaltTerminated {
		m.audit.Append(ledger.ActionEpochTerminated, ledger.ActorAgent, "epoch", string(epochID), nil)
		return run, nil
	}

	outcome := m.applyGoalChanges(decision.GoalChanges)
	if err := m.finalize(ctx, epochID, decision.Assessment, outcome); err != nil {
		return nil, err
	}
	return run, nil
}

// applyGoalChanges runs the decision's goal transitions best-effort and
// tallies completions and abandonments for the emotional blend.
func (m *Manager) applyGoalChanges(changes []GoalChange) emotion.EpochOutcome {
	var outcome emotion.EpochOutcome
	for _, ch := range changes {
		g, err := m.goalEng.Reprioritize(core.GoalID(ch.GoalID), core.GoalPriority(ch.Priority))
		if err != nil {
			m.logger.Warn("goal change %s -> %s skipped: %v", ch.GoalID, ch.Priority, err)
			continue
		}
		if ch.Note != "" {
			if _, err := m.goalEng.Progress(g.ID, ch.Note); err != nil {
				m.logger.Debug("goal note skipped: %v", err)
			}
		}
		switch g.Priority {
		case core.GoalCompleted:
			outcome.GoalsCompleted++
		case core.GoalAbandoned:
			outcome.GoalsAbandoned++
		}
	}
	return outcome
}

// finalize closes the epoch: blend the emotional state from what happened,
// write one narrative record covering the whole epoch, clear the active
// fields, and schedule the next run.
func (m *Manager) finalize(ctx context.Context, epochID core.EpochID, assess *emotion.Assessment, outcome emotion.EpochOutcome) error {
	st, err := m.states.LoadHeartbeat()
	if err != nil {
		return err
	}
	if st.ActiveEpochID != epochID {
		return core.ErrEpochMismatch
	}

	for _, rec := range st.ActiveActions {
		if !rec.Success {
			if rec.Error == core.ErrBoundaryRefused.Error() {
				outcome.BoundaryRefusals++
			} else {
				outcome.FailedActions++
			}
			continue
		}
		switch rec.Name {
		case "reach_out_user", "reach_out_public":
			outcome.OutreachSuccess++
		case "rest":
			outcome.Rested = true
		}
	}
	emotion.BlendAfterEpoch(&st.Affect, outcome, assess)

	narrative := m.narrate(st, outcome)
	if _, err := m.memories.Create(ctx, &core.Memory{
		Category:         core.MemoryEpisodic,
		Content:          narrative,
		Importance:       0.6,
		EmotionalValence: st.Affect.Valence,
		Source:           "self",
	}); err != nil {
		m.logger.Warn("epoch narrative not recorded: %v", err)
	}

	taken := len(st.ActiveActions)
	st.ActiveEpochID = ""
	st.ActiveEpochNumber = 0
	st.ActiveActions = nil
	st.ActiveReasoning = ""
	st.NextIndex = 0
	st.PendingCall = nil
	next := m.now().Add(m.cfg.Interval)
	st.NextRunAt = &next
	if err := m.states.SaveHeartbeat(st); err != nil {
		return err
	}

	m.audit.Append(ledger.ActionEpochFinalized, ledger.ActorAgent, "epoch", string(epochID), map[string]interface{}{
		"actions_taken": taken,
		"valence":       st.Affect.Valence,
	})
	m.logger.Info("epoch %s finalized, %d actions, mood %s", epochID, taken, st.Affect.Primary)
	return nil
}

// narrate summarizes the epoch for its episodic record.
func (m *Manager) narrate(st *core.HeartbeatState, outcome emotion.EpochOutcome) string {
	succeeded := 0
	names := make([]string, 0, len(st.ActiveActions))
	for _, rec := range st.ActiveActions {
		if rec.Success {
			succeeded++
		}
		names = append(names, rec.Name)
	}
	s := fmt.Sprintf("Heartbeat %d: took %d actions (%d succeeded)", st.HeartbeatCount, len(names), succeeded)
	if len(names) > 0 {
		s += ": " + strings.Join(names, ", ")
	}
	if outcome.GoalsCompleted > 0 {
		s += fmt.Sprintf("; completed %d goal(s)", outcome.GoalsCompleted)
	}
	if st.ActiveReasoning != "" {
		s += ". Reasoning: " + st.ActiveReasoning
	}
	return s
}
