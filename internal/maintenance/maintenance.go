// Package maintenance runs the background pass that keeps the agent's
// internals healthy between heartbeats: memory decay, association cache
// rebuilds, the slow mood blend, and belief readiness scans.
package maintenance

import (
	"context"
	"time"

	"github.com/animus-hq/animus/internal/beliefs"
	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/emotion"
	"github.com/animus-hq/animus/internal/locks"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
)

const lockName = "maintenance-pass"

// Config holds the pass cadence and decay tuning.
type Config struct {
	Interval      time.Duration
	DecayHalfLife time.Duration
	MoodAlpha     float64
	MoodSample    int
}

// DefaultConfig returns the stock maintenance tuning.
func DefaultConfig() Config {
	return Config{
		Interval:      6 * time.Hour,
		DecayHalfLife: 30 * 24 * time.Hour,
		MoodAlpha:     0.2,
		MoodSample:    20,
	}
}

// Report summarizes one maintenance pass.
type Report struct {
	Ran             bool      `json:"ran"`
	Skipped         string    `json:"skipped,omitempty"`
	MemoriesDecayed int       `json:"memories_decayed"`
	ReadyBeliefs    int       `json:"ready_beliefs"`
	StaleEpochID    string    `json:"stale_epoch_id,omitempty"`
	RanAt           time.Time `json:"ran_at"`
}

// Runner executes the periodic pass. It is fully decoupled from the
// heartbeat cadence; any caller may tick it.
type Runner struct {
	states   *storage.StateStore
	memories *memory.Service
	gate     *beliefs.Gate
	locks    *locks.Registry
	cfg      Config
	logger   *logging.Logger
	now      func() time.Time
}

// NewRunner wires a maintenance runner.
func NewRunner(
	states *storage.StateStore,
	memories *memory.Service,
	gate *beliefs.Gate,
	lr *locks.Registry,
	cfg Config,
) *Runner {
	return &Runner{
		states:   states,
		memories: memories,
		gate:     gate,
		locks:    lr,
		cfg:      cfg,
		logger:   logging.Component("maintenance"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunIfDue runs the pass when the interval has elapsed, skipping without
// blocking when another pass already holds the lock or the agent is
// terminated or paused for maintenance.
func (r *Runner) RunIfDue(ctx context.Context) (*Report, error) {
	hb, err := r.states.LoadHeartbeat()
	if err != nil {
		return nil, err
	}
	mt, err := r.states.LoadMaintenance()
	if err != nil {
		return nil, err
	}

	switch {
	case hb.Terminated:
		return &Report{Skipped: "terminated"}, nil
	case mt.IsPaused:
		return &Report{Skipped: "paused"}, nil
	case mt.LastMaintenanceAt != nil && r.now().Before(mt.LastMaintenanceAt.Add(r.cfg.Interval)):
		return &Report{Skipped: "not due"}, nil
	}

	if !r.locks.TryAcquire(lockName) {
		return &Report{Skipped: "already running"}, nil
	}
	defer r.locks.Release(lockName)

	report := &Report{Ran: true, RanAt: r.now()}

	decayed, err := r.memories.Decay(r.cfg.DecayHalfLife)
	if err != nil {
		r.logger.Warn("memory decay failed: %v", err)
	} else {
		report.MemoriesDecayed = decayed
	}

	if err := r.memories.RecomputeAssociations(); err != nil {
		r.logger.Warn("association rebuild failed: %v", err)
	}

	r.blendMood(hb)

	// An epoch older than the heartbeat interval has lost its decider;
	// surface it so an operator can resolve or force a new run.
	if hb.ActiveEpochID != "" && hb.LastRunAt != nil && r.now().Sub(*hb.LastRunAt) > r.cfg.Interval {
		report.StaleEpochID = string(hb.ActiveEpochID)
		r.logger.Warn("epoch %s has been in flight since %s", hb.ActiveEpochID, hb.LastRunAt.Format(time.RFC3339))
	}

	if scan, err := r.gate.ReadinessScan(hb.HeartbeatCount); err != nil {
		r.logger.Warn("readiness scan failed: %v", err)
	} else {
		for _, entry := range scan {
			if entry.Ready {
				report.ReadyBeliefs++
			}
		}
	}

	now := r.now()
	mt.LastMaintenanceAt = &now
	if err := r.states.SaveMaintenance(mt); err != nil {
		return nil, err
	}

	r.logger.Info("maintenance pass done: %d decayed, %d beliefs ready", report.MemoriesDecayed, report.ReadyBeliefs)
	return report, nil
}

// blendMood moves the slow mood baseline toward the average valence of
// recent self-attributed episodes.
func (r *Runner) blendMood(hb *core.HeartbeatState) {
	recent, err := r.memories.Recent(r.cfg.MoodSample)
	if err != nil {
		r.logger.Warn("mood sample failed: %v", err)
		return
	}
	sample := make([]*core.Memory, 0, len(recent))
	for _, m := range recent {
		if m.Category == core.MemoryEpisodic && m.Source == "self" {
			sample = append(sample, m)
		}
	}
	if len(sample) == 0 {
		return
	}

	emotion.UpdateMood(&hb.Affect, sample, r.cfg.MoodAlpha)
	if err := r.states.SaveHeartbeat(hb); err != nil {
		r.logger.Warn("mood not persisted: %v", err)
	}
}
