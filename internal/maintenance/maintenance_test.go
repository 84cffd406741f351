package maintenance

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/animus-hq/animus/internal/beliefs"
	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/graph"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/locks"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
	"github.com/animus-hq/animus/internal/testutil"
)

type fixture struct {
	runner   *Runner
	states   *storage.StateStore
	memories *memory.Service
	locks    *locks.Registry
	db       *storage.DB
}

func testRunner(t *testing.T, cfg Config) fixture {
	t.Helper()
	db, err := storage.Open(storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	states := storage.NewStateStore(db)
	if err := states.InitHeartbeat(10); err != nil {
		t.Fatalf("init: %v", err)
	}

	beliefStore := storage.NewBeliefStore(db)
	goalStore := storage.NewGoalStore(db)
	memoryStore := storage.NewMemoryStore(db)
	settings := storage.NewSettingsStore(db)
	embed := testutil.NewFakeEmbedder()
	index := testutil.NewFakeVectorIndex()
	audit := ledger.NewStore(db.Conn())
	lr := locks.NewRegistry()
	memsvc := memory.NewService(memoryStore, graph.NewStore(db), embed, index, lr)
	gate := beliefs.NewGate(beliefStore, goalStore, memoryStore, settings, memsvc, embed, index, audit)

	return fixture{
		runner:   NewRunner(states, memsvc, gate, lr, cfg),
		states:   states,
		memories: memsvc,
		locks:    lr,
		db:       db,
	}
}

func TestRunIfDueRunsAndStampsState(t *testing.T) {
	f := testRunner(t, DefaultConfig())
	report, err := f.runner.RunIfDue(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Ran {
		t.Fatalf("report = %+v, want ran", report)
	}

	mt, err := f.states.LoadMaintenance()
	if err != nil {
		t.Fatalf("load maintenance: %v", err)
	}
	if mt.LastMaintenanceAt == nil {
		t.Fatal("last maintenance timestamp not set")
	}

	report, err = f.runner.RunIfDue(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Ran || report.Skipped != "not due" {
		t.Fatalf("report = %+v, want not due skip", report)
	}
}

func TestRunIfDueSkipsWhenLockHeld(t *testing.T) {
	f := testRunner(t, DefaultConfig())
	if !f.locks.TryAcquire(lockName) {
		t.Fatal("could not pre-acquire lock")
	}
	defer f.locks.Release(lockName)

	report, err := f.runner.RunIfDue(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Ran || report.Skipped != "already running" {
		t.Fatalf("report = %+v, want lock skip", report)
	}
}

func TestRunIfDueSkipsWhenPausedOrTerminated(t *testing.T) {
	f := testRunner(t, DefaultConfig())

	mt, err := f.states.LoadMaintenance()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mt.IsPaused = true
	if err := f.states.SaveMaintenance(mt); err != nil {
		t.Fatalf("save: %v", err)
	}
	report, err := f.runner.RunIfDue(context.Background())
	if err != nil || report.Skipped != "paused" {
		t.Fatalf("report = %+v err=%v, want paused skip", report, err)
	}

	mt.IsPaused = false
	if err := f.states.SaveMaintenance(mt); err != nil {
		t.Fatalf("save: %v", err)
	}
	hb, err := f.states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("load heartbeat: %v", err)
	}
	hb.Terminated = true
	if err := f.states.SaveHeartbeat(hb); err != nil {
		t.Fatalf("save heartbeat: %v", err)
	}
	report, err = f.runner.RunIfDue(context.Background())
	if err != nil || report.Skipped != "terminated" {
		t.Fatalf("report = %+v err=%v, want terminated skip", report, err)
	}
}

func TestPassDecaysAndBlendsMood(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayHalfLife = time.Hour
	f := testRunner(t, cfg)
	ctx := context.Background()

	m, err := f.memories.Create(ctx, &core.Memory{
		Category:         core.MemoryEpisodic,
		Content:          "a bright unhurried walk",
		Importance:       0.8,
		EmotionalValence: 0.6,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Age the memory two half-lives back.
	old := time.Now().UTC().Add(-2 * time.Hour)
	if _, err := f.db.Conn().Exec(
		`UPDATE memories SET created_at = ?, last_access = NULL WHERE id = ?`,
		old, string(m.ID),
	); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	report, err := f.runner.RunIfDue(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.MemoriesDecayed != 1 {
		t.Fatalf("decayed = %d, want 1", report.MemoriesDecayed)
	}

	// Read relevance directly; Service.Get would bump access and reset it.
	var relevance float64
	if err := f.db.Conn().QueryRow(
		`SELECT relevance FROM memories WHERE id = ?`, string(m.ID),
	).Scan(&relevance); err != nil {
		t.Fatalf("read relevance: %v", err)
	}
	if math.Abs(relevance-0.25) > 0.05 {
		t.Fatalf("relevance = %v, want about 0.25 after two half-lives", relevance)
	}

	hb, err := f.states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("load heartbeat: %v", err)
	}
	if hb.Affect.MoodValence <= 0 {
		t.Fatalf("mood valence = %v, want pulled positive", hb.Affect.MoodValence)
	}
}

func TestPassReportsStaleEpoch(t *testing.T) {
	f := testRunner(t, DefaultConfig())

	hb, err := f.states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	hb.ActiveEpochID = "epoch-stuck"
	old := time.Now().UTC().Add(-24 * time.Hour)
	hb.LastRunAt = &old
	if err := f.states.SaveHeartbeat(hb); err != nil {
		t.Fatalf("save: %v", err)
	}

	report, err := f.runner.RunIfDue(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.StaleEpochID != "epoch-stuck" {
		t.Fatalf("stale epoch = %q, want epoch-stuck", report.StaleEpochID)
	}
}
