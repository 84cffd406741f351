package beliefs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/graph"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/locks"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
	"github.com/animus-hq/animus/internal/testutil"
)

type gateFixture struct {
	gate     *Gate
	guard    *Guard
	beliefs  *storage.BeliefStore
	goals    *storage.GoalStore
	memories *storage.MemoryStore
	embed    *testutil.FakeEmbedder
	index    *testutil.FakeVectorIndex
}

func testGate(t *testing.T) gateFixture {
	t.Helper()
	db, err := storage.Open(storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	beliefStore := storage.NewBeliefStore(db)
	goalStore := storage.NewGoalStore(db)
	memoryStore := storage.NewMemoryStore(db)
	settings := storage.NewSettingsStore(db)
	embed := testutil.NewFakeEmbedder()
	index := testutil.NewFakeVectorIndex()
	memsvc := memory.NewService(memoryStore, graph.NewStore(db), embed, index, locks.NewRegistry())
	audit := ledger.NewStore(db.Conn())

	return gateFixture{
		gate:     NewGate(beliefStore, goalStore, memoryStore, settings, memsvc, embed, index, audit),
		guard:    NewGuard(beliefStore, embed, index),
		beliefs:  beliefStore,
		goals:    goalStore,
		memories: memoryStore,
		embed:    embed,
		index:    index,
	}
}

func (f gateFixture) seedBelief(t *testing.T, b *core.Belief) *core.Belief {
	t.Helper()
	if b.Content == "" {
		b.Content = "I value honesty above comfort"
	}
	if b.Category == "" {
		b.Category = core.BeliefValue
	}
	if b.ChangeRequires == "" {
		b.ChangeRequires = core.ChangeDeliberate
	}
	if b.Origin == "" {
		b.Origin = core.OriginSeeded
	}
	if err := f.beliefs.Create(b); err != nil {
		t.Fatalf("create belief: %v", err)
	}
	return b
}

func (f gateFixture) seedGoal(t *testing.T) *core.Goal {
	t.Helper()
	g := &core.Goal{
		Title:    "re-examine honesty",
		Priority: core.GoalActive,
		Source:   core.GoalFromIdentity,
	}
	if err := f.goals.Create(g); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return g
}

func (f gateFixture) seedEvidence(t *testing.T, importance, trust float64) core.MemoryID {
	t.Helper()
	m := &core.Memory{
		ID:         core.MemoryID(uuid.New().String()),
		Category:   core.MemorySemantic,
		Content:    "observed evidence",
		Importance: importance,
		Trust:      trust,
		Relevance:  1.0,
	}
	if err := f.memories.Create(m); err != nil {
		t.Fatalf("create evidence: %v", err)
	}
	return m.ID
}

func TestBeginRequiresDeliberateFlag(t *testing.T) {
	f := testGate(t)
	b := f.seedBelief(t, &core.Belief{ChangeRequires: core.ChangeOpen})
	goal := f.seedGoal(t)

	if _, err := f.gate.Begin(b.ID, goal.ID, 5); err != core.ErrNotDeliberate {
		t.Errorf("err = %v, want ErrNotDeliberate", err)
	}
}

func TestBeginRequiresExistingGoal(t *testing.T) {
	f := testGate(t)
	b := f.seedBelief(t, &core.Belief{})
	if _, err := f.gate.Begin(b.ID, "missing", 5); err != core.ErrRecordNotFound {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestBeginRejectsDoubleExploration(t *testing.T) {
	f := testGate(t)
	b := f.seedBelief(t, &core.Belief{})
	goal := f.seedGoal(t)

	if _, err := f.gate.Begin(b.ID, goal.ID, 5); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.gate.Begin(b.ID, goal.ID, 6); err != core.ErrAlreadyExploring {
		t.Errorf("err = %v, want ErrAlreadyExploring", err)
	}
}

func TestRecordEffortWeights(t *testing.T) {
	f := testGate(t)
	b := f.seedBelief(t, &core.Belief{})
	goal := f.seedGoal(t)
	if _, err := f.gate.Begin(b.ID, goal.ID, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}

	got, err := f.gate.RecordEffort(b.ID, "contemplate", "")
	if err != nil {
		t.Fatalf("effort: %v", err)
	}
	if got.Transformation.ReflectionCount != 1 {
		t.Errorf("count = %d, want 1", got.Transformation.ReflectionCount)
	}

	got, err = f.gate.RecordEffort(b.ID, "debate_internally", "")
	if err != nil {
		t.Fatalf("effort: %v", err)
	}
	if got.Transformation.ReflectionCount != 3 {
		t.Errorf("count = %d, want 3 after internal debate", got.Transformation.ReflectionCount)
	}
	if got.Transformation.ContemplationActions != 2 {
		t.Errorf("actions = %d, want 2", got.Transformation.ContemplationActions)
	}
}

func TestRecordEffortDeduplicatesEvidence(t *testing.T) {
	f := testGate(t)
	b := f.seedBelief(t, &core.Belief{})
	goal := f.seedGoal(t)
	if _, err := f.gate.Begin(b.ID, goal.ID, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	ev := f.seedEvidence(t, 0.8, 0.9)

	if _, err := f.gate.RecordEffort(b.ID, "study", ev); err != nil {
		t.Fatalf("effort: %v", err)
	}
	got, err := f.gate.RecordEffort(b.ID, "study", ev)
	if err != nil {
		t.Fatalf("effort: %v", err)
	}
	if len(got.Transformation.EvidenceMemories) != 1 {
		t.Errorf("evidence = %d, want 1 (deduplicated)", len(got.Transformation.EvidenceMemories))
	}
}

func TestRecordEffortRejectsUnknownTypeAndDormant(t *testing.T) {
	f := testGate(t)
	b := f.seedBelief(t, &core.Belief{})

	if _, err := f.gate.RecordEffort(b.ID, "procrastinate", ""); err != core.ErrInvalidInput {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.gate.RecordEffort(b.ID, "reflect", ""); err != core.ErrNotExploring {
		t.Errorf("err = %v, want ErrNotExploring", err)
	}
}

// driveToReady pushes an exploration past every default criterion.
func (f gateFixture) driveToReady(t *testing.T, b *core.Belief, goal *core.Goal) {
	t.Helper()
	if _, err := f.gate.Begin(b.ID, goal.ID, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	ev := f.seedEvidence(t, 0.9, 0.9)
	for i := 0; i < DefaultThresholds.MinReflections; i++ {
		if _, err := f.gate.RecordEffort(b.ID, "reflect", ev); err != nil {
			t.Fatalf("effort: %v", err)
		}
	}
}

func TestAttemptFailsEachCriterionInOrder(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()
	b := f.seedBelief(t, &core.Belief{})
	goal := f.seedGoal(t)
	if _, err := f.gate.Begin(b.ID, goal.ID, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}

	// Not enough reflections.
	_, err := f.gate.Attempt(ctx, b.ID, "new content", 100)
	var unmet *UnmetCriterion
	if !errors.As(err, &unmet) || unmet.Criterion != "insufficient_reflections" {
		t.Fatalf("err = %v, want reflection_count criterion", err)
	}
	if !errors.Is(err, core.ErrGateNotSatisfied) {
		t.Error("expected ErrGateNotSatisfied sentinel")
	}

	// Enough reflections, not enough elapsed heartbeats.
	for i := 0; i < DefaultThresholds.MinReflections; i++ {
		if _, err := f.gate.RecordEffort(b.ID, "reflect", ""); err != nil {
			t.Fatalf("effort: %v", err)
		}
	}
	_, err = f.gate.Attempt(ctx, b.ID, "new content", 5)
	if !errors.As(err, &unmet) || unmet.Criterion != "insufficient_heartbeats" {
		t.Fatalf("err = %v, want elapsed_heartbeats criterion", err)
	}

	// Enough heartbeats, empty evidence.
	_, err = f.gate.Attempt(ctx, b.ID, "new content", 100)
	if !errors.As(err, &unmet) || unmet.Criterion != "no_evidence" {
		t.Fatalf("err = %v, want evidence_count criterion", err)
	}

	// Weak evidence.
	weak := f.seedEvidence(t, 0.2, 0.2)
	if _, err := f.gate.RecordEffort(b.ID, "study", weak); err != nil {
		t.Fatalf("effort: %v", err)
	}
	_, err = f.gate.Attempt(ctx, b.ID, "new content", 100)
	if !errors.As(err, &unmet) || unmet.Criterion != "insufficient_evidence_quality" {
		t.Fatalf("err = %v, want evidence_quality criterion", err)
	}

	// Failure never mutates.
	got, _ := f.beliefs.GetByID(b.ID)
	if got.Content != b.Content || !got.Transformation.ActiveExploration {
		t.Error("failed attempt mutated belief")
	}
}

func TestAttemptSucceedsAndResets(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()
	b := f.seedBelief(t, &core.Belief{})
	goal := f.seedGoal(t)
	f.driveToReady(t, b, goal)

	got, err := f.gate.Attempt(ctx, b.ID, "honesty needs kindness to matter", 100)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if got.Content != "honesty needs kindness to matter" {
		t.Errorf("content = %q", got.Content)
	}
	if got.Transformation.ActiveExploration {
		t.Error("expected dormant after transformation")
	}
	if got.Origin != core.OriginTransformed {
		t.Errorf("origin = %q, want transformed", got.Origin)
	}
	if len(got.ChangeHistory) != 1 {
		t.Fatalf("history = %d entries, want 1", len(got.ChangeHistory))
	}
	if got.ChangeHistory[0].Heartbeat != 100 {
		t.Errorf("history heartbeat = %d", got.ChangeHistory[0].Heartbeat)
	}

	// A durable summary record was written.
	recent, err := f.memories.GetRecent(5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	found := false
	for _, m := range recent {
		if m.Category == core.MemoryWorldview && m.Importance == 0.9 {
			found = true
		}
	}
	if !found {
		t.Error("expected durable summary record")
	}
}

func TestCalibrationPathForNeutralDefaults(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()
	b := f.seedBelief(t, &core.Belief{Origin: core.OriginNeutralDefault})
	goal := f.seedGoal(t)
	if _, err := f.gate.Begin(b.ID, goal.ID, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}

	// One reflection satisfies 10% of the default ten. Evidence must meet
	// the fixed 0.7 calibration floor.
	strong := f.seedEvidence(t, 0.9, 0.9)
	if _, err := f.gate.RecordEffort(b.ID, "reflect", strong); err != nil {
		t.Fatalf("effort: %v", err)
	}

	got, err := f.gate.Attempt(ctx, b.ID, "I notice I prefer direct speech", 100)
	if err != nil {
		t.Fatalf("calibration attempt: %v", err)
	}
	if got.Origin != core.OriginTransformed {
		t.Errorf("origin = %q", got.Origin)
	}
}

func TestCalibrationStillNeedsStrongEvidence(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()
	b := f.seedBelief(t, &core.Belief{Origin: core.OriginNeutralDefault})
	goal := f.seedGoal(t)
	if _, err := f.gate.Begin(b.ID, goal.ID, 0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// 0.8 x 0.8 = 0.64, below the 0.7 calibration floor.
	weak := f.seedEvidence(t, 0.8, 0.8)
	if _, err := f.gate.RecordEffort(b.ID, "reflect", weak); err != nil {
		t.Fatalf("effort: %v", err)
	}

	_, err := f.gate.Attempt(ctx, b.ID, "new", 100)
	var unmet *UnmetCriterion
	if !errors.As(err, &unmet) || unmet.Criterion != "insufficient_evidence_quality" {
		t.Fatalf("err = %v, want evidence_quality", err)
	}
	if unmet.Required != calibrationEvidenceFloor {
		t.Errorf("required = %v, want %v", unmet.Required, calibrationEvidenceFloor)
	}
}

func TestAbandonDiscardsProgress(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()
	b := f.seedBelief(t, &core.Belief{})
	goal := f.seedGoal(t)
	f.driveToReady(t, b, goal)

	got, err := f.gate.Abandon(ctx, b.ID, "no longer in question")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if got.Transformation.ActiveExploration {
		t.Error("expected dormant")
	}
	if got.Transformation.ReflectionCount != 0 {
		t.Error("expected progress discarded")
	}
	if got.Content != b.Content {
		t.Error("abandon must not change content")
	}

	if _, err := f.gate.Abandon(ctx, b.ID, ""); err != core.ErrNotExploring {
		t.Errorf("second abandon err = %v, want ErrNotExploring", err)
	}
}

func TestReadinessScan(t *testing.T) {
	f := testGate(t)
	ready := f.seedBelief(t, &core.Belief{Content: "ready belief"})
	notReady := f.seedBelief(t, &core.Belief{Content: "fresh belief"})
	goal := f.seedGoal(t)

	f.driveToReady(t, ready, goal)
	if _, err := f.gate.Begin(notReady.ID, goal.ID, 90); err != nil {
		t.Fatalf("begin: %v", err)
	}

	report, err := f.gate.ReadinessScan(100)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("report = %d entries, want 2", len(report))
	}
	for _, r := range report {
		switch r.Belief.ID {
		case ready.ID:
			if !r.Ready {
				t.Errorf("ready belief reported unmet: %+v", r.Unmet)
			}
		case notReady.ID:
			if r.Ready {
				t.Error("fresh belief reported ready")
			}
		}
	}

	// The scan never applies transformations.
	got, _ := f.beliefs.GetByID(ready.ID)
	if !got.Transformation.ActiveExploration {
		t.Error("scan mutated exploration state")
	}
}
