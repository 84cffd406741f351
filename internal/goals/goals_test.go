package goals

import (
	"testing"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/storage"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := storage.Open(storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewEngine(storage.NewGoalStore(db), ledger.NewStore(db.Conn()), 2)
}

func TestCreateDefaults(t *testing.T) {
	e := testEngine(t)

	g, err := e.Create(&core.Goal{Title: "learn about tides"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.ID == "" {
		t.Error("expected generated id")
	}
	if g.Priority != core.GoalQueued {
		t.Errorf("priority = %q, want queued default", g.Priority)
	}
	if g.Source != core.GoalFromDerived {
		t.Errorf("source = %q, want derived default", g.Source)
	}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	e := testEngine(t)
	if _, err := e.Create(&core.Goal{}); err != core.ErrInvalidInput {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateDowngradesOverCap(t *testing.T) {
	e := testEngine(t)

	for i := 0; i < 2; i++ {
		g, err := e.Create(&core.Goal{Title: "active work", Priority: core.GoalActive})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if g.Priority != core.GoalActive {
			t.Fatalf("goal %d not active", i)
		}
	}

	// Third active goal silently lands in the queue.
	g, err := e.Create(&core.Goal{Title: "one too many", Priority: core.GoalActive})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Priority != core.GoalQueued {
		t.Errorf("priority = %q, want queued downgrade", g.Priority)
	}
}

func TestReprioritizeArchivesTerminalLanes(t *testing.T) {
	e := testEngine(t)
	g, err := e.Create(&core.Goal{Title: "finish essay", Priority: core.GoalActive})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := e.Reprioritize(g.ID, core.GoalCompleted)
	if err != nil {
		t.Fatalf("reprioritize: %v", err)
	}
	if !got.Archived {
		t.Error("completed goal should be archived")
	}

	open, err := e.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, o := range open {
		if o.ID == g.ID {
			t.Error("archived goal still listed as open")
		}
	}
}

func TestReprioritizeIntoFullActiveLaneQueues(t *testing.T) {
	e := testEngine(t)
	for i := 0; i < 2; i++ {
		if _, err := e.Create(&core.Goal{Title: "busy", Priority: core.GoalActive}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	g, err := e.Create(&core.Goal{Title: "waiting", Priority: core.GoalBackburner})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := e.Reprioritize(g.ID, core.GoalActive)
	if err != nil {
		t.Fatalf("reprioritize: %v", err)
	}
	if got.Priority != core.GoalQueued {
		t.Errorf("priority = %q, want queued", got.Priority)
	}
}

func TestReprioritizeRejectsUnknownLane(t *testing.T) {
	e := testEngine(t)
	g, _ := e.Create(&core.Goal{Title: "x"})
	if _, err := e.Reprioritize(g.ID, "urgent"); err != core.ErrInvalidInput {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestProgressAppendsNotes(t *testing.T) {
	e := testEngine(t)
	g, _ := e.Create(&core.Goal{Title: "draft"})

	if _, err := e.Progress(g.ID, "outlined sections"); err != nil {
		t.Fatalf("progress: %v", err)
	}
	got, err := e.Progress(g.ID, "wrote intro")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(got.Progress) != 2 {
		t.Fatalf("progress = %d notes, want 2", len(got.Progress))
	}
	if got.Progress[1].Note != "wrote intro" {
		t.Errorf("note = %q", got.Progress[1].Note)
	}

	if _, err := e.Progress(g.ID, ""); err != core.ErrInvalidInput {
		t.Errorf("empty note err = %v, want ErrInvalidInput", err)
	}
}
