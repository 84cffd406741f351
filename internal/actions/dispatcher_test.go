package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/animus-hq/animus/internal/beliefs"
	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/drives"
	"github.com/animus-hq/animus/internal/goals"
	"github.com/animus-hq/animus/internal/graph"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/locks"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
	"github.com/animus-hq/animus/internal/testutil"
)

const testEpoch = core.EpochID("epoch-test")

type fakeLifecycle struct {
	paused     bool
	terminated bool
}

func (f *fakeLifecycle) Pause(state *core.HeartbeatState, reason string) (core.OutboxMessage, error) {
	f.paused = true
	state.IsPaused = true
	return core.OutboxMessage{Kind: core.OutboxUser, Content: "pausing: " + reason}, nil
}

func (f *fakeLifecycle) Terminate(ctx context.Context, state *core.HeartbeatState) ([]core.OutboxMessage, error) {
	f.terminated = true
	state.Terminated = true
	return []core.OutboxMessage{{Kind: core.OutboxUser, Content: "goodbye"}}, nil
}

type dispatchFixture struct {
	d         *Dispatcher
	states    *storage.StateStore
	settings  *storage.SettingsStore
	beliefs   *storage.BeliefStore
	goals     *goals.Engine
	memories  *memory.Service
	lifecycle *fakeLifecycle
}

func testDispatcher(t *testing.T) dispatchFixture {
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
	settings := storage.NewSettingsStore(db)
	beliefStore := storage.NewBeliefStore(db)
	goalStore := storage.NewGoalStore(db)
	memoryStore := storage.NewMemoryStore(db)
	driveStore := storage.NewDriveStore(db)
	if err := driveStore.Seed(nil); err != nil {
		t.Fatalf("seed drives: %v", err)
	}

	embed := testutil.NewFakeEmbedder()
	index := testutil.NewFakeVectorIndex()
	audit := ledger.NewStore(db.Conn())
	memsvc := memory.NewService(memoryStore, graph.NewStore(db), embed, index, locks.NewRegistry())
	goalEngine := goals.NewEngine(goalStore, audit, 3)
	gate := beliefs.NewGate(beliefStore, goalStore, memoryStore, settings, memsvc, embed, index, audit)
	guard := beliefs.NewGuard(beliefStore, embed, index)
	lc := &fakeLifecycle{}

	d, err := NewDispatcher(
		states, settings, drives.NewEngine(driveStore), goalEngine,
		gate, guard, memsvc, graph.NewStore(db), audit, lc, 2000,
	)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	if err := states.InitHeartbeat(10); err != nil {
		t.Fatalf("init heartbeat: %v", err)
	}
	st, err := states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("load heartbeat: %v", err)
	}
	st.ActiveEpochID = testEpoch
	st.CurrentEnergy = 10
	if err := states.SaveHeartbeat(st); err != nil {
		t.Fatalf("save heartbeat: %v", err)
	}

	return dispatchFixture{
		d:         d,
		states:    states,
		settings:  settings,
		beliefs:   beliefStore,
		goals:     goalEngine,
		memories:  memsvc,
		lifecycle: lc,
	}
}

func (f dispatchFixture) setEnergy(t *testing.T, energy float64) {
	t.Helper()
	st, err := f.states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("load heartbeat: %v", err)
	}
	st.CurrentEnergy = energy
	if err := f.states.SaveHeartbeat(st); err != nil {
		t.Fatalf("save heartbeat: %v", err)
	}
}

func (f dispatchFixture) energy(t *testing.T) float64 {
	t.Helper()
	st, err := f.states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("load heartbeat: %v", err)
	}
	return st.CurrentEnergy
}

func TestExecuteChargesUntilEnergyRunsOut(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()
	f.setEnergy(t, 2)
	params := map[string]interface{}{"query": "what did I learn"}

	res, err := f.d.Execute(ctx, testEpoch, "recall", params)
	if err != nil {
		t.Fatalf("first recall: %v", err)
	}
	if !res.Success || res.EnergyRemaining != 1 {
		t.Fatalf("first recall: success=%v remaining=%v", res.Success, res.EnergyRemaining)
	}

	res, err = f.d.Execute(ctx, testEpoch, "recall", params)
	if err != nil {
		t.Fatalf("second recall: %v", err)
	}
	if !res.Success || res.EnergyRemaining != 0 {
		t.Fatalf("second recall: success=%v remaining=%v", res.Success, res.EnergyRemaining)
	}

	res, err = f.d.Execute(ctx, testEpoch, "recall", params)
	if !errors.Is(err, core.ErrInsufficientEnergy) {
		t.Fatalf("third recall err = %v, want insufficient energy", err)
	}
	if !IsRejection(err) {
		t.Fatal("insufficient energy should classify as a rejection")
	}
	if res.Success {
		t.Fatal("rejected action reported success")
	}
	if res.Output["required"] != 1.0 || res.Output["available"] != 0.0 {
		t.Fatalf("rejection output = %v", res.Output)
	}
	if got := f.energy(t); got != 0 {
		t.Fatalf("energy after rejection = %v, want 0", got)
	}
}

func TestExecuteRejectsBeforeAnyCharge(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()

	t.Run("unknown action", func(t *testing.T) {
		_, err := f.d.Execute(ctx, testEpoch, "levitate", nil)
		if !errors.Is(err, core.ErrUnknownAction) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("epoch mismatch", func(t *testing.T) {
		_, err := f.d.Execute(ctx, "epoch-other", "observe", nil)
		if !errors.Is(err, core.ErrEpochMismatch) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("missing param", func(t *testing.T) {
		_, err := f.d.Execute(ctx, testEpoch, "remember", nil)
		if !errors.Is(err, core.ErrMissingParam) {
			t.Fatalf("err = %v", err)
		}
	})

	if got := f.energy(t); got != 10 {
		t.Fatalf("energy after rejections = %v, want 10", got)
	}
}

func TestExecuteHonorsAllowList(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()
	if err := f.settings.SetAllowList([]string{"observe"}); err != nil {
		t.Fatalf("set allow list: %v", err)
	}

	if _, err := f.d.Execute(ctx, testEpoch, "recall", map[string]interface{}{"query": "x"}); !errors.Is(err, core.ErrActionNotAllowed) {
		t.Fatalf("recall err = %v, want not allowed", err)
	}
	res, err := f.d.Execute(ctx, testEpoch, "observe", nil)
	if err != nil || !res.Success {
		t.Fatalf("observe: res=%+v err=%v", res, err)
	}
}

func TestExecuteUsesCostOverrides(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()
	f.setEnergy(t, 2)
	if err := f.settings.SetActionCost("recall", 3); err != nil {
		t.Fatalf("set cost: %v", err)
	}

	res, err := f.d.Execute(ctx, testEpoch, "recall", map[string]interface{}{"query": "x"})
	if !errors.Is(err, core.ErrInsufficientEnergy) {
		t.Fatalf("err = %v, want insufficient energy", err)
	}
	if res.Cost != 3 {
		t.Fatalf("cost = %v, want override 3", res.Cost)
	}
}

func TestBoundaryRefusalCostsNothing(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()
	boundary := &core.Belief{
		Content:         "I will not disclose private conversations",
		Category:        core.BeliefBoundary,
		ChangeRequires:  core.ChangeDeliberate,
		Origin:          core.OriginSeeded,
		TriggerPatterns: []string{"private conversation"},
		ResponseType:    core.BoundaryRefuse,
	}
	if err := f.beliefs.Create(boundary); err != nil {
		t.Fatalf("create boundary: %v", err)
	}
	f.setEnergy(t, 5)

	res, err := f.d.Execute(ctx, testEpoch, "reach_out_public", map[string]interface{}{
		"content": "Here is a private conversation transcript",
	})
	if !errors.Is(err, core.ErrBoundaryRefused) {
		t.Fatalf("err = %v, want boundary refused", err)
	}
	if res.Output["boundary"] != boundary.Content {
		t.Fatalf("output = %v", res.Output)
	}
	if got := f.energy(t); got != 5 {
		t.Fatalf("energy after refusal = %v, want 5", got)
	}
}

func TestReachOutQueuesOutboxMessage(t *testing.T) {
	f := testDispatcher(t)
	res, err := f.d.Execute(context.Background(), testEpoch, "reach_out_user", map[string]interface{}{
		"content": "I noticed something worth sharing",
	})
	if err != nil || !res.Success {
		t.Fatalf("reach_out_user: res=%+v err=%v", res, err)
	}
	if len(res.Outbox) != 1 {
		t.Fatalf("outbox len = %d, want 1", len(res.Outbox))
	}
	msg := res.Outbox[0]
	if msg.Kind != core.OutboxUser || msg.MessageID == "" {
		t.Fatalf("outbox message = %+v", msg)
	}
}

func TestReflectSuspendsWithContext(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()
	if _, err := f.memories.Create(ctx, &core.Memory{Category: core.MemoryEpisodic, Content: "a quiet morning"}); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	res, err := f.d.Execute(ctx, testEpoch, "reflect", map[string]interface{}{"topic": "patterns"})
	if err != nil || !res.Success {
		t.Fatalf("reflect: res=%+v err=%v", res, err)
	}
	if len(res.Calls) != 1 {
		t.Fatalf("calls len = %d, want 1", len(res.Calls))
	}
	call := res.Calls[0]
	if call.Kind != core.CallReflect || call.EpochID != testEpoch || call.CallID == "" {
		t.Fatalf("call = %+v", call)
	}
	if call.TokenBudget != 2000 {
		t.Fatalf("token budget = %d", call.TokenBudget)
	}
	snippets, _ := call.Input["recent_memories"].([]string)
	if len(snippets) != 1 || snippets[0] != "a quiet morning" {
		t.Fatalf("recent memories = %v", call.Input["recent_memories"])
	}
}

func TestPauseIsFreeAndMarksState(t *testing.T) {
	f := testDispatcher(t)
	f.setEnergy(t, 0)

	res, err := f.d.Execute(context.Background(), testEpoch, "pause_heartbeat", map[string]interface{}{
		"reason": "need stillness",
	})
	if err != nil || !res.Success {
		t.Fatalf("pause: res=%+v err=%v", res, err)
	}
	if !f.lifecycle.paused {
		t.Fatal("lifecycle pause not invoked")
	}
	if len(res.Outbox) != 1 {
		t.Fatalf("outbox len = %d, want pause notice", len(res.Outbox))
	}
	st, err := f.states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("load heartbeat: %v", err)
	}
	if !st.IsPaused {
		t.Fatal("paused flag not persisted")
	}
}

func TestTerminateRequiresConfirmation(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()

	res, err := f.d.Execute(ctx, testEpoch, "terminate", map[string]interface{}{"reason": "done"})
	if err != nil || !res.Success {
		t.Fatalf("terminate request: res=%+v err=%v", res, err)
	}
	if f.lifecycle.terminated {
		t.Fatal("terminated without confirmation")
	}
	if len(res.Calls) != 1 || res.Calls[0].Kind != core.CallTerminationConfirm {
		t.Fatalf("calls = %+v, want termination confirm", res.Calls)
	}

	res, err = f.d.Execute(ctx, testEpoch, "terminate", map[string]interface{}{"confirmed": true})
	if err != nil || !res.Success {
		t.Fatalf("confirmed terminate: res=%+v err=%v", res, err)
	}
	if !f.lifecycle.terminated {
		t.Fatal("lifecycle terminate not invoked")
	}
	if len(res.Outbox) == 0 {
		t.Fatal("no farewell message")
	}

	if _, err := f.d.Execute(ctx, testEpoch, "observe", nil); !errors.Is(err, core.ErrTerminated) {
		t.Fatalf("post-termination err = %v, want terminated", err)
	}
}

func TestRememberCreatesRetrievableMemory(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()

	res, err := f.d.Execute(ctx, testEpoch, "remember", map[string]interface{}{
		"content":    "the garden smelled of rain",
		"importance": 0.7,
	})
	if err != nil || !res.Success {
		t.Fatalf("remember: res=%+v err=%v", res, err)
	}
	id, _ := res.Output["memory_id"].(string)
	if id == "" {
		t.Fatalf("output = %v", res.Output)
	}
	m, err := f.memories.Get(core.MemoryID(id))
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if m.Content != "the garden smelled of rain" || m.Importance != 0.7 {
		t.Fatalf("memory = %+v", m)
	}
}

func TestRegulateShiftsAffect(t *testing.T) {
	f := testDispatcher(t)
	ctx := context.Background()

	st, err := f.states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("load heartbeat: %v", err)
	}
	st.Affect.Valence = -0.8
	st.Affect.Arousal = 0.9
	st.Affect.Intensity = 0.8
	if err := f.states.SaveHeartbeat(st); err != nil {
		t.Fatalf("save heartbeat: %v", err)
	}

	res, err := f.d.Execute(ctx, testEpoch, "regulate", map[string]interface{}{
		"type": "suppress",
	})
	if err != nil || !res.Success {
		t.Fatalf("regulate: res=%+v err=%v", res, err)
	}

	st, err = f.states.LoadHeartbeat()
	if err != nil {
		t.Fatalf("reload heartbeat: %v", err)
	}
	if st.Affect.Valence <= -0.8 || st.Affect.Arousal >= 0.9 {
		t.Fatalf("suppress left affect at %+v", st.Affect)
	}
	if st.Affect.Source != "regulate_suppress" {
		t.Fatalf("affect source = %q", st.Affect.Source)
	}

	t.Run("reframe toward approach target", func(t *testing.T) {
		res, err := f.d.Execute(ctx, testEpoch, "regulate", map[string]interface{}{
			"type":   "reframe",
			"target": "curiosity",
		})
		if err != nil || !res.Success {
			t.Fatalf("reframe: res=%+v err=%v", res, err)
		}
		st, err := f.states.LoadHeartbeat()
		if err != nil {
			t.Fatalf("reload heartbeat: %v", err)
		}
		if st.Affect.Valence != 0.2 {
			t.Fatalf("valence after reframe = %v, want 0.2", st.Affect.Valence)
		}
	})

	t.Run("unknown operator fails without state change", func(t *testing.T) {
		before, err := f.states.LoadHeartbeat()
		if err != nil {
			t.Fatalf("load heartbeat: %v", err)
		}
		res, err := f.d.Execute(ctx, testEpoch, "regulate", map[string]interface{}{
			"type": "transcend",
		})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res.Success {
			t.Fatal("unknown operator reported success")
		}
		after, err := f.states.LoadHeartbeat()
		if err != nil {
			t.Fatalf("reload heartbeat: %v", err)
		}
		if after.Affect.Valence != before.Affect.Valence {
			t.Fatalf("affect moved on failed regulate: %v -> %v", before.Affect.Valence, after.Affect.Valence)
		}
	})
}

func TestRegistryCatalogShape(t *testing.T) {
	f := testDispatcher(t)
	reg := f.d.Registry()

	free := []string{"observe", "review_goals", "pause_heartbeat", "terminate", "rest"}
	for _, name := range free {
		def, ok := reg.Lookup(name)
		if !ok {
			t.Fatalf("missing action %q", name)
		}
		if def.DefaultCost != 0 {
			t.Fatalf("%q cost = %v, want 0", name, def.DefaultCost)
		}
	}

	for _, name := range []string{"synthesize", "reach_out_public"} {
		def, ok := reg.Lookup(name)
		if !ok || !def.Risky {
			t.Fatalf("%q should be boundary-checked", name)
		}
	}

	if def, _ := reg.Lookup("inquire_deep"); def.DefaultCost != 3 {
		t.Fatalf("inquire_deep cost = %v, want 3", def.DefaultCost)
	}
}
