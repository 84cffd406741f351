package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/emotion"
)

func newID() string { return uuid.New().String() }

// Drive release amounts per action kind.
const (
	satisfyRecall      = 0.2
	satisfyConnect     = 0.15
	satisfyComplete    = 0.2
	satisfyReflect     = 0.1
	satisfyInquiry     = 0.1
	satisfyDeepInquiry = 0.3
	satisfyOutreach    = 0.2
	satisfyRest        = 0.3
)

// registerCatalog assembles the full action catalog. Costs here are the
// defaults; the settings store can override any of them at runtime.
func (d *Dispatcher) registerCatalog() {
	r := d.registry

	r.Register(Definition{Name: "observe", DefaultCost: 0, Handler: d.handleObserve})
	r.Register(Definition{Name: "review_goals", DefaultCost: 0, Handler: d.handleReviewGoals})
	r.Register(Definition{Name: "remember", DefaultCost: 1, Validate: requireParam("content"), Handler: d.handleRemember})
	r.Register(Definition{Name: "recall", DefaultCost: 1, Validate: requireParam("query"), Handler: d.handleRecall})
	r.Register(Definition{Name: "connect", DefaultCost: 1, Validate: requireParam("from", "to"), Handler: d.handleConnect})
	r.Register(Definition{Name: "reprioritize", DefaultCost: 1, Validate: requireParam("goal_id", "priority"), Handler: d.handleReprioritize})
	r.Register(Definition{Name: "reflect", DefaultCost: 2, Handler: d.handleReflect})
	r.Register(Definition{Name: "regulate", DefaultCost: 1, Validate: requireParam("type"), Handler: d.handleRegulate})

	for _, effort := range []string{"contemplate", "meditate", "study", "debate_internally"} {
		r.Register(Definition{Name: effort, DefaultCost: 1, Validate: requireParam("belief_id"), Handler: d.handleContemplation})
	}

	r.Register(Definition{Name: "maintain", DefaultCost: 1, Validate: requireParam("belief_id"), Handler: d.handleMaintain})

	for _, marker := range []string{"mark_turning_point", "begin_chapter", "close_chapter"} {
		r.Register(Definition{Name: marker, DefaultCost: 1, Validate: requireParam("content"), Handler: d.handleNarrative})
	}

	r.Register(Definition{Name: "acknowledge_relationship", DefaultCost: 1, Validate: requireParam("entity"), Handler: d.handleAcknowledgeRelationship})
	r.Register(Definition{Name: "update_trust", DefaultCost: 1, Validate: requireParam("entity"), Handler: d.handleUpdateTrust})
	r.Register(Definition{Name: "reflect_on_relationship", DefaultCost: 2, Validate: requireParam("entity"), Handler: d.handleReflectOnRelationship})
	r.Register(Definition{Name: "resolve_contradiction", DefaultCost: 1, Validate: requireParam("from", "to"), Handler: d.handleResolveContradiction})
	r.Register(Definition{Name: "accept_tension", DefaultCost: 1, Validate: requireParam("from", "to"), Handler: d.handleAcceptTension})

	r.Register(Definition{Name: "brainstorm_goals", DefaultCost: 2, Handler: d.handleBrainstormGoals})
	r.Register(Definition{Name: "inquire_shallow", DefaultCost: 1, Validate: requireParam("question"), Handler: d.handleInquire})
	r.Register(Definition{Name: "inquire_deep", DefaultCost: 3, Validate: requireParam("question"), Handler: d.handleInquire})

	r.Register(Definition{Name: "synthesize", DefaultCost: 2, Risky: true, Validate: requireParam("content"), Handler: d.handleSynthesize})
	r.Register(Definition{Name: "reach_out_user", DefaultCost: 1, Validate: requireParam("content"), Handler: d.handleReachOut})
	r.Register(Definition{Name: "reach_out_public", DefaultCost: 2, Risky: true, Validate: requireParam("content"), Handler: d.handleReachOut})

	r.Register(Definition{Name: "pause_heartbeat", DefaultCost: 0, Validate: requireParam("reason"), Handler: d.handlePause})
	r.Register(Definition{Name: "terminate", DefaultCost: 0, Handler: d.handleTerminate})
	r.Register(Definition{Name: "rest", DefaultCost: 0, Handler: d.handleRest})
}

// handleObserve is a read-only snapshot of the loop's vitals.
func (d *Dispatcher) handleObserve(ctx context.Context, ex *Execution) error {
	driveList, err := d.drives.List()
	if err != nil {
		return err
	}
	levels := make(map[string]float64, len(driveList))
	for _, dr := range driveList {
		levels[string(dr.Name)] = dr.CurrentLevel
	}
	ex.Output["energy"] = ex.State.CurrentEnergy
	ex.Output["heartbeat_count"] = ex.State.HeartbeatCount
	ex.Output["affect"] = ex.State.Affect
	ex.Output["drives"] = levels
	return nil
}

func (d *Dispatcher) handleReviewGoals(ctx context.Context, ex *Execution) error {
	open, err := d.goals.Open()
	if err != nil {
		return err
	}
	summary := make([]map[string]interface{}, 0, len(open))
	for _, g := range open {
		summary = append(summary, map[string]interface{}{
			"id":       string(g.ID),
			"title":    g.Title,
			"priority": string(g.Priority),
		})
	}
	ex.Output["goals"] = summary
	return nil
}

func (d *Dispatcher) handleRemember(ctx context.Context, ex *Execution) error {
	m, err := d.memories.Create(ctx, &core.Memory{
		Category:         core.MemoryEpisodic,
		Content:          ex.Param("content"),
		Importance:       ex.FloatParam("importance", 0),
		EmotionalValence: ex.State.Affect.Valence,
		Source:           "self",
	})
	if err != nil {
		return err
	}
	ex.Output["memory_id"] = string(m.ID)
	return nil
}

func (d *Dispatcher) handleRecall(ctx context.Context, ex *Execution) error {
	limit := int(ex.FloatParam("limit", 5))
	results, err := d.memories.FastRecall(ctx, ex.Param("query"), limit, &ex.State.Affect)
	if err != nil {
		return err
	}
	recalled := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		recalled = append(recalled, map[string]interface{}{
			"memory_id": string(r.Memory.ID),
			"content":   r.Memory.Content,
			"score":     r.Score,
		})
	}
	ex.Output["memories"] = recalled
	d.satisfy(core.DriveCuriosity, satisfyRecall)
	return nil
}

func (d *Dispatcher) handleConnect(ctx context.Context, ex *Execution) error {
	kind := core.EdgeKind(ex.Param("kind"))
	if kind == "" {
		kind = core.EdgeAssociation
	}
	err := d.graph.Upsert(&core.Edge{
		Kind:   kind,
		FromID: ex.Param("from"),
		ToID:   ex.Param("to"),
		Label:  ex.Param("label"),
		Weight: ex.FloatParam("weight", 1.0),
	})
	// Graph writes are auxiliary; a failure is reported, not raised.
	ex.Output["linked"] = err == nil
	if err != nil {
		d.logger.Debug("connect edge skipped: %v", err)
		return nil
	}
	d.satisfy(core.DriveCoherence, satisfyConnect)
	return nil
}

func (d *Dispatcher) handleReprioritize(ctx context.Context, ex *Execution) error {
	to := core.GoalPriority(ex.Param("priority"))
	g, err := d.goals.Reprioritize(core.GoalID(ex.Param("goal_id")), to)
	if err != nil {
		return err
	}
	ex.Output["goal_id"] = string(g.ID)
	ex.Output["priority"] = string(g.Priority)
	if g.Priority == core.GoalCompleted {
		d.satisfy(core.DriveCompetence, satisfyComplete)
	}
	return nil
}

// handleReflect queues a reflect suspension carrying recent context.
func (d *Dispatcher) handleReflect(ctx context.Context, ex *Execution) error {
	recent, err := d.memories.Recent(10)
	if err != nil {
		return err
	}
	snippets := make([]string, 0, len(recent))
	for _, m := range recent {
		snippets = append(snippets, m.Content)
	}
	urgent, _ := d.drives.Urgent()
	pressure := make([]string, 0, len(urgent))
	for _, u := range urgent {
		pressure = append(pressure, string(u.Name))
	}

	d.queueCall(ex, core.CallReflect, map[string]interface{}{
		"topic":           ex.Param("topic"),
		"recent_memories": snippets,
		"urgent_drives":   pressure,
		"affect":          ex.State.Affect,
	})
	d.satisfy(core.DriveCoherence, satisfyReflect)
	return nil
}

// handleRegulate applies one deterministic regulation operator to the
// live affect. The mutated state is saved with the rest of the epoch.
func (d *Dispatcher) handleRegulate(ctx context.Context, ex *Execution) error {
	typ := emotion.RegulateType(ex.Param("type"))
	if err := emotion.Regulate(&ex.State.Affect, typ, ex.Param("target")); err != nil {
		return err
	}
	ex.Output["affect"] = ex.State.Affect
	return nil
}

// handleContemplation logs effort against an open belief exploration.
func (d *Dispatcher) handleContemplation(ctx context.Context, ex *Execution) error {
	beliefID := core.BeliefID(ex.Param("belief_id"))
	b, err := d.gate.RecordEffort(beliefID, ex.Name, core.MemoryID(ex.Param("evidence_id")))
	if err != nil {
		return err
	}
	ex.Output["reflection_count"] = b.Transformation.ReflectionCount

	if _, err := d.memories.Create(ctx, &core.Memory{
		Category: core.MemoryEpisodic,
		Content:  fmt.Sprintf("Spent time in %s on the belief %q", ex.Name, b.Content),
		Source:   "self",
	}); err != nil {
		return err
	}
	return nil
}

// handleMaintain nudges an open belief's confidence.
func (d *Dispatcher) handleMaintain(ctx context.Context, ex *Execution) error {
	return d.gate.AdjustConfidence(
		core.BeliefID(ex.Param("belief_id")),
		ex.FloatParam("confidence", -1),
		ex.FloatParam("delta", 0),
	)
}

// handleNarrative writes a high-importance narrative bookkeeping record.
func (d *Dispatcher) handleNarrative(ctx context.Context, ex *Execution) error {
	m, err := d.memories.Create(ctx, &core.Memory{
		Category:   core.MemoryEpisodic,
		Content:    fmt.Sprintf("[%s] %s", ex.Name, ex.Param("content")),
		Importance: 0.8,
		Source:     "self",
	})
	if err != nil {
		return err
	}
	ex.Output["memory_id"] = string(m.ID)
	return nil
}

func (d *Dispatcher) handleAcknowledgeRelationship(ctx context.Context, ex *Execution) error {
	err := d.graph.Upsert(&core.Edge{
		Kind:   core.EdgeRelationship,
		FromID: "self",
		ToID:   ex.Param("entity"),
		Label:  "knows",
		Weight: ex.FloatParam("strength", 0.5),
	})
	ex.Output["linked"] = err == nil
	return nil
}

func (d *Dispatcher) handleUpdateTrust(ctx context.Context, ex *Execution) error {
	err := d.graph.Upsert(&core.Edge{
		Kind:   core.EdgeRelationship,
		FromID: "self",
		ToID:   ex.Param("entity"),
		Label:  "trusts",
		Weight: core.ClampRange(ex.FloatParam("trust", 0.5), 0, 1),
	})
	ex.Output["linked"] = err == nil
	return nil
}

func (d *Dispatcher) handleReflectOnRelationship(ctx context.Context, ex *Execution) error {
	entity := ex.Param("entity")
	edges, err := d.graph.Neighbors(entity, 10)
	if err != nil {
		d.logger.Debug("relationship neighbors skipped: %v", err)
	}
	d.queueCall(ex, core.CallReflect, map[string]interface{}{
		"topic":      "relationship",
		"entity":     entity,
		"edge_count": len(edges),
	})
	return nil
}

func (d *Dispatcher) handleResolveContradiction(ctx context.Context, ex *Execution) error {
	from, to := ex.Param("from"), ex.Param("to")
	removed := d.graph.Delete(core.EdgeContradiction, from, to, ex.Param("label")) == nil

	m, err := d.memories.Create(ctx, &core.Memory{
		Category: core.MemorySemantic,
		Content:  fmt.Sprintf("Resolved a contradiction: %s", ex.Param("resolution")),
		Source:   "self",
	})
	if err != nil {
		return err
	}
	ex.Output["memory_id"] = string(m.ID)
	ex.Output["edge_removed"] = removed
	d.satisfy(core.DriveCoherence, satisfyConnect)
	return nil
}

func (d *Dispatcher) handleAcceptTension(ctx context.Context, ex *Execution) error {
	m, err := d.memories.Create(ctx, &core.Memory{
		Category: core.MemorySemantic,
		Content:  fmt.Sprintf("Accepted an unresolved tension between %s and %s: %s", ex.Param("from"), ex.Param("to"), ex.Param("note")),
		Source:   "self",
	})
	if err != nil {
		return err
	}
	ex.Output["memory_id"] = string(m.ID)
	return nil
}

func (d *Dispatcher) handleBrainstormGoals(ctx context.Context, ex *Execution) error {
	open, err := d.goals.Open()
	if err != nil {
		return err
	}
	titles := make([]string, 0, len(open))
	for _, g := range open {
		titles = append(titles, g.Title)
	}
	urgent, _ := d.drives.Urgent()
	pressure := make([]string, 0, len(urgent))
	for _, u := range urgent {
		pressure = append(pressure, string(u.Name))
	}
	d.queueCall(ex, core.CallBrainstormGoals, map[string]interface{}{
		"existing_goals": titles,
		"urgent_drives":  pressure,
	})
	return nil
}

func (d *Dispatcher) handleInquire(ctx context.Context, ex *Execution) error {
	depth := "shallow"
	amount := satisfyInquiry
	if ex.Name == "inquire_deep" {
		depth = "deep"
		amount = satisfyDeepInquiry
	}
	d.queueCall(ex, core.CallInquire, map[string]interface{}{
		"question": ex.Param("question"),
		"depth":    depth,
	})
	d.satisfy(core.DriveCuriosity, amount)
	return nil
}

// handleSynthesize creates a semantic record; the boundary check already
// ran pre-charge, so any surviving matches are informational.
func (d *Dispatcher) handleSynthesize(ctx context.Context, ex *Execution) error {
	m, err := d.memories.Create(ctx, &core.Memory{
		Category:   core.MemorySemantic,
		Content:    ex.Param("content"),
		Importance: ex.FloatParam("importance", 0),
		Source:     "self",
	})
	if err != nil {
		return err
	}
	ex.Output["memory_id"] = string(m.ID)
	return nil
}

func (d *Dispatcher) handleReachOut(ctx context.Context, ex *Execution) error {
	kind := core.OutboxUser
	if ex.Name == "reach_out_public" {
		kind = core.OutboxPublic
	}
	ex.Outbox = append(ex.Outbox, core.OutboxMessage{
		MessageID: newID(),
		Kind:      kind,
		Content:   ex.Param("content"),
		CreatedAt: time.Now().UTC(),
	})
	d.satisfy(core.DriveConnection, satisfyOutreach)
	return nil
}

func (d *Dispatcher) handlePause(ctx context.Context, ex *Execution) error {
	notice, err := d.lifecycle.Pause(ex.State, ex.Param("reason"))
	if err != nil {
		return err
	}
	ex.Outbox = append(ex.Outbox, notice)
	ex.Output["paused"] = true
	return nil
}

// handleTerminate queues a confirmation suspension unless pre-confirmed;
// a confirmed call performs the irreversible shutdown.
func (d *Dispatcher) handleTerminate(ctx context.Context, ex *Execution) error {
	if !ex.BoolParam("confirmed") {
		d.queueCall(ex, core.CallTerminationConfirm, map[string]interface{}{
			"reason": ex.Param("reason"),
		})
		ex.Output["confirmation_queued"] = true
		return nil
	}
	farewells, err := d.lifecycle.Terminate(ctx, ex.State)
	if err != nil {
		return err
	}
	ex.Outbox = append(ex.Outbox, farewells...)
	ex.Output["terminated"] = true
	return nil
}

// handleRest deliberately does nothing with the remaining energy.
func (d *Dispatcher) handleRest(ctx context.Context, ex *Execution) error {
	ex.Output["rested"] = true
	d.satisfy(core.DriveRest, satisfyRest)
	return nil
}
