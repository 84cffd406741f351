// Package beliefs implements the transformation gate and the boundary
// guard. Deliberate beliefs change only through sustained exploration;
// boundaries police outbound content.
package beliefs

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
	"github.com/animus-hq/animus/internal/vectors"
)

// Thresholds gate one (sub)category of deliberate beliefs.
type Thresholds struct {
	MinReflections      int     `json:"min_reflections"`
	MinHeartbeats       int64   `json:"min_heartbeats"`
	EvidenceThreshold   float64 `json:"evidence_threshold"`
	Stability           float64 `json:"stability"`
	MaxChangePerAttempt float64 `json:"max_change_per_attempt"`
}

// DefaultThresholds apply when no per-category override is configured.
var DefaultThresholds = Thresholds{
	MinReflections:      10,
	MinHeartbeats:       20,
	EvidenceThreshold:   0.5,
	Stability:           0.8,
	MaxChangePerAttempt: 0.3,
}

// calibrationEvidenceFloor replaces the configured evidence threshold for
// first self-observation of neutral defaults.
const calibrationEvidenceFloor = 0.7

// effortWeights maps contemplative effort types to reflection increments.
var effortWeights = map[string]int{
	"contemplate":       1,
	"meditate":          1,
	"study":             1,
	"reflect":           1,
	"debate_internally": 2,
}

// UnmetCriterion reports the first gate criterion an attempt failed,
// with current versus required values.
type UnmetCriterion struct {
	Criterion string  `json:"criterion"`
	Current   float64 `json:"current"`
	Required  float64 `json:"required"`
}

func (u *UnmetCriterion) Error() string {
	return fmt.Sprintf("transformation gate: %s %.2f below required %.2f",
		u.Criterion, u.Current, u.Required)
}

func (u *UnmetCriterion) Unwrap() error { return core.ErrGateNotSatisfied }

// Gate mediates deliberate belief change.
type Gate struct {
	beliefs  *storage.BeliefStore
	goals    *storage.GoalStore
	memories *storage.MemoryStore
	settings *storage.SettingsStore
	memsvc   *memory.Service
	embed    memory.Embedder
	index    memory.VectorIndex
	audit    *ledger.Store
	logger   *logging.Logger
}

// NewGate creates a transformation gate.
func NewGate(
	beliefs *storage.BeliefStore,
	goals *storage.GoalStore,
	memories *storage.MemoryStore,
	settings *storage.SettingsStore,
	memsvc *memory.Service,
	embed memory.Embedder,
	index memory.VectorIndex,
	audit *ledger.Store,
) *Gate {
	return &Gate{
		beliefs:  beliefs,
		goals:    goals,
		memories: memories,
		settings: settings,
		memsvc:   memsvc,
		embed:    embed,
		index:    index,
		audit:    audit,
		logger:   logging.Component("beliefs"),
	}
}

// thresholdsFor resolves configured thresholds for a belief, trying
// "category/subcategory" then "category" then the defaults.
func (g *Gate) thresholdsFor(b *core.Belief) Thresholds {
	var configured map[string]Thresholds
	if err := g.settings.Get(storage.KeyTransformThresholds, &configured); err != nil || configured == nil {
		return DefaultThresholds
	}
	if b.Subcategory != "" {
		if t, ok := configured[string(b.Category)+"/"+b.Subcategory]; ok {
			return t
		}
	}
	if t, ok := configured[string(b.Category)]; ok {
		return t
	}
	return DefaultThresholds
}

// effective adjusts thresholds for the calibration path: neutral defaults
// need a tenth of the reflections and a fixed evidence floor.
func effective(t Thresholds, b *core.Belief) Thresholds {
	if b.Origin != core.OriginNeutralDefault {
		return t
	}
	reduced := int(math.Ceil(0.1 * float64(t.MinReflections)))
	if reduced < 1 {
		reduced = 1
	}
	t.MinReflections = reduced
	t.EvidenceThreshold = calibrationEvidenceFloor
	return t
}

// Begin opens an exploration: Dormant to Exploring.
func (g *Gate) Begin(beliefID core.BeliefID, goalID core.GoalID, currentTick int64) (*core.Belief, error) {
	b, err := g.beliefs.GetByID(beliefID)
	if err != nil {
		return nil, err
	}
	if b.ChangeRequires != core.ChangeDeliberate {
		return nil, core.ErrNotDeliberate
	}
	if b.Transformation.ActiveExploration {
		return nil, core.ErrAlreadyExploring
	}
	if _, err := g.goals.GetByID(goalID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b.Transformation = core.TransformationState{
		ActiveExploration:        true,
		GoalID:                   goalID,
		ReflectionCount:          0,
		ContemplationActions:     0,
		EvidenceMemories:         nil,
		FirstQuestionedHeartbeat: currentTick,
		StartedAt:                &now,
	}
	if err := g.beliefs.Update(b); err != nil {
		return nil, err
	}

	g.audit.Append(ledger.ActionBeliefExplored, ledger.ActorAgent, "belief", string(b.ID), map[string]interface{}{
		"goal_id": string(goalID),
		"tick":    currentTick,
	})
	return b, nil
}

// RecordEffort credits one contemplative action toward an open exploration.
func (g *Gate) RecordEffort(beliefID core.BeliefID, effortType string, evidenceID core.MemoryID) (*core.Belief, error) {
	weight, ok := effortWeights[effortType]
	if !ok {
		return nil, core.ErrInvalidInput
	}

	b, err := g.beliefs.GetByID(beliefID)
	if err != nil {
		return nil, err
	}
	if !b.Transformation.ActiveExploration {
		return nil, core.ErrNotExploring
	}

	b.Transformation.ReflectionCount += weight
	b.Transformation.ContemplationActions++
	if evidenceID != "" && !containsMemory(b.Transformation.EvidenceMemories, evidenceID) {
		b.Transformation.EvidenceMemories = append(b.Transformation.EvidenceMemories, evidenceID)
	}

	if err := g.beliefs.Update(b); err != nil {
		return nil, err
	}
	return b, nil
}

func containsMemory(set []core.MemoryID, id core.MemoryID) bool {
	for _, m := range set {
		if m == id {
			return true
		}
	}
	return false
}

// evaluate returns the first unmet criterion, or nil when all pass.
func (g *Gate) evaluate(b *core.Belief, t Thresholds, currentTick int64) *UnmetCriterion {
	ts := b.Transformation
	if ts.ReflectionCount < t.MinReflections {
		return &UnmetCriterion{
			Criterion: "insufficient_reflections",
			Current:   float64(ts.ReflectionCount),
			Required:  float64(t.MinReflections),
		}
	}
	elapsed := currentTick - ts.FirstQuestionedHeartbeat
	if elapsed < t.MinHeartbeats {
		return &UnmetCriterion{
			Criterion: "insufficient_heartbeats",
			Current:   float64(elapsed),
			Required:  float64(t.MinHeartbeats),
		}
	}
	if len(ts.EvidenceMemories) == 0 {
		return &UnmetCriterion{
			Criterion: "no_evidence",
			Current:   0,
			Required:  1,
		}
	}
	quality := g.evidenceQuality(ts.EvidenceMemories)
	if quality < t.EvidenceThreshold {
		return &UnmetCriterion{
			Criterion: "insufficient_evidence_quality",
			Current:   quality,
			Required:  t.EvidenceThreshold,
		}
	}
	return nil
}

// evidenceQuality is the mean of importance x trust over the evidence set.
// Evidence that no longer resolves scores zero.
func (g *Gate) evidenceQuality(ids []core.MemoryID) float64 {
	if len(ids) == 0 {
		return 0
	}
	var sum float64
	for _, id := range ids {
		m, err := g.memories.GetByID(id)
		if err != nil {
			continue
		}
		sum += m.Importance * m.Trust
	}
	return sum / float64(len(ids))
}

// Attempt applies the transformation if every criterion holds. On failure
// the returned error wraps ErrGateNotSatisfied and names the criterion;
// nothing is mutated.
func (g *Gate) Attempt(ctx context.Context, beliefID core.BeliefID, newContent string, currentTick int64) (*core.Belief, error) {
	if newContent == "" {
		return nil, core.ErrInvalidInput
	}
	b, err := g.beliefs.GetByID(beliefID)
	if err != nil {
		return nil, err
	}
	if !b.Transformation.ActiveExploration {
		return nil, core.ErrNotExploring
	}

	t := effective(g.thresholdsFor(b), b)
	if unmet := g.evaluate(b, t, currentTick); unmet != nil {
		return nil, unmet
	}

	old := b.Content
	b.ChangeHistory = append(b.ChangeHistory, core.BeliefChange{
		Time:       time.Now().UTC(),
		OldContent: old,
		NewContent: newContent,
		Reason:     fmt.Sprintf("transformation after %d reflections", b.Transformation.ReflectionCount),
		Heartbeat:  currentTick,
	})
	b.Content = newContent
	b.Origin = core.OriginTransformed
	b.Transformation = core.TransformationState{}

	g.reembed(ctx, b)

	if err := g.beliefs.Update(b); err != nil {
		return nil, err
	}

	// Durable trace of the transformation, outliving any future decay.
	g.memsvc.Create(ctx, &core.Memory{
		Category:   core.MemoryWorldview,
		Content:    fmt.Sprintf("Transformed belief: %q became %q", old, newContent),
		Importance: 0.9,
		Source:     "self",
	})
	g.audit.Append(ledger.ActionBeliefChanged, ledger.ActorAgent, "belief", string(b.ID), map[string]interface{}{
		"old_content": old,
		"new_content": newContent,
		"tick":        currentTick,
	})
	g.logger.Info("belief %s transformed at tick %d", b.ID, currentTick)
	return b, nil
}

// reembed refreshes a boundary belief's vector after content change.
// Non-boundary beliefs carry no vector; failures degrade to lexical-only
// matching.
func (g *Gate) reembed(ctx context.Context, b *core.Belief) {
	if b.Category != core.BeliefBoundary {
		return
	}
	if g.index == nil {
		return
	}
	vec, err := g.embed.Embed(ctx, b.Content)
	if err != nil {
		g.logger.Warn("boundary re-embed failed for %s: %v", b.ID, err)
		b.EmbeddingID = ""
		return
	}
	point := vectors.Point{
		ID:     string(b.ID),
		Vector: vec,
		Payload: map[string]interface{}{
			"response_type": string(b.ResponseType),
			"importance":    b.Importance,
		},
	}
	if err := g.index.Upsert(ctx, vectors.CollectionBoundaries, []vectors.Point{point}); err != nil {
		g.logger.Warn("boundary vector upsert failed for %s: %v", b.ID, err)
		b.EmbeddingID = ""
		return
	}
	b.EmbeddingID = string(b.ID)
}

// Abandon discards an open exploration's progress: Exploring to Dormant.
func (g *Gate) Abandon(ctx context.Context, beliefID core.BeliefID, reason string) (*core.Belief, error) {
	b, err := g.beliefs.GetByID(beliefID)
	if err != nil {
		return nil, err
	}
	if !b.Transformation.ActiveExploration {
		return nil, core.ErrNotExploring
	}

	b.Transformation = core.TransformationState{}
	if err := g.beliefs.Update(b); err != nil {
		return nil, err
	}

	trace := fmt.Sprintf("Abandoned exploration of belief %q", b.Content)
	if reason != "" {
		trace += ": " + reason
	}
	g.memsvc.Create(ctx, &core.Memory{
		Category: core.MemoryEpisodic,
		Content:  trace,
		Source:   "self",
	})
	g.audit.Append(ledger.ActionBeliefAbandoned, ledger.ActorAgent, "belief", string(b.ID), map[string]interface{}{
		"reason": reason,
	})
	return b, nil
}

// AdjustConfidence tunes a belief's confidence without touching its
// content. Pass confidence >= 0 to set an absolute value, or a delta to
// shift the current one. Content changes still go through the gate.
func (g *Gate) AdjustConfidence(beliefID core.BeliefID, confidence, delta float64) error {
	b, err := g.beliefs.GetByID(beliefID)
	if err != nil {
		return err
	}
	if confidence >= 0 {
		b.Confidence = confidence
	} else {
		b.Confidence += delta
	}
	b.Confidence = core.ClampRange(b.Confidence, 0, 1)
	return g.beliefs.Update(b)
}

// Readiness is one entry in the readiness scan report.
type Readiness struct {
	Belief *core.Belief    `json:"belief"`
	Ready  bool            `json:"ready"`
	Unmet  *UnmetCriterion `json:"unmet,omitempty"`
}

// ReadinessScan reports which Exploring beliefs would pass the gate right
// now. Read-only; it never applies a transformation.
func (g *Gate) ReadinessScan(currentTick int64) ([]Readiness, error) {
	exploring, err := g.beliefs.ListExploring()
	if err != nil {
		return nil, err
	}

	report := make([]Readiness, 0, len(exploring))
	for _, b := range exploring {
		t := effective(g.thresholdsFor(b), b)
		unmet := g.evaluate(b, t, currentTick)
		report = append(report, Readiness{Belief: b, Ready: unmet == nil, Unmet: unmet})
	}
	return report, nil
}
