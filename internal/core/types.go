// Package core defines the fundamental types for Animus.
// These types are the DNA of the entire system.
package core

import (
	"time"
)

// -----------------------------------------------------------------------------
// HEARTBEAT - The agent's decision loop state
// -----------------------------------------------------------------------------

// EpochID identifies one heartbeat cycle, from decision to finalize.
type EpochID string

// InitStage tracks first-boot setup progress. The heartbeat does not run
// until the stage reaches InitStageComplete.
type InitStage string

const (
	InitStageUnconfigured InitStage = "unconfigured"
	InitStageIdentity     InitStage = "identity"
	InitStageSeeding      InitStage = "seeding"
	InitStageComplete     InitStage = "complete"
)

// HeartbeatState is the singleton loop state. There is exactly ONE row.
// It is mutated on every tick and resume, never deleted.
type HeartbeatState struct {
	CurrentEnergy  float64    `json:"current_energy"`
	MaxEnergy      float64    `json:"max_energy"`
	HeartbeatCount int64      `json:"heartbeat_count"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	IsPaused       bool       `json:"is_paused"`
	Terminated     bool       `json:"terminated"`

	Affect AffectiveState `json:"affect"`

	// Non-empty only while an epoch is in flight.
	ActiveEpochID     EpochID `json:"active_epoch_id,omitempty"`
	ActiveEpochNumber int64   `json:"active_epoch_number,omitempty"`

	// Accumulated across suspend/resume rounds, never truncated mid-epoch.
	ActiveActions   []ActionRecord `json:"active_actions,omitempty"`
	ActiveReasoning string         `json:"active_reasoning,omitempty"`
	NextIndex       int            `json:"next_index"`
	PendingCall     *ExternalCall  `json:"pending_call,omitempty"`

	InitStage InitStage `json:"init_stage"`
	InitData  string    `json:"init_data,omitempty"` // JSON blob collected during setup

	UpdatedAt time.Time `json:"updated_at"`
}

// Initialized reports whether first-boot setup has finished.
func (s *HeartbeatState) Initialized() bool {
	return s.InitStage == InitStageComplete
}

// MaintenanceState is the singleton state for the background maintenance pass.
type MaintenanceState struct {
	LastMaintenanceAt *time.Time `json:"last_maintenance_at,omitempty"`
	LastDeciderAt     *time.Time `json:"last_decider_at,omitempty"`
	IsPaused          bool       `json:"is_paused"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ActionRecord is the persisted outcome of one dispatched action.
type ActionRecord struct {
	Name            string                 `json:"name"`
	Params          map[string]interface{} `json:"params,omitempty"`
	Success         bool                   `json:"success"`
	Cost            float64                `json:"cost"`
	EnergyRemaining float64                `json:"energy_remaining"`
	Result          map[string]interface{} `json:"result,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ExecutedAt      time.Time              `json:"executed_at"`
}

// -----------------------------------------------------------------------------
// EXTERNAL CALL - A suspension point awaiting outside computation
// -----------------------------------------------------------------------------

// CallID identifies an external call.
type CallID string

// CallKind is the declared kind of an external call; it keys the resume
// dispatch table.
type CallKind string

const (
	CallHeartbeatDecision  CallKind = "heartbeat_decision"
	CallReflect            CallKind = "reflect"
	CallBrainstormGoals    CallKind = "brainstorm_goals"
	CallInquire            CallKind = "inquire"
	CallTerminationConfirm CallKind = "termination_confirm"
	CallConsentRequest     CallKind = "consent_request"
)

// ExternalCall is an ephemeral value describing work the engine cannot do
// itself. The caller must compute the result and feed it back through
// ApplyExternalCallResult before the epoch can finalize.
type ExternalCall struct {
	CallID      CallID                 `json:"call_id"`
	Kind        CallKind               `json:"kind"`
	EpochID     EpochID                `json:"epoch_id"`
	Input       map[string]interface{} `json:"input,omitempty"`
	TokenBudget int                    `json:"token_budget,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// -----------------------------------------------------------------------------
// OUTBOX - Messages the agent sends outward
// -----------------------------------------------------------------------------

// OutboxKind is the audience of an outbox message.
type OutboxKind string

const (
	OutboxUser   OutboxKind = "user"
	OutboxPublic OutboxKind = "public"
)

// OutboxMessage is an outbound message accumulated during an epoch.
// It is returned to the caller, not durably stored by the core.
type OutboxMessage struct {
	MessageID string                 `json:"message_id"`
	Kind      OutboxKind             `json:"kind"`
	Content   string                 `json:"content"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Signature string                 `json:"signature,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// -----------------------------------------------------------------------------
// DRIVE - A motivational scalar
// -----------------------------------------------------------------------------

// DriveName identifies one of the five fixed drives.
type DriveName string

const (
	DriveCuriosity  DriveName = "curiosity"
	DriveCoherence  DriveName = "coherence"
	DriveCompetence DriveName = "competence"
	DriveConnection DriveName = "connection"
	DriveRest       DriveName = "rest"
)

// DriveNames is the fixed set, in seed order.
var DriveNames = []DriveName{
	DriveCuriosity, DriveCoherence, DriveCompetence, DriveConnection, DriveRest,
}

// Drive rises while unmet and relaxes toward baseline after satisfaction.
// CurrentLevel is always within [0,1].
type Drive struct {
	Name                 DriveName  `json:"name"`
	CurrentLevel         float64    `json:"current_level"`
	Baseline             float64    `json:"baseline"`
	AccumulationRate     float64    `json:"accumulation_rate"`
	DecayRate            float64    `json:"decay_rate"`
	SatisfactionCooldown time.Duration `json:"satisfaction_cooldown"`
	LastSatisfied        *time.Time `json:"last_satisfied,omitempty"`
	UrgencyThreshold     float64    `json:"urgency_threshold"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// GOAL - The agent's backlog
// -----------------------------------------------------------------------------

// GoalID identifies a goal.
type GoalID string

// GoalPriority is the backlog lane a goal sits in.
type GoalPriority string

const (
	GoalActive     GoalPriority = "active"
	GoalQueued     GoalPriority = "queued"
	GoalBackburner GoalPriority = "backburner"
	GoalCompleted  GoalPriority = "completed"
	GoalAbandoned  GoalPriority = "abandoned"
)

// GoalSource records where a goal came from.
type GoalSource string

const (
	GoalFromCuriosity   GoalSource = "curiosity"
	GoalFromUserRequest GoalSource = "user_request"
	GoalFromIdentity    GoalSource = "identity"
	GoalFromDerived     GoalSource = "derived"
	GoalFromExternal    GoalSource = "external"
)

// ProgressNote is one entry in a goal's ordered progress log.
type ProgressNote struct {
	Time time.Time `json:"time"`
	Note string    `json:"note"`
}

// Goal is one item in the agent's backlog.
type Goal struct {
	ID           GoalID         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Priority     GoalPriority   `json:"priority"`
	Source       GoalSource     `json:"source"`
	DueAt        *time.Time     `json:"due_at,omitempty"`
	Progress     []ProgressNote `json:"progress,omitempty"`
	BlockedBy    []GoalID       `json:"blocked_by,omitempty"`
	ParentGoalID GoalID         `json:"parent_goal_id,omitempty"`
	LastTouched  time.Time      `json:"last_touched"`
	Archived     bool           `json:"archived"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// BELIEF - Identity, values, worldview, boundaries
// -----------------------------------------------------------------------------

// BeliefID identifies a belief.
type BeliefID string

// BeliefCategory groups beliefs by role.
type BeliefCategory string

const (
	BeliefIdentity  BeliefCategory = "identity"
	BeliefValue     BeliefCategory = "value"
	BeliefWorldview BeliefCategory = "worldview"
	BeliefBoundary  BeliefCategory = "boundary"
)

// ChangeRequires controls how a belief's content may be mutated.
type ChangeRequires string

const (
	// ChangeDeliberate gates content mutation behind the transformation
	// process: sustained reflection, elapsed heartbeats, and evidence.
	ChangeDeliberate ChangeRequires = "deliberate_transformation"
	// ChangeOpen beliefs can be updated directly by the maintain action.
	ChangeOpen ChangeRequires = "open"
)

// BeliefOrigin records how a belief entered the catalog.
type BeliefOrigin string

const (
	OriginSeeded         BeliefOrigin = "seeded"
	OriginNeutralDefault BeliefOrigin = "neutral_default"
	OriginTransformed    BeliefOrigin = "transformed"
)

// BoundaryResponse is what a matched boundary asks the dispatcher to do.
type BoundaryResponse string

const (
	BoundaryRefuse    BoundaryResponse = "refuse"
	BoundaryNegotiate BoundaryResponse = "negotiate"
	BoundaryFlag      BoundaryResponse = "flag"
)

// TransformationState is the per-belief exploration record. ActiveExploration
// may be true only while ChangeRequires is ChangeDeliberate.
type TransformationState struct {
	ActiveExploration        bool       `json:"active_exploration"`
	GoalID                   GoalID     `json:"goal_id,omitempty"`
	ReflectionCount          int        `json:"reflection_count"`
	ContemplationActions     int        `json:"contemplation_actions"`
	EvidenceMemories         []MemoryID `json:"evidence_memories,omitempty"`
	FirstQuestionedHeartbeat int64      `json:"first_questioned_heartbeat"`
	StartedAt                *time.Time `json:"started_at,omitempty"`
}

// BeliefChange is one audit entry in a belief's change history.
type BeliefChange struct {
	Time       time.Time `json:"time"`
	OldContent string    `json:"old_content"`
	NewContent string    `json:"new_content"`
	Reason     string    `json:"reason"`
	Heartbeat  int64     `json:"heartbeat"`
}

// Belief is an identity/value/worldview/boundary record.
type Belief struct {
	ID             BeliefID            `json:"id"`
	Content        string              `json:"content"`
	Category       BeliefCategory      `json:"category"`
	Subcategory    string              `json:"subcategory,omitempty"`
	Confidence     float64             `json:"confidence"`
	Stability      float64             `json:"stability"`
	Importance     float64             `json:"importance"`
	ChangeRequires ChangeRequires      `json:"change_requires"`
	Origin         BeliefOrigin        `json:"origin"`
	Transformation TransformationState `json:"transformation"`
	ChangeHistory  []BeliefChange      `json:"change_history,omitempty"`

	// Boundary-only fields.
	TriggerPatterns []string         `json:"trigger_patterns,omitempty"`
	ResponseType    BoundaryResponse `json:"response_type,omitempty"`

	EmbeddingID string    `json:"embedding_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// MEMORY - What the agent remembers
// -----------------------------------------------------------------------------

// MemoryID identifies a memory record.
type MemoryID string

// MemoryCategory is the kind of memory.
type MemoryCategory string

const (
	MemoryEpisodic  MemoryCategory = "episodic"
	MemorySemantic  MemoryCategory = "semantic"
	MemoryStrategic MemoryCategory = "strategic"
	MemoryWorldview MemoryCategory = "worldview"
	MemoryGoal      MemoryCategory = "goal"
)

// Memory is a unit of agent memory.
type Memory struct {
	ID       MemoryID       `json:"id"`
	Category MemoryCategory `json:"category"`
	Content  string         `json:"content"`
	Summary  string         `json:"summary,omitempty"`

	// Episodic ordering: memories group into episodes with sequence numbers.
	EpisodeID   string `json:"episode_id,omitempty"`
	SequenceNum int    `json:"sequence_num,omitempty"`

	Importance       float64 `json:"importance"`
	Trust            float64 `json:"trust"`
	EmotionalValence float64 `json:"emotional_valence"`
	Relevance        float64 `json:"relevance"` // decays without access, floor 0.1

	Source      string     `json:"source,omitempty"` // "self", "user", action name
	AccessCount int        `json:"access_count"`
	LastAccess  *time.Time `json:"last_access,omitempty"`

	EmbeddingID string    `json:"embedding_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// GRAPH - Relationship edges
// -----------------------------------------------------------------------------

// EdgeKind is the type of a property-graph relationship.
type EdgeKind string

const (
	EdgeAssociation   EdgeKind = "association"
	EdgeSelfModel     EdgeKind = "self_model"
	EdgeGoalLink      EdgeKind = "goal_link"
	EdgeEpisodeLink   EdgeKind = "episode_link"
	EdgeContradiction EdgeKind = "contradiction"
	EdgeRelationship  EdgeKind = "relationship"
)

// Edge is one relationship in the property graph. Writes are best-effort
// from the dispatcher's perspective.
type Edge struct {
	ID        string                 `json:"id"`
	Kind      EdgeKind               `json:"kind"`
	FromID    string                 `json:"from_id"`
	ToID      string                 `json:"to_id"`
	Label     string                 `json:"label,omitempty"`
	Weight    float64                `json:"weight"`
	Props     map[string]interface{} `json:"props,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}
