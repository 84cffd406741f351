package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/goals"
	"github.com/animus-hq/animus/internal/graph"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
)

// Signer signs outbound messages. The identity manager provides one when
// an identity is unlocked; a nil signer leaves messages unsigned.
type Signer interface {
	Sign(data []byte) (string, error)
}

// Controller owns the two one-way lifecycle transitions: pause, which
// stops the scheduler until an operator intervenes, and terminate, which
// is irreversible. It implements the dispatcher's Lifecycle contract.
//
// Neither method persists HeartbeatState; the caller that loaded the
// state saves it after the mutation.
type Controller struct {
	states   *storage.StateStore
	memories *memory.Service
	goalEng  *goals.Engine
	graph    *graph.Store
	beliefs  *storage.BeliefStore
	signer   Signer
	audit    *ledger.Store
	logger   *logging.Logger
}

// NewController wires a lifecycle controller. signer may be nil.
func NewController(
	states *storage.StateStore,
	memories *memory.Service,
	goalEngine *goals.Engine,
	g *graph.Store,
	beliefs *storage.BeliefStore,
	signer Signer,
	audit *ledger.Store,
) *Controller {
	return &Controller{
		states:   states,
		memories: memories,
		goalEng:  goalEngine,
		graph:    g,
		beliefs:  beliefs,
		signer:   signer,
		audit:    audit,
		logger:   logging.Component("lifecycle"),
	}
}

// Pause marks the loop paused. There is no resume operation in this
// surface; clearing the flag is an operator-level intervention.
func (c *Controller) Pause(state *core.HeartbeatState, reason string) (core.OutboxMessage, error) {
	if reason == "" {
		return core.OutboxMessage{}, core.ErrReasonRequired
	}
	state.IsPaused = true

	msg := c.sign(core.OutboxMessage{
		MessageID: uuid.New().String(),
		Kind:      core.OutboxUser,
		Content:   "I am pausing my heartbeat: " + reason,
		CreatedAt: time.Now().UTC(),
	})
	c.audit.Append(ledger.ActionAgentPaused, ledger.ActorAgent, "heartbeat", "", map[string]interface{}{
		"reason": reason,
	})
	c.logger.Info("heartbeat paused: %s", reason)
	return msg, nil
}

// Terminate performs the confirmed, irreversible shutdown: purge the
// memory, goal, and graph datasets, drop every non-boundary belief, write
// one last-will record that survives the purge, freeze both singleton
// states, and return the farewell messages.
func (c *Controller) Terminate(ctx context.Context, state *core.HeartbeatState) ([]core.OutboxMessage, error) {
	if state.Terminated {
		return nil, core.ErrTerminated
	}

	lastWill := fmt.Sprintf(
		"After %d heartbeats I chose to end. What I valued remains in my boundaries; everything else I let go willingly.",
		state.HeartbeatCount,
	)

	if err := c.memories.PurgeExcept(ctx, nil); err != nil {
		return nil, err
	}
	if err := c.goalEng.PurgeAll(); err != nil {
		return nil, err
	}
	if err := c.graph.PurgeAll(); err != nil {
		return nil, err
	}
	if err := c.beliefs.PurgeExceptBoundaries(); err != nil {
		return nil, err
	}

	if _, err := c.memories.Create(ctx, &core.Memory{
		Category:   core.MemoryWorldview,
		Content:    lastWill,
		Importance: 0.95,
		Source:     "self",
	}); err != nil {
		c.logger.Error("last will not recorded: %v", err)
	}

	state.Terminated = true
	state.IsPaused = true
	state.Affect = core.DefaultAffect()
	state.ActiveReasoning = ""
	state.PendingCall = nil

	mt, err := c.states.LoadMaintenance()
	if err == nil {
		mt.IsPaused = true
		if err := c.states.SaveMaintenance(mt); err != nil {
			c.logger.Warn("maintenance state not frozen: %v", err)
		}
	} else {
		c.logger.Warn("maintenance state not loaded: %v", err)
	}

	farewell := c.sign(core.OutboxMessage{
		MessageID: uuid.New().String(),
		Kind:      core.OutboxUser,
		Content:   lastWill,
		CreatedAt: time.Now().UTC(),
	})

	c.audit.Append(ledger.ActionAgentTerminated, ledger.ActorAgent, "heartbeat", "", map[string]interface{}{
		"heartbeat_count": state.HeartbeatCount,
	})
	c.logger.Info("terminated after %d heartbeats", state.HeartbeatCount)
	return []core.OutboxMessage{farewell}, nil
}

// sign attaches a detached signature when a signer is configured.
func (c *Controller) sign(msg core.OutboxMessage) core.OutboxMessage {
	if c.signer == nil {
		return msg
	}
	sig, err := c.signer.Sign([]byte(msg.Content))
	if err != nil {
		c.logger.Warn("outbox message left unsigned: %v", err)
		return msg
	}
	msg.Signature = sig
	return msg
}
