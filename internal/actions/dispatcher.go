package actions

import (
	"context"
	"errors"
	"time"

	"github.com/animus-hq/animus/internal/beliefs"
	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/drives"
	"github.com/animus-hq/animus/internal/goals"
	"github.com/animus-hq/animus/internal/graph"
	"github.com/animus-hq/animus/internal/ledger"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
)

// Lifecycle is the pause/terminate surface the dispatcher hands risky
// control actions to. Implemented by the heartbeat package's controller.
type Lifecycle interface {
	// Pause marks the loop paused and returns the outbound notice.
	Pause(state *core.HeartbeatState, reason string) (core.OutboxMessage, error)
	// Terminate performs the confirmed, irreversible shutdown and returns
	// farewell messages. It mutates state in place; the dispatcher persists.
	Terminate(ctx context.Context, state *core.HeartbeatState) ([]core.OutboxMessage, error)
}

// Result is the outcome of one Execute call.
type Result struct {
	Name            string                 `json:"name"`
	Success         bool                   `json:"success"`
	Cost            float64                `json:"cost"`
	EnergyRemaining float64                `json:"energy_remaining"`
	Output          map[string]interface{} `json:"result,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Calls           []core.ExternalCall    `json:"external_calls,omitempty"`
	Outbox          []core.OutboxMessage   `json:"outbox_messages,omitempty"`
}

// Record converts the result into the persisted action record form.
func (r *Result) Record(params map[string]interface{}) core.ActionRecord {
	return core.ActionRecord{
		Name:            r.Name,
		Params:          params,
		Success:         r.Success,
		Cost:            r.Cost,
		EnergyRemaining: r.EnergyRemaining,
		Result:          r.Output,
		Error:           r.Error,
		ExecutedAt:      time.Now().UTC(),
	}
}

// Dispatcher validates, costs, and executes one action at a time.
type Dispatcher struct {
	registry    *Registry
	states      *storage.StateStore
	settings    *storage.SettingsStore
	drives      *drives.Engine
	goals       *goals.Engine
	gate        *beliefs.Gate
	guard       *beliefs.Guard
	memories    *memory.Service
	graph       *graph.Store
	audit       *ledger.Store
	lifecycle   Lifecycle
	tokenBudget int
	logger      *logging.Logger
}

// NewDispatcher wires the dispatcher and registers the full catalog.
// CheckComplete runs here so a miswired catalog fails at startup.
func NewDispatcher(
	states *storage.StateStore,
	settings *storage.SettingsStore,
	driveEngine *drives.Engine,
	goalEngine *goals.Engine,
	gate *beliefs.Gate,
	guard *beliefs.Guard,
	memories *memory.Service,
	g *graph.Store,
	audit *ledger.Store,
	lifecycle Lifecycle,
	tokenBudget int,
) (*Dispatcher, error) {
	d := &Dispatcher{
		registry:    NewRegistry(),
		states:      states,
		settings:    settings,
		drives:      driveEngine,
		goals:       goalEngine,
		gate:        gate,
		guard:       guard,
		memories:    memories,
		graph:       g,
		audit:       audit,
		lifecycle:   lifecycle,
		tokenBudget: tokenBudget,
		logger:      logging.Component("actions"),
	}
	d.registerCatalog()
	if err := d.registry.CheckComplete(); err != nil {
		return nil, err
	}
	return d, nil
}

// Registry exposes the catalog for status queries.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Execute runs one action against the in-flight epoch.
//
// Rejections (unknown name, not allow-listed, malformed params, insufficient
// energy, boundary refusal) charge nothing and mutate nothing; the returned
// Result reports the failure and the sentinel error classifies it. Once the
// cost is charged, handler failures are reported in the Result with the
// charge kept.
func (d *Dispatcher) Execute(ctx context.Context, epochID core.EpochID, name string, params map[string]interface{}) (*Result, error) {
	state, err := d.states.LoadHeartbeat()
	if err != nil {
		return nil, err
	}

	res := &Result{Name: name, EnergyRemaining: state.CurrentEnergy}

	if state.Terminated {
		return d.reject(res, state, core.ErrTerminated)
	}
	if state.ActiveEpochID == "" {
		return d.reject(res, state, core.ErrNoActiveEpoch)
	}
	if state.ActiveEpochID != epochID {
		return d.reject(res, state, core.ErrEpochMismatch)
	}

	def, ok := d.registry.Lookup(name)
	if !ok {
		return d.reject(res, state, core.ErrUnknownAction)
	}
	if allowed, err := d.allowed(name); err != nil {
		return nil, err
	} else if !allowed {
		return d.reject(res, state, core.ErrActionNotAllowed)
	}

	ex := &Execution{
		EpochID: epochID,
		Name:    name,
		Params:  params,
		State:   state,
		Output:  make(map[string]interface{}),
	}
	if def.Validate != nil {
		if err := def.Validate(ex); err != nil {
			return d.reject(res, state, err)
		}
	}

	cost, err := d.costOf(def)
	if err != nil {
		return nil, err
	}
	res.Cost = cost
	if state.CurrentEnergy < cost {
		res.Output = map[string]interface{}{
			"required":  cost,
			"available": state.CurrentEnergy,
		}
		return d.reject(res, state, core.ErrInsufficientEnergy)
	}

	// Boundary check runs before any charge so a refusal costs nothing.
	if def.Risky {
		matches, err := d.guard.Check(ctx, ex.Param("content"))
		if err != nil {
			return nil, err
		}
		if refusal := beliefs.Refusal(matches); refusal != nil {
			res.Output = map[string]interface{}{
				"boundary": refusal.Belief.Content,
			}
			d.audit.Append(ledger.ActionBoundaryRefusal, ledger.ActorAgent, "action", name, map[string]interface{}{
				"boundary_id": string(refusal.Belief.ID),
			})
			return d.reject(res, state, core.ErrBoundaryRefused)
		}
		ex.Output["boundary_matches"] = len(matches)
	}

	// Charge exactly once, before effects.
	state.CurrentEnergy = core.ClampRange(state.CurrentEnergy-cost, 0, state.MaxEnergy)
	res.EnergyRemaining = state.CurrentEnergy

	if err := def.Handler(ctx, ex); err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	res.Output = ex.Output
	res.Calls = ex.Calls
	res.Outbox = ex.Outbox
	res.EnergyRemaining = state.CurrentEnergy

	if err := d.states.SaveHeartbeat(state); err != nil {
		return nil, err
	}

	d.audit.Append(ledger.ActionExecuted, ledger.ActorAgent, "action", name, map[string]interface{}{
		"epoch_id": string(epochID),
		"success":  res.Success,
		"cost":     cost,
	})
	return res, nil
}

// reject finalizes a no-charge rejection: the result reports the error and
// the untouched energy, and the sentinel is returned for classification.
func (d *Dispatcher) reject(res *Result, state *core.HeartbeatState, cause error) (*Result, error) {
	res.Success = false
	res.Error = cause.Error()
	res.EnergyRemaining = state.CurrentEnergy
	d.audit.Append(ledger.ActionRejected, ledger.ActorAgent, "action", res.Name, map[string]interface{}{
		"reason": cause.Error(),
	})
	return res, cause
}

// allowed consults the configured allow-list; an unset list allows all.
func (d *Dispatcher) allowed(name string) (bool, error) {
	list, err := d.settings.AllowList()
	if err != nil {
		return false, err
	}
	if list == nil {
		return true, nil
	}
	return list[name], nil
}

// costOf resolves the runtime cost override, falling back to the default.
func (d *Dispatcher) costOf(def Definition) (float64, error) {
	costs, err := d.settings.ActionCosts()
	if err != nil {
		return 0, err
	}
	if c, ok := costs[def.Name]; ok {
		return c, nil
	}
	return def.DefaultCost, nil
}

// queueCall appends an external call bound to the execution's epoch.
func (d *Dispatcher) queueCall(ex *Execution, kind core.CallKind, input map[string]interface{}) {
	ex.Calls = append(ex.Calls, core.ExternalCall{
		CallID:      core.CallID(newID()),
		Kind:        kind,
		EpochID:     ex.EpochID,
		Input:       input,
		TokenBudget: d.tokenBudget,
		CreatedAt:   time.Now().UTC(),
	})
}

// satisfy releases a drive, best-effort.
func (d *Dispatcher) satisfy(name core.DriveName, amount float64) {
	if _, err := d.drives.Satisfy(name, amount); err != nil {
		d.logger.Debug("drive satisfy %s skipped: %v", name, err)
	}
}

// IsRejection reports whether an Execute error is a pre-charge rejection
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	for _, sentinel := range []error{
		core.ErrTerminated, core.ErrNoActiveEpoch, core.ErrEpochMismatch,
		core.ErrUnknownAction, core.ErrActionNotAllowed, core.ErrMissingParam,
		core.ErrInsufficientEnergy, core.ErrBoundaryRefused,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
