// Package actions implements the action dispatcher and its energy economy:
// validation, allow-listing, costing, boundary checks, and per-kind effects.
package actions

import (
	"context"
	"fmt"
	"sort"

	"github.com/animus-hq/animus/internal/core"
)

// Execution carries one action through the dispatch pipeline and collects
// its outputs.
type Execution struct {
	EpochID core.EpochID
	Name    string
	Params  map[string]interface{}
	State   *core.HeartbeatState

	Output map[string]interface{}
	Calls  []core.ExternalCall
	Outbox []core.OutboxMessage
}

// Param returns a string parameter, or "" when absent.
func (ex *Execution) Param(key string) string {
	if v, ok := ex.Params[key].(string); ok {
		return v
	}
	return ""
}

// FloatParam returns a numeric parameter with a default.
func (ex *Execution) FloatParam(key string, def float64) float64 {
	if v, ok := ex.Params[key].(float64); ok {
		return v
	}
	return def
}

// BoolParam returns a boolean parameter.
func (ex *Execution) BoolParam(key string) bool {
	v, _ := ex.Params[key].(bool)
	return v
}

// HandlerFunc executes one action's effect.
type HandlerFunc func(ctx context.Context, ex *Execution) error

// ValidateFunc checks params before any charge.
type ValidateFunc func(ex *Execution) error

// Definition describes one registered action kind.
type Definition struct {
	Name        string
	DefaultCost float64
	// Risky actions run the boundary guard on their content pre-charge.
	Risky    bool
	Validate ValidateFunc
	Handler  HandlerFunc
}

// Registry is the open action catalog: kind to cost, guard flag, and
// handler. Runtime cost and allow-list overrides come from settings.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds one action definition. Re-registering a name panics; the
// catalog is assembled once at startup.
func (r *Registry) Register(d Definition) {
	if _, exists := r.defs[d.Name]; exists {
		panic(fmt.Sprintf("action %q registered twice", d.Name))
	}
	r.defs[d.Name] = d
}

// Lookup returns a definition by name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckComplete verifies every definition carries a handler. Run at
// startup so a partially wired catalog fails fast.
func (r *Registry) CheckComplete() error {
	for name, d := range r.defs {
		if d.Handler == nil {
			return fmt.Errorf("action %q has no handler", name)
		}
		if d.DefaultCost < 0 {
			return fmt.Errorf("action %q has negative cost", name)
		}
	}
	return nil
}

// requireParam builds a ValidateFunc that insists on a non-empty string
// parameter.
func requireParam(keys ...string) ValidateFunc {
	return func(ex *Execution) error {
		for _, k := range keys {
			if ex.Param(k) == "" {
				return fmt.Errorf("%w: %s", core.ErrMissingParam, k)
			}
		}
		return nil
	}
}
