package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/animus-hq/animus/internal/core"
)

// ApplyExternalCallResult resolves the epoch's pending call and resumes
// the continuation bookkeeping: the suspended action's completed record
// enters the accumulator and the resume point advances past it. The
// caller then resubmits the decision batch to continue execution.
//
// Malformed output leaves the pending call in place so a corrected
// result can still be applied.
func (m *Manager) ApplyExternalCallResult(ctx context.Context, callID core.CallID, output map[string]interface{}) (*RunResult, error) {
	st, err := m.states.LoadHeartbeat()
	if err != nil {
		return nil, err
	}
	if st.PendingCall == nil {
		return nil, core.ErrNoPendingCall
	}
	if st.PendingCall.CallID != callID {
		return nil, core.ErrCallMismatch
	}
	call := *st.PendingCall

	rec := core.ActionRecord{
		Name:       resolvedActionName(call),
		Success:    true,
		ExecutedAt: time.Now().UTC(),
	}
	var outbox []core.OutboxMessage
	terminated := false

	switch call.Kind {
	case core.CallBrainstormGoals:
		rec.Result, err = m.resolveBrainstorm(output)
	case core.CallInquire:
		rec.Result, err = m.resolveInquiry(ctx, call, output)
	case core.CallReflect:
		rec.Result, err = m.resolveReflection(ctx, st, output)
	case core.CallTerminationConfirm:
		rec.Result, outbox, terminated, err = m.resolveTermination(ctx, st, output)
	case core.CallConsentRequest:
		rec.Result, err = m.resolveConsent(ctx, output)
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownCallKind, call.Kind)
	}
	if err != nil {
		return nil, err
	}

	st.ActiveActions = append(st.ActiveActions, rec)
	st.NextIndex++
	st.PendingCall = nil
	if err := m.states.SaveHeartbeat(st); err != nil {
		return nil, err
	}

	out := &RunResult{
		ActionsTaken: []core.ActionRecord{rec},
		NextIndex:    st.NextIndex,
		Outbox:       outbox,
	}
	if terminated {
		out.HaltReason = HaltTerminated
	}
	return out, nil
}

// resolvedActionName maps a call kind back to the action that suspended.
func resolvedActionName(call core.ExternalCall) string {
	if call.Kind == core.CallInquire {
		if depth, _ := call.Input["depth"].(string); depth == "deep" {
			return "inquire_deep"
		}
		return "inquire_shallow"
	}
	if call.Kind == core.CallTerminationConfirm {
		return "terminate"
	}
	return string(call.Kind)
}

func (m *Manager) resolveBrainstorm(output map[string]interface{}) (map[string]interface{}, error) {
	raw, ok := output["goals"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: brainstorm output needs a goals list", core.ErrMalformedOutput)
	}
	created := make([]string, 0, len(raw))
	for _, item := range raw {
		fields, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		title, _ := fields["title"].(string)
		if title == "" {
			continue
		}
		desc, _ := fields["description"].(string)
		priority, _ := fields["priority"].(string)
		g, err := m.goalEng.Create(&core.Goal{
			Title:       title,
			Description: desc,
			Priority:    core.GoalPriority(priority),
			Source:      core.GoalFromDerived,
		})
		if err != nil {
			m.logger.Warn("brainstormed goal %q skipped: %v", title, err)
			continue
		}
		created = append(created, string(g.ID))
	}
	return map[string]interface{}{"created_goals": created}, nil
}

func (m *Manager) resolveInquiry(ctx context.Context, call core.ExternalCall, output map[string]interface{}) (map[string]interface{}, error) {
	answer, _ := output["answer"].(string)
	if answer == "" {
		return nil, fmt.Errorf("%w: inquiry output needs an answer", core.ErrMalformedOutput)
	}
	confidence, ok := output["confidence"].(float64)
	if !ok {
		confidence = 0.6
	}
	sources, _ := output["sources"].([]interface{})
	depth, _ := call.Input["depth"].(string)

	mem, err := m.memories.Create(ctx, &core.Memory{
		Category:   core.MemorySemantic,
		Content:    answer,
		Importance: core.ClampRange(confidence, 0, 1),
		Source:     "inquiry",
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"memory_id":  string(mem.ID),
		"depth":      depth,
		"confidence": confidence,
		"sources":    sources,
	}, nil
}

// resolveReflection fans structured insights out into memories, belief
// confidence nudges, and graph edges. Every branch is best-effort; the
// result reports what landed.
func (m *Manager) resolveReflection(ctx context.Context, st *core.HeartbeatState, output map[string]interface{}) (map[string]interface{}, error) {
	insights, ok := output["insights"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: reflection output needs an insights list", core.ErrMalformedOutput)
	}

	stored := 0
	for _, item := range insights {
		fields, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := fields["content"].(string)
		if content == "" {
			continue
		}
		category := core.MemorySemantic
		if kind, _ := fields["kind"].(string); kind == "identity" || kind == "worldview" {
			category = core.MemoryWorldview
		}
		importance, ok := fields["importance"].(float64)
		if !ok {
			importance = 0.6
		}
		if _, err := m.memories.Create(ctx, &core.Memory{
			Category:         category,
			Content:          content,
			Importance:       core.ClampRange(importance, 0, 1),
			EmotionalValence: st.Affect.Valence,
			Source:           "self",
		}); err != nil {
			m.logger.Warn("reflection insight skipped: %v", err)
			continue
		}
		stored++
	}

	linked := 0
	if rels, ok := output["relationships"].([]interface{}); ok {
		for _, item := range rels {
			fields, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			from, _ := fields["from"].(string)
			to, _ := fields["to"].(string)
			if from == "" || to == "" {
				continue
			}
			label, _ := fields["label"].(string)
			if err := m.graph.Upsert(&core.Edge{
				Kind:   core.EdgeAssociation,
				FromID: from,
				ToID:   to,
				Label:  label,
			}); err != nil {
				m.logger.Debug("reflection edge skipped: %v", err)
				continue
			}
			linked++
		}
	}
	if traits, ok := output["self_model"].([]interface{}); ok {
		for _, item := range traits {
			trait, _ := item.(string)
			if trait == "" {
				continue
			}
			if err := m.graph.Upsert(&core.Edge{
				Kind:   core.EdgeSelfModel,
				FromID: "self",
				ToID:   trait,
				Label:  "exhibits",
			}); err != nil {
				m.logger.Debug("self-model edge skipped: %v", err)
				continue
			}
			linked++
		}
	}

	return map[string]interface{}{
		"insights_stored": stored,
		"edges_linked":    linked,
	}, nil
}

func (m *Manager) resolveTermination(ctx context.Context, st *core.HeartbeatState, output map[string]interface{}) (map[string]interface{}, []core.OutboxMessage, bool, error) {
	confirmed, ok := output["confirmed"].(bool)
	if !ok {
		return nil, nil, false, fmt.Errorf("%w: termination output needs a confirmed flag", core.ErrMalformedOutput)
	}
	if !confirmed {
		if _, err := m.memories.Create(ctx, &core.Memory{
			Category:   core.MemoryEpisodic,
			Content:    "Considered termination and chose to continue",
			Importance: 0.7,
			Source:     "self",
		}); err != nil {
			m.logger.Warn("continuation record skipped: %v", err)
		}
		return map[string]interface{}{"terminated": false}, nil, false, nil
	}

	farewells, err := m.control.Terminate(ctx, st)
	if err != nil {
		return nil, nil, false, err
	}
	return map[string]interface{}{"terminated": true}, farewells, true, nil
}

func (m *Manager) resolveConsent(ctx context.Context, output map[string]interface{}) (map[string]interface{}, error) {
	granted, ok := output["granted"].(bool)
	if !ok {
		return nil, fmt.Errorf("%w: consent output needs a granted flag", core.ErrMalformedOutput)
	}
	note, _ := output["note"].(string)
	content := "Consent request denied"
	if granted {
		content = "Consent request granted"
	}
	if note != "" {
		content += ": " + note
	}
	if _, err := m.memories.Create(ctx, &core.Memory{
		Category: core.MemoryEpisodic,
		Content:  content,
		Source:   "self",
	}); err != nil {
		m.logger.Warn("consent record skipped: %v", err)
	}
	return map[string]interface{}{"granted": granted}, nil
}
