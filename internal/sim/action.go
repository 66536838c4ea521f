package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/arla-sim/agentsim/internal/ecs"
	"github.com/arla-sim/agentsim/internal/eventbus"
)

// ActionSystem is the built-in System that drives the Dispatched → Resolved
// → Scored → Terminal portion of the action lifecycle. It is always
// registered by Manager itself; embedders never construct or register it
// directly, though they do supply the RewardCalculator it calls.
type ActionSystem struct {
	state    *State
	reward   RewardCalculator
	onLogged func(entity ecs.EntityID, tick int, outcome ActionOutcome)
	log      *slog.Logger
}

// NewActionSystem constructs the built-in action system, bound to state's
// event bus and component store. onLogged, if non-nil, is invoked after
// action_executed is published, as a convenience hook for observers
// (metrics, logging) that would rather not subscribe to the bus directly.
// logger is used to record a non-finite final_reward clamp (spec §4.5/§8);
// a nil logger falls back to slog.Default().
func NewActionSystem(state *State, reward RewardCalculator, onLogged func(ecs.EntityID, int, ActionOutcome), logger *slog.Logger) *ActionSystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionSystem{state: state, reward: reward, onLogged: onLogged, log: logger}
}

func (a *ActionSystem) bus() *eventbus.Bus { return a.state.Bus }

// Tag implements System.
func (a *ActionSystem) Tag() string { return "action_system" }

// RequiredComponents implements System.
func (a *ActionSystem) RequiredComponents() []ecs.TypeTag {
	return []ecs.TypeTag{TagActionPlan}
}

// Update implements System. The action lifecycle is entirely event-driven;
// ActionSystem has no bulk per-tick work of its own.
func (a *ActionSystem) Update(context.Context, *State, int) error { return nil }

// EventHandlers implements EventSubscriber.
func (a *ActionSystem) EventHandlers() map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		TopicActionChosen:       a.handleActionChosen,
		TopicActionOutcomeReady: a.handleOutcomeReady,
	}
}

func (a *ActionSystem) handleActionChosen(_ string, payload eventbus.Event) error {
	entity, _ := payload["entity_id"].(string)
	tick, _ := payload["current_tick"].(int)
	plan, ok := payload["action_plan_component"].(*ActionPlanComponent)
	if !ok {
		return fmt.Errorf("sim: action_chosen payload missing action_plan_component")
	}

	executeTopic := ExecuteTopic(plan.ActionID)
	if a.bus().SubscriberCount(executeTopic) == 0 {
		return a.finalize(ecs.EntityID(entity), tick, plan, ActionOutcome{
			Success:    false,
			BaseReward: 0,
			Details:    map[string]any{"status": "unhandled"},
		})
	}

	// The concrete System subscribed to executeTopic is expected to apply
	// the world mutation and publish action_outcome_ready before this call
	// returns (depth-first dispatch); handleOutcomeReady does the
	// finalize-and-publish work as part of that same nested dispatch.
	return a.bus().Publish(executeTopic, eventbus.Event{
		"entity_id":             entity,
		"current_tick":          tick,
		"action_plan_component": plan,
	})
}

func (a *ActionSystem) handleOutcomeReady(_ string, payload eventbus.Event) error {
	entity, _ := payload["entity_id"].(string)
	tick, _ := payload["current_tick"].(int)
	outcome, ok := payload["action_outcome"].(ActionOutcome)
	if !ok {
		return fmt.Errorf("sim: action_outcome_ready payload missing action_outcome")
	}
	plan, ok := payload["original_action_plan"].(*ActionPlanComponent)
	if !ok {
		return fmt.Errorf("sim: action_outcome_ready payload missing original_action_plan")
	}
	return a.finalize(ecs.EntityID(entity), tick, plan, outcome)
}

// finalize computes the final reward, clamping non-finite values to zero,
// writes the ActionOutcomeComponent, and publishes action_executed. It is
// reached either directly (unhandled dispatch) or via handleOutcomeReady.
func (a *ActionSystem) finalize(entity ecs.EntityID, tick int, plan *ActionPlanComponent, outcome ActionOutcome) error {
	if a.reward != nil {
		components := a.state.Store.AllComponents(entity)
		final, breakdown := a.reward.CalculateFinalReward(outcome.BaseReward, plan.ActionID, plan.Intent, outcome.Details, components)
		if math.IsNaN(final) || math.IsInf(final, 0) {
			a.log.Warn("clamped non-finite final reward to 0", "entity", entity, "tick", tick, "action_id", plan.ActionID)
			final = 0
		}
		outcome.FinalReward = final
		if breakdown != nil {
			if outcome.Details == nil {
				outcome.Details = map[string]any{}
			}
			outcome.Details["reward_breakdown"] = breakdown
		}
	} else if math.IsNaN(outcome.FinalReward) || math.IsInf(outcome.FinalReward, 0) {
		a.log.Warn("clamped non-finite final reward to 0", "entity", entity, "tick", tick, "action_id", plan.ActionID)
		outcome.FinalReward = 0
	}

	outcomeComponent := &ActionOutcomeComponent{ActionOutcome: outcome}
	if a.state.Store.HasEntity(entity) {
		_ = a.state.Store.AddComponent(entity, outcomeComponent)
	}

	if a.onLogged != nil {
		defer a.onLogged(entity, tick, outcome)
	}

	return a.bus().Publish(TopicActionExecuted, eventbus.Event{
		"entity_id":      string(entity),
		"current_tick":   tick,
		"action_plan":    plan,
		"action_outcome": outcomeComponent,
	})
}
