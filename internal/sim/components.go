package sim

import (
	"fmt"

	"github.com/arla-sim/agentsim/internal/ecs"
)

// Canonical type tags for the components the core itself defines. Embedder
// components live under whatever tags the embedder chooses; these three are
// reserved because the scheduler and action lifecycle depend on them by
// name.
const (
	TagTimeBudget    ecs.TypeTag = "time_budget"
	TagActionPlan    ecs.TypeTag = "action_plan"
	TagActionOutcome ecs.TypeTag = "action_outcome"
)

// TimeBudgetComponent gates whether an entity is eligible for a turn. Every
// actable entity must carry one. IsActive must always agree with
// CurrentTimeBudget > 0; AutoFix reconciles a component found in violation
// of that rule.
type TimeBudgetComponent struct {
	InitialTimeBudget float64
	MaxTimeBudget      float64
	CurrentTimeBudget  float64
	IsActive           bool
}

// NewTimeBudgetComponent returns a component with MaxTimeBudget set to
// twice the initial budget and CurrentTimeBudget starting at the initial
// value, active.
func NewTimeBudgetComponent(initial float64) *TimeBudgetComponent {
	return &TimeBudgetComponent{
		InitialTimeBudget: initial,
		MaxTimeBudget:      2 * initial,
		CurrentTimeBudget:  initial,
		IsActive:           initial > 0,
	}
}

// TypeTag implements ecs.Component.
func (c *TimeBudgetComponent) TypeTag() ecs.TypeTag { return TagTimeBudget }

// ToDict implements ecs.Component.
func (c *TimeBudgetComponent) ToDict() map[string]any {
	return map[string]any{
		"initial_time_budget": c.InitialTimeBudget,
		"max_time_budget":     c.MaxTimeBudget,
		"current_time_budget": c.CurrentTimeBudget,
		"is_active":           c.IsActive,
	}
}

// Validate implements ecs.Component.
func (c *TimeBudgetComponent) Validate(entity ecs.EntityID) (bool, []string) {
	var errs []string
	if c.InitialTimeBudget <= 0 {
		errs = append(errs, fmt.Sprintf("%s: initial_time_budget must be > 0, got %v", entity, c.InitialTimeBudget))
	}
	if c.MaxTimeBudget != 2*c.InitialTimeBudget {
		errs = append(errs, fmt.Sprintf("%s: max_time_budget must equal 2*initial_time_budget", entity))
	}
	if c.CurrentTimeBudget < 0 {
		errs = append(errs, fmt.Sprintf("%s: current_time_budget must be >= 0, got %v", entity, c.CurrentTimeBudget))
	}
	if c.IsActive != (c.CurrentTimeBudget > 0) {
		errs = append(errs, fmt.Sprintf("%s: is_active=%v disagrees with current_time_budget=%v", entity, c.IsActive, c.CurrentTimeBudget))
	}
	return len(errs) == 0, errs
}

// AutoFix reconciles IsActive with CurrentTimeBudget, clamps a negative
// budget to zero, and repairs a MaxTimeBudget that drifted from 2x the
// initial value. It is idempotent: calling it again immediately afterward
// returns false.
func (c *TimeBudgetComponent) AutoFix(entity ecs.EntityID, config map[string]any) bool {
	changed := false
	if c.CurrentTimeBudget < 0 {
		c.CurrentTimeBudget = 0
		changed = true
	}
	if want := 2 * c.InitialTimeBudget; c.MaxTimeBudget != want {
		c.MaxTimeBudget = want
		changed = true
	}
	if wantActive := c.CurrentTimeBudget > 0; c.IsActive != wantActive {
		c.IsActive = wantActive
		changed = true
	}
	return changed
}

// ActionPlanComponent is the transient, per-tick record of the action an
// entity chose. It is overwritten each tick it produces a new plan.
type ActionPlanComponent struct {
	ActionID string
	Intent   string
	Params   map[string]any
}

// TypeTag implements ecs.Component.
func (c *ActionPlanComponent) TypeTag() ecs.TypeTag { return TagActionPlan }

// ToDict implements ecs.Component.
func (c *ActionPlanComponent) ToDict() map[string]any {
	return map[string]any{
		"action_id": c.ActionID,
		"intent":    c.Intent,
		"params":    c.Params,
	}
}

// Validate implements ecs.Component. A plan is valid as long as it names an
// action; params are opaque to the core.
func (c *ActionPlanComponent) Validate(entity ecs.EntityID) (bool, []string) {
	if c.ActionID == "" {
		return false, []string{fmt.Sprintf("%s: action_plan missing action_id", entity)}
	}
	return true, nil
}

// ActionOutcome is the result of executing an action: whether it succeeded,
// its reward before and after the embedder's adjustment, and free-form
// detail for logging/metrics.
type ActionOutcome struct {
	Success     bool
	Message     string
	BaseReward  float64
	FinalReward float64
	Details     map[string]any
}

// ActionOutcomeComponent records the latest executed action's outcome for
// an entity. Absent until the entity's first action_executed.
type ActionOutcomeComponent struct {
	ActionOutcome
}

// TypeTag implements ecs.Component.
func (c *ActionOutcomeComponent) TypeTag() ecs.TypeTag { return TagActionOutcome }

// ToDict implements ecs.Component.
func (c *ActionOutcomeComponent) ToDict() map[string]any {
	return map[string]any{
		"success":      c.Success,
		"message":      c.Message,
		"base_reward":  c.BaseReward,
		"final_reward": c.FinalReward,
		"details":      c.Details,
	}
}

// Validate implements ecs.Component. An outcome component has no
// cross-field invariant beyond existing; success/reward combinations are
// the embedder's business.
func (c *ActionOutcomeComponent) Validate(ecs.EntityID) (bool, []string) {
	return true, nil
}
