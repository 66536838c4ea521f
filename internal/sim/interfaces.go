package sim

import (
	"context"

	"github.com/arla-sim/agentsim/internal/ecs"
)

// Environment is the spatial/world abstraction the core treats opaquely.
// Positions are whatever the embedder's concrete Environment says they are;
// the core never inspects them.
type Environment interface {
	IsValidPosition(pos any) bool
	GetNeighbors(pos any) []any
	Distance(a, b any) float64
	GetEntitiesAtPosition(pos any) []ecs.EntityID
	GetEntitiesInRadius(pos any, radius float64) []ecs.EntityID
	UpdateEntityPosition(entity ecs.EntityID, pos any) error
	RemoveEntity(entity ecs.EntityID)
	ToDict() map[string]any
	RestoreFromDict(data map[string]any) error
}

// ActionGenerator proposes zero or more candidate action plans for an
// entity. It must be pure with respect to the store: generating candidates
// never mutates state.
type ActionGenerator interface {
	Generate(ctx context.Context, state *State, entity ecs.EntityID, tick int) ([]*ActionPlanComponent, error)
}

// ActionGeneratorFunc adapts a function to ActionGenerator.
type ActionGeneratorFunc func(ctx context.Context, state *State, entity ecs.EntityID, tick int) ([]*ActionPlanComponent, error)

// Generate implements ActionGenerator.
func (f ActionGeneratorFunc) Generate(ctx context.Context, state *State, entity ecs.EntityID, tick int) ([]*ActionPlanComponent, error) {
	return f(ctx, state, entity, tick)
}

// DecisionSelector picks one of the generator's candidates, or none. It may
// read the store but must not mutate it.
type DecisionSelector interface {
	Select(ctx context.Context, state *State, entity ecs.EntityID, candidates []*ActionPlanComponent) (*ActionPlanComponent, error)
}

// DecisionSelectorFunc adapts a function to DecisionSelector.
type DecisionSelectorFunc func(ctx context.Context, state *State, entity ecs.EntityID, candidates []*ActionPlanComponent) (*ActionPlanComponent, error)

// Select implements DecisionSelector.
func (f DecisionSelectorFunc) Select(ctx context.Context, state *State, entity ecs.EntityID, candidates []*ActionPlanComponent) (*ActionPlanComponent, error) {
	return f(ctx, state, entity, candidates)
}

// RewardCalculator turns a concrete action System's base reward into the
// entity's final reward, given the action's type/intent/details and the
// entity's current components. It must be pure.
type RewardCalculator interface {
	CalculateFinalReward(
		baseReward float64,
		actionID, intent string,
		details map[string]any,
		components map[ecs.TypeTag]ecs.Component,
	) (finalReward float64, breakdown map[string]any)
}

// CognitiveScaffold is the optional async bridge to an embedder's
// LLM/planning backend. The core never inspects the returned string; it
// only routes it back to whichever System asked for it, through the
// ScaffoldQueue (see scaffold.go) so that no handler detaches work which
// later mutates the store outside of a turn boundary.
type CognitiveScaffold interface {
	Query(ctx context.Context, entity ecs.EntityID, purpose, prompt string, currentTick int) (string, error)
}
