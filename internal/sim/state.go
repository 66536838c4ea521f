package sim

import (
	"github.com/arla-sim/agentsim/internal/ecs"
	"github.com/arla-sim/agentsim/internal/eventbus"
)

// State is a running simulation's shared state: the ECS store plus the
// shared services (event bus, environment, RNG-derived seed, simulation
// identity) that every System and the decision pipeline read from. State
// exclusively owns the store and the bus; Systems are handed a non-owning
// pointer to it.
type State struct {
	// SimulationID identifies this run; it is carried into every snapshot
	// and is otherwise opaque to the core.
	SimulationID string

	Store *ecs.Store
	Bus   *eventbus.Bus
	Env   Environment

	// MasterSeed is the configured RNG seed. A nil value means
	// nondeterministic (OS-seeded) shuffling; see tickRNG.
	MasterSeed *int64
}

// NewState constructs an empty State with a fresh store and bus.
func NewState(simulationID string, env Environment, masterSeed *int64) *State {
	return &State{
		SimulationID: simulationID,
		Store:        ecs.NewStore(),
		Bus:          eventbus.New(),
		Env:          env,
		MasterSeed:   masterSeed,
	}
}

// Rehydrate replaces s's store with a store rebuilt elsewhere (typically via
// snapshot.Store.Restore), e.g. after loading a prior run. The bus, env, and
// seed are left untouched; callers own applying the snapshot's environment
// dict before or after calling Rehydrate.
func (s *State) Rehydrate(store *ecs.Store) {
	s.Store = store
}

// ActiveEntities returns the entities whose TimeBudgetComponent.IsActive is
// true, in store insertion order.
func (s *State) ActiveEntities() []ecs.EntityID {
	rows := s.Store.EntitiesWith(TagTimeBudget)
	out := make([]ecs.EntityID, 0, len(rows))
	for _, row := range rows {
		tb := row.Components[TagTimeBudget].(*TimeBudgetComponent)
		if tb.IsActive {
			out = append(out, row.EntityID)
		}
	}
	return out
}

// IsActive reports whether entity currently has an active TimeBudgetComponent.
// Entities without one are treated as inactive.
func (s *State) IsActive(entity ecs.EntityID) bool {
	c, ok := s.Store.GetComponent(entity, TagTimeBudget)
	if !ok {
		return false
	}
	return c.(*TimeBudgetComponent).IsActive
}

// Deactivate flips an entity's TimeBudgetComponent to inactive and
// publishes entity_inactivated, deduping at the emission site: if the
// entity is already inactive this is a no-op and no event is published,
// satisfying the at-most-once-per-deactivation requirement even when two
// systems (e.g. a combat system and a decay system) both try to deactivate
// the same entity in the same tick.
func (s *State) Deactivate(entity ecs.EntityID, tick int, reason string) error {
	c, ok := s.Store.GetComponent(entity, TagTimeBudget)
	if !ok {
		return nil
	}
	tb := c.(*TimeBudgetComponent)
	if !tb.IsActive {
		return nil
	}
	tb.IsActive = false
	tb.CurrentTimeBudget = 0
	return s.Bus.Publish(TopicEntityInactivated, eventbus.Event{
		"entity_id":    string(entity),
		"current_tick": tick,
		"reason":       reason,
	})
}
