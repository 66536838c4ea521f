package sim

import (
	"context"
	"fmt"

	"github.com/arla-sim/agentsim/internal/ecs"
	"github.com/arla-sim/agentsim/internal/eventbus"
)

// System is a procedure with a per-tick Update hook and, optionally, event
// subscriptions wired up at registration time. REQUIRED_COMPONENTS from the
// source becomes RequiredComponents here; a System's Update is expected to
// filter entities through state.Store.EntitiesWith(sys.RequiredComponents()...)
// itself (the manager does not pre-filter on a System's behalf, since some
// systems legitimately need the full entity set).
type System interface {
	// Tag is the System's stable name, used for registration lookup and
	// for attributing a fatal error to its source.
	Tag() string
	// RequiredComponents declares the component types this System reads
	// or writes in its Update pass, for documentation and tooling; it is
	// advisory only.
	RequiredComponents() []ecs.TypeTag
	// Update performs this System's per-tick bulk work. It must not drive
	// per-entity decisions (that's the scheduler's job); it may decay,
	// spawn, or otherwise bulk-mutate the store.
	Update(ctx context.Context, state *State, tick int) error
}

// EventSubscriber is implemented by Systems that also react to bus topics.
// Handlers are subscribed in registration order when the System is
// registered, and stay subscribed for the System's lifetime.
type EventSubscriber interface {
	EventHandlers() map[string]eventbus.Handler
}

// SystemManager owns the ordered registry of Systems and drives their
// per-tick Update in registration order.
type SystemManager struct {
	systems []System
	byTag   map[string]System
	bus     *eventbus.Bus
}

// NewSystemManager returns an empty manager wired to bus for auto-subscribing
// EventSubscriber Systems at registration time.
func NewSystemManager(bus *eventbus.Bus) *SystemManager {
	return &SystemManager{byTag: make(map[string]System), bus: bus}
}

// RegisterSystem appends sys to the registry; registration order defines
// update order. If sys also implements EventSubscriber, its handlers are
// subscribed immediately, so on any topic they run after the handlers of
// Systems registered earlier. The EventHandlers map is ranged over in Go's
// unspecified map order, and it holds one handler per topic; a System that
// needs several handlers on one topic calls Bus.Subscribe itself.
func (m *SystemManager) RegisterSystem(sys System) error {
	if _, exists := m.byTag[sys.Tag()]; exists {
		return fmt.Errorf("sim: system %q already registered", sys.Tag())
	}
	m.systems = append(m.systems, sys)
	m.byTag[sys.Tag()] = sys
	if subscriber, ok := sys.(EventSubscriber); ok {
		for topic, handler := range subscriber.EventHandlers() {
			m.bus.Subscribe(topic, handler)
		}
	}
	return nil
}

// GetSystem looks up a registered System by tag.
func (m *SystemManager) GetSystem(tag string) (System, bool) {
	sys, ok := m.byTag[tag]
	return sys, ok
}

// Systems returns the registered Systems in registration order. Exposed for
// tooling and tests; callers must not mutate the returned slice.
func (m *SystemManager) Systems() []System {
	return m.systems
}

// UpdateAll awaits each System's Update sequentially, in registration
// order. If a System returns an error, UpdateAll stops immediately and
// returns a *TickError naming the offending System tag; it does not
// continue past a fatal System error.
func (m *SystemManager) UpdateAll(ctx context.Context, state *State, tick int) error {
	for _, sys := range m.systems {
		if err := sys.Update(ctx, state, tick); err != nil {
			return &TickError{Tick: tick, SystemTag: sys.Tag(), Err: err}
		}
	}
	return nil
}
