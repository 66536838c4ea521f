package sim

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/arla-sim/agentsim/internal/ecs"
	"github.com/arla-sim/agentsim/internal/snapshot"
	"github.com/arla-sim/agentsim/internal/validate"
)

// ManagerConfig holds the options the core recognizes for a run: snapshot
// and validation cadence, and the scaffold-concurrency limit.
type ManagerConfig struct {
	SnapshotDir         string
	SnapshotInterval    int // default 50
	ValidationInterval  int // default 10
	ScaffoldConcurrency int // default 1
}

// Manager owns State and a SystemManager and drives the tick loop and
// per-entity decision pipeline.
type Manager struct {
	state     *State
	systems   *SystemManager
	action    *ActionSystem
	generator ActionGenerator
	selector  DecisionSelector
	scaffold  *ScaffoldQueue
	validator *validate.Validator
	snapshots *snapshot.Store
	cfg       ManagerConfig
	log       *slog.Logger

	// lastSnapshot, activeCount, and totalCount are written only from Run's
	// goroutine but read from arbitrary goroutines (e.g. a dashboard's
	// publish loop), so they're atomics rather than plain fields — the
	// store itself stays exclusively owned by the scheduler's goroutine and
	// is never read from outside it.
	lastSnapshot atomic.Pointer[snapshot.Snapshot]
	activeCount  atomic.Int64
	totalCount   atomic.Int64
}

// NewManager wires State, the built-in ActionSystem (against reward), and
// the embedder's decision pipeline into a runnable Manager. cfg's zero
// values are replaced with documented defaults.
func NewManager(
	state *State,
	generator ActionGenerator,
	selector DecisionSelector,
	reward RewardCalculator,
	scaffold CognitiveScaffold,
	cfg ManagerConfig,
	logger *slog.Logger,
) *Manager {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 50
	}
	if cfg.ValidationInterval <= 0 {
		cfg.ValidationInterval = 10
	}
	if cfg.ScaffoldConcurrency <= 0 {
		cfg.ScaffoldConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	systems := NewSystemManager(state.Bus)
	action := NewActionSystem(state, reward, nil, logger)
	// The built-in ActionSystem always registers first so that a tick's
	// action_chosen publishes always reach it regardless of what other
	// Systems the embedder registers afterward.
	_ = systems.RegisterSystem(action)

	return &Manager{
		state:     state,
		systems:   systems,
		action:    action,
		generator: generator,
		selector:  selector,
		scaffold:  NewScaffoldQueue(scaffold, cfg.ScaffoldConcurrency),
		validator: validate.NewValidator(cfg.ValidationInterval),
		snapshots: snapshot.NewStore(),
		cfg:       cfg,
		log:       logger,
	}
}

// RegisterSystem exposes the embedder-facing registration point; Systems
// registered here run after the built-in ActionSystem, in the order
// they're registered.
func (m *Manager) RegisterSystem(sys System) error {
	return m.systems.RegisterSystem(sys)
}

// State returns the Manager's owned simulation state.
func (m *Manager) State() *State { return m.state }

// ScaffoldQueue exposes the turn-boundary scaffold drain queue so Systems
// can enqueue CognitiveScaffold requests from their Update or event
// handlers.
func (m *Manager) ScaffoldQueue() *ScaffoldQueue { return m.scaffold }

// Run drives ticks [startStep, endStep): active-set enumeration,
// SystemManager.UpdateAll, deterministic shuffle, per-entity turns,
// snapshot cadence. It honors ctx cooperatively between entity turns
// and between ticks, never mid-turn, and always emits a final snapshot on
// exit (clean, cancelled, or empty active set) — but never after a fatal
// error.
func (m *Manager) Run(ctx context.Context, startStep, endStep int) error {
	tick := startStep
	for ; tick < endStep; tick++ {
		if err := ctx.Err(); err != nil {
			m.snapshot(tick)
			return ErrCancelled
		}

		active := m.state.ActiveEntities()
		m.activeCount.Store(int64(len(active)))
		m.totalCount.Store(int64(m.state.Store.Len()))
		if len(active) == 0 {
			m.snapshot(tick)
			return nil
		}

		if err := m.systems.UpdateAll(ctx, m.state, tick); err != nil {
			return err
		}

		if report := m.validator.Run(m.state.Store, tick); report != nil {
			for entity, errs := range report.Violations {
				m.log.Warn("validation failure", "entity", entity, "tick", tick, "errors", errs)
			}
			for entity, fixed := range report.AutoFixed {
				if fixed {
					m.log.Info("auto-fixed component invariant", "entity", entity, "tick", tick)
				}
			}
		}

		rng := tickRNG(m.state.MasterSeed, tick)
		order := shuffle(rng, active)

		for _, entity := range order {
			if err := ctx.Err(); err != nil {
				m.snapshot(tick)
				return ErrCancelled
			}
			if !m.state.IsActive(entity) {
				// A prior turn this tick deactivated this entity; skip it.
				continue
			}
			if err := m.runTurn(ctx, entity, tick); err != nil {
				return &TickError{Tick: tick, EntityID: string(entity), Err: err}
			}
			if err := m.scaffold.Drain(ctx); err != nil {
				return &TickError{Tick: tick, Err: err}
			}
		}

		if err := m.scaffold.Drain(ctx); err != nil {
			return &TickError{Tick: tick, Err: err}
		}

		if tick > 0 && tick%m.cfg.SnapshotInterval == 0 {
			m.snapshot(tick)
		}
	}

	m.snapshot(tick)
	return nil
}

// runTurn drives one entity's turn: Generate, Select, attach the chosen
// plan, and publish action_chosen.
func (m *Manager) runTurn(ctx context.Context, entity ecs.EntityID, tick int) error {
	candidates, err := m.generator.Generate(ctx, m.state, entity, tick)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil // pass turn
	}

	plan, err := m.selector.Select(ctx, m.state, entity, candidates)
	if err != nil {
		return err
	}
	if plan == nil {
		return nil // pass turn; action_chosen must not be published
	}

	if err := m.state.Store.AddComponent(entity, plan); err != nil {
		return err
	}

	return m.state.Bus.Publish(TopicActionChosen, map[string]any{
		"entity_id":             string(entity),
		"current_tick":          tick,
		"action_plan_component": plan,
	})
}

func (m *Manager) snapshot(tick int) {
	snap := m.snapshots.Build(m.state.Store, m.state.Env, tick, m.state.SimulationID, m.state.MasterSeed)
	m.lastSnapshot.Store(snap)
	if m.cfg.SnapshotDir == "" {
		return
	}
	if err := m.snapshots.Save(m.cfg.SnapshotDir, snap); err != nil {
		m.log.Error("snapshot write failed", "tick", tick, "error", err)
	}
}

// LastSnapshot returns the most recently built snapshot, or nil if none has
// been built yet. Safe to call concurrently with Run; used by the
// dashboard server to report progress without re-deriving it from disk or
// touching the live store.
func (m *Manager) LastSnapshot() *snapshot.Snapshot { return m.lastSnapshot.Load() }

// ActiveEntityCount returns the number of entities that were active at the
// start of the most recently started tick. Safe to call concurrently with
// Run, unlike reading State.ActiveEntities() directly: the component store
// is exclusively owned by Run's goroutine (spec §5), so any concurrent
// caller — such as a dashboard's publish loop — must go through one of
// these atomics instead of the store itself.
func (m *Manager) ActiveEntityCount() int { return int(m.activeCount.Load()) }

// TotalEntityCount returns the total entity count, including inactive
// entities, as of the start of the most recently started tick. Safe to
// call concurrently with Run for the same reason as ActiveEntityCount.
func (m *Manager) TotalEntityCount() int { return int(m.totalCount.Load()) }
