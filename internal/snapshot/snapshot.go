// Package snapshot implements the deterministic serialization and restore
// protocol for a simulation run: a complete, restorable description of the
// ECS store at a tick boundary. It depends only on package ecs; it never
// imports package sim, so that sim can in turn depend on snapshot without a
// cycle.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/arla-sim/agentsim/internal/ecs"
)

// Environment is the narrow, duck-typed slice of sim.Environment that
// snapshotting needs. Any concrete Environment implementation (including
// sim.Environment values) satisfies this automatically.
type Environment interface {
	ToDict() map[string]any
	RestoreFromDict(data map[string]any) error
}

// Snapshot is the JSON-serializable description of a SimulationState at a
// tick boundary. The top-level key set is exactly
// {tick, simulation_id, seed, entities, environment}.
type Snapshot struct {
	Tick         int                                   `json:"tick"`
	SimulationID string                                `json:"simulation_id"`
	Seed         *int64                                `json:"seed"`
	Entities     map[string]map[string]map[string]any  `json:"entities"`
	Environment  map[string]any                        `json:"environment"`
}

// ErrCorrupt is returned when Restore cannot reconstruct the store from a
// snapshot, e.g. because the ComponentFactory rejected a type tag. Restore
// never partially rebuilds the store when this happens.
type ErrCorrupt struct {
	Detail string
}

func (e *ErrCorrupt) Error() string { return fmt.Sprintf("snapshot: corrupt: %s", e.Detail) }

// Store builds, writes, and reads Snapshots.
type Store struct{}

// NewStore returns a Store. It carries no state of its own; every method is
// a pure function of its arguments plus the filesystem.
func NewStore() *Store { return &Store{} }

// Build serializes store, env, and the run's identity into a Snapshot.
// Each entity's components are run through their own ToDict, keyed by
// canonical type tag; iteration is insertion order, matching the store's
// own deterministic traversal.
func (s *Store) Build(store *ecs.Store, env Environment, tick int, simulationID string, seed *int64) *Snapshot {
	entities := make(map[string]map[string]map[string]any, store.Len())
	for _, id := range store.EntityIDs() {
		bag := store.AllComponents(id)
		tags := make([]string, 0, len(bag))
		for tag := range bag {
			tags = append(tags, string(tag))
		}
		sort.Strings(tags)

		components := make(map[string]map[string]any, len(bag))
		for _, tag := range tags {
			components[tag] = bag[ecs.TypeTag(tag)].ToDict()
		}
		entities[string(id)] = components
	}

	var envDict map[string]any
	if env != nil {
		envDict = env.ToDict()
	}

	var seedCopy *int64
	if seed != nil {
		v := *seed
		seedCopy = &v
	}

	return &Snapshot{
		Tick:         tick,
		SimulationID: simulationID,
		Seed:         seedCopy,
		Entities:     entities,
		Environment:  envDict,
	}
}

// Filename returns the on-disk name a snapshot at the given tick is stored
// under: snapshot_tick_<N>.json.
func Filename(tick int) string {
	return fmt.Sprintf("snapshot_tick_%d.json", tick)
}

// Save writes snap to dir/snapshot_tick_<N>.json. The write is staged to a
// temp file in the same directory and renamed into place, so a reader never
// observes a partially written snapshot.
func (s *Store) Save(dir string, snap *Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	finalPath := filepath.Join(dir, Filename(snap.Tick))
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// Load reads and decodes a single snapshot file.
func (s *Store) Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	return &snap, nil
}

// Restore reconstructs an ecs.Store from snap using factory to rehydrate
// each component from its ToDict form, and applies snap's environment dict
// to env (if non-nil). It returns *ErrCorrupt, with the factory's error text
// in Detail, the moment any single component fails to rehydrate; the returned
// store is nil in that case; Restore never hands back a partially rebuilt
// store.
func (s *Store) Restore(snap *Snapshot, factory ecs.ComponentFactory, env Environment) (*ecs.Store, error) {
	store := ecs.NewStore()

	ids := make([]string, 0, len(snap.Entities))
	for id := range snap.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entity := ecs.EntityID(id)
		if err := store.AddEntity(entity); err != nil {
			return nil, &ErrCorrupt{Detail: fmt.Sprintf("entity %s: %v", id, err)}
		}

		tags := make([]string, 0, len(snap.Entities[id]))
		for tag := range snap.Entities[id] {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		for _, tag := range tags {
			data := snap.Entities[id][tag]
			component, err := factory.CreateComponent(ecs.TypeTag(tag), data)
			if err != nil {
				return nil, &ErrCorrupt{Detail: fmt.Sprintf("entity %s component %s: %v", id, tag, err)}
			}
			if err := store.AddComponent(entity, component); err != nil {
				return nil, &ErrCorrupt{Detail: fmt.Sprintf("entity %s component %s: %v", id, tag, err)}
			}
		}
	}

	if env != nil && snap.Environment != nil {
		if err := env.RestoreFromDict(snap.Environment); err != nil {
			return nil, &ErrCorrupt{Detail: fmt.Sprintf("environment: %v", err)}
		}
	}

	return store, nil
}
