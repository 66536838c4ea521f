// Package ecs implements the entity/component store: a typed,
// entity-indexed bag of components with deterministic iteration order.
// Concrete component types, and the systems/policies that act on them,
// live outside this package; ecs only knows about string type tags.
package ecs

import "fmt"

// EntityID is an opaque, stable identifier for an entity. The store never
// interprets its contents; embedders are free to use UUIDs, slugs, or
// anything else that is unique within a simulation.
type EntityID string

// TypeTag is the canonical, stable name of a component type. Every
// component type is identified by a string tag and dispatched through a
// per-tag vtable (Component itself) rather than reflection.
type TypeTag string

// ErrDuplicateEntity is returned by AddEntity when the id is already present.
var ErrDuplicateEntity = fmt.Errorf("ecs: duplicate entity")

// ErrUnknownEntity is returned by operations addressing an entity that the
// store does not hold.
var ErrUnknownEntity = fmt.Errorf("ecs: unknown entity")

// ErrUnknownComponentType is returned by a ComponentFactory that cannot
// construct the requested type tag.
var ErrUnknownComponentType = fmt.Errorf("ecs: unknown component type")
