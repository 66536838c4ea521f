// Package validate implements the core's periodic invariant check and
// auto-fix pass. It depends only on package ecs so that it can run over any
// Store without knowing about the simulation's action lifecycle or event
// bus.
package validate

import "github.com/arla-sim/agentsim/internal/ecs"

// Report is the structured result of one validation pass: which entities
// had which violations, and for which ones auto_fix was attempted and
// actually changed something. A validation failure is always recorded here
// and never returned as an error; it never halts the caller.
type Report struct {
	Tick       int
	Violations map[ecs.EntityID][]string
	AutoFixed  map[ecs.EntityID]bool
}

// Validator runs every K ticks (K = Interval, default 10) over every
// entity's components, invoking Validate and, for components that support
// it, AutoFix when Validate reports a failure.
type Validator struct {
	Interval int
	// AutoFixConfig is opaque, forwarded verbatim to every AutoFix call.
	AutoFixConfig map[string]any
}

// NewValidator returns a Validator with the given cadence. interval <= 0
// is treated as a default of every 10 ticks.
func NewValidator(interval int) *Validator {
	if interval <= 0 {
		interval = 10
	}
	return &Validator{Interval: interval}
}

// Run checks whether tick is a validation tick (tick % Interval == 0) and,
// if so, validates and auto-fixes every entity's components, returning a
// Report. It returns nil on ticks that aren't validation ticks, so callers
// can skip reporting cheaply.
func (v *Validator) Run(store *ecs.Store, tick int) *Report {
	if v.Interval <= 0 || tick%v.Interval != 0 {
		return nil
	}

	report := &Report{
		Tick:       tick,
		Violations: make(map[ecs.EntityID][]string),
		AutoFixed:  make(map[ecs.EntityID]bool),
	}

	for _, id := range store.EntityIDs() {
		for _, c := range store.AllComponents(id) {
			ok, errs := c.Validate(id)
			if ok {
				continue
			}
			report.Violations[id] = append(report.Violations[id], errs...)

			if fixable, canFix := c.(ecs.AutoFixable); canFix {
				changed := fixable.AutoFix(id, v.AutoFixConfig)
				report.AutoFixed[id] = report.AutoFixed[id] || changed
			}
		}
	}

	return report
}
