package temporal

import (
	"fmt"
	"time"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
)

// ConstraintKind enumerates spec.md §4.4's add_constraint categories.
type ConstraintKind string

const (
	Deadline             ConstraintKind = "deadline"
	EarliestStart        ConstraintKind = "earliest_start"
	LatestEnd            ConstraintKind = "latest_end"
	ResourceAvailability ConstraintKind = "resource_availability"
)

// Constraint is one temporal_constraint attached to a named action via
// add_constraint (spec.md §4.4). Bound is relative to a synthetic
// "origin" time point the STN composer introduces.
type Constraint struct {
	Kind  ConstraintKind
	Bound time.Duration
}

// Apply asserts the constraint against net for actionName's start/end
// time points (named "<actionName>.start"/"<actionName>.end" by this
// package's STN-composition convention, matching LowerExecutionPattern's
// Step naming).
func (c Constraint) Apply(net *stn.STN, actionName string) error {
	switch c.Kind {
	case Deadline, LatestEnd:
		net.AddTimePoint("origin")
		return net.AddConstraint("origin", actionName+".end", stn.Bound{Min: 0, Max: c.Bound.Seconds()})
	case EarliestStart:
		net.AddTimePoint("origin")
		return net.AddConstraint("origin", actionName+".start", stn.Bound{Min: c.Bound.Seconds(), Max: stn.MaxAbsBound})
	case ResourceAvailability:
		// Resource timing is enforced by the Entity Registry's
		// allocate/release lifecycle at planning time, not by an STN
		// edge; this constraint kind is accepted for symmetry with
		// spec.md's table but contributes no bound of its own.
		return nil
	default:
		return fmt.Errorf("%w: unknown constraint kind %q", errs.ErrInvalidInput, c.Kind)
	}
}

// Specifications is the action-duration table of spec.md §4.4:
// per-action Duration plus any attached temporal Constraints, looked
// up by the domain's ActionSpec.DurationKey (falling back to the
// action's own name when DurationKey is empty).
type Specifications struct {
	durations   map[string]Duration
	constraints map[string][]Constraint
}

// NewSpecifications returns an empty action-duration table.
func NewSpecifications() *Specifications {
	return &Specifications{durations: map[string]Duration{}, constraints: map[string][]Constraint{}}
}

// AddActionDuration registers d as the duration resolved for actions
// keyed by name.
func (s *Specifications) AddActionDuration(name string, d Duration) error {
	if name == "" {
		return fmt.Errorf("%w: action duration key must not be empty", errs.ErrInvalidInput)
	}
	if err := Validate(d); err != nil {
		return err
	}
	s.durations[name] = d
	return nil
}

// GetActionDuration returns the Duration registered under name.
func (s *Specifications) GetActionDuration(name string) (Duration, bool) {
	d, ok := s.durations[name]
	return d, ok
}

// AddConstraint appends c to name's constraint list.
func (s *Specifications) AddConstraint(name string, c Constraint) {
	s.constraints[name] = append(s.constraints[name], c)
}

// GetActionConstraints returns every Constraint registered for name,
// in registration order.
func (s *Specifications) GetActionConstraints(name string) []Constraint {
	return s.constraints[name]
}
