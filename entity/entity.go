// Package entity implements the Entity Registry of SPEC_FULL.md §4.3:
// a pool of typed, capability-tagged resources that the HTN engine and
// Execution Driver allocate against a task's requirements, grounded on
// this codebase's Capability/ServiceInfo registry shape (core/agent.go,
// core/component.go) generalized from HTTP service discovery to
// arbitrary allocatable entities.
package entity

import (
	"fmt"
	"sort"
	"sync"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
)

// Spec describes one registered entity: its type, the capabilities it
// offers, and free-form properties used for cost scoring and
// constraint filtering.
type Spec struct {
	ID           string
	Type         string
	Capabilities []string
	Properties   map[string]interface{}
}

// Requirement describes what a task needs from an allocated entity.
type Requirement struct {
	Type         string
	Capabilities []string
	Properties   map[string]interface{}
	// Constraint, if set, is an additional predicate a candidate Spec
	// must satisfy beyond type/capability/property matching.
	Constraint func(Spec) bool
}

// Match pairs a candidate Spec with its computed cost (lower is
// better).
type Match struct {
	Spec Spec
	Cost float64
}

// Registry is the allocatable-entity pool. Zero value is not usable;
// use New.
type Registry struct {
	mu         sync.RWMutex
	entities   map[string]Spec
	byType     map[string]map[string]struct{}
	byCap      map[string]map[string]struct{}
	allocated  map[string]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entities: map[string]Spec{},
		byType:   map[string]map[string]struct{}{},
		byCap:    map[string]map[string]struct{}{},
		allocated: map[string]struct{}{},
	}
}

// Register adds or replaces spec in the registry.
func (r *Registry) Register(spec Spec) error {
	if spec.ID == "" {
		return fmt.Errorf("%w: entity ID must not be empty", errs.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, exists := r.entities[spec.ID]; exists {
		r.unindex(old)
	}
	r.entities[spec.ID] = spec
	r.index(spec)
	return nil
}

func (r *Registry) index(spec Spec) {
	if r.byType[spec.Type] == nil {
		r.byType[spec.Type] = map[string]struct{}{}
	}
	r.byType[spec.Type][spec.ID] = struct{}{}
	for _, c := range spec.Capabilities {
		if r.byCap[c] == nil {
			r.byCap[c] = map[string]struct{}{}
		}
		r.byCap[c][spec.ID] = struct{}{}
	}
}

func (r *Registry) unindex(spec Spec) {
	if subs, ok := r.byType[spec.Type]; ok {
		delete(subs, spec.ID)
	}
	for _, c := range spec.Capabilities {
		if subs, ok := r.byCap[c]; ok {
			delete(subs, spec.ID)
		}
	}
}

// Unregister removes an entity entirely.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spec, ok := r.entities[id]; ok {
		r.unindex(spec)
		delete(r.entities, id)
		delete(r.allocated, id)
	}
}

// Validate checks the registry's internal invariants: every entity has
// a non-empty type, and no entity ID is indexed under a capability it
// no longer lists (spec.md §4.3's validate_registry).
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, spec := range r.entities {
		if spec.Type == "" {
			return fmt.Errorf("%w: entity %q has no type", errs.ErrInvalidInput, id)
		}
	}
	for c, ids := range r.byCap {
		for id := range ids {
			spec, ok := r.entities[id]
			if !ok || !hasAllCapabilities(spec, []string{c}) {
				return fmt.Errorf("%w: entity %q indexed under capability %q it does not list", errs.ErrInvalidInput, id, c)
			}
		}
	}
	return nil
}

// skillMultipliers maps a Spec's "skill_level" property to the
// multiplier spec.md §4.3 names: an expert entity costs less per unit
// of base_cost, a novice more.
var skillMultipliers = map[string]float64{
	"expert":       0.8,
	"intermediate": 1.0,
	"novice":       1.2,
}

// candidateCost implements spec.md §4.3's cost formula: base_cost *
// skill_multiplier - capability_overlap_bonus. base_cost is read from
// spec.Properties (defaulting to 1.0); skill_multiplier comes from
// mapping a "skill_level" property through skillMultipliers, defaulting
// to 1.0 when absent or unrecognized. The overlap bonus rewards each
// capability beyond the minimum required set.
func candidateCost(spec Spec, req Requirement) float64 {
	base := propFloat(spec.Properties, "base_cost", 1.0)
	skillMult := 1.0
	if level, ok := spec.Properties["skill_level"].(string); ok {
		if mult, known := skillMultipliers[level]; known {
			skillMult = mult
		}
	}
	extra := len(spec.Capabilities) - len(req.Capabilities)
	if extra < 0 {
		extra = 0
	}
	overlapBonus := float64(extra) * 0.1
	cost := base*skillMult - overlapBonus
	if cost < 0 {
		cost = 0
	}
	return cost
}

func propFloat(props map[string]interface{}, key string, fallback float64) float64 {
	if props == nil {
		return fallback
	}
	v, ok := props[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return fallback
	}
}

func hasAllCapabilities(spec Spec, required []string) bool {
	have := map[string]struct{}{}
	for _, c := range spec.Capabilities {
		have[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

func propertiesMatch(spec Spec, required map[string]interface{}) bool {
	for k, v := range required {
		sv, ok := spec.Properties[k]
		if !ok || sv != v {
			return false
		}
	}
	return true
}

// MatchEntities returns every unallocated entity satisfying req,
// sorted ascending by cost (cheapest first), per spec.md §4.3.
func (r *Registry) MatchEntities(req Requirement) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidateIDs map[string]struct{}
	if req.Type != "" {
		candidateIDs = r.byType[req.Type]
	} else {
		candidateIDs = make(map[string]struct{}, len(r.entities))
		for id := range r.entities {
			candidateIDs[id] = struct{}{}
		}
	}

	matches := make([]Match, 0, len(candidateIDs))
	for id := range candidateIDs {
		if _, busy := r.allocated[id]; busy {
			continue
		}
		spec := r.entities[id]
		if !hasAllCapabilities(spec, req.Capabilities) {
			continue
		}
		if !propertiesMatch(spec, req.Properties) {
			continue
		}
		if req.Constraint != nil && !req.Constraint(spec) {
			continue
		}
		matches = append(matches, Match{Spec: spec, Cost: candidateCost(spec, req)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Cost != matches[j].Cost {
			return matches[i].Cost < matches[j].Cost
		}
		return matches[i].Spec.ID < matches[j].Spec.ID
	})
	return matches
}

// Allocate reserves the cheapest matching entity for req and marks it
// unavailable to subsequent callers, returning errs.ErrEntityUnavailable
// if none match.
func (r *Registry) Allocate(req Requirement) (Spec, error) {
	matches := r.MatchEntities(req)
	if len(matches) == 0 {
		return Spec{}, fmt.Errorf("%w: no entity matches type=%q capabilities=%v", errs.ErrEntityUnavailable, req.Type, req.Capabilities)
	}
	chosen := matches[0]

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.allocated[chosen.Spec.ID]; busy {
		return Spec{}, fmt.Errorf("%w: entity %q allocated concurrently", errs.ErrEntityUnavailable, chosen.Spec.ID)
	}
	r.allocated[chosen.Spec.ID] = struct{}{}
	return chosen.Spec, nil
}

// Release returns a previously-allocated entity to the pool.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.allocated, id)
}

// IsAllocated reports whether id is currently held.
func (r *Registry) IsAllocated(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.allocated[id]
	return ok
}

// Get returns the spec registered under id.
func (r *Registry) Get(id string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entities[id]
	return s, ok
}

// All returns every registered entity, in no particular order.
func (r *Registry) All() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.entities))
	for _, s := range r.entities {
		out = append(out, s)
	}
	return out
}
