// Package state implements the triple-indexed fact store of
// SPEC_FULL.md §3/§4.1: a State is an immutable value mapping
// (predicate, subject) -> value, with reverse indices for the
// quantifier queries Exists/Forall need.
//
// States are never mutated in place once built — every mutating
// operation returns a new State built from a full copy of the
// underlying maps (no structure is shared with the original), matching
// spec.md §3's "State is treated as a value" contract and the
// IPyHOP-style discipline the HTN engine depends on (children inherit
// the parent's cached state unchanged during planning).
package state

import "time"

// Fact is a (predicate, subject, value) triple. Value equality is
// whatever the domain's values support via ==.
type Fact struct {
	Predicate string
	Subject   string
	Value     interface{}
}

type key struct {
	predicate string
	subject   string
}

type temporalFact struct {
	value     interface{}
	validFrom time.Time
	validTo   time.Time // zero value means "still valid"
}

// State is an immutable fact store. The zero value is not usable; use
// New().
type State struct {
	facts         map[key]interface{}
	byPredicate   map[string]map[string]struct{}         // predicate -> subjects
	byPredVal     map[string]map[interface{}]map[string]struct{} // predicate -> value -> subjects
	temporalFacts map[key][]temporalFact
}

// New returns an empty State.
func New() *State {
	return &State{
		facts:       map[key]interface{}{},
		byPredicate: map[string]map[string]struct{}{},
		byPredVal:   map[string]map[interface{}]map[string]struct{}{},
	}
}

// clone copies the fact map and every index map, including each leaf
// subject set, so the new State shares no mutable map with s.
func (s *State) clone() *State {
	ns := &State{
		facts:       make(map[key]interface{}, len(s.facts)+1),
		byPredicate: make(map[string]map[string]struct{}, len(s.byPredicate)),
		byPredVal:   make(map[string]map[interface{}]map[string]struct{}, len(s.byPredVal)),
	}
	for k, v := range s.facts {
		ns.facts[k] = v
	}
	for p, subs := range s.byPredicate {
		cp := make(map[string]struct{}, len(subs))
		for sub := range subs {
			cp[sub] = struct{}{}
		}
		ns.byPredicate[p] = cp
	}
	for p, byVal := range s.byPredVal {
		cp := make(map[interface{}]map[string]struct{}, len(byVal))
		for v, subs := range byVal {
			subCp := make(map[string]struct{}, len(subs))
			for sub := range subs {
				subCp[sub] = struct{}{}
			}
			cp[v] = subCp
		}
		ns.byPredVal[p] = cp
	}
	if s.temporalFacts != nil {
		ns.temporalFacts = make(map[key][]temporalFact, len(s.temporalFacts))
		for k, v := range s.temporalFacts {
			cp := make([]temporalFact, len(v))
			copy(cp, v)
			ns.temporalFacts[k] = cp
		}
	}
	return ns
}

// SetFact returns a new State with (predicate, subject) bound to value.
func (s *State) SetFact(predicate, subject string, value interface{}) *State {
	ns := s.clone()
	k := key{predicate, subject}
	if old, existed := ns.facts[k]; existed {
		ns.unindex(predicate, subject, old)
	}
	ns.facts[k] = value
	ns.index(predicate, subject, value)
	return ns
}

func (s *State) index(predicate, subject string, value interface{}) {
	if s.byPredicate[predicate] == nil {
		s.byPredicate[predicate] = map[string]struct{}{}
	}
	s.byPredicate[predicate][subject] = struct{}{}

	if s.byPredVal[predicate] == nil {
		s.byPredVal[predicate] = map[interface{}]map[string]struct{}{}
	}
	if s.byPredVal[predicate][value] == nil {
		s.byPredVal[predicate][value] = map[string]struct{}{}
	}
	s.byPredVal[predicate][value][subject] = struct{}{}
}

func (s *State) unindex(predicate, subject string, value interface{}) {
	if subs, ok := s.byPredicate[predicate]; ok {
		delete(subs, subject)
		if len(subs) == 0 {
			delete(s.byPredicate, predicate)
		}
	}
	if byVal, ok := s.byPredVal[predicate]; ok {
		if subs, ok := byVal[value]; ok {
			delete(subs, subject)
			if len(subs) == 0 {
				delete(byVal, value)
			}
		}
		if len(byVal) == 0 {
			delete(s.byPredVal, predicate)
		}
	}
}

// GetFact returns the value bound to (predicate, subject) and whether
// it exists.
func (s *State) GetFact(predicate, subject string) (interface{}, bool) {
	v, ok := s.facts[key{predicate, subject}]
	return v, ok
}

// RemoveFact returns a new State with (predicate, subject) absent.
func (s *State) RemoveFact(predicate, subject string) *State {
	k := key{predicate, subject}
	old, existed := s.facts[k]
	if !existed {
		return s
	}
	ns := s.clone()
	delete(ns.facts, k)
	ns.unindex(predicate, subject, old)
	return ns
}

// HasSubject reports whether predicate has any fact about subject.
func (s *State) HasSubject(predicate, subject string) bool {
	_, ok := s.facts[key{predicate, subject}]
	return ok
}

// Matches reports whether (predicate, subject) == value exactly.
func (s *State) Matches(predicate, subject string, value interface{}) bool {
	v, ok := s.facts[key{predicate, subject}]
	return ok && v == value
}

// GetSubjectsWithPredicate returns every subject with a fact under
// predicate.
func (s *State) GetSubjectsWithPredicate(predicate string) []string {
	subs := s.byPredicate[predicate]
	out := make([]string, 0, len(subs))
	for sub := range subs {
		out = append(out, sub)
	}
	return out
}

// GetSubjectsWithFact returns every subject where predicate(subject) ==
// value.
func (s *State) GetSubjectsWithFact(predicate string, value interface{}) []string {
	subs := s.byPredVal[predicate][value]
	out := make([]string, 0, len(subs))
	for sub := range subs {
		out = append(out, sub)
	}
	return out
}

// Exists reports whether some subject (optionally restricted by filter)
// has predicate(subject) == value.
func (s *State) Exists(predicate string, value interface{}, filter func(subject string) bool) bool {
	subs := s.byPredVal[predicate][value]
	if filter == nil {
		return len(subs) > 0
	}
	for sub := range subs {
		if filter(sub) {
			return true
		}
	}
	return false
}

// Forall reports whether every subject satisfying filter has
// predicate(subject) == value. filter enumerates the universe via
// universe; an empty universe is vacuously true.
func (s *State) Forall(predicate string, value interface{}, universe []string, filter func(subject string) bool) bool {
	for _, sub := range universe {
		if filter != nil && !filter(sub) {
			continue
		}
		v, ok := s.facts[key{predicate, sub}]
		if !ok || v != value {
			return false
		}
	}
	return true
}

// Merge returns a new State with other's facts overlaid on s
// (right-biased: other wins on key collisions).
func (s *State) Merge(other *State) *State {
	ns := s.clone()
	for k, v := range other.facts {
		if old, existed := ns.facts[k]; existed {
			ns.unindex(k.predicate, k.subject, old)
		}
		ns.facts[k] = v
		ns.index(k.predicate, k.subject, v)
	}
	return ns
}

// ToTriples flattens the State into a Fact slice (order unspecified).
func (s *State) ToTriples() []Fact {
	out := make([]Fact, 0, len(s.facts))
	for k, v := range s.facts {
		out = append(out, Fact{Predicate: k.predicate, Subject: k.subject, Value: v})
	}
	return out
}

// FromTriples builds a fresh State from a Fact slice.
func FromTriples(facts []Fact) *State {
	s := New()
	for _, f := range facts {
		s = s.SetFact(f.Predicate, f.Subject, f.Value)
	}
	return s
}

// Copy returns a State equal to s but safe to pass to callers that
// might (incorrectly) try to mutate it in place — the copy shares no
// internally mutable map with s. It is s.clone() exposed for callers
// outside this package.
func (s *State) Copy() *State {
	return s.clone()
}

// SetTemporalFact attaches a bitemporal validity window to a fact,
// resolving spec.md §9's "documented but inert" SetTemporalFact open
// question as: implement truly. validTo may be the zero Time to mean
// "open-ended / still valid".
func (s *State) SetTemporalFact(predicate, subject string, value interface{}, validFrom, validTo time.Time) *State {
	ns := s.clone()
	if ns.temporalFacts == nil {
		ns.temporalFacts = map[key][]temporalFact{}
	}
	k := key{predicate, subject}
	ns.temporalFacts[k] = append(append([]temporalFact{}, ns.temporalFacts[k]...), temporalFact{
		value: value, validFrom: validFrom, validTo: validTo,
	})
	return ns
}

// TemporalValue returns the value of (predicate, subject) valid as of
// asOf, if any was recorded via SetTemporalFact.
func (s *State) TemporalValue(predicate, subject string, asOf time.Time) (interface{}, bool) {
	entries := s.temporalFacts[key{predicate, subject}]
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if asOf.Before(e.validFrom) {
			continue
		}
		if !e.validTo.IsZero() && !asOf.Before(e.validTo) {
			continue
		}
		return e.value, true
	}
	return nil, false
}
