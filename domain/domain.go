// Package domain implements the unified domain model of SPEC_FULL.md
// §4.5: named registries of actions, commands, and methods that the
// HTN engine dispatches against, grounded on this codebase's
// WorkflowTemplate/HierarchicalPlan registry shape (table-keyed by
// name, right-biased merge on overlay) generalized from workflow
// templates to planning-domain specs.
package domain

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/entity"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
)

// EntityRequirement is the YAML-serializable shape of an
// entity.Requirement (spec.md §3's Action Specification
// entity_requirements field). It excludes entity.Requirement's
// Constraint func, which has no declarative representation in a domain
// file; ToEntityRequirement always produces a nil Constraint, leaving
// type/capability/property matching as the full feasibility check for
// domain-declared requirements.
type EntityRequirement struct {
	Type         string                 `yaml:"type,omitempty"`
	Capabilities []string               `yaml:"capabilities,omitempty"`
	Properties   map[string]interface{} `yaml:"properties,omitempty"`
}

// ToEntityRequirement converts the declarative shape into the
// entity package's matching type.
func (r EntityRequirement) ToEntityRequirement() entity.Requirement {
	return entity.Requirement{Type: r.Type, Capabilities: r.Capabilities, Properties: r.Properties}
}

// ActionSpec is a primitive, directly-executable operation.
type ActionSpec struct {
	Name          string                 `yaml:"name"`
	Preconditions []string               `yaml:"preconditions,omitempty"`
	Effects       map[string]interface{} `yaml:"effects,omitempty"`
	DurationKey   string                 `yaml:"duration_key,omitempty"`
	// EntityRequirements lists the resources this action's method must
	// allocate from the Entity Registry before the action is accepted
	// as feasible (spec.md §3/§4.3). Empty means no entity gating.
	EntityRequirements []EntityRequirement `yaml:"entity_requirements,omitempty"`
}

// CommandSpec is a primitive operation whose outcome is only known at
// execution time (spec.md §4.5), used by the Execution Driver's
// failure/replanning path.
type CommandSpec struct {
	Name   string `yaml:"name"`
	Effect string `yaml:"effect,omitempty"`
}

// TaskMethod decomposes a compound task into an ordered subtask list.
type TaskMethod struct {
	Name          string   `yaml:"name"`
	Task          string   `yaml:"task"`
	Preconditions []string `yaml:"preconditions,omitempty"`
	Subtasks      []string `yaml:"subtasks"`
}

// UnigoalMethod decomposes a single-predicate goal.
type UnigoalMethod struct {
	Name      string   `yaml:"name"`
	Predicate string   `yaml:"predicate"`
	Subtasks  []string `yaml:"subtasks"`
}

// MultigoalMethod decomposes a conjunction of goals.
type MultigoalMethod struct {
	Name     string   `yaml:"name"`
	Subtasks []string `yaml:"subtasks"`
}

// MultitodoMethod decomposes an ordered list of mixed todo items.
type MultitodoMethod struct {
	Name     string   `yaml:"name"`
	Subtasks []string `yaml:"subtasks"`
}

// TodoKind tags a TodoItem's variant.
type TodoKind int

const (
	TodoTask TodoKind = iota
	TodoGoal
	TodoMultigoal
	TodoMultitodo
)

// TodoItem is the tagged variant of spec.md §4.5: a unit of work on
// the agenda, either a compound/primitive task name, a single-goal
// (predicate, subject, value) triple, a multigoal (set of such
// triples), or a multitodo (an ordered list of mixed todo items to be
// resolved together, distinct from a multigoal in that its members
// need not all be goals).
type TodoItem struct {
	Kind TodoKind

	// TodoTask
	Task string

	// TodoGoal
	GoalPredicate string
	GoalSubject   string
	GoalValue     interface{}

	// TodoMultigoal
	Multigoal []TodoItem

	// TodoMultitodo
	Multitodo []TodoItem
}

// Registry is the unified domain model: every named ActionSpec,
// CommandSpec, and method kind, keyed by name with method lists kept
// in registration order (spec.md §4.5's method-ordering contract for
// the HTN engine's try-in-order dispatch).
type Registry struct {
	Actions          map[string]ActionSpec
	Commands         map[string]CommandSpec
	TaskMethods      map[string][]TaskMethod
	UnigoalMethods   map[string][]UnigoalMethod
	MultigoalMethods []MultigoalMethod
	MultitodoMethods []MultitodoMethod
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		Actions:        map[string]ActionSpec{},
		Commands:       map[string]CommandSpec{},
		TaskMethods:    map[string][]TaskMethod{},
		UnigoalMethods: map[string][]UnigoalMethod{},
	}
}

// RegisterAction adds or replaces a primitive action.
func (r *Registry) RegisterAction(a ActionSpec) error {
	if a.Name == "" {
		return fmt.Errorf("%w: action name must not be empty", errs.ErrInvalidInput)
	}
	r.Actions[a.Name] = a
	return nil
}

// RegisterCommand adds or replaces a command.
func (r *Registry) RegisterCommand(c CommandSpec) error {
	if c.Name == "" {
		return fmt.Errorf("%w: command name must not be empty", errs.ErrInvalidInput)
	}
	r.Commands[c.Name] = c
	return nil
}

// RegisterTaskMethod appends m to the ordered method list for its
// Task. Order is preserved: earlier-registered methods are tried
// first by the HTN engine.
func (r *Registry) RegisterTaskMethod(m TaskMethod) error {
	if m.Task == "" {
		return fmt.Errorf("%w: task method must name a task", errs.ErrInvalidInput)
	}
	r.TaskMethods[m.Task] = append(r.TaskMethods[m.Task], m)
	return nil
}

// RegisterUnigoalMethod appends m to the ordered method list for its
// Predicate.
func (r *Registry) RegisterUnigoalMethod(m UnigoalMethod) error {
	if m.Predicate == "" {
		return fmt.Errorf("%w: unigoal method must name a predicate", errs.ErrInvalidInput)
	}
	r.UnigoalMethods[m.Predicate] = append(r.UnigoalMethods[m.Predicate], m)
	return nil
}

// RegisterMultigoalMethod appends m to the multigoal method list.
func (r *Registry) RegisterMultigoalMethod(m MultigoalMethod) {
	r.MultigoalMethods = append(r.MultigoalMethods, m)
}

// RegisterMultitodoMethod appends m to the multitodo method list.
func (r *Registry) RegisterMultitodoMethod(m MultitodoMethod) {
	r.MultitodoMethods = append(r.MultitodoMethods, m)
}

// MethodsForTask returns the ordered TaskMethod list registered for
// task, or errs.ErrNoMethod if none exist.
func (r *Registry) MethodsForTask(task string) ([]TaskMethod, error) {
	methods, ok := r.TaskMethods[task]
	if !ok || len(methods) == 0 {
		return nil, fmt.Errorf("%w: no method for task %q", errs.ErrNoMethod, task)
	}
	return methods, nil
}

// MethodsForPredicate returns the ordered UnigoalMethod list
// registered for predicate, or errs.ErrNoMethod if none exist.
func (r *Registry) MethodsForPredicate(predicate string) ([]UnigoalMethod, error) {
	methods, ok := r.UnigoalMethods[predicate]
	if !ok || len(methods) == 0 {
		return nil, fmt.Errorf("%w: no method for predicate %q", errs.ErrNoMethod, predicate)
	}
	return methods, nil
}

// Merge overlays other onto r: overlapping action/command names and
// method-by-key lists are replaced wholesale by other's (right-biased,
// matching state.Merge's convention), not concatenated — a domain
// overlay is meant to supersede, not extend.
func (r *Registry) Merge(other *Registry) *Registry {
	merged := New()
	for k, v := range r.Actions {
		merged.Actions[k] = v
	}
	for k, v := range other.Actions {
		merged.Actions[k] = v
	}
	for k, v := range r.Commands {
		merged.Commands[k] = v
	}
	for k, v := range other.Commands {
		merged.Commands[k] = v
	}
	for k, v := range r.TaskMethods {
		merged.TaskMethods[k] = v
	}
	for k, v := range other.TaskMethods {
		merged.TaskMethods[k] = v
	}
	for k, v := range r.UnigoalMethods {
		merged.UnigoalMethods[k] = v
	}
	for k, v := range other.UnigoalMethods {
		merged.UnigoalMethods[k] = v
	}
	merged.MultigoalMethods = append(append([]MultigoalMethod{}, r.MultigoalMethods...), other.MultigoalMethods...)
	merged.MultitodoMethods = append(append([]MultitodoMethod{}, r.MultitodoMethods...), other.MultitodoMethods...)
	return merged
}

// Validate checks that every TaskMethod's subtasks reference either a
// registered action, command, or another task with methods — catching
// typos in a hand-authored domain file before planning starts.
func (r *Registry) Validate() error {
	known := func(name string) bool {
		if _, ok := r.Actions[name]; ok {
			return true
		}
		if _, ok := r.Commands[name]; ok {
			return true
		}
		if _, ok := r.TaskMethods[name]; ok {
			return true
		}
		return false
	}
	for task, methods := range r.TaskMethods {
		for _, m := range methods {
			for _, sub := range m.Subtasks {
				if !known(sub) {
					return fmt.Errorf("%w: task method %q (for %q) references unknown subtask %q", errs.ErrInvalidInput, m.Name, task, sub)
				}
			}
		}
	}
	for predicate, methods := range r.UnigoalMethods {
		for _, m := range methods {
			for _, sub := range m.Subtasks {
				if !known(sub) {
					return fmt.Errorf("%w: unigoal method %q (for predicate %q) references unknown subtask %q", errs.ErrInvalidInput, m.Name, predicate, sub)
				}
			}
		}
	}
	for _, m := range r.MultigoalMethods {
		for _, sub := range m.Subtasks {
			if !known(sub) {
				return fmt.Errorf("%w: multigoal method %q references unknown subtask %q", errs.ErrInvalidInput, m.Name, sub)
			}
		}
	}
	for _, m := range r.MultitodoMethods {
		for _, sub := range m.Subtasks {
			if !known(sub) {
				return fmt.Errorf("%w: multitodo method %q references unknown subtask %q", errs.ErrInvalidInput, m.Name, sub)
			}
		}
	}
	return nil
}

// file is the YAML-serializable shape of a Registry, used by
// LoadSpecs/DumpSpecs.
type file struct {
	Actions          []ActionSpec      `yaml:"actions,omitempty"`
	Commands         []CommandSpec     `yaml:"commands,omitempty"`
	TaskMethods      []TaskMethod      `yaml:"task_methods,omitempty"`
	UnigoalMethods   []UnigoalMethod   `yaml:"unigoal_methods,omitempty"`
	MultigoalMethods []MultigoalMethod `yaml:"multigoal_methods,omitempty"`
	MultitodoMethods []MultitodoMethod `yaml:"multitodo_methods,omitempty"`
}

// LoadSpecs parses a YAML domain file into a Registry.
func LoadSpecs(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	r := New()
	for _, a := range f.Actions {
		if err := r.RegisterAction(a); err != nil {
			return nil, err
		}
	}
	for _, c := range f.Commands {
		if err := r.RegisterCommand(c); err != nil {
			return nil, err
		}
	}
	for _, m := range f.TaskMethods {
		if err := r.RegisterTaskMethod(m); err != nil {
			return nil, err
		}
	}
	for _, m := range f.UnigoalMethods {
		if err := r.RegisterUnigoalMethod(m); err != nil {
			return nil, err
		}
	}
	for _, m := range f.MultigoalMethods {
		r.RegisterMultigoalMethod(m)
	}
	for _, m := range f.MultitodoMethods {
		r.RegisterMultitodoMethod(m)
	}
	return r, nil
}

// DumpSpecs serializes r to YAML.
func DumpSpecs(r *Registry) ([]byte, error) {
	f := file{MultigoalMethods: r.MultigoalMethods, MultitodoMethods: r.MultitodoMethods}
	for _, a := range r.Actions {
		f.Actions = append(f.Actions, a)
	}
	for _, c := range r.Commands {
		f.Commands = append(f.Commands, c)
	}
	for _, methods := range r.TaskMethods {
		f.TaskMethods = append(f.TaskMethods, methods...)
	}
	for _, methods := range r.UnigoalMethods {
		f.UnigoalMethods = append(f.UnigoalMethods, methods...)
	}
	return yaml.Marshal(f)
}
