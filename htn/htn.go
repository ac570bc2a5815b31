// Package htn implements the HTN decomposition engine of SPEC_FULL.md
// §4.7: refinement of a todo list into primitive actions, trying each
// applicable method in registration order and backtracking (with
// per-node blacklisting) on failure, in the IPyHOP style where methods
// are pure re-descriptions and the working state is only the
// planning-time state snapshot — action effects are never applied
// during search, only at execution time (SPEC_FULL.md §4.1/§4.7).
// Unlike a flat-list recursive search, expansion writes directly onto
// the soltree.Tree as it goes: every attempted decomposition point
// becomes a node, failed methods are recorded in that node's blacklist
// rather than discarded, and the surviving nodes are marked Expanded
// (SPEC_FULL.md §4.6). Primitive actions that carry entity
// requirements or a registered duration allocate from the Entity
// Registry and compose their start/end time points into a per-plan
// STN, whose consistency gates the whole plan's acceptance
// (SPEC_FULL.md §2/§4.3/§4.4).
//
// Grounded on this codebase's strategy-table dispatch
// (other_examples' goagent/planning.Planner: named strategies tried
// against a goal, decomposition into steps) and its depth/retry-bound
// configuration shape (SmartPlanner.maxPlanDepth), and on
// itsneelabh-gomind/orchestration/workflow_engine.go's per-node
// telemetry span pattern.
package htn

import (
	"context"
	"errors"
	"fmt"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/config"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/domain"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/entity"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/logging"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/soltree"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/state"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/telemetry"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/temporal"
)

// Engine decomposes todo items against a domain.Registry.
type Engine struct {
	domain    *domain.Registry
	opts      config.EngineOptions
	logger    logging.Logger
	telemetry telemetry.Telemetry
	entities  *entity.Registry
	specs     *temporal.Specifications
	stnOpts   stn.Options

	lastSTN *stn.STN
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger overrides the Engine's logger (default: logging.NoOpLogger).
func WithLogger(l logging.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithTelemetry overrides the Engine's telemetry sink (default:
// telemetry.NoOpTelemetry).
func WithTelemetry(t telemetry.Telemetry) Option { return func(e *Engine) { e.telemetry = t } }

// WithEntityRegistry gives the engine an Entity Registry to allocate
// against for actions carrying EntityRequirements (spec.md §4.3).
// Without one, entity requirements are not enforced.
func WithEntityRegistry(r *entity.Registry) Option { return func(e *Engine) { e.entities = r } }

// WithTemporalSpecifications gives the engine an action-duration table
// to compose into the per-plan STN (spec.md §4.4). Without one,
// actions contribute no temporal constraints.
func WithTemporalSpecifications(s *temporal.Specifications) Option {
	return func(e *Engine) { e.specs = s }
}

// WithSTNOptions overrides the time unit/LOD/pool settings of the STN
// built fresh for each Plan call (default: stn.DefaultOptions()).
func WithSTNOptions(o stn.Options) Option { return func(e *Engine) { e.stnOpts = o } }

// New builds an Engine over d using opts.
func New(d *domain.Registry, opts config.EngineOptions, options ...Option) *Engine {
	e := &Engine{
		domain:    d,
		opts:      opts,
		logger:    logging.NoOpLogger{},
		telemetry: telemetry.NoOpTelemetry{},
		stnOpts:   stn.DefaultOptions(),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// LastSTN returns the Simple Temporal Network composed during the most
// recent Plan call (nil before the first call).
func (e *Engine) LastSTN() *stn.STN { return e.lastSTN }

// goalSatisfied reports whether a TodoGoal item already holds in st.
func goalSatisfied(g domain.TodoItem, st *state.State) bool {
	v, ok := st.GetFact(g.GoalPredicate, g.GoalSubject)
	return ok && v == g.GoalValue
}

// Plan decomposes todos against initial down to a flat primitive
// action sequence, returning the Solution Tree documenting every
// decomposition attempted (including blacklisted failures) and the
// action sequence. The STN whose consistency gated acceptance is
// available afterwards from LastSTN.
func (e *Engine) Plan(ctx context.Context, initial *state.State, todos []domain.TodoItem) (*soltree.Tree, []string, error) {
	ctx, span := e.telemetry.StartSpan(ctx, "htn.Plan")
	defer span.End()

	tree := soltree.CreateInitial(initial, todos)
	net := stn.New(e.stnOpts)
	e.lastSTN = net

	if err := e.expand(ctx, tree, tree.Root(), net, 0); err != nil {
		span.RecordError(err)
		return tree, nil, err
	}
	if !net.Consistent() {
		err := fmt.Errorf("%w: composed action durations and constraints are not jointly satisfiable", errs.ErrInconsistentPlan)
		span.RecordError(err)
		return tree, nil, err
	}

	actions := tree.GetPrimitiveActions(tree.Root())
	return tree, actions, nil
}

// ExpandNode re-runs expansion at an existing node of tree, for the
// Execution Driver's command-failure replanning path (spec.md §4.8):
// the caller blacklists the method that introduced the failing subtree
// and discards it before calling this, so the node's next attempted
// method picks up where the previous one left off.
func (e *Engine) ExpandNode(ctx context.Context, tree *soltree.Tree, nodeID string, net *stn.STN) error {
	return e.expand(ctx, tree, nodeID, net, 0)
}

// expand dispatches nodeID's todo to the handler for its kind, after
// checking both depth bounds: MaxDepth guards against runaway
// recursion (e.g. a method that re-introduces its own task), and
// MaxTreeDepth (when set) caps how deep the materialized Solution Tree
// itself is allowed to grow.
func (e *Engine) expand(ctx context.Context, tree *soltree.Tree, nodeID string, net *stn.STN, depth int) error {
	if depth > e.opts.MaxDepth {
		return fmt.Errorf("%w: exceeded max depth %d", errs.ErrDepthExceeded, e.opts.MaxDepth)
	}
	if e.opts.MaxTreeDepth > 0 && depth > e.opts.MaxTreeDepth {
		return fmt.Errorf("%w: exceeded max tree depth %d", errs.ErrDepthExceeded, e.opts.MaxTreeDepth)
	}
	node, ok := tree.Get(nodeID)
	if !ok {
		return fmt.Errorf("%w: unknown node %q", errs.ErrInvalidInput, nodeID)
	}
	if e.opts.Verbose > 0 {
		e.logger.Debug("expanding node", map[string]interface{}{
			"node": nodeID, "kind": node.Todo.Kind, "depth": depth,
		})
	}

	switch node.Todo.Kind {
	case domain.TodoTask:
		return e.expandTask(ctx, tree, nodeID, net, depth)
	case domain.TodoGoal:
		return e.expandGoal(ctx, tree, nodeID, net, depth)
	case domain.TodoMultigoal:
		return e.expandMultigoal(ctx, tree, nodeID, net, depth)
	case domain.TodoMultitodo:
		return e.expandMultitodo(ctx, tree, nodeID, net, depth)
	default:
		return fmt.Errorf("%w: unknown todo kind %v", errs.ErrInvalidInput, node.Todo.Kind)
	}
}

// taskTodos wraps a TaskMethod/MultigoalMethod/MultitodoMethod's
// static Subtasks names as TodoTask items, the form a child node
// expects.
func taskTodos(subtasks []string) []domain.TodoItem {
	out := make([]domain.TodoItem, 0, len(subtasks))
	for _, s := range subtasks {
		out = append(out, domain.TodoItem{Kind: domain.TodoTask, Task: s})
	}
	return out
}

// tryMethod materializes subTodos as children of nodeID and expands
// each in order. On a backtrackable failure it blacklists methodName
// at nodeID, releases any entities the discarded subtree had
// allocated, and discards the subtree entirely (spec.md §4.6/§4.7) so
// the caller can try the next method with a clean node.
func (e *Engine) tryMethod(ctx context.Context, tree *soltree.Tree, nodeID, methodName string, subTodos []domain.TodoItem, net *stn.STN, depth int) error {
	node, ok := tree.Get(nodeID)
	if !ok {
		return fmt.Errorf("%w: unknown node %q", errs.ErrInvalidInput, nodeID)
	}
	childIDs := make([]string, 0, len(subTodos))
	for _, todo := range subTodos {
		child, err := tree.AddChild(nodeID, todo, node.State)
		if err != nil {
			return err
		}
		childIDs = append(childIDs, child.ID)
	}
	for _, cid := range childIDs {
		if err := e.expand(ctx, tree, cid, net, depth+1); err != nil {
			if errs.IsBacktrackable(err) {
				e.releaseChildEntities(tree, nodeID)
				tree.Blacklist(nodeID, methodName)
				tree.RemoveChildren(nodeID)
			}
			return err
		}
	}
	return nil
}

func (e *Engine) expandTask(ctx context.Context, tree *soltree.Tree, nodeID string, net *stn.STN, depth int) error {
	node, _ := tree.Get(nodeID)
	task := node.Todo.Task
	st := node.State

	if spec, isAction := e.domain.Actions[task]; isAction {
		if err := checkPreconditions(spec.Preconditions, st); err != nil {
			return err
		}
		allocated, err := e.allocateEntities(spec.EntityRequirements)
		if err != nil {
			return err
		}
		if err := e.composeDuration(net, spec, st, allocated); err != nil {
			e.releaseEntities(allocated)
			return err
		}
		node.Primitive = true
		node.Action = task
		node.Expanded = true
		node.AllocatedEntities = allocated
		return nil
	}
	if _, isCommand := e.domain.Commands[task]; isCommand {
		node.Primitive = true
		node.Action = task
		node.Expanded = true
		return nil
	}

	methods, err := e.domain.MethodsForTask(task)
	if err != nil {
		if errors.Is(err, errs.ErrNoMethod) {
			// A task naming neither an action, a command, nor a method
			// is handed to the executor as-is (spec.md §4.7/§7: NoMethod
			// is not an error, it's the primitive fallback).
			node.Primitive = true
			node.Action = task
			node.Expanded = true
			return nil
		}
		return err
	}
	for _, m := range methods {
		if tree.IsBlacklisted(nodeID, m.Name) {
			continue
		}
		if err := checkPreconditions(m.Preconditions, st); err != nil {
			continue
		}
		err := e.tryMethod(ctx, tree, nodeID, m.Name, taskTodos(m.Subtasks), net, depth)
		if err == nil {
			node.MethodTried = m.Name
			node.Expanded = true
			return nil
		}
		if !errs.IsBacktrackable(err) {
			return err
		}
		e.logger.Debug("method failed, trying next", map[string]interface{}{"method": m.Name, "task": task})
	}
	return fmt.Errorf("%w: all methods exhausted for task %q", errs.ErrMethodFailure, task)
}

func (e *Engine) expandGoal(ctx context.Context, tree *soltree.Tree, nodeID string, net *stn.STN, depth int) error {
	node, _ := tree.Get(nodeID)
	g := node.Todo
	st := node.State

	if goalSatisfied(g, st) {
		node.Expanded = true
		node.Completed = true
		return nil
	}

	methods, err := e.domain.MethodsForPredicate(g.GoalPredicate)
	if err != nil {
		if errors.Is(err, errs.ErrNoMethod) {
			// An unsatisfied goal with no registered unigoal method
			// cannot be achieved by this domain; that's a method
			// failure (backtrackable at the parent), not a fatal error
			// (spec.md §4.7's "every method fails or none exist").
			return fmt.Errorf("%w: no unigoal method for predicate %q", errs.ErrMethodFailure, g.GoalPredicate)
		}
		return err
	}
	for _, m := range methods {
		if tree.IsBlacklisted(nodeID, m.Name) {
			continue
		}
		err := e.tryMethod(ctx, tree, nodeID, m.Name, taskTodos(m.Subtasks), net, depth)
		if err == nil {
			if e.opts.VerifyGoals {
				actions := tree.GetPrimitiveActions(nodeID)
				if !goalSatisfied(g, applyActions(st, e.domain, actions)) {
					e.releaseChildEntities(tree, nodeID)
					tree.Blacklist(nodeID, m.Name)
					tree.RemoveChildren(nodeID)
					continue
				}
			}
			node.MethodTried = m.Name
			node.Expanded = true
			return nil
		}
		if !errs.IsBacktrackable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: all methods exhausted for goal predicate %q", errs.ErrMethodFailure, g.GoalPredicate)
}

// expandMultigoal implements spec.md §4.7's Multigoal dispatch: if
// every contained goal already holds, the node completes with no
// children; otherwise domain MultigoalMethods are tried in order, and
// if none is registered or all fail, a default method emits each
// still-unsatisfied goal as its own goal child. A Multigoal whose
// items are not all TodoGoal (the shape soltree.CreateInitial produces
// when a caller hands Plan more than one top-level todo) is resolved
// as a plain ordered sequence instead, since "goal" semantics don't
// apply to task items.
func (e *Engine) expandMultigoal(ctx context.Context, tree *soltree.Tree, nodeID string, net *stn.STN, depth int) error {
	node, _ := tree.Get(nodeID)
	items := node.Todo.Multigoal

	allGoals := len(items) > 0
	for _, it := range items {
		if it.Kind != domain.TodoGoal {
			allGoals = false
			break
		}
	}
	if !allGoals {
		for _, todo := range items {
			child, err := tree.AddChild(nodeID, todo, node.State)
			if err != nil {
				return err
			}
			if err := e.expand(ctx, tree, child.ID, net, depth+1); err != nil {
				return err
			}
		}
		node.Expanded = true
		return nil
	}

	unsatisfied := make([]domain.TodoItem, 0, len(items))
	for _, g := range items {
		if !goalSatisfied(g, node.State) {
			unsatisfied = append(unsatisfied, g)
		}
	}
	if len(unsatisfied) == 0 {
		node.Expanded = true
		node.Completed = true
		return nil
	}

	for _, m := range e.domain.MultigoalMethods {
		if tree.IsBlacklisted(nodeID, m.Name) {
			continue
		}
		err := e.tryMethod(ctx, tree, nodeID, m.Name, taskTodos(m.Subtasks), net, depth)
		if err == nil {
			node.MethodTried = m.Name
			node.Expanded = true
			return nil
		}
		if !errs.IsBacktrackable(err) {
			return err
		}
	}

	for _, g := range unsatisfied {
		child, err := tree.AddChild(nodeID, g, node.State)
		if err != nil {
			return err
		}
		if err := e.expand(ctx, tree, child.ID, net, depth+1); err != nil {
			return err
		}
	}
	node.MethodTried = "default_multigoal"
	node.Expanded = true
	return nil
}

// expandMultitodo implements spec.md §4.7's Multitodo dispatch:
// domain MultitodoMethods are tried in order, each replacing the
// node's whole todo list with its own static Subtasks; if none is
// registered or all fail, the original todo items are resolved in
// order unchanged (the same "proceed with what was given" treatment
// spec.md gives a task with no method).
func (e *Engine) expandMultitodo(ctx context.Context, tree *soltree.Tree, nodeID string, net *stn.STN, depth int) error {
	node, _ := tree.Get(nodeID)

	for _, m := range e.domain.MultitodoMethods {
		if tree.IsBlacklisted(nodeID, m.Name) {
			continue
		}
		err := e.tryMethod(ctx, tree, nodeID, m.Name, taskTodos(m.Subtasks), net, depth)
		if err == nil {
			node.MethodTried = m.Name
			node.Expanded = true
			return nil
		}
		if !errs.IsBacktrackable(err) {
			return err
		}
	}

	for _, todo := range node.Todo.Multitodo {
		child, err := tree.AddChild(nodeID, todo, node.State)
		if err != nil {
			return err
		}
		if err := e.expand(ctx, tree, child.ID, net, depth+1); err != nil {
			return err
		}
	}
	node.Expanded = true
	return nil
}

// allocateEntities reserves one entity per requirement, rolling back
// everything already allocated if a later requirement can't be
// satisfied (spec.md §4.3). Returns (nil, nil) when no registry is
// configured, leaving entity requirements unenforced.
func (e *Engine) allocateEntities(reqs []domain.EntityRequirement) ([]string, error) {
	if e.entities == nil || len(reqs) == 0 {
		return nil, nil
	}
	allocated := make([]string, 0, len(reqs))
	for _, r := range reqs {
		spec, err := e.entities.Allocate(r.ToEntityRequirement())
		if err != nil {
			e.releaseEntities(allocated)
			return nil, err
		}
		allocated = append(allocated, spec.ID)
	}
	return allocated, nil
}

func (e *Engine) releaseEntities(ids []string) {
	if e.entities == nil {
		return
	}
	for _, id := range ids {
		e.entities.Release(id)
	}
}

// releaseChildEntities releases every entity allocated anywhere in
// nodeID's current children, used just before a failed method's
// subtree is discarded so backtracking never leaks an allocation.
func (e *Engine) releaseChildEntities(tree *soltree.Tree, nodeID string) {
	if e.entities == nil {
		return
	}
	node, ok := tree.Get(nodeID)
	if !ok {
		return
	}
	for _, cid := range node.ChildIDs {
		for _, id := range tree.GetAllDescendants(cid) {
			if n, ok := tree.Get(id); ok {
				e.releaseEntities(n.AllocatedEntities)
			}
		}
	}
}

// composeDuration resolves spec's registered Duration (if any) against
// st and allocated, and asserts it onto net as a (duration, duration)
// constraint between "<name>.start" and "<name>.end" (spec.md
// §2/§4.4), then applies any registered temporal Constraints for the
// same key.
func (e *Engine) composeDuration(net *stn.STN, spec domain.ActionSpec, st *state.State, allocated []string) error {
	if e.specs == nil {
		return nil
	}
	key := spec.DurationKey
	if key == "" {
		key = spec.Name
	}
	d, ok := e.specs.GetActionDuration(key)
	if !ok {
		return nil
	}

	resourceID := ""
	if len(allocated) > 0 {
		resourceID = allocated[0]
	}
	facts := map[string]interface{}{}
	for _, ck := range d.ConditionOrder {
		pred, subj, _, _ := splitPrecondition(ck)
		if v, ok := st.GetFact(pred, subj); ok {
			facts[ck] = v
		}
	}

	dur, err := temporal.Calculate(d, facts, resourceID)
	if err != nil {
		return err
	}
	derived := temporal.Derived{Duration: &dur}
	if err := temporal.ComposeIntoSTN(net, spec.Name+".start", spec.Name+".end", derived); err != nil {
		return err
	}
	for _, c := range e.specs.GetActionConstraints(key) {
		if err := c.Apply(net, spec.Name); err != nil {
			return err
		}
	}
	return nil
}

// checkPreconditions reports an error unless every "predicate.subject=value"
// triple (spec.md's flattened precondition string form) holds in st.
// Preconditions that don't contain an '=' are treated as plain facts
// that must simply exist (any value).
func checkPreconditions(preconds []string, st *state.State) error {
	for _, p := range preconds {
		pred, subj, val, hasVal := splitPrecondition(p)
		if hasVal {
			if !st.Matches(pred, subj, val) {
				return fmt.Errorf("%w: precondition %q not satisfied", errs.ErrMethodFailure, p)
			}
		} else if !st.HasSubject(pred, subj) {
			return fmt.Errorf("%w: precondition %q not satisfied", errs.ErrMethodFailure, p)
		}
	}
	return nil
}

func splitPrecondition(p string) (pred, subj, val string, hasVal bool) {
	eq := -1
	for i, c := range p {
		if c == '=' {
			eq = i
			break
		}
	}
	var left string
	if eq >= 0 {
		left, val, hasVal = p[:eq], p[eq+1:], true
	} else {
		left = p
	}
	dot := -1
	for i, c := range left {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return left, "", val, hasVal
	}
	return left[:dot], left[dot+1:], val, hasVal
}

// applyActions progressively applies each action's registered Effects
// onto a scratch copy of st, used only by VerifyGoals to confirm a
// candidate decomposition actually achieves its goal before accepting
// it (spec.md §4.7's optional goal-verification pass).
func applyActions(st *state.State, d *domain.Registry, actions []string) *state.State {
	cur := st
	for _, a := range actions {
		spec, ok := d.Actions[a]
		if !ok {
			continue
		}
		for k, v := range spec.Effects {
			pred, subj, _, _ := splitPrecondition(k)
			cur = cur.SetFact(pred, subj, v)
		}
	}
	return cur
}
