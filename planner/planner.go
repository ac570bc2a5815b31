// Package planner is the Planning API of SPEC_FULL.md §6: the
// module's front door, wiring domain.Registry, htn.Engine,
// soltree.Tree, and execute.Driver into the three entry points a
// caller actually needs (plan-only, plan-then-execute, and
// execute-a-precomputed-tree), matching
// itsneelabh-gomind/orchestration/interfaces.go's Orchestrator
// interface tri-mode shape
// (ProcessRequest/ExecutePlan/ExecutePlanWithSynthesis) mapped onto
// this domain's plan/run_lazy/run_lazy_tree entry points.
package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/config"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/domain"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/entity"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/execute"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/htn"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/logging"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/soltree"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/state"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/telemetry"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/temporal"
)

// maxReplanAttempts bounds how many times RunLazyTree will blacklist a
// failing method and re-expand before giving up and surfacing the
// original command failure (spec.md §4.8).
const maxReplanAttempts = 3

// Metadata reports how a Plan call went, beyond the tree itself
// (spec.md §6's Result metadata field).
type Metadata struct {
	Actions      []string
	DepthReached bool
}

// Result is the plan-only outcome.
type Result struct {
	SolutionTree *soltree.Tree
	Metadata     Metadata
}

// RunResult is the plan-then-execute (or execute-tree) outcome.
type RunResult struct {
	SolutionTree *soltree.Tree
	FinalState   *state.State
	Metadata     Metadata
}

// Planner wires a domain.Registry to the HTN engine and Execution
// Driver under a single set of options.
type Planner struct {
	domain    *domain.Registry
	runner    execute.CommandRunner
	logger    logging.Logger
	telemetry telemetry.Telemetry
	entities  *entity.Registry
	specs     *temporal.Specifications
	stnOpts   stn.Options
}

// Option configures a Planner at construction.
type Option func(*Planner)

func WithLogger(l logging.Logger) Option { return func(p *Planner) { p.logger = l } }
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(p *Planner) { p.telemetry = t }
}

// WithEntityRegistry wires spec.md §4.3's Entity Registry into every
// htn.Engine this Planner constructs, so Plan/RunLazy/replan actually
// allocate and release entities against ActionSpec.EntityRequirements
// rather than only doing so when a caller builds an htn.Engine by hand.
func WithEntityRegistry(r *entity.Registry) Option {
	return func(p *Planner) { p.entities = r }
}

// WithTemporalSpecifications wires spec.md §4.4's action-duration and
// constraint tables into every htn.Engine this Planner constructs.
func WithTemporalSpecifications(s *temporal.Specifications) Option {
	return func(p *Planner) { p.specs = s }
}

// WithSTNOptions overrides the default Simple Temporal Network options
// used both for planning and for the STN composed during replanning.
func WithSTNOptions(o stn.Options) Option {
	return func(p *Planner) { p.stnOpts = o }
}

// New builds a Planner over d. runner executes CommandSpecs during
// run_lazy/run_lazy_tree; it may be nil if d registers no commands.
func New(d *domain.Registry, runner execute.CommandRunner, opts ...Option) *Planner {
	p := &Planner{
		domain:    d,
		runner:    runner,
		logger:    logging.NoOpLogger{},
		telemetry: telemetry.NoOpTelemetry{},
		stnOpts:   stn.DefaultOptions(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// validateInputs enforces spec.md §6's fail-fast pre-checks: empty
// domain, null state, non-list todos.
func validateInputs(d *domain.Registry, st *state.State, todos []domain.TodoItem) error {
	if d == nil {
		return fmt.Errorf("%w: domain must not be nil", errs.ErrInvalidInput)
	}
	if len(d.Actions) == 0 && len(d.Commands) == 0 && len(d.TaskMethods) == 0 &&
		len(d.UnigoalMethods) == 0 && len(d.MultigoalMethods) == 0 && len(d.MultitodoMethods) == 0 {
		return fmt.Errorf("%w: domain must not be empty", errs.ErrInvalidInput)
	}
	if st == nil {
		return fmt.Errorf("%w: state must not be nil", errs.ErrInvalidInput)
	}
	if todos == nil {
		return fmt.Errorf("%w: todos must not be nil", errs.ErrInvalidInput)
	}
	return nil
}

// Plan decomposes todos against initial state without executing
// anything or mutating state (spec.md §6's `plan`).
func (p *Planner) Plan(ctx context.Context, initial *state.State, todos []domain.TodoItem, opts config.EngineOptions) (Result, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "planner.Plan")
	defer span.End()

	if err := validateInputs(p.domain, initial, todos); err != nil {
		return Result{}, err
	}

	engine := p.newEngine(opts)
	tree, actions, err := engine.Plan(ctx, initial, todos)
	meta := Metadata{Actions: actions, DepthReached: errors.Is(err, errs.ErrDepthExceeded)}
	if err != nil {
		span.RecordError(err)
		return Result{SolutionTree: tree, Metadata: meta}, err
	}
	return Result{SolutionTree: tree, Metadata: meta}, nil
}

// RunLazy plans then immediately executes the result (spec.md §6's
// `run_lazy`), the common case where a caller has no interest in a
// plan it doesn't intend to run.
func (p *Planner) RunLazy(ctx context.Context, initial *state.State, todos []domain.TodoItem, opts config.EngineOptions) (RunResult, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "planner.RunLazy")
	defer span.End()

	planResult, err := p.Plan(ctx, initial, todos, opts)
	if err != nil {
		span.RecordError(err)
		return RunResult{SolutionTree: planResult.SolutionTree, Metadata: planResult.Metadata}, err
	}
	return p.RunLazyTree(ctx, initial, planResult.SolutionTree, opts)
}

// RunLazyTree executes a pre-computed Solution Tree against initial
// (spec.md §6's `run_lazy_tree`), letting a caller persist a plan and
// execute it later, or replan only a failed subtree and re-run from
// there.
func (p *Planner) RunLazyTree(ctx context.Context, initial *state.State, tree *soltree.Tree, opts config.EngineOptions) (RunResult, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "planner.RunLazyTree")
	defer span.End()

	if p.domain == nil {
		return RunResult{}, fmt.Errorf("%w: domain must not be nil", errs.ErrInvalidInput)
	}
	if tree == nil {
		return RunResult{}, fmt.Errorf("%w: solution tree must not be nil", errs.ErrInvalidInput)
	}

	driver := execute.New(p.domain, p.runner, execute.WithLogger(p.logger), execute.WithTelemetry(p.telemetry))

	var results []execute.Result
	var final *state.State
	var err error
	for attempt := 0; ; attempt++ {
		results, final, err = driver.Run(ctx, tree, tree.Root())
		actions := make([]string, 0, len(results))
		for _, r := range results {
			actions = append(actions, r.Action)
		}
		meta := Metadata{Actions: actions}

		if err == nil {
			return RunResult{SolutionTree: tree, FinalState: final, Metadata: meta}, nil
		}
		if !errors.Is(err, errs.ErrCommandFailure) || attempt >= maxReplanAttempts {
			span.RecordError(err)
			return RunResult{SolutionTree: tree, FinalState: final, Metadata: meta}, err
		}
		failingNodeID := results[len(results)-1].NodeID
		if !p.replan(ctx, tree, failingNodeID, opts) {
			span.RecordError(err)
			return RunResult{SolutionTree: tree, FinalState: final, Metadata: meta}, err
		}
	}
}

// replan implements spec.md §4.8's command-failure recovery: it walks
// up from the node that just failed at execution time to the parent
// that chose its method, blacklists that method, discards the
// subtree, and re-expands the parent so the next RunLazyTree attempt
// sees a fresh (and hopefully different) decomposition. It reports
// whether a replan was actually attempted — false means there was no
// parent method to blacklist (e.g. the failing node is the tree root,
// or its parent expanded its items without a registered method, as the
// multigoal and multitodo fallbacks do), or the
// re-expansion itself failed to produce a viable alternative, in which
// case the caller should surface the original failure as-is.
func (p *Planner) replan(ctx context.Context, tree *soltree.Tree, failingNodeID string, opts config.EngineOptions) bool {
	node, ok := tree.Get(failingNodeID)
	if !ok || node.ParentID == "" {
		return false
	}
	parent, ok := tree.Get(node.ParentID)
	if !ok || parent.MethodTried == "" {
		return false
	}

	tree.Blacklist(node.ParentID, parent.MethodTried)
	tree.RemoveChildren(node.ParentID)

	engine := p.newEngine(opts)
	net := stn.New(p.stnOpts)
	if err := engine.ExpandNode(ctx, tree, node.ParentID, net); err != nil {
		return false
	}
	return true
}

// newEngine constructs an htn.Engine carrying every optional dependency
// this Planner was configured with, so Plan and replan see the same
// entity pool and temporal specifications.
func (p *Planner) newEngine(opts config.EngineOptions) *htn.Engine {
	engineOpts := []htn.Option{htn.WithLogger(p.logger), htn.WithTelemetry(p.telemetry), htn.WithSTNOptions(p.stnOpts)}
	if p.entities != nil {
		engineOpts = append(engineOpts, htn.WithEntityRegistry(p.entities))
	}
	if p.specs != nil {
		engineOpts = append(engineOpts, htn.WithTemporalSpecifications(p.specs))
	}
	return htn.New(p.domain, opts, engineOpts...)
}
