// Package execute implements the Execution Driver of SPEC_FULL.md
// §4.8: it walks a Solution Tree's primitive actions depth-first,
// applies each one's effects sequentially against the live state, and
// on a command's runtime failure triggers bounded retry before giving
// up and surfacing a replanning signal to the caller.
//
// Grounded on itsneelabh-gomind/orchestration/executor.go's
// step-walk-with-retry shape and resilience/retry.go's exponential
// backoff with jitter, adapted from an HTTP step executor to a local
// effect-application loop over domain.ActionSpec/CommandSpec.
package execute

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/domain"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/logging"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/soltree"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/state"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/telemetry"
)

// CommandRunner executes a CommandSpec against the live world and
// reports success/failure; callers supply the actual side-effecting
// implementation (spec.md §4.8 treats commands as opaque).
type CommandRunner func(ctx context.Context, cmd domain.CommandSpec) error

// RetryPolicy bounds command-failure retry (grounded on
// resilience.RetryConfig).
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy mirrors the teacher's DefaultRetryConfig.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, BackoffFactor: 2.0}
}

// Driver runs a Solution Tree's primitive actions to completion.
type Driver struct {
	domain    *domain.Registry
	runner    CommandRunner
	retry     RetryPolicy
	logger    logging.Logger
	telemetry telemetry.Telemetry
}

// Option configures a Driver.
type Option func(*Driver)

func WithRetryPolicy(p RetryPolicy) Option { return func(d *Driver) { d.retry = p } }
func WithLogger(l logging.Logger) Option   { return func(d *Driver) { d.logger = l } }
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(d *Driver) { d.telemetry = t }
}

// New builds a Driver. runner executes CommandSpecs; it may be nil if
// the domain registers no commands.
func New(dom *domain.Registry, runner CommandRunner, opts ...Option) *Driver {
	d := &Driver{
		domain:    dom,
		runner:    runner,
		retry:     DefaultRetryPolicy(),
		logger:    logging.NoOpLogger{},
		telemetry: telemetry.NoOpTelemetry{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Result records one action's outcome within a Run.
type Result struct {
	NodeID  string
	Action  string
	Applied bool
	Err     error
}

// Run walks tree's primitive actions depth-first from nodeID and
// applies each in order, updating a running state snapshot starting
// from the tree's cached initial state. It stops at the first
// unrecoverable failure and returns the partial results plus that
// error; errs.ErrCommandFailure after exhausting retry is
// backtrackable (spec.md §7), signaling the caller should replan from
// the failure point rather than abort outright.
func (d *Driver) Run(ctx context.Context, tree *soltree.Tree, nodeID string) ([]Result, *state.State, error) {
	ctx, span := d.telemetry.StartSpan(ctx, "execute.Run")
	defer span.End()

	root, ok := tree.Get(nodeID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown node %q", errs.ErrInvalidInput, nodeID)
	}
	cur := root.State
	if cur == nil {
		cur = state.New()
	}

	nodes := tree.GetPrimitiveNodes(nodeID)
	results := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		select {
		case <-ctx.Done():
			return results, cur, ctx.Err()
		default:
		}

		next, err := d.applyOne(ctx, n.Action, cur)
		if err != nil {
			results = append(results, Result{NodeID: n.ID, Action: n.Action, Applied: false, Err: err})
			span.RecordError(err)
			return results, cur, err
		}
		cur = next
		results = append(results, Result{NodeID: n.ID, Action: n.Action, Applied: true})
	}
	return results, cur, nil
}

func (d *Driver) applyOne(ctx context.Context, name string, cur *state.State) (*state.State, error) {
	if spec, ok := d.domain.Actions[name]; ok {
		next := cur
		for k, v := range spec.Effects {
			pred, subj := splitEffectKey(k)
			next = next.SetFact(pred, subj, v)
		}
		return next, nil
	}
	if cmd, ok := d.domain.Commands[name]; ok {
		if err := d.runCommandWithRetry(ctx, cmd); err != nil {
			return nil, err
		}
		if cmd.Effect != "" {
			pred, subj := splitEffectKey(cmd.Effect)
			return cur.SetFact(pred, subj, true), nil
		}
		return cur, nil
	}
	return nil, fmt.Errorf("%w: %q is neither a registered action nor command", errs.ErrInvalidInput, name)
}

func splitEffectKey(k string) (pred, subj string) {
	for i, c := range k {
		if c == '.' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

func (d *Driver) runCommandWithRetry(ctx context.Context, cmd domain.CommandSpec) error {
	if d.runner == nil {
		return fmt.Errorf("%w: no command runner configured for %q", errs.ErrCommandFailure, cmd.Name)
	}
	var lastErr error
	delay := d.retry.InitialDelay
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.runner(ctx, cmd); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == d.retry.MaxAttempts {
			break
		}
		if attempt > 1 {
			delay = time.Duration(float64(delay) * d.retry.BackoffFactor)
			if delay > d.retry.MaxDelay {
				delay = d.retry.MaxDelay
			}
		}
		jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
		wait := delay + jitter

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: command %q failed after %d attempts: %v", errs.ErrCommandFailure, cmd.Name, d.retry.MaxAttempts, lastErr)
}
