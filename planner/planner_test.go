package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/config"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/domain"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/entity"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/execute"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/state"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/temporal"
)

func dinnerDomain(t *testing.T) *domain.Registry {
	d := domain.New()
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "wash"}))
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "cook", Effects: map[string]interface{}{"status.dinner": "ready"}}))
	require.NoError(t, d.RegisterTaskMethod(domain.TaskMethod{Name: "make_dinner", Task: "make_dinner", Subtasks: []string{"wash", "cook"}}))
	return d
}

func TestPlanRejectsNilState(t *testing.T) {
	p := New(dinnerDomain(t), nil)
	_, err := p.Plan(context.Background(), nil, []domain.TodoItem{{Kind: domain.TodoTask, Task: "make_dinner"}}, config.DefaultEngineOptions())
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestPlanRejectsNilTodos(t *testing.T) {
	p := New(dinnerDomain(t), nil)
	_, err := p.Plan(context.Background(), state.New(), nil, config.DefaultEngineOptions())
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestPlanOnlyDoesNotMutateState(t *testing.T) {
	d := dinnerDomain(t)
	p := New(d, nil)
	initial := state.New()

	result, err := p.Plan(context.Background(), initial, []domain.TodoItem{{Kind: domain.TodoTask, Task: "make_dinner"}}, config.DefaultEngineOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"wash", "cook"}, result.Metadata.Actions)

	_, ok := initial.GetFact("status", "dinner")
	assert.False(t, ok, "Plan must not apply effects to the caller's state")
}

func TestRunLazyExecutesPlannedActions(t *testing.T) {
	d := dinnerDomain(t)
	p := New(d, nil)

	result, err := p.RunLazy(context.Background(), state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "make_dinner"}}, config.DefaultEngineOptions())
	require.NoError(t, err)
	v, ok := result.FinalState.GetFact("status", "dinner")
	require.True(t, ok)
	assert.Equal(t, "ready", v)
}

func TestRunLazyTreeReplaysPrecomputedTree(t *testing.T) {
	d := dinnerDomain(t)
	p := New(d, nil)
	initial := state.New()

	planned, err := p.Plan(context.Background(), initial, []domain.TodoItem{{Kind: domain.TodoTask, Task: "make_dinner"}}, config.DefaultEngineOptions())
	require.NoError(t, err)

	result, err := p.RunLazyTree(context.Background(), initial, planned.SolutionTree, config.DefaultEngineOptions())
	require.NoError(t, err)
	v, ok := result.FinalState.GetFact("status", "dinner")
	require.True(t, ok)
	assert.Equal(t, "ready", v)
}

func TestRunLazyPropagatesCommandFailure(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.RegisterCommand(domain.CommandSpec{Name: "call_supplier"}))
	require.NoError(t, d.RegisterTaskMethod(domain.TaskMethod{Name: "order", Task: "order", Subtasks: []string{"call_supplier"}}))

	runner := func(ctx context.Context, cmd domain.CommandSpec) error {
		return errors.New("supplier down")
	}
	p := New(d, execute.CommandRunner(runner))

	_, err := p.RunLazy(context.Background(), state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "order"}}, config.DefaultEngineOptions())
	assert.ErrorIs(t, err, errs.ErrCommandFailure)
}

func TestPlanWiresEntityRegistryThroughPublicAPI(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.RegisterAction(domain.ActionSpec{
		Name: "grill_steak",
		EntityRequirements: []domain.EntityRequirement{
			{Type: "chef", Capabilities: []string{"grilling"}},
		},
	}))

	entities := entity.New()
	require.NoError(t, entities.Register(entity.Spec{ID: "chef-1", Type: "chef", Capabilities: []string{"grilling"}}))

	p := New(d, nil, WithEntityRegistry(entities))
	result, err := p.Plan(context.Background(), state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "grill_steak"}}, config.DefaultEngineOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"grill_steak"}, result.Metadata.Actions)
	assert.True(t, entities.IsAllocated("chef-1"), "Planner.Plan must allocate through the wired registry, not only a directly-constructed htn.Engine")
}

func TestPlanWiresTemporalSpecificationsThroughPublicAPI(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "prep", DurationKey: "prep"}))

	specs := temporal.NewSpecifications()
	require.NoError(t, specs.AddActionDuration("prep", temporal.NewFixed(10*time.Minute)))
	specs.AddConstraint("prep", temporal.Constraint{Kind: temporal.Deadline, Bound: 5 * time.Minute})
	specs.AddConstraint("prep", temporal.Constraint{Kind: temporal.EarliestStart, Bound: 8 * time.Minute})

	p := New(d, nil, WithTemporalSpecifications(specs))
	_, err := p.Plan(context.Background(), state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "prep"}}, config.DefaultEngineOptions())
	assert.ErrorIs(t, err, errs.ErrInconsistentPlan, "Planner.Plan must compose temporal specs into its STN, not only a directly-constructed htn.Engine")
}
