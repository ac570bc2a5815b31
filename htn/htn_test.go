package htn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/config"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/domain"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/state"
)

func simpleDomain(t *testing.T) *domain.Registry {
	d := domain.New()
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "wash"}))
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "chop", Preconditions: []string{"washed.veggies=true"}}))
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "cook", Effects: map[string]interface{}{"status.dinner": "ready"}}))
	require.NoError(t, d.RegisterTaskMethod(domain.TaskMethod{
		Name: "prep_and_cook", Task: "make_dinner",
		Subtasks: []string{"wash", "chop", "cook"},
	}))
	return d
}

func TestPlanLinearTask(t *testing.T) {
	d := simpleDomain(t)
	st := state.New().SetFact("washed", "veggies", "true")
	e := New(d, config.DefaultEngineOptions())

	_, actions, err := e.Plan(context.Background(), st, []domain.TodoItem{{Kind: domain.TodoTask, Task: "make_dinner"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"wash", "chop", "cook"}, actions)
}

func TestPlanFailsMissingPrecondition(t *testing.T) {
	d := simpleDomain(t)
	st := state.New() // "washed.veggies" not set
	e := New(d, config.DefaultEngineOptions())

	_, _, err := e.Plan(context.Background(), st, []domain.TodoItem{{Kind: domain.TodoTask, Task: "make_dinner"}})
	assert.ErrorIs(t, err, errs.ErrMethodFailure)
}

func TestPlanBacktracksToSecondMethod(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "order_takeout"}))
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "grill", Preconditions: []string{"has_grill.kitchen=true"}}))
	require.NoError(t, d.RegisterTaskMethod(domain.TaskMethod{Name: "cook_at_home", Task: "eat", Subtasks: []string{"grill"}}))
	require.NoError(t, d.RegisterTaskMethod(domain.TaskMethod{Name: "order_out", Task: "eat", Subtasks: []string{"order_takeout"}}))

	st := state.New() // no grill
	e := New(d, config.DefaultEngineOptions())

	_, actions, err := e.Plan(context.Background(), st, []domain.TodoItem{{Kind: domain.TodoTask, Task: "eat"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_takeout"}, actions)
}

func TestPlanGoalAlreadySatisfied(t *testing.T) {
	d := domain.New()
	st := state.New().SetFact("status", "chef", "available")
	e := New(d, config.DefaultEngineOptions())

	_, actions, err := e.Plan(context.Background(), st, []domain.TodoItem{
		{Kind: domain.TodoGoal, GoalPredicate: "status", GoalSubject: "chef", GoalValue: "available"},
	})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestPlanGoalViaUnigoalMethod(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.RegisterAction(domain.ActionSpec{Name: "call_in_chef", Effects: map[string]interface{}{"status.chef": "available"}}))
	require.NoError(t, d.RegisterUnigoalMethod(domain.UnigoalMethod{Name: "summon", Predicate: "status", Subtasks: []string{"call_in_chef"}}))

	st := state.New()
	e := New(d, config.DefaultEngineOptions())

	_, actions, err := e.Plan(context.Background(), st, []domain.TodoItem{
		{Kind: domain.TodoGoal, GoalPredicate: "status", GoalSubject: "chef", GoalValue: "available"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"call_in_chef"}, actions)
}

func TestPlanTaskWithNoMethodFallsBackToPrimitive(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.RegisterTaskMethod(domain.TaskMethod{
		Name: "serve", Task: "serve_dinner",
		Subtasks: []string{"plate_food", "ring_bell"},
	}))
	// Neither "plate_food" nor "ring_bell" is registered as an action,
	// command, or task with methods.

	st := state.New()
	e := New(d, config.DefaultEngineOptions())

	_, actions, err := e.Plan(context.Background(), st, []domain.TodoItem{{Kind: domain.TodoTask, Task: "serve_dinner"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"plate_food", "ring_bell"}, actions)
}

func TestPlanGoalWithNoMethodIsBacktrackable(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.RegisterTaskMethod(domain.TaskMethod{
		Name: "try_direct", Task: "seat_guests",
		Subtasks: []string{"greet"},
	}))

	st := state.New()
	e := New(d, config.DefaultEngineOptions())

	_, _, err := e.Plan(context.Background(), st, []domain.TodoItem{
		{Kind: domain.TodoGoal, GoalPredicate: "seated", GoalSubject: "guests", GoalValue: true},
	})
	assert.ErrorIs(t, err, errs.ErrMethodFailure)
}

func TestPlanDepthExceeded(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.RegisterTaskMethod(domain.TaskMethod{Name: "recurse", Task: "loop", Subtasks: []string{"loop"}}))

	st := state.New()
	opts := config.DefaultEngineOptions()
	opts.MaxDepth = 5
	e := New(d, opts)

	_, _, err := e.Plan(context.Background(), st, []domain.TodoItem{{Kind: domain.TodoTask, Task: "loop"}})
	assert.ErrorIs(t, err, errs.ErrDepthExceeded)
}
