package soltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/domain"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/state"
)

func TestCreateInitialSingleTodo(t *testing.T) {
	st := state.New()
	todo := domain.TodoItem{Kind: domain.TodoTask, Task: "cook_dinner"}
	tree := CreateInitial(st, []domain.TodoItem{todo})

	root, ok := tree.Get(tree.Root())
	require.True(t, ok)
	assert.Equal(t, "cook_dinner", root.Todo.Task)
}

func TestCreateInitialMultipleTodosWrapsInMultigoal(t *testing.T) {
	st := state.New()
	todos := []domain.TodoItem{
		{Kind: domain.TodoTask, Task: "a"},
		{Kind: domain.TodoTask, Task: "b"},
	}
	tree := CreateInitial(st, todos)
	root, _ := tree.Get(tree.Root())
	assert.Equal(t, domain.TodoMultigoal, root.Todo.Kind)
	assert.Len(t, root.Todo.Multigoal, 2)
}

func TestAddChildAndDescendants(t *testing.T) {
	tree := CreateInitial(state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	child, err := tree.AddChild(tree.Root(), domain.TodoItem{Kind: domain.TodoTask, Task: "child"}, state.New())
	require.NoError(t, err)

	descendants := tree.GetAllDescendants(tree.Root())
	assert.ElementsMatch(t, []string{tree.Root(), child.ID}, descendants)
}

func TestBlacklistRoundTrip(t *testing.T) {
	tree := CreateInitial(state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	assert.False(t, tree.IsBlacklisted(tree.Root(), "m1"))
	tree.Blacklist(tree.Root(), "m1")
	assert.True(t, tree.IsBlacklisted(tree.Root(), "m1"))
}

func TestCreateFromActionsAndGetPrimitiveActions(t *testing.T) {
	tree := CreateInitial(state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	_, err := tree.CreateFromActions(tree.Root(), []string{"wash", "chop", "cook"})
	require.NoError(t, err)

	actions := tree.GetPrimitiveActions(tree.Root())
	assert.Equal(t, []string{"wash", "chop", "cook"}, actions)
}

func TestSolutionCompleteRequiresAllPrimitive(t *testing.T) {
	tree := CreateInitial(state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	assert.False(t, tree.SolutionComplete())

	_, err := tree.CreateFromActions(tree.Root(), []string{"wash"})
	require.NoError(t, err)
	assert.True(t, tree.SolutionComplete())
}

func TestStats(t *testing.T) {
	tree := CreateInitial(state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	_, err := tree.CreateFromActions(tree.Root(), []string{"a", "b"})
	require.NoError(t, err)

	s := tree.Stats()
	assert.Equal(t, 3, s.TotalNodes)
	assert.Equal(t, 2, s.PrimitiveNodes)
	assert.Equal(t, 1, s.MaxDepth)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	tree := CreateInitial(state.New().SetFact("status", "chef", "available"), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	_, err := tree.CreateFromActions(tree.Root(), []string{"wash"})
	require.NoError(t, err)

	data, err := tree.MarshalJSON()
	require.NoError(t, err)

	reloaded, err := UnmarshalTree(data)
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), reloaded.Root())
	assert.Equal(t, []string{"wash"}, reloaded.GetPrimitiveActions(reloaded.Root()))

	root, _ := reloaded.Get(reloaded.Root())
	v, ok := root.State.GetFact("status", "chef")
	require.True(t, ok)
	assert.Equal(t, "available", v)
}

func TestMarshalUnmarshalRoundTripPreservesSearchMetadata(t *testing.T) {
	tree := CreateInitial(state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	root, _ := tree.Get(tree.Root())
	root.MethodTried = "cook_at_home"
	root.Completed = true
	root.AllocatedEntities = []string{"chef-1", "oven-2"}

	data, err := tree.MarshalJSON()
	require.NoError(t, err)

	reloaded, err := UnmarshalTree(data)
	require.NoError(t, err)
	rroot, _ := reloaded.Get(reloaded.Root())
	assert.Equal(t, "cook_at_home", rroot.MethodTried)
	assert.True(t, rroot.Completed)
	assert.Equal(t, []string{"chef-1", "oven-2"}, rroot.AllocatedEntities)
}

func TestRemoveChildrenDeletesSubtree(t *testing.T) {
	tree := CreateInitial(state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	child, err := tree.AddChild(tree.Root(), domain.TodoItem{Kind: domain.TodoTask, Task: "child"}, state.New())
	require.NoError(t, err)
	grandchild, err := tree.AddChild(child.ID, domain.TodoItem{Kind: domain.TodoTask, Task: "grandchild"}, state.New())
	require.NoError(t, err)

	tree.RemoveChildren(tree.Root())

	_, ok := tree.Get(child.ID)
	assert.False(t, ok)
	_, ok = tree.Get(grandchild.ID)
	assert.False(t, ok)
	root, _ := tree.Get(tree.Root())
	assert.Empty(t, root.ChildIDs)
}

func TestGetPrimitiveNodesReturnsNodePointersInOrder(t *testing.T) {
	tree := CreateInitial(state.New(), []domain.TodoItem{{Kind: domain.TodoTask, Task: "root"}})
	created, err := tree.CreateFromActions(tree.Root(), []string{"wash", "chop"})
	require.NoError(t, err)

	nodes := tree.GetPrimitiveNodes(tree.Root())
	require.Len(t, nodes, 2)
	assert.Equal(t, created[0].ID, nodes[0].ID)
	assert.Equal(t, "wash", nodes[0].Action)
	assert.Equal(t, created[1].ID, nodes[1].ID)
	assert.Equal(t, "chop", nodes[1].Action)
}
