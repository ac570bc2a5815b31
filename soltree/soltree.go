// Package soltree implements the Solution Tree of SPEC_FULL.md §4.6:
// an arena of nodes produced by the HTN engine's refinement, each
// caching the state it was reached in and the set of methods already
// tried and rejected at that node. Grounded on this codebase's
// WorkflowDAG/DAGNode map-of-nodes arena (orchestration/workflow_dag.go)
// generalized from a dependency DAG to a refinement tree, and its
// HierarchicalPlan (steps, root/execution order) for the node-walk
// helpers.
package soltree

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/domain"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/state"
)

// Node is one point in the HTN refinement tree.
type Node struct {
	ID         string
	ParentID   string
	ChildIDs   []string
	Todo       domain.TodoItem
	State      *state.State
	Primitive  bool
	Expanded   bool
	// Completed marks a non-primitive node (a goal or multigoal already
	// satisfied in its cached state) as needing no further expansion,
	// distinct from Primitive: it has no Action to execute.
	Completed bool
	// Blacklisted holds method names already tried and rejected at
	// this node, so backtracking never retries them (spec.md §4.6).
	Blacklisted map[string]struct{}
	// Action, when Primitive is true, is the resolved action name this
	// node executes.
	Action string
	// MethodTried records which method (task, unigoal, multigoal, or
	// multitodo) was accepted at this node, for introspection and for
	// the Execution Driver's failure-triggered replanning (spec.md
	// §4.8): the method to blacklist at the parent is read from here.
	MethodTried string
	// AllocatedEntities holds the Entity Registry IDs reserved for a
	// Primitive node's action, released back to the registry if this
	// node's subtree is later discarded by backtracking.
	AllocatedEntities []string
}

// Tree is the arena: a map of node ID to Node, plus the root ID.
type Tree struct {
	nodes map[string]*Node
	root  string
}

// CreateInitial builds a Tree with a single root node holding the
// initial state and todo list; unless exactly one todo was given, the
// list is wrapped in a synthetic multigoal item.
func CreateInitial(initial *state.State, todos []domain.TodoItem) *Tree {
	var root domain.TodoItem
	if len(todos) == 1 {
		root = todos[0]
	} else {
		root = domain.TodoItem{Kind: domain.TodoMultigoal, Multigoal: todos}
	}
	id := GenerateNodeID()
	t := &Tree{
		nodes: map[string]*Node{
			id: {ID: id, Todo: root, State: initial, Blacklisted: map[string]struct{}{}},
		},
		root: id,
	}
	return t
}

// GenerateNodeID returns a fresh, globally-unique node ID.
func GenerateNodeID() string {
	return uuid.NewString()
}

// Root returns the root node's ID.
func (t *Tree) Root() string { return t.root }

// Get returns the node with id.
func (t *Tree) Get(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// AddChild creates a new node as a child of parentID and returns it.
func (t *Tree) AddChild(parentID string, todo domain.TodoItem, st *state.State) (*Node, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown parent node %q", errs.ErrInvalidInput, parentID)
	}
	child := &Node{
		ID:          GenerateNodeID(),
		ParentID:    parentID,
		Todo:        todo,
		State:       st,
		Blacklisted: map[string]struct{}{},
	}
	t.nodes[child.ID] = child
	parent.ChildIDs = append(parent.ChildIDs, child.ID)
	return child, nil
}

// Blacklist records that methodName failed at nodeID.
func (t *Tree) Blacklist(nodeID, methodName string) {
	if n, ok := t.nodes[nodeID]; ok {
		n.Blacklisted[methodName] = struct{}{}
	}
}

// IsBlacklisted reports whether methodName was already tried and
// rejected at nodeID.
func (t *Tree) IsBlacklisted(nodeID, methodName string) bool {
	n, ok := t.nodes[nodeID]
	if !ok {
		return false
	}
	_, blacklisted := n.Blacklisted[methodName]
	return blacklisted
}

// SolutionComplete reports whether every leaf node in the tree is
// Primitive or Completed — i.e. the tree has no remaining compound
// work. The Expanded flag is not consulted.
func (t *Tree) SolutionComplete() bool {
	for _, n := range t.nodes {
		if len(n.ChildIDs) == 0 && !n.Primitive && !n.Completed {
			return false
		}
	}
	return true
}

// RemoveChildren deletes nodeID's children and all of their
// descendants from the arena and clears nodeID's ChildIDs, used when a
// tried method is rejected and its subtree must be discarded before
// the next method is attempted (spec.md §4.6/§4.7).
func (t *Tree) RemoveChildren(nodeID string) {
	n, ok := t.nodes[nodeID]
	if !ok {
		return
	}
	for _, cid := range n.ChildIDs {
		for _, id := range t.GetAllDescendants(cid) {
			delete(t.nodes, id)
		}
	}
	n.ChildIDs = nil
}

// UpdateCachedState replaces nodeID's cached state (used after
// progressing state during primitive-action lowering).
func (t *Tree) UpdateCachedState(nodeID string, st *state.State) {
	if n, ok := t.nodes[nodeID]; ok {
		n.State = st
	}
}

// GetAllDescendants returns every node ID reachable from nodeID,
// nodeID included, via depth-first traversal.
func (t *Tree) GetAllDescendants(nodeID string) []string {
	var out []string
	var walk func(id string)
	walk = func(id string) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		out = append(out, id)
		for _, c := range n.ChildIDs {
			walk(c)
		}
	}
	walk(nodeID)
	return out
}

// GetGoalsFromTree collects every TodoGoal-kind Todo reachable from
// nodeID.
func (t *Tree) GetGoalsFromTree(nodeID string) []domain.TodoItem {
	var out []domain.TodoItem
	for _, id := range t.GetAllDescendants(nodeID) {
		n := t.nodes[id]
		if n.Todo.Kind == domain.TodoGoal {
			out = append(out, n.Todo)
		}
	}
	return out
}

// CreateFromActions builds a linear chain of primitive nodes under
// parentID, one per action name, each sharing parentID's cached state
// until executed (used to materialize a fully-decomposed method's
// subtasks as tree nodes).
func (t *Tree) CreateFromActions(parentID string, actions []string) ([]*Node, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown parent node %q", errs.ErrInvalidInput, parentID)
	}
	out := make([]*Node, 0, len(actions))
	for _, action := range actions {
		child := &Node{
			ID:          GenerateNodeID(),
			ParentID:    parentID,
			Todo:        domain.TodoItem{Kind: domain.TodoTask, Task: action},
			State:       parent.State,
			Primitive:   true,
			Action:      action,
			Blacklisted: map[string]struct{}{},
		}
		t.nodes[child.ID] = child
		parent.ChildIDs = append(parent.ChildIDs, child.ID)
		out = append(out, child)
	}
	return out, nil
}

// GetPrimitiveActions walks the tree depth-first from nodeID and
// returns the Action name of every Primitive node encountered, in
// left-to-right order — the flattened plan the Execution Driver runs.
func (t *Tree) GetPrimitiveActions(nodeID string) []string {
	var out []string
	var walk func(id string)
	walk = func(id string) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		if n.Primitive {
			out = append(out, n.Action)
			return
		}
		for _, c := range n.ChildIDs {
			walk(c)
		}
	}
	walk(nodeID)
	return out
}

// GetPrimitiveNodes walks the tree depth-first from nodeID and returns
// every Primitive node encountered, in left-to-right order — like
// GetPrimitiveActions but keeping each node's ID so a caller (the
// Execution Driver) can attribute a runtime failure to the specific
// node that produced it.
func (t *Tree) GetPrimitiveNodes(nodeID string) []*Node {
	var out []*Node
	var walk func(id string)
	walk = func(id string) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		if n.Primitive {
			out = append(out, n)
			return
		}
		for _, c := range n.ChildIDs {
			walk(c)
		}
	}
	walk(nodeID)
	return out
}

// Stats summarizes a tree's size.
type Stats struct {
	TotalNodes     int
	PrimitiveNodes int
	ExpandedNodes  int
	MaxDepth       int
}

// nodeDTO is Node's JSON-serializable shape; state.State has no
// exported fields of its own, so its facts are flattened through
// state.ToTriples/FromTriples for persistence.
type nodeDTO struct {
	ID                string          `json:"id"`
	ParentID          string          `json:"parent_id,omitempty"`
	ChildIDs          []string        `json:"child_ids,omitempty"`
	Todo              domain.TodoItem `json:"todo"`
	Facts             []state.Fact    `json:"facts,omitempty"`
	Primitive         bool            `json:"primitive"`
	Expanded          bool            `json:"expanded"`
	Completed         bool            `json:"completed,omitempty"`
	Blacklisted       []string        `json:"blacklisted,omitempty"`
	Action            string          `json:"action,omitempty"`
	MethodTried       string          `json:"method_tried,omitempty"`
	AllocatedEntities []string        `json:"allocated_entities,omitempty"`
}

type treeDTO struct {
	Root  string    `json:"root"`
	Nodes []nodeDTO `json:"nodes"`
}

// MarshalJSON serializes the whole tree, including every node's cached
// state, for the optional RedisTreeStore.
func (t *Tree) MarshalJSON() ([]byte, error) {
	dto := treeDTO{Root: t.root}
	for _, n := range t.nodes {
		nd := nodeDTO{
			ID: n.ID, ParentID: n.ParentID, ChildIDs: n.ChildIDs,
			Todo: n.Todo, Primitive: n.Primitive, Expanded: n.Expanded, Action: n.Action,
			Completed: n.Completed, MethodTried: n.MethodTried, AllocatedEntities: n.AllocatedEntities,
		}
		if n.State != nil {
			nd.Facts = n.State.ToTriples()
		}
		for name := range n.Blacklisted {
			nd.Blacklisted = append(nd.Blacklisted, name)
		}
		dto.Nodes = append(dto.Nodes, nd)
	}
	return json.Marshal(dto)
}

// UnmarshalTree deserializes a Tree previously produced by
// MarshalJSON.
func UnmarshalTree(data []byte) (*Tree, error) {
	var dto treeDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	t := &Tree{nodes: map[string]*Node{}, root: dto.Root}
	for _, nd := range dto.Nodes {
		n := &Node{
			ID: nd.ID, ParentID: nd.ParentID, ChildIDs: nd.ChildIDs,
			Todo: nd.Todo, Primitive: nd.Primitive, Expanded: nd.Expanded, Action: nd.Action,
			Completed: nd.Completed, MethodTried: nd.MethodTried, AllocatedEntities: nd.AllocatedEntities,
			State:       state.FromTriples(nd.Facts),
			Blacklisted: map[string]struct{}{},
		}
		for _, name := range nd.Blacklisted {
			n.Blacklisted[name] = struct{}{}
		}
		t.nodes[n.ID] = n
	}
	return t, nil
}

// Stats computes Stats over the whole tree.
func (t *Tree) Stats() Stats {
	var s Stats
	s.TotalNodes = len(t.nodes)
	depth := map[string]int{t.root: 0}
	order := []string{t.root}
	for i := 0; i < len(order); i++ {
		id := order[i]
		n, ok := t.nodes[id]
		if !ok {
			continue
		}
		if n.Primitive {
			s.PrimitiveNodes++
		}
		if n.Expanded {
			s.ExpandedNodes++
		}
		if depth[id] > s.MaxDepth {
			s.MaxDepth = depth[id]
		}
		for _, c := range n.ChildIDs {
			depth[c] = depth[id] + 1
			order = append(order, c)
		}
	}
	return s
}
