/*
   Copyright 2022 Joseph Cumines

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package ihtn

import (
	"fmt"

	"github.com/google/uuid"
)

type (
	// Node is a single entry in a solution tree. Edges are node ids rather than
	// pointers, which keeps the tree acyclic by construction and makes dropping
	// subtrees during backtracking a matter of deleting ids.
	Node struct {
		ID       string
		Todo     Todo
		Parent   string
		Children []string
		// State is the cached state observed on entry to this node under its
		// parent's method; for primitive action nodes it is the post-action state,
		// so later siblings planned in the same expansion inherit it.
		State     *State
		Expanded  bool
		Primitive bool
		// Method identifies the method used to expand this node, empty if none.
		Method string
		// Blacklist holds every method identifier previously tried and rejected at
		// this node.
		Blacklist map[string]struct{}
		// Executed marks primitive action nodes already applied to the live state
		// by the executor; replanning never re-executes them.
		Executed bool
	}

	// SolutionTree is an annotated AND-tree of todo nodes: a root id, a node map
	// keyed by opaque ids, and the set of commands blacklisted at execution time.
	SolutionTree struct {
		Root     string
		Nodes    map[string]*Node
		Commands map[string]struct{}
	}

	// TreeStats summarizes a solution tree.
	TreeStats struct {
		TotalNodes       int
		ExpandedNodes    int
		PrimitiveActions int
		MaxDepth         int
	}
)

func newTree(state *State, todos []Todo) *SolutionTree {
	t := &SolutionTree{
		Nodes:    make(map[string]*Node),
		Commands: make(map[string]struct{}),
	}
	root := t.newNode(rootTodo{todos: todos}, ``)
	root.State = state.Copy()
	t.Root = root.ID
	return t
}

func (t *SolutionTree) newNode(todo Todo, parent string) *Node {
	n := &Node{
		ID:        uuid.NewString(),
		Todo:      todo,
		Parent:    parent,
		Blacklist: make(map[string]struct{}),
	}
	t.Nodes[n.ID] = n
	return n
}

func (t *SolutionTree) node(id string) *Node { return t.Nodes[id] }

// addChild creates a child node for todo appended under parent.
func (t *SolutionTree) addChild(parent *Node, todo Todo) *Node {
	n := t.newNode(todo, parent.ID)
	parent.Children = append(parent.Children, n.ID)
	return n
}

// dropDescendants removes every descendant of id from the node map and clears
// the children list.
func (t *SolutionTree) dropDescendants(id string) {
	n := t.node(id)
	if n == nil {
		return
	}
	for _, child := range n.Children {
		t.dropDescendants(child)
		delete(t.Nodes, child)
	}
	n.Children = nil
}

// reset prepares a node for re-expansion during backtracking: descendants are
// dropped, the tried method moves onto the blacklist, and expansion state is
// cleared.
func (t *SolutionTree) reset(n *Node) {
	t.dropDescendants(n.ID)
	if n.Method != `` {
		n.Blacklist[n.Method] = struct{}{}
		n.Method = ``
	}
	n.Expanded = false
	n.Primitive = false
}

// walk visits the subtree rooted at id in depth-first pre-order.
func (t *SolutionTree) walk(id string, visit func(n *Node) bool) bool {
	n := t.node(id)
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}
	for _, child := range n.Children {
		if !t.walk(child, visit) {
			return false
		}
	}
	return true
}

// PrimitiveNodes returns the ids of primitive action nodes in depth-first
// child order, the execution order of the plan.
func (t *SolutionTree) PrimitiveNodes() (ids []string) {
	t.walk(t.Root, func(n *Node) bool {
		if _, ok := n.Todo.(Action); ok && n.Primitive {
			ids = append(ids, n.ID)
		}
		return true
	})
	return
}

// ExtractActions derives the primitive action sequence of a completed tree.
func (t *SolutionTree) ExtractActions() (actions []Action) {
	for _, id := range t.PrimitiveNodes() {
		actions = append(actions, t.node(id).Todo.(Action))
	}
	return
}

// PlanCost counts the primitive actions of the tree.
func (t *SolutionTree) PlanCost() int { return len(t.PrimitiveNodes()) }

// Stats computes summary statistics over the tree.
func (t *SolutionTree) Stats() (stats TreeStats) {
	var measure func(id string, depth int)
	measure = func(id string, depth int) {
		n := t.node(id)
		if n == nil {
			return
		}
		stats.TotalNodes++
		if n.Expanded {
			stats.ExpandedNodes++
		}
		if _, ok := n.Todo.(Action); ok && n.Primitive {
			stats.PrimitiveActions++
		}
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}
		for _, child := range n.Children {
			measure(child, depth+1)
		}
	}
	measure(t.Root, 0)
	return
}

// Check validates the structural invariants of the tree: parent/child link
// consistency, childless primitives, acyclicity via the walk itself, and
// tried methods absent from their node's blacklist.
func (t *SolutionTree) Check() error {
	root := t.node(t.Root)
	if root == nil {
		return fmt.Errorf(`ihtn: missing root node`)
	}
	if root.Parent != `` {
		return fmt.Errorf(`ihtn: root has parent`)
	}
	seen := make(map[string]struct{}, len(t.Nodes))
	var err error
	t.walk(t.Root, func(n *Node) bool {
		if _, ok := seen[n.ID]; ok {
			err = fmt.Errorf(`ihtn: node %s visited twice`, n.ID)
			return false
		}
		seen[n.ID] = struct{}{}
		if n.ID != t.Root {
			parent := t.node(n.Parent)
			if parent == nil {
				err = fmt.Errorf(`ihtn: node %s has unknown parent`, n.ID)
				return false
			}
			var linked bool
			for _, child := range parent.Children {
				if child == n.ID {
					linked = true
					break
				}
			}
			if !linked {
				err = fmt.Errorf(`ihtn: node %s not linked from parent`, n.ID)
				return false
			}
		}
		if n.Primitive && len(n.Children) != 0 {
			err = fmt.Errorf(`ihtn: primitive node %s has children`, n.ID)
			return false
		}
		if n.Method != `` {
			if _, ok := n.Blacklist[n.Method]; ok {
				err = fmt.Errorf(`ihtn: node %s tried a blacklisted method`, n.ID)
				return false
			}
		}
		for _, child := range n.Children {
			if t.node(child) == nil {
				err = fmt.Errorf(`ihtn: node %s has unknown child`, n.ID)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	if len(seen) != len(t.Nodes) {
		return fmt.Errorf(`ihtn: %d nodes unreachable from root`, len(t.Nodes)-len(seen))
	}
	return nil
}

// responsibleFor locates the nearest ancestor of id whose todo is a compound
// task, goal or multigoal, skipping actions and the synthetic root.
func (t *SolutionTree) responsibleFor(id string) *Node {
	n := t.node(id)
	if n == nil {
		return nil
	}
	for cur := t.node(n.Parent); cur != nil; cur = t.node(cur.Parent) {
		switch cur.Todo.(type) {
		case Task, Goal, *Multigoal:
			return cur
		}
	}
	return nil
}
