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
	"context"
	"fmt"
)

type planner struct {
	config
	dom  *Domain
	tree *SolutionTree
	// limit bounds backtracking to the subtree being planned; replanning must
	// not reset ancestors carrying executed work elsewhere in the tree
	limit string
}

// Plan builds a solution tree decomposing todos into primitive actions against
// state, or reports failure. The tree is complete on success: every node
// expanded, every leaf primitive, satisfied, or trivially decomposed.
func Plan(dom *Domain, state *State, todos []Todo, opts ...Option) (*SolutionTree, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if dom == nil {
		return nil, fmt.Errorf(`ihtn: nil domain`)
	}
	if state == nil {
		return nil, fmt.Errorf(`ihtn: nil state`)
	}
	for _, todo := range todos {
		switch todo.(type) {
		case Task, Goal, Action, *Multigoal:
		default:
			return nil, fmt.Errorf(`ihtn: %T: %w`, todo, ErrInvalidTodo)
		}
	}
	p := &planner{config: c, dom: dom, tree: newTree(state, todos)}
	p.limit = p.tree.Root
	if err := p.run(p.tree.Root); err != nil {
		return nil, err
	}
	return p.tree, nil
}

// run drives the planning loop over the subtree rooted at from: find the next
// unexpanded node in depth-first pre-order, expand it, backtrack on refusal.
// Each iteration counts one unit against the depth bound.
func (p *planner) run(from string) error {
	for i := 0; i < p.maxDepth; i++ {
		n, entry := p.next(from)
		if n == nil {
			return p.complete(from)
		}
		n.State = entry.Copy()
		if err := p.expand(n); err != nil {
			if !refusal(err) {
				return err
			}
			if p.verbose > 1 {
				p.logger.Debug(context.Background(), `expansion failed`,
					F(`node`, n.ID), F(`todo`, n.Todo.String()), F(`error`, err.Error()))
			}
			if !p.backtrack(n) {
				return fmt.Errorf(`ihtn: %s: %w`, n.Todo, err)
			}
		}
	}
	return fmt.Errorf(`ihtn: %d iterations: %w`, p.maxDepth, ErrDepthExceeded)
}

// next locates the first unexpanded node in depth-first pre-order under from,
// together with the simulation state on entry to it. The entry state threads
// through the walk: each already-expanded primitive action node advances it to
// that node's cached post-action state.
func (p *planner) next(from string) (found *Node, entry *State) {
	cur := p.tree.node(from).State
	p.tree.walk(from, func(n *Node) bool {
		if !n.Expanded {
			found, entry = n, cur
			return false
		}
		if _, ok := n.Todo.(Action); ok && n.State != nil {
			cur = n.State
		}
		return true
	})
	return
}

func (p *planner) expand(n *Node) error {
	switch todo := n.Todo.(type) {
	case rootTodo:
		for _, sub := range todo.todos {
			p.tree.addChild(n, sub)
		}
		n.Expanded = true
		return nil
	case Action:
		return p.expandAction(n, todo)
	case Task:
		return p.expandTask(n, todo)
	case Goal:
		return p.expandGoal(n, todo)
	case *Multigoal:
		return p.expandMultigoal(n, todo)
	default:
		return fmt.Errorf(`ihtn: %T: %w`, n.Todo, ErrInvalidTodo)
	}
}

func (p *planner) expandAction(n *Node, todo Action) error {
	if !p.dom.HasAction(todo.Name) {
		return fmt.Errorf(`ihtn: unknown action %q: %w`, todo.Name, ErrInvalidTodo)
	}
	if _, ok := p.tree.Commands[commandKey(todo.Name, todo.Args)]; ok {
		return fmt.Errorf(`ihtn: command %s blacklisted: %w`, todo, ErrActionPrecondition)
	}
	next, err := p.dom.ExecuteAction(n.State, todo.Name, todo.Args)
	if err != nil {
		return err
	}
	// the cached state of a primitive node is the post-action state, so
	// subsequent siblings inherit the action's effects during planning
	n.State = next
	n.Primitive = true
	n.Expanded = true
	return nil
}

func (p *planner) expandTask(n *Node, todo Task) error {
	methods := p.dom.taskMethods(todo.Name)
	if len(methods) == 0 {
		return fmt.Errorf(`ihtn: task %q: %w`, todo.Name, ErrNoMethod)
	}
	for _, m := range methods {
		if _, ok := n.Blacklist[m.id]; ok {
			continue
		}
		todos, err := m.task(n.State, todo.Args)
		if err != nil {
			n.Blacklist[m.id] = struct{}{}
			continue
		}
		return p.applyDecomposition(n, m.id, todos)
	}
	return fmt.Errorf(`ihtn: task %q: %w`, todo.Name, ErrMethodsExhausted)
}

func (p *planner) expandGoal(n *Node, todo Goal) error {
	if todo.Satisfied(n.State) {
		n.Primitive = true
		n.Expanded = true
		return nil
	}
	methods := p.dom.unigoalMethods(todo.Pred)
	if len(methods) == 0 {
		return fmt.Errorf(`ihtn: goal %s: %w`, todo, ErrNoMethod)
	}
	for _, m := range methods {
		if _, ok := n.Blacklist[m.id]; ok {
			continue
		}
		todos, err := m.unigoal(n.State, todo.Subj, todo.Obj)
		if err != nil {
			n.Blacklist[m.id] = struct{}{}
			continue
		}
		return p.applyDecomposition(n, m.id, todos)
	}
	return fmt.Errorf(`ihtn: goal %s: %w`, todo, ErrMethodsExhausted)
}

// multigoalFallback is the pseudo-method identity for decomposing a multigoal
// into its unsatisfied goals when no multigoal method applies.
const multigoalFallback = `multigoal:fallback`

func (p *planner) expandMultigoal(n *Node, todo *Multigoal) error {
	if todo.Satisfied(n.State) {
		n.Primitive = true
		n.Expanded = true
		return nil
	}
	for _, m := range p.dom.multigoalMethods() {
		if _, ok := n.Blacklist[m.id]; ok {
			continue
		}
		todos, err := m.multigoal(n.State, todo)
		if err != nil {
			n.Blacklist[m.id] = struct{}{}
			continue
		}
		return p.applyDecomposition(n, m.id, todos)
	}
	if _, ok := n.Blacklist[multigoalFallback]; ok {
		return fmt.Errorf(`ihtn: %s: %w`, todo, ErrMethodsExhausted)
	}
	var todos []Todo
	for _, g := range todo.Unsatisfied(n.State) {
		todos = append(todos, g)
	}
	return p.applyDecomposition(n, multigoalFallback, todos)
}

func (p *planner) applyDecomposition(n *Node, methodID string, todos []Todo) error {
	for _, sub := range todos {
		switch sub.(type) {
		case Task, Goal, Action, *Multigoal:
		default:
			return fmt.Errorf(`ihtn: method %s returned %T: %w`, methodID, sub, ErrInvalidTodo)
		}
	}
	n.Method = methodID
	for _, sub := range todos {
		p.tree.addChild(n, sub)
	}
	n.Expanded = true
	if p.verbose > 0 {
		p.logger.Debug(context.Background(), `expanded`,
			F(`node`, n.ID), F(`todo`, n.Todo.String()), F(`method`, methodID), F(`children`, len(todos)))
	}
	return nil
}

// backtrack walks up from the failed node to the nearest task, goal or
// multigoal node with an untried method, resets it (dropping its descendants
// and moving the tried method onto its blacklist), and reports whether the
// loop may resume.
func (p *planner) backtrack(failed *Node) bool {
	for n := failed; n != nil; n = p.tree.node(n.Parent) {
		eligible := func() bool {
			switch n.Todo.(type) {
			case Task, Goal, *Multigoal:
				return p.hasAlternative(n)
			}
			return false
		}()
		if !eligible {
			if n.ID == p.limit {
				return false
			}
			continue
		}
		if p.verbose > 0 {
			p.logger.Debug(context.Background(), `backtracking`,
				F(`node`, n.ID), F(`todo`, n.Todo.String()), F(`method`, n.Method))
		}
		p.tree.reset(n)
		return true
	}
	return false
}

// hasAlternative reports whether a node has at least one method left to try,
// treating the currently tried method as spent.
func (p *planner) hasAlternative(n *Node) bool {
	spent := func(id string) bool {
		if id == n.Method && id != `` {
			return true
		}
		_, ok := n.Blacklist[id]
		return ok
	}
	switch todo := n.Todo.(type) {
	case Task:
		for _, m := range p.dom.taskMethods(todo.Name) {
			if !spent(m.id) {
				return true
			}
		}
	case Goal:
		for _, m := range p.dom.unigoalMethods(todo.Pred) {
			if !spent(m.id) {
				return true
			}
		}
	case *Multigoal:
		for _, m := range p.dom.multigoalMethods() {
			if !spent(m.id) {
				return true
			}
		}
		return !spent(multigoalFallback)
	}
	return false
}

// complete verifies the subtree under from forms a complete solution: every
// node expanded, structural invariants intact.
func (p *planner) complete(from string) error {
	var err error
	p.tree.walk(from, func(n *Node) bool {
		if !n.Expanded {
			err = fmt.Errorf(`ihtn: node %s unexpanded: %w`, n.ID, ErrIncompleteSolution)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return p.tree.Check()
}
