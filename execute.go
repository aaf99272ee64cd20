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

// Executor walks a solution tree's primitive actions in depth-first order,
// applying each to the live state, deferring re-decomposition until a runtime
// failure (run-lazy-refineahead). On failure the offending command is
// blacklisted on the tree and planning re-enters from the responsible task
// node; completed actions are never re-executed.
type Executor struct {
	config
	dom   *Domain
	tree  *SolutionTree
	state *State
	// pending holds the node ids still to execute, refreshed after each replan
	pending []string
}

// NewExecutor constructs an Executor over a planned solution tree, starting
// from the given live state.
func NewExecutor(dom *Domain, state *State, tree *SolutionTree, opts ...Option) (*Executor, error) {
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
	if tree == nil {
		return nil, fmt.Errorf(`ihtn: nil solution tree`)
	}
	e := &Executor{config: c, dom: dom, tree: tree, state: state.Copy()}
	e.refresh()
	return e, nil
}

// State returns the live state.
func (e *Executor) State() *State { return e.state }

// Tree returns the solution tree, which the executor mutates on replanning.
func (e *Executor) Tree() *SolutionTree { return e.tree }

// Done reports whether every primitive action has been executed.
func (e *Executor) Done() bool { return len(e.pending) == 0 }

// Next returns the node id of the next primitive action to execute, if any.
func (e *Executor) Next() (string, bool) {
	if len(e.pending) == 0 {
		return ``, false
	}
	return e.pending[0], true
}

func (e *Executor) refresh() {
	e.pending = e.pending[:0]
	for _, id := range e.tree.PrimitiveNodes() {
		if !e.tree.node(id).Executed {
			e.pending = append(e.pending, id)
		}
	}
}

// Step executes the next primitive action. On failure it blacklists the
// command, replans from the failed node, and refreshes the pending sequence;
// the failed action is not retried verbatim. Step returns an error only when
// replanning itself fails.
func (e *Executor) Step() error {
	id, ok := e.Next()
	if !ok {
		return nil
	}
	n := e.tree.node(id)
	act := n.Todo.(Action)
	next, err := e.dom.ExecuteAction(e.state, act.Name, act.Args)
	if err == nil {
		n.Executed = true
		e.state = next
		e.pending = e.pending[1:]
		if e.verbose > 0 {
			e.logger.Debug(context.Background(), `executed`, F(`action`, act.String()))
		}
		return nil
	}
	e.logger.Warn(context.Background(), `action failed, replanning`,
		F(`action`, act.String()), F(`error`, err.Error()))
	e.tree.Commands[commandKey(act.Name, act.Args)] = struct{}{}
	if err := Replan(e.dom, e.state, e.tree, id, e.options()...); err != nil {
		return err
	}
	e.refresh()
	return nil
}

func (e *Executor) options() []Option {
	return []Option{MaxDepth(e.maxDepth), Verbose(e.verbose), WithLogger(e.logger)}
}

// Run executes the plan to completion.
func (e *Executor) Run() (*State, error) {
	for !e.Done() {
		if err := e.Step(); err != nil {
			return nil, err
		}
	}
	return e.state, nil
}

// Execute applies a planned solution tree's primitive actions to the initial
// state, replanning on runtime failure, and returns the final state.
func Execute(dom *Domain, state *State, tree *SolutionTree, opts ...Option) (*State, error) {
	e, err := NewExecutor(dom, state, tree, opts...)
	if err != nil {
		return nil, err
	}
	return e.Run()
}

// Validate dry-runs the extracted action sequence against the initial state
// without replanning, returning the predicted final state.
func Validate(dom *Domain, state *State, tree *SolutionTree) (*State, error) {
	cur := state.Copy()
	for _, act := range tree.ExtractActions() {
		next, err := dom.ExecuteAction(cur, act.Name, act.Args)
		if err != nil {
			return nil, fmt.Errorf(`ihtn: validate %s: %w`, act, err)
		}
		cur = next
	}
	return cur, nil
}

// Replan re-enters planning from the responsible task node above failedID:
// the nearest compound task, goal or multigoal ancestor. Its cached state is
// refreshed to the current live state, the node is reset with its tried method
// blacklisted, and the planning loop resumes over that subtree. The rest of
// the tree, including already-executed actions, is preserved.
func Replan(dom *Domain, current *State, tree *SolutionTree, failedID string, opts ...Option) error {
	return replanFrom(dom, current, tree, failedID, true, opts)
}

// replanRetain re-enters planning from the responsible node without
// blacklisting its tried method: cancellation intents invalidate the schedule,
// not the decomposition choice that produced it.
func replanRetain(dom *Domain, current *State, tree *SolutionTree, failedID string, opts ...Option) error {
	return replanFrom(dom, current, tree, failedID, false, opts)
}

func replanFrom(dom *Domain, current *State, tree *SolutionTree, failedID string, blacklist bool, opts []Option) error {
	c, err := newConfig(opts)
	if err != nil {
		return err
	}
	if tree.node(failedID) == nil {
		return fmt.Errorf(`ihtn: unknown node %q: %w`, failedID, ErrReplanFailed)
	}
	responsible := tree.responsibleFor(failedID)
	if responsible == nil {
		return fmt.Errorf(`ihtn: no responsible task above %s: %w`, failedID, ErrReplanFailed)
	}
	if blacklist {
		tree.reset(responsible)
	} else {
		tree.dropDescendants(responsible.ID)
		responsible.Method = ``
		responsible.Expanded = false
		responsible.Primitive = false
	}
	responsible.State = current.Copy()
	p := &planner{config: c, dom: dom, tree: tree, limit: responsible.ID}
	if err := p.run(responsible.ID); err != nil {
		return fmt.Errorf(`ihtn: %s: %w`, err, ErrReplanFailed)
	}
	return nil
}
