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
	"sort"
)

type (
	// IntentKind enumerates the recognized instantaneous commands. Intents are
	// distinct from actions: they carry no duration and mutate the plan queue
	// rather than the world.
	IntentKind int

	// Intent is an immediate, zero-duration command delivered into the scheduler
	// loop as a message.
	Intent struct {
		Kind IntentKind
		// Agent scopes the intent; empty affects every agent.
		Agent string
		// ActionID targets a specific timed action for IntentCancelAction.
		ActionID string
		// Goal carries the replacement objective for IntentChangeGoal.
		Goal *PrioritizedGoal
	}

	// PrioritizedGoal is a goal with competition metadata for the resolver.
	PrioritizedGoal struct {
		Goal     Goal
		Agent    string
		Priority int
		// Deadline of zero means none; exceedance raises a goal-failure event.
		Deadline float64
		Utility  float64

		failed bool
	}

	// Strategy selects how competing goals are resolved.
	Strategy int

	// GoalEvent reports a goal lifecycle transition, currently deadline failure.
	GoalEvent struct {
		Goal   *PrioritizedGoal
		Reason string
	}

	// GoalResolver tracks competing prioritized goals and selects the one to
	// pursue under the configured strategy.
	GoalResolver struct {
		strategy Strategy
		custom   func(goals []*PrioritizedGoal) *PrioritizedGoal
		goals    []*PrioritizedGoal
	}
)

const (
	IntentInterrupt IntentKind = iota
	IntentChangeGoal
	IntentCancelAction
	IntentEmergencyStop
	IntentReplan
)

func (k IntentKind) String() string {
	switch k {
	case IntentInterrupt:
		return `interrupt`
	case IntentChangeGoal:
		return `change-goal`
	case IntentCancelAction:
		return `cancel-action`
	case IntentEmergencyStop:
		return `emergency-stop`
	case IntentReplan:
		return `replan`
	default:
		return `unknown`
	}
}

const (
	StrategyPriority Strategy = iota
	StrategyUtility
	StrategyDeadline
	StrategyCustom
)

// NewGoalResolver constructs a resolver for the given strategy. StrategyCustom
// requires a selection function.
func NewGoalResolver(strategy Strategy, custom func(goals []*PrioritizedGoal) *PrioritizedGoal) (*GoalResolver, error) {
	if strategy == StrategyCustom && custom == nil {
		return nil, fmt.Errorf(`ihtn: custom strategy requires a selection function`)
	}
	return &GoalResolver{strategy: strategy, custom: custom}, nil
}

// Add registers a goal. Priority must be within [1, 100].
func (r *GoalResolver) Add(g *PrioritizedGoal) error {
	if g == nil {
		return fmt.Errorf(`ihtn: nil goal`)
	}
	if g.Priority < 1 || g.Priority > 100 {
		return fmt.Errorf(`ihtn: goal priority %d outside [1, 100]`, g.Priority)
	}
	r.goals = append(r.goals, g)
	return nil
}

// Remove drops a goal from contention.
func (r *GoalResolver) Remove(g *PrioritizedGoal) {
	for i, v := range r.goals {
		if v == g {
			r.goals = append(r.goals[:i], r.goals[i+1:]...)
			return
		}
	}
}

// Goals returns the goals currently in contention.
func (r *GoalResolver) Goals() []*PrioritizedGoal { return r.goals }

// Resolve selects the goal to pursue, nil when none remain. Failed goals never
// win.
func (r *GoalResolver) Resolve() *PrioritizedGoal {
	candidates := make([]*PrioritizedGoal, 0, len(r.goals))
	for _, g := range r.goals {
		if !g.failed {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if r.strategy == StrategyCustom {
		return r.custom(candidates)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch r.strategy {
		case StrategyUtility:
			return a.Utility > b.Utility
		case StrategyDeadline:
			// goals without deadlines sort last
			if (a.Deadline == 0) != (b.Deadline == 0) {
				return b.Deadline == 0
			}
			return a.Deadline < b.Deadline
		default:
			return a.Priority > b.Priority
		}
	})
	return candidates[0]
}

// Expire marks goals whose deadline has passed as failed, returning an event
// per newly failed goal. Callers may convert these into replans.
func (r *GoalResolver) Expire(now float64) (events []GoalEvent) {
	for _, g := range r.goals {
		if !g.failed && g.Deadline > 0 && now > g.Deadline {
			g.failed = true
			events = append(events, GoalEvent{
				Goal:   g,
				Reason: fmt.Sprintf(`deadline %g exceeded at %g`, g.Deadline, now),
			})
		}
	}
	return
}
