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

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/spatial/r3"
)

type (
	// TimedStatus is the lifecycle status of a timed action.
	TimedStatus int

	// TimedAction is a primitive action scheduled over wall time: a start,
	// duration and derived end, prerequisite action ids, the temporal effects to
	// apply on completion, and a lifecycle status.
	TimedAction struct {
		ID            string
		AgentID       string
		Action        Action
		NodeID        string
		Start         float64
		Duration      float64
		End           float64
		Prerequisites []string
		Effects       []TemporalEffect
		Constraints   []TemporalConstraint
		Status        TimedStatus
		JobID         string

		retried bool
	}

	// EffectKind selects how a TemporalEffect mutates its fact.
	EffectKind int

	// TemporalEffect is a single state mutation attributed to a timed action:
	// set, add, remove or modify of (Property, Object), optionally gated by a
	// condition expression evaluated against the current fact value.
	TemporalEffect struct {
		Kind     EffectKind
		Object   string
		Property string
		Value    any
		Start    float64
		// Duration is recorded with the effect; apply does not expire effects,
		// so every applied effect persists until another effect changes it.
		Duration float64
		// Condition is an optional govaluate expression over `current`, `value`
		// and `now`; a false result skips the effect.
		Condition string
	}

	// ConstraintKind enumerates the supported temporal relations.
	ConstraintKind int

	// TemporalConstraint relates timed actions (or an action and an absolute
	// time, for deadlines and cooldowns).
	TemporalConstraint struct {
		Kind     ConstraintKind
		Source   string
		Target   string
		Offset   float64
		Duration float64
		Penalty  float64
	}

	// DurationFunc computes the duration in seconds of an action's execution
	// window, given the state it starts from and the action arguments.
	DurationFunc func(state *TemporalState, args []any) float64
)

const (
	StatusScheduled TimedStatus = iota
	StatusExecuting
	StatusCompleted
	StatusCancelled
	StatusRejected
)

func (s TimedStatus) String() string {
	switch s {
	case StatusScheduled:
		return `scheduled`
	case StatusExecuting:
		return `executing`
	case StatusCompleted:
		return `completed`
	case StatusCancelled:
		return `cancelled`
	case StatusRejected:
		return `rejected`
	default:
		return `unknown`
	}
}

const (
	EffectSet EffectKind = iota
	EffectAdd
	EffectRemove
	EffectModify
)

const (
	ConstraintBefore ConstraintKind = iota
	ConstraintAfter
	ConstraintDuring
	ConstraintMeets
	ConstraintOverlaps
	ConstraintStarts
	ConstraintFinishes
	ConstraintEquals
	ConstraintDeadline
	ConstraintCooldown
)

// less orders timed actions by (end, start, id), the order in which effects
// are applied to the live state.
func (a *TimedAction) less(b *TimedAction) bool {
	if a.End != b.End {
		return a.End < b.End
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.ID < b.ID
}

// Err reports a timed action's terminal failure: ErrActionRejected once its
// status is rejected (the execution-instant validation refused it, it errored
// a second time, or dispatch failed), nil otherwise.
func (a *TimedAction) Err() error {
	if a.Status == StatusRejected {
		return ErrActionRejected
	}
	return nil
}

// descriptor converts the action into its queue-scheduling form.
func (a *TimedAction) descriptor() ActionDescriptor {
	return ActionDescriptor{
		ID:    a.ID,
		Agent: a.AgentID,
		Name:  a.Action.Name,
		Args:  a.Action.Args,
	}
}

// apply mutates state according to the effect at the given time. Conditioned
// effects evaluate their expression first; evaluation errors propagate.
func (e TemporalEffect) apply(state *TemporalState, at float64) error {
	current := state.Get(e.Property, e.Object)
	if e.Condition != `` {
		expr, err := govaluate.NewEvaluableExpression(e.Condition)
		if err != nil {
			return fmt.Errorf(`ihtn: effect condition %q: %w`, e.Condition, err)
		}
		result, err := expr.Evaluate(map[string]any{
			`current`: current,
			`value`:   e.Value,
			`now`:     at,
		})
		if err != nil {
			return fmt.Errorf(`ihtn: effect condition %q: %w`, e.Condition, err)
		}
		if pass, ok := result.(bool); !ok || !pass {
			return nil
		}
	}
	switch e.Kind {
	case EffectSet:
		state.SetAt(e.Property, e.Object, e.Value, at)
	case EffectRemove:
		state.Remove(e.Property, e.Object)
	case EffectAdd, EffectModify:
		cur, curOK := toFloat(current)
		delta, deltaOK := toFloat(e.Value)
		if curOK && deltaOK {
			state.SetAt(e.Property, e.Object, cur+delta, at)
		} else {
			state.SetAt(e.Property, e.Object, e.Value, at)
		}
	default:
		return fmt.Errorf(`ihtn: unknown effect kind %d`, e.Kind)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// diffEffects derives the set/remove effects transforming pre into post,
// attributed to time at. The scheduler uses it to turn simulated action
// results into temporal effects applied on completion.
func diffEffects(pre, post *State, at float64) (effects []TemporalEffect) {
	for _, t := range post.Triples() {
		if pre.Get(t.Pred, t.Subj) != t.Obj {
			effects = append(effects, TemporalEffect{
				Kind:     EffectSet,
				Object:   t.Subj,
				Property: t.Pred,
				Value:    t.Obj,
				Start:    at,
			})
		}
	}
	for _, t := range pre.Triples() {
		if _, ok := post.facts[factKey{t.Pred, t.Subj}]; !ok {
			effects = append(effects, TemporalEffect{
				Kind:     EffectRemove,
				Object:   t.Subj,
				Property: t.Pred,
				Start:    at,
			})
		}
	}
	return
}

// FixedDuration returns a DurationFunc yielding a constant duration.
func FixedDuration(seconds float64) DurationFunc {
	return func(*TemporalState, []any) float64 { return seconds }
}

// MovementDuration returns a DurationFunc for movement actions whose first two
// arguments are r3.Vec positions: Euclidean distance over a fixed speed.
func MovementDuration(speed float64) DurationFunc {
	return func(_ *TemporalState, args []any) float64 {
		from, to, ok := movementArgs(args)
		if !ok || speed <= 0 {
			return 0
		}
		return r3.Norm(r3.Sub(to, from)) / speed
	}
}

func movementArgs(args []any) (from, to r3.Vec, ok bool) {
	if len(args) < 2 {
		return
	}
	from, ok = args[0].(r3.Vec)
	if !ok {
		return
	}
	to, ok = args[1].(r3.Vec)
	return
}

// Interpolate returns the position along from→to at the given progress,
// clamped to [0, 1].
func Interpolate(from, to r3.Vec, progress float64) r3.Vec {
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	return r3.Add(from, r3.Scale(progress, r3.Sub(to, from)))
}

// Progress returns the fraction of an action's window elapsed at time t,
// clamped to [0, 1].
func (a *TimedAction) Progress(t float64) float64 {
	if a.Duration <= 0 {
		return 1
	}
	p := (t - a.Start) / a.Duration
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// startBound resolves the earliest start the constraint permits for its
// source, given the already-assigned actions. Unresolvable targets bound
// nothing.
func (c TemporalConstraint) startBound(actions map[string]*TimedAction) (float64, bool) {
	target := actions[c.Target]
	if target == nil {
		return 0, false
	}
	switch c.Kind {
	case ConstraintAfter:
		return target.End + c.Offset, true
	case ConstraintMeets:
		return target.End, true
	case ConstraintStarts, ConstraintEquals:
		return target.Start, true
	default:
		return 0, false
	}
}
