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
	"sort"
)

type (
	// State is a flat triple store mapping (predicate, subject) to an opaque
	// object. At most one object exists per key; missing lookups return nil.
	//
	// Writes are in-place. The planner copies states before caching them on
	// solution-tree nodes, which is where immutability is required.
	State struct {
		facts map[factKey]any
	}

	// Triple is the externalized form of a single fact.
	Triple struct {
		Pred string
		Subj string
		Obj  any
	}

	factKey struct {
		pred string
		subj string
	}

	// TemporalState is a State extended with a current time, per-fact start-time
	// annotations, and the set of scheduled actions.
	TemporalState struct {
		State
		// Now is the current time in seconds, relative to the scheduler epoch.
		Now float64

		starts    map[factKey]float64
		scheduled map[string]*TimedAction
	}
)

// NewState constructs an empty State.
func NewState() *State { return &State{facts: make(map[factKey]any)} }

// FromTriples constructs a State from triples, later triples winning on key
// collision.
func FromTriples(triples []Triple) *State {
	s := NewState()
	for _, t := range triples {
		s.Set(t.Pred, t.Subj, t.Obj)
	}
	return s
}

// Get returns the object for (pred, subj), or nil.
func (s *State) Get(pred, subj string) any {
	return s.facts[factKey{pred, subj}]
}

// Set stores obj under (pred, subj), replacing any previous object.
func (s *State) Set(pred, subj string, obj any) *State {
	if s.facts == nil {
		s.facts = make(map[factKey]any)
	}
	s.facts[factKey{pred, subj}] = obj
	return s
}

// Remove drops the fact under (pred, subj), if any.
func (s *State) Remove(pred, subj string) {
	delete(s.facts, factKey{pred, subj})
}

// Subjects enumerates the distinct subjects known for a predicate, sorted.
func (s *State) Subjects(pred string) (subjects []string) {
	for k := range s.facts {
		if k.pred == pred {
			subjects = append(subjects, k.subj)
		}
	}
	sort.Strings(subjects)
	return
}

// Len returns the number of facts.
func (s *State) Len() int { return len(s.facts) }

// Merge applies every fact from other onto the receiver, other winning on key
// collision.
func (s *State) Merge(other *State) *State {
	if other == nil {
		return s
	}
	for k, v := range other.facts {
		s.Set(k.pred, k.subj, v)
	}
	return s
}

// Copy returns an independent shallow copy. Objects are opaque and shared.
func (s *State) Copy() *State {
	c := &State{facts: make(map[factKey]any, len(s.facts))}
	for k, v := range s.facts {
		c.facts[k] = v
	}
	return c
}

// Triples externalizes the state in deterministic (pred, subj) order.
func (s *State) Triples() (triples []Triple) {
	keys := make([]factKey, 0, len(s.facts))
	for k := range s.facts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pred != keys[j].pred {
			return keys[i].pred < keys[j].pred
		}
		return keys[i].subj < keys[j].subj
	})
	for _, k := range keys {
		triples = append(triples, Triple{Pred: k.pred, Subj: k.subj, Obj: s.facts[k]})
	}
	return
}

// NewTemporalState constructs an empty TemporalState at time zero.
func NewTemporalState() *TemporalState {
	return &TemporalState{
		State:     State{facts: make(map[factKey]any)},
		starts:    make(map[factKey]float64),
		scheduled: make(map[string]*TimedAction),
	}
}

// SetAt stores obj under (pred, subj) annotated with a fact start time.
func (t *TemporalState) SetAt(pred, subj string, obj any, at float64) {
	t.Set(pred, subj, obj)
	if t.starts == nil {
		t.starts = make(map[factKey]float64)
	}
	t.starts[factKey{pred, subj}] = at
}

// Since returns the start-time annotation for (pred, subj), zero if the fact
// was never annotated.
func (t *TemporalState) Since(pred, subj string) float64 {
	return t.starts[factKey{pred, subj}]
}

// AsOf returns the object for (pred, subj) as of the given time: the current
// value if its start time is at or before at, else nil.
func (t *TemporalState) AsOf(pred, subj string, at float64) any {
	k := factKey{pred, subj}
	if start, ok := t.starts[k]; ok && start > at {
		return nil
	}
	return t.facts[k]
}

// Schedule records a timed action as scheduled within the state.
func (t *TemporalState) Schedule(a *TimedAction) {
	if t.scheduled == nil {
		t.scheduled = make(map[string]*TimedAction)
	}
	t.scheduled[a.ID] = a
}

// Unschedule drops a timed action from the scheduled set.
func (t *TemporalState) Unschedule(id string) {
	delete(t.scheduled, id)
}

// ScheduledActions returns the scheduled actions sorted by (end, start, id),
// the order in which their effects apply.
func (t *TemporalState) ScheduledActions() (actions []*TimedAction) {
	for _, a := range t.scheduled {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].less(actions[j]) })
	return
}

// CopyTemporal returns an independent copy, sharing opaque objects and timed
// action values.
func (t *TemporalState) CopyTemporal() *TemporalState {
	c := NewTemporalState()
	c.Now = t.Now
	for k, v := range t.facts {
		c.facts[k] = v
	}
	for k, v := range t.starts {
		c.starts[k] = v
	}
	for k, v := range t.scheduled {
		c.scheduled[k] = v
	}
	return c
}
