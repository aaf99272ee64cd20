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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type (
	// SchedulerOption models scheduler configuration options.
	SchedulerOption func(c *schedulerConfig) error

	schedulerConfig struct {
		tick          time.Duration
		logger        Logger
		planOpts      []Option
		resolver      *GoalResolver
		onGoalFailure func(GoalEvent)
	}

	queueEvent struct {
		actionID string
		result   PerformResult
	}

	// Scheduler maps planner-produced primitive actions onto wall-clock
	// execution windows, dispatches them through a Queue as idempotent units,
	// applies their effects to the live state in end-time order, and routes
	// intents back into replanning.
	//
	// The loop logic runs on a single goroutine (Run); intents and queue worker
	// outcomes arrive as messages. The live state is owned by the loop, with the
	// internal mutex as the serialized application path used by queue workers.
	Scheduler struct {
		schedulerConfig
		dom   *Domain
		queue Queue
		base  time.Time

		mu            sync.Mutex
		state         *TemporalState
		actions       map[string]*TimedAction
		trees         map[string]*SolutionTree
		durations     map[string]DurationFunc
		cooldowns     map[string]float64
		cooldownUntil map[string]float64
		lastEnd       map[string]float64
		movements     map[string]string
		constraints   []TemporalConstraint
		finishing     []*TimedAction

		intents chan Intent
		events  chan queueEvent
	}
)

const defaultTickPeriod = time.Millisecond

// TickPeriod sets the loop tick period, one millisecond by default.
func TickPeriod(d time.Duration) SchedulerOption {
	return func(c *schedulerConfig) error {
		if d <= 0 {
			return fmt.Errorf(`ihtn: tick period must be positive: %s`, d)
		}
		c.tick = d
		return nil
	}
}

// SchedulerLogger routes scheduler logging through logger.
func SchedulerLogger(logger Logger) SchedulerOption {
	return func(c *schedulerConfig) error {
		if logger == nil {
			return fmt.Errorf(`ihtn: nil logger`)
		}
		c.logger = logger
		return nil
	}
}

// PlanOptions sets the planner options used for replanning.
func PlanOptions(opts ...Option) SchedulerOption {
	return func(c *schedulerConfig) error {
		c.planOpts = opts
		return nil
	}
}

// WithResolver attaches a goal resolver, enabling deadline expiry events.
func WithResolver(r *GoalResolver) SchedulerOption {
	return func(c *schedulerConfig) error {
		c.resolver = r
		return nil
	}
}

// OnGoalFailure registers a callback for goal-failure events, invoked from the
// loop goroutine.
func OnGoalFailure(fn func(GoalEvent)) SchedulerOption {
	return func(c *schedulerConfig) error {
		c.onGoalFailure = fn
		return nil
	}
}

// NewScheduler constructs a Scheduler over the live temporal state. newQueue
// receives the scheduler's perform function and returns the Queue binding to
// dispatch through.
func NewScheduler(dom *Domain, state *TemporalState, newQueue func(PerformFunc) Queue, opts ...SchedulerOption) (*Scheduler, error) {
	if dom == nil {
		return nil, fmt.Errorf(`ihtn: nil domain`)
	}
	if state == nil {
		return nil, fmt.Errorf(`ihtn: nil state`)
	}
	if newQueue == nil {
		return nil, fmt.Errorf(`ihtn: nil queue factory`)
	}
	c := schedulerConfig{
		tick:   defaultTickPeriod,
		logger: nopLogger{},
	}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return nil, err
		}
	}
	s := &Scheduler{
		schedulerConfig: c,
		dom:             dom,
		base:            time.Now(),
		state:           state,
		actions:         make(map[string]*TimedAction),
		trees:           make(map[string]*SolutionTree),
		durations:       make(map[string]DurationFunc),
		cooldowns:       make(map[string]float64),
		cooldownUntil:   make(map[string]float64),
		lastEnd:         make(map[string]float64),
		movements:       make(map[string]string),
		intents:         make(chan Intent, 64),
		events:          make(chan queueEvent, 64),
	}
	s.queue = newQueue(s.perform)
	return s, nil
}

// RegisterDuration sets the duration function for an action kind; unregistered
// actions are instantaneous.
func (s *Scheduler) RegisterDuration(action string, fn DurationFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations[action] = fn
}

// RegisterCooldown sets a per-agent cooldown in seconds after each completion
// of the action kind.
func (s *Scheduler) RegisterCooldown(action string, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[action] = seconds
}

// RegisterMovement declares an action kind as a movement whose first two
// arguments are r3.Vec positions, with the predicate holding the agent's
// position. Cancellation of an executing movement captures the interpolated
// position under that predicate.
func (s *Scheduler) RegisterMovement(action, positionPred string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements[action] = positionPred
}

// AddConstraint registers a temporal constraint consulted during assignment.
func (s *Scheduler) AddConstraint(c TemporalConstraint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constraints = append(s.constraints, c)
}

// Action returns the timed action with the given id, nil if unknown.
func (s *Scheduler) Action(id string) *TimedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions[id]
}

// AgentActions returns the agent's timed actions sorted by (end, start, id).
func (s *Scheduler) AgentActions(agent string) (actions []*TimedAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		if a.AgentID == agent {
			actions = append(actions, a)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].less(actions[j]) })
	return
}

// State returns the live temporal state. Callers must treat it as read-only
// outside the loop.
func (s *Scheduler) State() *TemporalState { return s.state }

// Now returns the loop's current time in seconds since the scheduler epoch.
func (s *Scheduler) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Now
}

// Snapshot returns a copy of the live state, safe to plan against from any
// goroutine.
func (s *Scheduler) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.State.Copy()
}

// UpdateFact writes a fact into the live state through the serialized
// application path, annotated with the current time.
func (s *Scheduler) UpdateFact(pred, subj string, obj any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SetAt(pred, subj, obj, s.state.Now)
}

// AddPlan schedules the unexecuted primitive actions of a planned solution
// tree for the agent, assigning execution windows and dispatching them to the
// queue. It returns the assigned timed actions in execution order.
func (s *Scheduler) AddPlan(agent string, tree *SolutionTree) ([]*TimedAction, error) {
	s.mu.Lock()
	s.trees[agent] = tree
	assigned, err := s.assignLocked(agent, tree)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.dispatch(assigned)
	return assigned, nil
}

// assignLocked assigns start/end windows to the agent's remaining primitive
// actions: each starts no earlier than now, its prerequisites' ends, the end
// of any active cooldown, and any constraint-derived bound.
func (s *Scheduler) assignLocked(agent string, tree *SolutionTree) ([]*TimedAction, error) {
	sim := s.state.State.Copy()
	var (
		assigned []*TimedAction
		prev     string
	)
	for _, id := range tree.PrimitiveNodes() {
		n := tree.node(id)
		if n.Executed {
			continue
		}
		act := n.Todo.(Action)
		a := &TimedAction{
			ID:      uuid.NewString(),
			AgentID: agent,
			Action:  act,
			NodeID:  id,
			Status:  StatusScheduled,
		}
		start := s.state.Now
		if end := s.lastEnd[agent]; end > start {
			start = end
		}
		if until := s.cooldownUntil[agent+`|`+act.Name]; until > start {
			start = until
		}
		if prev != `` {
			a.Prerequisites = append(a.Prerequisites, prev)
			if p := s.actions[prev]; p != nil && p.End > start {
				start = p.End
			}
		}
		for _, c := range s.constraints {
			if c.Source != a.ID && c.Source != act.Name {
				continue
			}
			if bound, ok := c.startBound(s.actions); ok && bound > start {
				start = bound
			}
		}
		if fn := s.durations[act.Name]; fn != nil {
			a.Duration = fn(s.state, act.Args)
		}
		a.Start = start
		a.End = start + a.Duration
		post, err := s.dom.ExecuteAction(sim, act.Name, act.Args)
		if err != nil {
			return nil, fmt.Errorf(`ihtn: assigning %s: %w`, act, err)
		}
		a.Effects = diffEffects(sim, post, a.End)
		sim = post
		s.actions[a.ID] = a
		s.state.Schedule(a)
		s.lastEnd[agent] = a.End
		if cd := s.cooldowns[act.Name]; cd > 0 {
			s.cooldownUntil[agent+`|`+act.Name] = a.End + cd
		}
		assigned = append(assigned, a)
		prev = a.ID
	}
	return assigned, nil
}

// dispatch schedules assigned actions with the queue off the loop goroutine,
// so queue I/O never blocks tick processing.
func (s *Scheduler) dispatch(assigned []*TimedAction) {
	if len(assigned) == 0 {
		return
	}
	jobs := make([]struct {
		id   string
		desc ActionDescriptor
		at   time.Time
	}, 0, len(assigned))
	s.mu.Lock()
	for _, a := range assigned {
		jobs = append(jobs, struct {
			id   string
			desc ActionDescriptor
			at   time.Time
		}{a.ID, a.descriptor(), s.wallClock(a.Start)})
	}
	s.mu.Unlock()
	go func() {
		for _, job := range jobs {
			jobID, err := s.queue.Schedule(job.desc, job.at)
			s.mu.Lock()
			if a := s.actions[job.id]; a != nil {
				if err != nil {
					a.Status = StatusRejected
					s.logger.Error(context.Background(), `dispatch failed`,
						F(`action`, a.Action.String()), F(`error`, err.Error()))
				} else if a.Status == StatusScheduled {
					a.JobID = jobID
				} else {
					// cancelled while dispatch was in flight
					go func() { _ = s.queue.Cancel(jobID) }()
				}
			}
			s.mu.Unlock()
		}
	}()
}

func (s *Scheduler) wallClock(at float64) time.Time {
	return s.base.Add(time.Duration(at * float64(time.Second)))
}

// perform is the idempotent queue unit: under the mutex it first applies the
// buffered completions due by the action's start, then validates the action's
// preconditions against a copy of the live state at the execution instant.
// The action's own effects apply later, at its end time.
func (s *Scheduler) perform(desc ActionDescriptor) PerformResult {
	s.mu.Lock()
	a := s.actions[desc.ID]
	if a == nil || a.Status != StatusScheduled {
		s.mu.Unlock()
		return PerformResult{Status: PerformRejected, Reason: `not scheduled`}
	}
	a.Status = StatusExecuting
	s.applyDueLocked(a.Start)
	live := s.state.State.Copy()
	s.mu.Unlock()

	var result PerformResult
	if _, err := s.dom.ExecuteAction(live, desc.Name, desc.Args); err != nil {
		if refusal(err) {
			result = PerformResult{Status: PerformRejected, Reason: err.Error()}
		} else {
			result = PerformResult{Status: PerformError, Reason: err.Error()}
		}
	} else {
		result = PerformResult{Status: PerformCompleted}
	}
	s.deliver(queueEvent{actionID: desc.ID, result: result})
	return result
}

func (s *Scheduler) deliver(ev queueEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Error(context.Background(), `event channel full, dropping`, F(`action`, ev.actionID))
	}
}

// Deliver submits an intent to the loop without blocking, reporting whether it
// was accepted.
func (s *Scheduler) Deliver(intent Intent) bool {
	select {
	case s.intents <- intent:
		return true
	default:
		return false
	}
}

// Run drives the cooperative tick loop until ctx is cancelled. Intent handling
// and replanning interleave with tick-level processing; the loop never blocks
// on queue I/O.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case intent := <-s.intents:
			s.handleIntent(intent)
		case ev := <-s.events:
			s.handleEvent(ev)
		case <-ticker.C:
			s.onTick()
		}
	}
}

func (s *Scheduler) onTick() {
	now := time.Since(s.base).Seconds()
	s.mu.Lock()
	if now > s.state.Now {
		s.state.Now = now
	}
	s.applyDueLocked(s.state.Now)
	s.mu.Unlock()
	if s.resolver != nil {
		for _, ev := range s.resolver.Expire(now) {
			s.logger.Warn(context.Background(), `goal failed`,
				F(`goal`, ev.Goal.Goal.String()), F(`reason`, ev.Reason))
			if s.onGoalFailure != nil {
				s.onGoalFailure(ev)
			}
		}
	}
}

// applyDueLocked applies buffered completions whose end time has been reached,
// in (end, start, id) order, keeping per-agent and cross-agent effect
// application totally ordered.
func (s *Scheduler) applyDueLocked(now float64) {
	sort.Slice(s.finishing, func(i, j int) bool { return s.finishing[i].less(s.finishing[j]) })
	n := 0
	for _, a := range s.finishing {
		if a.End > now || a.Status != StatusExecuting {
			if a.Status == StatusExecuting {
				s.finishing[n] = a
				n++
			}
			continue
		}
		s.completeLocked(a)
	}
	s.finishing = s.finishing[:n]
}

func (s *Scheduler) completeLocked(a *TimedAction) {
	a.Status = StatusCompleted
	for _, e := range a.Effects {
		if err := e.apply(s.state, a.End); err != nil {
			s.logger.Error(context.Background(), `effect failed`,
				F(`action`, a.Action.String()), F(`error`, err.Error()))
		}
	}
	if tree := s.trees[a.AgentID]; tree != nil {
		if n := tree.node(a.NodeID); n != nil {
			n.Executed = true
		}
	}
	s.state.Unschedule(a.ID)
	if s.verboseLog() {
		s.logger.Debug(context.Background(), `completed`, F(`action`, a.Action.String()), F(`end`, a.End))
	}
}

func (s *Scheduler) verboseLog() bool {
	_, nop := s.logger.(nopLogger)
	return !nop
}

func (s *Scheduler) handleEvent(ev queueEvent) {
	s.mu.Lock()
	a := s.actions[ev.actionID]
	if a == nil {
		s.mu.Unlock()
		return
	}
	switch ev.result.Status {
	case PerformCompleted:
		// effects apply once the execution window closes
		s.finishing = append(s.finishing, a)
		s.applyDueLocked(s.state.Now)
		s.mu.Unlock()
	case PerformRejected:
		a.Status = StatusRejected
		s.state.Unschedule(a.ID)
		agent, node := a.AgentID, a.NodeID
		s.mu.Unlock()
		s.logger.Warn(context.Background(), `action rejected, replanning`,
			F(`action`, a.Action.String()), F(`reason`, ev.result.Reason))
		s.replanAgent(agent, node, false)
	case PerformError:
		if !a.retried {
			a.retried = true
			a.Status = StatusScheduled
			// a fresh unit identity, or the queues' idempotency markers would
			// suppress the retry
			delete(s.actions, a.ID)
			s.state.Unschedule(a.ID)
			a.ID = uuid.NewString()
			s.actions[a.ID] = a
			s.state.Schedule(a)
			desc, at := a.descriptor(), s.wallClock(s.state.Now)
			s.mu.Unlock()
			s.logger.Warn(context.Background(), `action errored, retrying once`,
				F(`action`, a.Action.String()), F(`reason`, ev.result.Reason))
			go func() {
				jobID, err := s.queue.Schedule(desc, at)
				if err != nil {
					return
				}
				s.mu.Lock()
				a.JobID = jobID
				s.mu.Unlock()
			}()
			return
		}
		a.Status = StatusRejected
		s.state.Unschedule(a.ID)
		agent, node := a.AgentID, a.NodeID
		s.mu.Unlock()
		s.logger.Error(context.Background(), `action errored twice, replanning`,
			F(`action`, a.Action.String()), F(`reason`, ev.result.Reason))
		s.replanAgent(agent, node, false)
	default:
		s.mu.Unlock()
	}
}

// handleIntent applies an instantaneous command at the loop's current time:
// cancel the affected scheduled or executing actions, capture in-progress
// movement positions, then replan from the affected planner nodes and
// dispatch the refreshed plan.
func (s *Scheduler) handleIntent(intent Intent) {
	s.mu.Lock()
	now := s.state.Now
	if s.verboseLog() {
		s.logger.Info(context.Background(), `intent`,
			F(`kind`, intent.Kind.String()), F(`agent`, intent.Agent), F(`at`, now))
	}
	switch intent.Kind {
	case IntentCancelAction:
		s.cancelLocked(s.actions[intent.ActionID], now)
		s.mu.Unlock()
		return
	case IntentEmergencyStop:
		for _, a := range s.affectedLocked(intent.Agent, now) {
			s.cancelLocked(a, now)
		}
		s.mu.Unlock()
		return
	}
	affected := s.affectedLocked(intent.Agent, now)
	for _, a := range affected {
		s.cancelLocked(a, now)
	}
	if intent.Kind == IntentChangeGoal && intent.Goal != nil && s.resolver != nil {
		if err := s.resolver.Add(intent.Goal); err != nil {
			s.logger.Error(context.Background(), `change-goal rejected`, F(`error`, err.Error()))
		}
	}
	// replan each affected agent from its earliest affected planner node
	var agents, nodes []string
	seen := make(map[string]bool)
	for _, a := range affected {
		if !seen[a.AgentID] {
			seen[a.AgentID] = true
			agents, nodes = append(agents, a.AgentID), append(nodes, a.NodeID)
		}
	}
	s.mu.Unlock()
	for i, node := range nodes {
		if node != `` {
			s.replanAgent(agents[i], node, true)
		}
	}
}

// affectedLocked returns the agent's actions subject to cancellation at time
// now: executing, or scheduled to start after now. An empty agent affects all.
func (s *Scheduler) affectedLocked(agent string, now float64) (affected []*TimedAction) {
	for _, a := range s.actions {
		if agent != `` && a.AgentID != agent {
			continue
		}
		switch a.Status {
		case StatusExecuting:
			affected = append(affected, a)
		case StatusScheduled:
			if a.Start > now || a.JobID == `` {
				affected = append(affected, a)
			}
		}
	}
	sort.Slice(affected, func(i, j int) bool {
		if affected[i].Start != affected[j].Start {
			return affected[i].Start < affected[j].Start
		}
		return affected[i].ID < affected[j].ID
	})
	return
}

// cancelLocked cancels a timed action cooperatively and idempotently: a job
// that never began is revoked with the queue; an executing movement captures
// its interpolated position at the cancellation instant.
func (s *Scheduler) cancelLocked(a *TimedAction, now float64) {
	if a == nil || a.Status == StatusCancelled || a.Status == StatusCompleted || a.Status == StatusRejected {
		return
	}
	if a.JobID != `` {
		jobID := a.JobID
		go func() { _ = s.queue.Cancel(jobID) }()
	}
	if a.Status == StatusExecuting {
		if pred, ok := s.movements[a.Action.Name]; ok {
			if from, to, ok := movementArgs(a.Action.Args); ok {
				pos := Interpolate(from, to, a.Progress(now))
				s.state.SetAt(pred, a.AgentID, pos, now)
			}
		}
	}
	a.Status = StatusCancelled
	s.state.Unschedule(a.ID)
	if end := s.lastEnd[a.AgentID]; end > now {
		s.lastEnd[a.AgentID] = now
	}
}

// replanAgent re-enters planning from the given node against the live state,
// then assigns and dispatches the refreshed plan. Cancellation intents retain
// the responsible node's method; rejections and errors blacklist it.
func (s *Scheduler) replanAgent(agent, nodeID string, retain bool) {
	s.mu.Lock()
	tree := s.trees[agent]
	if tree == nil || tree.node(nodeID) == nil {
		s.mu.Unlock()
		return
	}
	live := s.state.State.Copy()
	s.mu.Unlock()

	replan := Replan
	if retain {
		replan = replanRetain
	}
	if err := replan(s.dom, live, tree, nodeID, s.planOpts...); err != nil {
		s.logger.Error(context.Background(), `replan failed`,
			F(`agent`, agent), F(`error`, err.Error()))
		return
	}
	s.mu.Lock()
	assigned, err := s.assignLocked(agent, tree)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error(context.Background(), `assignment failed`,
			F(`agent`, agent), F(`error`, err.Error()))
		return
	}
	s.dispatch(assigned)
}
