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
	"sync"
	"time"

	"github.com/google/uuid"
)

type (
	// ActionDescriptor identifies a timed action scheduled with a Queue.
	ActionDescriptor struct {
		ID    string
		Agent string
		Name  string
		Args  []any
	}

	// PerformStatus is the outcome of a queue worker performing an action.
	PerformStatus int

	// PerformResult reports the outcome of a perform invocation.
	PerformResult struct {
		Status PerformStatus
		Reason string
	}

	// PerformFunc is invoked by queue workers at or near the scheduled time.
	// Implementations must be idempotent: performing the same action id twice
	// must not double-apply effects.
	PerformFunc func(desc ActionDescriptor) PerformResult

	// Queue schedules idempotent action units for wall-clock execution. The
	// temporal scheduler consumes this interface; bindings may execute in-process
	// or through an external broker.
	Queue interface {
		// Schedule registers the action to be performed at the given wall-clock
		// time, returning an opaque job id.
		Schedule(desc ActionDescriptor, at time.Time) (jobID string, err error)
		// Cancel revokes a scheduled job. Cancelling an unknown or already-fired
		// job returns an error wrapping ErrJobNotFound.
		Cancel(jobID string) error
	}

	// MemoryQueue is an in-process Queue backed by timers, suitable for tests,
	// examples and single-process deployments.
	MemoryQueue struct {
		perform PerformFunc

		mu     sync.Mutex
		timers map[string]*time.Timer
		fired  map[string]struct{}
	}
)

const (
	PerformCompleted PerformStatus = iota
	PerformRejected
	PerformError
)

// NewMemoryQueue constructs a MemoryQueue invoking perform from timer
// goroutines.
func NewMemoryQueue(perform PerformFunc) *MemoryQueue {
	return &MemoryQueue{
		perform: perform,
		timers:  make(map[string]*time.Timer),
		fired:   make(map[string]struct{}),
	}
}

// Schedule implements Queue.
func (q *MemoryQueue) Schedule(desc ActionDescriptor, at time.Time) (string, error) {
	jobID := uuid.NewString()
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	q.timers[jobID] = time.AfterFunc(delay, func() { q.fire(jobID, desc) })
	q.mu.Unlock()
	return jobID, nil
}

func (q *MemoryQueue) fire(jobID string, desc ActionDescriptor) {
	q.mu.Lock()
	delete(q.timers, jobID)
	if _, dup := q.fired[desc.ID]; dup {
		q.mu.Unlock()
		return
	}
	q.fired[desc.ID] = struct{}{}
	q.mu.Unlock()
	q.perform(desc)
}

// Cancel implements Queue.
func (q *MemoryQueue) Cancel(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	timer, ok := q.timers[jobID]
	if !ok {
		return fmt.Errorf(`ihtn: job %q: %w`, jobID, ErrJobNotFound)
	}
	timer.Stop()
	delete(q.timers, jobID)
	return nil
}

// Pending returns the number of scheduled, unfired jobs.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}
