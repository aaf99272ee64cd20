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
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type (
	// RedisQueueOptions configures a RedisQueue.
	RedisQueueOptions struct {
		// Addr is the Redis address, localhost:6379 by default.
		Addr     string
		Password string
		DB       int
		// KeyPrefix namespaces the queue's keys, "ihtn" by default.
		KeyPrefix string
		// PollInterval bounds how far past due a job may fire, 10ms by default.
		PollInterval time.Duration
		// PollRate caps poll operations per second, 200 by default.
		PollRate float64
		// DoneTTL bounds how long executed-action markers are retained, one hour
		// by default. Markers are what make re-delivery a no-op.
		DoneTTL time.Duration
	}

	// RedisQueue is a Queue binding backed by a Redis sorted set scored by due
	// time, with a polling worker and SETNX idempotency markers. Multiple
	// processes may share the same key prefix; ZREM claims ensure single
	// delivery, markers ensure idempotent execution.
	RedisQueue struct {
		client  redis.UniversalClient
		perform PerformFunc
		opts    RedisQueueOptions
		limiter *rate.Limiter
		cancel  context.CancelFunc
		done    chan struct{}
	}

	redisJob struct {
		JobID string       `json:"job_id"`
		Desc  redisJobDesc `json:"desc"`
	}

	redisJobDesc struct {
		ID    string `json:"id"`
		Agent string `json:"agent"`
		Name  string `json:"name"`
		Args  []any  `json:"args"`
	}
)

// NewRedisQueue connects to Redis and starts the polling worker. Close stops
// the worker and releases the connection.
func NewRedisQueue(perform PerformFunc, opts RedisQueueOptions) (*RedisQueue, error) {
	if perform == nil {
		return nil, fmt.Errorf(`ihtn: nil perform`)
	}
	if opts.Addr == `` {
		opts.Addr = `localhost:6379`
	}
	if opts.KeyPrefix == `` {
		opts.KeyPrefix = `ihtn`
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.PollRate <= 0 {
		opts.PollRate = 200
	}
	if opts.DoneTTL <= 0 {
		opts.DoneTTL = time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf(`ihtn: redis connect: %w`, err)
	}
	q := &RedisQueue{
		client:  client,
		perform: perform,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.PollRate), 1),
		done:    make(chan struct{}),
	}
	var workerCtx context.Context
	workerCtx, q.cancel = context.WithCancel(context.Background())
	go q.worker(workerCtx)
	return q, nil
}

func (q *RedisQueue) scheduleKey() string { return q.opts.KeyPrefix + `:schedule` }
func (q *RedisQueue) jobsKey() string     { return q.opts.KeyPrefix + `:jobs` }
func (q *RedisQueue) doneKey(actionID string) string {
	return q.opts.KeyPrefix + `:done:` + actionID
}

// Schedule implements Queue.
func (q *RedisQueue) Schedule(desc ActionDescriptor, at time.Time) (string, error) {
	jobID := uuid.NewString()
	payload, err := json.Marshal(redisJob{
		JobID: jobID,
		Desc:  redisJobDesc{ID: desc.ID, Agent: desc.Agent, Name: desc.Name, Args: desc.Args},
	})
	if err != nil {
		return ``, fmt.Errorf(`ihtn: marshal job: %w`, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobsKey(), jobID, payload)
	pipe.ZAdd(ctx, q.scheduleKey(), redis.Z{
		Score:  float64(at.UnixNano()),
		Member: jobID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return ``, fmt.Errorf(`ihtn: schedule job: %w`, err)
	}
	return jobID, nil
}

// Cancel implements Queue.
func (q *RedisQueue) Cancel(jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	removed, err := q.client.ZRem(ctx, q.scheduleKey(), jobID).Result()
	if err != nil {
		return fmt.Errorf(`ihtn: cancel job: %w`, err)
	}
	q.client.HDel(ctx, q.jobsKey(), jobID)
	if removed == 0 {
		return fmt.Errorf(`ihtn: job %q: %w`, jobID, ErrJobNotFound)
	}
	return nil
}

// Close stops the worker and closes the client.
func (q *RedisQueue) Close() error {
	q.cancel()
	<-q.done
	return q.client.Close()
}

func (q *RedisQueue) worker(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := q.limiter.Wait(ctx); err != nil {
			return
		}
		q.poll(ctx)
	}
}

// poll claims and performs every due job. The ZREM claim guarantees a job is
// delivered once; the SETNX marker keeps a re-delivered action id a no-op.
func (q *RedisQueue) poll(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	jobIDs, err := q.client.ZRangeByScore(ctx, q.scheduleKey(), &redis.ZRangeBy{
		Min: `-inf`,
		Max: now,
	}).Result()
	if err != nil || len(jobIDs) == 0 {
		return
	}
	for _, jobID := range jobIDs {
		claimed, err := q.client.ZRem(ctx, q.scheduleKey(), jobID).Result()
		if err != nil || claimed == 0 {
			continue
		}
		payload, err := q.client.HGet(ctx, q.jobsKey(), jobID).Result()
		q.client.HDel(ctx, q.jobsKey(), jobID)
		if err != nil {
			continue
		}
		var job redisJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			continue
		}
		ok, err := q.client.SetNX(ctx, q.doneKey(job.Desc.ID), jobID, q.opts.DoneTTL).Result()
		if err != nil || !ok {
			// already executed for this action id
			continue
		}
		q.perform(ActionDescriptor{
			ID:    job.Desc.ID,
			Agent: job.Desc.Agent,
			Name:  job.Desc.Name,
			Args:  job.Desc.Args,
		})
	}
}
