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
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type (
	// SnapshotStore persists state snapshots keyed by an identifier. It is
	// optional: nothing in planning or execution requires persistence.
	SnapshotStore interface {
		Save(ctx context.Context, id string, state *State) error
		Load(ctx context.Context, id string) (*State, error)
	}

	// RedisSnapshotStore stores state snapshots as JSON triple lists in Redis.
	RedisSnapshotStore struct {
		client redis.UniversalClient
		prefix string
		ttl    time.Duration
	}

	snapshotTriple struct {
		Pred string `json:"pred"`
		Subj string `json:"subj"`
		Obj  any    `json:"obj"`
	}
)

// ErrSnapshotNotFound indicates no snapshot exists under the requested id.
var ErrSnapshotNotFound = errors.New(`ihtn: snapshot not found`)

// NewRedisSnapshotStore constructs a store over an existing client. A ttl of
// zero retains snapshots indefinitely.
func NewRedisSnapshotStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSnapshotStore {
	if prefix == `` {
		prefix = `ihtn:snapshot`
	}
	return &RedisSnapshotStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSnapshotStore) key(id string) string { return s.prefix + `:` + id }

// Save implements SnapshotStore.
func (s *RedisSnapshotStore) Save(ctx context.Context, id string, state *State) error {
	triples := state.Triples()
	out := make([]snapshotTriple, 0, len(triples))
	for _, t := range triples {
		out = append(out, snapshotTriple{Pred: t.Pred, Subj: t.Subj, Obj: t.Obj})
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf(`ihtn: marshal snapshot: %w`, err)
	}
	if err := s.client.Set(ctx, s.key(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf(`ihtn: save snapshot: %w`, err)
	}
	return nil
}

// Load implements SnapshotStore.
func (s *RedisSnapshotStore) Load(ctx context.Context, id string) (*State, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf(`ihtn: %q: %w`, id, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf(`ihtn: load snapshot: %w`, err)
	}
	var in []snapshotTriple
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return nil, fmt.Errorf(`ihtn: unmarshal snapshot: %w`, err)
	}
	state := NewState()
	for _, t := range in {
		state.Set(t.Pred, t.Subj, t.Obj)
	}
	return state, nil
}
