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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSnapshotStore_roundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisSnapshotStore(client, ``, 0)

	state := NewState().
		Set(`location`, `robot`, `room1`).
		Set(`holding`, `robot`, `box`).
		Set(`powered`, `robot`, true)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, `run-1`, state))

	loaded, err := store.Load(ctx, `run-1`)
	require.NoError(t, err)
	assert.Equal(t, `room1`, loaded.Get(`location`, `robot`))
	assert.Equal(t, `box`, loaded.Get(`holding`, `robot`))
	assert.Equal(t, true, loaded.Get(`powered`, `robot`))
	assert.Equal(t, state.Len(), loaded.Len())
}

func TestRedisSnapshotStore_missing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisSnapshotStore(client, `custom`, 0)

	_, err := store.Load(context.Background(), `nope`)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
