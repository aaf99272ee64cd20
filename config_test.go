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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_defaults(t *testing.T) {
	config, err := LoadConfig(``)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxDepth, config.MaxDepth)
	assert.Equal(t, `info`, config.LogLevel)
	assert.Equal(t, time.Millisecond, config.TickPeriod())
	strategy, err := config.Strategy()
	require.NoError(t, err)
	assert.Equal(t, StrategyPriority, strategy)
}

func TestLoadConfig_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), `config.yaml`)
	require.NoError(t, os.WriteFile(path, []byte(`
max_depth: 250
verbose: 2
log_level: debug
scheduler:
  tick_millis: 5
  strategy: deadline
  speed: 3.5
  redis_addr: redis:6379
`), 0o600))
	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 250, config.MaxDepth)
	assert.Equal(t, 2, config.Verbose)
	assert.Equal(t, `debug`, config.LogLevel)
	assert.Equal(t, 5*time.Millisecond, config.TickPeriod())
	assert.Equal(t, 3.5, config.Scheduler.Speed)
	assert.Equal(t, `redis:6379`, config.Scheduler.RedisAddr)
	strategy, err := config.Strategy()
	require.NoError(t, err)
	assert.Equal(t, StrategyDeadline, strategy)
	assert.Len(t, config.PlanOptions(), 2)
}

func TestLoadConfig_envOverrides(t *testing.T) {
	t.Setenv(`IHTN_MAX_DEPTH`, `42`)
	t.Setenv(`IHTN_LOG_LEVEL`, `error`)
	t.Setenv(`IHTN_REDIS_ADDR`, `override:6379`)
	config, err := LoadConfig(``)
	require.NoError(t, err)
	assert.Equal(t, 42, config.MaxDepth)
	assert.Equal(t, `error`, config.LogLevel)
	assert.Equal(t, `override:6379`, config.Scheduler.RedisAddr)
}

func TestLoadConfig_invalid(t *testing.T) {
	for name, content := range map[string]string{
		`bad depth`:    "max_depth: -1\n",
		`bad level`:    "log_level: loud\n",
		`bad tick`:     "scheduler:\n  tick_millis: 0\n",
		`bad strategy`: "scheduler:\n  strategy: vibes\n",
		`bad speed`:    "scheduler:\n  speed: -2\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), `config.yaml`)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_missingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), `nope.yaml`))
	assert.Error(t, err)
}
