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
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config carries planner and scheduler configuration loadable from YAML.
	Config struct {
		MaxDepth int    `yaml:"max_depth"`
		Verbose  int    `yaml:"verbose"`
		LogLevel string `yaml:"log_level"`

		Scheduler SchedulerFileConfig `yaml:"scheduler"`
	}

	// SchedulerFileConfig is the scheduler portion of Config.
	SchedulerFileConfig struct {
		TickMillis int     `yaml:"tick_millis"`
		Strategy   string  `yaml:"strategy"`
		Speed      float64 `yaml:"speed"`
		RedisAddr  string  `yaml:"redis_addr"`
		KeyPrefix  string  `yaml:"key_prefix"`
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth: defaultMaxDepth,
		LogLevel: `info`,
		Scheduler: SchedulerFileConfig{
			TickMillis: 1,
			Strategy:   `priority`,
			Speed:      1,
			KeyPrefix:  `ihtn`,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults, applies IHTN_*
// environment overrides, and validates the result.
//
// Recognized overrides: IHTN_MAX_DEPTH, IHTN_VERBOSE, IHTN_LOG_LEVEL,
// IHTN_REDIS_ADDR.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != `` {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf(`ihtn: read config: %w`, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf(`ihtn: parse config: %w`, err)
		}
	}
	if v := os.Getenv(`IHTN_MAX_DEPTH`); v != `` {
		if n, err := strconv.Atoi(v); err == nil {
			config.MaxDepth = n
		}
	}
	if v := os.Getenv(`IHTN_VERBOSE`); v != `` {
		if n, err := strconv.Atoi(v); err == nil {
			config.Verbose = n
		}
	}
	if v := os.Getenv(`IHTN_LOG_LEVEL`); v != `` {
		config.LogLevel = v
	}
	if v := os.Getenv(`IHTN_REDIS_ADDR`); v != `` {
		config.Scheduler.RedisAddr = v
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.MaxDepth <= 0 {
		return fmt.Errorf(`ihtn: max_depth must be positive: %d`, c.MaxDepth)
	}
	if c.Verbose < 0 {
		return fmt.Errorf(`ihtn: verbose must be non-negative: %d`, c.Verbose)
	}
	switch c.LogLevel {
	case `debug`, `info`, `warn`, `error`:
	default:
		return fmt.Errorf(`ihtn: unknown log_level %q`, c.LogLevel)
	}
	if c.Scheduler.TickMillis <= 0 {
		return fmt.Errorf(`ihtn: tick_millis must be positive: %d`, c.Scheduler.TickMillis)
	}
	if _, err := c.Strategy(); err != nil {
		return err
	}
	if c.Scheduler.Speed <= 0 {
		return fmt.Errorf(`ihtn: speed must be positive: %g`, c.Scheduler.Speed)
	}
	return nil
}

// PlanOptions derives planner options from the configuration.
func (c *Config) PlanOptions() []Option {
	return []Option{MaxDepth(c.MaxDepth), Verbose(c.Verbose)}
}

// TickPeriod derives the scheduler tick period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Scheduler.TickMillis) * time.Millisecond
}

// Strategy parses the configured goal resolution strategy.
func (c *Config) Strategy() (Strategy, error) {
	switch c.Scheduler.Strategy {
	case `priority`, ``:
		return StrategyPriority, nil
	case `utility`:
		return StrategyUtility, nil
	case `deadline`:
		return StrategyDeadline, nil
	case `custom`:
		return StrategyCustom, nil
	default:
		return 0, fmt.Errorf(`ihtn: unknown strategy %q`, c.Scheduler.Strategy)
	}
}
