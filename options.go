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
)

type (
	// Option models planner and executor configuration options.
	Option func(c *config) error

	config struct {
		maxDepth int
		verbose  int
		logger   Logger
	}
)

const defaultMaxDepth = 100

func newConfig(opts []Option) (config, error) {
	c := config{
		maxDepth: defaultMaxDepth,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return c, err
		}
	}
	return c, nil
}

// MaxDepth bounds the number of planning loop iterations.
func MaxDepth(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return fmt.Errorf(`ihtn: max depth must be positive: %d`, n)
		}
		c.maxDepth = n
		return nil
	}
}

// Verbose sets the verbosity level; levels above zero enable progressively
// chattier logging through the configured Logger.
func Verbose(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf(`ihtn: verbosity must be non-negative: %d`, n)
		}
		c.verbose = n
		return nil
	}
}

// WithLogger routes planner and executor logging through logger.
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return fmt.Errorf(`ihtn: nil logger`)
		}
		c.logger = logger
		return nil
	}
}

// LogLevel suppresses log messages below level, one of debug, info, warn or
// error. It wraps whatever logger is configured when planning starts, so
// order it after WithLogger.
func LogLevel(level string) Option {
	return func(c *config) error {
		min, err := parseLevel(level)
		if err != nil {
			return err
		}
		c.logger = &levelLogger{min: min, next: c.logger}
		return nil
	}
}
