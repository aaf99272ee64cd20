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
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
	logger.Debug(context.Background(), `planning`, F(`depth`, 3))
	logger.Error(context.Background(), `boom`)
	out := buf.String()
	if !strings.Contains(out, `planning`) || !strings.Contains(out, `depth=3`) {
		t.Error(out)
	}
	if !strings.Contains(out, `boom`) {
		t.Error(out)
	}
}

type countingLogger struct {
	debug, info, warn, errors int
}

func (l *countingLogger) Debug(context.Context, string, ...Field) { l.debug++ }
func (l *countingLogger) Info(context.Context, string, ...Field)  { l.info++ }
func (l *countingLogger) Warn(context.Context, string, ...Field)  { l.warn++ }
func (l *countingLogger) Error(context.Context, string, ...Field) { l.errors++ }

func TestLogLevelOption(t *testing.T) {
	counter := &countingLogger{}
	c, err := newConfig([]Option{WithLogger(counter), LogLevel(`warn`)})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c.logger.Debug(ctx, `d`)
	c.logger.Info(ctx, `i`)
	c.logger.Warn(ctx, `w`)
	c.logger.Error(ctx, `e`)
	if counter.debug != 0 || counter.info != 0 || counter.warn != 1 || counter.errors != 1 {
		t.Error(counter)
	}
}

func TestLogLevelOption_invalid(t *testing.T) {
	if _, err := newConfig([]Option{LogLevel(`loud`)}); err == nil {
		t.Error(`expected error`)
	}
}
