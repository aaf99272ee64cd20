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
	"log/slog"
)

type (
	// Logger models structured logging for the planner and scheduler, so that any
	// logging library may be plugged in. The default is a no-op.
	Logger interface {
		Debug(ctx context.Context, msg string, fields ...Field)
		Info(ctx context.Context, msg string, fields ...Field)
		Warn(ctx context.Context, msg string, fields ...Field)
		Error(ctx context.Context, msg string, fields ...Field)
	}

	// Field is a key-value pair attached to a log message.
	Field struct {
		Key   string
		Value any
	}

	nopLogger struct{}

	slogLogger struct {
		logger *slog.Logger
	}

	// levelLogger filters messages below a minimum level before delegating.
	levelLogger struct {
		min  slog.Level
		next Logger
	}
)

// F is shorthand for constructing a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

func (nopLogger) Debug(context.Context, string, ...Field) {}
func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}

// NewSlogLogger adapts a *slog.Logger to the Logger interface. A nil logger
// uses slog.Default.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLogger{logger: logger}
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	attrs := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		attrs = append(attrs, f.Key, f.Value)
	}
	l.logger.Log(ctx, level, msg, attrs...)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}
func (l *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}
func (l *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}
func (l *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case `debug`:
		return slog.LevelDebug, nil
	case `info`:
		return slog.LevelInfo, nil
	case `warn`:
		return slog.LevelWarn, nil
	case `error`:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf(`ihtn: unknown log level %q`, level)
	}
}

func (l *levelLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	if l.min <= slog.LevelDebug {
		l.next.Debug(ctx, msg, fields...)
	}
}
func (l *levelLogger) Info(ctx context.Context, msg string, fields ...Field) {
	if l.min <= slog.LevelInfo {
		l.next.Info(ctx, msg, fields...)
	}
}
func (l *levelLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	if l.min <= slog.LevelWarn {
		l.next.Warn(ctx, msg, fields...)
	}
}
func (l *levelLogger) Error(ctx context.Context, msg string, fields ...Field) {
	if l.min <= slog.LevelError {
		l.next.Error(ctx, msg, fields...)
	}
}
