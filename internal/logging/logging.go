package logging

import (
	"context"
	"log/slog"
	"sort"
)

// LogFields represents structured logging key/value pairs used by Courier.
type LogFields map[string]any

// ServiceLogger is the minimal logging contract required by Courier
// components. Applications can adapt their existing loggers to it without
// depending on slog.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// LevelTrace sits below slog.LevelDebug. Handlers that do not enable it
// simply drop trace output.
const LevelTrace = slog.LevelDebug - 4

// NewSlogServiceLogger wraps a slog.Logger so it satisfies the ServiceLogger
// interface.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("courier: slog logger cannot be nil")
	}
	return &slogServiceLogger{inner: log}
}

// Nop returns a ServiceLogger that discards everything logged to it.
func Nop() ServiceLogger {
	return nopServiceLogger{}
}

type slogServiceLogger struct {
	inner *slog.Logger
}

func (s *slogServiceLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return s
	}
	return &slogServiceLogger{inner: s.inner.With(toArgs(fields)...)}
}

func (s *slogServiceLogger) Debug(msg string, fields LogFields) {
	s.inner.Log(context.Background(), slog.LevelDebug, msg, toArgs(fields)...)
}

func (s *slogServiceLogger) Info(msg string, fields LogFields) {
	s.inner.Log(context.Background(), slog.LevelInfo, msg, toArgs(fields)...)
}

func (s *slogServiceLogger) Error(msg string, err error, fields LogFields) {
	args := toArgs(fields)
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	s.inner.Log(context.Background(), slog.LevelError, msg, args...)
}

func (s *slogServiceLogger) Trace(msg string, fields LogFields) {
	s.inner.Log(context.Background(), LevelTrace, msg, toArgs(fields)...)
}

// toArgs flattens fields into slog arguments in key order so repeated log
// calls produce stable output.
func toArgs(fields LogFields) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		args = append(args, slog.Any(key, fields[key]))
	}
	return args
}

type nopServiceLogger struct{}

func (nopServiceLogger) With(LogFields) ServiceLogger   { return nopServiceLogger{} }
func (nopServiceLogger) Debug(string, LogFields)        {}
func (nopServiceLogger) Info(string, LogFields)         {}
func (nopServiceLogger) Error(string, error, LogFields) {}
func (nopServiceLogger) Trace(string, LogFields)        {}
