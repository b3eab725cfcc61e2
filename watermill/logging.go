package watermill

import (
	"log/slog"

	wm "github.com/ThreeDotsLabs/watermill"

	"github.com/couriermq/courier/internal/logging"
)

var logLevelMapping = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogLoggerAdapter wraps a slog.Logger as a watermill LoggerAdapter
// using a direct level mapping.
func NewSlogLoggerAdapter(log *slog.Logger) wm.LoggerAdapter {
	if log == nil {
		panic("courier: slog logger cannot be nil")
	}
	return wm.NewSlogLoggerWithLevelMapping(log, logLevelMapping)
}

// NewWatermillServiceLogger wraps an existing watermill LoggerAdapter so it
// can be supplied anywhere courier expects a ServiceLogger.
func NewWatermillServiceLogger(logger wm.LoggerAdapter) logging.ServiceLogger {
	if logger == nil {
		panic("courier: watermill logger cannot be nil")
	}
	return &watermillServiceLogger{inner: logger}
}

type watermillServiceLogger struct {
	inner wm.LoggerAdapter
}

func (w *watermillServiceLogger) With(fields logging.LogFields) logging.ServiceLogger {
	return &watermillServiceLogger{inner: w.inner.With(toWatermillFields(fields))}
}

func (w *watermillServiceLogger) Debug(msg string, fields logging.LogFields) {
	w.inner.Debug(msg, toWatermillFields(fields))
}

func (w *watermillServiceLogger) Info(msg string, fields logging.LogFields) {
	w.inner.Info(msg, toWatermillFields(fields))
}

func (w *watermillServiceLogger) Error(msg string, err error, fields logging.LogFields) {
	w.inner.Error(msg, err, toWatermillFields(fields))
}

func (w *watermillServiceLogger) Trace(msg string, fields logging.LogFields) {
	w.inner.Trace(msg, toWatermillFields(fields))
}

// NewWatermillAdapter converts a ServiceLogger into a watermill
// LoggerAdapter so watermill components can log through courier's logger.
func NewWatermillAdapter(log logging.ServiceLogger) wm.LoggerAdapter {
	if log == nil {
		panic("courier: ServiceLogger cannot be nil")
	}
	return &serviceLoggerAdapter{base: log}
}

type serviceLoggerAdapter struct {
	base logging.ServiceLogger
}

func (s *serviceLoggerAdapter) Error(msg string, err error, fields wm.LogFields) {
	s.base.Error(msg, err, fromWatermillFields(fields))
}

func (s *serviceLoggerAdapter) Info(msg string, fields wm.LogFields) {
	s.base.Info(msg, fromWatermillFields(fields))
}

func (s *serviceLoggerAdapter) Debug(msg string, fields wm.LogFields) {
	s.base.Debug(msg, fromWatermillFields(fields))
}

func (s *serviceLoggerAdapter) Trace(msg string, fields wm.LogFields) {
	s.base.Trace(msg, fromWatermillFields(fields))
}

func (s *serviceLoggerAdapter) With(fields wm.LogFields) wm.LoggerAdapter {
	return &serviceLoggerAdapter{base: s.base.With(fromWatermillFields(fields))}
}

func toWatermillFields(fields logging.LogFields) wm.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return wm.LogFields(fields)
}

func fromWatermillFields(fields wm.LogFields) logging.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return logging.LogFields(fields)
}
