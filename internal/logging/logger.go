package logging

import (
	"fmt"
	"reflect"

	"agentconsole/internal/observability"
)

// Logger is the printf-style contract shared by the console's packages.
// Component loggers write to the process-wide line sink; Structured loggers
// write through slog when the server runs with JSON logs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or a typed nil pointer.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	return val.Kind() == reflect.Ptr && val.IsNil()
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// NewComponentLogger returns a line logger tagged with component.
func NewComponentLogger(component string) Logger {
	return newLineLogger(component)
}

// ForFormat returns the logger a server component should use for the given
// log format: a Structured logger for "json", a line logger otherwise.
func ForFormat(format string, obs *observability.Logger, component string) Logger {
	if format == "json" && obs != nil {
		return Structured(obs, component)
	}
	return NewComponentLogger(component)
}

// structuredLogger formats printf messages and emits them through slog, so
// JSON output keeps component and task_id as separate fields.
type structuredLogger struct {
	logger *observability.Logger
}

// Structured adapts an observability logger to Logger.
func Structured(logger *observability.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	if component != "" {
		logger = logger.With("component", component)
	}
	return &structuredLogger{logger: logger}
}

func (l *structuredLogger) WithTaskID(taskID string) Logger {
	if taskID == "" {
		return l
	}
	return &structuredLogger{logger: l.logger.With("task_id", taskID)}
}

func (l *structuredLogger) Debug(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Info(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Warn(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *structuredLogger) Error(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
