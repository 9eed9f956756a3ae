package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// RedactedPlaceholder replaces secrets found in log lines.
const RedactedPlaceholder = "[REDACTED]"

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Options configures the process-wide line sink shared by component loggers.
type Options struct {
	Level  string
	Output io.Writer
	// File, when set, receives a copy of every line in addition to Output.
	File string
}

type sink struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	file   *os.File
	closed bool
}

var defaultSink = &sink{level: LevelInfo, out: os.Stderr}

// Configure replaces the shared sink. It returns a closer for the log file, if any.
func Configure(opts Options) (func() error, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var file *os.File
	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		out = io.MultiWriter(out, f)
	}

	defaultSink.mu.Lock()
	previous := defaultSink.file
	defaultSink.level = ParseLevel(opts.Level)
	defaultSink.out = out
	defaultSink.file = file
	defaultSink.closed = false
	defaultSink.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	return func() error {
		defaultSink.mu.Lock()
		defer defaultSink.mu.Unlock()
		if defaultSink.file == nil || defaultSink.closed {
			return nil
		}
		defaultSink.closed = true
		defaultSink.out = os.Stderr
		return defaultSink.file.Close()
	}, nil
}

// lineLogger writes lines formatted as
// 2025-09-30 12:34:56 [INFO] [Component] file.go:123 - Message
type lineLogger struct {
	component string
	prefix    string
}

func newLineLogger(component string) *lineLogger {
	return &lineLogger{component: component}
}

// WithTaskID returns a copy of the logger that tags every line with task_id.
func (l *lineLogger) WithTaskID(taskID string) Logger {
	if taskID == "" {
		return l
	}
	return &lineLogger{component: l.component, prefix: "task_id=" + taskID + " "}
}

func (l *lineLogger) log(level Level, format string, args ...any) {
	defaultSink.mu.Lock()
	defer defaultSink.mu.Unlock()
	if level < defaultSink.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "agentconsole"
	}

	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s%s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, component, file, line, l.prefix, message)

	_, _ = io.WriteString(defaultSink.out, sanitizeLogLine(logLine))
}

func (l *lineLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *lineLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *lineLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *lineLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

var (
	authorizationBearerPattern = regexp.MustCompile(
		`(?i)((?:"|')?authorization(?:"|')?\s*(?:=|:)\s*)(bearer\s+)([^"'\s,;]+)`,
	)
	sensitiveKeyValuePattern = regexp.MustCompile(
		`(?i)((?:"|')?(?:api[_-]?key|access[_-]?token|secret|password)(?:"|')?\s*(?:=|:)\s*)(?:"|')?([^"'\s,;]+)((?:"|')?)`,
	)
	standaloneSecretPattern = regexp.MustCompile(
		`(?i)(sk-[A-Za-z0-9]{16,}|ghp_[A-Za-z0-9]{16,}|pat_[A-Za-z0-9]{16,})`,
	)
)

func sanitizeLogLine(line string) string {
	sanitized := authorizationBearerPattern.ReplaceAllStringFunc(line, func(match string) string {
		submatches := authorizationBearerPattern.FindStringSubmatch(match)
		if len(submatches) != 4 {
			return match
		}
		return submatches[1] + submatches[2] + RedactedPlaceholder
	})

	sanitized = sensitiveKeyValuePattern.ReplaceAllStringFunc(sanitized, func(match string) string {
		submatches := sensitiveKeyValuePattern.FindStringSubmatch(match)
		if len(submatches) != 4 {
			return match
		}
		return submatches[1] + RedactedPlaceholder + submatches[3]
	})

	return standaloneSecretPattern.ReplaceAllString(sanitized, RedactedPlaceholder)
}
