package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"
)

// Level represents the log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

// Logger provides structured, leveled logging for the gateway. It is
// intentionally not built on a third-party structured-logging library;
// the handful of fields every call site needs (session id, asset,
// account, protocol) don't justify one.
type Logger struct {
	level  Level
	name   string
	logger *log.Logger
}

// New creates a new logger instance writing to out.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{level: level, logger: log.New(out, "", 0)}
}

// Default creates a default logger at INFO level.
func Default() *Logger {
	return New(LevelInfo, os.Stdout)
}

// Named returns a copy of the logger that prefixes every message with
// the given component name (e.g. "terminal", "guac", "multiplex").
func (l *Logger) Named(name string) *Logger {
	return &Logger{level: l.level, name: name, logger: l.logger}
}

func (l *Logger) log(level Level, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	prefix := msg
	if l.name != "" {
		prefix = fmt.Sprintf("%s: %s", l.name, msg)
	}
	logMsg := fmt.Sprintf("[%s] %s: %s", timestamp, level.String(), prefix)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logMsg += " |"
		for _, k := range keys {
			logMsg += fmt.Sprintf(" %s=%v", k, fields[k])
		}
	}

	l.logger.Println(logMsg)
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, mergeFields(fields...))
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, mergeFields(fields...))
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, mergeFields(fields...))
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, mergeFields(fields...))
}

// WithFields returns a logger that always includes the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *ContextLogger {
	return &ContextLogger{logger: l, fields: fields}
}

// ContextLogger is a Logger with pre-set fields, typically one per
// session (session id, asset, account).
type ContextLogger struct {
	logger *Logger
	fields map[string]interface{}
}

func (c *ContextLogger) Debug(msg string, fields ...map[string]interface{}) {
	c.logger.log(LevelDebug, msg, mergeFields(c.fields, mergeFields(fields...)))
}

func (c *ContextLogger) Info(msg string, fields ...map[string]interface{}) {
	c.logger.log(LevelInfo, msg, mergeFields(c.fields, mergeFields(fields...)))
}

func (c *ContextLogger) Warn(msg string, fields ...map[string]interface{}) {
	c.logger.log(LevelWarn, msg, mergeFields(c.fields, mergeFields(fields...)))
}

func (c *ContextLogger) Error(msg string, fields ...map[string]interface{}) {
	c.logger.log(LevelError, msg, mergeFields(c.fields, mergeFields(fields...)))
}

func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f {
			result[k] = v
		}
	}
	return result
}

type contextKey string

const loggerKey contextKey = "logger"

// WithContext attaches a logger to ctx.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger attached to ctx, or Default().
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return Default()
}
