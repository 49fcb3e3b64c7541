// Package logger provides the structured logger the debug server uses for its
// own diagnostics (startup, accept failures, shutdown timing). It is backed by
// zerolog and can write to a console, to daily-rotated files, or both.
//
// Operator-facing console output (received messages, connection lines) does
// not go through this package; see the registry package for that.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger is an interface for structured logging. Loggers may be derived with
// With for component-scoped fields.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger

	// Close releases resources held by the logger (e.g. file handles).
	// It is safe to call multiple times.
	Close() error
}

// zerologLogger is the zerolog-based implementation of Logger.
type zerologLogger struct {
	logger zerolog.Logger
	closer io.Closer
}

// New builds a Logger that writes JSON lines to w, tagging every entry with
// the service name and a timestamp.
//
// Parameters:
//   - w: Destination for log entries
//   - service: Name of the service, added as a field to every entry
//   - level: Minimum level to log
//
// Returns:
//   - A Logger writing to w
func New(w io.Writer, service string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: zerolog.New(w).With().Str("service", service).Timestamp().Logger().Level(level),
	}
}

// NewConsole builds a Logger that writes human-readable lines to w using
// zerolog's ConsoleWriter.
//
// Parameters:
//   - w: Destination for log entries, usually os.Stderr
//   - service: Name of the service, added as a field to every entry
//   - level: Minimum level to log
//
// Returns:
//   - A Logger writing formatted lines to w
func NewConsole(w io.Writer, service string, level zerolog.Level) Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
	}

	return New(cw, service, level)
}

// NewFile builds a Logger that writes JSON lines to a daily-rotated file in
// dir and, when console is non-nil, human-readable lines to console as well.
// The directory is created if it does not exist.
//
// Parameters:
//   - service: Name of the service, used in entries and file names
//   - dir: Directory for log files
//   - level: Minimum level to log
//   - console: Optional console destination; nil disables console output
//
// Returns:
//   - The Logger, or an error if the directory or first file cannot be created
func NewFile(service string, dir string, level zerolog.Level, console io.Writer) (Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fw, err := NewDailyFileWriter(service, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create file writer: %w", err)
	}

	var w io.Writer = fw
	if console != nil {
		w = zerolog.MultiLevelWriter(fw, zerolog.ConsoleWriter{Out: console, TimeFormat: "2006-01-02 15:04:05"})
	}

	return &zerologLogger{
		logger: zerolog.New(w).With().Str("service", service).Timestamp().Logger().Level(level),
		closer: fw,
	}, nil
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// ParseLevel converts a level name such as "debug" or "WARN" into a zerolog
// level. Empty or unknown names yield zerolog.InfoLevel.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}

	return level
}

func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger. Derived loggers share the parent's file but never
// close it.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

func (z *zerologLogger) Close() error {
	if z.closer != nil {
		return z.closer.Close()
	}

	return nil
}

// toMap converts a slice of Field into a map for zerolog.
func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
