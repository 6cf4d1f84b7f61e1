package log

import (
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"strings"
)

// Level represents the severity of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging interface passed to Conveyor components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a Logger that includes the given fields on every entry.
	With(fields ...Field) Logger
}

type logger struct {
	sl *slog.Logger
}

// Options configure a Logger at construction time.
type options struct {
	level  Level
	format string
	out    io.Writer
}

// Option configures NewLogger.
type Option func(*options)

// WithLevel sets the minimum level emitted.
func WithLevel(level Level) Option { return func(o *options) { o.level = level } }

// WithFormat selects the output format: "text" (default) or "json".
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithOutput sets the destination writer. Defaults to stderr.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// NewLogger builds a Logger with the given options.
func NewLogger(opts ...Option) Logger {
	o := options{level: InfoLevel, format: "text", out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	ho := &slog.HandlerOptions{Level: o.level.slog()}
	var h slog.Handler
	if strings.EqualFold(o.format, "json") {
		h = slog.NewJSONHandler(o.out, ho)
	} else {
		h = slog.NewTextHandler(o.out, ho)
	}
	return &logger{sl: slog.New(h)}
}

// Config is the file/env-facing logger configuration.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ApplyConfig builds a Logger from Config, validating the level name.
func ApplyConfig(cfg *Config) (Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return NewLogger(WithLevel(lvl), WithFormat(cfg.Format)), nil
}

func (l *logger) Debug(msg string, fields ...Field) { l.sl.Debug(msg, attrs(fields)...) }
func (l *logger) Info(msg string, fields ...Field)  { l.sl.Info(msg, attrs(fields)...) }
func (l *logger) Warn(msg string, fields ...Field)  { l.sl.Warn(msg, attrs(fields)...) }
func (l *logger) Error(msg string, fields ...Field) { l.sl.Error(msg, attrs(fields)...) }

func (l *logger) With(fields ...Field) Logger {
	return &logger{sl: l.sl.With(attrs(fields)...)}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

// RedirectStdLog routes the standard library logger through lg at debug
// level. Pebble and net/http write to the stdlib logger by default.
func RedirectStdLog(lg Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{lg: lg})
}

type stdWriter struct{ lg Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	w.lg.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// NewNop returns a Logger that discards everything. Intended for tests.
func NewNop() Logger { return NewLogger(WithLevel(ErrorLevel), WithOutput(io.Discard)) }
