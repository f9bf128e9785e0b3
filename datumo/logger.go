package datumo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with dataset-specific helpers so merges, saves and
// codecs log with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// A nil handler logs text at info level to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger emitting JSON records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger emitting human-readable records to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1000)}))
}

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// WithSource tags records with a source name.
func (l *Logger) WithSource(name string) *Logger {
	return &Logger{Logger: l.Logger.With("source", name)}
}

// WithFormat tags records with a format name.
func (l *Logger) WithFormat(format string) *Logger {
	return &Logger{Logger: l.Logger.With("format", format)}
}

// LogMerge logs the outcome of merging one source into a dataset.
func (l *Logger) LogMerge(ctx context.Context, source string, items, collisions int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "merge failed",
			"source", source,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "source merged",
		"source", source,
		"items", items,
		"collisions", collisions,
	)
}

// LogSave logs a project save.
func (l *Logger) LogSave(ctx context.Context, dir string, items int, merged bool, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"dir", dir,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "project saved",
		"dir", dir,
		"items", items,
		"merged", merged,
		"duration", elapsed,
	)
}

// LogConvert logs a converter run.
func (l *Logger) LogConvert(ctx context.Context, format string, items, skipped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "convert failed",
			"format", format,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "convert completed",
		"format", format,
		"items", items,
		"skipped", skipped,
	)
}

// LogSkip logs an annotation a format cannot represent.
func (l *Logger) LogSkip(ctx context.Context, format, item string, kind AnnotationKind) {
	l.DebugContext(ctx, "annotation skipped",
		"format", format,
		"item", item,
		"kind", kind.String(),
	)
}

type loggerKey struct{}

// ContextWithLogger attaches l to ctx for plugins invoked under it.
func ContextWithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFrom returns the logger attached to ctx, or NoopLogger.
func LoggerFrom(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok && l != nil {
		return l
	}
	return noop
}

var noop = NoopLogger()
