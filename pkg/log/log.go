// Package log configures the process-wide [slog] handler and exposes
// context-aware loggers.
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"go.opentelemetry.io/otel/trace"

	charmlog "github.com/charmbracelet/log"
)

type (
	Format string
	Level  string

	contextKey struct{}
)

const (
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
	FormatText   Format = "text"

	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"

	// Number of trace ID characters attached to log records.
	traceIDLength = 8
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownLogLevel  = errors.New("unknown log level")
	ErrUnknownLogFormat = errors.New("unknown log format")

	AllFormats = []string{
		string(FormatText),
		string(FormatLogfmt),
		string(FormatJSON),
	}
	AllLevels = []string{
		string(LevelError),
		string(LevelWarn),
		string(LevelInfo),
		string(LevelDebug),
	}
)

// NewHandler creates a [slog.Handler] from the level and format names
// accepted on the command line.
func NewHandler(w io.Writer, logLevel, logFormat string) (slog.Handler, error) {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	format, err := ParseFormat(logFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}), nil
	case FormatLogfmt:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}), nil
	default:
		return newCharmHandler(w, lvl), nil
	}
}

// ParseLevel parses a level name. "warning" is accepted as an alias of "warn".
func ParseLevel(level string) (slog.Level, error) {
	switch Level(strings.ToLower(level)) {
	case LevelError:
		return slog.LevelError, nil
	case LevelWarn, "warning":
		return slog.LevelWarn, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case LevelDebug:
		return slog.LevelDebug, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownLogLevel, level)
}

func ParseFormat(format string) (Format, error) {
	f := Format(strings.ToLower(format))
	if slices.Contains(AllFormats, string(f)) {
		return f, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownLogFormat, format)
}

// The color profile is detected on w, not on stdout.
func newCharmHandler(w io.Writer, level slog.Level) slog.Handler {
	//nolint:gosec // G115: input from ParseLevel.
	lvl := int32(level)

	logger := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(lvl),
		Formatter:       charmlog.TextFormatter,
		ReportTimestamp: true,
		ReportCaller:    level <= slog.LevelDebug,
		TimeFormat:      time.TimeOnly,
	})
	logger.SetColorProfile(termenv.NewOutput(w).Profile)

	return logger
}

// NewContext returns a copy of ctx that carries logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// WithContext returns the logger stored in ctx by [NewContext], or the default
// logger. When ctx carries a valid span, a shortened trace ID is attached.
func WithContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(contextKey{}).(*slog.Logger)
	if !ok {
		logger = slog.Default()
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID := sc.TraceID().String()
		if len(traceID) > traceIDLength {
			traceID = traceID[:traceIDLength]
		}

		return logger.With(slog.String("trace_id", traceID))
	}

	return logger
}
