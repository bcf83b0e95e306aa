// Package logging provides structured logging infrastructure for tokenpad.
// It wraps Go's standard log/slog package with context-aware logging, correlation IDs,
// and domain-specific log attributes. Output defaults to stderr because stdout
// carries the protocol stream.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// RequestIDKey is the context key for JSON-RPC request ids.
	RequestIDKey contextKey = "request_id"
	// ToolKey is the context key for the tool being called.
	ToolKey contextKey = "tool"
	// TokenizerKey is the context key for the active tokenizer identity.
	TokenizerKey contextKey = "tokenizer"
)

var contextKeys = []contextKey{CorrelationIDKey, RequestIDKey, ToolKey, TokenizerKey}

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with additional functionality for tokenpad.
type Logger struct {
	slogger *slog.Logger
	level   *slog.LevelVar
}

// global is the package-level default logger.
var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger with the provided configuration.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	if global == nil {
		Init(DefaultConfig())
	}
	return global
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: LevelError})
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// ParseLevel converts a level name, defaulting to info.
func ParseLevel(s string) Level {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l
	default:
		return LevelInfo
	}
}

// parseLevel converts a Level to slog.Level.
func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel dynamically changes the log level. Loggers derived with With
// share the level.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(parseLevel(level))
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slogger: l.slogger.With(args...),
		level:   l.level,
	}
}

// WithGroup returns a new Logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slogger: l.slogger.WithGroup(name),
		level:   l.level,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func (l *Logger) enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+2*len(contextKeys))
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			enriched = append(enriched, string(key), v)
		}
	}
	return append(enriched, args...)
}

// Underlying returns the underlying slog.Logger.
func (l *Logger) Underlying() *slog.Logger {
	return l.slogger
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithNewCorrelationID adds a freshly generated correlation ID to the context.
func WithNewCorrelationID(ctx context.Context) context.Context {
	return WithCorrelationID(ctx, uuid.NewString())
}

// WithRequestID adds a JSON-RPC request id to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithTool adds a tool name to the context.
func WithTool(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ToolKey, name)
}

// WithTokenizer adds a tokenizer identity to the context.
func WithTokenizer(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, TokenizerKey, identity)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if v := ctx.Value(CorrelationIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// --- Domain-specific logging helpers ---

// LogRequest logs an incoming protocol request.
func LogRequest(ctx context.Context, logger *Logger, method string) {
	logger.DebugContext(ctx, "request received", "method", method)
}

// LogToolCall logs a finished tool call.
func LogToolCall(ctx context.Context, logger *Logger, tool string, duration time.Duration, err error) {
	if err != nil {
		logger.WarnContext(ctx, "tool call failed",
			"tool", tool,
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		return
	}
	logger.InfoContext(ctx, "tool call completed",
		"tool", tool,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogCalibration logs the outcome of a calibration search.
func LogCalibration(ctx context.Context, logger *Logger, reason string, fillerCount, observed, target, estimatorCalls int) {
	logger.DebugContext(ctx, "calibration finished",
		"reason", reason,
		"filler_count", fillerCount,
		"observed_tokens", observed,
		"target_tokens", target,
		"estimator_calls", estimatorCalls,
	)
}

// LogFill logs a completed fill.
func LogFill(ctx context.Context, logger *Logger, baseTokens, filledTokens, fillerCount int) {
	logger.InfoContext(ctx, "context fill applied",
		"base_tokens", baseTokens,
		"filled_tokens", filledTokens,
		"filler_count", fillerCount,
	)
}

// LogFillSkipped logs why a fill did not happen.
func LogFillSkipped(ctx context.Context, logger *Logger, reason string, headroom int) {
	logger.InfoContext(ctx, "context fill skipped",
		"reason", reason,
		"available_tokens", headroom,
	)
}

// LogTokenizerFallback logs a degraded tokenizer selection or encode.
func LogTokenizerFallback(ctx context.Context, logger *Logger, from, to string, err error) {
	args := []any{"from", from, "to", to}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	logger.WarnContext(ctx, "tokenizer fallback", args...)
}

// LogContextReset logs a tracker reset.
func LogContextReset(ctx context.Context, logger *Logger, cause string, accumulated int) {
	logger.InfoContext(ctx, "context usage reset",
		"cause", cause,
		"accumulated_tokens", accumulated,
	)
}
