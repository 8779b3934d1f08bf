// Package logger is the kernel's structured logging layer: slog behind a
// tint console handler in development and a JSON handler in production,
// plus helpers that attach the loop/node/iteration context kernel
// components log under.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with the contextual fields the kernel
// attaches to every line: loop id, iteration number, node id.
type Logger struct {
	*slog.Logger
}

// New creates a logger for the given level ("debug"|"info"|"warn"|"error")
// and format ("json" for production, anything else for colorized tint
// output). Log lines go to stderr: development mode prints node output
// JSON on stdout, and the two streams must not interleave.
func New(level, format string) *Logger {
	return &Logger{Logger: slog.New(newHandler(level, format))}
}

func newHandler(level, format string) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})
	}
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.TimeOnly,
	})
}

// WithFields returns a logger annotated with the given key/value pairs.
// Keys are attached in sorted order so repeated runs render identically.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &Logger{Logger: l.With(args...)}
}

// WithLoopID annotates a logger with the producer loop it belongs to.
func (l *Logger) WithLoopID(loopID string) *Logger {
	return l.WithFields(map[string]any{"loop_id": loopID})
}

// WithNodeID annotates a logger with the node currently executing.
func (l *Logger) WithNodeID(nodeID string) *Logger {
	return l.WithFields(map[string]any{"node_id": nodeID})
}

// WithIteration annotates a logger with a FlowRunner iteration counter.
func (l *Logger) WithIteration(n uint64) *Logger {
	return l.WithFields(map[string]any{"iteration": n})
}

// WithContext attaches the trace id stored on ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok && traceID != "" {
		return l.WithFields(map[string]any{"trace_id": traceID})
	}
	return l
}

// Error logs at error level with the calling goroutine's stack attached,
// so DLQ-bound failures always carry a trace. The stack starts at the
// caller and is capped, skipping the runtime preamble and this package's
// own frames.
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append(args, "stack", callerStack(2))...)
}

// ErrorContext is Error with ctx's trace id attached.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Logger.ErrorContext(ctx, msg, append(args, "stack", callerStack(2))...)
}

// maxStackFrames bounds the stack Error attaches; deep CEL or pool
// dispatch chains would otherwise dominate every error line.
const maxStackFrames = 24

func callerStack(skip int) string {
	pc := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip+1, pc)
	if n == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}

type traceIDKey struct{}

// WithTraceID stores a trace id on the context for WithContext to pick up.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func parseLevel(level string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}
