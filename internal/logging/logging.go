// Package logging provides a simple logging interface that mimics the
// standard library log/slog methods, backed by a real slog implementation,
// plus an in-memory recorder for tests.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"
)

// Logger is the structured logging contract every component depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Level mirrors the directive file's "logLevel" config option.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type slogLogger struct {
	l *slog.Logger
}

// New builds the production Logger. When w is a terminal, logs render as
// human-readable text; otherwise (redirected to a file, a pipe, a log
// aggregator) they render as JSON lines, the same terminal-detection idiom
// the rest of the pack's CLIs use before choosing a renderer.
func New(w io.Writer, level Level) Logger {
	opts := &slog.HandlerOptions{Level: level.slogLevel()}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &slogLogger{l: slog.New(handler)}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// Discard is a Logger that drops every record; useful as a default in tests.
var Discard Logger = &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, nil))}

// Recorder is an in-memory Logger for tests, capturing messages per level.
type Recorder struct {
	mu     sync.Mutex
	Debugs []string
	Infos  []string
	Warns  []string
	Errors []string
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Debug(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Debugs = append(r.Debugs, msg)
}
func (r *Recorder) Info(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Infos = append(r.Infos, msg)
}
func (r *Recorder) Warn(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warns = append(r.Warns, msg)
}
func (r *Recorder) Error(msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
}

// ctxKey threads a Logger through a context.Context so deeply nested
// pipeline stages can log without threading an explicit parameter.
type ctxKey struct{}

func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return Discard
}
